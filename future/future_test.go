package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/statechart/try"
)

func TestAwaitSuccess(t *testing.T) {
	t.Parallel()

	f, p := New[int]()

	go p.Success(7)

	value, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.True(t, f.IsDone())
}

func TestAwaitFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	f, p := New[string]()

	go p.Failure(boom)

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAwaitContextCancellation(t *testing.T) {
	t.Parallel()

	f, _ := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.IsDone(), "a lost await must not fulfill the future")
}

func TestFulfillIsOneShot(t *testing.T) {
	t.Parallel()

	f, p := New[int]()

	p.Success(1)
	p.Success(2)
	p.Failure(errors.New("ignored"))

	value, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}

func TestComplete(t *testing.T) {
	t.Parallel()

	ok, p1 := New[string]()
	p1.Complete("fine", nil)

	value, err := ok.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fine", value)

	boom := errors.New("boom")
	bad, p2 := New[string]()
	p2.Complete("discarded", boom)

	_, err = bad.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSuccessfulAndFailed(t *testing.T) {
	t.Parallel()

	assert.True(t, Successful("v").IsDone())
	assert.True(t, Failed[int](errors.New("e")).IsDone())

	value, err := Successful(3).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, value)
}

func TestOnResultBeforeFulfillment(t *testing.T) {
	t.Parallel()

	f, p := New[int]()

	got := make(chan try.Try[int], 1)
	f.OnResult(func(result try.Try[int]) { got <- result })

	p.Success(11)

	select {
	case result := <-got:
		assert.Equal(t, 11, result.Value)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestOnResultAfterFulfillment(t *testing.T) {
	t.Parallel()

	f := Successful(5)

	got := make(chan int, 1)
	f.OnResult(func(result try.Try[int]) { got <- result.Value })

	select {
	case value := <-got:
		assert.Equal(t, 5, value)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestOnSuccessAndOnError(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup

	wg.Add(2)

	okCalled := false
	Successful(1).OnSuccess(func(int) {
		okCalled = true

		wg.Done()
	})

	errCalled := false
	Failed[int](errors.New("e")).OnError(func(error) {
		errCalled = true

		wg.Done()
	})

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("callbacks not invoked")
	}

	assert.True(t, okCalled)
	assert.True(t, errCalled)

	// The mismatched callbacks must stay silent.
	Successful(1).OnError(func(error) { t.Error("OnError ran for a success") })
	Failed[int](errors.New("e")).OnSuccess(func(int) { t.Error("OnSuccess ran for a failure") })

	time.Sleep(50 * time.Millisecond)
}

func TestGo(t *testing.T) {
	t.Parallel()

	f := Go(func() (int, error) { return 9, nil })

	value, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, value)
}

func TestGoContextCancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})

	f, cancel := GoContext(context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()

		return 0, ctx.Err()
	})

	<-started
	cancel()

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromiseCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	_, p := New[int]()

	calls := 0
	p.onCancel(func() { calls++ })

	p.Cancel()
	p.Cancel()

	assert.True(t, p.IsCanceled())
	assert.Equal(t, 1, calls)
}
