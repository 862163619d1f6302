package actor

import (
	"context"

	"github.com/amp-labs/statechart/chart"
)

// InvokeMachine wraps a machine definition as an invokable service. Entering
// the owning state starts a nested actor; when the nested machine reaches a
// terminal configuration its output becomes the done-invoke payload, and
// exiting the owning state stops the nested actor.
//
// The nested actor is private to the invocation: it is not registered with
// the parent's registry and cannot be addressed by sendTo from outside.
// Inside the nested machine, sendTo with the reserved ParentID target
// delivers events to the invoking actor.
func InvokeMachine(machine *chart.Machine, opts ...Option) chart.Service { //nolint:ireturn
	return machineService{machine: machine, opts: opts}
}

type machineService struct {
	machine *chart.Machine
	opts    []Option
}

func (s machineService) Start(ctx context.Context, cb chart.ServiceCallback) func() {
	opts := make([]Option, 0, len(s.opts)+1)
	opts = append(opts, s.opts...)
	opts = append(opts, withParentSender(cb.Send))

	child := New(s.machine, opts...)

	unsubscribe := child.Subscribe(func(snapshot chart.Snapshot) {
		if snapshot.Done {
			cb.Done(snapshot.Output)
		}
	})

	if err := child.Start(ctx); err != nil {
		unsubscribe()
		cb.Fail(err)

		return func() {}
	}

	// Start may have driven the machine straight to completion, before the
	// subscriber existed.
	if snapshot := child.Snapshot(); snapshot.Done {
		cb.Done(snapshot.Output)
	}

	return func() {
		unsubscribe()
		child.Stop(context.WithoutCancel(ctx))
	}
}
