// Package persist serializes actor snapshots so machines can be suspended
// and rehydrated across process restarts. An Envelope carries the state
// value, the caller-encoded context, recorded history and an integrity
// checksum; Store implementations put envelopes at rest, optionally behind a
// compression layer.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/amp-labs/statechart/chart"
)

// EnvelopeVersion is the current wire version of the envelope layout.
const EnvelopeVersion = 1

var (
	// ErrChecksumMismatch is returned when a decoded envelope fails its
	// integrity check.
	ErrChecksumMismatch = errors.New("envelope checksum mismatch")
	// ErrMachineMismatch is returned when restoring an envelope into a
	// different machine.
	ErrMachineMismatch = errors.New("envelope machine mismatch")
	// ErrUnknownValueKind is returned for unrecognized value records.
	ErrUnknownValueKind = errors.New("unknown state value kind")
	// ErrEnvelopeVersion is returned for envelope layouts this build cannot
	// read.
	ErrEnvelopeVersion = errors.New("unsupported envelope version")
	// ErrMigrationGap is returned when no migration path reaches the
	// machine's current version.
	ErrMigrationGap = errors.New("no migration path to current machine version")
)

// ValueRecord is the serialized form of a state value. Exactly one of Child
// and Regions is set for compound and parallel nodes; atomic nodes set
// neither.
type ValueRecord struct {
	Kind    string                 `json:"kind"`
	ID      string                 `json:"id"`
	Child   *ValueRecord           `json:"child,omitempty"`
	Regions map[string]ValueRecord `json:"regions,omitempty"`
}

// EncodeValue converts a state value into its serialized record.
func EncodeValue(value chart.StateValue) (ValueRecord, error) {
	switch v := value.(type) {
	case chart.AtomicValue:
		return ValueRecord{Kind: "atomic", ID: v.StateID}, nil
	case chart.CompoundValue:
		child, err := EncodeValue(v.Child)
		if err != nil {
			return ValueRecord{}, err
		}

		return ValueRecord{Kind: "compound", ID: v.StateID, Child: &child}, nil
	case chart.ParallelValue:
		regions := make(map[string]ValueRecord, len(v.Regions))

		for id, region := range v.Regions {
			record, err := EncodeValue(region)
			if err != nil {
				return ValueRecord{}, err
			}

			regions[id] = record
		}

		return ValueRecord{Kind: "parallel", ID: v.StateID, Regions: regions}, nil
	default:
		return ValueRecord{}, fmt.Errorf("%w: %T", ErrUnknownValueKind, value)
	}
}

// DecodeValue converts a serialized record back into a state value.
func DecodeValue(record ValueRecord) (chart.StateValue, error) { //nolint:ireturn
	switch record.Kind {
	case "atomic":
		return chart.Atomic(record.ID), nil
	case "compound":
		if record.Child == nil {
			return nil, fmt.Errorf("%w: compound %q has no child", ErrUnknownValueKind, record.ID)
		}

		child, err := DecodeValue(*record.Child)
		if err != nil {
			return nil, err
		}

		return chart.Compound(record.ID, child), nil
	case "parallel":
		regions := make(map[string]chart.StateValue, len(record.Regions))

		for id, regionRecord := range record.Regions {
			region, err := DecodeValue(regionRecord)
			if err != nil {
				return nil, err
			}

			regions[id] = region
		}

		return chart.Parallel(record.ID, regions), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownValueKind, record.Kind)
	}
}

// ContextCodec encodes and decodes the machine's extended-state context. The
// context type is application-defined, so its serialization stays with the
// caller.
type ContextCodec interface {
	EncodeContext(ctx any) ([]byte, error)
	DecodeContext(data []byte) (any, error)
}

// JSONCodec is a ContextCodec for contexts of a concrete JSON-serializable
// type.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) EncodeContext(ctx any) ([]byte, error) {
	return json.Marshal(ctx)
}

func (JSONCodec[T]) DecodeContext(data []byte) (any, error) {
	var ctx T

	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("decoding context: %w", err)
	}

	return ctx, nil
}

// Envelope is the serialized form of one actor's durable state.
type Envelope struct {
	Version        int                    `json:"version"`
	MachineID      string                 `json:"machineId"`
	MachineVersion int                    `json:"machineVersion"`
	SavedAt        time.Time              `json:"savedAt"`
	Value          ValueRecord            `json:"value"`
	Context        json.RawMessage        `json:"context,omitempty"`
	History        map[string]ValueRecord `json:"history,omitempty"`
	LastEventType  string                 `json:"lastEventType,omitempty"`
	Done           bool                   `json:"done,omitempty"`
	Checksum       uint64                 `json:"checksum"`
}

// Capture builds an envelope from a machine's current snapshot and history.
func Capture(
	machine *chart.Machine,
	snapshot chart.Snapshot,
	history *chart.HistoryManager,
	codec ContextCodec,
) (*Envelope, error) {
	value, err := EncodeValue(snapshot.Value)
	if err != nil {
		return nil, fmt.Errorf("encoding state value: %w", err)
	}

	env := &Envelope{
		Version:        EnvelopeVersion,
		MachineID:      machine.ID(),
		MachineVersion: machine.Version(),
		SavedAt:        time.Now().UTC(),
		Value:          value,
		LastEventType:  snapshot.LastEvent.Type,
		Done:           snapshot.Done,
	}

	if snapshot.Context != nil {
		data, err := codec.EncodeContext(snapshot.Context)
		if err != nil {
			return nil, fmt.Errorf("encoding context: %w", err)
		}

		env.Context = data
	}

	if history != nil {
		records := history.Export()
		if len(records) > 0 {
			env.History = make(map[string]ValueRecord, len(records))

			for path, recorded := range records {
				record, err := EncodeValue(recorded)
				if err != nil {
					return nil, fmt.Errorf("encoding history for %s: %w", path, err)
				}

				env.History[path] = record
			}
		}
	}

	return env, nil
}

// Encode serializes the envelope to JSON with its checksum filled in.
func (e *Envelope) Encode() ([]byte, error) {
	body := *e
	body.Checksum = 0

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	body.Checksum = xxh3.Hash(payload)

	data, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	return data, nil
}

// Decode parses an envelope and verifies its checksum and wire version.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope

	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrEnvelopeVersion, env.Version)
	}

	want := env.Checksum
	env.Checksum = 0

	payload, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	if got := xxh3.Hash(payload); got != want {
		return nil, fmt.Errorf("%w: stored %d, computed %d", ErrChecksumMismatch, want, got)
	}

	env.Checksum = want

	return &env, nil
}

// Restore turns an envelope back into a snapshot and history manager for the
// machine, applying registered migrations when the envelope was captured
// from an older machine version.
func (e *Envelope) Restore(
	machine *chart.Machine,
	codec ContextCodec,
	migrations ...Migration,
) (chart.Snapshot, *chart.HistoryManager, error) {
	if e.MachineID != machine.ID() {
		return chart.Snapshot{}, nil, fmt.Errorf("%w: envelope %q, machine %q",
			ErrMachineMismatch, e.MachineID, machine.ID())
	}

	if err := e.migrate(machine.Version(), migrations); err != nil {
		return chart.Snapshot{}, nil, err
	}

	value, err := DecodeValue(e.Value)
	if err != nil {
		return chart.Snapshot{}, nil, fmt.Errorf("decoding state value: %w", err)
	}

	snapshot := chart.Snapshot{
		Value:     value,
		Done:      e.Done,
		LastEvent: chart.Event{Type: e.LastEventType},
	}

	if len(e.Context) > 0 {
		ctx, err := codec.DecodeContext(e.Context)
		if err != nil {
			return chart.Snapshot{}, nil, fmt.Errorf("decoding context: %w", err)
		}

		snapshot.Context = ctx
	}

	history := chart.NewHistoryManager()

	if len(e.History) > 0 {
		records := make(map[string]chart.StateValue, len(e.History))

		for path, record := range e.History {
			recorded, err := DecodeValue(record)
			if err != nil {
				return chart.Snapshot{}, nil, fmt.Errorf("decoding history for %s: %w", path, err)
			}

			records[path] = recorded
		}

		history.Import(records)
	}

	return snapshot, history, nil
}

// Migration upgrades an envelope captured from machine version FromVersion
// to FromVersion+1.
type Migration struct {
	FromVersion int
	Apply       func(env *Envelope) error
}

// migrate walks the migration chain from the envelope's machine version up
// to target. A missing step is an ErrMigrationGap.
func (e *Envelope) migrate(target int, migrations []Migration) error {
	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.FromVersion] = m
	}

	for e.MachineVersion < target {
		step, ok := byVersion[e.MachineVersion]
		if !ok {
			return fmt.Errorf("%w: stuck at version %d, want %d",
				ErrMigrationGap, e.MachineVersion, target)
		}

		if err := step.Apply(e); err != nil {
			return fmt.Errorf("migrating from version %d: %w", e.MachineVersion, err)
		}

		e.MachineVersion++
	}

	return nil
}
