package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbeamline/beamcore/internal/epics"
)

// Default PV suffixes for an EPICS states record: commands go to the
// setpoint field, the current position is read back separately.
const (
	DefaultSetpointSuffix = ":GO"
	DefaultReadbackSuffix = ":STATE"
)

// LabelFunc observes setpoint or readback changes on a states record.
type LabelFunc func(Label)

// StatesRecordOptions tunes a StatesRecord positioner.
type StatesRecordOptions struct {
	SetpointSuffix string
	ReadbackSuffix string

	// PollRate is the steady-state polling interval for move tokens.
	// Zero selects DefaultPollRate.
	PollRate time.Duration

	// MoveTimeout bounds move tokens. Zero means no deadline.
	MoveTimeout time.Duration
}

// StatesRecord wraps a multi-valued EPICS states record as a positioner.
//
// The record enumerates its positions; index 0 is the record's Unknown
// position, real positions start at 1. Change notification is split:
// setpoint observers see what was commanded, readback observers see
// where the hardware actually is.
//
// Thread Safety: all methods are safe for concurrent use.
type StatesRecord struct {
	name        string
	labels      []Label
	setpoint    *epics.Signal
	readback    *epics.Signal
	pollRate    time.Duration
	moveTimeout time.Duration

	mu          sync.RWMutex
	setpointObs map[string]LabelFunc
	readbackObs map[string]LabelFunc
	subs        []epics.Subscription
	closed      bool
}

// NewStatesRecord builds a positioner over the record at prefix.
//
// labels is the record's position list in enum order, excluding the
// implicit Unknown at index 0.
func NewStatesRecord(conn epics.Conn, name, prefix string, labels []Label, opts StatesRecordOptions) (*StatesRecord, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("state: states record %q has no positions", name)
	}
	for _, l := range labels {
		if l == LabelUnknown || l == LabelDefer {
			return nil, fmt.Errorf("state: states record %q: %q is reserved", name, l)
		}
	}

	setpointSuffix := opts.SetpointSuffix
	if setpointSuffix == "" {
		setpointSuffix = DefaultSetpointSuffix
	}
	readbackSuffix := opts.ReadbackSuffix
	if readbackSuffix == "" {
		readbackSuffix = DefaultReadbackSuffix
	}

	r := &StatesRecord{
		name:        name,
		labels:      append([]Label(nil), labels...),
		setpoint:    epics.NewSignal(conn, prefix+setpointSuffix),
		readback:    epics.NewSignal(conn, prefix+readbackSuffix),
		pollRate:    opts.PollRate,
		moveTimeout: opts.MoveTimeout,
		setpointObs: make(map[string]LabelFunc),
		readbackObs: make(map[string]LabelFunc),
	}

	spSub, err := r.setpoint.Subscribe(func(rd epics.Reading) {
		r.notify(r.setpointObsSnapshot, rd)
	})
	if err != nil {
		return nil, fmt.Errorf("state: monitor setpoint %s: %w", r.setpoint.PV(), err)
	}
	r.subs = append(r.subs, spSub)

	rbSub, err := r.readback.Subscribe(func(rd epics.Reading) {
		r.notify(r.readbackObsSnapshot, rd)
	})
	if err != nil {
		spSub.Unsubscribe()
		return nil, fmt.Errorf("state: monitor readback %s: %w", r.readback.PV(), err)
	}
	r.subs = append(r.subs, rbSub)

	return r, nil
}

// Name returns the positioner name.
func (r *StatesRecord) Name() string {
	return r.name
}

// Labels returns the enumerated positions in record order.
func (r *StatesRecord) Labels() []Label {
	out := make([]Label, len(r.labels))
	copy(out, r.labels)
	return out
}

// HasLabel reports whether label is an enumerated position.
func (r *StatesRecord) HasLabel(label Label) bool {
	for _, l := range r.labels {
		if l == label {
			return true
		}
	}
	return false
}

// Position reads the record's current position from the readback.
func (r *StatesRecord) Position(ctx context.Context) (Label, error) {
	rd, err := r.readback.Get(ctx)
	if err != nil {
		return LabelUnknown, fmt.Errorf("state: read %s: %w", r.readback.PV(), err)
	}
	return r.interpret(rd.Value), nil
}

// Setpoint reads the last commanded position.
func (r *StatesRecord) Setpoint(ctx context.Context) (Label, error) {
	rd, err := r.setpoint.Get(ctx)
	if err != nil {
		return LabelUnknown, fmt.Errorf("state: read %s: %w", r.setpoint.PV(), err)
	}
	return r.interpret(rd.Value), nil
}

// Move writes the setpoint and returns a token tracking the readback.
//
// The target is validated at call time against the enumerated positions.
func (r *StatesRecord) Move(ctx context.Context, target Label) (*Status, error) {
	if !r.HasLabel(target) {
		return nil, fmt.Errorf("%w: %q not in %v for %s", ErrUnknownLabel, target, r.labels, r.name)
	}
	if err := r.setpoint.Put(ctx, string(target)); err != nil {
		return nil, fmt.Errorf("state: move %s to %q: %w", r.name, target, err)
	}
	return WaitFor(positionerFunc(r.Position), target, r.moveTimeout, r.pollRate), nil
}

// OnSetpoint registers an observer for commanded-position changes and
// returns its unsubscribe function.
func (r *StatesRecord) OnSetpoint(fn LabelFunc) (unsubscribe func()) {
	return r.register(r.setpointObs, fn)
}

// OnReadback registers an observer for actual-position changes and
// returns its unsubscribe function.
func (r *StatesRecord) OnReadback(fn LabelFunc) (unsubscribe func()) {
	return r.register(r.readbackObs, fn)
}

// Close drops all monitor subscriptions and observers.
func (r *StatesRecord) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.setpointObs = make(map[string]LabelFunc)
	r.readbackObs = make(map[string]LabelFunc)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (r *StatesRecord) register(registry map[string]LabelFunc, fn LabelFunc) func() {
	id := uuid.NewString()
	r.mu.Lock()
	registry[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(registry, id)
			r.mu.Unlock()
		})
	}
}

func (r *StatesRecord) setpointObsSnapshot() []LabelFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns := make([]LabelFunc, 0, len(r.setpointObs))
	for _, fn := range r.setpointObs {
		fns = append(fns, fn)
	}
	return fns
}

func (r *StatesRecord) readbackObsSnapshot() []LabelFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns := make([]LabelFunc, 0, len(r.readbackObs))
	for _, fn := range r.readbackObs {
		fns = append(fns, fn)
	}
	return fns
}

func (r *StatesRecord) notify(snapshot func() []LabelFunc, rd epics.Reading) {
	label := r.interpret(rd.Value)
	for _, fn := range snapshot() {
		fn(label)
	}
}

// interpret maps a raw record value to a position label. String values
// name a position directly; integer values index the enum, where 0 is
// the record's Unknown position.
func (r *StatesRecord) interpret(raw any) Label {
	switch v := normalizeRaw(raw).(type) {
	case string:
		if r.HasLabel(Label(v)) {
			return Label(v)
		}
		return LabelUnknown
	case int64:
		if v >= 1 && v <= int64(len(r.labels)) {
			return r.labels[v-1]
		}
		return LabelUnknown
	default:
		return LabelUnknown
	}
}
