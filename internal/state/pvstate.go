package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbeamline/beamcore/internal/epics"
)

// Setter drives the underlying hardware toward a target label. It is
// supplied per device class: a gate valve's setter writes the open/close
// command PV, a stopper's setter writes its control bit.
type Setter func(ctx context.Context, target Label) error

// ChangeFunc observes composite-state transitions.
type ChangeFunc func(from, to Label)

// PVStateOptions tunes a PVState device.
type PVStateOptions struct {
	// Setter commands moves. Nil makes the device read-only.
	Setter Setter

	// PollRate is the steady-state polling interval for move tokens.
	// Zero selects DefaultPollRate.
	PollRate time.Duration

	// MoveTimeout bounds move tokens. Zero means no deadline.
	MoveTimeout time.Duration
}

// PVState derives a discrete composite label from several PV readbacks
// through a state table.
//
// Construction attaches one signal per table entry at prefix+suffix and
// subscribes to each. Monitor updates feed a cached snapshot of raw
// values; every update re-evaluates the composite and notifies change
// observers when the label actually changed.
//
// Thread Safety: all methods are safe for concurrent use. Observer
// callbacks run on the transport's monitor goroutine and must not block.
type PVState struct {
	name        string
	table       *Table
	device      *epics.Device
	setter      Setter
	pollRate    time.Duration
	moveTimeout time.Duration

	mu        sync.RWMutex
	latest    map[string]any
	current   Label
	observers map[string]ChangeFunc
	subs      []epics.Subscription
	closed    bool
}

// NewPVState builds a composite-state device over a transport.
func NewPVState(conn epics.Conn, name, prefix string, table *Table, opts PVStateOptions) (*PVState, error) {
	p := &PVState{
		name:        name,
		table:       table,
		device:      epics.NewDevice(conn, name, prefix),
		setter:      opts.Setter,
		pollRate:    opts.PollRate,
		moveTimeout: opts.MoveTimeout,
		latest:      make(map[string]any),
		current:     LabelUnknown,
		observers:   make(map[string]ChangeFunc),
	}

	for _, entry := range table.EntryNames() {
		suffix, _ := table.Suffix(entry)
		sig, err := p.device.AddSignal(entry, suffix)
		if err != nil {
			return nil, err
		}

		entry := entry
		sub, err := sig.Subscribe(func(r epics.Reading) {
			p.handleReading(entry, r)
		})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("state: monitor %s for %s: %w", sig.PV(), name, err)
		}
		p.subs = append(p.subs, sub)
	}

	return p, nil
}

// Name returns the device name.
func (p *PVState) Name() string {
	return p.name
}

// Table returns the device's state table.
func (p *PVState) Table() *Table {
	return p.table
}

// Labels returns the enumerated move targets.
func (p *PVState) Labels() []Label {
	return p.table.Labels()
}

// State returns the composite label derived from the latest monitor
// updates, without touching the transport. Before the first update for
// every entry it reports unknown.
func (p *PVState) State() Label {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Label reads every underlying signal and evaluates a fresh composite.
//
// Transport failures surface as errors; evaluation itself cannot fail,
// an uninterpretable reading is just unknown.
func (p *PVState) Label(ctx context.Context) (Label, error) {
	readings := make(map[string]any, len(p.table.EntryNames()))
	for _, entry := range p.table.EntryNames() {
		sig, _ := p.device.Signal(entry)
		r, err := sig.Get(ctx)
		if err != nil {
			return LabelUnknown, fmt.Errorf("state: read %s for %s: %w", sig.PV(), p.name, err)
		}
		readings[entry] = r.Value
	}
	return p.table.Evaluate(readings), nil
}

// Move commands the device toward target and returns a token tracking
// completion.
//
// The target is validated against the enumerated labels at call time;
// a device without a setter refuses with ErrReadOnly. The returned
// token polls until the composite reads target or the configured move
// timeout elapses.
func (p *PVState) Move(ctx context.Context, target Label) (*Status, error) {
	if !p.table.HasLabel(target) {
		return nil, fmt.Errorf("%w: %q not in %v for %s", ErrUnknownLabel, target, p.table.Labels(), p.name)
	}
	if p.setter == nil {
		return nil, fmt.Errorf("%w: %s has no setter", ErrReadOnly, p.name)
	}
	if err := p.setter(ctx, target); err != nil {
		return nil, fmt.Errorf("state: move %s to %q: %w", p.name, target, err)
	}
	return WaitFor(p, target, p.moveTimeout, p.pollRate), nil
}

// OnChange registers an observer for composite transitions and returns
// its unsubscribe function. Unsubscribing is deterministic and safe to
// call more than once.
func (p *PVState) OnChange(fn ChangeFunc) (unsubscribe func()) {
	id := uuid.NewString()
	p.mu.Lock()
	p.observers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// Close drops all monitor subscriptions and observers. The device is
// unusable afterwards.
func (p *PVState) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := p.subs
	p.subs = nil
	p.observers = make(map[string]ChangeFunc)
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (p *PVState) handleReading(entry string, r epics.Reading) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.latest[entry] = r.Value
	next := p.table.Evaluate(p.latest)
	if next == p.current {
		p.mu.Unlock()
		return
	}
	prev := p.current
	p.current = next
	fns := make([]ChangeFunc, 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(prev, next)
	}
}
