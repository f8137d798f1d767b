package epics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PutHook intercepts writes to a PV on the soft IOC, standing in for
// record processing. It runs instead of the default store; the hook is
// responsible for calling SetPV to make effects visible.
type PutHook func(ioc *SoftIOC, pv string, value any)

// SoftIOC is an in-process Conn backed by a map.
//
// It serves two roles: the transport for simulator mode, and the test
// double for everything built on Conn. Put hooks emulate record logic
// (a command PV driving limit switches after a delay, say).
//
// Thread Safety: all methods are safe for concurrent use. Monitor
// callbacks run synchronously on the goroutine that changed the value,
// outside the IOC lock.
type SoftIOC struct {
	mu     sync.RWMutex
	pvs    map[string]Reading
	subs   map[string]map[string]MonitorFunc
	hooks  map[string]PutHook
	closed bool
}

// NewSoftIOC creates an empty soft IOC.
func NewSoftIOC() *SoftIOC {
	return &SoftIOC{
		pvs:   make(map[string]Reading),
		subs:  make(map[string]map[string]MonitorFunc),
		hooks: make(map[string]PutHook),
	}
}

// Load seeds the IOC database with initial values, without notifying
// subscribers.
func (s *SoftIOC) Load(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for pv, v := range values {
		s.pvs[pv] = Reading{PV: pv, Value: v, Timestamp: now}
	}
}

// SetPV stores a value and notifies subscribers. This is the IOC-side
// entry point: hooks and simulators use it to publish changes.
func (s *SoftIOC) SetPV(pv string, value any) {
	s.SetReading(Reading{PV: pv, Value: value, Timestamp: time.Now()})
}

// SetReading stores a full reading (value plus severity) and notifies
// subscribers.
func (s *SoftIOC) SetReading(r Reading) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	s.pvs[r.PV] = r
	fns := make([]MonitorFunc, 0, len(s.subs[r.PV]))
	for _, fn := range s.subs[r.PV] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// SetPutHook installs a hook that runs on Put to the given PV, replacing
// the default store-and-notify.
func (s *SoftIOC) SetPutHook(pv string, hook PutHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[pv] = hook
}

// Get returns the current value of a PV.
func (s *SoftIOC) Get(ctx context.Context, pv string) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Reading{}, ErrConnClosed
	}
	r, ok := s.pvs[pv]
	if !ok {
		return Reading{}, ErrNoSuchPV
	}
	return r, nil
}

// Put writes a value to a PV, running the put hook if one is installed.
func (s *SoftIOC) Put(ctx context.Context, pv string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrConnClosed
	}
	hook := s.hooks[pv]
	_, known := s.pvs[pv]
	s.mu.RUnlock()

	if hook != nil {
		hook(s, pv, value)
		return nil
	}
	if !known {
		return ErrNoSuchPV
	}
	s.SetPV(pv, value)
	return nil
}

// Subscribe registers a monitor for a PV. If the PV already holds a
// value the callback fires immediately with it, matching channel-access
// monitor semantics.
func (s *SoftIOC) Subscribe(pv string, fn MonitorFunc) (Subscription, error) {
	if pv == "" {
		return nil, ErrInvalidPV
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrConnClosed
	}
	id := uuid.NewString()
	if s.subs[pv] == nil {
		s.subs[pv] = make(map[string]MonitorFunc)
	}
	s.subs[pv][id] = fn
	current, hasValue := s.pvs[pv]
	s.mu.Unlock()

	if hasValue {
		fn(current)
	}
	return &iocSubscription{ioc: s, pv: pv, id: id}, nil
}

// Close marks the IOC closed and drops all subscriptions.
func (s *SoftIOC) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[string]map[string]MonitorFunc)
	return nil
}

type iocSubscription struct {
	ioc  *SoftIOC
	pv   string
	id   string
	once sync.Once
}

func (sub *iocSubscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.ioc.mu.Lock()
		defer sub.ioc.mu.Unlock()
		if fns := sub.ioc.subs[sub.pv]; fns != nil {
			delete(fns, sub.id)
			if len(fns) == 0 {
				delete(sub.ioc.subs, sub.pv)
			}
		}
	})
}
