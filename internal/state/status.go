package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultPollRate is the steady-state polling interval for status
// tokens when the caller does not configure one.
const DefaultPollRate = 100 * time.Millisecond

// Positioner is the minimal device surface a status token polls.
type Positioner interface {
	Label(ctx context.Context) (Label, error)
}

// positionerFunc adapts a bare read function to Positioner.
type positionerFunc func(ctx context.Context) (Label, error)

func (f positionerFunc) Label(ctx context.Context) (Label, error) {
	return f(ctx)
}

// Status is an asynchronous move-completion token.
//
// A token is created done, or completes exactly once from a background
// goroutine. A timeout is recorded on the token, never raised into the
// caller.
//
// Thread Safety: Done, Succeeded, Err and Wait are safe from any
// goroutine at any time.
type Status struct {
	target Label

	mu     sync.Mutex
	done   bool
	err    error
	doneCh chan struct{}
}

func newStatus(target Label) *Status {
	return &Status{target: target, doneCh: make(chan struct{})}
}

// Target returns the label this token is waiting for.
func (s *Status) Target() Label {
	return s.target
}

// Done reports whether the token has completed, successfully or not.
func (s *Status) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Succeeded reports whether the token completed without error.
func (s *Status) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && s.err == nil
}

// Err returns the recorded failure, or nil while pending or on success.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the token completes or the context is done.
//
// On completion it returns the recorded error; on context expiry it
// returns the context's error and the token keeps running.
func (s *Status) Wait(ctx context.Context) error {
	select {
	case <-s.doneCh:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete records the outcome. First caller wins; later calls are
// no-ops, so completion is visible exactly once.
func (s *Status) complete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.doneCh)
}

// WaitFor creates a status token that polls dev until it reads target.
//
// The current label is checked synchronously first: a device already at
// the target yields a token that is done before WaitFor returns, with
// no polling delay. Otherwise one background goroutine polls with
// exponential back-off: the interval starts at pollRate/8 (floor 1ms),
// doubles after every miss, and is capped at pollRate. Transient read
// errors do not fail the token; polling continues until the label
// matches or the deadline elapses.
//
// A timeout of zero means no deadline: the poller runs until it
// matches. Bound the wait on the caller's side with Wait(ctx).
func WaitFor(dev Positioner, target Label, timeout, pollRate time.Duration) *Status {
	if pollRate <= 0 {
		pollRate = DefaultPollRate
	}

	st := newStatus(target)

	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	if label, err := dev.Label(ctx); err == nil && label == target {
		st.complete(nil)
		cancel()
		return st
	}

	go st.poll(ctx, cancel, dev, timeout, pollRate)
	return st
}

func (s *Status) poll(ctx context.Context, cancel context.CancelFunc, dev Positioner, timeout, pollRate time.Duration) {
	defer cancel()

	interval := pollRate / 8
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.complete(fmt.Errorf("%w: %q after %v", ErrMoveTimeout, s.target, timeout))
			return
		case <-timer.C:
		}

		label, err := dev.Label(ctx)
		if err == nil && label == s.target {
			s.complete(nil)
			return
		}

		interval *= 2
		if interval > pollRate {
			interval = pollRate
		}
		timer.Reset(interval)
	}
}

// WaitForEvent creates a status token completed by change notifications
// instead of polling.
//
// register installs the given callback into an observer registry (for
// example PVState.OnChange) and returns its unsubscribe function. The
// token completes successfully when the callback sees target, or with
// ErrMoveTimeout when the deadline elapses first; either way the
// callback is unregistered. A timeout of zero means no deadline.
func WaitForEvent(register func(fn func(Label)) (unsubscribe func()), target Label, timeout time.Duration) *Status {
	st := newStatus(target)

	unsubscribe := register(func(label Label) {
		if label == target {
			st.complete(nil)
		}
	})

	go func() {
		defer unsubscribe()

		var deadline <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			deadline = timer.C
		}

		select {
		case <-st.doneCh:
		case <-deadline:
			st.complete(fmt.Errorf("%w: %q after %v", ErrMoveTimeout, target, timeout))
		}
	}()

	return st
}
