package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePositioner serves a scripted sequence of labels, holding the last
// one once the script runs out.
type fakePositioner struct {
	mu     sync.Mutex
	labels []Label
	calls  int
}

func (f *fakePositioner) Label(ctx context.Context) (Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	i := f.calls - 1
	if i >= len(f.labels) {
		i = len(f.labels) - 1
	}
	return f.labels[i], nil
}

func (f *fakePositioner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestWaitForImmediateSuccess(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"in"}}

	st := WaitFor(dev, "in", time.Second, 10*time.Millisecond)

	// Done before any polling delay could have elapsed.
	if !st.Done() {
		t.Fatal("token should be done synchronously when already at target")
	}
	if !st.Succeeded() {
		t.Error("token should report success")
	}
	if st.Err() != nil {
		t.Errorf("unexpected error: %v", st.Err())
	}
	if dev.callCount() != 1 {
		t.Errorf("expected a single read, got %d", dev.callCount())
	}
}

func TestWaitForEventualSuccess(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"unknown", "unknown", "unknown", "in"}}

	st := WaitFor(dev, "in", time.Second, 5*time.Millisecond)
	if st.Done() {
		t.Fatal("token should not be done before the device reaches the target")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := st.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if !st.Succeeded() {
		t.Error("token should report success after match")
	}
}

func TestWaitForTimeout(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"out"}}

	timeout := 60 * time.Millisecond
	start := time.Now()
	st := WaitFor(dev, "in", timeout, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := st.Wait(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrMoveTimeout) {
		t.Fatalf("expected ErrMoveTimeout, got %v", err)
	}
	if !st.Done() || st.Succeeded() {
		t.Error("token should be done and unsuccessful")
	}
	if elapsed < timeout {
		t.Errorf("token completed before the deadline: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+200*time.Millisecond {
		t.Errorf("token completed far after the deadline: %v", elapsed)
	}
}

func TestWaitForBackoffReachesSteadyRate(t *testing.T) {
	// With a 40ms poll rate the back-off runs 5, 10, 20, 40, 40...ms;
	// within 300ms the unreachable target should see well under the
	// 60 polls a fixed 5ms interval would make.
	dev := &fakePositioner{labels: []Label{"out"}}
	st := WaitFor(dev, "in", 300*time.Millisecond, 40*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st.Wait(ctx)

	if n := dev.callCount(); n > 15 {
		t.Errorf("expected back-off to throttle polling, got %d reads", n)
	}
}

func TestStatusWaitContextCancel(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"out"}}
	st := WaitFor(dev, "in", time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := st.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	// The token itself keeps running; it is not cancelled by Wait.
	if st.Done() {
		t.Error("abandoning Wait must not complete the token")
	}
}

func TestStatusConcurrentQueries(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"unknown", "in"}}
	st := WaitFor(dev, "in", time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := st.Wait(ctx); err != nil {
				t.Errorf("wait failed: %v", err)
			}
			if !st.Done() || !st.Succeeded() {
				t.Error("inconsistent completion observed")
			}
		}()
	}
	wg.Wait()
}

func TestWaitForZeroPollRateDefaults(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"unknown", "in"}}
	st := WaitFor(dev, "in", time.Second, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Wait(ctx); err != nil {
		t.Fatalf("wait with default poll rate failed: %v", err)
	}
}

func TestStatusTarget(t *testing.T) {
	dev := &fakePositioner{labels: []Label{"in"}}
	st := WaitFor(dev, "in", time.Second, time.Millisecond)
	if st.Target() != "in" {
		t.Errorf("Target() = %q, want in", st.Target())
	}
}

func TestWaitForEventSuccess(t *testing.T) {
	var mu sync.Mutex
	var observer func(Label)
	unsubscribed := false

	register := func(fn func(Label)) func() {
		mu.Lock()
		observer = fn
		mu.Unlock()
		return func() {
			mu.Lock()
			unsubscribed = true
			mu.Unlock()
		}
	}

	st := WaitForEvent(register, "in", time.Second)
	if st.Done() {
		t.Fatal("token should not be done before any event")
	}

	mu.Lock()
	fn := observer
	mu.Unlock()
	fn("out")
	if st.Done() {
		t.Fatal("non-matching event must not complete the token")
	}
	fn("in")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := st.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if !st.Succeeded() {
		t.Error("token should report success")
	}

	// Completion tears the observer down.
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := unsubscribed
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("observer was not unsubscribed after completion")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitForEventTimeout(t *testing.T) {
	register := func(fn func(Label)) func() {
		return func() {}
	}

	st := WaitForEvent(register, "in", 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := st.Wait(ctx)
	if !errors.Is(err, ErrMoveTimeout) {
		t.Fatalf("expected ErrMoveTimeout, got %v", err)
	}
}
