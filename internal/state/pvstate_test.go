package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openbeamline/beamcore/internal/epics"
)

// newValveFixture builds a soft IOC plus a PVState for a two-switch gate
// valve. The setter drives the limit switches the way the hardware
// would: commanding a position asserts its switch and clears the other.
func newValveFixture(t *testing.T) (*epics.SoftIOC, *PVState) {
	t.Helper()

	ioc := epics.NewSoftIOC()
	ioc.Load(map[string]any{
		"XCS:SB2:VGC:01:OPN_SW": int64(0),
		"XCS:SB2:VGC:01:CLS_SW": int64(1),
	})

	setter := func(ctx context.Context, target Label) error {
		switch target {
		case "out":
			ioc.SetPV("XCS:SB2:VGC:01:CLS_SW", int64(0))
			ioc.SetPV("XCS:SB2:VGC:01:OPN_SW", int64(1))
		case "in":
			ioc.SetPV("XCS:SB2:VGC:01:OPN_SW", int64(0))
			ioc.SetPV("XCS:SB2:VGC:01:CLS_SW", int64(1))
		}
		return nil
	}

	table := mustTable(t, valveSpec())
	dev, err := NewPVState(ioc, "vgc-sb2-01", "XCS:SB2:VGC:01", table, PVStateOptions{
		Setter:      setter,
		PollRate:    5 * time.Millisecond,
		MoveTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewPVState failed: %v", err)
	}
	t.Cleanup(func() {
		dev.Close()
		ioc.Close()
	})
	return ioc, dev
}

func TestPVStateLabelFromSignals(t *testing.T) {
	_, dev := newValveFixture(t)

	label, err := dev.Label(context.Background())
	if err != nil {
		t.Fatalf("Label failed: %v", err)
	}
	if label != "in" {
		t.Errorf("expected in, got %q", label)
	}
}

func TestPVStateCachedStateFollowsMonitors(t *testing.T) {
	ioc, dev := newValveFixture(t)

	// Monitors replayed initial values at construction.
	if got := dev.State(); got != "in" {
		t.Fatalf("initial cached state: expected in, got %q", got)
	}

	ioc.SetPV("XCS:SB2:VGC:01:CLS_SW", int64(0))
	ioc.SetPV("XCS:SB2:VGC:01:OPN_SW", int64(1))
	if got := dev.State(); got != "out" {
		t.Errorf("after switch flip: expected out, got %q", got)
	}

	// Both switches asserted: disagreement, unknown.
	ioc.SetPV("XCS:SB2:VGC:01:CLS_SW", int64(1))
	if got := dev.State(); got != LabelUnknown {
		t.Errorf("disagreeing switches: expected unknown, got %q", got)
	}
}

func TestPVStateMoveCompletes(t *testing.T) {
	_, dev := newValveFixture(t)

	st, err := dev.Move(context.Background(), "out")
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Wait(ctx); err != nil {
		t.Fatalf("move did not complete: %v", err)
	}
	if !st.Succeeded() {
		t.Error("move token should report success")
	}

	label, _ := dev.Label(context.Background())
	if label != "out" {
		t.Errorf("device should read out after move, got %q", label)
	}
}

func TestPVStateMoveAlreadyAtTarget(t *testing.T) {
	_, dev := newValveFixture(t)

	st, err := dev.Move(context.Background(), "in")
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !st.Done() || !st.Succeeded() {
		t.Error("moving to the current position should complete immediately")
	}
}

func TestPVStateMoveValidation(t *testing.T) {
	_, dev := newValveFixture(t)

	if _, err := dev.Move(context.Background(), "sideways"); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("expected ErrUnknownLabel, got %v", err)
	}
	if _, err := dev.Move(context.Background(), LabelUnknown); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("unknown is not a move target, got %v", err)
	}
	if _, err := dev.Move(context.Background(), LabelDefer); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("defer is not a move target, got %v", err)
	}
}

func TestPVStateReadOnly(t *testing.T) {
	ioc := epics.NewSoftIOC()
	defer ioc.Close()
	ioc.Load(map[string]any{
		"XCS:SB2:VGC:02:OPN_SW": int64(1),
		"XCS:SB2:VGC:02:CLS_SW": int64(0),
	})

	table := mustTable(t, valveSpec())
	dev, err := NewPVState(ioc, "vgc-sb2-02", "XCS:SB2:VGC:02", table, PVStateOptions{})
	if err != nil {
		t.Fatalf("NewPVState failed: %v", err)
	}
	defer dev.Close()

	if _, err := dev.Move(context.Background(), "in"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestPVStateObservers(t *testing.T) {
	ioc, dev := newValveFixture(t)

	var mu sync.Mutex
	var transitions [][2]Label
	unsubscribe := dev.OnChange(func(from, to Label) {
		mu.Lock()
		transitions = append(transitions, [2]Label{from, to})
		mu.Unlock()
	})

	ioc.SetPV("XCS:SB2:VGC:01:CLS_SW", int64(0))
	ioc.SetPV("XCS:SB2:VGC:01:OPN_SW", int64(1))

	mu.Lock()
	got := append([][2]Label(nil), transitions...)
	mu.Unlock()

	// in -> unknown (closed switch dropped) -> out (open switch set).
	want := [][2]Label{{"in", LabelUnknown}, {LabelUnknown, "out"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	unsubscribe()
	ioc.SetPV("XCS:SB2:VGC:01:OPN_SW", int64(0))
	mu.Lock()
	after := len(transitions)
	mu.Unlock()
	if after != len(want) {
		t.Error("observer fired after unsubscribe")
	}
	unsubscribe() // second call is a no-op
}

func TestPVStateMoveWithEventToken(t *testing.T) {
	_, dev := newValveFixture(t)

	st := WaitForEvent(func(fn func(Label)) func() {
		return dev.OnChange(func(_, to Label) { fn(to) })
	}, "out", time.Second)

	if _, err := dev.Move(context.Background(), "out"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Wait(ctx); err != nil {
		t.Fatalf("event token did not complete: %v", err)
	}
}
