package epics

import (
	"context"
	"errors"
	"testing"
)

func TestSoftIOCGetUnknownPV(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	_, err := ioc.Get(context.Background(), "XCS:NO:SUCH:PV")
	if !errors.Is(err, ErrNoSuchPV) {
		t.Errorf("expected ErrNoSuchPV, got %v", err)
	}
}

func TestSoftIOCPutThenGet(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()
	ioc.Load(map[string]any{"XCS:SB2:VGC:01:OPN_SW": int64(0)})

	if err := ioc.Put(context.Background(), "XCS:SB2:VGC:01:OPN_SW", int64(1)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	r, err := ioc.Get(context.Background(), "XCS:SB2:VGC:01:OPN_SW")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if r.Value != int64(1) {
		t.Errorf("expected value 1, got %v", r.Value)
	}
	if r.PV != "XCS:SB2:VGC:01:OPN_SW" {
		t.Errorf("expected PV name on reading, got %q", r.PV)
	}
}

func TestSoftIOCPutUnknownPV(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	err := ioc.Put(context.Background(), "XCS:NO:SUCH:PV", int64(1))
	if !errors.Is(err, ErrNoSuchPV) {
		t.Errorf("expected ErrNoSuchPV, got %v", err)
	}
}

func TestSoftIOCSubscribeImmediateValue(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()
	ioc.Load(map[string]any{"XCS:SB2:STP:CLOSE": int64(1)})

	var got []Reading
	sub, err := ioc.Subscribe("XCS:SB2:STP:CLOSE", func(r Reading) {
		got = append(got, r)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	// Monitors replay the current value on registration.
	if len(got) != 1 || got[0].Value != int64(1) {
		t.Fatalf("expected immediate callback with current value, got %v", got)
	}
}

func TestSoftIOCSubscribeNotifiesOnChange(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	var got []Reading
	sub, err := ioc.Subscribe("XCS:SB2:VGC:01:POS", func(r Reading) {
		got = append(got, r)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ioc.SetPV("XCS:SB2:VGC:01:POS", int64(0))
	ioc.SetPV("XCS:SB2:VGC:01:POS", int64(1))

	if len(got) != 2 {
		t.Fatalf("expected 2 callbacks, got %d", len(got))
	}
	if got[1].Value != int64(1) {
		t.Errorf("expected last value 1, got %v", got[1].Value)
	}

	sub.Unsubscribe()
	ioc.SetPV("XCS:SB2:VGC:01:POS", int64(2))
	if len(got) != 2 {
		t.Errorf("callback fired after unsubscribe")
	}
	// Second Unsubscribe is a no-op.
	sub.Unsubscribe()
}

func TestSoftIOCPutHook(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()
	ioc.Load(map[string]any{
		"XCS:SB2:VGC:01:OPN_SW": int64(0),
		"XCS:SB2:VGC:01:CLS_SW": int64(1),
	})

	// Emulate valve record logic: writing the command PV flips the
	// limit switches.
	ioc.SetPutHook("XCS:SB2:VGC:01:OPN_DO", func(s *SoftIOC, pv string, value any) {
		if value == int64(1) {
			s.SetPV("XCS:SB2:VGC:01:CLS_SW", int64(0))
			s.SetPV("XCS:SB2:VGC:01:OPN_SW", int64(1))
		}
	})

	if err := ioc.Put(context.Background(), "XCS:SB2:VGC:01:OPN_DO", int64(1)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	r, _ := ioc.Get(context.Background(), "XCS:SB2:VGC:01:OPN_SW")
	if r.Value != int64(1) {
		t.Errorf("hook did not drive open switch, got %v", r.Value)
	}
	r, _ = ioc.Get(context.Background(), "XCS:SB2:VGC:01:CLS_SW")
	if r.Value != int64(0) {
		t.Errorf("hook did not clear closed switch, got %v", r.Value)
	}
}

func TestSoftIOCClosedConn(t *testing.T) {
	ioc := NewSoftIOC()
	ioc.Load(map[string]any{"XCS:TST:PV": int64(0)})
	if err := ioc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := ioc.Get(context.Background(), "XCS:TST:PV"); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Get after close: expected ErrConnClosed, got %v", err)
	}
	if err := ioc.Put(context.Background(), "XCS:TST:PV", int64(1)); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Put after close: expected ErrConnClosed, got %v", err)
	}
	if _, err := ioc.Subscribe("XCS:TST:PV", func(Reading) {}); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Subscribe after close: expected ErrConnClosed, got %v", err)
	}
}

func TestSoftIOCCancelledContext(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()
	ioc.Load(map[string]any{"XCS:TST:PV": int64(0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ioc.Get(ctx, "XCS:TST:PV"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
