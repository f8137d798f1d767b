package epics

import (
	"context"
	"testing"
)

func TestDevicePrefixConcatenation(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	dev := NewDevice(ioc, "vgc-01", "XCS:SB2:VGC:01")
	sig, err := dev.AddSignal("open_limit", ":OPN_SW")
	if err != nil {
		t.Fatalf("AddSignal failed: %v", err)
	}
	if sig.PV() != "XCS:SB2:VGC:01:OPN_SW" {
		t.Errorf("expected prefix+suffix PV, got %q", sig.PV())
	}
}

func TestDeviceSubDevicePrefix(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	dev := NewDevice(ioc, "sb2", "XCS:SB2")
	child, err := dev.AddDevice("valve", ":VGC:01")
	if err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}
	if child.Prefix() != "XCS:SB2:VGC:01" {
		t.Errorf("expected extended prefix, got %q", child.Prefix())
	}
	if child.Name() != "sb2.valve" {
		t.Errorf("expected dotted child name, got %q", child.Name())
	}

	sig, err := child.AddSignal("open_limit", ":OPN_SW")
	if err != nil {
		t.Fatalf("AddSignal failed: %v", err)
	}
	if sig.PV() != "XCS:SB2:VGC:01:OPN_SW" {
		t.Errorf("grandchild signal PV wrong: %q", sig.PV())
	}
}

func TestDeviceDuplicateComponent(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	dev := NewDevice(ioc, "vgc-01", "XCS:SB2:VGC:01")
	if _, err := dev.AddSignal("open_limit", ":OPN_SW"); err != nil {
		t.Fatalf("first AddSignal failed: %v", err)
	}
	if _, err := dev.AddSignal("open_limit", ":OPN_SW2"); err == nil {
		t.Error("expected error for duplicate signal component")
	}
	if _, err := dev.AddDevice("open_limit", ":SUB"); err == nil {
		t.Error("expected error for component name colliding with signal")
	}
	if _, err := dev.AddSignal("", ":X"); err == nil {
		t.Error("expected error for empty component name")
	}
}

func TestDeviceComponentsOrder(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	dev := NewDevice(ioc, "vgc-01", "XCS:SB2:VGC:01")
	dev.AddSignal("open_limit", ":OPN_SW")
	dev.AddSignal("closed_limit", ":CLS_SW")
	dev.AddDevice("interlock", ":ILK")

	got := dev.Components()
	want := []string{"open_limit", "closed_limit", "interlock"}
	if len(got) != len(want) {
		t.Fatalf("expected %d components, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestDeviceWalk(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()

	dev := NewDevice(ioc, "sb2", "XCS:SB2")
	dev.AddSignal("mode", ":MODE")
	valve, _ := dev.AddDevice("valve", ":VGC:01")
	valve.AddSignal("open_limit", ":OPN_SW")

	var paths []string
	var pvs []string
	dev.Walk(func(path string, sig *Signal) {
		paths = append(paths, path)
		pvs = append(pvs, sig.PV())
	})

	wantPaths := []string{"mode", "valve.open_limit"}
	wantPVs := []string{"XCS:SB2:MODE", "XCS:SB2:VGC:01:OPN_SW"}
	if len(paths) != len(wantPaths) {
		t.Fatalf("expected %d signals, got %d", len(wantPaths), len(paths))
	}
	for i := range wantPaths {
		if paths[i] != wantPaths[i] {
			t.Errorf("path %d: expected %q, got %q", i, wantPaths[i], paths[i])
		}
		if pvs[i] != wantPVs[i] {
			t.Errorf("pv %d: expected %q, got %q", i, wantPVs[i], pvs[i])
		}
	}
}

func TestSignalRoundTrip(t *testing.T) {
	ioc := NewSoftIOC()
	defer ioc.Close()
	ioc.Load(map[string]any{"XCS:SB2:VGC:01:OPN_SW": int64(0)})

	dev := NewDevice(ioc, "vgc-01", "XCS:SB2:VGC:01")
	sig, _ := dev.AddSignal("open_limit", ":OPN_SW")

	if err := sig.Put(context.Background(), int64(1)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	r, err := sig.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if r.Value != int64(1) {
		t.Errorf("expected 1, got %v", r.Value)
	}
}
