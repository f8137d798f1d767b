package beamline

import (
	"context"
	"fmt"

	"github.com/openbeamline/beamcore/internal/device"
	"github.com/openbeamline/beamcore/internal/epics"
	"github.com/openbeamline/beamcore/internal/state"
)

// Catalog state-table names referenced by inventory rows.
const (
	TableOpenClosed = "open_closed"
	TableInOut      = "in_out"
)

// StandardTables returns the built-in state tables.
//
// open_closed is the two-limit-switch pattern used by gate valves and
// pulse pickers: each switch either defers or claims a position, so a
// valve mid-travel (neither switch) or jammed (both switches) reads
// unknown. in_out is the same pattern for insertable diagnostics and
// stoppers.
func StandardTables() map[string]state.TableSpec {
	return map[string]state.TableSpec{
		TableOpenClosed: {
			Name: TableOpenClosed,
			Entries: []state.EntrySpec{
				{Name: "open", Suffix: ":OPN_SW", Interp: map[any]state.Label{0: state.LabelDefer, 1: "out"}},
				{Name: "closed", Suffix: ":CLS_SW", Interp: map[any]state.Label{0: state.LabelDefer, 1: "in"}},
			},
		},
		TableInOut: {
			Name: TableInOut,
			Entries: []state.EntrySpec{
				{Name: "in", Suffix: ":IN_SW", Interp: map[any]state.Label{0: state.LabelDefer, 1: "in"}},
				{Name: "out", Suffix: ":OUT_SW", Interp: map[any]state.Label{0: state.LabelDefer, 1: "out"}},
			},
		},
	}
}

// command is one label's drive action: write value to prefix+suffix.
type command struct {
	suffix string
	value  any
}

// classCommands maps each controllable class to its per-label command
// PVs. Classes absent here are read-only: their devices report state
// but refuse moves.
var classCommands = map[device.Class]map[state.Label]command{
	device.ClassGateValve: {
		"out": {suffix: ":OPN_DO", value: int64(1)},
		"in":  {suffix: ":CLS_DO", value: int64(1)},
	},
	device.ClassPulsePicker: {
		"out": {suffix: ":OPN_DO", value: int64(1)},
		"in":  {suffix: ":CLS_DO", value: int64(1)},
	},
	device.ClassStopper: {
		"in":  {suffix: ":CMD", value: int64(0)},
		"out": {suffix: ":CMD", value: int64(1)},
	},
	device.ClassRefLaser: {
		"in":  {suffix: ":INSERT", value: int64(1)},
		"out": {suffix: ":INSERT", value: int64(0)},
	},
	device.ClassPIM: {
		"in":  {suffix: ":INSERT", value: int64(1)},
		"out": {suffix: ":INSERT", value: int64(0)},
	},
}

// setterFor builds the drive function for a device, or nil when its
// class is read-only.
func setterFor(conn epics.Conn, class device.Class, prefix string) state.Setter {
	commands, ok := classCommands[class]
	if !ok {
		return nil
	}
	return func(ctx context.Context, target state.Label) error {
		cmd, ok := commands[target]
		if !ok {
			return fmt.Errorf("beamline: class %s cannot drive to %q", class, target)
		}
		return conn.Put(ctx, prefix+cmd.suffix, cmd.value)
	}
}
