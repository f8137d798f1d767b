package device

import "time"

// Device is one inventory row: a named piece of beamline hardware bound
// to a PV prefix and a composite-state table from the catalog.
// This matches the database schema in migrations/20260115_120000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Control-system addressing
	Prefix string  `json:"prefix"`
	IOC    *string `json:"ioc,omitempty"`

	// Classification
	Class    Class   `json:"class"`
	Beamline string  `json:"beamline"`
	Area     *string `json:"area,omitempty"`

	// StateTable names the catalog table deriving this device's
	// composite state.
	StateTable string `json:"state_table"`

	// Metadata is free-form per-device configuration (vendor, z
	// position, aperture size).
	Metadata Metadata `json:"metadata,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// Map fields are cloned so modifications to the copy do not affect
// the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Metadata = deepCopyMap(d.Metadata)

	// Pointer fields (*string) don't need deep copy because strings
	// are immutable in Go.

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives are safe to copy by value.
		return v
	}
}

// Metadata holds free-form device configuration as a JSON map.
//
// Examples:
//   - Gate valve: {"z": 768.5, "vendor": "VAT"}
//   - Attenuator: {"filters": 10, "material": "Si"}
type Metadata map[string]any

// Class identifies the kind of beamline hardware a device is. It
// selects defaults (which state table, which setter) when the inventory
// row does not override them.
type Class string

// Vacuum and beam-protection classes.
const (
	ClassGateValve   Class = "gate_valve"
	ClassStopper     Class = "stopper"
	ClassGaugeSet    Class = "gauge_set"
	ClassIonPump     Class = "ion_pump"
	ClassPulsePicker Class = "pulse_picker"
)

// Attenuation and optics classes.
const (
	ClassAttenuator   Class = "attenuator"
	ClassOffsetMirror Class = "offset_mirror"
	ClassLODCM        Class = "lodcm"
	ClassSlits        Class = "slits"
)

// Diagnostics and motion classes.
const (
	ClassIPM          Class = "ipm"
	ClassPIM          Class = "pim"
	ClassRefLaser     Class = "reflaser"
	ClassMovableStand Class = "movable_stand"
	ClassMotor        Class = "motor"
)

// AllClasses returns all valid device class values.
func AllClasses() []Class {
	return []Class{
		// Vacuum / beam protection
		ClassGateValve, ClassStopper, ClassGaugeSet, ClassIonPump, ClassPulsePicker,
		// Attenuation / optics
		ClassAttenuator, ClassOffsetMirror, ClassLODCM, ClassSlits,
		// Diagnostics / motion
		ClassIPM, ClassPIM, ClassRefLaser, ClassMovableStand, ClassMotor,
	}
}
