package epics

import "fmt"

// Device is a named group of signals and sub-devices sharing a PV prefix.
//
// Components are attached with a suffix; the full PV name is the device
// prefix concatenated with the suffix, so a device at "XCS:SB2:VGC:01"
// with a signal suffix ":OPN_SW" owns PV "XCS:SB2:VGC:01:OPN_SW".
// Sub-devices extend the prefix the same way.
//
// Devices are assembled once during setup and read-only afterwards, so
// no locking is done here.
type Device struct {
	conn   Conn
	name   string
	prefix string

	signals  map[string]*Signal
	children map[string]*Device
	order    []string
}

// NewDevice creates an empty device rooted at the given PV prefix.
func NewDevice(conn Conn, name, prefix string) *Device {
	return &Device{
		conn:     conn,
		name:     name,
		prefix:   prefix,
		signals:  make(map[string]*Signal),
		children: make(map[string]*Device),
	}
}

// Name returns the device's display name.
func (d *Device) Name() string {
	return d.name
}

// Prefix returns the device's PV prefix.
func (d *Device) Prefix() string {
	return d.prefix
}

// AddSignal attaches a signal component at prefix+suffix.
//
// Returns an error if the component name is already taken.
func (d *Device) AddSignal(component, suffix string) (*Signal, error) {
	if err := d.checkComponent(component); err != nil {
		return nil, err
	}
	sig := NewSignal(d.conn, d.prefix+suffix)
	d.signals[component] = sig
	d.order = append(d.order, component)
	return sig, nil
}

// AddDevice attaches a sub-device component at prefix+suffix.
func (d *Device) AddDevice(component, suffix string) (*Device, error) {
	if err := d.checkComponent(component); err != nil {
		return nil, err
	}
	child := NewDevice(d.conn, d.name+"."+component, d.prefix+suffix)
	d.children[component] = child
	d.order = append(d.order, component)
	return child, nil
}

// Signal looks up a signal component by name.
func (d *Device) Signal(component string) (*Signal, bool) {
	sig, ok := d.signals[component]
	return sig, ok
}

// Child looks up a sub-device component by name.
func (d *Device) Child(component string) (*Device, bool) {
	child, ok := d.children[component]
	return child, ok
}

// Components returns component names in attachment order.
func (d *Device) Components() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Walk calls fn for every signal in the device tree, depth-first in
// attachment order. The path is dot-joined component names relative to
// the receiver.
func (d *Device) Walk(fn func(path string, sig *Signal)) {
	d.walk("", fn)
}

func (d *Device) walk(base string, fn func(string, *Signal)) {
	for _, name := range d.order {
		path := name
		if base != "" {
			path = base + "." + name
		}
		if sig, ok := d.signals[name]; ok {
			fn(path, sig)
			continue
		}
		d.children[name].walk(path, fn)
	}
}

func (d *Device) checkComponent(component string) error {
	if component == "" {
		return fmt.Errorf("epics: empty component name on device %q", d.name)
	}
	if _, dup := d.signals[component]; dup {
		return fmt.Errorf("epics: duplicate component %q on device %q", component, d.name)
	}
	if _, dup := d.children[component]; dup {
		return fmt.Errorf("epics: duplicate component %q on device %q", component, d.name)
	}
	return nil
}
