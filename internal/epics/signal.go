package epics

import "context"

// Signal is a handle on a single process variable over a Conn.
//
// It carries no state of its own; every operation goes straight to the
// transport. Device components hand out Signals so callers address PVs
// by role ("open_limit") instead of by full name.
type Signal struct {
	conn Conn
	pv   string
}

// NewSignal binds a PV name to a connection.
func NewSignal(conn Conn, pv string) *Signal {
	return &Signal{conn: conn, pv: pv}
}

// PV returns the full process variable name.
func (s *Signal) PV() string {
	return s.pv
}

// Get reads the current value.
func (s *Signal) Get(ctx context.Context) (Reading, error) {
	return s.conn.Get(ctx, s.pv)
}

// Put writes a value.
func (s *Signal) Put(ctx context.Context, value any) error {
	return s.conn.Put(ctx, s.pv, value)
}

// Subscribe registers a monitor callback for value changes.
func (s *Signal) Subscribe(fn MonitorFunc) (Subscription, error) {
	return s.conn.Subscribe(s.pv, fn)
}
