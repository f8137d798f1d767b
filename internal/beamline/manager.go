package beamline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openbeamline/beamcore/internal/device"
	"github.com/openbeamline/beamcore/internal/epics"
	"github.com/openbeamline/beamcore/internal/state"
)

// Transition is one observed composite-state change, as fanned out to
// sinks.
type Transition struct {
	DeviceID string      `json:"device_id"`
	Slug     string      `json:"slug"`
	From     state.Label `json:"from"`
	To       state.Label `json:"to"`
}

// TransitionSink receives every composite-state transition. Sinks must
// not block; they are called from monitor goroutines.
type TransitionSink interface {
	StateTransition(t Transition)
}

// Archiver is the time-series surface the manager writes transitions
// to. Satisfied by the influxdb client; nil disables trending.
type Archiver interface {
	WriteStateTransition(deviceID, fromState, toState string)
}

// Logger is the logging surface the manager needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ManagerOptions wires the manager's collaborators.
type ManagerOptions struct {
	// PollRate is the steady-state move-token polling interval.
	PollRate time.Duration

	// MoveTimeout bounds move tokens.
	MoveTimeout time.Duration

	// History records transitions locally. Nil disables the audit trail.
	History device.StateHistoryRepository

	// Archiver trends transitions. Nil disables trending.
	Archiver Archiver

	// Sinks receive every transition (websocket hub, tests).
	Sinks []TransitionSink

	Logger Logger
}

type positioner struct {
	dev   device.Device
	pv    *state.PVState
	unsub func()
}

// Manager builds live positioners from the device inventory and owns
// their subscriptions, fanning every composite-state transition out to
// history, the archiver, and registered sinks.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	conn     epics.Conn
	registry *device.Registry
	opts     ManagerOptions
	tables   map[string]*state.Table

	mu          sync.RWMutex
	positioners map[string]*positioner
}

// NewManager validates the catalog and prepares an empty manager.
func NewManager(conn epics.Conn, registry *device.Registry, opts ManagerOptions) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	tables := make(map[string]*state.Table)
	for name, spec := range StandardTables() {
		table, err := state.NewTable(spec)
		if err != nil {
			return nil, fmt.Errorf("beamline: catalog table %q: %w", name, err)
		}
		tables[name] = table
	}

	return &Manager{
		conn:        conn,
		registry:    registry,
		opts:        opts,
		tables:      tables,
		positioners: make(map[string]*positioner),
	}, nil
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Start builds one positioner per inventory row and begins monitoring.
//
// A row naming an unknown state table is skipped with a warning rather
// than failing the whole beamline.
func (m *Manager) Start(ctx context.Context) error {
	devices, err := m.registry.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("beamline: listing devices: %w", err)
	}

	for i := range devices {
		dev := devices[i]
		if err := m.addPositioner(dev); err != nil {
			m.opts.Logger.Warn("skipping device", "slug", dev.Slug, "error", err)
		}
	}

	m.mu.RLock()
	count := len(m.positioners)
	m.mu.RUnlock()
	m.opts.Logger.Info("beamline started", "devices", count)
	return nil
}

func (m *Manager) addPositioner(dev device.Device) error {
	table, ok := m.tables[dev.StateTable]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, dev.StateTable)
	}

	pv, err := state.NewPVState(m.conn, dev.Slug, dev.Prefix, table, state.PVStateOptions{
		Setter:      setterFor(m.conn, dev.Class, dev.Prefix),
		PollRate:    m.opts.PollRate,
		MoveTimeout: m.opts.MoveTimeout,
	})
	if err != nil {
		return err
	}

	p := &positioner{dev: dev, pv: pv}
	p.unsub = pv.OnChange(func(from, to state.Label) {
		m.handleTransition(dev, from, to)
	})

	m.mu.Lock()
	m.positioners[dev.Slug] = p
	m.mu.Unlock()
	return nil
}

func (m *Manager) handleTransition(dev device.Device, from, to state.Label) {
	m.opts.Logger.Info("state transition", "slug", dev.Slug, "from", string(from), "to", string(to))

	if m.opts.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.opts.History.RecordTransition(ctx, dev.ID, string(from), string(to), device.StateHistorySourceMonitor); err != nil {
			m.opts.Logger.Error("recording transition failed", "slug", dev.Slug, "error", err)
		}
		cancel()
	}

	if m.opts.Archiver != nil {
		m.opts.Archiver.WriteStateTransition(dev.ID, string(from), string(to))
	}

	t := Transition{DeviceID: dev.ID, Slug: dev.Slug, From: from, To: to}
	for _, sink := range m.opts.Sinks {
		sink.StateTransition(t)
	}
}

// Devices returns the inventory rows with live positioners.
func (m *Manager) Devices() []device.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]device.Device, 0, len(m.positioners))
	for _, p := range m.positioners {
		out = append(out, *p.dev.DeepCopy())
	}
	return out
}

// State returns the cached composite label for a device, from the
// latest monitor updates.
func (m *Manager) State(slug string) (state.Label, error) {
	p, err := m.lookup(slug)
	if err != nil {
		return state.LabelUnknown, err
	}
	return p.pv.State(), nil
}

// Label reads a fresh composite label from the transport.
func (m *Manager) Label(ctx context.Context, slug string) (state.Label, error) {
	p, err := m.lookup(slug)
	if err != nil {
		return state.LabelUnknown, err
	}
	return p.pv.Label(ctx)
}

// Labels returns the enumerated move targets for a device.
func (m *Manager) Labels(slug string) ([]state.Label, error) {
	p, err := m.lookup(slug)
	if err != nil {
		return nil, err
	}
	return p.pv.Labels(), nil
}

// Move commands a device toward target and returns the completion
// token. Validation errors (unknown slug, unknown label, read-only
// class) surface here at call time.
func (m *Manager) Move(ctx context.Context, slug string, target state.Label) (*state.Status, error) {
	p, err := m.lookup(slug)
	if err != nil {
		return nil, err
	}

	st, err := p.pv.Move(ctx, target)
	if err != nil {
		return nil, err
	}

	if m.opts.History != nil {
		if herr := m.opts.History.RecordTransition(ctx, p.dev.ID, string(p.pv.State()), string(target), device.StateHistorySourceMove); herr != nil {
			m.opts.Logger.Error("recording move failed", "slug", slug, "error", herr)
		}
	}
	return st, nil
}

// Close tears down every positioner's subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	positioners := m.positioners
	m.positioners = make(map[string]*positioner)
	m.mu.Unlock()

	for _, p := range positioners {
		p.unsub()
		p.pv.Close()
	}
}

func (m *Manager) lookup(slug string) (*positioner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positioners[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, slug)
	}
	return p, nil
}
