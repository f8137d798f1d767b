package epics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbeamline/beamcore/internal/infrastructure/mqtt"
)

// wireSample is the JSON payload the channel-access gateway publishes on
// epics/value/{pv} and accepts on epics/put/{pv}.
type wireSample struct {
	Value     any    `json:"value"`
	Severity  int    `json:"severity,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Gateway is a Conn backed by an MQTT channel-access gateway.
//
// The gateway bridge publishes every PV update to epics/value/{pv} as a
// retained message, so the broker replays last-known values on connect.
// Writes go out on epics/put/{pv} and the bridge performs the actual
// caput. One wildcard subscription on epics/value/+ feeds an in-memory
// cache plus per-PV monitor registries.
//
// Thread Safety: all methods are safe for concurrent use.
type Gateway struct {
	client *mqtt.Client
	topics mqtt.Topics
	qos    byte

	mu      sync.RWMutex
	cache   map[string]Reading
	subs    map[string]map[string]MonitorFunc
	waiters map[string][]chan Reading
	closed  bool
}

// NewGateway builds a gateway Conn over a connected MQTT client and
// subscribes to the value firehose.
func NewGateway(client *mqtt.Client, qos byte) (*Gateway, error) {
	g := &Gateway{
		client:  client,
		qos:     qos,
		cache:   make(map[string]Reading),
		subs:    make(map[string]map[string]MonitorFunc),
		waiters: make(map[string][]chan Reading),
	}
	if err := client.Subscribe(g.topics.AllValues(), qos, g.handleValue); err != nil {
		return nil, fmt.Errorf("epics: subscribe to value topics: %w", err)
	}
	return g, nil
}

// handleValue decodes one gateway sample and fans it out to the cache,
// monitors, and any Get calls waiting on a first value.
func (g *Gateway) handleValue(topic string, payload []byte) error {
	pv := mqtt.PVFromValueTopic(topic)
	if pv == "" {
		return fmt.Errorf("epics: unexpected value topic %q", topic)
	}
	r, err := decodeSample(pv, payload)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.cache[pv] = r
	fns := make([]MonitorFunc, 0, len(g.subs[pv]))
	for _, fn := range g.subs[pv] {
		fns = append(fns, fn)
	}
	pending := g.waiters[pv]
	delete(g.waiters, pv)
	g.mu.Unlock()

	for _, ch := range pending {
		ch <- r
	}
	for _, fn := range fns {
		fn(r)
	}
	return nil
}

// Get returns the cached value for a PV, waiting for the first gateway
// sample when none has arrived yet. Callers bound the wait with the
// context; expiry maps to ErrGetTimeout.
func (g *Gateway) Get(ctx context.Context, pv string) (Reading, error) {
	if pv == "" {
		return Reading{}, ErrInvalidPV
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Reading{}, ErrConnClosed
	}
	if r, ok := g.cache[pv]; ok {
		g.mu.Unlock()
		return r, nil
	}
	// Buffered so a late delivery never blocks the handler.
	ch := make(chan Reading, 1)
	g.waiters[pv] = append(g.waiters[pv], ch)
	g.mu.Unlock()

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		g.dropWaiter(pv, ch)
		return Reading{}, fmt.Errorf("%w: %s", ErrGetTimeout, pv)
	}
}

func (g *Gateway) dropWaiter(pv string, ch chan Reading) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pending := g.waiters[pv]
	for i, c := range pending {
		if c == ch {
			g.waiters[pv] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(g.waiters[pv]) == 0 {
		delete(g.waiters, pv)
	}
}

// Put publishes a write request for the gateway bridge to apply.
func (g *Gateway) Put(ctx context.Context, pv string, value any) error {
	if pv == "" {
		return ErrInvalidPV
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return ErrConnClosed
	}

	payload, err := json.Marshal(wireSample{
		Value:     value,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("epics: encode put for %s: %w", pv, err)
	}
	return g.client.Publish(g.topics.Put(pv), payload, g.qos, false)
}

// Subscribe registers a monitor for a PV. A cached value fires the
// callback immediately, matching channel-access monitor semantics.
func (g *Gateway) Subscribe(pv string, fn MonitorFunc) (Subscription, error) {
	if pv == "" {
		return nil, ErrInvalidPV
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrConnClosed
	}
	id := uuid.NewString()
	if g.subs[pv] == nil {
		g.subs[pv] = make(map[string]MonitorFunc)
	}
	g.subs[pv][id] = fn
	current, hasValue := g.cache[pv]
	g.mu.Unlock()

	if hasValue {
		fn(current)
	}
	return &gatewaySubscription{gw: g, pv: pv, id: id}, nil
}

// Close drops the wildcard subscription and all local monitors.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.subs = make(map[string]map[string]MonitorFunc)
	g.waiters = make(map[string][]chan Reading)
	g.mu.Unlock()

	return g.client.Unsubscribe(g.topics.AllValues())
}

type gatewaySubscription struct {
	gw   *Gateway
	pv   string
	id   string
	once sync.Once
}

func (sub *gatewaySubscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.gw.mu.Lock()
		defer sub.gw.mu.Unlock()
		if fns := sub.gw.subs[sub.pv]; fns != nil {
			delete(fns, sub.id)
			if len(fns) == 0 {
				delete(sub.gw.subs, sub.pv)
			}
		}
	})
}

// decodeSample parses one gateway payload into a Reading. Numbers decode
// through json.Number so integer channels stay integral instead of
// collapsing to float64.
func decodeSample(pv string, payload []byte) (Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var sample wireSample
	if err := dec.Decode(&sample); err != nil {
		return Reading{}, fmt.Errorf("epics: decode sample for %s: %w", pv, err)
	}

	r := Reading{
		PV:       pv,
		Value:    normalizeWireValue(sample.Value),
		Severity: Severity(sample.Severity),
	}
	if sample.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, sample.Timestamp); err == nil {
			r.Timestamp = ts
		}
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return r, nil
}

func normalizeWireValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
