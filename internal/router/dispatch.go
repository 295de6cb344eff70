package router

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rickgao/eventstream/internal/connection"
	"github.com/rickgao/eventstream/internal/metrics"
)

// Dispatcher delivers frames and connection changes to registry entries.
// It implements connection.Sink.
type Dispatcher struct {
	registry *Registry
	clock    connection.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending map[*pendingCall]struct{}
	closed  bool
}

var _ connection.Sink = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock sets the clock used for debounce timers.
func WithClock(c connection.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		clock:    connection.RealClock(),
		logger:   slog.Default(),
		pending:  make(map[*pendingCall]struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}

	return d
}

// Frame implements connection.Sink.
func (d *Dispatcher) Frame(data []byte) { d.Dispatch(data) }

// ConnectionChanged implements connection.Sink.
func (d *Dispatcher) ConnectionChanged(up bool) { d.Broadcast(up) }

// Dispatch decodes one frame and invokes every matching subscription.
// Frames that are not a JSON array whose first element carries meta are
// dropped.
func (d *Dispatcher) Dispatch(frame []byte) {
	if !gjson.ValidBytes(frame) {
		d.drop("malformed", frame)
		return
	}

	root := gjson.ParseBytes(frame)
	if !root.IsArray() {
		d.drop("not_array", frame)
		return
	}

	first := root.Get("0")
	if !first.IsObject() {
		d.drop("no_payload", frame)
		return
	}

	meta := first.Get("meta")
	if !meta.Exists() || meta.Type == gjson.Null {
		d.drop("no_meta", frame)
		return
	}

	subs := d.registry.Snapshot()
	if len(subs) == 0 {
		d.drop("no_subscribers", frame)
		return
	}

	p := Payload{
		Type:    first.Get("type").String(),
		Action:  meta.Get("action").String(),
		HasMeta: true,
		Raw:     json.RawMessage(first.Raw),
	}

	for _, s := range subs {
		if matches(s.Event, p) {
			d.deliver(s, p)
		}
	}
}

// matches applies the type override first, then the action match.
func matches(event string, p Payload) bool {
	if isBroadcastType(p.Type) && event == p.Type {
		return true
	}
	return p.Action != "" && p.Action == event
}

// Broadcast sends {"connected": up} to EventConnected or EventDisconnected
// subscribers.
func (d *Dispatcher) Broadcast(up bool) {
	raw, err := sjson.SetBytes([]byte(`{}`), "connected", up)
	if err != nil {
		d.logger.Error("failed to build connection payload", "error", err)
		return
	}

	event := EventDisconnected
	if up {
		event = EventConnected
	}
	p := Payload{Action: event, Raw: raw}

	for _, s := range d.registry.Snapshot() {
		if s.Event == event {
			d.deliver(s, p)
		}
	}
}

// Close stops pending debounce timers. Later debounced deliveries are
// dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for t := range d.pending {
		t.timer.Stop()
	}
	clear(d.pending)
}

type pendingCall struct {
	timer connection.Timer
}

func (d *Dispatcher) deliver(s Subscription, p Payload) {
	if s.Debounce <= 0 {
		d.invoke(s, p, false)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	t := &pendingCall{}
	t.timer = d.clock.AfterFunc(s.Debounce, func() {
		d.mu.Lock()
		_, live := d.pending[t]
		delete(d.pending, t)
		d.mu.Unlock()
		if !live {
			return
		}

		// Skip deliveries whose subscription was revoked while waiting.
		if _, ok := d.registry.Lookup(s.ID); !ok {
			return
		}
		d.invoke(s, p, true)
	})
	d.pending[t] = struct{}{}
}

// invoke runs one handler, containing any panic.
func (d *Dispatcher) invoke(s Subscription, p Payload, debounced bool) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanicked()
			d.logger.Error("handler panicked",
				"handler_id", s.ID,
				"event", s.Event,
				"panic", r,
			)
		}
	}()

	d.metrics.Dispatched(debounced)
	s.Handler(p)
}

func (d *Dispatcher) drop(reason string, frame []byte) {
	d.metrics.FrameDropped(reason)
	d.logger.Debug("dropping frame", "reason", reason, "size", len(frame))
}
