package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/eventstream/internal/metrics"
)

// Manager keeps one WebSocket alive while subscriptions exist.
//
// All state is guarded by mu. Socket callbacks carry the generation of the
// dial that produced them; callbacks from superseded sockets are ignored, so
// at most one socket is ever connecting or open.
type Manager struct {
	cfg       ManagerConfig
	provider  Provider
	dialer    Dialer
	sink      Sink
	listeners Listeners
	clock     Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	seq       *Sequence

	mu              sync.Mutex
	started         bool
	closed          bool
	status          Status
	gen             uint64
	socket          Socket
	opened          chan struct{} // Closed when the current socket opens
	socketDone      chan struct{} // Closed when the current socket reports close
	connectionID    string
	lastHeartbeatAt time.Time
	nextRetryAt     time.Time
	closeReason     string

	retryTimer   Timer
	staleTimer   Timer
	refreshTimer Timer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source.
func WithClock(c Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithBackoff sets the reconnect wait policy.
func WithBackoff(b Backoff) ManagerOption {
	return func(m *Manager) {
		m.seq = NewSequence(b)
	}
}

// NewManager creates a new Connection Manager. Dialer implementations must
// not invoke Events callbacks before Dial returns.
func NewManager(cfg ManagerConfig, provider Provider, dialer Dialer, sink Sink, listeners Listeners, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg,
		provider:  provider,
		dialer:    dialer,
		sink:      sink,
		listeners: listeners,
		clock:     RealClock(),
		logger:    slog.Default(),
		seq:       NewSequence(DefaultBackoff()),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// Start installs the staleness and refresh timers and schedules the first
// connect. Calls after the first are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.every(&m.staleTimer, m.cfg.StalenessInterval, m.CheckStaleness)
	m.every(&m.refreshTimer, m.cfg.RefreshInterval, m.periodicRefresh)
	m.clock.AfterFunc(0, m.attempt)
	m.mu.Unlock()

	m.logger.Info("connection manager started",
		"staleness_interval", m.cfg.StalenessInterval,
		"stale_after", m.cfg.StaleAfter,
		"refresh_interval", m.cfg.RefreshInterval,
	)
}

// Connect resolves connection info and dials, then waits until the socket
// opens or ctx ends. Provider failures return ErrConnectionInfoUnavailable
// and schedule a retry; transport failures are never returned.
func (m *Manager) Connect(ctx context.Context) error {
	opened, err := m.open(ctx)
	if err != nil {
		return err
	}

	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected returns whether the socket is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected
}

// ConnectionID returns the last resolved connection id, or "".
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionID
}

// State returns a snapshot of the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		Status:          m.status,
		ConnectionID:    m.connectionID,
		LastHeartbeatAt: m.lastHeartbeatAt,
		NextRetryAt:     m.nextRetryAt,
		CloseReason:     m.closeReason,
		RetryIndex:      m.seq.Index(),
		Started:         m.started,
	}
}

// IsStale reports whether no frame has arrived within StaleAfter.
func (m *Manager) IsStale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staleLocked()
}

func (m *Manager) staleLocked() bool {
	if !m.started || m.lastHeartbeatAt.IsZero() {
		return false
	}
	return m.clock.Now().Sub(m.lastHeartbeatAt) >= m.cfg.StaleAfter
}

// Refresh closes an open socket with reason "refresh"; the close handler
// reconnects without waiting. No-op unless connected.
func (m *Manager) Refresh() {
	m.mu.Lock()
	if m.closed || m.status != StatusConnected || m.socket == nil {
		m.mu.Unlock()
		return
	}
	m.closeReason = ReasonRefresh
	s := m.socket
	m.mu.Unlock()

	m.logger.Info("forcing connection refresh")

	if err := s.Close(CloseRefresh, ReasonRefresh); err != nil {
		m.logger.Debug("refresh close failed", "error", err)
	}
}

// CheckStaleness forces a refresh when subscriptions exist and the
// connection has been silent for StaleAfter.
func (m *Manager) CheckStaleness() {
	if m.listeners.Len() == 0 {
		return
	}

	m.mu.Lock()
	stale := m.staleLocked()
	last := m.lastHeartbeatAt
	m.mu.Unlock()

	if !stale {
		return
	}

	m.logger.Warn("connection stale, refreshing",
		"last_heartbeat", last,
		"stale_after", m.cfg.StaleAfter,
	)
	m.Refresh()
}

func (m *Manager) periodicRefresh() {
	if m.listeners.Len() == 0 {
		return
	}
	m.Refresh()
}

// Close cancels timers, closes the socket, and suppresses reconnects.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, t := range []Timer{m.retryTimer, m.staleTimer, m.refreshTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.retryTimer = nil
	m.nextRetryAt = time.Time{}
	wasConnected := m.status == StatusConnected
	m.status = StatusDisconnected
	m.metrics.SetConnectionStatus(int(StatusDisconnected))
	s, done := m.socket, m.socketDone
	m.mu.Unlock()

	m.logger.Info("stopping connection manager")

	if s != nil && s.ReadyState() != ReadyClosed {
		if err := s.Close(CloseNormal, ReasonShutdown); err != nil {
			m.logger.Debug("shutdown close failed", "error", err)
		}
		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn("shutdown timeout, socket close not confirmed")
		}
	}

	if wasConnected {
		m.sink.ConnectionChanged(false)
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// attempt runs one background connect; it never blocks on the socket.
func (m *Manager) attempt() {
	ctx := context.Background()
	if m.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ResolveTimeout)
		defer cancel()
	}

	if _, err := m.open(ctx); err != nil && !errors.Is(err, ErrClosed) {
		m.logger.Debug("connect attempt failed", "error", err)
	}
}

// open resolves connection info and dials unless a socket is already live.
// It returns a channel closed when that socket opens.
func (m *Manager) open(ctx context.Context) (<-chan struct{}, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.liveLocked() {
		opened := m.opened
		m.mu.Unlock()
		return opened, nil
	}
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()

	info, err := m.provider.Resolve(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionInfoUnavailable, err)
		m.logger.Warn("failed to resolve connection info", "error", err)
		if !m.liveLocked() {
			m.setStatusLocked(StatusReconnecting)
			if m.retryTimer == nil {
				m.scheduleRetryLocked(m.seq.Severe(), "info_unavailable")
			}
		}
		return nil, err
	}

	// A concurrent open may have dialed while we were resolving.
	if m.liveLocked() {
		return m.opened, nil
	}

	m.gen++
	m.connectionID = info.ConnectionID
	m.opened = make(chan struct{})
	m.socketDone = make(chan struct{})
	m.setStatusLocked(StatusConnecting)
	m.socket = m.dialer.Dial(info.URL, m.events(m.gen))

	m.logger.Debug("dialing", "url", info.URL, "connection_id", info.ConnectionID)

	return m.opened, nil
}

func (m *Manager) liveLocked() bool {
	if m.socket == nil {
		return false
	}
	rs := m.socket.ReadyState()
	return rs == ReadyConnecting || rs == ReadyOpen
}

func (m *Manager) events(gen uint64) Events {
	return Events{
		OnOpen:    func() { m.handleOpen(gen) },
		OnMessage: func(data []byte) { m.handleMessage(gen, data) },
		OnError:   func(err error) { m.handleError(gen, err) },
		OnClose:   func(code int, reason string) { m.handleClose(gen, code, reason) },
	}
}

func (m *Manager) handleOpen(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.seq.Reset()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.nextRetryAt = time.Time{}
	m.lastHeartbeatAt = m.clock.Now()
	m.closeReason = ""
	m.setStatusLocked(StatusConnected)
	close(m.opened)
	id := m.connectionID
	m.mu.Unlock()

	m.logger.Info("connected", "connection_id", id)
	m.sink.ConnectionChanged(true)
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.lastHeartbeatAt = m.clock.Now()
	m.mu.Unlock()

	m.metrics.FrameReceived()
	m.sink.Frame(data)
}

// handleError only acts when the socket never opened and is already closed.
// Errors on an open connection are followed by a close event, which owns
// recovery.
func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.closed {
		return
	}
	if m.status == StatusConnected || m.socket == nil || m.socket.ReadyState() != ReadyClosed {
		m.logger.Debug("socket error ignored", "error", err, "status", m.status)
		return
	}
	if m.retryTimer != nil {
		return
	}

	m.logger.Warn("socket error", "error", err)
	m.setStatusLocked(StatusReconnecting)
	m.scheduleRetryLocked(m.seq.Severe(), "error")
}

func (m *Manager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	close(m.socketDone)
	m.socket = nil
	if m.closed {
		m.mu.Unlock()
		return
	}

	wasConnected := m.status == StatusConnected
	if m.retryTimer != nil {
		m.setStatusLocked(StatusReconnecting)
		m.mu.Unlock()
		return
	}

	refresh := reason == ReasonRefresh || m.closeReason == ReasonRefresh
	m.closeReason = ""
	var wait time.Duration
	kind := "refresh"
	if !refresh {
		wait = m.seq.NextBackOff()
		kind = "close"
	}
	m.setStatusLocked(StatusReconnecting)
	m.scheduleRetryLocked(wait, kind)
	m.mu.Unlock()

	m.logger.Warn("connection closed",
		"code", code,
		"reason", reason,
		"refresh", refresh,
		"retry_in", wait,
	)

	if wasConnected {
		m.sink.ConnectionChanged(false)
	}
}

func (m *Manager) scheduleRetryLocked(wait time.Duration, kind string) {
	m.nextRetryAt = m.clock.Now().Add(wait)
	m.retryTimer = m.clock.AfterFunc(wait, m.fireRetry)
	m.metrics.ReconnectScheduled(kind)
}

func (m *Manager) fireRetry() {
	m.mu.Lock()
	m.retryTimer = nil
	m.nextRetryAt = time.Time{}
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.status == StatusConnected {
		m.mu.Unlock()
		m.logger.Debug("already connected, skipping retry")
		return
	}
	m.mu.Unlock()

	m.attempt()
}

// every re-arms *slot every d until the manager stops. Caller holds mu.
func (m *Manager) every(slot *Timer, d time.Duration, f func()) {
	var tick func()
	tick = func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		*slot = m.clock.AfterFunc(d, tick)
		m.mu.Unlock()

		f()
	}
	*slot = m.clock.AfterFunc(d, tick)
}

func (m *Manager) setStatusLocked(s Status) {
	m.status = s
	m.metrics.SetConnectionStatus(int(s))
}
