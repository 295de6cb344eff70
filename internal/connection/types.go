package connection

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrConnectionInfoUnavailable = errors.New("connection info unavailable")
	ErrClosed                    = errors.New("connection manager closed")
)

// Close codes and reasons used for self-initiated closes.
const (
	CloseNormal    = 1000
	CloseAbnormal  = 1006
	CloseRefresh   = 4000
	ReasonRefresh  = "refresh"
	ReasonShutdown = "shutdown"
)

// Status is the manager-level connection status.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ReadyState mirrors the socket-level state of a single transport.
type ReadyState int32

const (
	ReadyConnecting ReadyState = iota
	ReadyOpen
	ReadyClosing
	ReadyClosed
)

func (r ReadyState) String() string {
	switch r {
	case ReadyConnecting:
		return "connecting"
	case ReadyOpen:
		return "open"
	case ReadyClosing:
		return "closing"
	case ReadyClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a point-in-time copy of the manager's connection state.
type State struct {
	Status          Status
	ConnectionID    string
	LastHeartbeatAt time.Time
	NextRetryAt     time.Time // Zero when no retry is scheduled
	CloseReason     string    // "refresh" or empty
	RetryIndex      int
	Started         bool
}

// Info is the result of resolving where to connect.
type Info struct {
	ConnectionID string
	URL          string
}

// Provider resolves connection info. It must return an error rather than
// empty values when the info is unavailable.
type Provider interface {
	Resolve(ctx context.Context) (Info, error)
}

// StaticProvider always resolves to the same info.
type StaticProvider Info

// Resolve returns the fixed info, or an error when the URL is empty.
func (p StaticProvider) Resolve(ctx context.Context) (Info, error) {
	if p.URL == "" {
		return Info{}, errors.New("static provider has no url")
	}
	return Info(p), nil
}

// Events holds the callback slots a Socket reports through.
type Events struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Socket is a single transport connection.
type Socket interface {
	// Close starts a close handshake. OnClose fires with the same code and reason.
	Close(code int, reason string) error

	// ReadyState reports the socket-level state.
	ReadyState() ReadyState
}

// Dialer opens sockets. Dial returns immediately in ReadyConnecting; the
// outcome is reported through ev. A failed dial fires OnError then OnClose.
type Dialer interface {
	Dial(url string, ev Events) Socket
}

// Sink receives everything the manager delivers upward.
type Sink interface {
	Frame(data []byte)
	ConnectionChanged(up bool)
}

// Listeners reports how many subscriptions are outstanding.
type Listeners interface {
	Len() int
}

// SocketConfig configures the gorilla socket dialer.
type SocketConfig struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration // 0 disables keepalive pings
	WriteTimeout     time.Duration
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	StalenessInterval time.Duration // How often staleness is evaluated
	StaleAfter        time.Duration // Silence after which a connection is stale
	RefreshInterval   time.Duration // Unconditional forced refresh period
	ResolveTimeout    time.Duration // Bound on a single provider call
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		StalenessInterval: 60 * time.Second,
		StaleAfter:        8 * time.Minute,
		RefreshInterval:   114 * time.Minute, // 1.9h
		ResolveTimeout:    30 * time.Second,
	}
}
