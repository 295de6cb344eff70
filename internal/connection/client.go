package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer opens Sockets with gorilla/websocket.
type GorillaDialer struct {
	cfg    SocketConfig
	header http.Header
	logger *slog.Logger
}

var _ Dialer = (*GorillaDialer)(nil)

// NewDialer creates a new WebSocket dialer.
func NewDialer(cfg SocketConfig, header http.Header, logger *slog.Logger) *GorillaDialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &GorillaDialer{
		cfg:    cfg,
		header: header,
		logger: logger,
	}
}

// Dial starts connecting to url and returns immediately.
func (d *GorillaDialer) Dial(url string, ev Events) Socket {
	ctx, cancel := context.WithCancel(context.Background())

	s := &socket{
		cfg:        d.cfg,
		logger:     d.logger,
		ev:         ev,
		cancelDial: cancel,
		done:       make(chan struct{}),
	}
	s.state.Store(int32(ReadyConnecting))

	go s.run(ctx, url, d.header)

	return s
}

// socket is a single gorilla/websocket connection driven by callbacks.
type socket struct {
	cfg    SocketConfig
	logger *slog.Logger
	ev     Events

	cancelDial context.CancelFunc
	done       chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	state          atomic.Int32
	mu             sync.Mutex
	conn           *websocket.Conn
	closeRequested bool
	closeCode      int
	closeReason    string
	closeOnce      sync.Once
}

// ReadyState returns the socket-level state.
func (s *socket) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// Close starts a close handshake with the given code and reason.
func (s *socket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closeRequested || s.ReadyState() == ReadyClosed {
		s.mu.Unlock()
		return nil
	}
	s.closeRequested = true
	s.closeCode = code
	s.closeReason = reason
	s.state.Store(int32(ReadyClosing))
	conn := s.conn
	s.mu.Unlock()

	// Still dialing: cancelling makes run report the requested close.
	if conn == nil {
		s.cancelDial()
		return nil
	}

	s.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Debug("failed to send close frame", "error", err)
	}

	return conn.Close()
}

func (s *socket) run(ctx context.Context, url string, header http.Header) {
	defer s.cancelDial()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		s.state.Store(int32(ReadyClosed))
		if code, reason, ok := s.requestedClose(); ok {
			s.fireClose(code, reason)
			return
		}
		s.fireError(err)
		s.fireClose(CloseAbnormal, "")
		return
	}

	s.mu.Lock()
	if s.closeRequested {
		code, reason := s.closeCode, s.closeReason
		s.mu.Unlock()
		conn.Close()
		s.state.Store(int32(ReadyClosed))
		s.fireClose(code, reason)
		return
	}
	s.conn = conn
	s.state.Store(int32(ReadyOpen))
	s.mu.Unlock()

	s.logger.Debug("websocket connected", "url", url)

	if s.ev.OnOpen != nil {
		s.ev.OnOpen()
	}

	if s.cfg.PingInterval > 0 {
		go s.heartbeatLoop(conn)
	}

	s.readLoop(conn)
}

// readLoop reads frames until the connection ends, then reports the close.
func (s *socket) readLoop(conn *websocket.Conn) {
	defer close(s.done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.state.Store(int32(ReadyClosed))
			conn.Close()

			if code, reason, ok := s.requestedClose(); ok {
				s.fireClose(code, reason)
				return
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.fireClose(closeErr.Code, closeErr.Text)
				return
			}

			s.fireError(err)
			s.fireClose(CloseAbnormal, "")
			return
		}

		if s.ev.OnMessage != nil {
			s.ev.OnMessage(data)
		}
	}
}

// heartbeatLoop keeps intermediaries from idling the connection out.
func (s *socket) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

func (s *socket) requestedClose() (int, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeReason, s.closeRequested
}

func (s *socket) fireError(err error) {
	if s.ev.OnError != nil {
		s.ev.OnError(err)
	}
}

func (s *socket) fireClose(code int, reason string) {
	s.closeOnce.Do(func() {
		if s.ev.OnClose != nil {
			s.ev.OnClose(code, reason)
		}
	})
}
