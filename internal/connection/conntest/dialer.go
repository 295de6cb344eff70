package conntest

import (
	"context"
	"errors"
	"sync"

	"github.com/rickgao/eventstream/internal/connection"
)

// Dialer records every Dial and hands back scripted Sockets.
type Dialer struct {
	mu      sync.Mutex
	sockets []*Socket
}

var _ connection.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(url string, ev connection.Events) connection.Socket {
	s := &Socket{URL: url, ev: ev, state: connection.ReadyConnecting}

	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()

	return s
}

// Count returns how many sockets have been dialed.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

// Socket returns the i-th dialed socket.
func (d *Dialer) Socket(i int) *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

// Last returns the most recently dialed socket, or nil.
func (d *Dialer) Last() *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// Live counts sockets that are connecting or open.
func (d *Dialer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, s := range d.sockets {
		rs := s.ReadyState()
		if rs == connection.ReadyConnecting || rs == connection.ReadyOpen {
			n++
		}
	}
	return n
}

// Socket is a scripted connection.Socket. Tests drive it with Open, Message,
// Error, Fail and Drop.
type Socket struct {
	URL string

	mu          sync.Mutex
	ev          connection.Events
	state       connection.ReadyState
	closeFired  bool
	closeCode   int
	closeReason string
}

var _ connection.Socket = (*Socket)(nil)

func (s *Socket) ReadyState() connection.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close records the code and reason and reports the close synchronously.
func (s *Socket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.state == connection.ReadyClosed {
		s.mu.Unlock()
		return nil
	}
	s.closeCode = code
	s.closeReason = reason
	s.mu.Unlock()

	s.Drop(code, reason)
	return nil
}

// Closed reports the code and reason passed to Close.
func (s *Socket) Closed() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeReason
}

// Open moves the socket to open and fires OnOpen.
func (s *Socket) Open() {
	s.mu.Lock()
	s.state = connection.ReadyOpen
	s.mu.Unlock()
	s.ev.OnOpen()
}

// Message delivers one frame.
func (s *Socket) Message(frame string) {
	s.ev.OnMessage([]byte(frame))
}

// Error fires OnError without changing state.
func (s *Socket) Error(err error) {
	s.ev.OnError(err)
}

// Fail closes the socket as a failed transport does: OnError, then
// OnClose with 1006.
func (s *Socket) Fail(err error) {
	s.mu.Lock()
	s.state = connection.ReadyClosed
	s.mu.Unlock()

	s.ev.OnError(err)
	s.Drop(connection.CloseAbnormal, "")
}

// Drop closes the socket and fires OnClose once.
func (s *Socket) Drop(code int, reason string) {
	s.mu.Lock()
	s.state = connection.ReadyClosed
	if s.closeFired {
		s.mu.Unlock()
		return
	}
	s.closeFired = true
	s.mu.Unlock()

	s.ev.OnClose(code, reason)
}

// Provider resolves to Info unless Err is set.
type Provider struct {
	mu    sync.Mutex
	info  connection.Info
	err   error
	calls int
}

var _ connection.Provider = (*Provider)(nil)

// ErrUnavailable is a convenient provider failure.
var ErrUnavailable = errors.New("host cannot supply connection info")

// NewProvider returns a Provider resolving to info.
func NewProvider(info connection.Info) *Provider {
	return &Provider{info: info}
}

func (p *Provider) Resolve(ctx context.Context) (connection.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.err != nil {
		return connection.Info{}, p.err
	}
	return p.info, nil
}

// SetErr makes subsequent resolves fail with err; nil restores success.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Calls returns how many times Resolve ran.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
