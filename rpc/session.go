package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/selimaj-dev/session-go/ws"
)

// Session layers RPC semantics on top of a single ws.Connection: it
// correlates inbound response/error frames to outstanding Request calls,
// dispatches inbound request frames to registered handlers, and runs an
// optional keepalive timer with pong-timeout disconnect. A Session wraps its
// Connection for the Connection's entire lifetime and is never re-bound.
type Session struct {
	conn *ws.Connection

	idCounter atomic.Uint32

	registry      *registry
	notifications *notificationRegistry
	pending       *pendingTable

	pongCh chan struct{}

	closeOnce    sync.Once
	closeHookMu  sync.Mutex
	closeHook    func()
	done         chan struct{}
	closeErrOnce atomic.Pointer[error]
}

// Connect dials hostPort and performs a client-role handshake against path,
// returning a Session ready for StartReceiver.
func Connect(hostPort, path string) (*Session, error) {
	conn, err := ws.Connect(hostPort, path)
	if err != nil {
		return nil, err
	}
	return FromConnection(conn), nil
}

// FromConnection wraps an already-handshaken Connection (client or server
// role) in a Session.
func FromConnection(conn *ws.Connection) *Session {
	return &Session{
		conn:          conn,
		registry:      newRegistry(),
		notifications: newNotificationRegistry(),
		pending:       newPendingTable(),
		pongCh:        make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Connection exposes the underlying transport, e.g. for callers that want
// Connection.ID() for logging or a map key.
func (s *Session) Connection() *ws.Connection { return s.conn }

// Done returns a channel closed exactly once the session has terminated,
// for callers that want to select on session lifetime without registering
// an OnClose hook.
func (s *Session) Done() <-chan struct{} { return s.done }

// nextID allocates the next request id. The counter wraps at 2^32; the only
// correctness requirement is that no two *currently in-flight* requests
// share an id. The id 0 is never emitted.
func (s *Session) nextID() uint32 {
	for {
		id := s.idCounter.Add(1)
		if id != 0 {
			return id
		}
	}
}

func (s *Session) sendMessage(msg wireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return wrapJSON(err)
	}
	return s.conn.SendText(string(payload))
}

// Respond sends a `response` wire message replying to request id with
// value, marshaled to JSON. Exposed for advanced callers that bypass
// OnRequest and want to reply manually.
func (s *Session) Respond(id uint32, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return wrapJSON(err)
	}
	return s.sendMessage(wireMessage{Type: typeResponse, ID: id, Result: data})
}

// RespondError sends an `error` wire message replying to request id.
func (s *Session) RespondError(id uint32, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return wrapJSON(err)
	}
	return s.sendMessage(wireMessage{Type: typeError, ID: id, Error: data})
}

// OnClose registers handler to run exactly once when the session
// terminates, whether from a local Close() or the receiver detecting
// end-of-stream/a close frame. A second call replaces the handler; it does
// not add a second callback.
func (s *Session) OnClose(handler func()) {
	s.closeHookMu.Lock()
	defer s.closeHookMu.Unlock()
	s.closeHook = handler
}

// Close terminates the underlying connection and fires the close hook
// exactly once, however many times Close is called or however many error
// paths race to call it.
func (s *Session) Close() error {
	err := s.conn.Close()
	s.markClosed(err)
	return err
}

func (s *Session) markClosed(err error) {
	s.closeOnce.Do(func() {
		if err != nil {
			s.closeErrOnce.Store(&err)
		}
		close(s.done)
		s.closeHookMu.Lock()
		hook := s.closeHook
		s.closeHookMu.Unlock()
		if hook != nil {
			hook()
		}
	})
}

func (s *Session) closeErr() error {
	if p := s.closeErrOnce.Load(); p != nil {
		return *p
	}
	return ws.ErrConnectionClosed
}

// StartReceiver spawns the receiver task: it runs until the connection
// fails or yields a Close frame, dispatching inbound request/response/
// error/notification frames. It must be started before any Request call
// can be answered.
func (s *Session) StartReceiver() {
	go s.receiveLoop()
}

func (s *Session) receiveLoop() {
	for {
		frame, err := s.conn.Read()
		if err != nil {
			s.markClosed(err)
			return
		}

		switch frame.Kind {
		case ws.KindPong:
			select {
			case s.pongCh <- struct{}{}:
			default:
			}
		case ws.KindClose:
			s.markClosed(ws.ErrConnectionClosed)
			return
		case ws.KindPing:
			// Connection already answered with a pong frame; nothing to do
			// at the session layer.
		case ws.KindText:
			s.dispatchText(frame.Text)
		case ws.KindBinary:
			// No RPC semantics are defined for binary frames; ignored.
		}
	}
}

func (s *Session) dispatchText(text string) {
	var msg wireMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return // malformed frame: non-fatal for the receiver, dropped
	}

	switch msg.Type {
	case typeRequest:
		handler, ok := s.registry.get(msg.Method)
		if !ok {
			return
		}
		go func() {
			result, isError, respond := handler(context.Background(), msg.ID, msg.Data)
			if !respond {
				return
			}
			if isError {
				s.sendMessage(wireMessage{Type: typeError, ID: msg.ID, Error: result})
			} else {
				s.sendMessage(wireMessage{Type: typeResponse, ID: msg.ID, Result: result})
			}
		}()
	case typeResponse:
		s.pending.fulfill(msg.ID, false, msg.Result)
	case typeError:
		s.pending.fulfill(msg.ID, true, msg.Error)
	case typeNotification:
		handler, ok := s.notifications.get(msg.Method)
		if ok {
			handler(msg.Data)
		}
	}
}

// StartPing starts a keepalive loop: every interval it sends a ping and
// waits up to timeout for a pong. A missed deadline initiates Close and
// terminates the keepalive task; it never fires more than once.
func (s *Session) StartPing(interval, timeout time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if err := s.conn.SendPing(); err != nil {
					s.Close()
					return
				}
				select {
				case <-s.pongCh:
				case <-time.After(timeout):
					s.Close()
					return
				case <-s.done:
					return
				}
			}
		}
	}()
}
