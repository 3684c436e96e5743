package ws

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

var connIDGen atomic.Uint64

func nextConnID() uint64 {
	return connIDGen.Add(1)
}

// Connection owns one TCP stream after a completed RFC 6455 handshake. It
// exposes a single read() / send*() surface: at most one caller decodes
// frames at a time (readMu), and writes from any number of concurrent
// goroutines are serialized byte-for-byte (writeMu). Identity — used for
// equality, ordering, and as a map key — is the process-unique id assigned
// at construction, not the underlying net.Conn.
type Connection struct {
	id   uint64
	conn net.Conn

	readMu sync.Mutex
	r      *bufio.Reader

	writeMu sync.Mutex
	w       *bufio.Writer

	maskOutgoing bool

	closeOnce sync.Once
	closed    atomic.Bool

	fragKind MessageKind
	fragBuf  []byte
	fragging bool
}

// Connect dials hostPort over TCP and performs the client side of the
// websocket handshake against path. The returned Connection masks outgoing
// frames, as RFC 6455 §5.3 requires of the client role.
func Connect(hostPort, path string) (*Connection, error) {
	conn, err := net.Dial("tcp", hostPort)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	br, err := ClientHandshake(conn, hostPort, path)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newConnection(conn, true, br, nil), nil
}

// NewServerConnection wraps conn, whose handshake has already been completed
// by ServerHandshake, as a server-role Connection (unmasked outgoing
// frames). r and w must be the same *bufio.Reader/*bufio.Writer the caller
// passed to ServerHandshake — reusing them, instead of wrapping conn a
// second time, avoids losing any bytes bufio already read ahead of the
// handshake response.
func NewServerConnection(conn net.Conn, r *bufio.Reader, w *bufio.Writer) *Connection {
	return newConnection(conn, false, r, w)
}

// newConnection builds a Connection around conn, reusing r/w from an earlier
// handshake when given so the frame parser continues from wherever the
// handshake left off rather than re-buffering the raw socket. Either may be
// nil, in which case a fresh bufio.Reader/Writer over conn is created.
func newConnection(conn net.Conn, maskOutgoing bool, r *bufio.Reader, w *bufio.Writer) *Connection {
	if r == nil {
		r = bufio.NewReader(conn)
	}
	if w == nil {
		w = bufio.NewWriter(conn)
	}
	return &Connection{
		id:           nextConnID(),
		conn:         conn,
		r:            r,
		w:            w,
		maskOutgoing: maskOutgoing,
	}
}

// ID returns the process-unique identity of this connection.
func (c *Connection) ID() uint64 { return c.id }

func (c *Connection) String() string {
	role := "server"
	if c.maskOutgoing {
		role = "client"
	}
	return fmt.Sprintf("ws.Connection(id=%d, role=%s)", c.id, role)
}

// Equal reports whether c and other refer to the same Connection identity.
func (c *Connection) Equal(other *Connection) bool {
	if other == nil {
		return false
	}
	return c.id == other.id
}

func (c *Connection) SendText(s string) error {
	return c.send(OpText, []byte(s))
}

func (c *Connection) SendBinary(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	return c.send(OpBinary, cp)
}

func (c *Connection) SendPing() error {
	return c.send(OpPing, nil)
}

func (c *Connection) SendPong() error {
	return c.send(OpPong, nil)
}

func (c *Connection) send(op Opcode, payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.w, op, payload, c.maskOutgoing); err != nil {
		return err
	}
	return wrapIOErr(c.w.Flush())
}

// Close sends a Close frame best-effort and tears down the socket. It does
// not wait for the peer's Close frame. Safe to call more than once.
func (c *Connection) Close() error {
	var sendErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		sendErr = writeFrame(c.w, OpClose, nil, c.maskOutgoing)
		if sendErr == nil {
			sendErr = wrapIOErr(c.w.Flush())
		}
		c.writeMu.Unlock()
		c.conn.Close()
	})
	return sendErr
}

// StartPingLoop spawns a background goroutine that sends a ping every
// interval until the first send failure, at which point it exits quietly.
func (c *Connection) StartPingLoop(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := c.SendPing(); err != nil {
				return
			}
		}
	}()
}

// Read returns the next fully-reassembled application frame: a complete Text
// or Binary message, or a control frame (Ping/Pong/Close). Inbound pings are
// answered with a pong before being handed back to the caller; an inbound
// close initiates our own close before being handed back.
func (c *Connection) Read() (Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		h, err := readRawHeader(c.r)
		if err != nil {
			return Frame{}, c.fatal(err)
		}

		// A server-role connection's peer is a client, which MUST mask.
		// A client-role connection's peer is a server, which MUST NOT.
		if !c.maskOutgoing && !h.masked {
			err := newErr(KindInvalidFrame, "unmasked frame received from client")
			return Frame{}, c.fatal(err)
		}

		payload, err := h.readPayload(c.r)
		if err != nil {
			return Frame{}, c.fatal(err)
		}

		if h.opcode.isControl() {
			frame, err := c.handleControl(h.opcode, payload)
			if err != nil {
				return Frame{}, c.fatal(err)
			}
			return frame, nil
		}

		switch {
		case h.opcode == OpText || h.opcode == OpBinary:
			if c.fragging {
				err := newErr(KindInvalidFrame, "new message started before previous fragment finished")
				return Frame{}, c.fatal(err)
			}
			if h.fin {
				return c.finishMessage(messageKindOf(h.opcode), payload)
			}
			c.fragging = true
			c.fragKind = messageKindOf(h.opcode)
			c.fragBuf = payload
			continue

		case h.opcode == OpContinuation:
			if !c.fragging {
				err := newErr(KindInvalidFrame, "continuation frame with no message in progress")
				return Frame{}, c.fatal(err)
			}
			c.fragBuf = append(c.fragBuf, payload...)
			if h.fin {
				kind := c.fragKind
				buf := c.fragBuf
				c.fragging = false
				c.fragBuf = nil
				return c.finishMessage(kind, buf)
			}
			continue

		default:
			err := newErr(KindInvalidFrame, "unknown opcode")
			return Frame{}, c.fatal(err)
		}
	}
}

func messageKindOf(op Opcode) MessageKind {
	if op == OpBinary {
		return KindBinary
	}
	return KindText
}

func (c *Connection) finishMessage(kind MessageKind, payload []byte) (Frame, error) {
	if kind == KindText {
		if !utf8.Valid(payload) {
			err := wrapErr(KindUTF8, fmt.Errorf("invalid UTF-8 text payload"))
			return Frame{}, c.fatal(err)
		}
		return Frame{Kind: KindText, Text: string(payload)}, nil
	}
	return Frame{Kind: KindBinary, Binary: payload}, nil
}

func (c *Connection) handleControl(op Opcode, payload []byte) (Frame, error) {
	switch op {
	case OpPing:
		if err := c.SendPong(); err != nil {
			return Frame{}, err
		}
		return Frame{Kind: KindPing}, nil
	case OpPong:
		return Frame{Kind: KindPong}, nil
	case OpClose:
		c.Close()
		return Frame{Kind: KindClose}, nil
	default:
		return Frame{}, newErr(KindInvalidFrame, "not a control opcode")
	}
}

// fatal marks the connection dead on any protocol violation or I/O fault,
// sending a best-effort close frame for protocol errors.
func (c *Connection) fatal(err error) error {
	if wsErr, ok := err.(*Error); ok && wsErr.Kind == KindInvalidFrame {
		c.Close()
	}
	if !c.closed.Load() {
		c.conn.Close()
		c.closed.Store(true)
	}
	return err
}

func wrapIOErr(err error) error {
	if err == nil {
		return nil
	}
	return wrapErr(KindIO, err)
}
