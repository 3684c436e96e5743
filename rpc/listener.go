package rpc

import (
	"bufio"
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/selimaj-dev/session-go/ws"
)

// Listener accepts raw TCP connections, performs the server side of the
// websocket handshake on each, and hands back a Session for every one that
// upgrades. Connections that resolve to a health check (HEAD, or a non-
// websocket GET) are handled entirely inside the handshake and never reach a
// caller.
type Listener struct {
	ln net.Listener
}

// Bind starts listening on addr ("host:port" or ":port").
func Bind(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &ws.Error{Kind: ws.KindIO, Cause: err}
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections. Sessions already handed out are
// unaffected.
func (l *Listener) Close() error { return l.ln.Close() }

// upgrade runs the server side of the websocket handshake on an
// already-accepted TCP connection. Any error it returns belongs to this one
// connection — a disconnecting client, a garbled request line, a read that
// never completes — never to the listener. Keeping that distinction
// structural (rather than encoded in an error Kind) is what lets Accept and
// SessionLoop tell a single bad peer apart from the listener itself dying.
func upgrade(conn net.Conn) (*Session, error) {
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	hs, err := ws.ServerHandshake(rw)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hs == nil {
		conn.Close()
		return nil, nil
	}

	wsConn := ws.NewServerConnection(conn, rw.Reader, rw.Writer)
	return FromConnection(wsConn), nil
}

// Accept blocks for the next TCP connection and performs the upgrade
// handshake on it. It returns (nil, addr, nil) both for a connection that
// resolved to a health check and for one whose handshake failed outright
// (bad request line, missing headers, or the peer disconnecting mid-
// handshake) — callers should loop rather than treat either as fatal. Only
// a failure of the underlying net.Listener.Accept itself is returned as an
// error.
func (l *Listener) Accept() (*Session, net.Addr, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, nil, &ws.Error{Kind: ws.KindIO, Cause: err}
	}

	sess, err := upgrade(conn)
	if err != nil {
		return nil, conn.RemoteAddr(), nil
	}
	return sess, conn.RemoteAddr(), nil
}

// SessionLoop repeatedly calls Accept and, for every upgraded connection,
// starts its receiver and runs fn under a supervised goroutine group: the
// first non-nil error returned by any fn, or a listener-level Accept
// failure, cancels ctx and is what SessionLoop ultimately returns.
// Cancelling ctx from the caller's side closes the listener and unblocks
// Accept. A single connection's handshake failing — including a peer that
// opens a socket and disconnects without sending anything — never reaches
// this loop as an error; Accept has already absorbed it. Only a failure of
// the underlying net.Listener.Accept itself ends the loop.
func (l *Listener) SessionLoop(ctx context.Context, fn func(s *Session, addr net.Addr) error) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		l.Close()
		return nil
	})

	g.Go(func() error {
		for {
			sess, addr, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil // closed because ctx was cancelled; not a real failure
				}
				return err
			}
			if sess == nil {
				continue
			}
			sess.StartReceiver()
			g.Go(func() error { return fn(sess, addr) })
		}
	})

	return g.Wait()
}
