package ws

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"
)

// TestAcceptKeyRFC6455Vector reproduces the literal handshake example from
// RFC 6455 §1.3.
func TestAcceptKeyRFC6455Vector(t *testing.T) {
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got := acceptKeyFor(key); got != want {
		t.Fatalf("acceptKeyFor(%q) = %q, want %q", key, got, want)
	}
}

func dialPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		serverCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	select {
	case server = <-serverCh:
	case <-time.After(time.Second):
		t.Fatal("accept timed out")
	}
	return client, server
}

func TestServerHandshakeUpgrade(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	go func() {
		req := "GET /chat HTTP/1.1\r\n" +
			"Host: example.com\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
			"Sec-WebSocket-Version: 13\r\n\r\n"
		client.Write([]byte(req))
	}()

	rw := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	hs, err := ServerHandshake(rw)
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	if hs == nil {
		t.Fatal("expected non-nil handshake for websocket upgrade")
	}
	if hs.AcceptKey != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("unexpected accept key: %s", hs.AcceptKey)
	}
}

func TestServerHandshakeHealthCheckGET(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	go client.Write([]byte("GET /healthz HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	rw := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	hs, err := ServerHandshake(rw)
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	if hs != nil {
		t.Fatal("expected no session for a plain health-check GET")
	}

	resp := make([]byte, len("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"))
	if _, err := client.Read(resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if !bytes.HasPrefix(resp, []byte("HTTP/1.1 200 OK")) {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestServerHandshakeHEAD(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	go client.Write([]byte("HEAD / HTTP/1.1\r\nHost: example.com\r\n\r\n"))

	rw := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	hs, err := ServerHandshake(rw)
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	if hs != nil {
		t.Fatal("expected no session for HEAD")
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	got := make([]byte, len(want))
	if _, err := client.Read(got); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestServerHandshakeMissingKey(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	go func() {
		req := "GET /chat HTTP/1.1\r\n" +
			"Host: example.com\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Version: 13\r\n\r\n"
		client.Write([]byte(req))
	}()

	rw := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	if _, err := ServerHandshake(rw); err == nil {
		t.Fatal("expected error for missing Sec-WebSocket-Key")
	}
}

func TestClientServerHandshakeRoundTrip(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := ClientHandshake(client, "example.com", "/chat")
		errCh <- err
	}()

	rw := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	hs, err := ServerHandshake(rw)
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	if hs == nil {
		t.Fatal("expected a completed handshake")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("ClientHandshake: %v", err)
	}
}
