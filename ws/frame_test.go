package ws

import (
	"bytes"
	"testing"
)

// TestFrameRoundTrip exercises encode -> decode for both roles and a range
// of payload sizes straddling the 126/65535 extended-length boundaries.
func TestFrameRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 125, 126, 1000, 65535, 65536, 70000}
	for _, masked := range []bool{true, false} {
		for _, n := range sizes {
			payload := bytes.Repeat([]byte{0x42}, n)
			cp := make([]byte, n)
			copy(cp, payload)

			var buf bytes.Buffer
			if err := writeFrame(&buf, OpBinary, cp, masked); err != nil {
				t.Fatalf("writeFrame(masked=%v, n=%d): %v", masked, n, err)
			}

			h, err := readRawHeader(&buf)
			if err != nil {
				t.Fatalf("readRawHeader: %v", err)
			}
			if h.opcode != OpBinary {
				t.Fatalf("opcode = %v, want OpBinary", h.opcode)
			}
			if !h.fin {
				t.Fatal("fin bit not set")
			}
			if h.masked != masked {
				t.Fatalf("masked = %v, want %v", h.masked, masked)
			}
			got, err := h.readPayload(&buf)
			if err != nil {
				t.Fatalf("readPayload: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("payload mismatch for n=%d masked=%v", n, masked)
			}
		}
	}
}

// TestRFC6455MaskedHelloExample reproduces the literal masked "Hello" frame
// from RFC 6455 §5.7.
func TestRFC6455MaskedHelloExample(t *testing.T) {
	wire := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	h, err := readRawHeader(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("readRawHeader: %v", err)
	}
	rest := bytes.NewReader(wire[2+4:])
	payload, err := h.readPayload(rest)
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if string(payload) != "Hello" {
		t.Fatalf("payload = %q, want %q", payload, "Hello")
	}
}

func TestControlFrameConstraints(t *testing.T) {
	var buf bytes.Buffer
	// fin=0, opcode=ping -> fragmented control frame, must be rejected
	buf.Write([]byte{0x09, 0x00})
	if _, err := readRawHeader(&buf); err == nil {
		t.Fatal("expected error for fragmented control frame")
	}
}

func TestUnknownOpcodeRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x83, 0x00}) // fin=1, opcode=3 (reserved)
	if _, err := readRawHeader(&buf); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestReservedBitsRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xC1, 0x00}) // fin=1, rsv1 set, opcode=text
	if _, err := readRawHeader(&buf); err == nil {
		t.Fatal("expected error for reserved bit set")
	}
}
