package wsproto

import (
	"bufio"
	"bytes"
	"testing"
)

const testMaxPayload = 4 * 1024 * 1024

func TestFrameRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 125, 126, 127, 65535, 65536, 1_048_576}
	for _, n := range lengths {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}

		var wire bytes.Buffer
		if err := WriteFrame(&wire, OpcodeBinary, payload); err != nil {
			t.Fatalf("len=%d: WriteFrame: %v", n, err)
		}

		frame, err := ReadFrame(bufio.NewReader(&wire), testMaxPayload)
		if err != nil {
			t.Fatalf("len=%d: ReadFrame: %v", n, err)
		}
		if frame.Opcode != OpcodeBinary {
			t.Fatalf("len=%d: opcode = %v, want binary", n, frame.Opcode)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("len=%d: payload mismatch", n)
		}
	}
}

func TestReadFrameUnmasksClientPayload(t *testing.T) {
	payload := []byte("hello world")
	maskKey := [4]byte{0x12, 0x34, 0x56, 0x78}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}

	var wire bytes.Buffer
	wire.Write([]byte{0x80 | byte(OpcodeText), 0x80 | byte(len(payload))})
	wire.Write(maskKey[:])
	wire.Write(masked)

	frame, err := ReadFrame(bufio.NewReader(&wire), testMaxPayload)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("unmasked payload = %q, want %q", frame.Payload, payload)
	}
}

func TestReadFrameRejectsFragmentation(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{byte(OpcodeBinary), 0x00}) // FIN=0
	if _, err := ReadFrame(bufio.NewReader(&wire), testMaxPayload); err == nil {
		t.Fatal("expected error for fragmented frame")
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteFrame(&wire, OpcodeBinary, make([]byte, 1024)); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(bufio.NewReader(&wire), 100); err == nil {
		t.Fatal("expected error for payload exceeding max")
	}
}

func TestWriteFrameNeverMasks(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteFrame(&wire, OpcodeText, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	b := wire.Bytes()
	if b[1]&0x80 != 0 {
		t.Fatal("server frame must not set the mask bit")
	}
}

func TestPingFrameRoundTripPreservesPayload(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteFrame(&wire, OpcodePing, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	frame, err := ReadFrame(bufio.NewReader(&wire), testMaxPayload)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Opcode != OpcodePing || string(frame.Payload) != "hi" {
		t.Fatalf("got opcode=%v payload=%q", frame.Opcode, frame.Payload)
	}
}
