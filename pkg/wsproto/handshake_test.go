package wsproto

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

// TestAcceptKeyRFCExample verifies the handshake against the worked example
// from RFC 6455 §1.3.
func TestAcceptKeyRFCExample(t *testing.T) {
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	got := AcceptKey(key)
	if got != want {
		t.Fatalf("AcceptKey(%q) = %q, want %q", key, got, want)
	}
}

func TestSHA1KnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{"abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"The quick brown fox jumps over the lazy dog", "2fd4e1c67a2d28fced849ee1bb76e7391b93eb12"},
	}
	for _, c := range cases {
		got := hexDigest(sha1Sum([]byte(c.in)))
		if got != c.want {
			t.Errorf("sha1Sum(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestBase64EncodeKnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"f", "Zg=="},
		{"fo", "Zm8="},
		{"foo", "Zm9v"},
		{"foob", "Zm9vYg=="},
		{"fooba", "Zm9vYmE="},
		{"foobar", "Zm9vYmFy"},
	}
	for _, c := range cases {
		got := base64Encode([]byte(c.in))
		if got != c.want {
			t.Errorf("base64Encode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPerformServerHandshake(t *testing.T) {
	request := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: WebSocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"

	r := bufio.NewReader(strings.NewReader(request))
	var out bytes.Buffer
	if err := PerformServerHandshake(r, &out); err != nil {
		t.Fatalf("PerformServerHandshake: %v", err)
	}

	resp := out.String()
	if !strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Fatalf("unexpected status line in response: %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n") {
		t.Fatalf("missing expected accept key in response: %q", resp)
	}
}

func TestPerformServerHandshakeRejectsMissingUpgrade(t *testing.T) {
	request := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(request))
	var out bytes.Buffer
	if err := PerformServerHandshake(r, &out); err == nil {
		t.Fatal("expected error for missing Upgrade header")
	}
}

func TestPerformServerHandshakeRejectsMissingKey(t *testing.T) {
	request := "GET /ws HTTP/1.1\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(request))
	var out bytes.Buffer
	if err := PerformServerHandshake(r, &out); err == nil {
		t.Fatal("expected error for missing Sec-WebSocket-Key header")
	}
}

func TestPerformServerHandshakeCapsHeaderSize(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("GET / HTTP/1.1\r\n")
	for sb.Len() < maxHandshakeBytes+1024 {
		sb.WriteString("X-Pad: filler-filler-filler-filler-filler\r\n")
	}
	r := bufio.NewReader(strings.NewReader(sb.String()))
	var out bytes.Buffer
	if err := PerformServerHandshake(r, &out); err == nil {
		t.Fatal("expected error for oversized header block")
	}
}

func hexDigest(sum [20]byte) string {
	const hexChars = "0123456789abcdef"
	out := make([]byte, 40)
	for i, b := range sum {
		out[i*2] = hexChars[b>>4]
		out[i*2+1] = hexChars[b&0xF]
	}
	return string(out)
}
