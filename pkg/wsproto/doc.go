// Package wsproto implements the WebSocket server handshake and frame codec
// from scratch: no net/http, no gorilla/websocket, and no crypto/sha1 or
// encoding/base64 on the server path. The handshake accept-key computation
// (RFC 6455 §1.3) needs exactly one SHA-1 digest and one base64 encoding per
// connection, so both are implemented here rather than pulled in as library
// dependencies for two functions' worth of use.
package wsproto
