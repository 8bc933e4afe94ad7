package gateway

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/a2fsdk/inference-gateway/pkg/wsproto"
)

// maxFramePayload is the 4 MiB cap from §4.1/§6.3.
const maxFramePayload = 4 * 1024 * 1024

// connState is the Connection Handler state machine's current state (§4.2).
type connState int

const (
	stateHandshaking connState = iota
	stateIdle
	stateActive
	stateTeardown
)

// Connection owns one accepted net.Conn end to end: handshake, dispatch
// loop, and slot lifecycle. It implements the gateway.Socket interface so a
// Session Context can send through it without knowing about net.Conn.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader

	id string // per-connection correlation ID, distinct from session_id (§DOMAIN STACK)

	pool    *Pool
	cfg     Config
	schemas *messageSchemas
	logger  Logger

	state   connState
	session *SessionContext
}

// NewConnection wraps an accepted net.Conn. The caller is responsible for
// calling Serve (typically in its own goroutine) and for closing conn when
// Serve returns, if it hasn't already closed.
func NewConnection(conn net.Conn, pool *Pool, cfg Config, schemas *messageSchemas, logger Logger) *Connection {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Connection{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		id:      uuid.NewString(),
		pool:    pool,
		cfg:     cfg,
		schemas: schemas,
		logger:  logger,
		state:   stateHandshaking,
	}
}

// SendControl implements Socket: marshals msg as JSON and writes it as a
// Text frame.
func (c *Connection) SendControl(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: marshal control message: %w", err)
	}
	return wsproto.WriteFrame(c.conn, wsproto.OpcodeText, data)
}

// SendBinary implements Socket: writes payload as a Binary frame.
func (c *Connection) SendBinary(payload []byte) error {
	return wsproto.WriteFrame(c.conn, wsproto.OpcodeBinary, payload)
}

// Serve runs the handshake and the dispatch loop until the connection ends,
// releasing any held slot on the way out. It never returns an error the
// caller needs to act on beyond logging: all failure paths already mean
// "this connection is finished."
func (c *Connection) Serve() {
	defer c.teardown()

	if err := wsproto.PerformServerHandshake(c.reader, c.conn); err != nil {
		c.logger.WarnPrintf("conn %s: handshake: %v", c.id, err)
		return
	}
	c.state = stateIdle
	c.logger.InfoPrintf("conn %s: handshake ok, remote=%s", c.id, c.conn.RemoteAddr())

	for {
		frame, err := wsproto.ReadFrame(c.reader, maxFramePayload)
		if err != nil {
			c.logger.DebugPrintf("conn %s: read frame: %v", c.id, err)
			return
		}
		if !c.handleFrame(frame) {
			return
		}
	}
}

// handleFrame dispatches one frame and reports whether the connection
// should keep running.
func (c *Connection) handleFrame(frame wsproto.Frame) bool {
	switch frame.Opcode {
	case wsproto.OpcodeText:
		return c.handleText(frame.Payload)
	case wsproto.OpcodeBinary:
		return c.handleBinary(frame.Payload)
	case wsproto.OpcodePing:
		if err := wsproto.WriteFrame(c.conn, wsproto.OpcodePong, frame.Payload); err != nil {
			c.logger.DebugPrintf("conn %s: write pong: %v", c.id, err)
			return false
		}
		return true
	case wsproto.OpcodePong:
		return true
	case wsproto.OpcodeClose:
		wsproto.WriteFrame(c.conn, wsproto.OpcodeClose, frame.Payload)
		return false
	default:
		c.logger.DebugPrintf("conn %s: unexpected opcode %s", c.id, frame.Opcode)
		return false
	}
}

// handleText dispatches a Text frame by StartSession/EndSession/unknown,
// per §4.2's IDLE/ACTIVE rules.
func (c *Connection) handleText(payload []byte) bool {
	var env controlEnvelope
	if err := decodeControlMessage(payload, &env); err != nil {
		c.replyError("Unknown message type")
		return true
	}

	if c.schemas != nil {
		if err := c.schemas.validateAgainstSchema(env.Type, payload); err != nil {
			c.replyError(err.Error())
			return true
		}
	}

	switch env.Type {
	case "StartSession":
		return c.handleStartSession(payload)
	case "EndSession":
		return c.handleEndSession(payload)
	default:
		c.replyError("Unknown message type")
		return true
	}
}

func (c *Connection) handleStartSession(payload []byte) bool {
	if c.state == stateActive {
		c.replyError("Session already started for this connection")
		return true
	}

	var req StartSessionRequest
	if err := decodeControlMessage(payload, &req); err != nil {
		c.replyError("Unknown message type")
		return true
	}

	session, err := c.pool.Acquire(c)
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			c.replyError("Server busy (no free sessions)")
			return true
		}
		c.logger.ErrorPrintf("conn %s: acquire session: %v", c.id, err)
		c.replyError(fmt.Sprintf("internal: %v", err))
		return true
	}

	if err := ValidateStartSession(&req, c.cfg, session.Metadata()); err != nil {
		c.pool.Release(session)
		c.replyError(err.Error())
		return true
	}

	c.session = session
	c.state = stateActive
	c.logger.InfoPrintf("conn %s: session %s started (slot %d)", c.id, session.SessionID(), session.Index())

	if err := c.SendControl(session.Describe(&c.cfg)); err != nil {
		c.logger.DebugPrintf("conn %s: send SessionStarted: %v", c.id, err)
		return false
	}
	return true
}

func (c *Connection) handleEndSession(payload []byte) bool {
	if c.state != stateActive || c.session == nil {
		c.replyError("No active session for this connection")
		return true
	}

	var req EndSessionRequest
	if err := decodeControlMessage(payload, &req); err != nil {
		c.replyError("Unknown message type")
		return true
	}
	if req.SessionID != "" && req.SessionID != c.session.SessionID() {
		c.replyError("Session ID does not match")
		return true
	}

	sessionID := c.session.SessionID()
	c.pool.Release(c.session)
	c.session = nil
	c.state = stateIdle

	if err := c.SendControl(SessionEndedMessage{Type: "SessionEnded", SessionID: sessionID}); err != nil {
		c.logger.DebugPrintf("conn %s: send SessionEnded: %v", c.id, err)
		return false
	}
	return true
}

// handleBinary dispatches a Binary frame as PushAudio, per §4.2/§6.3.
func (c *Connection) handleBinary(payload []byte) bool {
	if c.state != stateActive || c.session == nil {
		c.replyError("StartSession must be called before PushAudio")
		return true
	}

	startSample, pcm, err := decodePushAudio(payload)
	if err != nil {
		c.replyError(err.Error())
		return true
	}

	if err := c.session.PushAudio(startSample, pcm); err != nil {
		if errors.Is(err, ErrSlotClosed) {
			return false
		}
		// Errors other than a failed flush were already reported on the
		// wire by the session itself; an I/O failure (the session could not
		// write to the socket) ends the connection.
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			c.logger.DebugPrintf("conn %s: push audio: %v", c.id, err)
			return false
		}
		c.logger.DebugPrintf("conn %s: push audio: %v", c.id, err)
		return true
	}
	return true
}

func (c *Connection) replyError(message string) {
	if err := c.SendControl(ErrorMessage{Type: "Error", Message: message}); err != nil {
		c.logger.DebugPrintf("conn %s: send error reply: %v", c.id, err)
	}
}

// teardown releases any held slot and closes the socket, matching §4.2's
// TEARDOWN state.
func (c *Connection) teardown() {
	c.state = stateTeardown
	if c.session != nil {
		c.pool.Release(c.session)
		c.session = nil
	}
	c.conn.Close()
}
