package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

const (
	// kMaxPendingFrames is K_max (§3, §4.3): the pinned staging buffer
	// holds this many frames' worth of weights before the client is
	// considered too slow.
	kMaxPendingFrames = 256
	// kFlushThreshold is K_flush (§4.3 PushAudio step 5).
	kFlushThreshold = 32
	// maxAudioGapSamples is the "gap too large" heuristic, 10s at 16kHz
	// (§4.3, §9 Open questions — intentionally not configurable).
	maxAudioGapSamples = 160000
)

// Socket is the narrow send-side contract the Session Context needs from
// its bound connection: encode and transmit one control message, or one
// binary frame. The connection owns the underlying net.Conn; the Session
// Context holds this only as a weak reference (§9 Ownership) and never
// closes it itself.
type Socket interface {
	SendControl(msg any) error
	SendBinary(payload []byte) error
}

// SessionContext is one pool slot: an executor bundle, its audio and
// emotion accumulators, a pinned staging buffer, and the queue of frames
// waiting to be flushed (§3).
type SessionContext struct {
	index int

	mu sync.Mutex

	executor Executor
	meta     Metadata

	audioAcc   *Accumulator
	emotionAcc *Accumulator

	staging       []float32
	pendingFrames []PendingFrame
	lastStream    Stream
	nextFrameIdx  uint64
	callbackErr   error

	sessionID string
	sock      Socket

	opts ExecutorOptions

	logger Logger
}

// NewSessionContext constructs one slot: it builds the executor bundle via
// factory, caches its Metadata, allocates pinned staging, and calls
// ResetForReuse (§4.3 Init).
func NewSessionContext(index int, factory ExecutorFactory, opts ExecutorOptions, logger Logger) (*SessionContext, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &SessionContext{
		index:      index,
		audioAcc:   NewAccumulator(),
		emotionAcc: NewAccumulator(),
		opts:       opts,
		logger:     logger,
	}

	executor, meta, err := factory.New(opts, c.audioAcc, c.emotionAcc, c.onDeviceResults)
	if err != nil {
		return nil, fmt.Errorf("gateway: session %d: construct executor: %w", index, err)
	}
	if meta.WeightCount() == 0 {
		executor.Close()
		return nil, fmt.Errorf("gateway: session %d: executor metadata has zero weight_count", index)
	}
	c.executor = executor
	c.meta = meta
	c.staging = make([]float32, kMaxPendingFrames*meta.WeightCount())

	if err := c.ResetForReuse(); err != nil {
		executor.Close()
		return nil, fmt.Errorf("gateway: session %d: %w", index, err)
	}
	return c, nil
}

// Index returns this slot's position in the pool.
func (c *SessionContext) Index() int { return c.index }

// Metadata returns the executor bundle's cached, fixed metadata.
func (c *SessionContext) Metadata() Metadata {
	return c.meta
}

// SessionID returns the currently bound session's ID, or "" if unbound.
func (c *SessionContext) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ResetForReuse quiesces the executor, clears all accumulator and
// pending-frame state, and re-accumulates the neutral emotion vector
// (§3, §4.3). Called by the pool on Acquire, before Start binds a socket.
func (c *SessionContext) ResetForReuse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetForReuseLocked()
}

func (c *SessionContext) resetForReuseLocked() error {
	if err := c.executor.Wait(); err != nil {
		return fmt.Errorf("reset: wait: %w", err)
	}
	if err := c.executor.Reset(); err != nil {
		return fmt.Errorf("reset: executor: %w", err)
	}
	c.audioAcc.Reset()
	c.emotionAcc.Reset()
	if c.meta.EmotionSize > 0 {
		c.emotionAcc.Push(make([]float32, c.meta.EmotionSize))
	}
	c.emotionAcc.Close()
	c.pendingFrames = c.pendingFrames[:0]
	c.nextFrameIdx = 0
	c.lastStream = nil
	c.callbackErr = nil
	c.sessionID = ""
	return nil
}

// Start binds sock to this slot and mints a fresh session_id: 16 random
// bytes, lowercase hex (§3).
func (c *SessionContext) Start(sock Socket) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("gateway: start session: %w", err)
	}
	c.mu.Lock()
	c.sessionID = id
	c.sock = sock
	c.mu.Unlock()
	return id, nil
}

// Stop detaches the bound socket without touching accumulator or executor
// state; the pool's next Acquire of this slot calls ResetForReuse before
// binding a new socket.
func (c *SessionContext) Stop() {
	c.mu.Lock()
	c.sock = nil
	c.mu.Unlock()
}

// Describe builds the SessionStarted payload (§4.3 DescribeSessionStarted).
func (c *SessionContext) Describe(cfg *Config) SessionStartedMessage {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	return SessionStartedMessage{
		Type:     "SessionStarted",
		Protocol: ProtocolInfo{Version: 1},
		SessionID: sessionID,
		Model:     cfg.Model,
		Options: StartOptions{
			UseGPUSolver:    c.opts.UseGPUSolver,
			ExecutionOption: c.opts.ExecutionOption.String(),
		},
		SamplingRate: c.meta.SamplingRate,
		FrameRate: FrameRateMessage{
			Numerator:   c.meta.FrameRate.Numerator,
			Denominator: c.meta.FrameRate.Denominator,
		},
		WeightCount: c.meta.WeightCount(),
		Channels:    c.meta.Channels(),
		ChannelGroups: []ChannelGroup{
			{Name: "skin", Count: len(c.meta.SkinChannels)},
			{Name: "tongue", Count: len(c.meta.TongueChannels)},
		},
	}
}

// PushAudio implements §4.3 PushAudio: validates ordering, zero-fills gaps,
// accumulates PCM as float32, drains ready executor work, flushes, and
// drops consumed history. Errors other than a failed flush are reported to
// the bound socket as a Text Error message and returned; a flush error is
// returned without an Error message, and a flush (socket write) failure is
// the one the caller treats as fatal for the connection.
func (c *SessionContext) PushAudio(startSample int64, pcm []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sock == nil {
		return ErrSlotClosed
	}

	if startSample < 0 {
		return c.sendErrorLocked(newValidationError("PushAudio: start_sample_index must be non-negative"))
	}

	accumulated := c.audioAcc.Accumulated()
	if startSample < accumulated {
		return c.sendErrorLocked(fmt.Errorf("%w: start_sample_index %d precedes accumulated %d", ErrAudioOutOfOrder, startSample, accumulated))
	}
	gap := startSample - accumulated
	if gap > maxAudioGapSamples {
		return c.sendErrorLocked(fmt.Errorf("%w: gap of %d samples exceeds %d", ErrAudioGapTooLarge, gap, maxAudioGapSamples))
	}
	if gap > 0 {
		c.audioAcc.PushZeros(int(gap))
	}

	samples := pcm16ToFloat32(pcm)
	c.audioAcc.Push(samples)

	for c.executor.HasReadyWork() {
		c.callbackErr = nil
		if err := c.executor.Execute(); err != nil {
			return c.sendErrorLocked(fmt.Errorf("executor: %w", err))
		}
		if c.callbackErr != nil {
			return c.sendErrorLocked(c.callbackErr)
		}
		if len(c.pendingFrames) >= kFlushThreshold {
			if err := c.flushLocked(); err != nil {
				return err
			}
		}
	}
	if err := c.flushLocked(); err != nil {
		return err
	}

	c.audioAcc.DropBefore(c.executor.NextAudioSampleToRead())
	c.emotionAcc.DropBefore(c.executor.NextEmotionSampleToRead())
	return nil
}

// onDeviceResults is registered with the executor at construction. It must
// only be invoked synchronously from within Executor.Execute, on the same
// goroutine that already holds c.mu inside PushAudio (§9 Callback
// re-entrancy) — it deliberately does not lock c.mu itself.
func (c *SessionContext) onDeviceResults(res DeviceResults) bool {
	if c.sock == nil {
		return false
	}
	w := c.meta.WeightCount()
	if len(res.Weights) != w {
		c.callbackErr = fmt.Errorf("device results: got %d weights, want %d", len(res.Weights), w)
		return false
	}
	if len(c.pendingFrames) >= kMaxPendingFrames {
		c.callbackErr = ErrTooManyPendingFrames
		return false
	}

	slot := len(c.pendingFrames)
	copy(c.staging[slot*w:(slot+1)*w], res.Weights)
	c.lastStream = res.Stream

	frameIndex := c.nextFrameIdx
	c.nextFrameIdx++
	c.pendingFrames = append(c.pendingFrames, PendingFrame{
		FrameIndex: frameIndex,
		TsCurrent:  res.TsCurrent,
		TsNext:     res.TsNext,
		SlotIndex:  uint32(slot),
	})
	return true
}

// flushLocked synchronizes the recorded stream and writes every pending
// frame to the socket in enqueue order, then clears the queue (§4.3 Flush).
func (c *SessionContext) flushLocked() error {
	if len(c.pendingFrames) == 0 {
		return nil
	}
	if c.lastStream == nil {
		return fmt.Errorf("gateway: flush: no stream recorded for %d pending frames", len(c.pendingFrames))
	}
	if err := c.lastStream.Synchronize(); err != nil {
		return fmt.Errorf("gateway: flush: synchronize: %w", err)
	}

	w := c.meta.WeightCount()
	for _, pf := range c.pendingFrames {
		weights := c.staging[int(pf.SlotIndex)*w : (int(pf.SlotIndex)+1)*w]
		payload := EncodeBlendshapeFrame(pf, weights)
		if err := c.sock.SendBinary(payload); err != nil {
			return fmt.Errorf("gateway: flush: send frame %d: %w", pf.FrameIndex, err)
		}
	}
	c.pendingFrames = c.pendingFrames[:0]
	return nil
}

// sendErrorLocked best-effort sends err as a Text Error message on the
// bound socket and returns err unchanged, so the caller still knows the
// operation failed even though the failure was already reported on the
// wire.
func (c *SessionContext) sendErrorLocked(err error) error {
	if sendErr := c.sock.SendControl(ErrorMessage{Type: "Error", Message: err.Error()}); sendErr != nil {
		c.logger.WarnPrintf("session %s: send error message: %v", c.sessionID, sendErr)
	}
	return err
}

func pcm16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
