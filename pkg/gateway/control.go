package gateway

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ProtocolInfo is the {"version":1} sub-object of SessionStarted.
type ProtocolInfo struct {
	Version int `json:"version"`
}

// StartOptions echoes the solver options a session was started with.
type StartOptions struct {
	UseGPUSolver    bool   `json:"use_gpu_solver"`
	ExecutionOption string `json:"execution_option"`
}

// FrameRateMessage is the wire shape of a {numerator,denominator} pair, used
// both in SessionStarted and in a client's StartSession.frame_rate.
type FrameRateMessage struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// ChannelGroup names one contiguous run of channels within
// SessionStarted.channels (skin first, then tongue, per §4.3).
type ChannelGroup struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SessionStartedMessage is the Server→Client reply to a successful
// StartSession (§6.2).
type SessionStartedMessage struct {
	Type          string           `json:"type"`
	Protocol      ProtocolInfo     `json:"protocol"`
	SessionID     string           `json:"session_id"`
	Model         string           `json:"model"`
	Options       StartOptions     `json:"options"`
	SamplingRate  int              `json:"sampling_rate"`
	FrameRate     FrameRateMessage `json:"frame_rate"`
	WeightCount   int              `json:"weight_count"`
	Channels      []string         `json:"channels"`
	ChannelGroups []ChannelGroup   `json:"channel_groups"`
}

// SessionEndedMessage is the Server→Client reply to a successful
// EndSession.
type SessionEndedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ErrorMessage is the Server→Client error envelope; Message text is part of
// the wire contract for every error kind in §7 and is reproduced verbatim
// for the validation/protocol strings listed under SUPPLEMENTED FEATURES.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StartSessionRequest is the Client→Server StartSession payload. FPS and
// FrameRate are mutually optional alternates (§4.7); Options is likewise
// optional. All fields use pointer/raw types so a present-but-wrong-typed
// field can be distinguished from an absent one during validation.
type StartSessionRequest struct {
	Type      string          `json:"type"`
	Model     json.RawMessage `json:"model,omitempty"`
	FPS       json.RawMessage `json:"fps,omitempty"`
	FrameRate json.RawMessage `json:"frame_rate,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// StartSessionOptions is the decoded shape of StartSessionRequest.Options.
// ValidateStartSession does not use it: it reads Options as a map of raw
// values so each field's type can be checked on its own.
type StartSessionOptions struct {
	UseGPUSolver    *bool   `json:"use_gpu_solver,omitempty"`
	ExecutionOption *string `json:"execution_option,omitempty"`
}

// EndSessionRequest is the Client→Server EndSession payload.
type EndSessionRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// controlEnvelope is decoded first to read just "type", before committing
// to a concrete request struct.
type controlEnvelope struct {
	Type string `json:"type"`
}

// decodeControlMessage unmarshals a Text frame's payload into v, retrying
// once through jsonrepair if the first attempt fails with a syntax error
// (§6.2, grounded on pkg/genx/json.go's unmarshalJSON).
func decodeControlMessage(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return err
	}
	fixed, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

// messageSchemas holds the once-generated JSON Schemas for the two
// Client→Server request shapes, resolved at process startup (§ DOMAIN
// STACK: jsonschema-go, grounded on pkg/genx/func_tool.go's jsonschema.For
// usage).
type messageSchemas struct {
	startSession *jsonschema.Resolved
	endSession   *jsonschema.Resolved
}

// newMessageSchemas generates and resolves both schemas once; called at
// server startup so a malformed schema is a fatal init error, not a
// per-request surprise.
func newMessageSchemas() (*messageSchemas, error) {
	startSchema, err := jsonschema.For[StartSessionRequest](nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: generate StartSession schema: %w", err)
	}
	startResolved, err := startSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve StartSession schema: %w", err)
	}
	endSchema, err := jsonschema.For[EndSessionRequest](nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: generate EndSession schema: %w", err)
	}
	endResolved, err := endSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve EndSession schema: %w", err)
	}
	return &messageSchemas{startSession: startResolved, endSession: endResolved}, nil
}

// validateAgainstSchema checks raw JSON (decoded through the same
// repair-and-retry pass as decodeControlMessage) against the schema for
// msgType, producing one precise Error.message for a structurally wrong
// request (wrong field type, e.g.) ahead of the semantic checks in
// ValidateStartSession (§6.2).
func (s *messageSchemas) validateAgainstSchema(msgType string, raw []byte) error {
	var resolved *jsonschema.Resolved
	switch msgType {
	case "StartSession":
		resolved = s.startSession
	case "EndSession":
		resolved = s.endSession
	default:
		return nil
	}
	var instance any
	if err := decodeControlMessage(raw, &instance); err != nil {
		return err
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%s: %w", msgType, err)
	}
	return nil
}

// blendshapeMagic is "A2FB" read little-endian, i.e. bytes 'A','2','F','B'.
const blendshapeMagic uint32 = 0x42463241
const blendshapeVersion uint32 = 1
const blendshapeHeaderSize = 40

// EncodeBlendshapeFrame serializes one PendingFrame plus its weights into
// the 40-byte-header binary layout of §6.4.
func EncodeBlendshapeFrame(pf PendingFrame, weights []float32) []byte {
	buf := make([]byte, blendshapeHeaderSize+4*len(weights))
	binary.LittleEndian.PutUint32(buf[0:4], blendshapeMagic)
	binary.LittleEndian.PutUint32(buf[4:8], blendshapeVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(weights)))
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	binary.LittleEndian.PutUint64(buf[16:24], pf.FrameIndex)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(pf.TsCurrent))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(pf.TsNext))
	for i, w := range weights {
		binary.LittleEndian.PutUint32(buf[blendshapeHeaderSize+4*i:blendshapeHeaderSize+4*i+4], math.Float32bits(w))
	}
	return buf
}

// decodePushAudio parses a Binary frame payload into its absolute start
// sample index and PCM16 samples (§6.3). Rejects anything shorter than the
// 8-byte header or with a trailing odd byte.
func decodePushAudio(payload []byte) (startSample int64, pcm []int16, err error) {
	if len(payload) < 8 || (len(payload)-8)%2 != 0 {
		return 0, nil, newValidationError("Invalid PushAudio binary payload")
	}
	startSample = int64(binary.LittleEndian.Uint64(payload[0:8]))
	n := (len(payload) - 8) / 2
	pcm = make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(payload[8+2*i : 10+2*i]))
	}
	return startSample, pcm, nil
}
