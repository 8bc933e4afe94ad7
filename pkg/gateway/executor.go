package gateway

// ExecutionOption selects which solver(s) the executor bundle runs, per
// §4.7/§6.1.
type ExecutionOption int

const (
	ExecutionNone ExecutionOption = iota
	ExecutionSkin
	ExecutionTongue
	ExecutionSkinTongue
)

func (o ExecutionOption) String() string {
	switch o {
	case ExecutionNone:
		return "None"
	case ExecutionSkin:
		return "Skin"
	case ExecutionTongue:
		return "Tongue"
	case ExecutionSkinTongue:
		return "SkinTongue"
	default:
		return "Unknown"
	}
}

// ParseExecutionOption matches s case-insensitively after stripping all
// non-alphanumeric characters, per main.cpp's ParseExecutionOption and
// §4.7's canonicalization note.
func ParseExecutionOption(s string) (ExecutionOption, bool) {
	switch canonicalizeToken(s) {
	case "skintongue":
		return ExecutionSkinTongue, true
	case "skin":
		return ExecutionSkin, true
	case "tongue":
		return ExecutionTongue, true
	case "none":
		return ExecutionNone, true
	default:
		return 0, false
	}
}

// FrameRate is a rational frames-per-second, e.g. {60, 1}.
type FrameRate struct {
	Numerator   int
	Denominator int
}

// ExecutorOptions parameterizes the construction of one executor bundle.
// Diffusion/DiffusionIdentity/DiffusionConstantNoise are opaque to the
// gateway: it only threads them through to the factory, exactly as the
// neural inference engine itself is out of scope (§1, § SUPPLEMENTED
// FEATURES).
type ExecutorOptions struct {
	CUDADevice             int
	Diffusion              bool
	DiffusionIdentity      uint32
	DiffusionConstantNoise bool
	ExecutionOption        ExecutionOption
	UseGPUSolver           bool
	FrameRate              FrameRate
}

// Metadata describes the fixed, model-derived properties of an executor
// bundle, cached by the Session Context at Init (§4.3).
type Metadata struct {
	SamplingRate   int
	FrameRate      FrameRate
	SkinChannels   []string
	TongueChannels []string
	EmotionSize    int
}

// Channels concatenates skin channel names followed by tongue channel
// names, matching BuildChannelList in the original inference_sessions.cpp.
func (m Metadata) Channels() []string {
	out := make([]string, 0, len(m.SkinChannels)+len(m.TongueChannels))
	out = append(out, m.SkinChannels...)
	out = append(out, m.TongueChannels...)
	return out
}

// WeightCount is the total number of blendshape channels.
func (m Metadata) WeightCount() int {
	return len(m.SkinChannels) + len(m.TongueChannels)
}

// Stream models a device compute stream. All DeviceResults enqueued on the
// same Stream are drained by a single Synchronize call (§4.3 Flush, §9
// Stream synchronization).
type Stream interface {
	// ID distinguishes one stream instance from another. The Session
	// Context does not consult it: each DeviceResults simply replaces the
	// recorded last stream.
	ID() uint64
	// Synchronize blocks until every compute enqueued on this stream (up to
	// the point Synchronize is called) has completed.
	Synchronize() error
}

// DeviceResults is one batch of inference output, scheduled on a stream but
// not yet guaranteed complete — the callback runs when the result is
// scheduled, not when it's finished (§4.3 Device-results callback).
type DeviceResults struct {
	Weights   []float32
	TsCurrent int64
	TsNext    int64
	Stream    Stream
}

// DeviceResultsFunc is registered once per executor. It returns false to
// tell the executor to stop invoking it (e.g. the session has been torn
// down and no socket is bound).
type DeviceResultsFunc func(DeviceResults) bool

// Executor is the opaque inference engine contract (§1's IExecutor): it
// consumes accumulated audio/emotion for exactly one track (§ GLOSSARY) and
// invokes a DeviceResultsFunc asynchronously with respect to a Stream. The
// real engine is out of scope; this interface is everything the Session
// Context needs from it.
type Executor interface {
	// HasReadyWork reports whether enough accumulated audio is available
	// to run another inference step.
	HasReadyWork() bool
	// Execute runs one inference step, synchronously with respect to GPU
	// submission (it may block on that) but asynchronously with respect to
	// completion: it may invoke the registered DeviceResultsFunc zero or
	// more times before returning, each call scheduled on some Stream.
	Execute() error
	// NextAudioSampleToRead is the absolute sample index up to which audio
	// has been consumed; used to drop consumed history (§4.3 step 7).
	NextAudioSampleToRead() int64
	// NextEmotionSampleToRead is the analogous cursor for the emotion
	// accumulator.
	NextEmotionSampleToRead() int64
	// Wait blocks until track 0 quiesces (§4.3 ResetForReuse).
	Wait() error
	// Reset clears all internal executor state, as if newly constructed.
	Reset() error
	// Close releases any resources held by the executor.
	Close() error
}

// ExecutorFactory constructs one executor bundle bound to the given audio
// and emotion accumulators, returning the bundle's fixed Metadata. One
// factory call happens per Session Context, once at pool Init (§4.4).
type ExecutorFactory interface {
	New(opts ExecutorOptions, audio, emotion *Accumulator, onResults DeviceResultsFunc) (Executor, Metadata, error)
}

// canonicalizeToken lowercases s and strips everything but ASCII
// alphanumerics, per §4.7/§9 Canonicalization.
func canonicalizeToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		}
	}
	return string(out)
}
