// Package softexec is a deterministic, CPU-only gateway.ExecutorFactory. It
// exists because the real neural inference engine is an opaque external
// collaborator (no implementation ships in this repository); softexec lets
// the gateway binary and its integration tests run end to end without one.
//
// It honors the same contract pkg/gateway's Session Context relies on:
// HasReadyWork/Execute driven from PushAudio, a device-results callback
// invoked synchronously from within Execute, and a Stream whose Synchronize
// a flush can call. There is no real device here, so Synchronize is a no-op
// and results are produced the moment enough audio has accumulated.
package softexec

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/a2fsdk/inference-gateway/pkg/gateway"
)

var streamIDs atomic.Uint64

// skinChannels and tongueChannels are placeholder pose names in the same
// two-group shape §4.3/§9's Channels() builder expects (skin solver poses
// followed by tongue solver poses).
var (
	skinChannels = []string{
		"browInnerUp", "browDownLeft", "browDownRight",
		"eyeBlinkLeft", "eyeBlinkRight",
		"jawOpen", "mouthSmileLeft", "mouthSmileRight",
	}
	tongueChannels = []string{"tongueOut", "tongueUp"}
)

// Factory constructs softExecutors. It is stateless and safe to share
// across every Session Context slot.
type Factory struct{}

var _ gateway.ExecutorFactory = Factory{}

// New implements gateway.ExecutorFactory.
func (Factory) New(opts gateway.ExecutorOptions, audio, emotion *gateway.Accumulator, onResults gateway.DeviceResultsFunc) (gateway.Executor, gateway.Metadata, error) {
	rate := opts.FrameRate
	if rate.Numerator <= 0 || rate.Denominator <= 0 {
		rate = gateway.FrameRate{Numerator: 60, Denominator: 1}
	}
	meta := gateway.Metadata{
		SamplingRate:   16000,
		FrameRate:      rate,
		SkinChannels:   skinChannels,
		TongueChannels: tongueChannels,
		EmotionSize:    8,
	}

	switch opts.ExecutionOption {
	case gateway.ExecutionNone, gateway.ExecutionSkin, gateway.ExecutionTongue, gateway.ExecutionSkinTongue:
	default:
		return nil, gateway.Metadata{}, fmt.Errorf("softexec: unknown execution option %v", opts.ExecutionOption)
	}

	e := &softExecutor{
		opts:      opts,
		meta:      meta,
		audio:     audio,
		emotion:   emotion,
		onResults: onResults,
	}
	e.stream = newStream()
	return e, meta, nil
}

// softExecutor is driven by exactly one goroutine at a time: the Session
// Context's mutex already serializes every call into it (§9 Ownership).
type softExecutor struct {
	opts gateway.ExecutorOptions
	meta gateway.Metadata

	audio   *gateway.Accumulator
	emotion *gateway.Accumulator

	onResults gateway.DeviceResultsFunc

	framesProduced uint64
	stopped        bool
	stream         *stream
}

// frameBoundary returns the cumulative absolute sample index at which frame
// n begins, computed from the rational frame rate so rounding never drifts
// across many frames.
func (e *softExecutor) frameBoundary(n uint64) int64 {
	num := int64(e.meta.SamplingRate) * int64(e.meta.FrameRate.Denominator) * int64(n)
	return num / int64(e.meta.FrameRate.Numerator)
}

func (e *softExecutor) HasReadyWork() bool {
	if e.stopped {
		return false
	}
	return e.audio.Accumulated() >= e.frameBoundary(e.framesProduced+1)
}

func (e *softExecutor) Execute() error {
	if e.stopped {
		return nil
	}
	tsCurrent := e.frameBoundary(e.framesProduced)
	tsNext := e.frameBoundary(e.framesProduced + 1)

	weights := e.synthesize(tsCurrent)
	e.framesProduced++

	if ok := e.onResults(gateway.DeviceResults{
		Weights:   weights,
		TsCurrent: tsCurrent,
		TsNext:    tsNext,
		Stream:    e.stream,
	}); !ok {
		e.stopped = true
	}
	return nil
}

// synthesize fabricates a deterministic weight vector from up to one
// second (SamplingRate samples) of retained audio starting at tsCurrent,
// fewer if less has accumulated, so repeated runs with the same input
// produce identical output. The emotion accumulator is not read.
func (e *softExecutor) synthesize(tsCurrent int64) []float32 {
	w := e.meta.WeightCount()
	out := make([]float32, w)

	window := e.audio.PeekFrom(tsCurrent, e.meta.SamplingRate)
	var energy float64
	n := len(window)
	for i := 0; i < n; i++ {
		v := float64(window[i])
		energy += v * v
	}
	if n > 0 {
		energy = math.Sqrt(energy / float64(n))
	}

	for i := range out {
		phase := float64(tsCurrent)/float64(e.meta.SamplingRate) + float64(i)
		out[i] = float32(clamp01(0.5 + 0.5*energy*math.Sin(phase)))
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (e *softExecutor) NextAudioSampleToRead() int64 {
	return e.frameBoundary(e.framesProduced)
}

func (e *softExecutor) NextEmotionSampleToRead() int64 {
	// The neutral emotion vector is accumulated once and held for the
	// session's lifetime (§4.3 ResetForReuse); softexec never consumes it.
	return 0
}

func (e *softExecutor) Wait() error {
	return nil
}

func (e *softExecutor) Reset() error {
	e.framesProduced = 0
	e.stopped = false
	e.stream = newStream()
	return nil
}

func (e *softExecutor) Close() error {
	return nil
}

// stream is a no-op gateway.Stream: there is no real device queue to drain,
// so Synchronize always succeeds immediately.
type stream struct {
	id uint64
}

func newStream() *stream {
	return &stream{id: streamIDs.Add(1)}
}

func (s *stream) ID() uint64 {
	return s.id
}

func (s *stream) Synchronize() error {
	return nil
}

var _ gateway.Stream = (*stream)(nil)
