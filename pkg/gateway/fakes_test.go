package gateway

import (
	"errors"
	"sync"
)

// fakeStream is a gateway.Stream stand-in that records how many times
// Synchronize was called and can be told to fail (syncErr is returned from
// every call while it is set).
type fakeStream struct {
	mu          sync.Mutex
	id          uint64
	syncCalls   int
	syncErr     error
}

func (s *fakeStream) ID() uint64 { return s.id }

func (s *fakeStream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncCalls++
	return s.syncErr
}

// fakeExecutor is a scriptable Executor: each entry in batches is emitted by
// one Execute call via onResults, in order. HasReadyWork reports true while
// entries remain.
type fakeExecutor struct {
	metaWeightCount int
	onResults       DeviceResultsFunc
	stream          *fakeStream

	// batches is consumed one entry per Execute call; each entry is a list
	// of DeviceResults delivered to onResults within that single Execute
	// call, so a test can exercise "one Execute invokes the callback many
	// times" the way a real executor batching several device completions
	// would (§4.3).
	batches [][]DeviceResults

	executeErr error
	waitErr    error
	resetErr   error
	closeErr   error

	nextAudioSample   int64
	nextEmotionSample int64

	waitCalls  int
	resetCalls int
	closeCalls int
}

func newFakeExecutor(weightCount int, onResults DeviceResultsFunc) *fakeExecutor {
	return &fakeExecutor{
		metaWeightCount: weightCount,
		onResults:       onResults,
		stream:          &fakeStream{id: 1},
	}
}

func (e *fakeExecutor) HasReadyWork() bool {
	return len(e.batches) > 0
}

// addResult enqueues a single-item batch: the common case of one Execute
// call producing exactly one device result.
func (e *fakeExecutor) addResult(r DeviceResults) {
	e.batches = append(e.batches, []DeviceResults{r})
}

func (e *fakeExecutor) Execute() error {
	if e.executeErr != nil {
		return e.executeErr
	}
	if len(e.batches) == 0 {
		return nil
	}
	batch := e.batches[0]
	e.batches = e.batches[1:]
	for _, next := range batch {
		if next.Stream == nil {
			next.Stream = e.stream
		}
		if !e.onResults(next) {
			break
		}
	}
	return nil
}

func (e *fakeExecutor) NextAudioSampleToRead() int64   { return e.nextAudioSample }
func (e *fakeExecutor) NextEmotionSampleToRead() int64 { return e.nextEmotionSample }

func (e *fakeExecutor) Wait() error {
	e.waitCalls++
	return e.waitErr
}

func (e *fakeExecutor) Reset() error {
	e.resetCalls++
	e.batches = nil
	return e.resetErr
}

func (e *fakeExecutor) Close() error {
	e.closeCalls++
	return e.closeErr
}

// fakeFactory constructs fakeExecutors with a fixed Metadata, and keeps
// track of every executor it built so tests can reach into them.
type fakeFactory struct {
	meta Metadata

	mu        sync.Mutex
	built     []*fakeExecutor
	newErr    error
}

func newFakeFactory(weightCount int) *fakeFactory {
	skin := make([]string, weightCount)
	for i := range skin {
		skin[i] = "ch"
	}
	return &fakeFactory{
		meta: Metadata{
			SamplingRate:   16000,
			FrameRate:      FrameRate{Numerator: 60, Denominator: 1},
			SkinChannels:   skin,
			EmotionSize:    4,
		},
	}
}

func (f *fakeFactory) New(opts ExecutorOptions, audio, emotion *Accumulator, onResults DeviceResultsFunc) (Executor, Metadata, error) {
	if f.newErr != nil {
		return nil, Metadata{}, f.newErr
	}
	e := newFakeExecutor(f.meta.WeightCount(), onResults)
	f.mu.Lock()
	f.built = append(f.built, e)
	f.mu.Unlock()
	return e, f.meta, nil
}

func (f *fakeFactory) last() *fakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}

// fakeSocket records every message sent through it and can be told to fail
// every binary send (sendBinaryErr).
type fakeSocket struct {
	mu           sync.Mutex
	controls     []any
	binaries     [][]byte
	sendBinaryErr error
}

func (s *fakeSocket) SendControl(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, msg)
	return nil
}

func (s *fakeSocket) SendBinary(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendBinaryErr != nil {
		return s.sendBinaryErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.binaries = append(s.binaries, cp)
	return nil
}

var errFakeSend = errors.New("fake send failure")
