package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors, following the same one-error.go-per-package convention as
// the teacher's mqtt0 package.
var (
	// ErrPoolExhausted is returned by Pool.Acquire when no free slot exists.
	ErrPoolExhausted = errors.New("gateway: no free sessions")

	// ErrSlotClosed is returned when an operation targets a released slot.
	ErrSlotClosed = errors.New("gateway: session slot is not active")

	// ErrSessionAlreadyStarted names StartSession being sent twice on the
	// same connection. The connection handler reports that case as a Text
	// Error message and does not return this value.
	ErrSessionAlreadyStarted = errors.New("gateway: session already started")

	// ErrNoActiveSession names EndSession/PushAudio without a prior
	// successful StartSession. The connection handler reports that case as
	// a Text Error message and does not return this value.
	ErrNoActiveSession = errors.New("gateway: no active session for this connection")

	// ErrSessionIDMismatch names an EndSession whose session_id does not
	// match the bound slot's. The connection handler reports that case as a
	// Text Error message and does not return this value.
	ErrSessionIDMismatch = errors.New("gateway: session ID does not match")

	// ErrTooManyPendingFrames is returned by the device-results callback
	// when the client has not drained fast enough (§4.3, K_max).
	ErrTooManyPendingFrames = errors.New("gateway: too many pending frames")

	// ErrAudioOutOfOrder is returned when PushAudio's start_sample_index is
	// less than what has already been accumulated.
	ErrAudioOutOfOrder = errors.New("gateway: out-of-order audio")

	// ErrAudioGapTooLarge is returned when PushAudio's gap from the last
	// accumulated sample exceeds maxAudioGapSamples.
	ErrAudioGapTooLarge = errors.New("gateway: audio gap too large")

	// ErrListenerClosed names a closed listener. Server.Serve does not
	// return it: Serve returns nil once its listener is closed.
	ErrListenerClosed = errors.New("gateway: listener closed")
)

// validationError wraps a §4.7 StartSession validation failure with the
// precise message text clients may match on (§ SUPPLEMENTED FEATURES).
type validationError struct {
	message string
}

func (e *validationError) Error() string { return e.message }

func newValidationError(format string, args ...any) error {
	return &validationError{message: fmt.Sprintf(format, args...)}
}
