package tts

import (
	"errors"
	"fmt"
)

// Common errors for the readaloud pipeline.
var (
	// Engine errors
	ErrEngineNotAvailable = errors.New("synthesis engine is not available")
	ErrEngineShutdown     = errors.New("synthesis engine has been shut down")
	ErrVoiceNotFound      = errors.New("requested voice not found")
	ErrInvalidPreset      = errors.New("unknown generation preset")

	// Scheduler errors
	ErrSchedulerClosed = errors.New("scheduler has been shut down")
	ErrJobCancelled    = errors.New("synthesis job was cancelled")
	ErrJobTimeout      = errors.New("synthesis job timed out")

	// Transport errors
	ErrEmptyText        = errors.New("text is empty after trimming")
	ErrStreamTruncated  = errors.New("stream ended before all sentences were delivered")
	ErrStreamOutOfOrder = errors.New("stream delivered chunks out of order")

	// Playback errors
	ErrInvalidTransition = errors.New("invalid playback state transition")
	ErrInvalidVolume     = errors.New("volume must be between 0 and 1")
	ErrDecodeFailed      = errors.New("audio unit could not be decoded")
	ErrOutputClosed      = errors.New("audio output is closed")
)

// SynthesisError reports a per-sentence engine failure. It carries the
// sentence index so callers can show the failing position; sentences
// already delivered remain valid.
type SynthesisError struct {
	Index int    // Sentence index that failed
	Voice string // Voice in use
	Err   error  // Engine error detail
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for sentence %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying engine error.
func (e *SynthesisError) Unwrap() error {
	return e.Err
}
