package tts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSynthesisErrorWrapping(t *testing.T) {
	cause := errors.New("engine crashed")
	err := &SynthesisError{Index: 7, Voice: "emma", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("SynthesisError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "sentence 7") {
		t.Errorf("Error message should name the sentence: %q", err.Error())
	}

	wrapped := fmt.Errorf("request failed: %w", err)
	var synthErr *SynthesisError
	if !errors.As(wrapped, &synthErr) {
		t.Error("errors.As should find SynthesisError through wrapping")
	}
	if synthErr.Index != 7 {
		t.Errorf("Index = %d, want 7", synthErr.Index)
	}
}

func TestJobStateString(t *testing.T) {
	states := map[JobState]string{
		JobQueued:    "queued",
		JobRunning:   "running",
		JobDone:      "done",
		JobFailed:    "failed",
		JobCancelled: "cancelled",
		JobState(99): "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
