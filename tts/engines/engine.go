// Package engines provides synthesis engine implementations. The
// engine is a black box to the rest of the pipeline: given text, a
// voice and a preset it produces one WAV audio unit, possibly slowly,
// possibly failing.
package engines

import (
	"context"

	"github.com/readaloud/readaloud/tts"
)

// Engine is the interface to an external speech synthesizer. One call
// produces one audio unit; the scheduler serializes calls per worker
// slot, so implementations may assume bounded concurrency.
type Engine interface {
	// Synthesize converts text to a WAV payload. The call is
	// synchronous and may take seconds; ctx bounds it.
	Synthesize(ctx context.Context, text, voice, preset string) ([]byte, error)

	// Voices returns the voices this engine can speak with.
	Voices() []tts.Voice

	// Available reports whether the engine is ready for use.
	Available() bool

	// Name identifies the engine implementation.
	Name() string

	// Shutdown releases engine resources.
	Shutdown() error
}

// DefaultVoices is the stock voice list shipped with the synthesis
// model family.
func DefaultVoices() []tts.Voice {
	names := []string{
		"random", "angie", "daniel", "deniro", "emma", "freeman",
		"geralt", "halle", "jlaw", "lj", "mol", "pat", "rainbow",
		"snakes", "tim_reynolds", "tom", "weaver", "william",
	}
	voices := make([]tts.Voice, 0, len(names))
	for _, n := range names {
		voices = append(voices, tts.Voice{ID: n, Name: n, Language: "en-US"})
	}
	return voices
}

// HasVoice reports whether the engine offers the given voice ID.
func HasVoice(e Engine, id string) bool {
	for _, v := range e.Voices() {
		if v.ID == id {
			return true
		}
	}
	return false
}
