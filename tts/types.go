// Package tts defines the core types shared by the readaloud
// generation and playback pipeline.
package tts

import (
	"time"
)

// Sentence is one segmentation unit of input text. It is the atomic
// unit of synthesis, caching and streaming. A Sentence is never
// mutated after creation; Index is 0-based and stable.
type Sentence struct {
	Index    int           // Position within the request
	Text     string        // Normalized plain text
	Duration time.Duration // Estimated speaking duration
}

// GenerationRequest describes one user-initiated playback request.
// It is immutable and discarded once its stream completes.
type GenerationRequest struct {
	RawText   string
	Voice     string
	Preset    string
	RequestID string
}

// AudioUnit is the synthesized audio payload for one
// (sentence, voice, preset) combination. The payload is immutable
// once written; LastAccessed is bumped on every cache hit.
type AudioUnit struct {
	Key          string
	Data         []byte
	Duration     time.Duration
	CreatedAt    time.Time
	LastAccessed time.Time
}

// JobState tracks the lifecycle of one synthesis attempt.
// Transitions are one-directional: queued -> running -> done|failed,
// or -> cancelled from queued/running.
type JobState int32

const (
	// JobQueued means the job is waiting for a worker slot.
	JobQueued JobState = iota
	// JobRunning means the engine call is in flight.
	JobRunning
	// JobDone means synthesis succeeded and the result was cached.
	JobDone
	// JobFailed means the engine call failed or timed out.
	JobFailed
	// JobCancelled means every waiter went away before completion.
	JobCancelled
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobDone:
		return "done"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Voice represents a synthesis voice.
type Voice struct {
	ID       string // Voice identifier
	Name     string // Human-readable name
	Language string // Language code (e.g. "en-US")
	Gender   string // Voice gender
}

// Preset identifies a generation quality/speed trade-off. The set is
// fixed by the synthesis engine family.
type Preset struct {
	ID          string
	Description string
}

// Presets lists the supported generation presets, fastest first.
func Presets() []Preset {
	return []Preset{
		{ID: "ultrafast", Description: "Fastest generation, lower quality"},
		{ID: "fast", Description: "Fast generation, good quality"},
		{ID: "standard", Description: "Balanced speed and quality"},
		{ID: "high_quality", Description: "Slowest generation, highest quality"},
	}
}

// DefaultVoice is used when a request does not name a voice.
const DefaultVoice = "random"

// DefaultPreset is used when a request does not name a preset.
const DefaultPreset = "fast"

// ValidPreset reports whether id names a known preset.
func ValidPreset(id string) bool {
	for _, p := range Presets() {
		if p.ID == id {
			return true
		}
	}
	return false
}
