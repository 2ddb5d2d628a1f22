// Package mock provides a synthesis engine for tests and demos. It
// produces silence sized to the estimated speaking duration.
package mock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/engines"
)

// Engine implements engines.Engine without an external model.
type Engine struct {
	delay          time.Duration
	wordsPerMinute int

	mu           sync.Mutex
	shouldFail   bool
	failureError error

	available atomic.Bool
	callCount atomic.Int64
}

var _ engines.Engine = (*Engine)(nil)

// New creates a mock engine.
func New(cfg tts.MockConfig) *Engine {
	wpm := cfg.WordsPerMinute
	if wpm <= 0 {
		wpm = 150
	}
	e := &Engine{
		delay:          cfg.GenerationDelay,
		wordsPerMinute: wpm,
	}
	e.available.Store(true)
	return e
}

// Synthesize produces a WAV payload of silence.
func (e *Engine) Synthesize(ctx context.Context, text, voice, preset string) ([]byte, error) {
	e.callCount.Add(1)

	if !e.available.Load() {
		return nil, tts.ErrEngineShutdown
	}

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	fail, failErr := e.shouldFail, e.failureError
	e.mu.Unlock()
	if fail {
		return nil, failErr
	}

	duration := e.estimateDuration(text)
	samples := int(duration.Seconds() * float64(tts.DefaultSampleRate))
	pcm := make([]byte, samples*2)

	return tts.EncodeWAV(pcm, tts.DefaultSampleRate, tts.DefaultChannels), nil
}

// Voices returns the stock voice list.
func (e *Engine) Voices() []tts.Voice {
	return engines.DefaultVoices()
}

// Available reports readiness.
func (e *Engine) Available() bool {
	return e.available.Load()
}

// Name identifies the engine.
func (e *Engine) Name() string {
	return "mock"
}

// Shutdown marks the engine unavailable.
func (e *Engine) Shutdown() error {
	e.available.Store(false)
	return nil
}

// Test control methods

// SetDelay sets the simulated synthesis delay.
func (e *Engine) SetDelay(delay time.Duration) {
	e.delay = delay
}

// SetFailure configures the engine to fail with the given error.
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = true
	e.failureError = err
}

// ClearFailure resets the engine to normal operation.
func (e *Engine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = false
	e.failureError = nil
}

// CallCount returns the number of Synthesize calls.
func (e *Engine) CallCount() int64 {
	return e.callCount.Load()
}

// estimateDuration estimates speaking duration for text.
func (e *Engine) estimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words < 1 {
		words = 1
	}
	seconds := float64(words) * 60.0 / float64(e.wordsPerMinute)
	return time.Duration(seconds * float64(time.Second))
}
