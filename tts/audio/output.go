package audio

import (
	"io"
	"sync"

	"github.com/readaloud/readaloud/tts"
)

// Output is a continuous PCM16 sink. The controller hands it one
// reader per session; the output consumes it until EOF or Close.
type Output interface {
	// Start begins playback of the little-endian PCM16 stream.
	Start(r io.Reader, sampleRate, channels int) error

	// Pause suspends consumption; Resume continues it.
	Pause() error
	Resume() error

	// SetVolume scales playback between 0 and 1.
	SetVolume(v float64) error

	// Close tears down the output. In-flight reads are abandoned.
	Close() error
}

// MockOutput consumes the stream without a device. It drains the
// reader in the background so writers never block, which makes the
// controller's timing behavior testable.
type MockOutput struct {
	mu      sync.Mutex
	started bool
	paused  bool
	closed  bool
	volume  float64
	drained int64
	done    chan struct{}
}

var _ Output = (*MockOutput)(nil)

// NewMockOutput creates an output for tests.
func NewMockOutput() *MockOutput {
	return &MockOutput{volume: 1.0}
}

// Start begins draining r.
func (o *MockOutput) Start(r io.Reader, sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return tts.ErrOutputClosed
	}
	o.started = true
	o.done = make(chan struct{})
	go func() {
		defer close(o.done)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			o.mu.Lock()
			o.drained += int64(n)
			o.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Pause suspends the mock stream.
func (o *MockOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return tts.ErrOutputClosed
	}
	o.paused = true
	return nil
}

// Resume continues the mock stream.
func (o *MockOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return tts.ErrOutputClosed
	}
	o.paused = false
	return nil
}

// SetVolume records the volume.
func (o *MockOutput) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return tts.ErrInvalidVolume
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
	return nil
}

// Close tears down the output.
func (o *MockOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Volume returns the last volume set.
func (o *MockOutput) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Paused reports whether the output is paused.
func (o *MockOutput) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Drained returns the number of PCM bytes consumed.
func (o *MockOutput) Drained() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drained
}
