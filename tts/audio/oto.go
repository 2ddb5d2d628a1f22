package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/readaloud/readaloud/tts"
)

// OtoOutput plays PCM16 through the system audio device. The oto
// context is process-global and created lazily on first Start.
type OtoOutput struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	volume float64
	closed bool
}

var _ Output = (*OtoOutput)(nil)

// NewOtoOutput creates a device-backed output.
func NewOtoOutput() *OtoOutput {
	return &OtoOutput{volume: 1.0}
}

// Start opens the device for the stream's format and begins playback.
func (o *OtoOutput) Start(r io.Reader, sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return tts.ErrOutputClosed
	}
	if o.player != nil {
		return fmt.Errorf("output already started")
	}

	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("failed to open audio device: %w", err)
		}
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			return fmt.Errorf("audio device did not become ready")
		}
		o.ctx = ctx
	}

	o.player = o.ctx.NewPlayer(r)
	o.player.SetVolume(o.volume)
	o.player.Play()
	return nil
}

// Pause suspends the device.
func (o *OtoOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.player == nil {
		return tts.ErrOutputClosed
	}
	o.player.Pause()
	return nil
}

// Resume continues the device.
func (o *OtoOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.player == nil {
		return tts.ErrOutputClosed
	}
	o.player.Play()
	return nil
}

// SetVolume scales playback.
func (o *OtoOutput) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return tts.ErrInvalidVolume
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
	if o.player != nil {
		o.player.SetVolume(v)
	}
	return nil
}

// Close stops playback. The oto context itself cannot be torn down,
// so only the player is released.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if o.player != nil {
		err := o.player.Close()
		o.player = nil
		return err
	}
	return nil
}
