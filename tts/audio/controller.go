package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/tts"
)

// Source yields audio payloads in sentence order. A generate stream
// from the client package satisfies it. Close cancels the stream; a
// Next blocked on the network returns promptly after Close.
type Source interface {
	SentenceCount() int
	Next() (index int, data []byte, err error)
	Close() error
}

// session is one playback run. Stop closes stopCh and the consuming
// goroutine checks it before touching controller state, so a goroutine
// left over from a stopped session can never corrupt the next one.
type session struct {
	src    Source
	stopCh chan struct{}
	doneCh chan struct{}
	stop   sync.Once
	done   sync.Once
}

func (s *session) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *session) finish() {
	s.done.Do(func() { close(s.doneCh) })
}

// Controller plays one generation stream gaplessly. Units are decoded
// as they arrive and appended to a single continuous PCM stream; the
// sentence position is derived from cumulative unit durations rather
// than per-unit playback events, so there is no seam between
// sentences.
type Controller struct {
	out Output
	sm  *stateMachine

	mu         sync.Mutex
	volume     float64
	sess       *session
	pw         *io.PipeWriter
	boundaries []time.Duration // Cumulative end offset per sentence
	total      time.Duration
	sentences  int // Announced session sentence count
	startedAt  time.Time
	pausedAt   time.Time
	pausedFor  time.Duration
	lastErr    error
}

// NewController creates a controller over an output device.
func NewController(out Output, volume float64) (*Controller, error) {
	if volume < 0 || volume > 1 {
		return nil, tts.ErrInvalidVolume
	}
	return &Controller{
		out:    out,
		sm:     newStateMachine(),
		volume: volume,
	}, nil
}

// Start begins a playback session over src. It returns once the
// session is accepted; playback and unit consumption run in the
// background until the stream finishes, fails or is stopped.
func (c *Controller) Start(ctx context.Context, src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sm.State()
	if s == StateFinished || s == StateError {
		// A settled session can be replaced without an explicit Stop.
		_ = c.sm.to(StateIdle)
		s = StateIdle
	}
	if s != StateIdle {
		return tts.ErrInvalidTransition
	}
	if err := c.sm.to(StateLoadingInitial); err != nil {
		return err
	}

	c.pw = nil
	c.boundaries = nil
	c.total = 0
	c.sentences = src.SentenceCount()
	c.startedAt = time.Time{}
	c.pausedFor = 0
	c.lastErr = nil
	c.sess = &session{
		src:    src,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go c.run(ctx, c.sess)
	return nil
}

func (c *Controller) run(ctx context.Context, sess *session) {
	var pw *io.PipeWriter
	first := true
	for {
		_, data, err := sess.src.Next()
		// Next can return long after Stop; a stopped session owns
		// nothing anymore and must bail out before touching state.
		if sess.stopped() {
			return
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			c.fail(sess, err)
			return
		}

		pcm, rate, channels, err := Decode(data)
		if err != nil {
			c.fail(sess, err)
			return
		}
		dur := tts.PCMDuration(len(pcm), rate, channels)

		if first {
			pr, w := io.Pipe()
			pw = w
			if err := c.out.SetVolume(c.Volume()); err != nil {
				c.fail(sess, err)
				return
			}
			if err := c.out.Start(pr, rate, channels); err != nil {
				c.fail(sess, err)
				return
			}

			c.mu.Lock()
			if sess.stopped() {
				c.mu.Unlock()
				_ = pw.Close()
				return
			}
			c.pw = pw
			c.startedAt = time.Now()
			c.mu.Unlock()
			if err := c.sm.to(StatePlaying); err != nil {
				c.fail(sess, err)
				return
			}
			first = false
		}

		c.mu.Lock()
		if sess.stopped() {
			c.mu.Unlock()
			return
		}
		c.total += dur
		c.boundaries = append(c.boundaries, c.total)
		c.mu.Unlock()

		if _, err := pw.Write(pcm); err != nil {
			// The pipe breaks when the session is stopped.
			if sess.stopped() {
				return
			}
			c.fail(sess, err)
			return
		}
	}

	if first {
		// The stream contained no units at all.
		c.fail(sess, tts.ErrStreamTruncated)
		return
	}

	_ = pw.Close()

	// The writer is done but the device is still draining buffered
	// samples; finished means the last sentence has actually played.
	for {
		c.mu.Lock()
		remaining := c.total - c.elapsedLocked()
		c.mu.Unlock()
		if remaining <= 0 {
			break
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-sess.stopCh:
			return
		case <-ctx.Done():
			c.fail(sess, ctx.Err())
			return
		}
	}

	if err := c.sm.to(StateFinished); err == nil {
		log.Debug("playback finished", "sentences", sess.src.SentenceCount(), "total", c.total)
	}
	sess.finish()
}

// Pause suspends playback. Valid only while playing.
func (c *Controller) Pause() error {
	if err := c.sm.to(StatePaused); err != nil {
		return err
	}
	c.mu.Lock()
	c.pausedAt = time.Now()
	c.mu.Unlock()
	return c.out.Pause()
}

// Resume continues playback at the exact pause position. Valid only
// while paused.
func (c *Controller) Resume() error {
	if err := c.sm.to(StatePlaying); err != nil {
		return err
	}
	c.mu.Lock()
	c.pausedFor += time.Since(c.pausedAt)
	c.pausedAt = time.Time{}
	c.mu.Unlock()
	return c.out.Resume()
}

// Stop ends the session and returns to idle. The source is closed so
// a consuming goroutine blocked on the stream unblocks, and nothing
// still in flight is carried over. The next Start begins a fresh
// session from the first sentence.
func (c *Controller) Stop() error {
	c.mu.Lock()
	sess := c.sess
	pw := c.pw
	if sess != nil {
		sess.stop.Do(func() { close(sess.stopCh) })
	}
	c.mu.Unlock()

	if sess != nil {
		_ = sess.src.Close()
	}
	if pw != nil {
		_ = pw.CloseWithError(tts.ErrOutputClosed)
	}
	_ = c.out.Pause()

	_ = c.sm.to(StateIdle)
	if sess != nil {
		sess.finish()
	}
	return nil
}

// SetVolume adjusts playback volume.
func (c *Controller) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return tts.ErrInvalidVolume
	}
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
	return c.out.SetVolume(v)
}

// Volume returns the current volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// State returns the session state.
func (c *Controller) State() State {
	return c.sm.State()
}

// Err returns the error that moved the session to the error state.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Position returns the sentence currently playing and the offset
// within it, derived from cumulative durations.
func (c *Controller) Position() (sentence int, offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.elapsedLocked()
	var start time.Duration
	for i, end := range c.boundaries {
		if elapsed < end {
			return i, elapsed - start
		}
		start = end
	}
	if n := len(c.boundaries); n > 0 {
		return n - 1, c.total - c.boundaries[n-1]
	}
	return 0, 0
}

// Progress reports how many sentences have fully played, how many
// have been received from the stream, and the session total.
func (c *Controller) Progress() (played, received, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.elapsedLocked()
	for _, end := range c.boundaries {
		if elapsed >= end {
			played++
		}
	}
	return played, len(c.boundaries), c.sentences
}

// Wait blocks until the session finishes, fails or is stopped.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	select {
	case <-sess.doneCh:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) elapsedLocked() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	if !c.pausedAt.IsZero() {
		return c.pausedAt.Sub(c.startedAt) - c.pausedFor
	}
	return time.Since(c.startedAt) - c.pausedFor
}

// fail settles the session in the error state. A session that was
// already stopped settles nothing; its failure is not news.
func (c *Controller) fail(sess *session, err error) {
	c.mu.Lock()
	if sess.stopped() {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	pw := c.pw
	c.mu.Unlock()

	_ = c.sm.to(StateError)
	if pw != nil {
		_ = pw.CloseWithError(err)
	}
	if !errors.Is(err, context.Canceled) {
		log.Error("playback failed", "err", err)
	}
	sess.finish()
}
