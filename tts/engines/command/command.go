// Package command implements a synthesis engine that shells out to an
// external TTS binary. The binary reads sentence text on stdin and
// writes a WAV payload to stdout; voice and preset are passed as flags.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/engines"
)

// Engine runs one subprocess per synthesis call. The scheduler bounds
// concurrency, so there is no process pool to manage.
type Engine struct {
	binary string
	args   []string

	shutdown atomic.Bool
}

var _ engines.Engine = (*Engine)(nil)

// New creates a subprocess engine for cfg.Binary.
func New(cfg tts.CommandConfig) (*Engine, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("command engine: binary not configured")
	}
	return &Engine{
		binary: cfg.Binary,
		args:   cfg.Args,
	}, nil
}

// Synthesize runs the binary with text on stdin and returns its stdout
// as the WAV payload. ctx bounds the subprocess lifetime.
func (e *Engine) Synthesize(ctx context.Context, text, voice, preset string) ([]byte, error) {
	if e.shutdown.Load() {
		return nil, tts.ErrEngineShutdown
	}

	args := append([]string{}, e.args...)
	args = append(args, "--voice", voice, "--preset", preset)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("command engine failed", "binary", e.binary, "err", err, "stderr", stderr.String())
		return nil, fmt.Errorf("command engine: %s: %w", e.binary, err)
	}

	data := stdout.Bytes()
	if _, _, _, err := tts.DecodeWAV(data); err != nil {
		return nil, fmt.Errorf("command engine: bad output: %w", err)
	}
	return data, nil
}

// Voices returns the stock voice list. The external binary is expected
// to accept any of these via --voice.
func (e *Engine) Voices() []tts.Voice {
	return engines.DefaultVoices()
}

// Available reports whether the binary can be found on PATH.
func (e *Engine) Available() bool {
	if e.shutdown.Load() {
		return false
	}
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Name identifies the engine.
func (e *Engine) Name() string {
	return "command:" + e.binary
}

// Shutdown marks the engine closed. In-flight subprocesses finish
// under their own contexts.
func (e *Engine) Shutdown() error {
	e.shutdown.Store(true)
	return nil
}
