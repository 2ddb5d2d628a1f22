// Package client consumes the readaloud HTTP API. Generate returns a
// Stream that yields audio units in sentence order and enforces the
// transport invariants on arrival.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/readaloud/readaloud/tts"
)

// Client talks to one readaloud server.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the server at base, e.g.
// "http://localhost:8560".
func New(base string) *Client {
	return &Client{
		base: base,
		// No overall timeout: the generate stream legitimately runs
		// for as long as synthesis takes.
		http: &http.Client{},
	}
}

// Stream is one in-flight generate response.
type Stream struct {
	body      io.ReadCloser
	count     int
	requestID string
	next      int
	done      bool
	received  [][]byte // Units kept for replay within the session
}

// Generate starts a synthesis stream for text.
func (c *Client) Generate(ctx context.Context, text, voice, preset string) (*Stream, error) {
	payload, err := json.Marshal(map[string]string{
		"text": text, "voice": voice, "preset": preset,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/tts/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	count, err := strconv.Atoi(resp.Header.Get(tts.HeaderSentenceCount))
	if err != nil || count < 1 {
		resp.Body.Close()
		return nil, fmt.Errorf("missing or invalid %s header", tts.HeaderSentenceCount)
	}

	return &Stream{
		body:      resp.Body,
		count:     count,
		requestID: resp.Header.Get(tts.HeaderRequestID),
	}, nil
}

// SentenceCount returns the total number of sentences the server will
// stream.
func (s *Stream) SentenceCount() int { return s.count }

// RequestID returns the server-assigned request ID.
func (s *Stream) RequestID() string { return s.requestID }

// Next returns the next audio payload in sentence order. It returns
// io.EOF after the last sentence. An in-stream error marker surfaces
// as a SynthesisError; a connection drop before the last sentence
// surfaces as ErrStreamTruncated.
func (s *Stream) Next() (index int, data []byte, err error) {
	if s.done {
		return 0, nil, io.EOF
	}
	if s.next >= s.count {
		s.done = true
		return 0, nil, io.EOF
	}

	f, err := tts.ReadFrame(s.body)
	if err != nil {
		s.done = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("%w: got %d of %d sentences",
				tts.ErrStreamTruncated, s.next, s.count)
		}
		return 0, nil, err
	}

	if f.Index != s.next {
		s.done = true
		return 0, nil, fmt.Errorf("%w: got index %d, want %d",
			tts.ErrStreamOutOfOrder, f.Index, s.next)
	}
	if f.Type == tts.FrameError {
		s.done = true
		return 0, nil, &tts.SynthesisError{
			Index: f.Index,
			Err:   fmt.Errorf("%s", f.Payload),
		}
	}

	s.next++
	s.received = append(s.received, f.Payload)
	return f.Index, f.Payload, nil
}

// Received returns how many units have arrived so far.
func (s *Stream) Received() int { return len(s.received) }

// Unit returns an already-received payload by index, for replay within
// the session.
func (s *Stream) Unit(index int) ([]byte, bool) {
	if index < 0 || index >= len(s.received) {
		return nil, false
	}
	return s.received[index], true
}

// Close releases the underlying connection. Safe to call at any point;
// an early close abandons the remaining sentences.
func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}

// Voices returns the server's voice list.
func (c *Client) Voices(ctx context.Context) ([]tts.Voice, error) {
	var resp struct {
		Voices []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Language string `json:"language"`
		} `json:"voices"`
	}
	if err := c.getJSON(ctx, "/api/tts/voices", &resp); err != nil {
		return nil, err
	}
	voices := make([]tts.Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voices = append(voices, tts.Voice{ID: v.ID, Name: v.Name, Language: v.Language})
	}
	return voices, nil
}

// Presets returns the server's preset list.
func (c *Client) Presets(ctx context.Context) ([]tts.Preset, error) {
	var resp struct {
		Presets []struct {
			ID          string `json:"id"`
			Description string `json:"description"`
		} `json:"presets"`
	}
	if err := c.getJSON(ctx, "/api/tts/presets", &resp); err != nil {
		return nil, err
	}
	presets := make([]tts.Preset, 0, len(resp.Presets))
	for _, p := range resp.Presets {
		presets = append(presets, tts.Preset{ID: p.ID, Description: p.Description})
	}
	return presets, nil
}

// Status returns the raw status document.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.getJSON(ctx, "/api/tts/status", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ClearCache asks the server to drop every cached unit.
func (c *Client) ClearCache(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/tts/cache/clear", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
