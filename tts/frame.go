package tts

import (
	"encoding/binary"
	"fmt"
	"io"
)

// The generate stream is a flat sequence of frames, one per sentence,
// in sentence order. An error frame carries a human-readable message
// and terminates the stream.
const (
	// FrameAudio carries one WAV audio unit.
	FrameAudio byte = 'A'
	// FrameError carries a failure message for the given index.
	FrameError byte = 'E'

	// HeaderSentenceCount announces the total number of sentences.
	HeaderSentenceCount = "X-Sentence-Count"
	// HeaderRequestID carries the server-assigned request ID.
	HeaderRequestID = "X-Request-ID"

	// MaxFramePayload bounds a single frame payload.
	MaxFramePayload = 64 << 20
)

// Frame is one unit of the generate stream.
type Frame struct {
	Type    byte
	Index   int
	Payload []byte
}

// WriteFrame writes one frame: type byte, big-endian uint32 index,
// big-endian uint32 payload length, payload bytes.
func WriteFrame(w io.Writer, f Frame) error {
	var head [9]byte
	head[0] = f.Type
	binary.BigEndian.PutUint32(head[1:5], uint32(f.Index))
	binary.BigEndian.PutUint32(head[5:9], uint32(len(f.Payload)))

	if _, err := w.Write(head[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame. A clean end of stream returns io.EOF; a
// truncated frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var head [9]byte
	if _, err := io.ReadFull(r, head[:1]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("failed to read frame type: %w", err)
	}
	if head[0] != FrameAudio && head[0] != FrameError {
		return Frame{}, fmt.Errorf("unknown frame type %q", head[0])
	}
	if _, err := io.ReadFull(r, head[1:]); err != nil {
		return Frame{}, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(head[5:9])
	if size > MaxFramePayload {
		return Frame{}, fmt.Errorf("frame payload too large: %d bytes", size)
	}

	f := Frame{
		Type:    head[0],
		Index:   int(binary.BigEndian.Uint32(head[1:5])),
		Payload: make([]byte, size),
	}
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return f, nil
}
