package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/readaloud/readaloud/tts"
)

// Decode extracts PCM16 samples from an audio unit payload. The engine
// family emits WAV; MP3 is accepted for payloads sourced elsewhere.
func Decode(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if pcm, rate, ch, werr := tts.DecodeWAV(data); werr == nil {
		return pcm, rate, ch, nil
	}

	dec, merr := mp3.NewDecoder(bytes.NewReader(data))
	if merr != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", tts.ErrDecodeFailed, merr)
	}
	pcm, err = io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", tts.ErrDecodeFailed, err)
	}
	// go-mp3 always yields 16-bit stereo.
	return pcm, dec.SampleRate(), 2, nil
}
