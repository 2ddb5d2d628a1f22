package tts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Audio units travel as WAV so the payload is self-describing; the
// synthesis engine family emits 24kHz 16-bit mono.
const (
	// DefaultSampleRate is the engine output sample rate in Hz.
	DefaultSampleRate = 24000
	// DefaultChannels is the engine output channel count.
	DefaultChannels = 1

	wavHeaderSize = 44
)

// ErrNotWAV indicates bytes that are not a PCM16 WAV payload.
var ErrNotWAV = errors.New("payload is not a PCM16 WAV")

// EncodeWAV wraps raw 16-bit little-endian PCM samples in a WAV
// container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	out := make([]byte, wavHeaderSize+len(pcm))

	byteRate := sampleRate * channels * 2
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*2)) // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                 // bits per sample
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out
}

// DecodeWAV extracts PCM16 samples and format parameters from a WAV
// payload. Only uncompressed 16-bit PCM is supported.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}

	format := binary.LittleEndian.Uint16(data[20:22])
	bits := binary.LittleEndian.Uint16(data[34:36])
	if format != 1 || bits != 16 {
		return nil, 0, 0, fmt.Errorf("%w: format=%d bits=%d", ErrNotWAV, format, bits)
	}

	channels = int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(data[24:28]))
	if channels < 1 || sampleRate < 1 {
		return nil, 0, 0, fmt.Errorf("%w: channels=%d rate=%d", ErrNotWAV, channels, sampleRate)
	}

	// Walk chunks to find "data"; some writers insert extra chunks
	// between "fmt " and the samples.
	pos := 36
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if id == "data" {
			end := pos + 8 + size
			if end > len(data) {
				end = len(data)
			}
			return data[pos+8 : end], sampleRate, channels, nil
		}
		pos += 8 + size
	}

	return nil, 0, 0, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

// PCMDuration computes playback time for raw PCM16 samples.
func PCMDuration(pcmLen, sampleRate, channels int) time.Duration {
	if sampleRate < 1 || channels < 1 {
		return 0
	}
	samples := pcmLen / (2 * channels)
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
