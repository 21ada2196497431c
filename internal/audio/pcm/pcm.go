// Package pcm converts raw signed 16-bit little-endian PCM into normalized
// float sample buffers and back.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Synthesized speech is always delivered in this format.
const (
	SpeechSampleRate = 24000
	SpeechChannels   = 1
	BitDepth         = 16
	BytesPerSample   = BitDepth / 8
)

// DecodeError reports a payload that could not be turned into samples.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pcm decode: %s: %v", e.Reason, e.Err)
	}
	return "pcm decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Buffer holds interleaved samples normalized to [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames is the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration is frames / sample rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Seconds is Duration expressed as a float, without rounding to nanoseconds.
func (b *Buffer) Seconds() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// FrameAt maps a playback offset to a frame index, clamped to the buffer.
func (b *Buffer) FrameAt(offset time.Duration) int {
	if b == nil || offset <= 0 {
		return 0
	}
	frame := int(offset.Seconds() * float64(b.SampleRate))
	if n := b.Frames(); frame > n {
		return n
	}
	return frame
}

// DecodeBase64 decodes a base64 payload of 16-bit PCM.
func DecodeBase64(payload string, sampleRate, channels int) (*Buffer, error) {
	if payload == "" {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed base64", Err: err}
	}
	return Decode(raw, sampleRate, channels)
}

// Decode reinterprets raw bytes as int16 samples and divides each by 32768.
func Decode(raw []byte, sampleRate, channels int) (*Buffer, error) {
	switch {
	case len(raw) == 0:
		return nil, &DecodeError{Reason: "empty payload"}
	case len(raw)%BytesPerSample != 0:
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d", len(raw))}
	case sampleRate <= 0:
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	case channels <= 0:
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}

	samples := make([]float32, len(raw)/BytesPerSample)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*BytesPerSample:]))
		samples[i] = float32(v) / 32768.0
	}

	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// Encode quantizes float samples to 16-bit little-endian PCM.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(quantize(s)))
	}
	return out
}

// EncodeBase64 is Encode followed by standard base64.
func EncodeBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Encode(samples))
}

func quantize(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := float64(s)
	if v >= 0 {
		return int16(math.Round(math.Min(v, 1) * 32767))
	}
	return int16(math.Round(math.Max(v, -1) * 32768))
}
