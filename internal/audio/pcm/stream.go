package pcm

import (
	"fmt"

	"github.com/faiface/beep"
)

// Format describes the buffer in beep terms.
func (b *Buffer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(b.SampleRate),
		NumChannels: b.Channels,
		Precision:   BytesPerSample,
	}
}

// Streamer returns a beep.StreamSeeker positioned at frame from, clamped to
// the buffer. Mono buffers are duplicated onto both output channels; extra
// channels beyond two are ignored.
func (b *Buffer) Streamer(from int) beep.StreamSeeker {
	return &bufferStreamer{buf: b, pos: min(max(from, 0), b.Frames())}
}

type bufferStreamer struct {
	buf *Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := s.buf.Frames()
	if s.pos >= frames {
		return 0, false
	}
	ch := s.buf.Channels
	for n < len(samples) && s.pos < frames {
		base := s.pos * ch
		left := float64(s.buf.Samples[base])
		right := left
		if ch > 1 {
			right = float64(s.buf.Samples[base+1])
		}
		samples[n][0], samples[n][1] = left, right
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error    { return nil }
func (s *bufferStreamer) Len() int      { return s.buf.Frames() }
func (s *bufferStreamer) Position() int { return s.pos }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > s.buf.Frames() {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.buf.Frames())
	}
	s.pos = p
	return nil
}

// FromStreamer drains a beep streamer into a stereo Buffer.
func FromStreamer(s beep.Streamer, format beep.Format) (*Buffer, error) {
	if format.SampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", format.SampleRate)}
	}
	channels := format.NumChannels
	if channels > 2 || channels <= 0 {
		channels = 2
	}

	chunk := make([][2]float64, 512)
	var out []float32
	for {
		n, ok := s.Stream(chunk)
		for i := 0; i < n; i++ {
			out = append(out, float32(chunk[i][0]))
			if channels == 2 {
				out = append(out, float32(chunk[i][1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, &DecodeError{Reason: "stream", Err: err}
	}
	if len(out) == 0 {
		return nil, &DecodeError{Reason: "no samples in stream"}
	}

	return &Buffer{Samples: out, SampleRate: int(format.SampleRate), Channels: channels}, nil
}
