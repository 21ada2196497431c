package playback

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"familynest/internal/audio/pcm"
)

// Voice is one sounding instance of a buffer.
type Voice interface {
	Stop()
}

// Output starts sound for a buffer at an offset.
type Output interface {
	Start(buf *pcm.Buffer, offset time.Duration) (Voice, error)
}

// OutputSampleRate is the rate the shared speaker is opened at.
const OutputSampleRate = beep.SampleRate(48000)

var (
	speakerOnce sync.Once
	speakerErr  error
	defaultOut  = &SpeakerOutput{rate: OutputSampleRate, quality: 4}
)

// SpeakerOutput plays through the process-wide beep speaker. The speaker is
// opened lazily on first use and never reopened.
type SpeakerOutput struct {
	rate    beep.SampleRate
	quality int
}

// DefaultOutput returns the shared speaker output.
func DefaultOutput() *SpeakerOutput {
	return defaultOut
}

func (o *SpeakerOutput) Start(buf *pcm.Buffer, offset time.Duration) (Voice, error) {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(o.rate, o.rate.N(time.Second/10))
	})
	if speakerErr != nil {
		return nil, speakerErr
	}

	var s beep.Streamer = buf.Streamer(buf.FrameAt(offset))
	if src := beep.SampleRate(buf.SampleRate); src != o.rate {
		s = beep.Resample(o.quality, src, o.rate, s)
	}

	ctrl := &beep.Ctrl{Streamer: s}
	speaker.Play(ctrl)
	return &speakerVoice{ctrl: ctrl}, nil
}

type speakerVoice struct {
	ctrl *beep.Ctrl
}

func (v *speakerVoice) Stop() {
	speaker.Lock()
	v.ctrl.Streamer = nil
	speaker.Unlock()
}

// NullOutput accepts every buffer and plays nothing. Used for headless runs.
type NullOutput struct{}

func (NullOutput) Start(*pcm.Buffer, time.Duration) (Voice, error) { return nopVoice{}, nil }

type nopVoice struct{}

func (nopVoice) Stop() {}

// RecordingOutput remembers every start and stop. Err, when set, is returned
// from Start.
type RecordingOutput struct {
	mu     sync.Mutex
	Err    error
	starts []time.Duration
	stops  int
}

func (o *RecordingOutput) Start(_ *pcm.Buffer, offset time.Duration) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	o.starts = append(o.starts, offset)
	return recordingVoice{o}, nil
}

// Starts returns the offsets of every successful Start.
func (o *RecordingOutput) Starts() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.starts...)
}

func (o *RecordingOutput) Stops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stops
}

type recordingVoice struct{ o *RecordingOutput }

func (v recordingVoice) Stop() {
	v.o.mu.Lock()
	v.o.stops++
	v.o.mu.Unlock()
}
