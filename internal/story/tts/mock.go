package tts

import (
	"context"
	"sync/atomic"

	"familynest/internal/ai"
	"familynest/internal/audio/pcm"
)

// MockSynthesizer renders a tone instead of speech and counts its calls.
type MockSynthesizer struct {
	calls atomic.Int64
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voice string) (*ai.Speech, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	return &ai.Speech{Audio: pcm.EncodeBase64(ai.Tone(text, voice)), SampleRate: pcm.SpeechSampleRate}, nil
}

// Calls reports how many times Synthesize produced audio.
func (m *MockSynthesizer) Calls() int {
	return int(m.calls.Load())
}
