package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"familynest/internal/audio/pcm"
)

// MockService answers every call offline with deterministic content.
type MockService struct {
	// Latency is slept before each answer, honouring cancellation.
	Latency time.Duration
}

func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Latency):
		return nil
	}
}

func (m *MockService) Transcribe(ctx context.Context, media []byte, mimeType string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	out, _ := json.Marshal(map[string]string{
		"transcript":     fmt.Sprintf("I remember the day we recorded this %s. The whole family gathered around the kitchen table and laughed until the sun went down.", strings.SplitN(mimeType, "/", 2)[0]),
		"suggestedTitle": "Around the Kitchen Table",
	})
	return string(out), nil
}

func (m *MockService) GenerateContext(ctx context.Context, title, transcript, date string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	cards := []map[string]string{
		{"icon": "🌍", "title": "World Events", "content": "Around " + date + ", the world was changing fast."},
		{"icon": "💵", "title": "Cost of Living", "content": "A loaf of bread cost a fraction of today's price."},
		{"icon": "🎵", "title": "On the Radio", "content": "Families gathered around the radio for the hits of the day."},
		{"icon": "💡", "title": "Milestone", "content": "New technology was finding its way into family homes."},
	}
	out, _ := json.Marshal(cards)
	return "```json\n" + string(out) + "\n```", nil
}

// mockPNG is a 1x1 transparent PNG.
var mockPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func (m *MockService) GenerateIllustration(ctx context.Context, prompt string) (*Image, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &Image{MIMEType: "image/png", Data: append([]byte(nil), mockPNG...)}, nil
}

// SynthesizeSpeech returns a soft tone lasting about a third of a second per
// word.
func (m *MockService) SynthesizeSpeech(ctx context.Context, text, voice string) (*Speech, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &Speech{Audio: pcm.EncodeBase64(Tone(text, voice)), SampleRate: pcm.SpeechSampleRate}, nil
}

// Tone renders a sine wave sized to text. The pitch depends on the voice.
func Tone(text, voice string) []float32 {
	words := len(strings.Fields(text))
	seconds := math.Max(0.5, float64(words)/3)
	frames := int(seconds * pcm.SpeechSampleRate)

	freq := 220.0
	for _, r := range voice {
		freq += float64(r % 7 * 10)
	}

	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/pcm.SpeechSampleRate))
	}
	return samples
}

func (m *MockService) GenerateDialogue(ctx context.Context, req DialogueRequest) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}

	speakers := participants(req.System)
	if len(speakers) == 0 {
		return "That reminds me of a story I hold very dear. We always found a way to laugh, even in hard times.", nil
	}
	if len(speakers) > 2 {
		speakers = speakers[:2]
	}

	var b strings.Builder
	for i, name := range speakers {
		if i == 0 {
			fmt.Fprintf(&b, "%s: What a lovely question, dear.\n", name)
			continue
		}
		fmt.Fprintf(&b, "%s: That reminds me of what %s always said.\n", name, speakers[0])
	}
	return b.String(), nil
}

func (m *MockService) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	return "What a beautiful memory. I am so proud of this family.", nil
}

// participants reads "FAMILY MEMBER: Name (" lines from a group system prompt.
func participants(system string) []string {
	var names []string
	for _, line := range strings.Split(system, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "FAMILY MEMBER: ")
		if !ok {
			continue
		}
		if i := strings.Index(rest, " ("); i >= 0 {
			rest = rest[:i]
		}
		names = append(names, rest)
	}
	return names
}
