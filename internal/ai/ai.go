// Package ai talks to the hosted generative service that transcribes,
// illustrates, contextualises and voices family stories.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoContent     = errors.New("service returned no content")
	ErrNoImage       = errors.New("service returned no image")
	ErrNoAudio       = errors.New("service returned no audio")
	ErrMissingAPIKey = errors.New("missing API key")
)

// Image is an inline illustration.
type Image struct {
	MIMEType string
	Data     []byte
}

// Speech is raw 16-bit little-endian PCM, base64 encoded.
type Speech struct {
	Audio      string
	SampleRate int
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one prior turn handed to a dialogue request.
type Message struct {
	Role Role
	Text string
}

type DialogueRequest struct {
	System  string
	History []Message
	Message string
}

// Service is the generative collaborator. Every method returns the raw
// provider answer; callers own parsing and fallbacks.
type Service interface {
	// Transcribe returns JSON of the form {"transcript": "...", "suggestedTitle": "..."}.
	Transcribe(ctx context.Context, media []byte, mimeType string) (string, error)
	GenerateContext(ctx context.Context, title, transcript, date string) (string, error)
	GenerateIllustration(ctx context.Context, prompt string) (*Image, error)
	SynthesizeSpeech(ctx context.Context, text, voice string) (*Speech, error)
	GenerateDialogue(ctx context.Context, req DialogueRequest) (string, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderMock   Provider = "mock"
)

func (p Provider) String() string {
	return string(p)
}

type Config struct {
	Provider    string
	Model       string
	ImageModel  string
	SpeechModel string
	Timeout     time.Duration
	GeminiKeys  []string
	OpenAIKey   string
}

// NewService creates the service for the configured provider.
func NewService(ctx context.Context, cfg Config) (Service, error) {
	switch Provider(cfg.Provider) {
	case ProviderGemini:
		return NewGeminiService(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIService(cfg)
	case ProviderMock, "":
		return NewMockService(), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}
