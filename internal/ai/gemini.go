package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"familynest/internal/ai/apikeys"
)

const (
	defaultGeminiModel       = "gemini-2.5-flash"
	defaultGeminiImageModel  = "gemini-2.5-flash-image"
	defaultGeminiSpeechModel = "gemini-2.5-flash-preview-tts"
	geminiAPIURL             = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiService uses the genai SDK for text and multimodal calls. Image and
// speech output go through the REST endpoint, which accepts response
// modalities the SDK does not expose.
type GeminiService struct {
	client      *genai.Client
	keyManager  *apikeys.KeyManager
	model       string
	imageModel  string
	speechModel string
	baseURL     string
	httpClient  *http.Client
}

func NewGeminiService(ctx context.Context, cfg Config) (*GeminiService, error) {
	keyManager, err := apikeys.NewManager(cfg.GeminiKeys)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(keyManager.GetCurrentKey()))
	if err != nil {
		return nil, fmt.Errorf("could not create new genai client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &GeminiService{
		client:      client,
		keyManager:  keyManager,
		model:       orDefault(cfg.Model, defaultGeminiModel),
		imageModel:  orDefault(cfg.ImageModel, defaultGeminiImageModel),
		speechModel: orDefault(cfg.SpeechModel, defaultGeminiSpeechModel),
		baseURL:     geminiAPIURL,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *GeminiService) Close() error {
	return s.client.Close()
}

func (s *GeminiService) Transcribe(ctx context.Context, media []byte, mimeType string) (string, error) {
	logrus.WithFields(logrus.Fields{"mime": mimeType, "bytes": len(media)}).Debug("Transcribing recording")

	model := s.client.GenerativeModel(s.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"transcript":     {Type: genai.TypeString},
			"suggestedTitle": {Type: genai.TypeString},
		},
		Required: []string{"transcript", "suggestedTitle"},
	}

	res, err := model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: media}, genai.Text(transcribePrompt(mimeType)))
	if err != nil {
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}
	return extractText(res)
}

func (s *GeminiService) GenerateContext(ctx context.Context, title, transcript, date string) (string, error) {
	res, err := s.client.GenerativeModel(s.model).GenerateContent(ctx, genai.Text(contextPrompt(title, transcript, date)))
	if err != nil {
		return "", fmt.Errorf("gemini context generation failed: %w", err)
	}
	return extractText(res)
}

func (s *GeminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	res, err := s.client.GenerativeModel(s.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return extractText(res)
}

func (s *GeminiService) GenerateDialogue(ctx context.Context, req DialogueRequest) (string, error) {
	model := s.client.GenerativeModel(s.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	cs := model.StartChat()
	for _, m := range req.History {
		cs.History = append(cs.History, &genai.Content{
			Role:  string(m.Role),
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}

	res, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return "", fmt.Errorf("gemini chat failed: %w", err)
	}
	return extractText(res)
}

func extractText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", ErrNoContent
	}

	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini response did not contain text: %w", ErrNoContent)
	}
	return b.String(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
