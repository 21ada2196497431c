package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// openAIPCMRate is the fixed rate of the "pcm" speech response format.
const openAIPCMRate = 24000

type OpenAIService struct {
	cli        *openai.Client
	model      string
	imageModel string
	ttsModel   string
}

func NewOpenAIService(cfg Config) (*OpenAIService, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	return newOpenAIServiceWithConfig(openai.DefaultConfig(cfg.OpenAIKey), cfg), nil
}

func newOpenAIServiceWithConfig(clientConfig openai.ClientConfig, cfg Config) *OpenAIService {
	return &OpenAIService{
		cli:        openai.NewClientWithConfig(clientConfig),
		model:      orDefault(cfg.Model, openai.GPT4oMini),
		imageModel: orDefault(cfg.ImageModel, openai.CreateImageModelDallE3),
		ttsModel:   orDefault(cfg.SpeechModel, string(openai.TTSModel1)),
	}
}

// Transcribe runs Whisper, then asks the chat model for a title and returns
// the same JSON shape Gemini produces.
func (s *OpenAIService) Transcribe(ctx context.Context, media []byte, mimeType string) (string, error) {
	resp, err := s.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(media),
		FilePath: "recording" + extensionFor(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}

	title, err := s.GenerateText(ctx, "Suggest a short, nostalgic title (max 5 words) for this family story. Reply with the title only.\n\n"+resp.Text)
	if err != nil {
		title = ""
	}

	out, err := json.Marshal(map[string]string{
		"transcript":     resp.Text,
		"suggestedTitle": strings.Trim(strings.TrimSpace(title), `"`),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (s *OpenAIService) GenerateContext(ctx context.Context, title, transcript, date string) (string, error) {
	return s.GenerateText(ctx, contextPrompt(title, transcript, date))
}

func (s *OpenAIService) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

func (s *OpenAIService) GenerateDialogue(ctx context.Context, req DialogueRequest) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	return s.chat(ctx, messages)
}

func (s *OpenAIService) chat(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := s.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrNoContent
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) GenerateIllustration(ctx context.Context, prompt string) (*Image, error) {
	resp, err := s.cli.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1792x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return &Image{MIMEType: "image/png", Data: raw}, nil
}

// SynthesizeSpeech requests the headerless pcm format, which is already
// 24kHz 16-bit mono little-endian.
func (s *OpenAIService) SynthesizeSpeech(ctx context.Context, text, voice string) (*Speech, error) {
	resp, err := s.cli.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.ttsModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech failed: %w", err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoAudio
	}
	return &Speech{Audio: base64.StdEncoding.EncodeToString(raw), SampleRate: openAIPCMRate}, nil
}

func extensionFor(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = mimeType
	}
	switch base {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/webm", "video/webm":
		return ".webm"
	case "video/mp4", "audio/mp4":
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".mp3"
}
