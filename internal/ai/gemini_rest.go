package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

type restPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *restInlineData `json:"inlineData,omitempty"`
}

type restInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type restContent struct {
	Parts []restPart `json:"parts"`
}

type restRequest struct {
	Contents         []restContent  `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type restResponse struct {
	Candidates []struct {
		Content restContent `json:"content"`
	} `json:"candidates"`
}

// SynthesizeSpeech asks the TTS model for a prebuilt voice and returns its
// inline PCM.
func (s *GeminiService) SynthesizeSpeech(ctx context.Context, text, voice string) (*Speech, error) {
	req := restRequest{
		Contents: []restContent{{Parts: []restPart{{Text: text}}}},
		GenerationConfig: map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]string{"voiceName": voice},
				},
			},
		},
	}

	data, err := s.inline(ctx, s.speechModel, req, "audio/")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNoAudio
	}
	return &Speech{Audio: data.Data, SampleRate: sampleRateOf(data.MIMEType)}, nil
}

func (s *GeminiService) GenerateIllustration(ctx context.Context, prompt string) (*Image, error) {
	req := restRequest{
		Contents: []restContent{{Parts: []restPart{{Text: prompt}}}},
		GenerationConfig: map[string]any{
			"responseModalities": []string{"TEXT", "IMAGE"},
			"imageConfig":        map[string]string{"aspectRatio": "16:9"},
		},
	}

	data, err := s.inline(ctx, s.imageModel, req, "image/")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return &Image{MIMEType: data.MIMEType, Data: raw}, nil
}

// inline posts req to model and returns the first inline part whose MIME
// type starts with prefix. Quota and auth failures rotate the API key.
func (s *GeminiService) inline(ctx context.Context, model string, req restRequest, prefix string) (*restInlineData, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, model)

	for i := 0; i < s.keyManager.Len(); i++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", s.keyManager.GetCurrentKey())

		resp, err := s.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.WithError(err).WithField("attempt", i+1).Warn("Gemini request failed")
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			logrus.WithFields(logrus.Fields{"attempt": i + 1, "status": resp.Status}).Warn("Quota/Auth error from Gemini. Rotating key.")
			resp.Body.Close()
			_ = s.keyManager.RotateKey()
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gemini returned non-200 status: %s - %s", resp.Status, string(body))
		}

		var out restResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("failed to parse gemini response: %w", err)
		}
		for _, c := range out.Candidates {
			for _, p := range c.Content.Parts {
				if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, prefix) {
					return p.InlineData, nil
				}
			}
		}
		return nil, nil
	}

	return nil, fmt.Errorf("all Gemini API keys failed or were exhausted")
}

// sampleRateOf reads the rate parameter of e.g. "audio/L16;codec=pcm;rate=24000".
func sampleRateOf(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && k == "rate" {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return 24000
}
