package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"

	"familynest/internal/ai"
	"familynest/internal/audio/pcm"
)

// chunkLimit stays a little under the API's 5000 byte input cap.
const chunkLimit = 4800

type speechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleClassicSynthesizer uses Google Cloud Text-to-Speech with LINEAR16
// output at the speech sample rate.
type GoogleClassicSynthesizer struct {
	client speechClient
	speed  float64
}

func newGoogleClassicSynthesizer(ctx context.Context, config Config) (*GoogleClassicSynthesizer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	return &GoogleClassicSynthesizer{client: client, speed: config.Speed}, nil
}

func (g *GoogleClassicSynthesizer) Synthesize(ctx context.Context, text, voice string) (*ai.Speech, error) {
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
		SampleRateHertz: pcm.SpeechSampleRate,
	}
	// Chirp voices reject speakingRate.
	if g.speed > 0 && !strings.Contains(strings.ToLower(voice), "chirp") {
		audioCfg.SpeakingRate = g.speed
	}

	var raw []byte
	chunks := splitIntoChunks(text, chunkLimit)
	for i, chunk := range chunks {
		req := &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: languageOf(voice),
				Name:         voice,
			},
			AudioConfig: audioCfg,
		}
		resp, err := g.client.SynthesizeSpeech(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}

		wav, err := parseWAV(resp.AudioContent)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		raw = append(raw, monoLE16(wav.Data, wav.Channels)...)
	}

	logrus.WithFields(logrus.Fields{
		"voice":  voice,
		"chunks": len(chunks),
		"bytes":  len(raw),
	}).Debug("Synthesized speech with Google TTS")

	return &ai.Speech{Audio: base64.StdEncoding.EncodeToString(raw), SampleRate: pcm.SpeechSampleRate}, nil
}

// languageOf reads the language code prefix of a voice like "en-US-Chirp3-HD-Kore".
func languageOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
