// internal/story/tts/tts.go
package tts

import (
	"context"

	"familynest/internal/ai"
	"familynest/internal/domain/family"
)

type Config struct {
	Type      string
	CachePath string
	Speed     float64
	// Voices overrides the engine's default voice per profile.
	Voices map[family.VoiceProfile]string
}

// Synthesizer turns text into raw mono 16-bit PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*ai.Speech, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text, voice string) (*ai.Speech, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text, voice string) (*ai.Speech, error) {
	return f(ctx, text, voice)
}

// VoiceCatalog maps a member's voice profile to an engine voice name.
type VoiceCatalog map[family.VoiceProfile]string

// Voice returns the engine voice for profile, falling back to the default
// profile.
func (c VoiceCatalog) Voice(profile family.VoiceProfile) string {
	if v, ok := c[profile]; ok && v != "" {
		return v
	}
	return c[family.VoiceDefault]
}

// VoiceInfo describes one entry of the catalogue.
type VoiceInfo struct {
	Profile family.VoiceProfile `json:"profile"`
	Name    string              `json:"name"`
}

func (c VoiceCatalog) List() []VoiceInfo {
	out := []VoiceInfo{{Profile: family.VoiceDefault, Name: c.Voice(family.VoiceDefault)}}
	for p, name := range c {
		if p != family.VoiceDefault {
			out = append(out, VoiceInfo{Profile: p, Name: name})
		}
	}
	return out
}
