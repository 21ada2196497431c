package tts

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"familynest/internal/ai"
	"familynest/internal/domain/family"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeAI            EngineType = "ai" // Whatever the ai provider speaks with
	EngineTypeAuto          EngineType = "auto"
)

func (e EngineType) String() string {
	return string(e)
}

// Engine is a configured synthesizer plus the voices it understands.
type Engine struct {
	Synthesizer
	Type   EngineType
	Voices VoiceCatalog
}

// VoiceFor picks the engine voice for a family member.
func (e *Engine) VoiceFor(m family.Member) string {
	return e.Voices.Voice(m.VoiceOrDefault())
}

// NewEngine creates the speech engine named by config. provider is the ai
// provider name, used to pick voices for the ai engine.
func NewEngine(ctx context.Context, config Config, svc ai.Service, provider string) (*Engine, error) {
	engineType := EngineType(config.Type)
	if engineType == EngineTypeAuto || engineType == "" {
		engineType = getBestEngine()
	}

	var (
		synth Synthesizer
		err   error
	)
	switch engineType {
	case EngineTypeMock:
		synth = NewMockSynthesizer()

	case EngineTypeAI:
		if svc == nil {
			return nil, fmt.Errorf("ai speech engine needs an ai service")
		}
		synth = SynthesizerFunc(svc.SynthesizeSpeech)

	case EngineTypeGoogleClassic:
		synth, err = newGoogleClassicSynthesizer(ctx, config)

	case EngineTypeESpeak:
		synth, err = newESpeakSynthesizer(config)

	default:
		return nil, fmt.Errorf("unsupported TTS engine type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.CachePath != "" {
		synth = NewCachedSynthesizer(synth, config.CachePath)
	}

	voices := DefaultVoices(engineType, provider)
	for p, v := range config.Voices {
		if v != "" {
			voices[p] = v
		}
	}

	logrus.WithFields(logrus.Fields{
		"engine": engineType,
		"cache":  config.CachePath,
	}).Debug("Speech engine ready")

	return &Engine{Synthesizer: synth, Type: engineType, Voices: voices}, nil
}

// DefaultVoices returns the two-voice catalogue of an engine.
func DefaultVoices(engineType EngineType, provider string) VoiceCatalog {
	switch engineType {
	case EngineTypeGoogleClassic:
		return VoiceCatalog{family.VoiceMale: "en-US-Chirp3-HD-Fenrir", family.VoiceDefault: "en-US-Chirp3-HD-Kore"}
	case EngineTypeESpeak:
		return VoiceCatalog{family.VoiceMale: "en-us+m3", family.VoiceDefault: "en-us+f3"}
	case EngineTypeAI:
		if ai.Provider(provider) == ai.ProviderOpenAI {
			return VoiceCatalog{family.VoiceMale: "onyx", family.VoiceDefault: "nova"}
		}
	}
	return VoiceCatalog{family.VoiceMale: "Fenrir", family.VoiceDefault: "Kore"}
}

// getBestEngine prefers Google Cloud when credentials are present and the ai
// provider's own voices otherwise.
func getBestEngine() EngineType {
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}
	return EngineTypeAI
}

// GetAvailableEngines returns engines usable on this machine.
func GetAvailableEngines() []EngineType {
	engines := []EngineType{EngineTypeMock, EngineTypeAI}
	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	return engines
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}
