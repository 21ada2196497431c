package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"familynest/internal/ai"
	"familynest/internal/ai/apikeys"
	"familynest/internal/domain/family"
	"familynest/internal/story/tts"
)

const envPrefix = "FAMILYNEST"

type Config struct {
	AI           AIConfig           `mapstructure:"ai"`
	TTS          TTSConfig          `mapstructure:"tts"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Comments     CommentsConfig     `mapstructure:"comments"`
	Playback     PlaybackConfig     `mapstructure:"playback"`
	Story        StoryConfig        `mapstructure:"story"`
	Locale       string             `mapstructure:"locale"`
	Log          LogConfig          `mapstructure:"log"`
	Server       ServerConfig       `mapstructure:"server"`
}

type AIConfig struct {
	// Provider is gemini, openai, mock or auto. Auto picks whichever
	// provider has a key, and the mock when none does.
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	ImageModel  string        `mapstructure:"image_model"`
	SpeechModel string        `mapstructure:"speech_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Voices      VoicesConfig  `mapstructure:"voices"`

	GeminiKeys []string `mapstructure:"-"`
	OpenAIKey  string   `mapstructure:"-"`
}

type VoicesConfig struct {
	Male    string `mapstructure:"male"`
	Default string `mapstructure:"default"`
}

type TTSConfig struct {
	Type      string  `mapstructure:"type"`
	CachePath string  `mapstructure:"cache_path"`
	Speed     float64 `mapstructure:"speed"`
}

type ArchiveConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type ConversationConfig struct {
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	ConnectDelay time.Duration `mapstructure:"connect_delay"`
}

type CommentsConfig struct {
	Persona string `mapstructure:"persona"`
}

type PlaybackConfig struct {
	FrameInterval time.Duration `mapstructure:"frame_interval"`
}

type StoryConfig struct {
	DefaultTranscript string `mapstructure:"default_transcript"`
	Author            string `mapstructure:"author"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func SetDefaults() {
	viper.SetDefault("ai.provider", "auto")
	viper.SetDefault("ai.model", "gemini-2.5-flash")
	viper.SetDefault("ai.image_model", "gemini-2.5-flash-image")
	viper.SetDefault("ai.speech_model", "gemini-2.5-flash-preview-tts")
	viper.SetDefault("ai.timeout", 60*time.Second)
	viper.SetDefault("ai.voices.male", "")
	viper.SetDefault("ai.voices.default", "")

	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.cache_path", filepath.Join(dataDirectory(), "speech"))
	viper.SetDefault("tts.speed", 1.0)

	viper.SetDefault("archive.driver", "file")
	viper.SetDefault("archive.path", filepath.Join(dataDirectory(), "archive.json"))

	viper.SetDefault("conversation.min_delay", time.Second)
	viper.SetDefault("conversation.max_delay", 2*time.Second)
	viper.SetDefault("conversation.connect_delay", 1500*time.Millisecond)

	viper.SetDefault("comments.persona", "g-margaret")
	viper.SetDefault("playback.frame_interval", 16*time.Millisecond)
	viper.SetDefault("story.default_transcript", "")
	viper.SetDefault("story.author", "")
	viper.SetDefault("locale", "en")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("server.addr", ":8080")
}

// Init wires viper to the config file, the environment and .env.
func Init() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	viper.SetConfigName("familynest")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.familynest")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults()
}

// Load reads the config file, if any, and returns the typed configuration.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.AI.GeminiKeys = apikeys.ParseList(os.Getenv("GEMINI_API_KEYS"))
	if len(cfg.AI.GeminiKeys) == 0 {
		cfg.AI.GeminiKeys = apikeys.ParseList(os.Getenv("GEMINI_API_KEY"))
	}
	cfg.AI.OpenAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.AI.Provider = cfg.AI.resolveProvider()

	if cfg.Conversation.MaxDelay < cfg.Conversation.MinDelay {
		return nil, fmt.Errorf("conversation.max_delay %v is below conversation.min_delay %v", cfg.Conversation.MaxDelay, cfg.Conversation.MinDelay)
	}
	return &cfg, nil
}

func (c AIConfig) resolveProvider() string {
	if c.Provider != "" && c.Provider != "auto" {
		return c.Provider
	}
	switch {
	case len(c.GeminiKeys) > 0:
		return ai.ProviderGemini.String()
	case c.OpenAIKey != "":
		return ai.ProviderOpenAI.String()
	default:
		return ai.ProviderMock.String()
	}
}

// Service returns the settings for ai.NewService.
func (c AIConfig) Service() ai.Config {
	return ai.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		ImageModel:  c.ImageModel,
		SpeechModel: c.SpeechModel,
		Timeout:     c.Timeout,
		GeminiKeys:  c.GeminiKeys,
		OpenAIKey:   c.OpenAIKey,
	}
}

// Engine returns the settings for tts.NewEngine.
func (c *Config) Engine() tts.Config {
	voices := map[family.VoiceProfile]string{}
	if c.AI.Voices.Male != "" {
		voices[family.VoiceMale] = c.AI.Voices.Male
	}
	if c.AI.Voices.Default != "" {
		voices[family.VoiceDefault] = c.AI.Voices.Default
	}
	return tts.Config{Type: c.TTS.Type, CachePath: c.TTS.CachePath, Speed: c.TTS.Speed, Voices: voices}
}

// ConfigureLogger applies log.level and log.format to the standard logger.
func (c LogConfig) ConfigureLogger(l *logrus.Logger) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		l.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(c.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// dataDirectory returns where the archive and speech cache live.
func dataDirectory() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "familynest")
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".familynest", "data")
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "data")
	}
	return "data"
}
