// Package i18n holds every user-visible fallback string.
package i18n

import (
	"embed"
	"encoding/json"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Message IDs.
const (
	FallbackTranscript    = "FallbackTranscript"
	DefaultTitle          = "DefaultTitle"
	DefaultTranscript     = "DefaultTranscript"
	ContextEraTitle       = "ContextEraTitle"
	ContextEraContent     = "ContextEraContent"
	ContextExploreTitle   = "ContextExploreTitle"
	ContextExploreContent = "ContextExploreContent"
	ContextErrorTitle     = "ContextErrorTitle"
	ContextErrorContent   = "ContextErrorContent"
	GatheringApology      = "GatheringApology"
	ChatApology           = "ChatApology"
	NarrationUnavailable  = "NarrationUnavailable"
	AttachmentOnly        = "AttachmentOnly"
	TranscriptUnavailable = "TranscriptUnavailable"
	CommentUnavailable    = "CommentUnavailable"
)

// Messages localizes strings for one language, falling back to English.
type Messages struct {
	localizer *i18n.Localizer
	english   *i18n.Localizer
}

func New(lang string) *Messages {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, file := range []string{"locales/en.json", "locales/es.json"} {
		if _, err := bundle.LoadMessageFileFS(locales, file); err != nil {
			logrus.WithError(err).WithField("file", file).Warn("Could not load message file")
		}
	}

	langTag := language.English
	if tag, err := language.Parse(lang); err == nil {
		langTag = tag
	}

	return &Messages{
		localizer: i18n.NewLocalizer(bundle, langTag.String()),
		english:   i18n.NewLocalizer(bundle, language.English.String()),
	}
}

// English is shorthand for New("en").
func English() *Messages {
	return New("en")
}

// Get returns the message id, filled from data when the message is a template.
func (m *Messages) Get(id string, data ...map[string]any) string {
	cfg := &i18n.LocalizeConfig{MessageID: id}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}

	if s, err := m.localizer.Localize(cfg); err == nil {
		return s
	}
	s, err := m.english.Localize(cfg)
	if err != nil {
		logrus.WithError(err).WithField("id", id).Warn("Missing message")
		return id
	}
	return s
}
