package narration

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"familynest/internal/domain/story"
	"familynest/internal/i18n"
)

// illustrationExcerpt is how much of the transcript the illustration sees.
const illustrationExcerpt = 500

type transcription struct {
	Transcript     string `json:"transcript"`
	SuggestedTitle string `json:"suggestedTitle"`
}

func parseTranscription(raw string) (*transcription, error) {
	var t transcription
	if err := json.Unmarshal([]byte(stripFences(raw)), &t); err != nil {
		return nil, &ParseError{What: "transcription", Raw: raw, Err: err}
	}
	if strings.TrimSpace(t.Transcript) == "" {
		return nil, &ParseError{What: "transcription", Raw: raw, Err: errors.New("empty transcript")}
	}
	return &t, nil
}

// parseContextCards reads a JSON array of cards, tolerating markdown fences.
// An empty array is a valid answer; anything that is not an array is not.
func parseContextCards(raw string) ([]story.ContextCard, error) {
	var cards []story.ContextCard
	if err := json.Unmarshal([]byte(stripFences(raw)), &cards); err != nil {
		return nil, &ParseError{What: "context", Raw: raw, Err: err}
	}
	if cards == nil {
		return nil, &ParseError{What: "context", Raw: raw, Err: errors.New("not an array")}
	}
	return cards, nil
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// fallbackCards replace an answer that could not be parsed.
func fallbackCards(msgs *i18n.Messages, date string) []story.ContextCard {
	return []story.ContextCard{
		{
			Icon:    "📅",
			Title:   msgs.Get(i18n.ContextEraTitle),
			Content: msgs.Get(i18n.ContextEraContent, map[string]any{"Date": date}),
		},
		{
			Icon:    "🔍",
			Title:   msgs.Get(i18n.ContextExploreTitle),
			Content: msgs.Get(i18n.ContextExploreContent),
		},
	}
}

// connectionCards replace a context request that failed outright.
func connectionCards(msgs *i18n.Messages) []story.ContextCard {
	return []story.ContextCard{{
		Icon:    "⚠️",
		Title:   msgs.Get(i18n.ContextErrorTitle),
		Content: msgs.Get(i18n.ContextErrorContent),
	}}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
