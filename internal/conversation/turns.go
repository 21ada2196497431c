// Package conversation simulates family members in group chats, one to one
// chats, video calls and story comments.
package conversation

import (
	"strings"
)

// Turn is one scripted line of a simulated conversation.
type Turn struct {
	Ordinal int    `json:"ordinal"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ParseTurns reads "Speaker: message" lines from a dialogue response. Lines
// without a colon, a speaker or a message are dropped.
func ParseTurns(response string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(response, "\n") {
		speaker, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		speaker = cleanSpeaker(speaker)
		text = strings.TrimSpace(text)
		if speaker == "" || text == "" {
			continue
		}
		turns = append(turns, Turn{Ordinal: len(turns), Speaker: speaker, Text: text})
	}
	return turns
}

// cleanSpeaker strips markdown bold and bracket markers around a name.
func cleanSpeaker(s string) string {
	for {
		trimmed := strings.TrimSpace(s)
		trimmed = strings.TrimPrefix(strings.TrimSuffix(trimmed, "**"), "**")
		trimmed = strings.TrimPrefix(strings.TrimSuffix(trimmed, "]"), "[")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}
