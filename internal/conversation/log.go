package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"familynest/internal/ai"
	"familynest/internal/domain/story"
)

const quoteSnippetRunes = 100

// Quote attaches an archived story to a user message.
type Quote struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Snippet string `json:"snippet"`
}

func NewQuote(s *story.Story) *Quote {
	snippet := []rune(s.Transcript)
	if len(snippet) > quoteSnippetRunes {
		snippet = snippet[:quoteSnippetRunes]
	}
	return &Quote{Title: s.Title, Author: s.Author, Snippet: string(snippet) + "..."}
}

type Message struct {
	ID      string    `json:"id"`
	Role    ai.Role   `json:"role"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text"`
	Quote   *Quote    `json:"quote,omitempty"`
	System  bool      `json:"system,omitempty"`
	At      time.Time `json:"at"`
}

// Log is an append-only conversation transcript. It is a Sink, so revealed
// turns land in it directly.
type Log struct {
	mu        sync.Mutex
	messages  []Message
	typing    *TypingIndicator
	onMessage func(Message)
}

// NewLog creates a transcript. Either callback may be nil.
func NewLog(onMessage func(Message), onTyping func(speaker string, active bool)) *Log {
	return &Log{onMessage: onMessage, typing: NewTypingIndicator(onTyping)}
}

func (l *Log) Add(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()

	if l.onMessage != nil {
		l.onMessage(m)
	}
	return m
}

func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

func (l *Log) Typing(speaker string) { l.typing.Set(speaker) }

func (l *Log) ClearTyping() { l.typing.Clear() }

func (l *Log) Append(turn Turn) {
	l.Add(Message{Role: ai.RoleModel, Speaker: turn.Speaker, Text: turn.Text})
}

// TypingState reports who is typing, if anyone.
func (l *Log) TypingState() (string, bool) { return l.typing.Current() }

// history converts the transcript into dialogue history. System notices are
// left out; named speakers are prefixed so the model can tell them apart.
func (l *Log) history(prefixSpeakers bool) []ai.Message {
	var out []ai.Message
	for _, m := range l.Messages() {
		if m.System || strings.TrimSpace(m.Text) == "" {
			continue
		}
		text := m.Text
		if prefixSpeakers && m.Speaker != "" {
			text = m.Speaker + ": " + text
		}
		out = append(out, ai.Message{Role: m.Role, Text: text})
	}
	return out
}
