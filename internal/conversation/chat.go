package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"familynest/internal/ai"
	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
	"familynest/internal/i18n"
)

// Chat is a one to one conversation with a single member's persona.
type Chat struct {
	deps   Deps
	member family.Member
	topic  string
	log    *Log
	busy   atomic.Bool
}

// NewChat greets the user in the member's persona. topic, when set for a
// deceased member, steers the conversation toward it.
func NewChat(deps Deps, member family.Member, topic string, log *Log) *Chat {
	c := &Chat{deps: deps.withDefaults(), member: member, topic: strings.TrimSpace(topic), log: log}
	log.Add(Message{Role: ai.RoleModel, Speaker: member.Name, Text: c.greeting()})
	return c
}

func (c *Chat) greeting() string {
	switch {
	case c.topic != "" && c.member.Mode() == family.Deceased:
		return fmt.Sprintf("I'd love to tell you about my memories regarding %s. What would you like to know?", strings.ToLower(c.topic))
	case c.member.Mode() == family.Living:
		return fmt.Sprintf("Hi there! I can help you explore %s's stories. What would you like to know about their memories?", c.member.Name)
	default:
		return fmt.Sprintf("Hello. It is lovely to connect. I am here to share the memories %s left behind. What would you like to ask?", c.member.Name)
	}
}

func (c *Chat) Log() *Log { return c.log }

func (c *Chat) Member() family.Member { return c.member }

// Begin asks about the opening topic on the user's behalf. It does nothing
// without a topic or for a living member.
func (c *Chat) Begin(ctx context.Context) error {
	if c.topic == "" || c.member.Mode() != family.Deceased {
		return nil
	}
	return c.send(ctx, "Tell me about your "+c.topic, nil, false)
}

// Send adds the user's message and the persona's reply to the log.
// "@Story Title" mentions pull the full story into the prompt.
func (c *Chat) Send(ctx context.Context, text string, quote *Quote) error {
	text = strings.TrimSpace(text)
	if text == "" && quote == nil {
		return nil
	}
	return c.send(ctx, text, quote, true)
}

func (c *Chat) send(ctx context.Context, text string, quote *Quote, show bool) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	referenced, err := c.mentioned(ctx, text)
	if err != nil {
		return err
	}
	system, err := PersonaPrompt(ctx, c.deps.Repo, c.member, quote, referenced, c.topic)
	if err != nil {
		return err
	}

	// The question joins the transcript only once it can be answered.
	history := c.log.history(false)
	if show {
		c.log.Add(Message{Role: ai.RoleUser, Text: text, Quote: quote})
	}

	message := text
	if message == "" {
		message = c.deps.Messages.Get(i18n.AttachmentOnly)
	}

	c.log.Typing(c.member.Name)
	defer c.log.ClearTyping()

	callCtx, cancel := context.WithTimeout(ctx, c.deps.Timeout)
	defer cancel()
	reply, err := c.deps.Service.GenerateDialogue(callCtx, ai.DialogueRequest{System: system, History: history, Message: message})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.deps.Logger.WithError(err).WithField("member", c.member.ID).Warn("Chat reply failed")
		reply = c.deps.Messages.Get(i18n.ChatApology)
	}
	if reply = strings.TrimSpace(reply); reply != "" {
		c.log.Add(Message{Role: ai.RoleModel, Speaker: c.member.Name, Text: reply})
	}
	return nil
}

// mentioned resolves "@Title" references against the archive.
func (c *Chat) mentioned(ctx context.Context, text string) ([]*story.Story, error) {
	if !strings.Contains(text, "@") {
		return nil, nil
	}
	stories, err := c.deps.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(stories))
	byTitle := make(map[string]*story.Story, len(stories))
	for _, s := range stories {
		titles = append(titles, s.Title)
		byTitle[s.Title] = s
	}

	var out []*story.Story
	for _, title := range Mentions(text, titles) {
		out = append(out, byTitle[title])
	}
	return out, nil
}

// Mentions returns the titles referenced as "@Title" in text, in order of
// appearance. Matching ignores case and prefers the longest title.
func Mentions(text string, titles []string) []string {
	sorted := append([]string(nil), titles...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < len(lower); i++ {
		if lower[i] != '@' {
			continue
		}
		rest := lower[i+1:]
		for _, title := range sorted {
			t := strings.ToLower(title)
			if !strings.HasPrefix(rest, t) || !boundary(rest[len(t):]) {
				continue
			}
			if !seen[title] {
				out = append(out, title)
				seen[title] = true
			}
			break
		}
	}
	return out
}

// boundary reports whether a mention may end where rest begins.
func boundary(rest string) bool {
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ' ', '\t', '\n', '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}
