package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"familynest/internal/ai"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
	"familynest/internal/i18n"
)

const galleryItem = "A photo/memory in the gallery."

// Updater applies a change to a stored story without racing other writers.
type Updater interface {
	Update(ctx context.Context, id string, change func(*story.Story)) (*story.Story, error)
}

// Commenter writes short AI comments on stories in a deceased member's
// voice.
type Commenter struct {
	deps    Deps
	persona string
	updater Updater
	now     func() time.Time
}

// NewCommenter speaks as the member with ID persona when present. updater
// may be nil, in which case the repository is written directly.
func NewCommenter(deps Deps, persona string, updater Updater) *Commenter {
	return &Commenter{deps: deps.withDefaults(), persona: persona, updater: updater, now: time.Now}
}

// Persona picks the configured member, or the first deceased one.
func (c *Commenter) Persona() (family.Member, error) {
	if c.persona != "" {
		if m, err := c.deps.Family.Get(c.persona); err == nil && m.Mode() == family.Deceased {
			return m, nil
		}
	}
	deceased := c.deps.Family.Deceased()
	if len(deceased) == 0 {
		return family.Member{}, ErrNoPersona
	}
	return deceased[0], nil
}

// Generate writes a comment on the story and stores it. An empty storyID
// comments on an untitled gallery item and stores nothing.
func (c *Commenter) Generate(ctx context.Context, storyID string) (*story.Comment, error) {
	persona, err := c.Persona()
	if err != nil {
		return nil, err
	}

	item := galleryItem
	if storyID != "" {
		s, err := c.deps.Repo.Get(ctx, storyID)
		if err != nil {
			return nil, err
		}
		item = s.Transcript
		if item == "" {
			item = c.deps.Messages.Get(i18n.TranscriptUnavailable)
		}
	}

	memories, err := archive.ForMember(ctx, c.deps.Repo, persona)
	if err != nil {
		return nil, err
	}
	type memory struct{ Title, Snippet string }
	var snippets []memory
	for _, s := range memories {
		snippet := []rune(s.Transcript)
		if len(snippet) > quoteSnippetRunes {
			snippet = snippet[:quoteSnippetRunes]
		}
		snippets = append(snippets, memory{s.Title, string(snippet)})
	}

	prompt, err := render(commentTemplate, struct {
		Name, Item string
		Memories   []memory
	}{persona.Name, item, snippets})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.deps.Timeout)
	defer cancel()
	text, err := c.deps.Service.GenerateText(callCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("comment as %s: %w", persona.Name, err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return nil, ai.ErrNoContent
	}

	comment := story.NewComment(persona.ID, text, c.now())
	comment.AIGenerated = true
	if storyID == "" {
		return &comment, nil
	}

	appendComment := func(s *story.Story) { s.Comments = append(s.Comments, comment) }
	if c.updater != nil {
		_, err = c.updater.Update(ctx, storyID, appendComment)
	} else {
		err = c.store(ctx, storyID, appendComment)
	}
	if err != nil {
		return nil, err
	}

	c.deps.Logger.WithField("story_id", storyID).WithField("persona", persona.ID).Info("AI comment added")
	return &comment, nil
}

func (c *Commenter) store(ctx context.Context, id string, change func(*story.Story)) error {
	s, err := c.deps.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	change(s)
	if err := c.deps.Repo.Put(ctx, s); err != nil {
		return fmt.Errorf("store comment: %w", err)
	}
	return nil
}
