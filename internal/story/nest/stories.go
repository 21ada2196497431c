package nest

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"familynest/internal/cli/scheme/colours"
	"familynest/internal/conversation"
	"familynest/internal/domain/story"
	"familynest/internal/i18n"
	"familynest/internal/narration"
)

func (sn *FamilyNest) ListStories(cmd *cobra.Command, args []string) {
	author, _ := cmd.Flags().GetString("author")
	tagged, _ := cmd.Flags().GetString("member")

	stories, err := sn.repo.List(sn.ctx)
	if err != nil {
		sn.fail("Failed to read the archive: %v", err)
		return
	}
	var taggedID string
	if tagged != "" {
		m, err := sn.member([]string{tagged})
		if err != nil {
			sn.fail("%v", err)
			return
		}
		taggedID = m.ID
	}

	fmt.Fprintln(sn.out)
	colours.Title.Fprintln(sn.out, "📚 Family Archive 📚")
	fmt.Fprintln(sn.out)

	count := 0
	for _, s := range stories {
		if author != "" && !strings.Contains(strings.ToLower(s.Author), strings.ToLower(author)) {
			continue
		}
		if taggedID != "" && !s.Mentions(taggedID) {
			continue
		}

		count++
		fmt.Fprintf(sn.out, "  %d. ", count)
		colours.Title.Fprint(sn.out, s.Title)
		fmt.Fprint(sn.out, " by ")
		colours.Author.Fprint(sn.out, s.Author)
		fmt.Fprintf(sn.out, "\n     📅 %s", s.Date)
		if s.HasMedia() {
			fmt.Fprintf(sn.out, " | 🎙️ %s", s.MediaKind)
		}
		if len(s.ContextCards) > 0 {
			fmt.Fprintf(sn.out, " | 🔍 %d facts", len(s.ContextCards))
		}
		if s.ImageURL != "" {
			fmt.Fprint(sn.out, " | 🖼️ illustrated")
		}
		if len(s.Comments) > 0 {
			fmt.Fprintf(sn.out, " | 💬 %d", len(s.Comments))
		}
		fmt.Fprintln(sn.out)
		colours.Info.Fprintf(sn.out, "     ID: %s\n", s.ID)
		fmt.Fprintln(sn.out)
	}

	if count == 0 {
		colours.Warning.Fprintln(sn.out, "🔍 No stories found matching your criteria.")
	} else {
		colours.Success.Fprintf(sn.out, "✨ Found %d family stories ✨\n", count)
	}
}

func (sn *FamilyNest) ShowStory(cmd *cobra.Command, args []string) {
	enrich, _ := cmd.Flags().GetBool("enrich")

	s, err := sn.story(args)
	if err != nil {
		sn.fail("%v", err)
		return
	}

	if enrich {
		bf, err := sn.orch.Enrich(sn.ctx, s.ID)
		if err != nil {
			sn.fail("Failed to enrich story: %v", err)
			return
		}
		if bf != nil {
			if enriched := sn.awaitBackfill(bf); enriched != nil {
				s = enriched
			}
		}
	}
	sn.displayStory(s)
}

func (sn *FamilyNest) displayStory(s *story.Story) {
	fmt.Fprintln(sn.out)
	colours.Title.Fprintf(sn.out, "📖 %s\n", s.Title)
	colours.Author.Fprintf(sn.out, "✍️  by %s, %s\n", s.Author, s.Date)
	fmt.Fprintln(sn.out)
	fmt.Fprintln(sn.out, s.Transcript)

	if len(s.ContextCards) > 0 {
		fmt.Fprintln(sn.out)
		colours.Info.Fprintln(sn.out, "🕰️ Historical context:")
		for _, card := range s.ContextCards {
			fmt.Fprintf(sn.out, "  %s ", card.Icon)
			colours.Title.Fprint(sn.out, card.Title)
			fmt.Fprintf(sn.out, ": %s\n", card.Content)
			if card.SourceURL != "" {
				colours.Info.Fprintf(sn.out, "     🔗 %s\n", card.SourceURL)
			}
		}
	}
	if s.ImageURL != "" {
		fmt.Fprintln(sn.out)
		colours.Success.Fprintln(sn.out, "🖼️ This story has an illustration")
	}

	if len(s.Comments) > 0 {
		fmt.Fprintln(sn.out)
		colours.Info.Fprintln(sn.out, "💬 Comments:")
		for _, c := range s.Comments {
			name := c.AuthorID
			if m, err := sn.family.Get(c.AuthorID); err == nil {
				name = m.Name
			}
			colours.Speaker(name).Fprintf(sn.out, "  %s", name)
			if c.AIGenerated {
				colours.Deceased.Fprint(sn.out, " (remembered)")
			}
			fmt.Fprintf(sn.out, ": %s\n", c.Text)
		}
	}
}

// awaitBackfill waits for the context and illustration requests. It returns
// nil if the app is shutting down.
func (sn *FamilyNest) awaitBackfill(bf *narration.Backfill) *story.Story {
	colours.Info.Fprintln(sn.out, "🔍 Gathering historical context and an illustration...")
	select {
	case <-bf.Done():
	case <-sn.ctx.Done():
		bf.Cancel()
		return nil
	}
	s, err := bf.Wait()
	if err != nil {
		sn.fail("Failed to reload story: %v", err)
		return nil
	}
	return s
}

func (sn *FamilyNest) RecordStory(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	title, _ := cmd.Flags().GetString("title")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	author, _ := cmd.Flags().GetString("author")
	mimeType, _ := cmd.Flags().GetString("mime")

	req := narration.RecordRequest{Title: title, Author: author}
	if file != "" {
		media, err := os.ReadFile(file)
		if err != nil {
			sn.fail("Failed to read recording: %v", err)
			return
		}
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(file))
		}
		if mimeType == "" {
			mimeType = "audio/webm"
		}
		req.Media, req.MIMEType = media, mimeType
		req.Kind = story.MediaAudio
		if strings.HasPrefix(mimeType, "video/") {
			req.Kind = story.MediaVideo
		}
	}
	for _, tag := range tags {
		m, err := sn.member([]string{tag})
		if err != nil {
			sn.fail("%v", err)
			return
		}
		req.Tags = append(req.Tags, m.ID)
	}

	colours.Info.Fprintln(sn.out, "🎙️ Transcribing your memory...")
	s, bf, err := sn.orch.Record(sn.ctx, req)
	if err != nil {
		sn.fail("Failed to save story: %v", err)
		return
	}
	colours.Success.Fprintf(sn.out, "✅ Saved \"%s\"\n", s.Title)

	if enriched := sn.awaitBackfill(bf); enriched != nil {
		s = enriched
	}
	sn.displayStory(s)
}

func (sn *FamilyNest) CommentOnStory(cmd *cobra.Command, args []string) {
	s, err := sn.story(args)
	if err != nil {
		sn.fail("%v", err)
		return
	}

	commenter := conversation.NewCommenter(sn.deps(), sn.cfg.Comments.Persona, sn.orch)
	persona, err := commenter.Persona()
	if err != nil {
		sn.fail("%v", err)
		return
	}
	colours.Typing.Fprintf(sn.out, "✍️  %s is writing...\n", persona.Name)

	comment, err := commenter.Generate(sn.ctx, s.ID)
	if err != nil {
		if sn.ctx.Err() != nil {
			return
		}
		sn.log.WithError(err).WithField("story_id", s.ID).Warn("AI comment failed")
		colours.Warning.Fprintln(sn.out, "⚠️ "+sn.msgs.Get(i18n.CommentUnavailable))
		return
	}
	colours.Speaker(persona.Name).Fprint(sn.out, persona.Name)
	colours.Deceased.Fprint(sn.out, " (remembered)")
	fmt.Fprintf(sn.out, ": %s\n", comment.Text)
}
