package nest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"familynest/internal/ai"
	"familynest/internal/audio/playback"
	"familynest/internal/config"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
)

func init() {
	color.NoColor = true
}

func newTestNest(t *testing.T, input string) (*FamilyNest, *archive.MemoryStore, *bytes.Buffer) {
	t.Helper()

	cfg := &config.Config{
		AI:       config.AIConfig{Provider: "mock", Timeout: 5 * time.Second},
		TTS:      config.TTSConfig{Type: "mock"},
		Comments: config.CommentsConfig{Persona: "g-margaret"},
		Locale:   "en",
	}
	repo := archive.NewMemoryStore()
	out := &bytes.Buffer{}

	sn, err := NewFamilyNest(cfg,
		WithService(ai.NewMockService()),
		WithRepository(repo),
		WithIO(strings.NewReader(input), out),
		WithPlayback(playback.WithOutput(playback.NullOutput{})),
	)
	if err != nil {
		t.Fatalf("NewFamilyNest: %v", err)
	}
	t.Cleanup(sn.Close)
	return sn, repo, out
}

func command(define func(f *cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	if define != nil {
		define(cmd)
	}
	return cmd
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name string
		p    playback.Progress
		want string
	}{
		{"half", playback.Progress{Elapsed: 20 * time.Second, Duration: 40 * time.Second, Ratio: 0.5},
			"[" + strings.Repeat("#", 15) + strings.Repeat(".", 15) + "] 0:20 / 0:40"},
		{"empty", playback.Progress{Duration: 65 * time.Second},
			"[" + strings.Repeat(".", 30) + "] 0:00 / 1:05"},
		{"clamped", playback.Progress{Elapsed: 3 * time.Second, Duration: 2 * time.Second, Ratio: 1.5},
			"[" + strings.Repeat("#", 30) + "] 0:03 / 0:02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, progressBar(tt.p)); diff != "" {
				t.Errorf("progressBar() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemberLookup(t *testing.T) {
	sn, _, _ := newTestNest(t, "")

	for key, want := range map[string]string{
		"g-margaret":     "g-margaret",
		"Grandpa Robert": "g-robert",
		"grandpa robert": "g-robert",
		"jennifer":       "m-jennifer",
	} {
		m, err := sn.member([]string{key})
		if err != nil {
			t.Errorf("member(%q): %v", key, err)
			continue
		}
		if m.ID != want {
			t.Errorf("member(%q) = %s, want %s", key, m.ID, want)
		}
	}

	for _, key := range []string{"", "grand", "nobody"} {
		if _, err := sn.member([]string{key}); !errors.Is(err, family.ErrMemberNotFound) {
			t.Errorf("member(%q) error = %v, want ErrMemberNotFound", key, err)
		}
	}
}

func TestListStoriesByAuthor(t *testing.T) {
	sn, _, out := newTestNest(t, "")

	cmd := command(func(c *cobra.Command) {
		c.Flags().String("author", "", "")
		c.Flags().String("member", "", "")
	})
	if err := cmd.Flags().Set("author", "grandpa"); err != nil {
		t.Fatal(err)
	}
	sn.ListStories(cmd, nil)

	got := out.String()
	if !strings.Contains(got, "Building Our First House") {
		t.Errorf("output is missing a story by Grandpa Robert:\n%s", got)
	}
	if strings.Contains(got, "The Moon Landing Memory") {
		t.Errorf("output lists a story by another author:\n%s", got)
	}
	if !strings.Contains(got, "Found 4 family stories") {
		t.Errorf("output is missing the story count:\n%s", got)
	}
}

func TestRecordStory(t *testing.T) {
	sn, repo, out := newTestNest(t, "")

	path := filepath.Join(t.TempDir(), "memory.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := command(func(c *cobra.Command) {
		c.Flags().String("file", "", "")
		c.Flags().String("title", "", "")
		c.Flags().StringSlice("tag", nil, "")
		c.Flags().String("author", "", "")
		c.Flags().String("mime", "", "")
	})
	for name, value := range map[string]string{"file": path, "mime": "audio/wav", "tag": "margaret", "author": "You (David)"} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}
	sn.RecordStory(cmd, nil)

	got := out.String()
	if !strings.Contains(got, `Saved "Around the Kitchen Table"`) {
		t.Fatalf("story was not saved:\n%s", got)
	}
	if !strings.Contains(got, "Historical context:") {
		t.Errorf("output is missing context cards:\n%s", got)
	}

	s, err := archive.FindByTitle(context.Background(), repo, "Around the Kitchen Table")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"g-margaret"}, s.MentionedMemberIDs); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if s.MediaMIMEType != "audio/wav" || !s.HasMedia() {
		t.Errorf("media = %q (%d bytes), want the recording", s.MediaMIMEType, len(s.Media))
	}
}

func TestCommentOnStory(t *testing.T) {
	sn, repo, out := newTestNest(t, "")

	sn.CommentOnStory(command(nil), []string{"The Moon Landing Memory"})

	got := out.String()
	want := "Grandma Margaret (remembered): What a beautiful memory. I am so proud of this family."
	if !strings.Contains(got, want) {
		t.Errorf("output = %q, want it to contain %q", got, want)
	}

	s, err := archive.FindByTitle(context.Background(), repo, "The Moon Landing Memory")
	if err != nil {
		t.Fatal(err)
	}
	last := s.Comments[len(s.Comments)-1]
	if last.AuthorID != "g-margaret" || !last.AIGenerated {
		t.Errorf("last comment = %+v, want an AI comment from g-margaret", last)
	}
}

func TestChat(t *testing.T) {
	sn, _, out := newTestNest(t, "Tell me about the house\n/quit\nnever read\n")

	sn.Chat(command(func(c *cobra.Command) { c.Flags().String("topic", "", "") }), []string{"robert"})

	got := out.String()
	for _, want := range []string{
		"Chatting with Grandpa Robert",
		"Grandpa Robert: Hi there! I can help you explore Grandpa Robert's stories.",
		"Grandpa Robert is typing...",
		"Grandpa Robert: That reminds me of a story I hold very dear.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output is missing %q:\n%s", want, got)
		}
	}
}

func TestGathering(t *testing.T) {
	sn, _, out := newTestNest(t, "What was the best summer?\n/quit\n")

	sn.Gathering(command(nil), nil)

	got := out.String()
	first := strings.Index(got, "Grandma Margaret: What a lovely question, dear.")
	second := strings.Index(got, "Grandpa Robert: That reminds me of what Grandma Margaret always said.")
	if first < 0 || second < 0 {
		t.Fatalf("output is missing the family's turns:\n%s", got)
	}
	if second < first {
		t.Errorf("turns are out of order:\n%s", got)
	}
}

func TestPlayStoryTransport(t *testing.T) {
	sn, _, out := newTestNest(t, "p\np\nx\ns\n")

	cmd := command(func(c *cobra.Command) {
		c.Flags().String("voice", "", "")
		c.Flags().Bool("narrate", false, "")
	})
	sn.PlayStory(cmd, []string{"The Moon Landing Memory"})

	got := out.String()
	var order []int
	for _, want := range []string{"Paused", "Resumed", "Use 'p' for pause/resume", "Stopped"} {
		i := strings.Index(got, want)
		if i < 0 {
			t.Fatalf("output is missing %q:\n%s", want, got)
		}
		order = append(order, i)
	}
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Errorf("transport messages are out of order:\n%s", got)
		}
	}
	if state := sn.Scheduler.State(); state != playback.Idle {
		t.Errorf("state after stop = %v, want %v", state, playback.Idle)
	}
}

func TestMemorialWithoutPlayback(t *testing.T) {
	sn, _, out := newTestNest(t, "")

	cmd := command(func(c *cobra.Command) {
		c.Flags().String("kind", "Love Letter", "")
		c.Flags().String("custom", "", "")
		c.Flags().Bool("play", true, "")
	})
	if err := cmd.Flags().Set("kind", "life wisdom"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("play", "false"); err != nil {
		t.Fatal(err)
	}
	sn.Memorial(cmd, []string{"margaret"})

	got := out.String()
	for _, want := range []string{"Life Wisdom from Grandma Margaret", "What a beautiful memory."} {
		if !strings.Contains(got, want) {
			t.Errorf("output is missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Preparing playback") {
		t.Errorf("memorial played with --play=false:\n%s", got)
	}
}

func TestMemorialRejectsUnknownKind(t *testing.T) {
	sn, _, out := newTestNest(t, "")

	cmd := command(func(c *cobra.Command) {
		c.Flags().String("kind", "Limerick", "")
		c.Flags().String("custom", "", "")
		c.Flags().Bool("play", false, "")
	})
	sn.Memorial(cmd, []string{"margaret"})

	if !strings.Contains(out.String(), "❌") {
		t.Errorf("expected an error for an unknown kind:\n%s", out.String())
	}
}

func TestCallWithLovedOne(t *testing.T) {
	sn, _, out := newTestNest(t, "Do you remember the dance?\n/hangup\n")

	sn.Call(command(nil), []string{"Grandma Margaret"})

	got := out.String()
	for _, want := range []string{
		"Family call",
		"Grandma Margaret: What a beautiful memory. I am so proud of this family.",
		"Call ended",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output is missing %q:\n%s", want, got)
		}
	}
}
