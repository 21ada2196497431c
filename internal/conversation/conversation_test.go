package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"familynest/internal/ai"
	"familynest/internal/audio/pcm"
	"familynest/internal/audio/playback"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
)

// fakeService records requests and lets a test replace answers.
type fakeService struct {
	*ai.MockService

	mu       sync.Mutex
	dialogue []ai.DialogueRequest
	prompts  []string

	onDialogue func(ctx context.Context, req ai.DialogueRequest) (string, error)
	onText     func(ctx context.Context, prompt string) (string, error)
}

func newFakeService() *fakeService {
	return &fakeService{MockService: ai.NewMockService()}
}

func (f *fakeService) GenerateDialogue(ctx context.Context, req ai.DialogueRequest) (string, error) {
	f.mu.Lock()
	f.dialogue = append(f.dialogue, req)
	f.mu.Unlock()
	if f.onDialogue != nil {
		return f.onDialogue(ctx, req)
	}
	return f.MockService.GenerateDialogue(ctx, req)
}

func (f *fakeService) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.onText != nil {
		return f.onText(ctx, prompt)
	}
	return f.MockService.GenerateText(ctx, prompt)
}

func (f *fakeService) lastDialogue() ai.DialogueRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialogue[len(f.dialogue)-1]
}

func (f *fakeService) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

func seeded(t *testing.T, svc ai.Service) Deps {
	t.Helper()
	repo := archive.NewMemoryStore()
	dir, err := archive.Seed(context.Background(), repo)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return Deps{Service: svc, Repo: repo, Family: dir, Logger: logger}
}

func member(t *testing.T, deps Deps, id string) family.Member {
	t.Helper()
	m, err := deps.Family.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func speakers(msgs []Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Speaker == "" {
			out = append(out, "user")
			continue
		}
		out = append(out, m.Speaker)
	}
	return out
}

func TestGatheringRevealsEachMember(t *testing.T) {
	svc := newFakeService()
	deps := seeded(t, svc)

	var typing []string
	log := NewLog(nil, func(speaker string, active bool) {
		if active {
			typing = append(typing, speaker)
		}
	})
	g := NewGathering(deps, &Sequencer{}, log)
	defer g.Close()

	if err := g.Send(context.Background(), "What was the best day of your life?", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := speakers(log.Messages())
	want := []string{"Family Gathering", "user", "Grandma Margaret", "Grandpa Robert"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("speakers = %v, want %v", got, want)
	}
	if strings.Join(typing, "|") != "The family|Grandma Margaret|Grandpa Robert" {
		t.Errorf("typing = %v", typing)
	}
	if _, active := log.TypingState(); active {
		t.Error("typing indicator left on")
	}

	req := svc.lastDialogue()
	if strings.Contains(req.System, "FAMILY MEMBER: You (David)") {
		t.Error("the user was asked to answer their own question")
	}
	for _, want := range []string{"FAMILY MEMBER: Grandma Margaret (DECEASED)", "FAMILY MEMBER: Grandpa Robert (LIVING)", "- Title: The Moon Landing Memory, Date:"} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if len(req.History) != 0 {
		t.Errorf("first message carried history %v", req.History)
	}

	if err := g.Send(context.Background(), "Tell me more", nil); err != nil {
		t.Fatal(err)
	}
	history := svc.lastDialogue().History
	if len(history) != 3 || history[1].Text != "Grandma Margaret: What a lovely question, dear." || history[1].Role != ai.RoleModel {
		t.Errorf("history = %+v", history)
	}
}

func TestGatheringQuote(t *testing.T) {
	svc := newFakeService()
	deps := seeded(t, svc)
	g := NewGathering(deps, &Sequencer{}, NewLog(nil, nil))

	s, _ := archive.FindByTitle(context.Background(), deps.Repo, "Fishing Trips in Oregon")
	if err := g.Send(context.Background(), "  ", NewQuote(s)); err != nil {
		t.Fatal(err)
	}

	req := svc.lastDialogue()
	if req.Message != "(User sent an attachment)" {
		t.Errorf("message = %q", req.Message)
	}
	if !strings.Contains(req.System, `TITLE: "Fishing Trips in Oregon" (by Grandpa Robert)`) {
		t.Errorf("system prompt lacks the quoted story:\n%s", req.System)
	}
}

func TestGatheringIgnoresEmptyMessage(t *testing.T) {
	svc := newFakeService()
	g := NewGathering(seeded(t, svc), &Sequencer{}, NewLog(nil, nil))
	if err := g.Send(context.Background(), " \n", nil); err != nil {
		t.Fatal(err)
	}
	if len(svc.dialogue) != 0 || len(g.Log().Messages()) != 1 {
		t.Error("empty message reached the service")
	}
}

func TestGatheringApologisesOnFailure(t *testing.T) {
	svc := newFakeService()
	svc.onDialogue = func(context.Context, ai.DialogueRequest) (string, error) { return "", errors.New("quota") }
	g := NewGathering(seeded(t, svc), &Sequencer{}, NewLog(nil, nil))

	if err := g.Send(context.Background(), "Hello?", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msgs := g.Log().Messages()
	last := msgs[len(msgs)-1]
	if !last.System || last.Speaker != "System" || !strings.HasPrefix(last.Text, "We seem to be having trouble hearing you") {
		t.Errorf("last message = %+v", last)
	}
}

func TestGatheringBusyAndClose(t *testing.T) {
	svc := newFakeService()
	entered := make(chan struct{})
	svc.onDialogue = func(ctx context.Context, _ ai.DialogueRequest) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}
	g := NewGathering(seeded(t, svc), &Sequencer{}, NewLog(nil, nil))

	done := make(chan error, 1)
	go func() { done <- g.Send(context.Background(), "first", nil) }()
	<-entered

	if err := g.Send(context.Background(), "second", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second Send() error = %v, want ErrBusy", err)
	}

	g.Close()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first Send() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the pending reply")
	}
}

func TestMentions(t *testing.T) {
	titles := []string{"How I Proposed", "How I", "My First Job"}
	tests := []struct {
		text string
		want []string
	}{
		{"Tell me about @how i proposed, please", []string{"How I Proposed"}},
		{"@How I and @My First Job!", []string{"How I", "My First Job"}},
		{"@My First Jobs", nil},
		{"no mentions", nil},
		{"@My First Job @my first job", []string{"My First Job"}},
	}
	for _, tt := range tests {
		got := Mentions(tt.text, titles)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Mentions(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestChatLivingPersona(t *testing.T) {
	svc := newFakeService()
	deps := seeded(t, svc)
	robert := member(t, deps, "g-robert")
	chat := NewChat(deps, robert, "", NewLog(nil, nil))

	if err := chat.Send(context.Background(), "What happened on @Fishing Trips in Oregon?", nil); err != nil {
		t.Fatal(err)
	}
	req := svc.lastDialogue()
	for _, want := range []string{
		"who is a LIVING family member",
		"Do NOT pretend to be Grandpa Robert directly",
		"[REFERENCED STORY: Fishing Trips in Oregon]",
		"- TITLE: How I Proposed",
	} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if len(req.History) != 1 || !strings.HasPrefix(req.History[0].Text, "Hi there! I can help you explore Grandpa Robert's stories") {
		t.Errorf("history = %+v", req.History)
	}

	msgs := chat.Log().Messages()
	if len(msgs) != 3 || msgs[2].Speaker != "Grandpa Robert" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestChatDeceasedTopic(t *testing.T) {
	svc := newFakeService()
	deps := seeded(t, svc)
	chat := NewChat(deps, member(t, deps, "g-margaret"), "Cooking", NewLog(nil, nil))

	if err := chat.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	req := svc.lastDialogue()
	if req.Message != "Tell me about your Cooking" {
		t.Errorf("message = %q", req.Message)
	}
	for _, want := range []string{"who has passed away", "FIRST PERSON", "experiences with: Cooking"} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	msgs := chat.Log().Messages()
	if len(msgs) != 2 || msgs[0].Text != "I'd love to tell you about my memories regarding cooking. What would you like to know?" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestChatApologisesOnFailure(t *testing.T) {
	svc := newFakeService()
	svc.onDialogue = func(context.Context, ai.DialogueRequest) (string, error) { return "", errors.New("503") }
	deps := seeded(t, svc)
	chat := NewChat(deps, member(t, deps, "g-margaret"), "", NewLog(nil, nil))

	if err := chat.Send(context.Background(), "Hello", nil); err != nil {
		t.Fatal(err)
	}
	msgs := chat.Log().Messages()
	if got := msgs[len(msgs)-1].Text; !strings.HasPrefix(got, "Oh dear, the connection to the archives") {
		t.Errorf("reply = %q", got)
	}
}

// brokenArchive fails every List.
type brokenArchive struct {
	archive.Repository
	err error
}

func (b brokenArchive) List(context.Context) ([]*story.Story, error) { return nil, b.err }

func TestChatKeepsNoUnansweredQuestion(t *testing.T) {
	svc := newFakeService()
	deps := seeded(t, svc)
	lost := errors.New("archive offline")
	deps.Repo = brokenArchive{Repository: deps.Repo, err: lost}
	chat := NewChat(deps, member(t, deps, "g-margaret"), "", NewLog(nil, nil))

	if err := chat.Send(context.Background(), "Tell me about @The Moon Landing Memory", nil); !errors.Is(err, lost) {
		t.Fatalf("Send() error = %v, want %v", err, lost)
	}
	if got := speakers(chat.Log().Messages()); len(got) != 1 || got[0] != "Grandma Margaret" {
		t.Errorf("speakers = %v, want only the greeting", got)
	}
}

type fakeNarrator struct {
	err   error
	texts []string
}

func (f *fakeNarrator) Narrate(_ context.Context, text, _ string) (*pcm.Buffer, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &pcm.Buffer{Samples: make([]float32, pcm.SpeechSampleRate), SampleRate: pcm.SpeechSampleRate, Channels: 1}, nil
}

func newTestCall(deps Deps, narrator Narrator, clock *playback.FakeClock) *Call {
	return NewCall(deps, narrator, func(family.Member) string { return "Kore" },
		WithCallClock(clock),
		WithPlayback(playback.WithOutput(&playback.RecordingOutput{}), playback.WithFrameInterval(0)),
	)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCallLivingMembersConnectAfterDelay(t *testing.T) {
	deps := seeded(t, newFakeService())
	clock := playback.NewFakeClock(time.Unix(0, 0))
	call := newTestCall(deps, &fakeNarrator{}, clock)
	defer call.Hangup()

	if err := call.Join(member(t, deps, "g-robert")); err != nil {
		t.Fatal(err)
	}
	if err := call.Join(member(t, deps, "g-margaret")); err != nil {
		t.Fatal(err)
	}
	if err := call.Join(member(t, deps, "g-robert")); !errors.Is(err, ErrAlreadyInCall) {
		t.Errorf("second Join() error = %v", err)
	}

	ps := call.Participants()
	if ps[0].Status != Connecting || ps[1].Status != Connected || ps[1].Kind != AIDeceased {
		t.Fatalf("participants = %+v", ps)
	}

	waitFor(t, func() bool { return clock.Waiters() > 0 })
	clock.Advance(DefaultConnectDelay)
	waitFor(t, func() bool { return call.Participants()[0].Status == Connected })
}

func TestCallSpeakPlaysReplyAndClearsSpeaking(t *testing.T) {
	svc := newFakeService()
	svc.onText = func(context.Context, string) (string, error) { return " Hello, dear. ", nil }
	deps := seeded(t, svc)
	clock := playback.NewFakeClock(time.Unix(0, 0))
	narrator := &fakeNarrator{}
	call := newTestCall(deps, narrator, clock)
	defer call.Hangup()

	call.Join(member(t, deps, "g-margaret"))

	reply, err := call.Speak(context.Background(), "Do you remember the moon landing?")
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if reply != "Hello, dear." || narrator.texts[0] != "Hello, dear." {
		t.Errorf("reply = %q, narrated %v", reply, narrator.texts)
	}
	prompt := svc.lastPrompt()
	for _, want := range []string{"You are mimicking the deceased family member Grandma Margaret in a video call.", "\nMemory: ", `User said: "Do you remember the moon landing?"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !call.Participants()[0].Speaking {
		t.Fatal("speaker not marked while playing")
	}

	clock.Advance(2 * time.Second)
	call.mu.Lock()
	scheduler := call.participants[0].scheduler
	call.mu.Unlock()
	scheduler.Sample()

	if call.Participants()[0].Speaking {
		t.Error("speaking flag not cleared after playback")
	}
}

func TestCallSpeakFailures(t *testing.T) {
	deps := seeded(t, newFakeService())
	clock := playback.NewFakeClock(time.Unix(0, 0))

	call := newTestCall(deps, &fakeNarrator{}, clock)
	call.Join(member(t, deps, "g-robert"))
	if _, err := call.Speak(context.Background(), "Hi"); !errors.Is(err, ErrNoResponder) {
		t.Errorf("Speak() without AI error = %v", err)
	}
	call.Hangup()
	if err := call.Join(member(t, deps, "g-margaret")); !errors.Is(err, ErrCallEnded) {
		t.Errorf("Join() after hangup error = %v", err)
	}

	boom := errors.New("tts down")
	call = newTestCall(deps, &fakeNarrator{err: boom}, clock)
	defer call.Hangup()
	call.Join(member(t, deps, "g-margaret"))
	if _, err := call.Speak(context.Background(), "Hi"); !errors.Is(err, boom) {
		t.Errorf("Speak() error = %v", err)
	}
	if call.Participants()[0].Speaking {
		t.Error("speaking flag left on after failure")
	}
}

func TestCommenterWritesAsPersona(t *testing.T) {
	svc := newFakeService()
	deps := seeded(t, svc)
	ctx := context.Background()
	s, _ := archive.FindByTitle(ctx, deps.Repo, "Building Our First House")
	before := len(s.Comments)

	c := NewCommenter(deps, "g-margaret", nil)
	c.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	comment, err := c.Generate(ctx, s.ID)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if comment.AuthorID != "g-margaret" || !comment.AIGenerated || comment.Text == "" {
		t.Errorf("comment = %+v", comment)
	}

	prompt := svc.lastPrompt()
	for _, want := range []string{"from the perspective of Grandma Margaret (who is deceased)", "MY MEMORY (The Moon Landing Memory):", "under 20 words"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	stored, _ := deps.Repo.Get(ctx, s.ID)
	if len(stored.Comments) != before+1 || stored.Comments[before].ID != comment.ID {
		t.Errorf("stored comments = %+v", stored.Comments)
	}
}

type updaterFunc func(ctx context.Context, id string, change func(*story.Story)) (*story.Story, error)

func (f updaterFunc) Update(ctx context.Context, id string, change func(*story.Story)) (*story.Story, error) {
	return f(ctx, id, change)
}

func TestCommenterUsesUpdater(t *testing.T) {
	deps := seeded(t, newFakeService())
	ctx := context.Background()
	s, _ := archive.FindByTitle(ctx, deps.Repo, "How I Proposed")

	var updated string
	c := NewCommenter(deps, "", updaterFunc(func(_ context.Context, id string, change func(*story.Story)) (*story.Story, error) {
		updated = id
		return nil, nil
	}))
	if _, err := c.Generate(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if updated != s.ID {
		t.Errorf("updater called for %q", updated)
	}
}

func TestCommenterPersonaFallback(t *testing.T) {
	deps := seeded(t, newFakeService())

	m, err := NewCommenter(deps, "g-robert", nil).Persona()
	if err != nil || m.ID != "g-margaret" {
		t.Errorf("Persona() with a living member configured = %v, %v", m.ID, err)
	}

	deps.Family = family.NewDirectory(family.Member{ID: "x", Name: "X", Living: true})
	if _, err := NewCommenter(deps, "", nil).Generate(context.Background(), ""); !errors.Is(err, ErrNoPersona) {
		t.Errorf("Generate() error = %v, want ErrNoPersona", err)
	}
}
