package nest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"familynest/internal/ai"
	"familynest/internal/audio/playback"
	"familynest/internal/cli/scheme/colours"
	"familynest/internal/config"
	"familynest/internal/conversation"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
	"familynest/internal/i18n"
	"familynest/internal/narration"
	"familynest/internal/story/tts"
)

// FamilyNest main application structure
type FamilyNest struct {
	cfg    *config.Config
	svc    ai.Service
	repo   archive.Repository
	family *family.Directory
	msgs   *i18n.Messages
	orch   *narration.Orchestrator
	log    logrus.FieldLogger

	Engine    *tts.Engine
	Scheduler *playback.Scheduler
	playback  []playback.Option

	in        io.Reader
	out       io.Writer
	lines     chan string
	linesOnce sync.Once

	ctx    context.Context
	Cancel context.CancelFunc
}

type Option func(*FamilyNest)

// WithService replaces the service built from the ai config.
func WithService(svc ai.Service) Option {
	return func(sn *FamilyNest) { sn.svc = svc }
}

// WithRepository replaces the archive opened from the archive config.
func WithRepository(repo archive.Repository) Option {
	return func(sn *FamilyNest) { sn.repo = repo }
}

// WithIO reads user input from in and writes everything shown to out.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(sn *FamilyNest) { sn.in, sn.out = in, out }
}

// WithPlayback adds options to every scheduler the app creates.
func WithPlayback(opts ...playback.Option) Option {
	return func(sn *FamilyNest) { sn.playback = append(sn.playback, opts...) }
}

func NewFamilyNest(cfg *config.Config, opts ...Option) (*FamilyNest, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sn := &FamilyNest{
		cfg:    cfg,
		log:    logrus.StandardLogger(),
		in:     os.Stdin,
		out:    os.Stdout,
		ctx:    ctx,
		Cancel: cancel,
	}
	for _, opt := range opts {
		opt(sn)
	}
	sn.out = &lockedWriter{w: sn.out}

	var err error
	if sn.svc == nil {
		if sn.svc, err = ai.NewService(ctx, cfg.AI.Service()); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create ai service: %w", err)
		}
	}
	if sn.repo == nil {
		if sn.repo, err = archive.Open(cfg.Archive.Driver, cfg.Archive.Path); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
	}
	if sn.family, err = archive.Seed(ctx, sn.repo); err != nil {
		cancel()
		return nil, err
	}

	if sn.Engine, err = tts.NewEngine(ctx, cfg.Engine(), sn.svc, cfg.AI.Provider); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create tts engine: %w", err)
	}

	sn.msgs = i18n.New(cfg.Locale)
	sn.orch = narration.New(sn.svc, sn.repo,
		narration.WithConfig(narration.Config{
			Author:            cfg.Story.Author,
			DefaultTranscript: cfg.Story.DefaultTranscript,
			RequestTimeout:    cfg.AI.Timeout,
		}),
		narration.WithSynthesizer(sn.Engine),
		narration.WithMessages(sn.msgs),
		narration.WithLogger(sn.log),
	)
	sn.Scheduler = sn.newScheduler()
	return sn, nil
}

func (sn *FamilyNest) newScheduler(extra ...playback.Option) *playback.Scheduler {
	opts := []playback.Option{
		playback.WithLoader(sn.orch),
		playback.WithFrameInterval(sn.cfg.Playback.FrameInterval),
		playback.WithLogger(sn.log),
	}
	opts = append(opts, sn.playback...)
	return playback.NewScheduler(append(opts, extra...)...)
}

func (sn *FamilyNest) deps() conversation.Deps {
	return conversation.Deps{
		Service:  sn.svc,
		Repo:     sn.repo,
		Family:   sn.family,
		Messages: sn.msgs,
		Logger:   sn.log,
		Timeout:  sn.cfg.AI.Timeout,
	}
}

// Close stops playback and anything still waiting on the app context.
func (sn *FamilyNest) Close() {
	sn.Cancel()
	sn.Scheduler.Close()
	if c, ok := sn.repo.(io.Closer); ok {
		if err := c.Close(); err != nil {
			sn.log.WithError(err).Warn("Failed to close archive")
		}
	}
}

func (sn *FamilyNest) ShowWelcome() {
	fmt.Fprintln(sn.out)
	colours.Title.Fprintln(sn.out, "🏡 Welcome to FamilyNest! 🏡")
	fmt.Fprintln(sn.out)
	colours.Info.Fprintln(sn.out, "📚 Available commands:")
	fmt.Fprintln(sn.out, "  • familynest list              - Browse the family archive")
	fmt.Fprintln(sn.out, "  • familynest show <title>      - Read a story with its context")
	fmt.Fprintln(sn.out, "  • familynest record --file f   - Add a new recorded memory")
	fmt.Fprintln(sn.out, "  • familynest play <title>      - Listen to a story")
	fmt.Fprintln(sn.out, "  • familynest chat <member>     - Talk with a family member")
	fmt.Fprintln(sn.out, "  • familynest gathering         - Chat with the whole family")
	fmt.Fprintln(sn.out, "  • familynest call [members]    - Start a family video call")
	fmt.Fprintln(sn.out, "  • familynest comment <title>   - Ask a loved one to comment")
	fmt.Fprintln(sn.out, "  • familynest memorial <member> - Create a memorial message")
	fmt.Fprintln(sn.out, "  • familynest serve             - Start the HTTP API")
	fmt.Fprintln(sn.out)
	colours.Prompt.Fprintln(sn.out, "✨ Every family has a story worth keeping ✨")
}

// member resolves an ID or a name, ignoring case. A unique partial name
// also matches.
func (sn *FamilyNest) member(args []string) (family.Member, error) {
	key := strings.TrimSpace(strings.Join(args, " "))
	if key == "" {
		return family.Member{}, fmt.Errorf("%w: no name given", family.ErrMemberNotFound)
	}
	if m, err := sn.family.FindByName(key); err == nil {
		return m, nil
	}

	var partial []family.Member
	for _, m := range sn.family.List() {
		if strings.EqualFold(m.ID, key) || strings.EqualFold(m.Name, key) {
			return m, nil
		}
		if strings.Contains(strings.ToLower(m.Name), strings.ToLower(key)) {
			partial = append(partial, m)
		}
	}
	if len(partial) == 1 {
		return partial[0], nil
	}
	return family.Member{}, fmt.Errorf("%w: %q", family.ErrMemberNotFound, key)
}

func (sn *FamilyNest) story(args []string) (*story.Story, error) {
	key := strings.TrimSpace(strings.Join(args, " "))
	if key == "" {
		return nil, fmt.Errorf("%w: no title given", archive.ErrNotFound)
	}
	return archive.Lookup(sn.ctx, sn.repo, key)
}

// voiceFor picks the voice of a story's author.
func (sn *FamilyNest) voiceFor(s *story.Story) string {
	author, _ := sn.member([]string{s.Author})
	return sn.Engine.VoiceFor(author)
}

// input starts reading lines from the user once.
func (sn *FamilyNest) input() <-chan string {
	sn.linesOnce.Do(func() {
		sn.lines = make(chan string)
		go func() {
			defer close(sn.lines)
			scanner := bufio.NewScanner(sn.in)
			for scanner.Scan() {
				select {
				case sn.lines <- scanner.Text():
				case <-sn.ctx.Done():
					return
				}
			}
		}()
	})
	return sn.lines
}

// readLine shows prompt and waits for the next line. ok is false once input
// is exhausted or the app is shutting down.
func (sn *FamilyNest) readLine(prompt string) (line string, ok bool) {
	if prompt != "" {
		colours.Prompt.Fprint(sn.out, prompt)
	}
	select {
	case line, ok = <-sn.input():
		return strings.TrimSpace(line), ok
	case <-sn.ctx.Done():
		return "", false
	}
}

func (sn *FamilyNest) fail(format string, args ...any) {
	colours.Error.Fprintf(sn.out, "❌ "+format+"\n", args...)
}

// lockedWriter keeps lines printed from callbacks from interleaving.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
