// Package narration turns recordings into archived stories and stories into
// speech. It owns every fallback for the generative service: callers get
// usable data, never a service error.
package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"familynest/internal/ai"
	"familynest/internal/audio/pcm"
	"familynest/internal/audio/playback"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/story"
	"familynest/internal/i18n"
	"familynest/internal/story/tts"
)

const DefaultRequestTimeout = 60 * time.Second

type Config struct {
	// Author is credited when a request names none.
	Author string
	// DefaultTranscript is used when a story is recorded without media.
	DefaultTranscript string
	RequestTimeout    time.Duration
}

// Observer is told about every story update the orchestrator stores.
type Observer interface {
	OnUpdate(s *story.Story)
}

type ObserverFunc func(s *story.Story)

func (f ObserverFunc) OnUpdate(s *story.Story) { f(s) }

type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithSynthesizer narrates through synth instead of the service's own voice.
func WithSynthesizer(synth tts.Synthesizer) Option {
	return func(o *Orchestrator) { o.synth = synth }
}

func WithMessages(msgs *i18n.Messages) Option {
	return func(o *Orchestrator) { o.msgs = msgs }
}

func WithFlags(flags *Flags) Option {
	return func(o *Orchestrator) { o.flags = flags }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithNow replaces the clock used to date new stories.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type Orchestrator struct {
	svc       ai.Service
	repo      archive.Repository
	synth     tts.Synthesizer
	msgs      *i18n.Messages
	flags     *Flags
	observers []Observer
	cfg       Config
	now       func() time.Time
	log       logrus.FieldLogger

	// mergeMu serializes read-modify-write cycles on the repository.
	mergeMu sync.Mutex
}

func New(svc ai.Service, repo archive.Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:  svc,
		repo: repo,
		now:  time.Now,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.synth == nil {
		o.synth = tts.SynthesizerFunc(svc.SynthesizeSpeech)
	}
	if o.msgs == nil {
		o.msgs = i18n.English()
	}
	if o.flags == nil {
		o.flags = NewFlags()
	}
	if o.cfg.RequestTimeout <= 0 {
		o.cfg.RequestTimeout = DefaultRequestTimeout
	}
	return o
}

func (o *Orchestrator) Flags() *Flags { return o.flags }

func (o *Orchestrator) Repository() archive.Repository { return o.repo }

type RecordRequest struct {
	Title    string
	Tags     []string
	Media    []byte
	MIMEType string
	Kind     story.MediaKind
	Author   string
}

// Backfill follows the context and illustration requests of one story.
type Backfill struct {
	done   chan struct{}
	cancel context.CancelFunc
	story  *story.Story
	err    error
}

func (b *Backfill) Done() <-chan struct{} { return b.done }

// Cancel abandons whatever has not been merged yet.
func (b *Backfill) Cancel() { b.cancel() }

// Wait blocks until both requests have been merged and returns the final
// story.
func (b *Backfill) Wait() (*story.Story, error) {
	<-b.done
	return b.story, b.err
}

// Record transcribes the media, stores the new story and starts the
// backfill. The story is returned as soon as it is stored.
func (o *Orchestrator) Record(ctx context.Context, req RecordRequest) (*story.Story, *Backfill, error) {
	id := uuid.NewString()
	log := o.log.WithField("story_id", id)

	title := strings.TrimSpace(req.Title)
	transcript := o.cfg.DefaultTranscript
	if transcript == "" {
		transcript = o.msgs.Get(i18n.DefaultTranscript)
	}

	if len(req.Media) > 0 {
		t, err := o.transcribe(ctx, id, req.Media, req.MIMEType)
		if err != nil {
			log.WithError(err).Warn("Using fallback transcript")
			transcript = o.msgs.Get(i18n.FallbackTranscript)
		} else {
			transcript = t.Transcript
			if title == "" {
				title = strings.TrimSpace(t.SuggestedTitle)
			}
		}
	}
	if title == "" {
		title = o.msgs.Get(i18n.DefaultTitle)
	}

	author := req.Author
	if author == "" {
		author = o.cfg.Author
	}
	kind := req.Kind
	if kind == "" {
		kind = story.MediaAudio
	}

	s := story.New(title, author, transcript, o.now())
	s.ID = id
	s.MentionedMemberIDs = req.Tags
	if len(req.Media) > 0 {
		s.MediaKind = kind
		s.Media = req.Media
		s.MediaMIMEType = req.MIMEType
	}

	if err := o.repo.Put(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("store story: %w", err)
	}
	log.WithField("title", title).Info("Story recorded")
	o.notify(s)

	return s.Clone(), o.backfill(ctx, s.Clone()), nil
}

// Enrich runs the backfill for an archived story that has no context cards
// or no illustration yet. It returns nil when there is nothing to do.
func (o *Orchestrator) Enrich(ctx context.Context, id string) (*Backfill, error) {
	s, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(s.ContextCards) > 0 && s.ImageURL != "" {
		return nil, nil
	}
	return o.backfill(ctx, s), nil
}

func (o *Orchestrator) transcribe(ctx context.Context, id string, media []byte, mimeType string) (*transcription, error) {
	release := o.flags.Acquire(id, Transcription)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	raw, err := o.svc.Transcribe(ctx, media, mimeType)
	if err != nil {
		return nil, &TranscriptionError{StoryID: id, Err: err}
	}
	return parseTranscription(raw)
}

// backfill fills in whichever of context and illustration s is missing.
// It outlives ctx's cancellation so a returned HTTP request does not cut it
// short; Backfill.Cancel stops it.
func (o *Orchestrator) backfill(ctx context.Context, s *story.Story) *Backfill {
	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	bf := &Backfill{done: make(chan struct{}), cancel: cancel}

	// Both requests swallow their own failures, so neither cancels the other.
	var g errgroup.Group

	if len(s.ContextCards) == 0 {
		release := o.flags.Acquire(s.ID, Context)
		g.Go(func() error {
			defer release()
			cards, ok := o.contextCards(bctx, s)
			if ok {
				o.merge(bctx, s.ID, func(st *story.Story) { st.ContextCards = cards })
			}
			return nil
		})
	}
	if s.ImageURL == "" {
		release := o.flags.Acquire(s.ID, Image)
		g.Go(func() error {
			defer release()
			url, ok := o.illustration(bctx, s)
			if ok {
				o.merge(bctx, s.ID, func(st *story.Story) { st.ImageURL = url })
			}
			return nil
		})
	}

	go func() {
		defer close(bf.done)
		_ = g.Wait()
		bf.story, bf.err = o.repo.Get(context.WithoutCancel(bctx), s.ID)
		cancel()
	}()
	return bf
}

// contextCards asks for historical context. ok is false only when the
// backfill was cancelled.
func (o *Orchestrator) contextCards(ctx context.Context, s *story.Story) ([]story.ContextCard, bool) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	raw, err := o.svc.GenerateContext(cctx, s.Title, s.Transcript, s.Date)
	if ctx.Err() != nil {
		return nil, false
	}
	if err != nil {
		o.log.WithError(&ContextError{StoryID: s.ID, Err: err}).Warn("Using connection issue card")
		return connectionCards(o.msgs), true
	}

	cards, err := parseContextCards(raw)
	if err != nil {
		o.log.WithError(err).WithField("story_id", s.ID).Warn("Using fallback context cards")
		return fallbackCards(o.msgs, s.Date), true
	}
	return cards, true
}

// illustration returns a data URL, or "" when the service had no image.
func (o *Orchestrator) illustration(ctx context.Context, s *story.Story) (string, bool) {
	ictx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	img, err := o.svc.GenerateIllustration(ictx, ai.IllustrationPrompt(excerpt(s.Transcript, illustrationExcerpt)))
	if ctx.Err() != nil {
		return "", false
	}
	if err != nil {
		o.log.WithError(&IllustrationError{StoryID: s.ID, Err: err}).Warn("Story left without illustration")
		return "", true
	}
	if img == nil || len(img.Data) == 0 {
		return "", true
	}
	return dataURL(img.MIMEType, img.Data), true
}

func (o *Orchestrator) merge(ctx context.Context, id string, apply func(*story.Story)) {
	o.mergeMu.Lock()
	s, err := o.repo.Get(ctx, id)
	if err == nil {
		apply(s)
		err = o.repo.Put(ctx, s)
	}
	o.mergeMu.Unlock()

	if err != nil {
		o.log.WithError(err).WithField("story_id", id).Error("Could not merge generated content")
		return
	}
	o.notify(s)
}

// Update applies change to a stored story under the merge lock.
func (o *Orchestrator) Update(ctx context.Context, id string, change func(*story.Story)) (*story.Story, error) {
	o.mergeMu.Lock()
	defer o.mergeMu.Unlock()

	s, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	change(s)
	if err := o.repo.Put(ctx, s); err != nil {
		return nil, err
	}
	o.notify(s)
	return s.Clone(), nil
}

func (o *Orchestrator) notify(s *story.Story) {
	for _, obs := range o.observers {
		obs.OnUpdate(s.Clone())
	}
}

// Narrate synthesizes text with voice and decodes the result.
func (o *Orchestrator) Narrate(ctx context.Context, text, voice string) (*pcm.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPayload
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	speech, err := o.synth.Synthesize(ctx, text, voice)
	if err == nil && (speech == nil || speech.Audio == "") {
		err = ai.ErrNoAudio
	}
	if err != nil {
		return nil, &NarrationError{Voice: voice, Err: err}
	}

	rate := speech.SampleRate
	if rate <= 0 {
		rate = pcm.SpeechSampleRate
	}
	return pcm.DecodeBase64(speech.Audio, rate, pcm.SpeechChannels)
}

// LoadTrack narrates a synthesized track.
func (o *Orchestrator) LoadTrack(ctx context.Context, t *playback.Track) (*pcm.Buffer, error) {
	buf, err := o.Narrate(ctx, t.Text, t.Voice)
	if err != nil {
		var nerr *NarrationError
		if errors.As(err, &nerr) {
			o.log.WithError(err).WithField("track", t.ID).Warn(o.msgs.Get(i18n.NarrationUnavailable))
		}
		return nil, err
	}
	return buf, nil
}

var _ playback.Loader = (*Orchestrator)(nil)
