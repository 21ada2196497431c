package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"familynest/internal/audio/pcm"
	"familynest/internal/audio/playback"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
)

var (
	ErrNoResponder   = errors.New("no AI participant in the call")
	ErrCallEnded     = errors.New("call has ended")
	ErrAlreadyInCall = errors.New("member already in the call")
)

const DefaultConnectDelay = 1500 * time.Millisecond

// Narrator voices a reply.
type Narrator interface {
	Narrate(ctx context.Context, text, voice string) (*pcm.Buffer, error)
}

type ParticipantKind int

const (
	// RemoteLiving participants are real people dialled into the call.
	RemoteLiving ParticipantKind = iota
	// AIDeceased participants are simulated from their stories.
	AIDeceased
)

type ParticipantStatus string

const (
	Connecting ParticipantStatus = "connecting"
	Connected  ParticipantStatus = "connected"
)

type Participant struct {
	Member   family.Member
	Kind     ParticipantKind
	Status   ParticipantStatus
	Speaking bool
}

type participant struct {
	Participant
	scheduler *playback.Scheduler
}

type CallOption func(*Call)

func WithConnectDelay(d time.Duration) CallOption {
	return func(c *Call) { c.connectDelay = d }
}

// WithCallClock drives connection delays and playback from clock.
func WithCallClock(clock playback.Clock) CallOption {
	return func(c *Call) { c.clock = clock }
}

// WithPlayback adds options to every participant's scheduler.
func WithPlayback(opts ...playback.Option) CallOption {
	return func(c *Call) { c.playback = append(c.playback, opts...) }
}

// WithParticipantsChanged is called with a snapshot after every change.
func WithParticipantsChanged(f func([]Participant)) CallOption {
	return func(c *Call) { c.onChange = f }
}

// Call is a push-to-talk video call. Deceased members answer through their
// own scheduler so their voices never overlap.
type Call struct {
	deps         Deps
	narrator     Narrator
	voiceFor     func(family.Member) string
	connectDelay time.Duration
	clock        playback.Clock
	playback     []playback.Option
	onChange     func([]Participant)

	mu           sync.Mutex
	participants []*participant
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewCall starts an empty call. voiceFor picks the synthesized voice of a
// member.
func NewCall(deps Deps, narrator Narrator, voiceFor func(family.Member) string, opts ...CallOption) *Call {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Call{
		deps:         deps.withDefaults(),
		narrator:     narrator,
		voiceFor:     voiceFor,
		connectDelay: DefaultConnectDelay,
		clock:        playback.SystemClock{},
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join adds a member. Living members ring for a moment before they connect;
// deceased members connect at once as AI participants.
func (c *Call) Join(m family.Member) error {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrCallEnded
	}
	for _, p := range c.participants {
		if p.Member.ID == m.ID {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyInCall, m.Name)
		}
	}

	p := &participant{Participant: Participant{Member: m, Kind: RemoteLiving, Status: Connecting}}
	if m.Mode() == family.Deceased {
		p.Kind, p.Status = AIDeceased, Connected
		p.scheduler = c.newScheduler(m.ID)
	} else {
		c.wg.Add(1)
		go c.connect(m.ID)
	}
	c.participants = append(c.participants, p)
	c.mu.Unlock()

	c.deps.Logger.WithField("member", m.ID).WithField("status", p.Status).Info("Joined call")
	c.changed()
	return nil
}

func (c *Call) newScheduler(memberID string) *playback.Scheduler {
	opts := append([]playback.Option{
		playback.WithClock(c.clock),
		playback.WithLogger(c.deps.Logger),
	}, c.playback...)
	opts = append(opts, playback.OnComplete(func(*playback.Track) {
		c.setSpeaking(memberID, false)
	}))
	return playback.NewScheduler(opts...)
}

func (c *Call) connect(memberID string) {
	defer c.wg.Done()
	select {
	case <-c.ctx.Done():
		return
	case <-c.clock.After(c.connectDelay):
	}

	c.mu.Lock()
	for _, p := range c.participants {
		if p.Member.ID == memberID {
			p.Status = Connected
		}
	}
	c.mu.Unlock()
	c.changed()
}

// Speak sends the user's utterance to the first AI participant, who
// answers out loud. It returns the reply text once playback has started.
func (c *Call) Speak(ctx context.Context, utterance string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", nil
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return "", ErrCallEnded
	}
	var responder *participant
	for _, p := range c.participants {
		if p.Kind == AIDeceased {
			responder = p
			break
		}
	}
	if responder == nil {
		c.mu.Unlock()
		return "", ErrNoResponder
	}
	m, scheduler := responder.Member, responder.scheduler
	responder.Speaking = true
	c.mu.Unlock()
	c.changed()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	reply, err := c.reply(ctx, m, utterance)
	if err != nil {
		c.setSpeaking(m.ID, false)
		return "", err
	}

	buf, err := c.narrator.Narrate(ctx, reply, c.voiceFor(m))
	if err != nil {
		c.setSpeaking(m.ID, false)
		return reply, err
	}

	track := playback.NewBufferTrack(fmt.Sprintf("call-%s-%d", m.ID, time.Now().UnixNano()), buf)
	if err := scheduler.Play(ctx, track); err != nil {
		c.setSpeaking(m.ID, false)
		return reply, err
	}
	return reply, nil
}

func (c *Call) reply(ctx context.Context, m family.Member, utterance string) (string, error) {
	stories, err := archive.ForMember(ctx, c.deps.Repo, m)
	if err != nil {
		return "", err
	}
	prompt, err := render(callTemplate, struct {
		Name, Utterance string
		Stories         any
	}{m.Name, utterance, stories})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.deps.Timeout)
	defer cancel()
	reply, err := c.deps.Service.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("call reply from %s: %w", m.Name, err)
	}
	return strings.TrimSpace(reply), nil
}

func (c *Call) setSpeaking(memberID string, speaking bool) {
	c.mu.Lock()
	changed := false
	for _, p := range c.participants {
		if p.Member.ID == memberID && p.Speaking != speaking {
			p.Speaking = speaking
			changed = true
		}
	}
	c.mu.Unlock()
	if changed {
		c.changed()
	}
}

func (c *Call) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Participant, len(c.participants))
	for i, p := range c.participants {
		out[i] = p.Participant
	}
	return out
}

func (c *Call) changed() {
	if c.onChange != nil {
		c.onChange(c.Participants())
	}
}

// Hangup ends the call: pending joins are abandoned and every voice stops.
func (c *Call) Hangup() {
	c.cancel()

	c.mu.Lock()
	participants := c.participants
	c.participants = nil
	c.mu.Unlock()

	for _, p := range participants {
		if p.scheduler != nil {
			p.scheduler.Close()
		}
	}
	c.wg.Wait()
}
