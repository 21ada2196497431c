package conversation

import (
	"context"
	"strings"
	"sync/atomic"

	"familynest/internal/ai"
	"familynest/internal/i18n"
)

const (
	gatheringName  = "Family Gathering"
	gatheringGreet = "We're all here! It's so nice to be together. What would you like to ask the family?"
	familyTyping   = "The family"
	systemSpeaker  = "System"
)

// Gathering is a group chat with every family member at once.
type Gathering struct {
	deps Deps
	seq  *Sequencer
	log  *Log

	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGathering opens a group chat that writes into log.
func NewGathering(deps Deps, seq *Sequencer, log *Log) *Gathering {
	if seq == nil {
		seq = DefaultSequencer()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gathering{deps: deps.withDefaults(), seq: seq, log: log, ctx: ctx, cancel: cancel}
	log.Add(Message{Role: ai.RoleModel, Speaker: gatheringName, Text: gatheringGreet, System: true})
	return g
}

func (g *Gathering) Log() *Log { return g.log }

// Send asks the family a question and reveals their answers turn by turn.
// It returns once every turn is shown. An empty message without a quote is
// ignored.
func (g *Gathering) Send(ctx context.Context, text string, quote *Quote) error {
	text = strings.TrimSpace(text)
	if text == "" && quote == nil {
		return nil
	}
	if !g.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer g.busy.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(g.ctx, cancel)
	defer stop()

	history := g.log.history(true)
	g.log.Add(Message{Role: ai.RoleUser, Text: text, Quote: quote})

	system, err := GatheringPrompt(ctx, g.deps.Repo, g.deps.Family, quote)
	if err != nil {
		return err
	}

	message := text
	if message == "" {
		message = g.deps.Messages.Get(i18n.AttachmentOnly)
	}

	g.log.Typing(familyTyping)
	callCtx, callCancel := context.WithTimeout(ctx, g.deps.Timeout)
	raw, err := g.deps.Service.GenerateDialogue(callCtx, ai.DialogueRequest{System: system, History: history, Message: message})
	callCancel()
	g.log.ClearTyping()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.deps.Logger.WithError(err).Warn("Group chat reply failed")
		g.log.Add(Message{Role: ai.RoleModel, Speaker: systemSpeaker, Text: g.deps.Messages.Get(i18n.GatheringApology), System: true})
		return nil
	}

	return g.seq.Reveal(ctx, ParseTurns(raw), g.log)
}

// Close abandons any reveal in progress.
func (g *Gathering) Close() {
	g.cancel()
}
