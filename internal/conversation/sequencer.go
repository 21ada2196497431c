package conversation

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"familynest/internal/audio/playback"
)

var ErrSequenceSpent = errors.New("turn sequence already finished")

const (
	DefaultMinDelay = time.Second
	DefaultMaxDelay = 2 * time.Second
)

// Sink receives revealed turns and typing state.
type Sink interface {
	Typing(speaker string)
	Append(turn Turn)
	ClearTyping()
}

// Sequencer paces scripted turns with a random typing delay.
type Sequencer struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Clock    playback.Clock
}

func NewSequencer(minDelay, maxDelay time.Duration) *Sequencer {
	return &Sequencer{MinDelay: minDelay, MaxDelay: maxDelay, Clock: playback.SystemClock{}}
}

func DefaultSequencer() *Sequencer {
	return NewSequencer(DefaultMinDelay, DefaultMaxDelay)
}

// delay is uniform in [MinDelay, MaxDelay).
func (s *Sequencer) delay() time.Duration {
	if s.MaxDelay <= s.MinDelay {
		return s.MinDelay
	}
	return s.MinDelay + rand.N(s.MaxDelay-s.MinDelay)
}

func (s *Sequencer) clock() playback.Clock {
	if s.Clock == nil {
		return playback.SystemClock{}
	}
	return s.Clock
}

// Sequence returns a one-shot iterator over turns.
func (s *Sequencer) Sequence(turns []Turn) *Sequence {
	return &Sequence{turns: turns, seq: s}
}

// Reveal shows turns one at a time: typing indicator, delay, message. When
// ctx ends the pending turns are dropped. The typing indicator is always
// cleared on return.
func (s *Sequencer) Reveal(ctx context.Context, turns []Turn, sink Sink) error {
	defer sink.ClearTyping()

	q := s.Sequence(turns)
	for {
		upcoming, ok := q.Upcoming()
		if !ok {
			return nil
		}
		sink.Typing(upcoming.Speaker)

		turn, ok, err := q.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sink.Append(turn)
		sink.ClearTyping()
	}
}

// Sequence yields its turns once, each after a delay. It is not safe for
// more than one consumer.
type Sequence struct {
	mu    sync.Mutex
	turns []Turn
	pos   int
	spent bool
	seq   *Sequencer
}

// Upcoming peeks at the next turn without waiting.
func (q *Sequence) Upcoming() (Turn, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.spent || q.pos >= len(q.turns) {
		return Turn{}, false
	}
	return q.turns[q.pos], true
}

// Next waits the typing delay and returns the next turn. ok is false once
// the turns are exhausted; after that, or after cancellation, Next returns
// ErrSequenceSpent.
func (q *Sequence) Next(ctx context.Context) (turn Turn, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.spent {
		return Turn{}, false, ErrSequenceSpent
	}
	if q.pos >= len(q.turns) {
		q.spent = true
		return Turn{}, false, nil
	}

	select {
	case <-ctx.Done():
		q.spent = true
		return Turn{}, false, ctx.Err()
	case <-q.seq.clock().After(q.seq.delay()):
	}
	// The delay and cancellation can be ready together.
	if err := ctx.Err(); err != nil {
		q.spent = true
		return Turn{}, false, err
	}

	turn = q.turns[q.pos]
	q.pos++
	return turn, true, nil
}

// TypingIndicator shows who is typing. Set and Clear report whether the
// state actually changed.
type TypingIndicator struct {
	mu       sync.Mutex
	speaker  string
	active   bool
	onChange func(speaker string, active bool)
}

func NewTypingIndicator(onChange func(speaker string, active bool)) *TypingIndicator {
	return &TypingIndicator{onChange: onChange}
}

func (t *TypingIndicator) Set(speaker string) bool {
	t.mu.Lock()
	if t.active && t.speaker == speaker {
		t.mu.Unlock()
		return false
	}
	t.active, t.speaker = true, speaker
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(speaker, true)
	}
	return true
}

func (t *TypingIndicator) Clear() bool {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return false
	}
	speaker := t.speaker
	t.active, t.speaker = false, ""
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(speaker, false)
	}
	return true
}

func (t *TypingIndicator) Current() (speaker string, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speaker, t.active
}
