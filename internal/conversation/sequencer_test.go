package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"familynest/internal/audio/playback"
)

func TestParseTurns(t *testing.T) {
	response := "**Grandma Margaret**: I remember that night.\n" +
		"\n" +
		"no colon here\n" +
		"[Grandpa Robert]:   We drove all night.  \r\n" +
		": orphan message\n" +
		"Mom Jennifer:\n" +
		"**[Dad Michael]**: Time: 10 pm, as always."

	want := []Turn{
		{Ordinal: 0, Speaker: "Grandma Margaret", Text: "I remember that night."},
		{Ordinal: 1, Speaker: "Grandpa Robert", Text: "We drove all night."},
		{Ordinal: 2, Speaker: "Dad Michael", Text: "Time: 10 pm, as always."},
	}
	if diff := cmp.Diff(want, ParseTurns(response)); diff != "" {
		t.Errorf("ParseTurns() mismatch (-want +got):\n%s", diff)
	}
	if got := ParseTurns(""); len(got) != 0 {
		t.Errorf("ParseTurns(\"\") = %v", got)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	onType func()
}

func (r *recordingSink) Typing(speaker string) {
	r.add("typing:" + speaker)
	if r.onType != nil {
		r.onType()
	}
}

func (r *recordingSink) Append(turn Turn) { r.add("append:" + turn.Speaker) }
func (r *recordingSink) ClearTyping()     { r.add("clear") }

func (r *recordingSink) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestRevealOrder(t *testing.T) {
	sink := &recordingSink{}
	turns := []Turn{{Speaker: "A", Text: "1"}, {Ordinal: 1, Speaker: "B", Text: "2"}}

	if err := (&Sequencer{}).Reveal(context.Background(), turns, sink); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	want := []string{"typing:A", "append:A", "clear", "typing:B", "append:B", "clear", "clear"}
	if diff := cmp.Diff(want, sink.list()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRevealZeroTurns(t *testing.T) {
	sink := &recordingSink{}
	if err := DefaultSequencer().Reveal(context.Background(), nil, sink); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"clear"}, sink.list()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRevealCancelDropsPendingTurns(t *testing.T) {
	clock := playback.NewFakeClock(time.Unix(0, 0))
	seq := &Sequencer{MinDelay: time.Second, MaxDelay: 2 * time.Second, Clock: clock}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{onType: cancel}

	err := seq.Reveal(ctx, []Turn{{Speaker: "A", Text: "1"}, {Speaker: "B", Text: "2"}}, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Reveal() error = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([]string{"typing:A", "clear"}, sink.list()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// elapsedClock reports every delay as already over.
type elapsedClock struct{ playback.SystemClock }

func (elapsedClock) After(time.Duration) <-chan time.Time {
	c := make(chan time.Time, 1)
	c <- time.Unix(0, 0)
	return c
}

func TestRevealAppendsNothingOnceCancelled(t *testing.T) {
	seq := &Sequencer{Clock: elapsedClock{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Both select cases are ready on every run; none may append.
	for range 50 {
		sink := &recordingSink{}
		err := seq.Reveal(ctx, []Turn{{Speaker: "A", Text: "1"}}, sink)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Reveal() error = %v, want context.Canceled", err)
		}
		if diff := cmp.Diff([]string{"typing:A", "clear"}, sink.list()); diff != "" {
			t.Fatalf("events mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestSequenceIsSingleUse(t *testing.T) {
	ctx := context.Background()
	q := (&Sequencer{}).Sequence([]Turn{{Speaker: "A", Text: "1"}})

	if turn, ok, err := q.Next(ctx); err != nil || !ok || turn.Speaker != "A" {
		t.Fatalf("Next() = %v, %v, %v", turn, ok, err)
	}
	if _, ok, err := q.Next(ctx); ok || err != nil {
		t.Fatalf("Next() after last turn = %v, %v", ok, err)
	}
	if _, _, err := q.Next(ctx); !errors.Is(err, ErrSequenceSpent) {
		t.Errorf("Next() after done error = %v", err)
	}
	if _, ok := q.Upcoming(); ok {
		t.Error("spent sequence still has an upcoming turn")
	}
}

func TestSequenceSpentAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewSequencer(time.Hour, 2*time.Hour).Sequence([]Turn{{Speaker: "A", Text: "1"}})

	if _, _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v", err)
	}
	if _, _, err := q.Next(context.Background()); !errors.Is(err, ErrSequenceSpent) {
		t.Errorf("Next() after cancel error = %v", err)
	}
}

func TestDelayRange(t *testing.T) {
	s := NewSequencer(10*time.Millisecond, 20*time.Millisecond)
	for range 200 {
		if d := s.delay(); d < 10*time.Millisecond || d >= 20*time.Millisecond {
			t.Fatalf("delay() = %v", d)
		}
	}
	if d := NewSequencer(time.Second, time.Second).delay(); d != time.Second {
		t.Errorf("fixed delay = %v", d)
	}
}

func TestTypingIndicatorReportsRealChanges(t *testing.T) {
	var changes []string
	ti := NewTypingIndicator(func(speaker string, active bool) {
		if active {
			changes = append(changes, "+"+speaker)
		} else {
			changes = append(changes, "-"+speaker)
		}
	})

	steps := []struct {
		changed bool
		got     bool
	}{
		{false, ti.Clear()},
		{true, ti.Set("A")},
		{false, ti.Set("A")},
		{true, ti.Set("B")},
		{true, ti.Clear()},
		{false, ti.Clear()},
	}
	for i, s := range steps {
		if s.changed != s.got {
			t.Errorf("step %d changed = %v, want %v", i, s.got, s.changed)
		}
	}
	if diff := cmp.Diff([]string{"+A", "+B", "-B"}, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if _, active := ti.Current(); active {
		t.Error("indicator still active")
	}
}
