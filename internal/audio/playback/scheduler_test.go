package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"familynest/internal/audio/pcm"
)

func silentBuffer(d time.Duration) *pcm.Buffer {
	frames := int(d.Seconds() * pcm.SpeechSampleRate)
	return &pcm.Buffer{Samples: make([]float32, frames), SampleRate: pcm.SpeechSampleRate, Channels: 1}
}

type harness struct {
	clock  *FakeClock
	out    *RecordingOutput
	sched  *Scheduler
	mu     sync.Mutex
	states []State
	ratios []float64
	done   int
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: NewFakeClock(time.Unix(0, 0)), out: &RecordingOutput{}}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	base := []Option{
		WithClock(h.clock),
		WithOutput(h.out),
		WithFrameInterval(0),
		WithLogger(logger),
		OnState(func(s State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		}),
		OnProgress(func(p Progress) {
			h.mu.Lock()
			h.ratios = append(h.ratios, p.Ratio)
			h.mu.Unlock()
		}),
		OnComplete(func(*Track) {
			h.mu.Lock()
			h.done++
			h.mu.Unlock()
		}),
	}
	h.sched = NewScheduler(append(base, opts...)...)
	return h
}

func (h *harness) stateLog() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func TestPauseResumeKeepsOffset(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("t1", silentBuffer(10*time.Second))
	ctx := context.Background()

	if err := h.sched.Play(ctx, track); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	h.clock.Advance(3200 * time.Millisecond)
	h.sched.Sample()

	if err := h.sched.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	h.clock.Advance(5 * time.Second) // time spent paused must not count
	if got := h.sched.Progress().Elapsed; got != 3200*time.Millisecond {
		t.Fatalf("paused elapsed = %v, want 3.2s", got)
	}

	if err := h.sched.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got := h.sched.Progress().Ratio; got < 0.32 {
		t.Fatalf("ratio right after resume = %f, want >= 0.32", got)
	}

	last := h.sched.Progress().Ratio
	for i := 0; i < 10; i++ {
		h.clock.Advance(100 * time.Millisecond)
		h.sched.Sample()
		p := h.sched.Progress().Ratio
		if p <= last {
			t.Fatalf("progress not monotonic: %f after %f", p, last)
		}
		last = p
	}

	starts := h.out.Starts()
	if diff := cmp.Diff([]time.Duration{0, 3200 * time.Millisecond}, starts); diff != "" {
		t.Errorf("output offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestRapidToggleDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("t1", silentBuffer(10*time.Second))
	ctx := context.Background()

	_ = h.sched.Play(ctx, track)
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		if err := h.sched.Toggle(ctx, track); err != nil { // pause
			t.Fatal(err)
		}
		if err := h.sched.Pause(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("second Pause() error = %v, want ErrInvalidTransition", err)
		}
		if err := h.sched.Toggle(ctx, track); err != nil { // resume
			t.Fatal(err)
		}
	}

	if got := h.sched.Progress().Elapsed; got != 5*time.Second {
		t.Errorf("elapsed = %v, want 5s", got)
	}
}

func TestNaturalCompletion(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("t1", silentBuffer(time.Second))

	_ = h.sched.Play(context.Background(), track)
	h.clock.Advance(600 * time.Millisecond)
	if !h.sched.Sample() {
		t.Fatal("Sample() reported finished early")
	}
	h.clock.Advance(600 * time.Millisecond)
	if h.sched.Sample() {
		t.Fatal("Sample() reported running past the end")
	}

	if h.sched.State() != Ended {
		t.Fatalf("State() = %s, want ended", h.sched.State())
	}
	if got := h.sched.Progress().Elapsed; got != 0 {
		t.Errorf("offset after completion = %v, want 0", got)
	}
	if h.done != 1 {
		t.Errorf("completion callbacks = %d, want 1", h.done)
	}
	if last := h.ratios[len(h.ratios)-1]; last != 1 {
		t.Errorf("final progress = %f, want 1", last)
	}
	for _, r := range h.ratios {
		if r > 1 {
			t.Errorf("progress %f exceeds 1", r)
		}
	}

	want := []State{Playing, Ended}
	if diff := cmp.Diff(want, h.stateLog()); diff != "" {
		t.Errorf("state log mismatch (-want +got):\n%s", diff)
	}

	// Playing again restarts from the beginning.
	if err := h.sched.Play(context.Background(), track); err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if starts := h.out.Starts(); starts[len(starts)-1] != 0 {
		t.Errorf("replay offset = %v, want 0", starts[len(starts)-1])
	}
}

func TestPauseAfterEndCompletesTrack(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("t1", silentBuffer(2*time.Second))

	_ = h.sched.Play(context.Background(), track)
	h.clock.Advance(5 * time.Second) // no Sample ran in between
	if err := h.sched.Pause(); err != nil {
		t.Fatal(err)
	}
	if got := h.sched.State(); got != Ended {
		t.Errorf("State() = %s, want ended", got)
	}
	if got := h.sched.Progress().Elapsed; got != 0 {
		t.Errorf("elapsed after completion = %v, want 0", got)
	}
	h.mu.Lock()
	done, last := h.done, h.ratios[len(h.ratios)-1]
	h.mu.Unlock()
	if done != 1 || last != 1 {
		t.Errorf("done = %d, last ratio = %v, want 1 and 1", done, last)
	}
}

func TestResumeAfterLatePauseDoesNotReplay(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("t1", silentBuffer(2*time.Second))

	_ = h.sched.Play(context.Background(), track)
	h.clock.Advance(1990 * time.Millisecond)
	h.sched.Sample()
	h.clock.Advance(20 * time.Millisecond)
	if err := h.sched.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := h.sched.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume() after the end error = %v, want ErrInvalidTransition", err)
	}

	if diff := cmp.Diff([]time.Duration{0}, h.out.Starts()); diff != "" {
		t.Errorf("output starts mismatch (-want +got):\n%s", diff)
	}
	if got := h.sched.State(); got != Ended {
		t.Errorf("State() = %s, want ended", got)
	}
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != 1 {
		t.Errorf("OnComplete fired %d times, want 1", done)
	}
}

func TestStopResetsFromAnyState(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("t1", silentBuffer(4*time.Second))

	h.sched.Stop() // idle -> idle is fine
	_ = h.sched.Play(context.Background(), track)
	h.clock.Advance(time.Second)
	_ = h.sched.Pause()
	h.sched.Stop()

	if h.sched.State() != Idle {
		t.Fatalf("State() = %s, want idle", h.sched.State())
	}
	if got := h.sched.Progress().Elapsed; got != 0 {
		t.Errorf("elapsed after stop = %v", got)
	}
	if err := h.sched.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume() after stop error = %v", err)
	}
	if !track.Ready() {
		t.Error("Stop() released the track buffer")
	}
}

func TestPlaybackErrorLeavesIdle(t *testing.T) {
	h := newHarness(t)
	h.out.Err = errors.New("device busy")
	track := NewBufferTrack("t1", silentBuffer(time.Second))

	err := h.sched.Play(context.Background(), track)
	var pe *PlaybackError
	if !errors.As(err, &pe) {
		t.Fatalf("Play() error = %v, want *PlaybackError", err)
	}
	if h.sched.State() != Idle {
		t.Errorf("State() = %s, want idle", h.sched.State())
	}
}

func TestLoaderRunsOnceAndCaches(t *testing.T) {
	calls := 0
	loader := LoaderFunc(func(ctx context.Context, tr *Track) (*pcm.Buffer, error) {
		calls++
		return silentBuffer(time.Second), nil
	})

	var states []State
	h := newHarness(t, WithLoader(loader), OnState(func(s State) { states = append(states, s) }))
	track := NewSpeechTrack("story", "Hello world", "Kore")
	ctx := context.Background()

	if err := h.sched.Play(ctx, track); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	h.sched.Stop()
	if err := h.sched.Play(ctx, track); err != nil {
		t.Fatalf("second Play() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("loader calls = %d, want 1", calls)
	}
	want := []State{Loading, Playing, Idle, Playing}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestLoaderFailureReturnsToIdle(t *testing.T) {
	boom := errors.New("synthesis failed")
	loader := LoaderFunc(func(ctx context.Context, tr *Track) (*pcm.Buffer, error) { return nil, boom })
	h := newHarness(t, WithLoader(loader))

	err := h.sched.Play(context.Background(), NewSpeechTrack("x", "text", ""))
	if !errors.Is(err, boom) {
		t.Fatalf("Play() error = %v, want %v", err, boom)
	}
	if h.sched.State() != Idle {
		t.Errorf("State() = %s, want idle", h.sched.State())
	}
	if len(h.out.Starts()) != 0 {
		t.Error("output started after failed load")
	}
}

func TestLoadFinishingAfterSwitchKeepsNoSamples(t *testing.T) {
	started, unblock := make(chan struct{}), make(chan struct{})
	loader := LoaderFunc(func(ctx context.Context, tr *Track) (*pcm.Buffer, error) {
		close(started)
		<-unblock
		return silentBuffer(time.Second), nil
	})
	h := newHarness(t, WithLoader(loader))
	first := NewSpeechTrack("a", "first story", "Kore")
	second := NewBufferTrack("b", silentBuffer(time.Second))
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- h.sched.Play(ctx, first) }()
	<-started

	if err := h.sched.Play(ctx, second); err != nil {
		t.Fatalf("Play(second) error = %v", err)
	}
	close(unblock)
	if err := <-errc; !errors.Is(err, ErrInterrupted) {
		t.Errorf("Play(first) error = %v, want ErrInterrupted", err)
	}

	if first.Ready() {
		t.Error("replaced track kept the samples of its late load")
	}
	if h.sched.State() != Playing {
		t.Errorf("State() = %s, want playing", h.sched.State())
	}
}

func TestMissingLoader(t *testing.T) {
	h := newHarness(t)
	if err := h.sched.Play(context.Background(), NewSpeechTrack("x", "text", "")); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("Play() error = %v, want ErrNoLoader", err)
	}
}

func TestSwitchingTrackReleasesPrevious(t *testing.T) {
	h := newHarness(t)
	first := NewBufferTrack("a", silentBuffer(time.Second))
	second := NewBufferTrack("b", silentBuffer(time.Second))
	ctx := context.Background()

	_ = h.sched.Play(ctx, first)
	_ = h.sched.Play(ctx, second)

	if first.Ready() {
		t.Error("previous track still holds its buffer")
	}
	if h.out.Stops() != 1 {
		t.Errorf("stops = %d, want 1", h.out.Stops())
	}
	if h.sched.Track() != second || h.sched.State() != Playing {
		t.Errorf("scheduler on %v in %s", h.sched.Track().ID, h.sched.State())
	}
}

func TestFrameLoopCompletes(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	done := make(chan struct{})
	s := NewScheduler(
		WithClock(clock),
		WithOutput(NullOutput{}),
		WithFrameInterval(DefaultFrameInterval),
		OnComplete(func(*Track) { close(done) }),
	)

	if err := s.Play(context.Background(), NewBufferTrack("a", silentBuffer(time.Second))); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			if s.State() != Ended {
				t.Errorf("State() = %s, want ended", s.State())
			}
			return
		case <-deadline:
			t.Fatal("frame loop never signalled completion")
		default:
		}
		if clock.Waiters() > 0 {
			clock.Advance(100 * time.Millisecond)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseReleasesTrack(t *testing.T) {
	h := newHarness(t)
	track := NewBufferTrack("a", silentBuffer(time.Second))
	_ = h.sched.Play(context.Background(), track)

	h.sched.Close()
	h.sched.Close() // idempotent

	if track.Ready() || h.sched.Track() != nil {
		t.Error("Close() did not release the track")
	}
	if h.sched.State() != Idle {
		t.Errorf("State() = %s", h.sched.State())
	}
}
