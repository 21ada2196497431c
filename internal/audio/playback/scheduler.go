// Package playback drives play/pause/resume/stop over decoded tracks with
// manual elapsed-time bookkeeping.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the transport state of a Scheduler.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrInvalidTransition = errors.New("invalid playback transition")
	ErrNoTrack           = errors.New("no track")
	ErrNoLoader          = errors.New("track needs synthesis but no loader is configured")
	ErrInterrupted       = errors.New("playback stopped while loading")
	ErrBusy              = errors.New("track is still loading")
)

// PlaybackError reports that the output refused to start.
type PlaybackError struct {
	TrackID string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of track %q failed to start: %v", e.TrackID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Progress is a snapshot of how far playback has advanced.
type Progress struct {
	Elapsed  time.Duration
	Duration time.Duration
	Ratio    float64
}

// DefaultFrameInterval approximates one display frame.
const DefaultFrameInterval = 16 * time.Millisecond

type Option func(*Scheduler)

func WithClock(c Clock) Option   { return func(s *Scheduler) { s.clock = c } }
func WithOutput(o Output) Option { return func(s *Scheduler) { s.output = o } }
func WithLoader(l Loader) Option { return func(s *Scheduler) { s.loader = l } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithFrameInterval sets the progress sampling period. Zero disables the
// background loop; callers then drive Sample themselves.
func WithFrameInterval(d time.Duration) Option { return func(s *Scheduler) { s.frame = d } }

func OnState(f func(State)) Option       { return func(s *Scheduler) { s.onState = f } }
func OnProgress(f func(Progress)) Option { return func(s *Scheduler) { s.onProgress = f } }
func OnComplete(f func(*Track)) Option   { return func(s *Scheduler) { s.onComplete = f } }

// Scheduler owns at most one active track and its transport state.
type Scheduler struct {
	clock  Clock
	output Output
	loader Loader
	frame  time.Duration
	log    logrus.FieldLogger

	onState    func(State)
	onProgress func(Progress)
	onComplete func(*Track)

	mu      sync.Mutex
	state   State
	track   *Track
	voice   Voice
	start   time.Time
	offset  time.Duration
	loopGen uint64
	cancel  context.CancelFunc
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  SystemClock{},
		output: DefaultOutput(),
		frame:  DefaultFrameInterval,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// events collects observer calls made while the lock is held; they run after
// it is released.
type events []func()

func (ev events) fire() {
	for _, f := range ev {
		f()
	}
}

func (s *Scheduler) setStateLocked(st State, ev *events) {
	if s.state == st {
		return
	}
	s.state = st
	if s.onState != nil {
		f := s.onState
		*ev = append(*ev, func() { f(st) })
	}
}

func (s *Scheduler) progressLocked(p Progress, ev *events) {
	if s.onProgress != nil {
		f := s.onProgress
		*ev = append(*ev, func() { f(p) })
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Track() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// Progress reports elapsed time against the track duration.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Progress {
	if s.track == nil {
		return Progress{}
	}
	dur := s.track.Duration()
	elapsed := s.offset
	if s.state == Playing {
		elapsed += s.clock.Now().Sub(s.start)
	}
	if elapsed > dur {
		elapsed = dur
	}
	p := Progress{Elapsed: elapsed, Duration: dur}
	if dur > 0 {
		p.Ratio = float64(elapsed) / float64(dur)
	}
	return p
}

// Play starts track from the beginning, or from the paused offset if it is
// the track already loaded. A different track replaces the current one.
func (s *Scheduler) Play(ctx context.Context, track *Track) error {
	if track == nil {
		return ErrNoTrack
	}

	var ev events
	s.mu.Lock()

	if s.track != nil && s.track != track {
		s.releaseLocked(&ev)
	}

	switch s.state {
	case Playing:
		s.mu.Unlock()
		ev.fire()
		return nil
	case Loading:
		s.mu.Unlock()
		ev.fire()
		return ErrBusy
	case Paused:
		err := s.startLocked(&ev)
		s.mu.Unlock()
		ev.fire()
		return err
	}

	s.track = track
	if !track.Ready() {
		s.setStateLocked(Loading, &ev)
		s.mu.Unlock()
		ev.fire()
		ev = nil

		_, err := track.ensure(ctx, s.loader)

		s.mu.Lock()
		if s.track != track || s.state != Loading {
			s.mu.Unlock()
			if err != nil {
				return err
			}
			return ErrInterrupted
		}
		if err != nil {
			s.track = nil
			s.setStateLocked(Idle, &ev)
			s.mu.Unlock()
			ev.fire()
			s.log.WithError(err).WithField("track", track.ID).Warn("Could not load track")
			return err
		}
	}

	if s.state == Ended {
		s.offset = 0
	}
	err := s.startLocked(&ev)
	s.mu.Unlock()
	ev.fire()
	return err
}

func (s *Scheduler) startLocked(ev *events) error {
	buf := s.track.Buffer()
	if buf == nil {
		s.setStateLocked(Idle, ev)
		return &PlaybackError{TrackID: s.track.ID, Err: errors.New("track was released")}
	}
	if s.offset >= buf.Duration() {
		s.offset = 0
	}

	voice, err := s.output.Start(buf, s.offset)
	if err != nil {
		s.offset = 0
		s.setStateLocked(Idle, ev)
		return &PlaybackError{TrackID: s.track.ID, Err: err}
	}

	s.voice = voice
	s.start = s.clock.Now()
	s.setStateLocked(Playing, ev)
	s.progressLocked(s.snapshotLocked(), ev)
	s.startLoopLocked()

	s.log.WithFields(logrus.Fields{
		"track":  s.track.ID,
		"offset": s.offset.Seconds(),
	}).Debug("Playback started")
	return nil
}

// Pause is valid only while playing. It folds the time played since the last
// start into the cumulative offset. If that reaches the end, the track
// completes instead of pausing.
func (s *Scheduler) Pause() error {
	var ev events
	s.mu.Lock()
	if s.state != Playing {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, st)
	}

	s.haltLocked()
	s.offset += s.clock.Now().Sub(s.start)
	if s.offset >= s.track.Duration() {
		// The end passed before the next progress step.
		s.finishLocked(&ev)
		s.mu.Unlock()
		ev.fire()
		return nil
	}
	s.setStateLocked(Paused, &ev)
	s.progressLocked(s.snapshotLocked(), &ev)
	s.mu.Unlock()

	ev.fire()
	return nil
}

// Resume is valid only while paused. It restarts output at the stored offset
// with a fresh start reference.
func (s *Scheduler) Resume() error {
	var ev events
	s.mu.Lock()
	if s.state != Paused {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, st)
	}
	err := s.startLocked(&ev)
	s.mu.Unlock()

	ev.fire()
	return err
}

// Toggle is the single transport button: pause when playing the track,
// resume when it is paused, otherwise play it.
func (s *Scheduler) Toggle(ctx context.Context, track *Track) error {
	s.mu.Lock()
	st, same := s.state, s.track == track
	s.mu.Unlock()

	switch {
	case same && st == Playing:
		return s.Pause()
	case same && st == Paused:
		return s.Resume()
	default:
		return s.Play(ctx, track)
	}
}

// Stop halts output, resets the offset and returns to idle. The track stays
// loaded for the next Play.
func (s *Scheduler) Stop() {
	var ev events
	s.mu.Lock()
	s.haltLocked()
	s.offset = 0
	s.setStateLocked(Idle, &ev)
	s.mu.Unlock()
	ev.fire()
}

// Close stops playback and releases the active track's samples.
func (s *Scheduler) Close() {
	var ev events
	s.mu.Lock()
	s.releaseLocked(&ev)
	s.mu.Unlock()
	ev.fire()
}

func (s *Scheduler) releaseLocked(ev *events) {
	s.haltLocked()
	if s.track != nil {
		s.track.Release()
		s.track = nil
	}
	s.offset = 0
	s.setStateLocked(Idle, ev)
}

func (s *Scheduler) haltLocked() {
	if s.voice != nil {
		s.voice.Stop()
		s.voice = nil
	}
	s.stopLoopLocked()
}

// Sample performs one progress step. It reports whether playback is still
// running.
func (s *Scheduler) Sample() bool {
	var ev events
	s.mu.Lock()
	running := s.sampleLocked(&ev)
	s.mu.Unlock()
	ev.fire()
	return running
}

func (s *Scheduler) sampleLocked(ev *events) bool {
	if s.state != Playing {
		return false
	}

	dur := s.track.Duration()
	elapsed := s.clock.Now().Sub(s.start) + s.offset
	if elapsed < dur {
		s.progressLocked(Progress{Elapsed: elapsed, Duration: dur, Ratio: float64(elapsed) / float64(dur)}, ev)
		return true
	}

	s.finishLocked(ev)
	return false
}

// finishLocked ends the current track: full progress, Ended, OnComplete.
func (s *Scheduler) finishLocked(ev *events) {
	track := s.track
	dur := track.Duration()
	s.haltLocked()
	s.offset = 0
	s.progressLocked(Progress{Elapsed: dur, Duration: dur, Ratio: 1}, ev)
	s.setStateLocked(Ended, ev)
	if s.onComplete != nil {
		f := s.onComplete
		*ev = append(*ev, func() { f(track) })
	}
}

func (s *Scheduler) startLoopLocked() {
	s.stopLoopLocked()
	if s.frame <= 0 {
		return
	}

	s.loopGen++
	gen := s.loopGen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx, gen)
}

func (s *Scheduler) stopLoopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) loop(ctx context.Context, gen uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.frame):
		}

		var ev events
		s.mu.Lock()
		if gen != s.loopGen || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		running := s.sampleLocked(&ev)
		s.mu.Unlock()
		ev.fire()

		if !running {
			return
		}
	}
}
