package narration

import (
	"sync"
)

// Flag names one in-flight generation request.
type Flag int

const (
	Transcription Flag = iota
	Context
	Image
)

func (f Flag) String() string {
	switch f {
	case Transcription:
		return "transcription"
	case Context:
		return "context"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// FlagState is a snapshot of a story's flags.
type FlagState struct {
	Transcribing bool `json:"transcribing"`
	Contextual   bool `json:"generatingContext"`
	Illustrating bool `json:"generatingImage"`
}

// Busy reports whether any request is running.
func (s FlagState) Busy() bool {
	return s.Transcribing || s.Contextual || s.Illustrating
}

type flagKey struct {
	storyID string
	flag    Flag
}

// Flags tracks which generation requests are running per story. Each
// Acquire hands out an ownership token so a stale release cannot clear a
// flag a newer request set.
type Flags struct {
	mu     sync.Mutex
	owners map[flagKey]uint64
	next   uint64
}

func NewFlags() *Flags {
	return &Flags{owners: make(map[flagKey]uint64)}
}

// Acquire sets flag for storyID and returns its release func. Releasing
// twice is a no-op.
func (f *Flags) Acquire(storyID string, flag Flag) (release func()) {
	key := flagKey{storyID, flag}

	f.mu.Lock()
	f.next++
	token := f.next
	f.owners[key] = token
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.owners[key] == token {
				delete(f.owners, key)
			}
		})
	}
}

func (f *Flags) Active(storyID string, flag Flag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.owners[flagKey{storyID, flag}]
	return ok
}

func (f *Flags) Snapshot(storyID string) FlagState {
	return FlagState{
		Transcribing: f.Active(storyID, Transcription),
		Contextual:   f.Active(storyID, Context),
		Illustrating: f.Active(storyID, Image),
	}
}
