package playback

import (
	"context"
	"sync"
	"time"

	"familynest/internal/audio/pcm"
)

// Source says where a track's samples come from.
type Source int

const (
	// SourceSynthesized tracks are fetched from a speech service by a Loader.
	SourceSynthesized Source = iota
	// SourceMedia tracks carry uploaded or recorded audio bytes.
	SourceMedia
)

func (s Source) String() string {
	switch s {
	case SourceSynthesized:
		return "synthesized"
	case SourceMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Loader fetches and decodes the samples of a synthesized track.
type Loader interface {
	LoadTrack(ctx context.Context, t *Track) (*pcm.Buffer, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, t *Track) (*pcm.Buffer, error)

func (f LoaderFunc) LoadTrack(ctx context.Context, t *Track) (*pcm.Buffer, error) {
	return f(ctx, t)
}

// Track is one playable narration. Its buffer is decoded at most once and
// owned by the track until Release.
type Track struct {
	ID       string
	Text     string
	Voice    string
	Source   Source
	Media    []byte
	MIMEType string

	loadMu sync.Mutex
	mu     sync.Mutex
	buf    *pcm.Buffer
	// releases counts Release calls so a load that finishes after one
	// does not keep its samples.
	releases uint64
}

func NewSpeechTrack(id, text, voice string) *Track {
	return &Track{ID: id, Text: text, Voice: voice, Source: SourceSynthesized}
}

func NewMediaTrack(id string, media []byte, mimeType string) *Track {
	return &Track{ID: id, Source: SourceMedia, Media: media, MIMEType: mimeType}
}

// NewBufferTrack wraps samples that are already decoded.
func NewBufferTrack(id string, buf *pcm.Buffer) *Track {
	return &Track{ID: id, Source: SourceSynthesized, buf: buf}
}

func (t *Track) Buffer() *pcm.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf
}

func (t *Track) Ready() bool {
	return t.Buffer() != nil
}

func (t *Track) Duration() time.Duration {
	return t.Buffer().Duration()
}

// Release drops the decoded samples.
func (t *Track) Release() {
	t.mu.Lock()
	t.buf = nil
	t.releases++
	t.mu.Unlock()
}

// ensure decodes the track once. Concurrent callers wait for the first.
func (t *Track) ensure(ctx context.Context, loader Loader) (*pcm.Buffer, error) {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	t.mu.Lock()
	buf, gen := t.buf, t.releases
	t.mu.Unlock()
	if buf != nil {
		return buf, nil
	}

	var err error
	switch t.Source {
	case SourceMedia:
		buf, err = DecodeMedia(t.Media, t.MIMEType)
	default:
		if loader == nil {
			return nil, ErrNoLoader
		}
		buf, err = loader.LoadTrack(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.releases == gen {
		t.buf = buf
	}
	t.mu.Unlock()
	return buf, nil
}
