package tts

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"familynest/internal/ai"
)

// CachedSynthesizer stores synthesized PCM on disk as
// <root>/<voice>/<hash>_<rate>.pcm, where hash is the first 8 hex digits of
// md5(text+voice).
type CachedSynthesizer struct {
	inner Synthesizer
	root  string
	mu    sync.Mutex
}

func NewCachedSynthesizer(inner Synthesizer, root string) *CachedSynthesizer {
	if err := os.MkdirAll(root, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create speech cache directory")
	}
	return &CachedSynthesizer{inner: inner, root: root}
}

func (c *CachedSynthesizer) Synthesize(ctx context.Context, text, voice string) (*ai.Speech, error) {
	dir := filepath.Join(c.root, safeName(voice))
	contentHash := md5Sum(text + voice)[:8]

	c.mu.Lock()
	defer c.mu.Unlock()

	if speech, ok := c.lookup(dir, contentHash); ok {
		logrus.WithFields(logrus.Fields{"voice": voice, "hash": contentHash}).Debug("Using cached speech")
		return speech, nil
	}

	speech, err := c.inner.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(speech.Audio)
	if err != nil {
		// Not cacheable; the caller's decoder reports the problem.
		return speech, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create speech cache directory")
		return speech, nil
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.pcm", contentHash, speech.SampleRate))
	if err := os.WriteFile(path, raw, 0644); err != nil {
		logrus.WithError(err).WithField("file", path).Warn("Failed to cache speech")
	}
	return speech, nil
}

func (c *CachedSynthesizer) lookup(dir, contentHash string) (*ai.Speech, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, contentHash+"_*.pcm"))
	for _, path := range matches {
		rateStr := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), contentHash+"_"), ".pcm")
		rate, err := strconv.Atoi(rateStr)
		if err != nil || rate <= 0 {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil || len(raw) == 0 {
			continue
		}
		return &ai.Speech{Audio: base64.StdEncoding.EncodeToString(raw), SampleRate: rate}, true
	}
	return nil, false
}

// Stats returns the number and total size of cached clips.
func (c *CachedSynthesizer) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	var totalFiles, totalSize int64

	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".pcm") {
			totalFiles++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats["cache_directory"] = c.root
	stats["cached_files"] = totalFiles
	stats["total_size_mb"] = float64(totalSize) / (1024 * 1024)
	return stats, nil
}

// Clear removes every cached clip.
func (c *CachedSynthesizer) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(c.root)
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func safeName(voice string) string {
	if voice == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '+':
			return r
		}
		return '_'
	}, voice)
}
