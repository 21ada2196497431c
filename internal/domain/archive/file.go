package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"familynest/internal/domain/story"
)

// FileStore is a MemoryStore persisted to a single JSON file after every Put.
type FileStore struct {
	*MemoryStore
	file string
	mu   sync.Mutex
}

// archiveFile is the on-disk layout.
type archiveFile struct {
	Stories      []*story.Story `json:"stories"`
	LastUpdated  time.Time      `json:"last_updated"`
	TotalStories int            `json:"total_stories"`
}

// NewFileStore opens path, creating its directory if needed. A missing file
// is an empty archive.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file archive needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create archive directory")
	}

	fs := &FileStore{MemoryStore: NewMemoryStore(), file: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) Put(ctx context.Context, s *story.Story) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.MemoryStore.Put(ctx, s); err != nil {
		return err
	}
	return fs.save(ctx)
}

func (fs *FileStore) load() error {
	file, err := os.Open(fs.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	defer file.Close()

	var cached archiveFile
	if err := json.NewDecoder(file).Decode(&cached); err != nil {
		return fmt.Errorf("failed to decode archive file: %w", err)
	}

	for _, s := range cached.Stories {
		if err := fs.MemoryStore.Put(context.Background(), s); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"stories":      len(cached.Stories),
		"last_updated": cached.LastUpdated.Format(time.RFC3339),
	}).Debug("Loaded story archive from file")
	return nil
}

// save rewrites the whole file through a temp file so a crash never leaves
// a half-written archive.
func (fs *FileStore) save(ctx context.Context) error {
	stories, err := fs.MemoryStore.List(ctx)
	if err != nil {
		return err
	}
	cached := archiveFile{
		Stories:      stories,
		LastUpdated:  time.Now(),
		TotalStories: len(stories),
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.file), ".archive-*.json")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cached); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode archive data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.file); err != nil {
		return fmt.Errorf("failed to replace archive file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"stories": len(stories),
		"file":    fs.file,
	}).Debug("Saved story archive")
	return nil
}
