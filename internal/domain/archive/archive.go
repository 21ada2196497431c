// Package archive stores family stories behind a small repository interface.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
)

var ErrNotFound = errors.New("story not found")

// Repository is the story archive. Implementations copy stories on the way in
// and out so callers never share mutable state with the store.
type Repository interface {
	Get(ctx context.Context, id string) (*story.Story, error)
	Put(ctx context.Context, s *story.Story) error
	List(ctx context.Context) ([]*story.Story, error)
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open creates a repository for the configured driver.
func Open(driver, path string) (Repository, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported archive driver: %s", driver)
	}
}

// FindByTitle returns the first story whose title matches, ignoring case.
func FindByTitle(ctx context.Context, repo Repository, title string) (*story.Story, error) {
	stories, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range stories {
		if strings.EqualFold(strings.TrimSpace(s.Title), strings.TrimSpace(title)) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, title)
}

// Lookup resolves a story by ID first, then by title.
func Lookup(ctx context.Context, repo Repository, key string) (*story.Story, error) {
	s, err := repo.Get(ctx, key)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return FindByTitle(ctx, repo, key)
}

// ByAuthor returns the stories told by author.
func ByAuthor(ctx context.Context, repo Repository, author string) ([]*story.Story, error) {
	stories, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*story.Story
	for _, s := range stories {
		if s.Author == author {
			out = append(out, s)
		}
	}
	return out, nil
}

// ForMember returns the member's featured stories in their listed order,
// followed by any other story they authored.
func ForMember(ctx context.Context, repo Repository, m family.Member) ([]*story.Story, error) {
	stories, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]*story.Story, len(stories))
	for _, s := range stories {
		byTitle[strings.ToLower(s.Title)] = s
	}

	seen := make(map[string]bool)
	var out []*story.Story
	for _, title := range m.FeaturedStories {
		if s, ok := byTitle[strings.ToLower(title)]; ok && !seen[s.ID] {
			out = append(out, s)
			seen[s.ID] = true
		}
	}
	for _, s := range stories {
		if s.Author == m.Name && !seen[s.ID] {
			out = append(out, s)
			seen[s.ID] = true
		}
	}
	return out, nil
}
