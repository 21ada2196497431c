package archive

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
)

//go:embed seed/family.json
var seedJSON []byte

// SeedData is the demo family shipped with the binary.
type SeedData struct {
	Members []family.Member `json:"members"`
	Stories []*story.Story  `json:"stories"`
}

func LoadSeed() (*SeedData, error) {
	var data SeedData
	if err := json.Unmarshal(seedJSON, &data); err != nil {
		return nil, fmt.Errorf("failed to decode seed data: %w", err)
	}
	return &data, nil
}

// Seed stores every demo story whose title is not already archived and
// returns the demo family directory.
func Seed(ctx context.Context, repo Repository) (*family.Directory, error) {
	data, err := LoadSeed()
	if err != nil {
		return nil, err
	}

	existing, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	titles := make(map[string]bool, len(existing))
	for _, s := range existing {
		titles[strings.ToLower(s.Title)] = true
	}

	added := 0
	for _, s := range data.Stories {
		if titles[strings.ToLower(s.Title)] {
			continue
		}
		if err := repo.Put(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to seed %q: %w", s.Title, err)
		}
		added++
	}

	logrus.WithFields(logrus.Fields{
		"members": len(data.Members),
		"added":   added,
	}).Debug("Seeded family archive")

	return family.NewDirectory(data.Members...), nil
}
