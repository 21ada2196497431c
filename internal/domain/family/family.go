// Package family describes the people whose stories are archived.
package family

import (
	"errors"
	"sort"
	"sync"
)

var ErrMemberNotFound = errors.New("family member not found")

// PersonaMode decides how a simulated member speaks.
type PersonaMode int

const (
	// Living members are referenced in the third person.
	Living PersonaMode = iota
	// Deceased members are embodied in the first person.
	Deceased
)

func (m PersonaMode) String() string {
	if m == Deceased {
		return "deceased"
	}
	return "living"
}

// VoiceProfile selects a synthesized voice. It is configured per member.
type VoiceProfile string

const (
	VoiceDefault VoiceProfile = "default"
	VoiceMale    VoiceProfile = "male"
)

type Member struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Role            string       `json:"role"`
	Generation      int          `json:"generation"`
	Living          bool         `json:"living"`
	BirthDate       string       `json:"birth_date"`
	Voice           VoiceProfile `json:"voice,omitempty"`
	Self            bool         `json:"self,omitempty"`
	FeaturedStories []string     `json:"featured_stories"`
}

func (m Member) Mode() PersonaMode {
	if m.Living {
		return Living
	}
	return Deceased
}

// VoiceOrDefault returns the member's voice profile, or the default one.
func (m Member) VoiceOrDefault() VoiceProfile {
	if m.Voice == "" {
		return VoiceDefault
	}
	return m.Voice
}

// Directory is a concurrency-safe, ordered set of members.
type Directory struct {
	mu      sync.RWMutex
	members map[string]Member
	order   []string
}

func NewDirectory(members ...Member) *Directory {
	d := &Directory{members: make(map[string]Member)}
	for _, m := range members {
		d.Put(m)
	}
	return d
}

// Put adds or replaces a member, keeping its original position.
func (d *Directory) Put(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.members[m.ID]; !ok {
		d.order = append(d.order, m.ID)
	}
	d.members[m.ID] = m
}

func (d *Directory) Get(id string) (Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[id]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m, nil
}

// FindByName matches a member by exact name or ID.
func (d *Directory) FindByName(name string) (Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if m, ok := d.members[name]; ok {
		return m, nil
	}
	for _, id := range d.order {
		if d.members[id].Name == name {
			return d.members[id], nil
		}
	}
	return Member{}, ErrMemberNotFound
}

// List returns members in insertion order.
func (d *Directory) List() []Member {
	return d.filter(func(Member) bool { return true })
}

func (d *Directory) Deceased() []Member {
	return d.filter(func(m Member) bool { return !m.Living })
}

func (d *Directory) Living() []Member {
	return d.filter(func(m Member) bool { return m.Living })
}

// ByGeneration groups members by generation, oldest first.
func (d *Directory) ByGeneration() [][]Member {
	groups := make(map[int][]Member)
	for _, m := range d.List() {
		groups[m.Generation] = append(groups[m.Generation], m)
	}
	gens := make([]int, 0, len(groups))
	for g := range groups {
		gens = append(gens, g)
	}
	sort.Ints(gens)

	out := make([][]Member, 0, len(gens))
	for _, g := range gens {
		out = append(out, groups[g])
	}
	return out
}

func (d *Directory) filter(keep func(Member) bool) []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Member
	for _, id := range d.order {
		if m := d.members[id]; keep(m) {
			out = append(out, m)
		}
	}
	return out
}
