package family

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory(
		Member{ID: "g-margaret", Name: "Grandma Margaret", Generation: 1},
		Member{ID: "d-michael", Name: "Dad Michael", Generation: 2, Living: true, Voice: VoiceMale},
		Member{ID: "g-robert", Name: "Grandpa Robert", Generation: 1, Living: true},
	)

	names := func(ms []Member) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	if diff := cmp.Diff([]string{"g-margaret", "d-michael", "g-robert"}, names(d.List())); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"g-margaret"}, names(d.Deceased())); diff != "" {
		t.Errorf("Deceased() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d-michael", "g-robert"}, names(d.Living())); diff != "" {
		t.Errorf("Living() mismatch (-want +got):\n%s", diff)
	}

	gens := d.ByGeneration()
	if len(gens) != 2 || len(gens[0]) != 2 || gens[1][0].ID != "d-michael" {
		t.Errorf("ByGeneration() = %v", gens)
	}

	if _, err := d.Get("nobody"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("Get(nobody) error = %v", err)
	}
	if m, err := d.FindByName("Grandpa Robert"); err != nil || m.ID != "g-robert" {
		t.Errorf("FindByName() = %v, %v", m, err)
	}
}

func TestMemberPersona(t *testing.T) {
	m := Member{Name: "Grandma Margaret"}
	if m.Mode() != Deceased || m.VoiceOrDefault() != VoiceDefault {
		t.Errorf("deceased member mode=%s voice=%s", m.Mode(), m.VoiceOrDefault())
	}
	m.Living, m.Voice = true, VoiceMale
	if m.Mode() != Living || m.VoiceOrDefault() != VoiceMale {
		t.Errorf("living member mode=%s voice=%s", m.Mode(), m.VoiceOrDefault())
	}
}
