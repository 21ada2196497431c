package narration

import (
	"context"
	"fmt"
	"strings"

	"familynest/internal/audio/pcm"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
)

// MemorialKind is the occasion a memorial video message is written for.
type MemorialKind string

const (
	LoveLetter      MemorialKind = "Love Letter"
	LifeWisdom      MemorialKind = "Life Wisdom"
	SpecialOccasion MemorialKind = "Special Occasion"
	CustomMemorial  MemorialKind = "Custom"
)

var MemorialKinds = []MemorialKind{LoveLetter, LifeWisdom, SpecialOccasion, CustomMemorial}

// ParseMemorialKind accepts a kind name in any case, with or without spaces.
func ParseMemorialKind(s string) (MemorialKind, error) {
	norm := func(v string) string {
		return strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(v))
	}
	for _, k := range MemorialKinds {
		if norm(string(k)) == norm(s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown memorial kind %q", s)
}

func memorialPrompt(m family.Member, kind MemorialKind, custom, stories string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on %s's life stories below, generate a heartfelt script for a %q video message.\n\n", m.Name, string(kind))
	fmt.Fprintf(&b, "Stories:\n%s\n\n", stories)
	b.WriteString("Rules:\n")
	b.WriteString("- Write in the first person, as if speaking directly to the family.\n")
	b.WriteString("- Keep it warm and loving, and reference specific memories.\n")
	b.WriteString("- Keep it under 60 seconds when spoken (approx 80-100 words).\n")
	b.WriteString("- Do not include scene directions, only the spoken words.\n")
	if kind == CustomMemorial && strings.TrimSpace(custom) != "" {
		fmt.Fprintf(&b, "\nAdditional User Instruction: %s\n", strings.TrimSpace(custom))
	}
	return b.String()
}

// MemorialScript writes a first-person script in m's voice from their
// archived stories.
func (o *Orchestrator) MemorialScript(ctx context.Context, m family.Member, kind MemorialKind, custom string) (string, error) {
	stories, err := archive.ForMember(ctx, o.repo, m)
	if err != nil {
		return "", fmt.Errorf("load stories for %s: %w", m.Name, err)
	}

	var bank strings.Builder
	for _, s := range stories {
		fmt.Fprintf(&bank, "- %s: %s\n", s.Title, s.Transcript)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	script, err := o.svc.GenerateText(ctx, memorialPrompt(m, kind, custom, strings.TrimSpace(bank.String())))
	if err != nil {
		return "", &NarrationError{Err: fmt.Errorf("memorial script: %w", err)}
	}
	return strings.TrimSpace(script), nil
}

// MemorialNarration voices a memorial script.
func (o *Orchestrator) MemorialNarration(ctx context.Context, script, voice string) (*pcm.Buffer, error) {
	return o.Narrate(ctx, script, voice)
}
