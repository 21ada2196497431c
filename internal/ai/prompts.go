package ai

import (
	"fmt"
	"strings"
)

func transcribePrompt(mimeType string) string {
	kind := "audio recording"
	if strings.HasPrefix(mimeType, "video") {
		kind = "video"
	}
	return fmt.Sprintf(
		"Please transcribe the story told in this %s exactly. Then suggest a short, nostalgic title (max 5 words). Return JSON: { \"transcript\": \"...\", \"suggestedTitle\": \"...\" }",
		kind,
	)
}

func contextPrompt(title, transcript, date string) string {
	return fmt.Sprintf(`Analyze this personal story and find EXACT historical data to create 4 educational context cards.

Story Title: %s
Date: %s
Transcript: %s

Task:
1. Identify the specific year and location (if mentioned).
2. Find:
   - A specific major world event from that year/month.
   - The EXACT average cost of a common item (gas, bread, house) in that year.
   - A #1 song or movie from that specific time.
   - A cultural or technological milestone from that era.

Return a JSON array of 4 objects with keys: "icon" (emoji), "title", "content", "sourceUrl" (URL if available).
IMPORTANT: Return ONLY the raw JSON array. No markdown formatting.`, title, date, transcript)
}

// IllustrationPrompt wraps a transcript excerpt in the watercolor brief.
func IllustrationPrompt(excerpt string) string {
	return "Create a warm, nostalgic watercolor-style illustration of: " + excerpt
}
