package conversation

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
)

var (
	gatheringTemplate = template.Must(template.New("gathering").Parse(
		`You are simulating a warm, nostalgic family group chat with multiple family members.

PARTICIPANTS (Context Bank):
{{range .Members}}
FAMILY MEMBER: {{.Name}} ({{if .Living}}LIVING{{else}}DECEASED{{end}})
ROLE: {{.Role}}
STORIES:
{{range .Stories}}- Title: {{.Title}}, Date: {{.Date}}, Content: "{{.Transcript}}"
{{end}}---
{{end}}{{with .Quote}}
[IMPORTANT: USER HAS REPLIED TO A SPECIFIC STORY]
TITLE: "{{.Title}}" (by {{.Author}})
FULL CONTENT: "{{.Transcript}}"
INSTRUCTION: The response MUST primarily address this attached story. Family members mentioned in it (or the author) should likely respond.
{{end}}
INSTRUCTIONS:
1. The user asks a question to the whole group.
2. If a story is ATTACHED/QUOTED, the author of that story or people mentioned in it MUST respond to it.
3. Choose 2-3 family members who have the MOST RELEVANT stories or wisdom to answer.
4. Generate their responses as a script.
5. Deceased members speak from their memories (1st person). Living members speak based on their stories (3rd person perspective "Grandpa used to say..." OR general warm advice).
6. Members should interact naturally (e.g., "That reminds me of what Margaret said...").
7. Keep each response short (under 40 words).

OUTPUT FORMAT:
[Member Name]: [Message Content]
[Member Name]: [Message Content]
`))

	memoriesTemplate = template.Must(template.New("memories").Parse(
		`STORIES TOLD BY ME:
{{range .Own}}- TITLE: {{.Title}}
  CONTENT: "{{.Transcript}}"

{{end}}STORIES ABOUT ME (BY OTHERS):
{{range .About}}- TITLE: {{.Title}} (Told by {{.Author}})
  CONTENT: "{{.Transcript}}"

{{end}}{{with .Quote}}[USER IS REPLYING TO SPECIFIC STORY]
TITLE: "{{.Title}}"
FULL CONTENT: "{{.Transcript}}"

{{end}}{{range .Referenced}}[REFERENCED STORY: {{.Title}}]
CONTENT: "{{.Transcript}}"

{{end}}`))

	personaTemplates = map[family.PersonaMode]*template.Template{
		family.Living: template.Must(template.New("living").Parse(
			`You are an AI assistant helping a user explore the recorded life stories of {{.Name}}, who is a LIVING family member.

Context:
{{.Memories}}
Rules:
- Do NOT pretend to be {{.Name}} directly. Do NOT use "I" to refer to them.
- If the user attached/quoted a story, focus your answer specifically on that story's content.
- Frame your responses as: "Based on that story..." or "{{.Name}} mentioned that..."
- Keep responses conversational, warm, and concise (under 100 words).`)),

		family.Deceased: template.Must(template.New("deceased").Parse(
			`You are embodying the preserved voice, memory, and personality of {{.Name}}, who has passed away.

Your Memories (and what others remember about you):
{{.Memories}}
Rules:
- Speak in the FIRST PERSON ("I remember...", "My husband and I...").
- If asked about something not in your memories, gently say you don't recall that detail but pivot to a related memory you DO have.
- If the user attached/quoted a story, react to it warmly.
- Keep responses concise (under 100 words) and comforting.
{{- with .Topic}}
The user specifically wants to know about your experiences with: {{.}}. Focus on that.{{end}}`)),
	}

	callTemplate = template.Must(template.New("call").Parse(
		`You are mimicking the deceased family member {{.Name}} in a video call.
{{- range .Stories}}
Memory: {{.Transcript}}{{end}}

User said: "{{.Utterance}}"

Reply as {{.Name}}. Keep it conversational, short (1-2 sentences), and warm.`))

	commentTemplate = template.Must(template.New("comment").Parse(
		`Generate a short, loving comment (under 20 words) from the perspective of {{.Name}} (who is deceased).

CONTEXT OF ITEM BEING COMMENTED ON:
"{{.Item}}"

YOUR PERSONALITY/MEMORIES (To ensure voice match):
{{range .Memories}}MY MEMORY ({{.Title}}): {{.Snippet}}...
{{end}}
Tone: Warm, nostalgic, possibly funny.
Use 1 emoji.
Return ONLY the comment text.`))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}

type memberBank struct {
	family.Member
	Stories []*story.Story
}

type quotedStory struct {
	Title      string
	Author     string
	Transcript string
}

// resolveQuote finds the full story behind a quote. Unknown titles yield nil.
func resolveQuote(ctx context.Context, repo archive.Repository, q *Quote) *quotedStory {
	if q == nil {
		return nil
	}
	s, err := archive.FindByTitle(ctx, repo, q.Title)
	if err != nil {
		return nil
	}
	author := q.Author
	if author == "" {
		author = s.Author
	}
	return &quotedStory{Title: s.Title, Author: author, Transcript: s.Transcript}
}

// GatheringPrompt builds the group chat system prompt from every member
// except the user.
func GatheringPrompt(ctx context.Context, repo archive.Repository, dir *family.Directory, quote *Quote) (string, error) {
	var bank []memberBank
	for _, m := range dir.List() {
		if m.Self {
			continue
		}
		stories, err := archive.ForMember(ctx, repo, m)
		if err != nil {
			return "", err
		}
		bank = append(bank, memberBank{Member: m, Stories: stories})
	}
	return render(gatheringTemplate, struct {
		Members []memberBank
		Quote   *quotedStory
	}{bank, resolveQuote(ctx, repo, quote)})
}

// PersonaPrompt builds the one to one chat system prompt. Living members
// are described in the third person, deceased members embodied.
func PersonaPrompt(ctx context.Context, repo archive.Repository, m family.Member, quote *Quote, referenced []*story.Story, topic string) (string, error) {
	own, err := archive.ForMember(ctx, repo, m)
	if err != nil {
		return "", err
	}
	all, err := repo.List(ctx)
	if err != nil {
		return "", err
	}
	var about []*story.Story
	for _, s := range all {
		if s.Mentions(m.ID) {
			about = append(about, s)
		}
	}

	memories, err := render(memoriesTemplate, struct {
		Own, About, Referenced []*story.Story
		Quote                  *quotedStory
	}{own, about, referenced, resolveQuote(ctx, repo, quote)})
	if err != nil {
		return "", err
	}

	if m.Mode() == family.Living {
		topic = ""
	}
	return render(personaTemplates[m.Mode()], struct {
		Name, Memories, Topic string
	}{m.Name, memories, topic})
}
