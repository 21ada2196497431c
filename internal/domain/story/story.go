package story

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is how story dates are displayed, e.g. "July 1969".
const DateLayout = "January 2006"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ContextCard is a short historical fact attached to a story.
type ContextCard struct {
	Icon      string `json:"icon"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

type Comment struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	Likes       int       `json:"likes"`
	Replies     []Comment `json:"replies,omitempty"`
	AIGenerated bool      `json:"ai_generated,omitempty"`
}

// NewComment stamps a comment with a fresh ID.
func NewComment(authorID, text string, at time.Time) Comment {
	return Comment{ID: uuid.NewString(), AuthorID: authorID, Text: text, Timestamp: at}
}

// Story is one recorded family memory.
type Story struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Author             string        `json:"author"`
	Date               string        `json:"date"`
	Transcript         string        `json:"transcript"`
	ContextCards       []ContextCard `json:"context_cards"`
	ImageURL           string        `json:"image_url,omitempty"`
	MentionedMemberIDs []string      `json:"mentioned_member_ids,omitempty"`
	RelatedAlbumID     string        `json:"related_album_id,omitempty"`
	MediaKind          MediaKind     `json:"media_kind,omitempty"`
	Media              []byte        `json:"media,omitempty"`
	MediaMIMEType      string        `json:"media_mime_type,omitempty"`
	Comments           []Comment     `json:"comments,omitempty"`
}

// New creates a story dated in the month of at.
func New(title, author, transcript string, at time.Time) *Story {
	return &Story{
		ID:         uuid.NewString(),
		Title:      title,
		Author:     author,
		Date:       at.Format(DateLayout),
		Transcript: transcript,
	}
}

// Clone returns a copy that shares no slices with s.
func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	c := *s
	c.ContextCards = append([]ContextCard(nil), s.ContextCards...)
	c.MentionedMemberIDs = append([]string(nil), s.MentionedMemberIDs...)
	c.Media = append([]byte(nil), s.Media...)
	c.Comments = append([]Comment(nil), s.Comments...)
	return &c
}

// HasMedia reports whether the story carries its own recording.
func (s *Story) HasMedia() bool {
	return len(s.Media) > 0
}

// Mentions reports whether memberID is tagged in the story.
func (s *Story) Mentions(memberID string) bool {
	for _, id := range s.MentionedMemberIDs {
		if id == memberID {
			return true
		}
	}
	return false
}
