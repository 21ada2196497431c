package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"familynest/internal/audio/pcm"
	"familynest/internal/domain/family"
	"familynest/internal/domain/story"
	"familynest/internal/i18n"
	"familynest/internal/narration"
)

// storyResponse hides the raw media bytes, which can be large.
type storyResponse struct {
	*story.Story
	Media    []byte               `json:"media,omitempty"`
	HasMedia bool                 `json:"has_media"`
	Flags    *narration.FlagState `json:"flags,omitempty"`
}

func (s *Server) view(st *story.Story, withFlags bool) storyResponse {
	resp := storyResponse{Story: st, HasMedia: st.HasMedia()}
	if withFlags {
		flags := s.cfg.Orchestrator.Flags().Snapshot(st.ID)
		resp.Flags = &flags
	}
	return resp
}

func (s *Server) listStories(c *gin.Context) {
	stories, err := s.cfg.Orchestrator.Repository().List(c.Request.Context())
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	out := make([]storyResponse, 0, len(stories))
	for _, st := range stories {
		out = append(out, s.view(st, false))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getStory(c *gin.Context) {
	st, err := s.cfg.Orchestrator.Repository().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, s.view(st, true))
}

type recordRequest struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Tags     []string `json:"tags"`
	Media    string   `json:"media"`
	MIMEType string   `json:"mime_type"`
	Kind     string   `json:"media_kind"`
}

func (s *Server) recordStory(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	var media []byte
	if req.Media != "" {
		var err error
		if media, err = base64.StdEncoding.DecodeString(req.Media); err != nil {
			abort(c, http.StatusBadRequest, fmt.Errorf("media is not valid base64: %w", err))
			return
		}
	}
	kind := story.MediaKind(req.Kind)
	switch kind {
	case "", story.MediaAudio, story.MediaVideo:
	default:
		abort(c, http.StatusBadRequest, fmt.Errorf("unknown media kind %q", req.Kind))
		return
	}

	st, bf, err := s.cfg.Orchestrator.Record(c.Request.Context(), narration.RecordRequest{
		Title:    req.Title,
		Tags:     req.Tags,
		Media:    media,
		MIMEType: req.MIMEType,
		Kind:     kind,
		Author:   req.Author,
	})
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	s.track(st.ID, bf)
	c.JSON(http.StatusCreated, s.view(st, true))
}

type narrationResponse struct {
	Available  bool    `json:"available"`
	Message    string  `json:"message,omitempty"`
	Audio      string  `json:"audio,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
}

func (s *Server) narrateStory(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := s.cfg.Orchestrator.Repository().Get(ctx, c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}

	voice := c.Query("voice")
	if voice == "" {
		author, _ := s.cfg.Conversation.Family.FindByName(st.Author)
		voice = s.cfg.VoiceFor(author)
	}

	buf, err := s.cfg.Orchestrator.Narrate(ctx, st.Transcript, voice)
	if err != nil {
		var nerr *narration.NarrationError
		if errors.As(err, &nerr) || errors.Is(err, narration.ErrEmptyPayload) {
			s.log.WithError(err).WithField("story_id", st.ID).Warn("Narration unavailable")
			c.JSON(http.StatusOK, narrationResponse{Message: s.messages().Get(i18n.NarrationUnavailable)})
			return
		}
		abort(c, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, narrationResponse{
		Available:  true,
		Audio:      pcm.EncodeBase64(buf.Samples),
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
		Duration:   buf.Seconds(),
	})
}

type commentResponse struct {
	Comment *story.Comment `json:"comment"`
	Persona *family.Member `json:"persona,omitempty"`
	Message string         `json:"message,omitempty"`
}

func (s *Server) commentOnStory(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.cfg.Orchestrator.Repository().Get(ctx, id); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	persona, err := s.cfg.Commenter.Persona()
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}

	comment, err := s.cfg.Commenter.Generate(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("story_id", id).Warn("AI comment failed")
		c.JSON(http.StatusOK, commentResponse{Persona: &persona, Message: s.messages().Get(i18n.CommentUnavailable)})
		return
	}
	c.JSON(http.StatusCreated, commentResponse{Comment: comment, Persona: &persona})
}

func (s *Server) messages() *i18n.Messages {
	if s.cfg.Conversation.Messages != nil {
		return s.cfg.Conversation.Messages
	}
	return i18n.English()
}
