package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"familynest/internal/conversation"
)

type messageRequest struct {
	Message string `json:"message"`
	// QuoteStoryID attaches an archived story to the message.
	QuoteStoryID string `json:"quote_story_id"`
	// Topic opens a new chat with a deceased member on that subject.
	Topic string `json:"topic"`
}

func (s *Server) quote(ctx context.Context, id string) (*conversation.Quote, error) {
	if id == "" {
		return nil, nil
	}
	st, err := s.cfg.Orchestrator.Repository().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return conversation.NewQuote(st), nil
}

func (s *Server) listMembers(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Conversation.Family.List())
}

func (s *Server) chat(c *gin.Context) {
	ctx := c.Request.Context()
	member, err := s.cfg.Conversation.Family.Get(c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	quote, err := s.quote(ctx, req.QuoteStoryID)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}

	s.mu.Lock()
	session, ok := s.chats[member.ID]
	if !ok {
		session = conversation.NewChat(s.cfg.Conversation, member, req.Topic, conversation.NewLog(nil, nil))
		s.chats[member.ID] = session
	}
	s.mu.Unlock()

	seen := 0
	if ok {
		seen = len(session.Log().Messages())
	} else if err := session.Begin(ctx); err != nil {
		abort(c, statusFor(err), err)
		return
	}

	if err := session.Send(ctx, req.Message, quote); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	messages := session.Log().Messages()
	c.JSON(http.StatusOK, gin.H{"member": member, "messages": messages[seen:]})
}

func (s *Server) endChat(c *gin.Context) {
	s.mu.Lock()
	delete(s.chats, c.Param("id"))
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

type event struct {
	name string
	data any
}

type typingEvent struct {
	Speaker string `json:"speaker"`
	Active  bool   `json:"active"`
}

// gatheringSession forwards the shared group chat's log to whichever request
// is currently streaming it.
type gatheringSession struct {
	g *conversation.Gathering

	mu     sync.Mutex
	sink   chan<- event
	cancel <-chan struct{}
}

func (s *Server) newGatheringSession() *gatheringSession {
	gs := &gatheringSession{}
	log := conversation.NewLog(
		func(m conversation.Message) { gs.emit(event{"message", m}) },
		func(speaker string, active bool) { gs.emit(event{"typing", typingEvent{speaker, active}}) },
	)
	gs.g = conversation.NewGathering(s.cfg.Conversation, s.cfg.Sequencer, log)
	return gs
}

func (gs *gatheringSession) emit(e event) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.sink == nil {
		return
	}
	select {
	case gs.sink <- e:
	case <-gs.cancel:
	}
}

// subscribe fails while another request is streaming.
func (gs *gatheringSession) subscribe(sink chan<- event, cancel <-chan struct{}) bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.sink != nil {
		return false
	}
	gs.sink, gs.cancel = sink, cancel
	return true
}

func (gs *gatheringSession) unsubscribe() {
	gs.mu.Lock()
	gs.sink, gs.cancel = nil, nil
	gs.mu.Unlock()
}

func (s *Server) gatheringSession() *gatheringSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gathering == nil {
		s.gathering = s.newGatheringSession()
	}
	return s.gathering
}

// gather streams the family's answer as Server-Sent Events: typing and
// message events as each turn is revealed, then a final done event.
func (s *Server) gather(c *gin.Context) {
	ctx := c.Request.Context()
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	quote, err := s.quote(ctx, req.QuoteStoryID)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}

	gs := s.gatheringSession()
	events := make(chan event, 8)
	var sendErr error
	go func() {
		defer close(events)
		if !gs.subscribe(events, ctx.Done()) {
			sendErr = conversation.ErrBusy
			return
		}
		sendErr = gs.g.Send(ctx, req.Message, quote)
		gs.unsubscribe()
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	for e := range events {
		c.SSEvent(e.name, e.data)
		c.Writer.Flush()
	}

	done := gin.H{"ok": sendErr == nil}
	if sendErr != nil {
		_ = c.Error(sendErr)
		done["error"] = sendErr.Error()
	}
	c.SSEvent("done", done)
	c.Writer.Flush()
}

func (s *Server) endGathering(c *gin.Context) {
	s.mu.Lock()
	if s.gathering != nil {
		s.gathering.g.Close()
		s.gathering = nil
	}
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}
