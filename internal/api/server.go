// Package api serves the story archive, narration and conversations over
// HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"familynest/internal/conversation"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
	"familynest/internal/narration"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Orchestrator *narration.Orchestrator
	Conversation conversation.Deps
	Commenter    *conversation.Commenter
	Sequencer    *conversation.Sequencer
	// VoiceFor picks the voice a story's author is narrated in.
	VoiceFor func(family.Member) string
	Logger   logrus.FieldLogger
}

type Server struct {
	cfg    Config
	log    logrus.FieldLogger
	router *gin.Engine

	mu        sync.Mutex
	backfills map[string]*narration.Backfill
	chats     map[string]*conversation.Chat
	gathering *gatheringSession
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Conversation.Repo == nil {
		cfg.Conversation.Repo = cfg.Orchestrator.Repository()
	}
	if cfg.Conversation.Family == nil {
		cfg.Conversation.Family = family.NewDirectory()
	}
	if cfg.Commenter == nil {
		cfg.Commenter = conversation.NewCommenter(cfg.Conversation, "", cfg.Orchestrator)
	}
	if cfg.VoiceFor == nil {
		cfg.VoiceFor = func(family.Member) string { return "" }
	}

	s := &Server{
		cfg:       cfg,
		log:       cfg.Logger,
		backfills: make(map[string]*narration.Backfill),
		chats:     make(map[string]*conversation.Chat),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))

	router.GET("/stories", s.listStories)
	router.POST("/stories", s.recordStory)
	router.GET("/stories/:id", s.getStory)
	router.GET("/stories/:id/narration", s.narrateStory)
	router.POST("/stories/:id/comments/ai", s.commentOnStory)

	router.GET("/members", s.listMembers)
	router.POST("/members/:id/chat", s.chat)
	router.DELETE("/members/:id/chat", s.endChat)

	router.POST("/gathering", s.gather)
	router.DELETE("/gathering", s.endGathering)
	return router
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down and abandons
// any backfill still running.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels pending backfills and open conversations.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, bf := range s.backfills {
		bf.Cancel()
		delete(s.backfills, id)
	}
	if s.gathering != nil {
		s.gathering.g.Close()
		s.gathering = nil
	}
	clear(s.chats)
}

func (s *Server) track(id string, bf *narration.Backfill) {
	s.mu.Lock()
	s.backfills[id] = bf
	s.mu.Unlock()

	go func() {
		<-bf.Done()
		s.mu.Lock()
		if s.backfills[id] == bf {
			delete(s.backfills, id)
		}
		s.mu.Unlock()
		if _, err := bf.Wait(); err != nil {
			s.log.WithError(err).WithField("story_id", id).Debug("Backfill stopped")
		}
	}()
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
		if err := c.Errors.Last(); err != nil {
			entry.WithError(err.Err).Warn("Request failed")
			return
		}
		entry.Debug("Request handled")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, family.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrNoPersona):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
