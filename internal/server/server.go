// Package server exposes submissions, run status and leaderboards over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/leaderboard"
	"github.com/signalnine/agentarena/internal/submission"
)

// UserHeader carries the id of the requesting user.
const UserHeader = "X-User-ID"

const (
	defaultStreamInterval = 250 * time.Millisecond
	shutdownTimeout       = 5 * time.Second
)

type Options struct {
	Manager     *submission.Manager
	Leaderboard *leaderboard.Engine
	Catalog     catalog.Catalog
	// Selector is optional; when set /healthz reports whether live runs are
	// enabled.
	Selector *execution.Selector

	AllowOrigins   []string
	StreamInterval time.Duration
}

type Server struct {
	opts   Options
	router *gin.Engine
}

func New(opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = defaultStreamInterval
	}
	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(s.opts.AllowOrigins)))

	r.GET("/healthz", s.health)
	api := r.Group("/api/v1")
	api.POST("/submissions", s.submit)
	api.GET("/submissions", s.listMine)
	api.GET("/submissions/:id", s.getSubmission)
	api.GET("/submissions/:id/status", s.status)
	api.POST("/submissions/:id/cancel", s.cancel)
	api.GET("/submissions/:id/stream", s.stream)
	api.GET("/tasks", s.listTasks)
	api.GET("/tasks/:id/leaderboard", s.leaderboard)
	api.GET("/agents", s.listAgents)
	api.GET("/agents/:id/submissions", s.agentSubmissions)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", UserHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving api: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.opts.Selector != nil {
		body["use_live"] = s.opts.Selector.UseLive()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) submit(c *gin.Context) {
	user := c.GetHeader(UserHeader)
	if user == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": UserHeader + " header is required"})
		return
	}
	var req submission.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	rec, err := s.opts.Manager.Submit(c.Request.Context(), req, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, public(rec))
}

func (s *Server) listMine(c *gin.Context) {
	user := c.GetHeader(UserHeader)
	if user == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": UserHeader + " header is required"})
		return
	}
	recs, err := s.opts.Manager.ListByUser(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicAll(recs))
}

func (s *Server) getSubmission(c *gin.Context) {
	rec, err := s.opts.Manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, public(rec))
}

func (s *Server) status(c *gin.Context) {
	st, err := s.opts.Manager.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) cancel(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.opts.Manager.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if user := c.GetHeader(UserHeader); user != rec.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "submission belongs to another user"})
		return
	}
	if !s.opts.Manager.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "submission is not running", "status": rec.Status})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "cancelled": true})
}

func (s *Server) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Catalog.Tasks())
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Catalog.Agents())
}

func (s *Server) leaderboard(c *gin.Context) {
	entries, err := s.opts.Leaderboard.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) agentSubmissions(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.opts.Catalog.Agent(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	recs, err := s.opts.Manager.ListByAgent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicAll(recs))
}

func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, execution.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, execution.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, execution.ErrExecution):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		log.Printf("warning: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// public strips any credential a record still carries in its run config.
func public(rec *submission.Record) *submission.Record {
	if _, ok := rec.RunConfig[submission.CredentialKey]; !ok {
		return rec
	}
	c := rec.Clone()
	delete(c.RunConfig, submission.CredentialKey)
	return c
}

func publicAll(recs []*submission.Record) []*submission.Record {
	out := make([]*submission.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, public(r))
	}
	return out
}
