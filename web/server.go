// Package web serves the task console: a JSON API over the task store plus a
// websocket stream of store change events.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/monitoring"
	"github.com/farhan-ahmed1/taskdesk/internal/notify"
	"github.com/farhan-ahmed1/taskdesk/internal/store"
	"github.com/farhan-ahmed1/taskdesk/internal/task"
	"github.com/gin-gonic/gin"
)

// Server exposes the task store over HTTP
type Server struct {
	store   *store.Store
	metrics *monitoring.Metrics
	feed    *notify.Feed
	addr    string
	engine  *gin.Engine
	logger  *logger.Logger

	serverMu sync.RWMutex
	server   *http.Server

	// Shutdown
	done     chan struct{}
	doneOnce sync.Once
	ready    chan struct{}
}

// Config holds server configuration
type Config struct {
	Addr    string // e.g., ":3000"
	Store   *store.Store
	Metrics *monitoring.Metrics
	Feed    *notify.Feed
}

// TaskList is the response for GET /api/tasks
type TaskList struct {
	Tasks      []task.Summary `json:"tasks"`
	Total      int            `json:"total"`
	Loading    bool           `json:"loading"`
	SearchTerm string         `json:"searchTerm"`
}

// TaskDetail is the response for GET /api/tasks/:id
type TaskDetail struct {
	Task      task.Summary         `json:"task"`
	History   []task.ExecutionView `json:"history"`
	Executing bool                 `json:"executing"`
}

// MutationResult is the response for every mutating endpoint
type MutationResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type searchRequest struct {
	Term string `json:"term"`
}

// NewServer creates a new console server
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.Feed == nil {
		cfg.Feed = notify.NewFeed(notify.DefaultTTL, notify.DefaultCapacity)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.NewMetrics()
	}

	s := &Server{
		store:   cfg.Store,
		metrics: cfg.Metrics,
		feed:    cfg.Feed,
		addr:    cfg.Addr,
		logger:  logger.ForComponent("console"),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.POST("/tasks", s.handleCreateTask)
	api.PUT("/tasks/:id", s.handleUpdateTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)
	api.POST("/tasks/:id/execute", s.handleExecuteTask)
	api.POST("/tasks/:id/refresh", s.handleRefreshTask)
	api.POST("/tasks/refresh", s.handleReload)
	api.PUT("/search", s.handleSearch)
	api.GET("/notifications", s.handleNotifications)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/ws", s.handleWebSocket)

	return r
}

// Handler returns the gin engine, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server
func (s *Server) Start() error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	s.serverMu.Lock()
	s.server = server
	s.serverMu.Unlock()

	close(s.ready)

	s.logger.Info("Starting console server", logger.Fields{
		"address": s.addr,
	})
	return server.ListenAndServe()
}

// Ready returns a channel that is closed when the server is ready
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop closes websocket streams and gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })

	s.serverMu.RLock()
	server := s.server
	s.serverMu.RUnlock()

	if server == nil {
		return nil
	}

	s.logger.Info("Shutting down console server", logger.Fields{})
	return server.Shutdown(ctx)
}

// handleListTasks returns the store's tasks, optionally sorted
func (s *Server) handleListTasks(c *gin.Context) {
	key, err := task.ParseSortKey(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tasks := s.store.Tasks()
	task.SortTasks(tasks, key)

	summaries := make([]task.Summary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, task.Summarize(t))
	}

	c.JSON(http.StatusOK, TaskList{
		Tasks:      summaries,
		Total:      len(summaries),
		Loading:    s.store.Loading(),
		SearchTerm: s.store.SearchTerm(),
	})
}

// handleGetTask returns one task with its execution history, newest first
func (s *Server) handleGetTask(c *gin.Context) {
	id := c.Param("id")
	t, ok := s.store.Task(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, TaskDetail{
		Task:      task.Summarize(t),
		History:   task.History(t),
		Executing: s.store.Executing(id),
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var d task.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		s.respondMutation(c, invalidBody(err))
		return
	}

	s.respondMutation(c, s.store.Create(detach(c), d))
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var d task.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		s.respondMutation(c, invalidBody(err))
		return
	}

	current, ok := s.store.Task(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, MutationResult{Error: "Task not found"})
		return
	}

	s.respondMutation(c, s.store.Update(detach(c), current.WithDraft(d)))
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	s.respondMutation(c, s.store.Delete(detach(c), c.Param("id")))
}

func (s *Server) handleExecuteTask(c *gin.Context) {
	s.respondMutation(c, s.store.Execute(detach(c), c.Param("id")))
}

func (s *Server) handleRefreshTask(c *gin.Context) {
	s.respondMutation(c, s.store.Refresh(detach(c), c.Param("id")))
}

// handleReload re-lists every task from the gateway
func (s *Server) handleReload(c *gin.Context) {
	s.respondMutation(c, s.store.List(detach(c)))
}

// handleSearch records a search term; the store sends it once typing pauses
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search request"})
		return
	}

	s.store.SetSearchTerm(req.Term)
	c.JSON(http.StatusAccepted, gin.H{"searchTerm": req.Term})
}

func (s *Server) handleNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": s.feed.Recent()})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"tasks":     s.store.Len(),
	})
}

// respondMutation maps a store error to a status code: 400 for input the
// gateway never saw, 502 for everything the gateway rejected or failed
func (s *Server) respondMutation(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, MutationResult{Success: true})
	case errors.Is(err, task.ErrInvalidTask), errors.Is(err, store.ErrInvalidID), errors.Is(err, errInvalidBody):
		c.JSON(http.StatusBadRequest, MutationResult{Error: err.Error()})
	default:
		c.JSON(http.StatusBadGateway, MutationResult{Error: err.Error()})
	}
}

var errInvalidBody = errors.New("invalid request body")

func invalidBody(err error) error {
	return errors.Join(errInvalidBody, err)
}

// detach keeps request values but not cancellation: a browser closing the
// connection must not turn an in-flight gateway call into a failure
func detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
