// Package gateway is a reference implementation of the task REST API the
// console talks to. It stores tasks in Redis and runs commands locally.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/storage"
	"github.com/farhan-ahmed1/taskdesk/internal/task"
)

const maxBodyBytes = 1 << 20

// Server provides the task HTTP API
type Server struct {
	addr     string
	storage  storage.Storage
	runner   Runner
	now      func() time.Time
	server   *http.Server
	serverMu sync.RWMutex
	logger   *logger.Logger

	ready chan struct{}
}

// Config holds gateway configuration
type Config struct {
	Addr    string // e.g., ":8080"
	Storage storage.Storage
	Runner  Runner
}

// NewServer creates a new gateway instance
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Runner == nil {
		cfg.Runner = NewShellRunner(DefaultExecTimeout)
	}

	return &Server{
		addr:    cfg.Addr,
		storage: cfg.Storage,
		runner:  cfg.Runner,
		now:     time.Now,
		logger:  logger.ForComponent("gateway"),
		ready:   make(chan struct{}),
	}
}

// Handler returns the routed API with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /tasks", s.handleList)
	mux.HandleFunc("GET /tasks/search", s.handleSearch)
	mux.HandleFunc("PUT /tasks", s.handlePut)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDelete)
	mux.HandleFunc("PUT /tasks/{id}/execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(s.withCORS(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // execute may run for the full exec timeout
		IdleTimeout:  60 * time.Second,
	}

	s.serverMu.Lock()
	s.server = server
	s.serverMu.Unlock()

	close(s.ready)

	s.logger.Info("Starting gateway server", logger.Fields{
		"address": s.addr,
	})
	return server.ListenAndServe()
}

// Ready returns a channel that is closed when the server is ready
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.serverMu.RLock()
	server := s.server
	s.serverMu.RUnlock()

	if server == nil {
		return nil
	}

	s.logger.Info("Shutting down gateway server", logger.Fields{})
	return server.Shutdown(ctx)
}

// handleList returns every task, or one task when ?id is given
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		s.handleGet(w, r, id)
		return
	}

	tasks, err := s.storage.ListTasks(r.Context())
	if err != nil {
		s.logger.Error("Failed to list tasks", logger.Fields{
			"error": err.Error(),
		})
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	t, err := s.storage.GetTask(r.Context(), id)
	if err != nil {
		s.writeStorageError(w, "get", id, err)
		return
	}

	s.writeJSON(w, http.StatusOK, t)
}

// handleSearch returns tasks whose name contains ?name
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	tasks, err := s.storage.SearchByName(r.Context(), name)
	if err != nil {
		s.logger.Error("Failed to search tasks", logger.Fields{
			"error": err.Error(),
			"name":  name,
		})
		http.Error(w, "Failed to search tasks", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, tasks)
}

// handlePut creates or replaces a task. Name, owner and command come from the
// body; an existing task keeps its stored execution history.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&t); err != nil {
		s.logger.Warn("Failed to decode task", logger.Fields{
			"error": err.Error(),
		})
		http.Error(w, "Invalid task format", http.StatusBadRequest)
		return
	}

	if err := t.Validate(); err != nil {
		s.logger.Warn("Rejected invalid task", logger.Fields{
			"error":   err.Error(),
			"task_id": t.ID,
		})
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	existing, err := s.storage.GetTask(ctx, t.ID)
	switch {
	case err == nil:
		t.Executions = existing.Executions
	case errors.Is(err, storage.ErrTaskNotFound):
		if t.Executions == nil {
			t.Executions = []task.Execution{}
		}
	default:
		s.writeStorageError(w, "put", t.ID, err)
		return
	}

	if err := s.storage.SaveTask(ctx, &t); err != nil {
		s.writeStorageError(w, "put", t.ID, err)
		return
	}

	s.logger.Info("Task saved", logger.Fields{
		"task_id": t.ID,
		"created": existing == nil,
	})
	s.writeJSON(w, http.StatusOK, &t)
}

// handleDelete removes a task
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.storage.DeleteTask(r.Context(), id); err != nil {
		s.writeStorageError(w, "delete", id, err)
		return
	}

	s.logger.Info("Task deleted", logger.Fields{
		"task_id": id,
	})
	w.WriteHeader(http.StatusOK)
}

// handleExecute runs the task's command and records the execution
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	t, err := s.storage.GetTask(ctx, id)
	if err != nil {
		s.writeStorageError(w, "execute", id, err)
		return
	}

	start := s.now()
	output, runErr := s.runner.Run(ctx, t.Command)
	end := s.now()

	if runErr != nil {
		output = appendRunError(output, runErr)
		s.logger.Warn("Task command failed", logger.Fields{
			"task_id": id,
			"error":   runErr.Error(),
		})
	}

	updated, err := s.storage.AppendExecution(ctx, id, task.Execution{
		StartTime: start,
		EndTime:   end,
		Output:    output,
	})
	if err != nil {
		s.writeStorageError(w, "execute", id, err)
		return
	}

	s.logger.Info("Task executed", logger.Fields{
		"task_id":  id,
		"duration": end.Sub(start).String(),
		"failed":   runErr != nil,
	})
	s.writeJSON(w, http.StatusOK, updated)
}

// handleHealth returns health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	status := http.StatusOK

	if p, ok := s.storage.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Error("Storage health check failed", logger.Fields{
				"error": err.Error(),
			})
			health["status"] = "unhealthy"
			health["storage_error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, health)
}

func (s *Server) writeStorageError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, storage.ErrTaskNotFound) {
		s.logger.Warn("Task not found", logger.Fields{
			"operation": op,
			"task_id":   id,
		})
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	s.logger.Error("Storage operation failed", logger.Fields{
		"operation": op,
		"task_id":   id,
		"error":     err.Error(),
	})
	http.Error(w, "Storage error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", logger.Fields{
			"error": err.Error(),
		})
	}
}
