package storage

import (
	"context"
	"errors"

	"github.com/farhan-ahmed1/taskdesk/internal/task"
)

// ErrTaskNotFound is returned when no task has the requested ID
var ErrTaskNotFound = errors.New("task not found")

// Storage defines the interface for persisting tasks on the gateway side
type Storage interface {
	// SaveTask creates or replaces a task
	SaveTask(ctx context.Context, t *task.Task) error

	// GetTask retrieves a task by ID
	GetTask(ctx context.Context, taskID string) (*task.Task, error)

	// ListTasks returns every task in creation order
	ListTasks(ctx context.Context) ([]*task.Task, error)

	// SearchByName returns tasks whose name contains the term, ignoring case
	SearchByName(ctx context.Context, term string) ([]*task.Task, error)

	// AppendExecution adds a run record to a task's history and returns the updated task
	AppendExecution(ctx context.Context, taskID string, exec task.Execution) (*task.Task, error)

	// DeleteTask removes a task from storage
	DeleteTask(ctx context.Context, taskID string) error

	// Close closes the storage connection
	Close() error
}
