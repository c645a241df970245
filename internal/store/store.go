// Package store keeps a client-side copy of the gateway's task collection.
//
// The gateway is the source of truth. Every successful response for a task
// overwrites the local entry with the same identifier; nothing is merged and
// nothing is changed locally before the gateway answers. A failed list or
// search clears the collection, a failed mutation leaves it untouched.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/debounce"
	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/monitoring"
	"github.com/farhan-ahmed1/taskdesk/internal/notify"
	"github.com/farhan-ahmed1/taskdesk/internal/task"
	"github.com/google/uuid"
)

// DefaultDebounce is the quiet period before a search term is sent
const DefaultDebounce = 300 * time.Millisecond

const subscriberBuffer = 32

// ErrInvalidID is returned when an operation is called without a task id
var ErrInvalidID = errors.New("task id is required")

// Gateway is the remote task service the store mirrors
type Gateway interface {
	List(ctx context.Context) ([]task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	Search(ctx context.Context, name string) ([]task.Task, error)
	Create(ctx context.Context, t *task.Task) (*task.Task, error)
	Update(ctx context.Context, t *task.Task) (*task.Task, error)
	Delete(ctx context.Context, id string) error
	Execute(ctx context.Context, id string) (*task.Task, error)
}

// Options holds optional store collaborators
type Options struct {
	Debounce time.Duration
	Notifier notify.Notifier
	Metrics  *monitoring.Metrics
	Logger   *logger.Logger

	// Clock supplies creation times for generated identifiers
	Clock func() time.Time
}

// Store is the in-memory task collection kept in step with the gateway
type Store struct {
	gateway   Gateway
	notifier  notify.Notifier
	metrics   *monitoring.Metrics
	log       *logger.Logger
	now       func() time.Time
	debouncer *debounce.Debouncer

	// Base context for debounced searches, canceled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	tasks      map[string]task.Task
	order      []string
	fetching   int
	searchTerm string
	executing  map[string]int
	closed     bool

	subMu sync.RWMutex
	subs  map[string]chan Event
}

// New creates a store over the given gateway
func New(gw Gateway, opts Options) (*Store, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.ForComponent("store")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		gateway:   gw,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Clock,
		debouncer: debounce.New(opts.Debounce),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]task.Task),
		executing: make(map[string]int),
		subs:      make(map[string]chan Event),
	}, nil
}

// Close stops pending debounced searches and ends all subscriptions.
// In-flight gateway calls started by callers are not interrupted.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Stop()
	s.cancel()

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return nil
}

// List replaces the collection with the gateway's full task list.
// On failure the collection is cleared.
func (s *Store) List(ctx context.Context) error {
	s.beginFetch()
	tasks, err := s.gateway.List(ctx)
	return s.finishFetch("list", "", tasks, err, "Failed to load tasks. Please try again.")
}

// Search replaces the collection with the gateway's matches for term.
// A blank term lists every task. On failure the collection is cleared.
func (s *Store) Search(ctx context.Context, term string) error {
	if strings.TrimSpace(term) == "" {
		return s.List(ctx)
	}

	s.beginFetch()
	tasks, err := s.gateway.Search(ctx, term)
	return s.finishFetch("search", term, tasks, err, "Failed to search tasks. Please try again.")
}

// SetSearchTerm records the term and schedules a search once the debounce
// window passes without another call. A newer term cancels the unfired one;
// requests already sent are not canceled, so the last response to arrive wins.
func (s *Store) SetSearchTerm(term string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.searchTerm = term
	s.mu.Unlock()

	superseded := s.debouncer.Schedule(func() {
		// Failures are already logged and notified
		_ = s.Search(s.ctx, term)
	})
	if superseded && s.metrics != nil {
		s.metrics.RecordSearchSuperseded()
	}
}

// SearchPending reports whether a debounced search has been scheduled but not sent
func (s *Store) SearchPending() bool {
	return s.debouncer.Pending()
}

// Create validates the draft, assigns an identifier and sends it to the
// gateway. The gateway's copy is added to the collection.
func (s *Store) Create(ctx context.Context, d task.Draft) error {
	t, err := task.NewTask(d, s.now())
	if err != nil {
		return s.fail("create", "", "Failed to create task. Please check the form.", err)
	}

	created, err := s.gateway.Create(ctx, t)
	if err != nil {
		return s.fail("create", t.ID, "Failed to create task. Please try again.", err)
	}

	s.put(*created)
	s.log.Info("Task created", logger.Fields{"task_id": created.ID})
	s.emit(Event{Kind: EventCreated, TaskID: created.ID})
	s.notifier.Success("Task created successfully!")
	return nil
}

// Update sends the full task to the gateway and replaces the local entry
// with the gateway's copy.
func (s *Store) Update(ctx context.Context, t task.Task) error {
	if err := t.Validate(); err != nil {
		return s.fail("update", t.ID, "Failed to update task. Please check the form.", err)
	}

	updated, err := s.gateway.Update(ctx, &t)
	if err != nil {
		return s.fail("update", t.ID, "Failed to update task. Please try again.", err)
	}

	s.put(*updated)
	s.log.Info("Task updated", logger.Fields{"task_id": updated.ID})
	s.emit(Event{Kind: EventUpdated, TaskID: updated.ID})
	s.notifier.Success("Task updated successfully!")
	return nil
}

// Delete removes the task on the gateway, then locally
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return s.fail("delete", id, "Failed to delete task. Please try again.", ErrInvalidID)
	}

	if err := s.gateway.Delete(ctx, id); err != nil {
		return s.fail("delete", id, "Failed to delete task. Please try again.", err)
	}

	s.mu.Lock()
	s.removeLocked(id)
	s.mu.Unlock()

	s.log.Info("Task deleted", logger.Fields{"task_id": id})
	s.emit(Event{Kind: EventDeleted, TaskID: id})
	s.notifier.Success("Task deleted successfully!")
	return nil
}

// Execute asks the gateway to run the task's command and replaces the local
// entry with the returned task, new execution included.
func (s *Store) Execute(ctx context.Context, id string) error {
	if id == "" {
		return s.fail("execute", id, "Failed to execute task. Please try again.", ErrInvalidID)
	}

	s.mu.Lock()
	s.executing[id]++
	s.mu.Unlock()
	s.emit(Event{Kind: EventExecuting, TaskID: id})

	executed, err := s.gateway.Execute(ctx, id)

	s.mu.Lock()
	if s.executing[id]--; s.executing[id] <= 0 {
		delete(s.executing, id)
	}
	if err == nil {
		s.putLocked(*executed)
	}
	s.mu.Unlock()

	if err != nil {
		s.emit(Event{Kind: EventExecuting, TaskID: id})
		return s.fail("execute", id, "Failed to execute task. Please try again.", err)
	}

	s.log.Info("Task executed", logger.Fields{
		"task_id":    executed.ID,
		"executions": len(executed.Executions),
	})
	s.emit(Event{Kind: EventExecuted, TaskID: executed.ID})
	s.notifier.Success("Task executed successfully!")
	return nil
}

// Refresh fetches one task by identifier and overwrites the local entry.
// A failure leaves the collection untouched.
func (s *Store) Refresh(ctx context.Context, id string) error {
	if id == "" {
		return s.fail("refresh", id, "Failed to load task. Please try again.", ErrInvalidID)
	}

	fresh, err := s.gateway.Get(ctx, id)
	if err != nil {
		return s.fail("refresh", id, "Failed to load task. Please try again.", err)
	}

	s.put(*fresh)
	s.emit(Event{Kind: EventRefreshed, TaskID: fresh.ID})
	return nil
}

// Tasks returns the collection in gateway order
func (s *Store) Tasks() []task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]task.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Task returns one task by identifier
func (s *Store) Task(id string) (task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, false
	}
	return t.Clone(), true
}

// Len returns the number of tasks held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Loading reports whether a list or search request is outstanding
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetching > 0
}

// SearchTerm returns the most recent term passed to SetSearchTerm
func (s *Store) SearchTerm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchTerm
}

// Executing reports whether an execute request for id is outstanding
func (s *Store) Executing(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executing[id] > 0
}

// Subscribe returns a channel of change events and a func that ends the
// subscription. Events are dropped for subscribers that fall behind; read the
// store's state after each event rather than relying on event contents.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	id := uuid.New().String()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	s.subMu.Lock()
	if closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Store) beginFetch() {
	s.mu.Lock()
	s.fetching++
	s.mu.Unlock()
	s.emit(Event{Kind: EventLoading})
}

func (s *Store) finishFetch(op, term string, tasks []task.Task, err error, failMsg string) error {
	s.mu.Lock()
	s.fetching--
	if err != nil {
		s.tasks = make(map[string]task.Task)
		s.order = nil
	} else {
		s.replaceAllLocked(tasks)
	}
	count := len(s.order)
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Task fetch failed, collection cleared", logger.Fields{
			"operation": op,
			"term":      term,
			"error":     err.Error(),
		})
		s.emit(Event{Kind: EventCleared})
		s.notifier.Failure(failMsg, err)
		return fmt.Errorf("%s tasks: %w", op, err)
	}

	s.log.Debug("Task collection replaced", logger.Fields{
		"operation": op,
		"term":      term,
		"count":     count,
	})
	s.emit(Event{Kind: EventListed, Count: count})
	return nil
}

// fail logs and notifies a failed mutation. Local state is not touched.
func (s *Store) fail(op, id, msg string, err error) error {
	s.log.Warn("Task operation failed", logger.Fields{
		"operation": op,
		"task_id":   id,
		"error":     err.Error(),
	})
	s.notifier.Failure(msg, err)
	return fmt.Errorf("%s task: %w", op, err)
}

// replaceAllLocked swaps in a fresh collection. A duplicated identifier keeps
// its first position and its last value.
func (s *Store) replaceAllLocked(tasks []task.Task) {
	s.tasks = make(map[string]task.Task, len(tasks))
	s.order = make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, seen := s.tasks[t.ID]; !seen {
			s.order = append(s.order, t.ID)
		}
		s.tasks[t.ID] = t.Clone()
	}
}

func (s *Store) put(t task.Task) {
	s.mu.Lock()
	s.putLocked(t)
	s.mu.Unlock()
}

// putLocked overwrites the entry for t.ID, appending it if it is new
func (s *Store) putLocked(t task.Task) {
	if _, exists := s.tasks[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = t.Clone()
}

func (s *Store) removeLocked(id string) {
	if _, exists := s.tasks[id]; !exists {
		return
	}
	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) emit(e Event) {
	e.At = s.now()

	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is behind; it will catch up from the next snapshot read
		}
	}
}
