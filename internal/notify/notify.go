// Package notify carries transient, user-facing outcome messages from the task
// store to whatever presentation layer is attached.
package notify

import (
	"sync"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/logger"
)

// Feed defaults, matching the console's toast lifetime
const (
	DefaultTTL      = 5 * time.Second
	DefaultCapacity = 20
)

// Kind distinguishes success from failure notifications
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "error"
)

// Notification is one message shown to the user
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives operation outcomes
type Notifier interface {
	Success(msg string)
	Failure(msg string, err error)
}

// Discard drops every notification
type Discard struct{}

func (Discard) Success(string)        {}
func (Discard) Failure(string, error) {}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier on the given logger, or the "notify"
// component logger when nil.
func NewLogNotifier(l *logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.ForComponent("notify")
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Success(msg string) {
	n.log.Info(msg)
}

func (n *LogNotifier) Failure(msg string, err error) {
	fields := logger.Fields{}
	if err != nil {
		fields["error"] = err.Error()
	}
	n.log.Error(msg, fields)
}

// Feed keeps the most recent notifications in memory. Entries expire after
// ttl and at most capacity are kept; nothing is persisted.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewFeed creates a feed. A non-positive ttl keeps entries until evicted by capacity.
func NewFeed(ttl time.Duration, capacity int) *Feed {
	if capacity < 1 {
		capacity = 1
	}
	return &Feed{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func (f *Feed) Success(msg string) {
	f.push(Notification{Kind: KindSuccess, Message: msg})
}

func (f *Feed) Failure(msg string, err error) {
	n := Notification{Kind: KindFailure, Message: msg}
	if err != nil {
		n.Detail = err.Error()
	}
	f.push(n)
}

func (f *Feed) push(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n.At = f.now()
	f.items = append(f.items, n)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

// Recent returns unexpired notifications, oldest first
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expireLocked()
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) expireLocked() {
	if f.ttl <= 0 {
		return
	}
	cutoff := f.now().Add(-f.ttl)
	i := 0
	for i < len(f.items) && f.items[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		f.items = append([]Notification(nil), f.items[i:]...)
	}
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

func (m Multi) Success(msg string) {
	for _, n := range m {
		n.Success(msg)
	}
}

func (m Multi) Failure(msg string, err error) {
	for _, n := range m {
		n.Failure(msg, err)
	}
}
