package task

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced before a task is sent to the gateway
const (
	MinNameLength    = 2
	MaxNameLength    = 100
	MinOwnerLength   = 2
	MaxOwnerLength   = 50
	MaxCommandLength = 500
)

// ErrInvalidTask is returned when a draft or task fails validation
var ErrInvalidTask = errors.New("invalid task")

var whitespaceRun = regexp.MustCompile(`\s+`)

// Task is a named, owned shell command definition plus its execution history
type Task struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Owner      string      `json:"owner"`
	Command    string      `json:"command"`
	Executions []Execution `json:"taskExecutions"`
}

// Draft holds the user-supplied fields of a task that does not exist yet
type Draft struct {
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Command string `json:"command"`
}

// NewTask builds the create payload for a draft: a generated identifier and an
// empty execution history.
func NewTask(d Draft, now time.Time) (*Task, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &Task{
		ID:         GenerateID(d.Name, now),
		Name:       d.Name,
		Owner:      d.Owner,
		Command:    d.Command,
		Executions: []Execution{},
	}, nil
}

// GenerateID derives a task identifier from its name and a creation time:
// lowercased name, whitespace runs collapsed to one hyphen, then the unix
// millisecond timestamp.
func GenerateID(name string, now time.Time) string {
	slug := whitespaceRun.ReplaceAllString(strings.ToLower(name), "-")
	return slug + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Validate checks the draft against the field limits
func (d Draft) Validate() error {
	return validateFields(d.Name, d.Owner, d.Command)
}

// Validate checks identifier presence and the field limits
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidTask)
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTask)
	}
	return validateFields(t.Name, t.Owner, t.Command)
}

func validateFields(name, owner, command string) error {
	if err := checkLength("name", name, MinNameLength, MaxNameLength); err != nil {
		return err
	}
	if err := checkLength("owner", owner, MinOwnerLength, MaxOwnerLength); err != nil {
		return err
	}
	return checkLength("command", command, 1, MaxCommandLength)
}

func checkLength(field, value string, min, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidTask, field)
	}
	n := utf8.RuneCountInString(value)
	if n < min {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidTask, field, min)
	}
	if n > max {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidTask, field, max)
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias the store's execution slice
func (t Task) Clone() Task {
	c := t
	if t.Executions != nil {
		c.Executions = make([]Execution, len(t.Executions))
		copy(c.Executions, t.Executions)
	}
	return c
}

// LastExecution returns the most recently appended execution, if any
func (t *Task) LastExecution() (Execution, bool) {
	if len(t.Executions) == 0 {
		return Execution{}, false
	}
	return t.Executions[len(t.Executions)-1], true
}

// WithDraft returns a copy of the task with the draft's fields applied.
// Identifier and executions are preserved.
func (t Task) WithDraft(d Draft) Task {
	c := t.Clone()
	c.Name = d.Name
	c.Owner = d.Owner
	c.Command = d.Command
	return c
}
