package task

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const commandPreviewLength = 50

// Summary holds the derived columns shown for a task in list views
type Summary struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Owner          string     `json:"owner"`
	Command        string     `json:"command"`
	CommandPreview string     `json:"commandPreview"`
	ExecutionCount int        `json:"executionCount"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
}

// ExecutionView is a single history entry prepared for display
type ExecutionView struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  string    `json:"duration"`
	Output    string    `json:"output"`
	Failed    bool      `json:"failed"`
}

// Summarize computes the list columns for a task
func Summarize(t Task) Summary {
	s := Summary{
		ID:             t.ID,
		Name:           t.Name,
		Owner:          t.Owner,
		Command:        t.Command,
		CommandPreview: PreviewCommand(t.Command),
		ExecutionCount: len(t.Executions),
	}
	if last, ok := t.LastExecution(); ok {
		end := last.EndTime
		s.LastRun = &end
	}
	return s
}

// PreviewCommand truncates long commands for table cells
func PreviewCommand(cmd string) string {
	r := []rune(cmd)
	if len(r) <= commandPreviewLength {
		return cmd
	}
	return fmt.Sprintf("%s...", string(r[:commandPreviewLength]))
}

// History returns the task's executions newest first. The task is not modified.
func History(t Task) []ExecutionView {
	views := make([]ExecutionView, 0, len(t.Executions))
	for _, e := range t.Executions {
		views = append(views, ExecutionView{
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			Duration:  FormatDuration(e.Duration()),
			Output:    e.Output,
			Failed:    e.LooksFailed(),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].StartTime.After(views[j].StartTime)
	})
	return views
}

// SortKey selects a list ordering
type SortKey string

const (
	SortNone       SortKey = ""
	SortByName     SortKey = "name"
	SortByOwner    SortKey = "owner"
	SortExecutions SortKey = "executions"
)

// ParseSortKey accepts the query-string form of a sort key
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortNone, SortByName, SortByOwner, SortExecutions:
		return k, nil
	default:
		return SortNone, fmt.Errorf("unknown sort key: %s", s)
	}
}

// SortTasks orders tasks in place. SortNone keeps the gateway order.
func SortTasks(tasks []Task, key SortKey) {
	var less func(a, b Task) bool
	switch key {
	case SortByName:
		less = func(a, b Task) bool { return a.Name < b.Name }
	case SortByOwner:
		less = func(a, b Task) bool { return a.Owner < b.Owner }
	case SortExecutions:
		less = func(a, b Task) bool { return len(a.Executions) < len(b.Executions) }
	default:
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
}
