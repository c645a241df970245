package task

import (
	"fmt"
	"strings"
	"time"
)

// Execution is one timestamped run of a task's command
type Execution struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Output    string    `json:"output"`
}

// Duration returns the run time, clamped at zero
func (e Execution) Duration() time.Duration {
	d := e.EndTime.Sub(e.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// LooksFailed reports whether the captured output mentions an error
func (e Execution) LooksFailed() bool {
	return strings.Contains(e.Output, "error") || strings.Contains(e.Output, "Error")
}

// FormatDuration renders a run time for history views: milliseconds under a
// second, seconds with two decimals under a minute, minutes and seconds beyond.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		minutes := int64(d / time.Minute)
		seconds := int64((d % time.Minute).Round(time.Second) / time.Second)
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
