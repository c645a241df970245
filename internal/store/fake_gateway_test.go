package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/task"
)

var errGatewayDown = errors.New("gateway down")

// fakeGateway is an in-memory gateway with per-operation failure injection
type fakeGateway struct {
	mu    sync.Mutex
	tasks []task.Task
	fail  map[string]error
	calls map[string]int

	// searchDelay holds search responses so ordering can be controlled
	searchDelay map[string]time.Duration
	searches    []string

	// listOverride replaces the list response when set
	listOverride []task.Task
}

func newFakeGateway(tasks ...task.Task) *fakeGateway {
	return &fakeGateway{
		tasks:       tasks,
		fail:        make(map[string]error),
		calls:       make(map[string]int),
		searchDelay: make(map[string]time.Duration),
	}
}

func (g *fakeGateway) failOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

func (g *fakeGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) searchTerms() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.searches...)
}

func (g *fakeGateway) begin(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	return g.fail[op]
}

func (g *fakeGateway) List(ctx context.Context) ([]task.Task, error) {
	if err := g.begin("list"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listOverride != nil {
		return cloneAll(g.listOverride), nil
	}
	return cloneAll(g.tasks), nil
}

func (g *fakeGateway) Get(ctx context.Context, id string) (*task.Task, error) {
	if err := g.begin("get"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tasks {
		if t.ID == id {
			c := t.Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("task %s not found", id)
}

func (g *fakeGateway) Search(ctx context.Context, name string) ([]task.Task, error) {
	if err := g.begin("search"); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.searches = append(g.searches, name)
	delay := g.searchDelay[name]
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var out []task.Task
	for _, t := range g.tasks {
		if strings.Contains(strings.ToLower(t.Name), strings.ToLower(name)) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (g *fakeGateway) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := g.begin("create"); err != nil {
		return nil, err
	}
	return g.upsert(t), nil
}

func (g *fakeGateway) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := g.begin("update"); err != nil {
		return nil, err
	}
	return g.upsert(t), nil
}

func (g *fakeGateway) upsert(t *task.Task) *task.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored := t.Clone()
	if stored.Executions == nil {
		stored.Executions = []task.Execution{}
	}
	for i := range g.tasks {
		if g.tasks[i].ID == stored.ID {
			g.tasks[i] = stored
			out := stored.Clone()
			return &out
		}
	}
	g.tasks = append(g.tasks, stored)
	out := stored.Clone()
	return &out
}

func (g *fakeGateway) Delete(ctx context.Context, id string) error {
	if err := g.begin("delete"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.tasks {
		if g.tasks[i].ID == id {
			g.tasks = append(g.tasks[:i], g.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %s not found", id)
}

func (g *fakeGateway) Execute(ctx context.Context, id string) (*task.Task, error) {
	if err := g.begin("execute"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.tasks {
		if g.tasks[i].ID == id {
			start := time.Date(2024, 5, 22, 10, 0, len(g.tasks[i].Executions), 0, time.UTC)
			g.tasks[i].Executions = append(g.tasks[i].Executions, task.Execution{
				StartTime: start,
				EndTime:   start.Add(250 * time.Millisecond),
				Output:    "ran: " + g.tasks[i].Command,
			})
			out := g.tasks[i].Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("task %s not found", id)
}

func cloneAll(tasks []task.Task) []task.Task {
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Clone())
	}
	return out
}

func sampleTask(id, name string) task.Task {
	return task.Task{
		ID:         id,
		Name:       name,
		Owner:      "ops",
		Command:    "echo " + name,
		Executions: []task.Execution{},
	}
}
