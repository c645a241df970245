package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/farhan-ahmed1/taskdesk/internal/gateway"
	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/monitoring"
	"github.com/farhan-ahmed1/taskdesk/internal/notify"
	"github.com/farhan-ahmed1/taskdesk/internal/storage"
	"github.com/farhan-ahmed1/taskdesk/internal/store"
	"github.com/farhan-ahmed1/taskdesk/pkg/client"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRunner answers every command without spawning a process
type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, command string) (string, error) {
	return "ran " + command, nil
}

type consoleEnv struct {
	srv     *Server
	store   *store.Store
	gateway *httptest.Server
	feed    *notify.Feed
	metrics *monitoring.Metrics
}

// setupConsole wires the console to a real store, client and reference
// gateway backed by miniredis
func setupConsole(t *testing.T) *consoleEnv {
	t.Helper()

	quiet := logger.New("error", "text", "test")
	quiet.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	gw := gateway.NewServer(gateway.Config{
		Storage: storage.NewRedisStorage(rc),
		Runner:  stubRunner{},
	})
	gwSrv := httptest.NewServer(gw.Handler())
	t.Cleanup(gwSrv.Close)

	metrics := monitoring.NewMetrics()
	cl, err := client.New(client.Config{
		BaseURL: gwSrv.URL,
		Timeout: 2 * time.Second,
		Metrics: metrics,
		Logger:  quiet,
	})
	require.NoError(t, err)

	feed := notify.NewFeed(0, 50)
	st, err := store.New(cl, store.Options{
		Debounce: 20 * time.Millisecond,
		Notifier: feed,
		Metrics:  metrics,
		Logger:   quiet,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := NewServer(Config{Store: st, Metrics: metrics, Feed: feed})
	srv.logger.SetOutput(io.Discard)

	return &consoleEnv{srv: srv, store: st, gateway: gwSrv, feed: feed, metrics: metrics}
}

func (e *consoleEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *consoleEnv) list(t *testing.T, query string) TaskList {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/tasks"+query, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out TaskList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *consoleEnv) create(t *testing.T, name, owner, command string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/tasks", map[string]string{
		"name": name, "owner": owner, "command": command,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, s := range e.list(t, "").Tasks {
		if s.Name == name {
			return s.ID
		}
	}
	t.Fatalf("created task %q not listed", name)
	return ""
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) MutationResult {
	t.Helper()
	var res MutationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestServer_ListEmpty(t *testing.T) {
	env := setupConsole(t)

	out := env.list(t, "")
	assert.Empty(t, out.Tasks)
	assert.Equal(t, 0, out.Total)
	assert.False(t, out.Loading)
}

func TestServer_CreateTask(t *testing.T) {
	env := setupConsole(t)

	id := env.create(t, "Daily Backup", "ops", "tar czf /tmp/b.tgz /srv")
	assert.True(t, strings.HasPrefix(id, "daily-backup-"))

	out := env.list(t, "")
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, 0, out.Tasks[0].ExecutionCount)
	assert.Nil(t, out.Tasks[0].LastRun)

	w := env.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Contains(t, w.Body.String(), "Task created successfully!")
}

func TestServer_CreateTaskRejected(t *testing.T) {
	env := setupConsole(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid json", "{"},
		{"short name", map[string]string{"name": "x", "owner": "ops", "command": "true"}},
		{"missing owner", map[string]string{"name": "alpha", "command": "true"}},
		{"long command", map[string]string{"name": "alpha", "owner": "ops", "command": strings.Repeat("a", 501)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			res := decodeResult(t, w)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}

	assert.Empty(t, env.list(t, "").Tasks)
}

func TestServer_UpdateTask(t *testing.T) {
	env := setupConsole(t)
	id := env.create(t, "alpha", "ops", "true")

	w := env.do(t, http.MethodPut, "/api/tasks/"+id, map[string]string{
		"name": "alpha renamed", "owner": "platform", "command": "ls",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeResult(t, w).Success)

	out := env.list(t, "")
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, id, out.Tasks[0].ID)
	assert.Equal(t, "alpha renamed", out.Tasks[0].Name)
	assert.Equal(t, "platform", out.Tasks[0].Owner)
}

func TestServer_UpdateUnknownTask(t *testing.T) {
	env := setupConsole(t)

	w := env.do(t, http.MethodPut, "/api/tasks/missing", map[string]string{
		"name": "alpha", "owner": "ops", "command": "true",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_DeleteTask(t *testing.T) {
	env := setupConsole(t)
	id := env.create(t, "alpha", "ops", "true")

	w := env.do(t, http.MethodDelete, "/api/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Empty(t, env.list(t, "").Tasks)

	w = env.do(t, http.MethodDelete, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decodeResult(t, w).Error, "404")
}

func TestServer_ExecuteTask(t *testing.T) {
	env := setupConsole(t)
	id := env.create(t, "alpha", "ops", "echo hi")

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/tasks/"+id+"/execute", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail TaskDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, 2, detail.Task.ExecutionCount)
	assert.NotNil(t, detail.Task.LastRun)
	require.Len(t, detail.History, 2)
	assert.Equal(t, "ran echo hi", detail.History[0].Output)
	assert.False(t, detail.Executing)
}

func TestServer_GetUnknownTask(t *testing.T) {
	env := setupConsole(t)

	w := env.do(t, http.MethodGet, "/api/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RefreshTask(t *testing.T) {
	env := setupConsole(t)
	id := env.create(t, "alpha", "ops", "true")

	w := env.do(t, http.MethodPost, "/api/tasks/"+id+"/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/tasks/missing/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Len(t, env.list(t, "").Tasks, 1)
}

func TestServer_Reload(t *testing.T) {
	env := setupConsole(t)
	env.create(t, "alpha", "ops", "true")

	w := env.do(t, http.MethodPost, "/api/tasks/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, env.list(t, "").Tasks, 1)
}

func TestServer_GatewayDown(t *testing.T) {
	env := setupConsole(t)
	env.create(t, "alpha", "ops", "true")
	env.gateway.Close()

	w := env.do(t, http.MethodPost, "/api/tasks", map[string]string{
		"name": "beta", "owner": "ops", "command": "true",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Len(t, env.list(t, "").Tasks, 1, "failed mutation keeps state")

	w = env.do(t, http.MethodPost, "/api/tasks/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, env.list(t, "").Tasks, "failed list clears state")

	w = env.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Contains(t, w.Body.String(), "Failed to load tasks. Please try again.")
}

func TestServer_SortQuery(t *testing.T) {
	env := setupConsole(t)
	env.create(t, "charlie", "ops", "true")
	env.create(t, "alpha", "zed", "true")
	env.create(t, "bravo", "amy", "true")

	names := func(out TaskList) []string {
		var got []string
		for _, s := range out.Tasks {
			got = append(got, s.Name)
		}
		return got
	}

	assert.Equal(t, []string{"charlie", "alpha", "bravo"}, names(env.list(t, "")))
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(env.list(t, "?sort=name")))
	assert.Equal(t, []string{"bravo", "charlie", "alpha"}, names(env.list(t, "?sort=owner")))

	w := env.do(t, http.MethodGet, "/api/tasks?sort=priority", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Search(t *testing.T) {
	env := setupConsole(t)
	env.create(t, "Daily Backup", "ops", "true")
	env.create(t, "Log Rotate", "ops", "true")

	w := env.do(t, http.MethodPut, "/api/search", map[string]string{"term": "back"})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		out := env.list(t, "")
		return len(out.Tasks) == 1 && out.Tasks[0].Name == "Daily Backup" && !out.Loading
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "back", env.list(t, "").SearchTerm)

	w = env.do(t, http.MethodPut, "/api/search", map[string]string{"term": ""})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		return len(env.list(t, "").Tasks) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_SearchBadBody(t *testing.T) {
	env := setupConsole(t)

	w := env.do(t, http.MethodPut, "/api/search", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	env := setupConsole(t)
	env.create(t, "alpha", "ops", "true")

	w := env.do(t, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.TotalCalls)
	require.Len(t, snap.Operations, 1)
	assert.Equal(t, client.OpCreate, snap.Operations[0].Operation)
}

func TestServer_Health(t *testing.T) {
	env := setupConsole(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestServer_CORSPreflight(t *testing.T) {
	env := setupConsole(t)

	w := env.do(t, http.MethodOptions, "/api/tasks", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StopBeforeStart(t *testing.T) {
	env := setupConsole(t)
	assert.NoError(t, env.srv.Stop(context.Background()))
	assert.NoError(t, env.srv.Stop(context.Background()))
}
