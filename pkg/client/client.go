package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/monitoring"
	"github.com/farhan-ahmed1/taskdesk/internal/task"
	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is where the task gateway listens unless configured otherwise
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout bounds every gateway request
	DefaultTimeout = 10 * time.Second

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 4 << 10
)

// Operation names used for logging and metrics
const (
	OpList    = "list"
	OpGet     = "get"
	OpSearch  = "search"
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpExecute = "execute"
)

var (
	// ErrTransport wraps network failures, including timeouts
	ErrTransport = errors.New("gateway unreachable")
	// ErrStatus is the sentinel behind every StatusError
	ErrStatus = errors.New("gateway returned an error status")
	// ErrMalformedResponse wraps bodies that cannot be decoded
	ErrMalformedResponse = errors.New("malformed gateway response")
)

// StatusError reports a non-2xx gateway response
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: gateway returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: gateway returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Optional collaborators
	HTTPClient *http.Client
	Metrics    *monitoring.Metrics
	Logger     *logger.Logger
}

// Client talks to the task gateway's REST API
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	http    *http.Client
	metrics *monitoring.Metrics
	log     *logger.Logger
}

// New creates a new client instance
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway base url must use http or https: %s", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 || httpClient.Timeout > config.Timeout {
		c := *httpClient
		c.Timeout = config.Timeout
		httpClient = &c
	}

	log := config.Logger
	if log == nil {
		log = logger.ForComponent("client")
	}

	return &Client{
		baseURL: base,
		timeout: config.Timeout,
		http:    httpClient,
		metrics: config.Metrics,
		log:     log,
	}, nil
}

// BaseURL returns the gateway address the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// List fetches every task
func (c *Client) List(ctx context.Context) ([]task.Task, error) {
	body, err := c.do(ctx, OpList, http.MethodGet, "/tasks", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(OpList, body)
}

// Get fetches a single task by identifier
func (c *Client) Get(ctx context.Context, id string) (*task.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%s: task id is required", OpGet)
	}
	body, err := c.do(ctx, OpGet, http.MethodGet, "/tasks", url.Values{"id": {id}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeTask(OpGet, body)
}

// Search asks the gateway for tasks whose name matches. A blank name lists everything.
func (c *Client) Search(ctx context.Context, name string) ([]task.Task, error) {
	if strings.TrimSpace(name) == "" {
		return c.List(ctx)
	}
	body, err := c.do(ctx, OpSearch, http.MethodGet, "/tasks/search", url.Values{"name": {name}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(OpSearch, body)
}

// Create sends a new task, identifier already assigned, and returns the gateway's copy
func (c *Client) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	return c.put(ctx, OpCreate, t)
}

// Update sends a full task and returns the gateway's copy
func (c *Client) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	return c.put(ctx, OpUpdate, t)
}

func (c *Client) put(ctx context.Context, op string, t *task.Task) (*task.Task, error) {
	if t == nil {
		return nil, fmt.Errorf("%s: task is required", op)
	}
	payload := *t
	if payload.Executions == nil {
		payload.Executions = []task.Execution{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal task: %w", op, err)
	}
	body, err := c.do(ctx, op, http.MethodPut, "/tasks", nil, data)
	if err != nil {
		return nil, err
	}
	return decodeTask(op, body)
}

// Delete removes a task by identifier
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%s: task id is required", OpDelete)
	}
	_, err := c.do(ctx, OpDelete, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
	return err
}

// Execute runs the task's command on the gateway and returns the task with
// the new execution appended
func (c *Client) Execute(ctx context.Context, id string) (*task.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%s: task id is required", OpExecute)
	}
	body, err := c.do(ctx, OpExecute, http.MethodPut, "/tasks/"+url.PathEscape(id)+"/execute", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeTask(OpExecute, body)
}

// do performs one request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) (body []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.New().String()
	start := time.Now()
	log := c.log.With(logger.Fields{"request_id": requestID, "operation": op})

	defer func() {
		elapsed := time.Since(start)
		if c.metrics != nil {
			c.metrics.RecordCall(op, elapsed, err)
		}
		if err != nil {
			log.Warn("Gateway request failed", logger.Fields{
				"error":    err.Error(),
				"duration": elapsed,
			})
			return
		}
		log.Debug("Gateway request completed", logger.Fields{"duration": elapsed})
	}()

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	return body, nil
}

// decodeList decodes an array of tasks. Any non-array payload is treated as
// an empty collection.
func decodeList(op string, body []byte) ([]task.Task, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []task.Task{}, nil
	}

	var tasks []task.Task
	if err := json.Unmarshal(trimmed, &tasks); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	for i := range tasks {
		if tasks[i].Executions == nil {
			tasks[i].Executions = []task.Execution{}
		}
	}
	return tasks, nil
}

func decodeTask(op string, body []byte) (*task.Task, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%s: %w: expected a task object", op, ErrMalformedResponse)
	}

	var t task.Task
	if err := json.Unmarshal(trimmed, &t); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("%s: %w: task has no id", op, ErrMalformedResponse)
	}
	if t.Executions == nil {
		t.Executions = []task.Execution{}
	}
	return &t, nil
}
