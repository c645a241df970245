package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes for storage
	taskStorePrefix = "taskdesk:task:"
	taskIndexKey    = "taskdesk:index:tasks"

	// Optimistic transaction attempts for AppendExecution
	maxTxRetries = 5
)

// RedisStorage implements Storage using one key per task plus a sorted-set
// index scored by first-save time
type RedisStorage struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStorage creates a new Redis storage backend
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{
		client: client,
		now:    time.Now,
	}
}

// SaveTask persists a task to Redis. The index keeps the original position
// when an existing task is replaced.
func (rs *RedisStorage) SaveTask(ctx context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("invalid task")
	}

	stored := t.Clone()
	if stored.Executions == nil {
		stored.Executions = []task.Execution{}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskStorePrefix+t.ID, data, 0)
		pipe.ZAddNX(ctx, taskIndexKey, redis.Z{
			Score:  float64(rs.now().UnixNano()),
			Member: t.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID
func (rs *RedisStorage) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	data, err := rs.client.Get(ctx, taskStorePrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return decodeTask(data)
}

// ListTasks returns every task in creation order
func (rs *RedisStorage) ListTasks(ctx context.Context) ([]*task.Task, error) {
	taskIDs, err := rs.client.ZRange(ctx, taskIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get task IDs: %w", err)
	}
	if len(taskIDs) == 0 {
		return []*task.Task{}, nil
	}

	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = taskStorePrefix + id
	}

	values, err := rs.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without data; skip it
			continue
		}
		t, err := decodeTask([]byte(raw))
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// SearchByName filters ListTasks by a case-insensitive substring of the name
func (rs *RedisStorage) SearchByName(ctx context.Context, term string) ([]*task.Task, error) {
	all, err := rs.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return all, nil
	}

	matches := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Name), needle) {
			matches = append(matches, t)
		}
	}
	return matches, nil
}

// AppendExecution adds exec to the task's history inside a WATCH transaction
// so concurrent runs of the same task do not lose records
func (rs *RedisStorage) AppendExecution(ctx context.Context, taskID string, exec task.Execution) (*task.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	key := taskStorePrefix + taskID
	var updated *task.Task

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		if err != nil {
			return err
		}

		t, err := decodeTask(data)
		if err != nil {
			return err
		}
		t.Executions = append(t.Executions, exec)

		out, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = t
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := rs.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to append execution: %w", err)
	}

	return nil, fmt.Errorf("failed to append execution: too many concurrent updates to %s", taskID)
}

// DeleteTask removes a task and its index entry
func (rs *RedisStorage) DeleteTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	var removed *redis.IntCmd
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, taskStorePrefix+taskID)
		pipe.ZRem(ctx, taskIndexKey, taskID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	return nil
}

// Ping checks the Redis connection
func (rs *RedisStorage) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rs *RedisStorage) Close() error {
	// The caller owns the client; it may be shared
	return nil
}

func decodeTask(data []byte) (*task.Task, error) {
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if t.Executions == nil {
		t.Executions = []task.Execution{}
	}
	return &t, nil
}
