// Package delayqueue implements a delayed-task consumer over Redis sorted
// sets. Tasks are scored by their execution timestamp; a polling loop hands
// tasks whose time has come to the handler registered for their type and
// removes them only after the handler succeeds, so a failed task is retried
// on a later poll. At-least-once delivery: handlers must be idempotent.
package delayqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	rlerrors "github.com/mirkobrombin/go-redlease/v1/errors"
	"github.com/mirkobrombin/go-redlease/v1/metrics"
)

const (
	zsetKeyPrefix = "task:delay:"
	// zsetGrace keeps the sorted set alive past the furthest deadline so
	// unconsumed tasks do not linger in Redis forever.
	zsetGrace = time.Hour

	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultWorkers      = 5
)

// Handler processes tasks of a single type.
type Handler interface {
	// Handle is invoked once a task's execution time has passed. Returning an
	// error leaves the task queued for a later retry.
	Handle(ctx context.Context, taskID string) error
	// TaskType identifies which queued tasks this handler receives.
	TaskType() string
}

// Consumer polls Redis for due tasks and dispatches them to their handlers.
type Consumer struct {
	client *redis.Client

	handlers     map[string]Handler
	pollInterval time.Duration
	batchSize    int
	workers      int

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPollInterval sets how often due tasks are scanned for.
func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBatchSize caps how many due tasks a single poll takes per task type.
func WithBatchSize(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithWorkers caps how many tasks are handled concurrently.
func WithWorkers(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New returns a Consumer dispatching to the given handlers. Registering two
// handlers for the same task type is a programmer error.
func New(client *redis.Client, handlers []Handler, opts ...ConsumerOption) (*Consumer, error) {
	c := &Consumer{
		client:       client,
		handlers:     make(map[string]Handler, len(handlers)),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		workers:      defaultWorkers,
	}
	for _, h := range handlers {
		if _, ok := c.handlers[h.TaskType()]; ok {
			return nil, rlerrors.ErrDuplicateHandler
		}
		c.handlers[h.TaskType()] = h
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Add schedules taskID of taskType to run after delay. An empty taskID gets a
// generated one; the effective ID is returned either way.
func (c *Consumer) Add(ctx context.Context, taskType, taskID string, delay time.Duration) (string, error) {
	if _, ok := c.handlers[taskType]; !ok {
		return "", rlerrors.ErrUnknownTaskType
	}
	if taskID == "" {
		id, err := uuid.GenerateUUID()
		if err != nil {
			return "", err
		}
		taskID = id
	}
	key := zsetKeyPrefix + taskType
	executeAt := time.Now().Add(delay)
	if err := c.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(executeAt.UnixMilli()),
		Member: taskID,
	}).Err(); err != nil {
		return "", err
	}
	if err := c.client.Expire(ctx, key, delay+zsetGrace).Err(); err != nil {
		return "", err
	}
	return taskID, nil
}

// Start launches the polling loop. Idempotent.
func (c *Consumer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.pollLoop()
}

// Stop halts polling and waits for in-flight handlers to finish within the
// context deadline.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	close(c.stopCh)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.consumeDue(context.Background())
		}
	}
}

func (c *Consumer) consumeDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for taskType, handler := range c.handlers {
		key := zsetKeyPrefix + taskType
		ids, err := c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:    "0",
			Max:    now,
			Offset: 0,
			Count:  int64(c.batchSize),
		}).Result()
		if err != nil {
			continue
		}
		for _, id := range ids {
			id := id
			handler := handler
			g.Go(func() error {
				if err := handler.Handle(gctx, id); err != nil {
					metrics.TasksFailedCounter.Inc()
					return nil
				}
				// Remove only after success so failures retry next poll.
				if err := c.client.ZRem(gctx, key, id).Err(); err != nil {
					return nil
				}
				metrics.TasksProcessedCounter.Inc()
				return nil
			})
		}
	}
	_ = g.Wait()
}
