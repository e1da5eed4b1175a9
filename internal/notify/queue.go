// Package notify delivers committed workflow events to an outbound webhook,
// through an asynq queue when Redis is available.
package notify

import (
	"context"
	"encoding/json"

	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeNotify = "event:notify"
	queueName      = "notify"
)

// Task is one event waiting to be delivered.
type Task struct {
	Event events.Event `json:"event"`
}

// Queue defines the interface for notification task processing
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	Close() error
}

// Processor handles one task. It is the WebhookSender in production.
type Processor func(context.Context, *Task) error

// NewQueue returns an AsyncQueue when Redis is enabled and reachable and a
// SyncQueue running processor otherwise.
func NewQueue(cfg *config.RedisConfig, processor Processor) Queue {
	if cfg.Enabled {
		queue, err := NewAsyncQueue(cfg)
		if err == nil {
			logger.Infof("[NotifyQueue] Async queue initialized with Redis at %s", cfg.Addr)
			return queue
		}
		logger.Warnf("[NotifyQueue] Redis unavailable, falling back to sync mode: %v", err)
	} else {
		logger.Infof("[NotifyQueue] Sync queue initialized (Redis disabled)")
	}
	q := NewSyncQueue()
	q.SetProcessor(processor)
	return q
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements Queue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeNotify, payload),
		asynq.Queue(queueName),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("id", info.ID).Str("type", string(task.Event.Type)).Msg("[AsyncQueue] Task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements Queue by running the processor in a goroutine (no Redis)
type SyncQueue struct {
	processor Processor
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor Processor) {
	q.processor = processor
}

func (q *SyncQueue) Enqueue(_ context.Context, task *Task) error {
	if q.processor == nil {
		logger.Debug().Msg("[SyncQueue] No processor set, task dropped")
		return nil
	}

	// Detached from the request so delivery outlives it
	go func() {
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warnf("[SyncQueue] Task processing failed: %v", err)
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
