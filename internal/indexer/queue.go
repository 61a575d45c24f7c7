package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"RwaLedger/internal/event"
	"RwaLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TaskStatus tracks a mirror task through the retry queue.
type TaskStatus int32

const (
	TaskPending TaskStatus = iota
	TaskProcessing
	TaskProcessed
	TaskFailed
	TaskDeadLetter
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskProcessing:
		return "processing"
	case TaskProcessed:
		return "processed"
	case TaskFailed:
		return "failed"
	case TaskDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// TaskKey identifies an emitted event. The core emits each event exactly
// once, but delivery through NATS is at-least-once, so the queue dedups
// on this key.
type TaskKey struct {
	EventType event.EventType
	TxHash    string
	Block     uint64
}

// Task is one event waiting to be mirrored into the relational store.
type Task struct {
	ID        string
	Key       TaskKey
	Sequence  int64
	Timestamp int64
	Payload   json.RawMessage
	Attempts  int
	Status    TaskStatus
}

// MirrorStore applies one event to the relational mirror. Apply must be
// idempotent: the queue redelivers on transient failure.
type MirrorStore interface {
	Apply(ctx context.Context, task *Task) error
}

// Queue is the at-least-once, bounded-retry pipeline between the event
// stream and the relational mirror. Tasks that exhaust their attempts
// are parked as dead letters instead of blocking the stream.
type Queue struct {
	store       MirrorStore
	tasks       chan *Task
	maxAttempts int
	retryDelay  time.Duration
	metrics     *observability.Metrics
	log         zerolog.Logger

	mu          sync.Mutex
	seen        map[TaskKey]struct{}
	deadLetters []*Task
}

func NewQueue(
	store MirrorStore,
	depth int,
	maxAttempts int,
	retryDelay time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Queue {
	if depth <= 0 {
		depth = 1024
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{
		store:       store,
		tasks:       make(chan *Task, depth),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		metrics:     metrics,
		log:         log,
		seen:        make(map[TaskKey]struct{}),
	}
}

// Enqueue admission errors. A duplicate is terminal for the delivery; a
// full queue is transient and the delivery should be retried.
var (
	ErrDuplicateTask = errors.New("task already enqueued for key")
	ErrQueueFull     = errors.New("indexer queue full")
)

// Enqueue admits an event for mirroring. Duplicates (same event type,
// tx hash, block) return ErrDuplicateTask; a full queue returns
// ErrQueueFull with the dedup mark released so a redelivery can retry.
func (q *Queue) Enqueue(key TaskKey, sequence, timestamp int64, payload json.RawMessage) error {
	q.mu.Lock()
	if _, dup := q.seen[key]; dup {
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.IndexerTasks.WithLabelValues(key.EventType.String(), "duplicate").Inc()
		}
		return ErrDuplicateTask
	}
	q.seen[key] = struct{}{}
	q.mu.Unlock()

	task := &Task{
		ID:        uuid.NewString(),
		Key:       key,
		Sequence:  sequence,
		Timestamp: timestamp,
		Payload:   payload,
		Status:    TaskPending,
	}

	select {
	case q.tasks <- task:
		if q.metrics != nil {
			q.metrics.IndexerQueueDepth.Set(float64(len(q.tasks)))
		}
		return nil
	default:
		q.mu.Lock()
		delete(q.seen, key)
		q.mu.Unlock()
		q.log.Warn().
			Str("event_type", key.EventType.String()).
			Int64("sequence", sequence).
			Msg("indexer queue full, delivery deferred")
		return ErrQueueFull
	}
}

// Run drains tasks until ctx is cancelled. Each task is applied with
// bounded retry; exhaustion parks it in the dead-letter list.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-q.tasks:
			if q.metrics != nil {
				q.metrics.IndexerQueueDepth.Set(float64(len(q.tasks)))
			}
			q.process(ctx, task)
		}
	}
}

func (q *Queue) process(ctx context.Context, task *Task) {
	task.Status = TaskProcessing

	for task.Attempts < q.maxAttempts {
		task.Attempts++

		err := q.store.Apply(ctx, task)
		if err == nil {
			task.Status = TaskProcessed
			if q.metrics != nil {
				q.metrics.IndexerTasks.WithLabelValues(task.Key.EventType.String(), "processed").Inc()
			}
			return
		}

		task.Status = TaskFailed
		q.log.Warn().
			Err(err).
			Str("event_type", task.Key.EventType.String()).
			Str("tx_hash", task.Key.TxHash).
			Int("attempt", task.Attempts).
			Msg("mirror apply failed")

		if task.Attempts >= q.maxAttempts {
			break
		}

		if q.metrics != nil {
			q.metrics.IndexerRetries.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}

	task.Status = TaskDeadLetter
	q.mu.Lock()
	q.deadLetters = append(q.deadLetters, task)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.IndexerDeadLetters.Inc()
		q.metrics.IndexerTasks.WithLabelValues(task.Key.EventType.String(), "dead_letter").Inc()
	}
	q.log.Error().
		Str("event_type", task.Key.EventType.String()).
		Str("tx_hash", task.Key.TxHash).
		Uint64("block", task.Key.Block).
		Msg("task dead-lettered after exhausting retries")
}

// DeadLetters returns a copy of the parked tasks for inspection.
func (q *Queue) DeadLetters() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}
