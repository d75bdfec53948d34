package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ApplyFunc hands one payment notification to the processor. A nil
// return retires the task; any error reschedules it with backoff until
// MaxRetries is exhausted, after which the task lands in the dead
// letter queue for manual reconciliation.
type ApplyFunc func(ctx context.Context, providerEventID string, reservationID int64, kind, payload string) error

// redeliveryTask is the serialized queue item.
type redeliveryTask struct {
	ProviderEventID string    `json:"provider_event_id"`
	ReservationID   int64     `json:"reservation_id"`
	Kind            string    `json:"kind"`
	Payload         string    `json:"payload"`
	Attempt         int       `json:"attempt"`
	NextRetryAt     time.Time `json:"next_retry_at"`
}

// RedeliveryWorker retries payment events whose first application
// failed transiently (store race, upstream hiccup). It mirrors the
// provider's own at-least-once redelivery for events accepted into the
// process but not yet applied. Redis backs the queue when available;
// otherwise an in-memory list does (lost on restart, at which point the
// provider's redelivery covers the gap).
type RedeliveryWorker struct {
	apply        ApplyFunc
	redis        *redis.Client
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	queueKey     string
	deadKey      string
	logger       *zerolog.Logger

	mu     sync.Mutex
	memory []redeliveryTask
}

func NewRedeliveryWorker(apply ApplyFunc, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *RedeliveryWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &RedeliveryWorker{
		apply:        apply,
		redis:        redisClient,
		retryPolicy:  retry,
		pollInterval: 2 * time.Second,
		queueKey:     "payment_events:retry",
		deadKey:      "payment_events:deadletter",
		logger:       logger,
	}
}

// Enqueue schedules a failed event for redelivery.
func (w *RedeliveryWorker) Enqueue(ctx context.Context, providerEventID string, reservationID int64, kind, payload string) error {
	if providerEventID == "" {
		return errors.New("provider event id is required")
	}

	task := redeliveryTask{
		ProviderEventID: providerEventID,
		ReservationID:   reservationID,
		Kind:            kind,
		Payload:         payload,
		Attempt:         1,
		NextRetryAt:     time.Now().Add(w.retryPolicy.NextDelay(1)),
	}
	return w.push(ctx, task)
}

func (w *RedeliveryWorker) push(ctx context.Context, task redeliveryTask) error {
	if w.redis != nil {
		raw, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encode redelivery task: %w", err)
		}
		if err := w.redis.RPush(ctx, w.queueKey, raw).Err(); err == nil {
			return nil
		} else {
			w.logger.Warn().Err(err).Msg("redis push failed, using memory queue")
		}
	}

	w.mu.Lock()
	w.memory = append(w.memory, task)
	w.mu.Unlock()
	return nil
}

// Run polls the queue until ctx is cancelled.
func (w *RedeliveryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *RedeliveryWorker) drain(ctx context.Context) {
	for {
		task, ok := w.pop(ctx)
		if !ok {
			return
		}

		if time.Now().Before(task.NextRetryAt) {
			// Not due yet; put it back and stop this cycle.
			_ = w.push(ctx, task)
			return
		}

		err := w.apply(ctx, task.ProviderEventID, task.ReservationID, task.Kind, task.Payload)
		if err == nil {
			continue
		}

		task.Attempt++
		if task.Attempt > w.retryPolicy.MaxRetries {
			w.deadLetter(ctx, task, err)
			continue
		}
		task.NextRetryAt = time.Now().Add(w.retryPolicy.NextDelay(task.Attempt))
		w.logger.Warn().Err(err).
			Str("provider_event_id", task.ProviderEventID).
			Int("attempt", task.Attempt).
			Msg("payment event redelivery failed, rescheduled")
		_ = w.push(ctx, task)
	}
}

func (w *RedeliveryWorker) pop(ctx context.Context) (redeliveryTask, bool) {
	if w.redis != nil {
		raw, err := w.redis.LPop(ctx, w.queueKey).Result()
		if err == nil {
			var task redeliveryTask
			if jsonErr := json.Unmarshal([]byte(raw), &task); jsonErr == nil {
				return task, true
			}
			w.logger.Error().Str("raw", raw).Msg("malformed redelivery task dropped")
			return redeliveryTask{}, false
		}
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn().Err(err).Msg("redis pop failed, using memory queue")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.memory) == 0 {
		return redeliveryTask{}, false
	}
	task := w.memory[0]
	w.memory = w.memory[1:]
	return task, true
}

func (w *RedeliveryWorker) deadLetter(ctx context.Context, task redeliveryTask, cause error) {
	w.logger.Error().Err(cause).
		Str("provider_event_id", task.ProviderEventID).
		Int64("reservation_id", task.ReservationID).
		Msg("payment event exhausted retries, dead-lettered")

	if w.redis == nil {
		return
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.RPush(ctx, w.deadKey, raw).Err(); err != nil {
		w.logger.Error().Err(err).Msg("dead letter push failed")
	}
}

// Pending reports queued task counts for tests and introspection.
func (w *RedeliveryWorker) Pending(ctx context.Context) int {
	total := 0
	if w.redis != nil {
		if n, err := w.redis.LLen(ctx, w.queueKey).Result(); err == nil {
			total += int(n)
		}
	}
	w.mu.Lock()
	total += len(w.memory)
	w.mu.Unlock()
	return total
}
