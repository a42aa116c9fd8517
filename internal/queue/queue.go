// Package queue implements the reliable work queue shared with the upstream
// signal collector: an atomic pending->processing move, a completed set for
// dedup, a failed hash for the operator, and a dead-letter list for payloads
// that cannot be parsed.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/cache"
)

const (
	deadLetterMax   = 100
	deadLetterTrunc = 1000
	completedMax    = 10000
	completedTrimBy = 1000
)

// Queue wraps the redis-backed reliable queue.
type Queue struct {
	rdb redis.UniversalClient
}

// New constructs a Queue over the given redis client.
func New(rdb redis.UniversalClient) *Queue {
	return &Queue{rdb: rdb}
}

// PopTask atomically moves one payload from pending to processing and parses
// it. Returns (nil, nil) when the wait times out, when the payload was
// dead-lettered, or when the thread is already completed (dedup).
func (q *Queue) PopTask(ctx context.Context, timeout time.Duration) (*Task, error) {
	raw, err := q.rdb.BRPopLPush(ctx, cache.QueuePendingKey, cache.QueueProcessingKey, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: brpoplpush: %w", err)
	}

	task, err := parseTask(raw)
	if err != nil {
		// Unparseable payloads cannot be completed or failed by thread_id.
		q.rdb.LRem(ctx, cache.QueueProcessingKey, 1, raw)
		q.DeadLetter(ctx, raw, err.Error())
		return nil, nil
	}

	completed, err := q.rdb.SIsMember(ctx, cache.QueueCompletedKey, task.ThreadID).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: completed check: %w", err)
	}
	if completed {
		logx.WithContext(ctx).Infof("queue: skipping already completed %s", task.ThreadID)
		q.rdb.LRem(ctx, cache.QueueProcessingKey, 1, raw)
		return nil, nil
	}

	return task, nil
}

// Complete removes the task from processing and records its thread id in the
// completed set.
func (q *Queue) Complete(ctx context.Context, task *Task) error {
	if task.raw != "" {
		removed, err := q.rdb.LRem(ctx, cache.QueueProcessingKey, 1, task.raw).Result()
		if err != nil {
			return fmt.Errorf("queue: complete lrem: %w", err)
		}
		if removed == 0 {
			logx.WithContext(ctx).Slowf("queue: task not found in processing: %s", task.ThreadID)
		}
	}
	if err := q.rdb.SAdd(ctx, cache.QueueCompletedKey, task.ThreadID).Err(); err != nil {
		return fmt.Errorf("queue: complete sadd: %w", err)
	}
	q.trimCompleted(ctx)
	return nil
}

// Fail removes the task from processing and writes a failed record keyed by
// thread id. The operator re-enqueues from there.
func (q *Queue) Fail(ctx context.Context, task *Task, errorKind, message string) error {
	if task.raw != "" {
		if err := q.rdb.LRem(ctx, cache.QueueProcessingKey, 1, task.raw).Err(); err != nil {
			return fmt.Errorf("queue: fail lrem: %w", err)
		}
	}

	record, err := json.Marshal(map[string]string{
		"error_kind": errorKind,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("queue: fail marshal: %w", err)
	}
	if err := q.rdb.HSet(ctx, cache.QueueFailedKey, task.ThreadID, record).Err(); err != nil {
		return fmt.Errorf("queue: fail hset: %w", err)
	}
	return nil
}

// DeadLetter records an unparseable payload, truncated, and bounds the list.
func (q *Queue) DeadLetter(ctx context.Context, raw, reason string) {
	if len(raw) > deadLetterTrunc {
		raw = raw[:deadLetterTrunc]
	}
	entry, err := json.Marshal(map[string]string{
		"raw_data":  raw,
		"reason":    reason,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("queue: dead letter marshal: %v", err)
		return
	}

	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, cache.QueueDeadLetterKey, entry)
	pipe.LTrim(ctx, cache.QueueDeadLetterKey, 0, deadLetterMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.WithContext(ctx).Errorf("queue: dead letter push: %v", err)
		return
	}
	logx.WithContext(ctx).Slowf("queue: dead lettered payload: %s", reason)
}

// RemoveProcessing drops the task's payload from the processing list without
// marking it completed or failed (dead-letter path).
func (q *Queue) RemoveProcessing(ctx context.Context, task *Task) {
	if task.raw == "" {
		return
	}
	if err := q.rdb.LRem(ctx, cache.QueueProcessingKey, 1, task.raw).Err(); err != nil {
		logx.WithContext(ctx).Errorf("queue: remove processing %s: %v", task.ThreadID, err)
	}
}

// Reclaim drains stale processing entries back into pending on startup,
// preserving order. Entries already completed are dropped. Must run before
// the consumer starts popping.
func (q *Queue) Reclaim(ctx context.Context) error {
	items, err := q.rdb.LRange(ctx, cache.QueueProcessingKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("queue: reclaim lrange: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	logx.WithContext(ctx).Infof("queue: reclaiming %d stale processing item(s)", len(items))

	// processing holds the most recently popped entry at index 0; pushing from
	// there onto the pop end of pending leaves the oldest entry to pop first.
	for i := 0; i < len(items); i++ {
		raw := items[i]
		threadID := extractThreadID(raw)

		if threadID != "" {
			completed, err := q.rdb.SIsMember(ctx, cache.QueueCompletedKey, threadID).Result()
			if err != nil {
				return fmt.Errorf("queue: reclaim completed check: %w", err)
			}
			if completed {
				q.rdb.LRem(ctx, cache.QueueProcessingKey, 1, raw)
				continue
			}
		}

		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, cache.QueueProcessingKey, 1, raw)
		pipe.RPush(ctx, cache.QueuePendingKey, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue: reclaim requeue: %w", err)
		}
	}
	return nil
}

// Push enqueues a task payload at the back of pending. Used by the scheduler
// when a delayed reanalysis comes due.
func (q *Queue) Push(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: push marshal: %w", err)
	}
	if err := q.rdb.LPush(ctx, cache.QueuePendingKey, payload).Err(); err != nil {
		return fmt.Errorf("queue: push: %w", err)
	}
	return nil
}

// Stats reports queue depths for logs and the operator surface.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, cache.QueuePendingKey)
	processing := pipe.LLen(ctx, cache.QueueProcessingKey)
	scheduled := pipe.ZCard(ctx, cache.QueueScheduledKey)
	completed := pipe.SCard(ctx, cache.QueueCompletedKey)
	failed := pipe.HLen(ctx, cache.QueueFailedKey)
	deadLetter := pipe.LLen(ctx, cache.QueueDeadLetterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue: stats: %w", err)
	}

	return map[string]int64{
		"pending":     pending.Val(),
		"processing":  processing.Val(),
		"scheduled":   scheduled.Val(),
		"completed":   completed.Val(),
		"failed":      failed.Val(),
		"dead_letter": deadLetter.Val(),
	}, nil
}

// trimCompleted bounds the completed set. The set has no per-member age, so
// trimming removes arbitrary members once the cap is exceeded.
func (q *Queue) trimCompleted(ctx context.Context) {
	count, err := q.rdb.SCard(ctx, cache.QueueCompletedKey).Result()
	if err != nil || count <= completedMax {
		return
	}
	members, err := q.rdb.SRandMemberN(ctx, cache.QueueCompletedKey, completedTrimBy).Result()
	if err != nil || len(members) == 0 {
		return
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := q.rdb.SRem(ctx, cache.QueueCompletedKey, args...).Err(); err == nil {
		logx.WithContext(ctx).Infof("queue: trimmed %d old completed entries", len(members))
	}
}
