package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/cache"
)

const defaultPollInterval = 30 * time.Second

// Scheduler holds threads whose Delay decision deferred them, releasing each
// back into pending when due. Release order is ascending due time (the sorted
// set's score order, at one-second resolution). Entries with equal scores come
// out in lexicographic thread-id order, not in the order they were scheduled.
type Scheduler struct {
	rdb      redis.UniversalClient
	queue    *Queue
	interval time.Duration
	nowFn    func() time.Time
}

// SchedulerOption customises the scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval overrides the release poll cadence.
func WithPollInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSchedulerNow overrides the time source (testing).
func WithSchedulerNow(nowFn func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// NewScheduler constructs a scheduler over the shared redis client.
func NewScheduler(rdb redis.UniversalClient, queue *Queue, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		rdb:      rdb,
		queue:    queue,
		interval: defaultPollInterval,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule writes the context blob (bounded TTL) and scores the thread by its
// due time.
func (s *Scheduler) Schedule(ctx context.Context, threadID string, dueAt time.Time, sc *ScheduledContext) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("scheduler: marshal context: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, cache.ScheduledDataKey(threadID), payload, cache.ScheduledDataTTL())
	pipe.ZAdd(ctx, cache.QueueScheduledKey, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: threadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("scheduler: schedule %s: %w", threadID, err)
	}

	logx.WithContext(ctx).Infof("scheduler: %s due at %s (retry %d)",
		threadID, dueAt.UTC().Format(time.RFC3339), sc.RetryCount)
	return nil
}

// Run polls for due entries until the context is cancelled. Intended for its
// own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.Info("scheduler: stopped")
			return
		case <-ticker.C:
			if err := s.ReleaseDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logx.WithContext(ctx).Errorf("scheduler: release due: %v", err)
			}
		}
	}
}

// ReleaseDue re-queues every entry with score <= now, then removes it and its
// context blob atomically per entry. Entries completed in the meantime are
// discarded.
func (s *Scheduler) ReleaseDue(ctx context.Context) error {
	now := s.nowFn().Unix()
	due, err := s.rdb.ZRangeByScore(ctx, cache.QueueScheduledKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("scheduler: zrangebyscore: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	logx.WithContext(ctx).Infof("scheduler: %d entr(ies) due for reanalysis", len(due))

	for _, threadID := range due {
		if err := s.releaseOne(ctx, threadID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) releaseOne(ctx context.Context, threadID string) error {
	dataKey := cache.ScheduledDataKey(threadID)

	cleanup := func() error {
		pipe := s.rdb.TxPipeline()
		pipe.ZRem(ctx, cache.QueueScheduledKey, threadID)
		pipe.Del(ctx, dataKey)
		_, err := pipe.Exec(ctx)
		return err
	}

	completed, err := s.rdb.SIsMember(ctx, cache.QueueCompletedKey, threadID).Result()
	if err != nil {
		return fmt.Errorf("scheduler: completed check %s: %w", threadID, err)
	}
	if completed {
		logx.WithContext(ctx).Infof("scheduler: %s already completed, discarding", threadID)
		return cleanup()
	}

	raw, err := s.rdb.Get(ctx, dataKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("scheduler: load context %s: %w", threadID, err)
	}

	var sc *ScheduledContext
	if raw != "" {
		sc = &ScheduledContext{}
		if err := json.Unmarshal([]byte(raw), sc); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: corrupt context for %s, releasing without it: %v", threadID, err)
			sc = nil
		}
	}

	task := &Task{ThreadID: threadID, ScheduledContext: sc}
	if sc != nil {
		task.ThreadName = sc.ThreadName
	}
	if err := s.queue.Push(ctx, task); err != nil {
		return fmt.Errorf("scheduler: requeue %s: %w", threadID, err)
	}

	logx.WithContext(ctx).Infof("scheduler: released %s back to pending", threadID)
	return cleanup()
}
