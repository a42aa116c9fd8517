package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// Outcome is the consumer-level disposition of one task.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeFail
	OutcomeDeadLetter
)

// Result tells the consumer how to settle the task at the queue layer.
type Result struct {
	Outcome   Outcome
	ErrorKind string
	Message   string
}

// Handler processes one task within the deadline carried by ctx.
type Handler func(ctx context.Context, task *Task) Result

// Consumer drives the queue: pop, dispatch, settle. Workers beyond the first
// process tasks concurrently; each worker gets its own handler instance so
// non-thread-safe dependencies (the broker client) are never shared.
type Consumer struct {
	queue          *Queue
	handlerFactory func(worker int) Handler
	workers        int
	popTimeout     time.Duration
	taskDeadline   time.Duration
}

// ConsumerConfig bundles the loop knobs.
type ConsumerConfig struct {
	Workers      int
	PopTimeout   time.Duration
	TaskDeadline time.Duration
}

// NewConsumer constructs a consumer. The factory is invoked once per worker.
func NewConsumer(q *Queue, cfg ConsumerConfig, handlerFactory func(worker int) Handler) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.TaskDeadline <= 0 {
		cfg.TaskDeadline = 90 * time.Second
	}
	return &Consumer{
		queue:          q,
		handlerFactory: handlerFactory,
		workers:        cfg.Workers,
		popTimeout:     cfg.PopTimeout,
		taskDeadline:   cfg.TaskDeadline,
	}
}

// Run reclaims stale processing entries, then consumes until ctx is
// cancelled. Queue transport errors back off exponentially instead of
// spinning.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.queue.Reclaim(ctx); err != nil {
		return err
	}

	tasks := make(chan *Task)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		handler := c.handlerFactory(i)
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for task := range tasks {
				c.dispatch(ctx, worker, handler, task)
			}
		}(i)
	}
	defer func() {
		close(tasks)
		wg.Wait()
	}()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task, err := c.queue.PopTask(ctx, c.popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logx.WithContext(ctx).Errorf("consumer: pop failed, backing off %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		if task == nil {
			continue
		}

		select {
		case tasks <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, worker int, handler Handler, task *Task) {
	taskCtx, cancel := context.WithTimeout(ctx, c.taskDeadline)
	defer cancel()

	logx.WithContext(taskCtx).Infof("consumer[%d]: processing %s (%s) retry=%d",
		worker, task.ThreadID, task.ThreadName, task.RetryCount())

	result := handler(taskCtx, task)

	// Settlement must survive the task deadline expiring.
	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer settleCancel()

	switch result.Outcome {
	case OutcomeComplete:
		if err := c.queue.Complete(settleCtx, task); err != nil {
			logx.WithContext(settleCtx).Errorf("consumer: complete %s: %v", task.ThreadID, err)
		}
	case OutcomeDeadLetter:
		c.queue.RemoveProcessing(settleCtx, task)
		c.queue.DeadLetter(settleCtx, task.Raw(), result.Message)
	case OutcomeFail:
		if err := c.queue.Fail(settleCtx, task, result.ErrorKind, result.Message); err != nil {
			logx.WithContext(settleCtx).Errorf("consumer: fail %s: %v", task.ThreadID, err)
		}
	}
}
