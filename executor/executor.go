package executor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quintal-io/agentdag/types"
)

// Handler is the work an agent performs for one task.
type Handler interface {
	Handle(ctx context.Context, task *types.Task) (map[string]any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, task *types.Task) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, task *types.Task) (map[string]any, error) {
	return f(ctx, task)
}

// Config tunes one executor instance.
type Config struct {
	// QueueCapacity bounds the number of pending tasks. Submissions
	// beyond it fail with EXECUTOR_QUEUE_FULL.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`
	// MaxRetries is the number of re-attempts after the first failure,
	// applied only to retryable errors.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// BaseRetryDelay scales linearly with the attempt number.
	BaseRetryDelay time.Duration `yaml:"base_retry_delay" json:"base_retry_delay"`
	// RateLimit caps task starts per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  256,
		MaxRetries:     2,
		BaseRetryDelay: 200 * time.Millisecond,
		RateLimit:      0,
		RateBurst:      1,
	}
}

// Stats is a point-in-time snapshot of executor counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Pending   int   `json:"pending"`
}

// Executor runs tasks from a bounded priority queue on a single worker
// goroutine. Higher-priority tasks are dequeued first; ties are served
// in submission order. Retryable failures are re-attempted with linear
// backoff.
type Executor struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	queue  taskHeap
	seq    uint64
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates an executor and starts its worker goroutine.
func New(handler Handler, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = DefaultConfig().BaseRetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	e := &Executor{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("component", "executor")),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		queue:   make(taskHeap, 0, cfg.QueueCapacity),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	e.wg.Add(1)
	go e.run()
	return e
}

// Execute submits the task and blocks until it finishes or ctx is done.
// A full queue fails fast with EXECUTOR_QUEUE_FULL; a closed executor
// with EXECUTOR_CLOSED.
func (e *Executor) Execute(ctx context.Context, task *types.Task) (map[string]any, error) {
	item := &queueItem{
		task:     task,
		ctx:      ctx,
		resultCh: make(chan outcome, 1),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.NewError(types.ErrExecutorClosed, "executor is closed")
	}
	if e.queue.Len() >= e.cfg.QueueCapacity {
		e.mu.Unlock()
		return nil, types.NewError(types.ErrExecutorQueueFull,
			fmt.Sprintf("task queue at capacity (%d)", e.cfg.QueueCapacity))
	}
	e.seq++
	item.seq = e.seq
	heap.Push(&e.queue, item)
	e.mu.Unlock()
	e.submitted.Add(1)

	select {
	case e.wake <- struct{}{}:
	default:
	}

	select {
	case out := <-item.resultCh:
		return out.result, out.err
	case <-ctx.Done():
		item.cancelled.Store(true)
		return nil, types.NewError(types.ErrTaskCancelled,
			"task cancelled while queued or running").WithCause(ctx.Err())
	}
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	pending := e.queue.Len()
	e.mu.Unlock()
	return Stats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Retried:   e.retried.Load(),
		Pending:   pending,
	}
}

// Close rejects new submissions, fails every queued task with
// EXECUTOR_CLOSED, and waits for the worker to stop. The task currently
// executing runs to completion.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	drained := make([]*queueItem, 0, e.queue.Len())
	for e.queue.Len() > 0 {
		drained = append(drained, heap.Pop(&e.queue).(*queueItem))
	}
	e.mu.Unlock()

	for _, item := range drained {
		item.resultCh <- outcome{err: types.NewError(types.ErrExecutorClosed, "executor is closed")}
	}
	close(e.done)
	e.wg.Wait()
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if e.queue.Len() == 0 {
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-e.wake:
			case <-e.done:
			}
			continue
		}
		item := heap.Pop(&e.queue).(*queueItem)
		e.mu.Unlock()
		e.process(item)
	}
}

func (e *Executor) process(item *queueItem) {
	if item.cancelled.Load() {
		return
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(item.ctx); err != nil {
			item.resultCh <- outcome{err: types.NewError(types.ErrTaskCancelled,
				"task cancelled while rate limited").WithCause(err)}
			return
		}
	}

	task := item.task
	task.Status = types.TaskStatusRunning

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.retried.Add(1)
			e.logger.Debug("retrying task",
				zap.String("task_id", task.ID),
				zap.String("task_type", task.Type),
				zap.Int("attempt", attempt+1),
			)
			timer := time.NewTimer(e.cfg.BaseRetryDelay * time.Duration(attempt))
			select {
			case <-timer.C:
			case <-item.ctx.Done():
				timer.Stop()
				lastErr = types.NewError(types.ErrTaskCancelled,
					"task cancelled during retry backoff").WithCause(item.ctx.Err())
			}
			if item.ctx.Err() != nil {
				break
			}
		}

		result, err := e.invoke(item.ctx, task)
		if err == nil {
			task.Status = types.TaskStatusCompleted
			e.completed.Add(1)
			item.resultCh <- outcome{result: result}
			return
		}
		lastErr = err
		if !types.IsRetryable(err) {
			break
		}
	}

	task.Status = types.TaskStatusFailed
	e.failed.Add(1)
	e.logger.Warn("task failed",
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
		zap.Error(lastErr),
	)
	item.resultCh <- outcome{err: lastErr}
}

// invoke runs the handler with panic containment so a misbehaving
// handler cannot take down the worker goroutine.
func (e *Executor) invoke(ctx context.Context, task *types.Task) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrInternalError,
				fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return e.handler.Handle(ctx, task)
}
