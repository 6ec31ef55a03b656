package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nft-gate/backend/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrQueueClosed = errors.New("indexer queue closed")

type task struct {
	ctx      context.Context
	fn       func(ctx context.Context) error
	done     chan error
	queuedAt time.Time
}

// Queue runs submitted calls one at a time, in submission order, with at
// least minInterval between the start of consecutive calls.
type Queue struct {
	tasks   chan task
	limiter *rate.Limiter
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     *zap.Logger
}

func NewQueue(minInterval time.Duration, capacity int, log *zap.Logger) *Queue {
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	if capacity <= 0 {
		capacity = 256
	}
	q := &Queue{
		tasks:   make(chan task, capacity),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		stop:    make(chan struct{}),
		log:     log,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Do enqueues fn and blocks until it has run or ctx is done.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1), queuedAt: time.Now()}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stop:
		return ErrQueueClosed
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stop:
		return ErrQueueClosed
	}
}

// Close stops the worker; queued calls return ErrQueueClosed.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.stop) })
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case t := <-q.tasks:
			if err := t.ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			if err := q.wait(); err != nil {
				t.done <- err
				return
			}
			metrics.IndexerQueueWait.Observe(time.Since(t.queuedAt).Seconds())
			t.done <- q.exec(t)
		}
	}
}

func (q *Queue) wait() error {
	r := q.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-q.stop:
		r.Cancel()
		return ErrQueueClosed
	}
}

func (q *Queue) exec(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("indexer task panicked", zap.Any("panic", r))
			err = fmt.Errorf("indexer task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}
