// Package local is an in-process job queue for single-binary setups backed by
// the memory store.
package local

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type Queue struct {
	mu      sync.RWMutex
	pending chan domain.JobRequest
	closed  bool
}

func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{pending: make(chan domain.JobRequest, buffer)}
}

func (q *Queue) PublishJob(ctx context.Context, req domain.JobRequest) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("local queue closed")
	}
	select {
	case q.pending <- req:
		return nil
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "publish job", ctx.Err())
	}
}

// SubscribeJobs delivers requests to handler until ctx is done or the queue is closed.
func (q *Queue) SubscribeJobs(ctx context.Context, handler func(context.Context, domain.JobRequest) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-q.pending:
			if !ok {
				return nil
			}
			if err := handler(ctx, req); err != nil {
				log.Printf("worker handler error for job=%s kind=%s: %v", req.ID, req.Kind, err)
			}
		}
	}
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.pending)
	}
}
