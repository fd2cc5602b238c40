package local

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.JobRequest, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.SubscribeJobs(ctx, func(_ context.Context, req domain.JobRequest) error {
			got <- req
			return nil
		})
	}()

	if err := q.PublishJob(ctx, domain.JobRequest{ID: "j1", Kind: domain.JobStartReviews}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case req := <-got:
		if req.ID != "j1" {
			t.Fatalf("unexpected request %+v", req)
		}
	case <-time.After(time.Second):
		t.Fatalf("request not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("subscribe returned error: %v", err)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := New(1)
	q.Close()
	if err := q.PublishJob(context.Background(), domain.JobRequest{ID: "j1"}); err == nil {
		t.Fatalf("expected error after close")
	}
}
