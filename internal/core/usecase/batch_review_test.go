package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

func newBatchFixture(t *testing.T) (*reviewFixture, *BatchReviewRunner, *notifierFake) {
	t.Helper()
	f := newReviewFixture(t)
	notifier := &notifierFake{}
	runner := NewBatchReviewRunner(
		f.store,
		f.service,
		domain.NewTypeRegistry(domain.DefaultDocumentTypes()...),
		notifier,
		f.index,
		LinkBuilder{SiteURL: "https://phase.example/"},
		nil,
	)
	return f, runner, notifier
}

func TestStartReviewsReportsPerDocumentOutcome(t *testing.T) {
	f, runner, notifier := newBatchFixture(t)
	f.addRevision(t, "doc-1", "contractor_deliverable", domain.DistributionList{Leader: "lead", Reviewers: []string{"r1"}})
	f.addRevision(t, "doc-2", "contractor_deliverable", domain.DistributionList{})
	f.addRevision(t, "doc-3", "transmittal", domain.DistributionList{Leader: "lead"})

	var progress []float64
	result := runner.StartReviews(context.Background(), "admin", []string{"doc-1", "doc-2", "doc-3", "missing"}, func(p float64) {
		progress = append(progress, p)
	})

	if len(result.OK) != 1 || result.OK[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected ok items: %+v", result.OK)
	}
	if len(result.NOK) != 3 {
		t.Fatalf("expected 3 failed items, got %+v", result.NOK)
	}
	for _, item := range result.NOK {
		if item.Reason == "" {
			t.Fatalf("failed item without reason: %+v", item)
		}
	}
	if len(progress) != 5 || progress[len(progress)-1] != 100 {
		t.Fatalf("expected four item updates and a final 100, got %v", progress)
	}
	for i, p := range progress[:len(progress)-1] {
		if p >= 100 {
			t.Fatalf("progress reached 100 before the batch finished: %v", progress)
		}
		if i > 0 && p < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if result.OK[0].URL != "https://phase.example/ctr-deliverables/FAC09001-FWF-000-HSE-REP-doc-1/" {
		t.Fatalf("unexpected document link %q", result.OK[0].URL)
	}

	if f.index.calls != 1 || len(f.index.actions) != 1 {
		t.Fatalf("expected one bulk index call for the started revision, got calls=%d actions=%d", f.index.calls, len(f.index.actions))
	}
	messages := notifier.messages["admin"]
	if len(messages) != 2 {
		t.Fatalf("expected ok and nok notifications, got %d", len(messages))
	}
	if !strings.Contains(messages[0], "was started") || !strings.Contains(messages[1], "could not be started") {
		t.Fatalf("unexpected notifications: %v", messages)
	}
}

func TestCancelReviewsAfterStart(t *testing.T) {
	f, runner, _ := newBatchFixture(t)
	rev := f.addRevision(t, "doc-1", "contractor_deliverable", domain.DistributionList{Leader: "lead"})
	f.addRevision(t, "doc-2", "contractor_deliverable", domain.DistributionList{Leader: "lead"})
	ctx := context.Background()

	if res := runner.StartReviews(ctx, "admin", []string{"doc-1"}, nil); len(res.OK) != 1 {
		t.Fatalf("start failed: %+v", res)
	}
	result := runner.CancelReviews(ctx, "admin", []string{"doc-1", "doc-2"}, nil)
	if len(result.OK) != 1 || len(result.NOK) != 1 || result.NOK[0].DocumentID != "doc-2" {
		t.Fatalf("unexpected cancel result: %+v", result)
	}
	if stored := f.stored(t, rev); stored.IsUnderReview() || len(f.reviews(t, rev)) != 0 {
		t.Fatalf("expected review to be canceled")
	}
}

func TestBatchStopsOnCanceledContext(t *testing.T) {
	f, runner, _ := newBatchFixture(t)
	f.addRevision(t, "doc-1", "contractor_deliverable", domain.DistributionList{Leader: "lead"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := runner.StartReviews(ctx, "", []string{"doc-1"}, nil)
	if len(result.OK) != 0 || len(result.NOK) != 1 || result.NOK[0].Reason != "canceled" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRenderBatchItemsEscapesHTML(t *testing.T) {
	body := renderBatchItems("Intro", []domain.BatchItem{{DocumentKey: "K<1>", Reason: "a & b"}}, true)
	if !strings.Contains(body, "K&lt;1&gt;") || !strings.Contains(body, "(a &amp; b)") {
		t.Fatalf("unexpected rendering: %s", body)
	}
}
