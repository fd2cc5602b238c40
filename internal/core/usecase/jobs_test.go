package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/jobs"
	"github.com/kirillkom/phase-edms/internal/infrastructure/repository/memory"
)

type queueFake struct {
	published []domain.JobRequest
	err       error
}

func (f *queueFake) PublishJob(_ context.Context, req domain.JobRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, req)
	return nil
}

func (f *queueFake) SubscribeJobs(context.Context, func(context.Context, domain.JobRequest) error) error {
	return nil
}

type importerFake struct {
	basenames []string
}

func (f *importerFake) ImportIncoming(_ context.Context, basenames []string, progress jobs.ProgressFunc) (domain.ImportSummary, error) {
	f.basenames = basenames
	progress(100)
	return domain.ImportSummary{Imported: basenames}, nil
}

func TestEnqueueSavesQueuedStatusAndPublishes(t *testing.T) {
	queue := &queueFake{}
	statuses := memory.NewJobStatusStore()
	svc := NewJobService(queue, statuses)
	svc.now = fixedClock
	ctx := context.Background()

	req, err := svc.Enqueue(ctx, domain.JobStartReviews, "admin", domain.BatchReviewPayload{DocumentIDs: []string{"doc-1"}})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(queue.published) != 1 || queue.published[0].ID != req.ID {
		t.Fatalf("expected request to be published, got %+v", queue.published)
	}
	var payload domain.BatchReviewPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.DocumentIDs[0] != "doc-1" {
		t.Fatalf("unexpected payload %s: %v", req.Payload, err)
	}

	status, err := svc.Status(ctx, req.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != domain.JobQueued || status.Kind != domain.JobStartReviews {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestEnqueuePropagatesPublishFailure(t *testing.T) {
	svc := NewJobService(&queueFake{err: domain.WrapError(domain.ErrTemporary, "publish", errors.New("down"))}, memory.NewJobStatusStore())

	_, err := svc.Enqueue(context.Background(), domain.JobImportTransmittals, "admin", domain.ImportTransmittalsPayload{})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestJobHandlersDecodePayloads(t *testing.T) {
	importer := &importerFake{}
	handlers := JobHandlers(nil, nil, importer)
	for _, kind := range []domain.JobKind{domain.JobStartReviews, domain.JobCancelReviews, domain.JobImportTransmittals, domain.JobProcessTransmittal} {
		if handlers[kind] == nil {
			t.Fatalf("missing handler for %s", kind)
		}
	}
	ctx := context.Background()
	noProgress := func(float64) {}

	raw, _ := json.Marshal(domain.ImportTransmittalsPayload{Basenames: []string{"FAC10005-CTR-CLT-TRS-00001"}})
	result, err := handlers[domain.JobImportTransmittals](ctx, domain.JobRequest{Kind: domain.JobImportTransmittals, Payload: raw}, noProgress)
	if err != nil {
		t.Fatalf("import handler error = %v", err)
	}
	if summary, ok := result.(domain.ImportSummary); !ok || len(summary.Imported) != 1 {
		t.Fatalf("unexpected import result: %#v", result)
	}

	_, err = handlers[domain.JobProcessTransmittal](ctx, domain.JobRequest{Kind: domain.JobProcessTransmittal, Payload: json.RawMessage(`{}`)}, noProgress)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without transmittal id, got %v", err)
	}

	_, err = handlers[domain.JobImportTransmittals](ctx, domain.JobRequest{Kind: domain.JobImportTransmittals, Payload: json.RawMessage(`{"basenames":`)}, noProgress)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for malformed payload, got %v", err)
	}
}
