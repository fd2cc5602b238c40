package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/jobs"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// JobService publishes job requests and serves their persisted status.
type JobService struct {
	queue    ports.JobQueue
	statuses ports.JobStatusStore
	now      func() time.Time
}

func NewJobService(queue ports.JobQueue, statuses ports.JobStatusStore) *JobService {
	return &JobService{queue: queue, statuses: statuses, now: time.Now}
}

func (s *JobService) Enqueue(ctx context.Context, kind domain.JobKind, requestedBy string, payload any) (*domain.JobRequest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode job payload", err)
	}
	now := s.now().UTC()
	req := domain.JobRequest{
		ID:          uuid.NewString(),
		Kind:        kind,
		RequestedBy: requestedBy,
		Payload:     raw,
		EnqueuedAt:  now,
	}
	if err := s.statuses.SaveJobStatus(ctx, domain.JobStatus{
		ID:        req.ID,
		Kind:      kind,
		State:     domain.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("save job status: %w", err)
	}
	if err := s.queue.PublishJob(ctx, req); err != nil {
		return nil, fmt.Errorf("publish job: %w", err)
	}
	return &req, nil
}

func (s *JobService) Status(ctx context.Context, id string) (*domain.JobStatus, error) {
	return s.statuses.GetJobStatus(ctx, id)
}

// Importer is the subset of the transmittal import pipeline used by jobs.
type Importer interface {
	ImportIncoming(ctx context.Context, basenames []string, progress jobs.ProgressFunc) (domain.ImportSummary, error)
}

// JobHandlers maps every job kind to the use case that executes it.
func JobHandlers(batch *BatchReviewRunner, transmittals *TransmittalService, importer Importer) map[domain.JobKind]jobs.HandlerFunc {
	return map[domain.JobKind]jobs.HandlerFunc{
		domain.JobStartReviews: func(ctx context.Context, req domain.JobRequest, progress jobs.ProgressFunc) (any, error) {
			var payload domain.BatchReviewPayload
			if err := decodePayload(req, &payload); err != nil {
				return nil, err
			}
			return batch.StartReviews(ctx, req.RequestedBy, payload.DocumentIDs, progress), nil
		},
		domain.JobCancelReviews: func(ctx context.Context, req domain.JobRequest, progress jobs.ProgressFunc) (any, error) {
			var payload domain.BatchReviewPayload
			if err := decodePayload(req, &payload); err != nil {
				return nil, err
			}
			return batch.CancelReviews(ctx, req.RequestedBy, payload.DocumentIDs, progress), nil
		},
		domain.JobImportTransmittals: func(ctx context.Context, req domain.JobRequest, progress jobs.ProgressFunc) (any, error) {
			var payload domain.ImportTransmittalsPayload
			if err := decodePayload(req, &payload); err != nil {
				return nil, err
			}
			return importer.ImportIncoming(ctx, payload.Basenames, progress)
		},
		domain.JobProcessTransmittal: func(ctx context.Context, req domain.JobRequest, progress jobs.ProgressFunc) (any, error) {
			var payload domain.ProcessTransmittalPayload
			if err := decodePayload(req, &payload); err != nil {
				return nil, err
			}
			if payload.TransmittalID == "" {
				return nil, domain.WrapError(domain.ErrInvalidInput, "process transmittal", fmt.Errorf("transmittal_id is required"))
			}
			return nil, transmittals.Process(ctx, req.RequestedBy, payload.TransmittalID, progress)
		},
	}
}

func decodePayload(req domain.JobRequest, dst any) error {
	if len(req.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("decode %s payload", req.Kind), err)
	}
	return nil
}
