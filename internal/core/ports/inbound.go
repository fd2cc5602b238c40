package ports

import (
	"context"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// ReviewOrchestrator is the inbound contract for the review protocol of one revision.
type ReviewOrchestrator interface {
	StartReview(ctx context.Context, actor string, rev *domain.Revision) error
	CancelReview(ctx context.Context, actor string, rev *domain.Revision) error
	EndReviewersStep(ctx context.Context, actor string, rev *domain.Revision) error
	EndLeaderStep(ctx context.Context, actor string, rev *domain.Revision) error
	EndReview(ctx context.Context, actor string, rev *domain.Revision) error
	SubmitReview(ctx context.Context, rev *domain.Revision, sub domain.Submission) error
	UpdateDistributionList(ctx context.Context, actor string, rev *domain.Revision, list domain.DistributionList) error
	GetReview(ctx context.Context, rev *domain.Revision, userID string, role domain.Role) (*domain.Review, error)
	GetReviews(ctx context.Context, rev *domain.Revision) ([]domain.Review, error)
}

// RevisionReader is the inbound read model for revisions.
type RevisionReader interface {
	Get(ctx context.Context, key domain.RevisionKey) (*domain.Revision, error)
}

// TransmittalManager is the inbound contract for incoming transmittal decisions.
type TransmittalManager interface {
	Accept(ctx context.Context, actor, transmittalID string) (*domain.JobRequest, error)
	Reject(ctx context.Context, actor, transmittalID string) (*domain.Transmittal, error)
	ReviewLine(ctx context.Context, actor, trsRevisionID string, accepted bool, comment string) error
}

// OutgoingBuilder is the inbound contract for outgoing transmittals.
type OutgoingBuilder interface {
	Build(ctx context.Context, actor string, req OutgoingRequest) (*domain.OutgoingTransmittal, error)
}

// OutgoingRequest describes the revisions to send.
type OutgoingRequest struct {
	Revisions      []domain.RevisionKey `json:"revisions"`
	Category       string               `json:"category"`
	Recipient      string               `json:"recipient"`
	PurposeOfIssue string               `json:"purpose_of_issue"`
}

// JobSubmitter enqueues background jobs and reports their state.
type JobSubmitter interface {
	Enqueue(ctx context.Context, kind domain.JobKind, requestedBy string, payload any) (*domain.JobRequest, error)
	Status(ctx context.Context, id string) (*domain.JobStatus, error)
}

// OutgoingReader loads outgoing transmittals with their frozen revision snapshots.
type OutgoingReader interface {
	GetByID(ctx context.Context, id string) (*domain.OutgoingTransmittal, error)
}
