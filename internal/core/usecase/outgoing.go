package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// OutgoingService builds outgoing transmittals from reviewed revisions.
type OutgoingService struct {
	store              ports.Store
	registry           *domain.TypeRegistry
	categories         ports.CategoryResolver
	exporter           ports.RegisterExporter
	audit              ports.AuditSink
	index              ports.SearchIndex
	logger             *slog.Logger
	externalReviewDays int
	now                func() time.Time
}

func NewOutgoingService(
	store ports.Store,
	registry *domain.TypeRegistry,
	categories ports.CategoryResolver,
	exporter ports.RegisterExporter,
	audit ports.AuditSink,
	index ports.SearchIndex,
	logger *slog.Logger,
	externalReviewDays int,
) *OutgoingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutgoingService{
		store:              store,
		registry:           registry,
		categories:         categories,
		exporter:           exporter,
		audit:              audit,
		index:              index,
		logger:             logger,
		externalReviewDays: externalReviewDays,
		now:                time.Now,
	}
}

func (s *OutgoingService) Build(ctx context.Context, actor string, req ports.OutgoingRequest) (*domain.OutgoingTransmittal, error) {
	if len(req.Revisions) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build outgoing transmittal", domain.ErrNoRevisions)
	}
	target, ok := s.categories.Category(req.Category)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build outgoing transmittal", fmt.Errorf("unknown category %q", req.Category))
	}
	if req.Recipient == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build outgoing transmittal", fmt.Errorf("recipient is required"))
	}
	purpose := req.PurposeOfIssue
	if purpose == "" {
		purpose = domain.PurposeForReview
	}
	if purpose != domain.PurposeForReview && purpose != domain.PurposeForInformation {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build outgoing transmittal", fmt.Errorf("unknown purpose of issue %q", purpose))
	}

	now := s.now().UTC()
	today := domain.Day(now)
	var dueDate *time.Time
	if purpose == domain.PurposeForReview {
		due := domain.AddDays(today, s.externalReviewDays)
		dueDate = &due
	}

	var out *domain.OutgoingTransmittal
	var revisions []*domain.Revision
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		var err error
		revisions, err = s.loadRevisions(ctx, tx, req.Revisions)
		if err != nil {
			return err
		}
		if err := s.checkRevisions(revisions, target); err != nil {
			return err
		}

		seq, err := tx.Outgoing().NextSequentialNumber(ctx, target.Contract, target.Organisation, req.Recipient)
		if err != nil {
			return fmt.Errorf("next sequential number: %w", err)
		}
		out = &domain.OutgoingTransmittal{
			ID:               uuid.NewString(),
			DocumentKey:      domain.TransmittalKey(target.Contract, target.Organisation, req.Recipient, seq),
			Category:         target.Slug,
			Contract:         target.Contract,
			Originator:       target.Organisation,
			Recipient:        req.Recipient,
			SequentialNumber: seq,
			PurposeOfIssue:   purpose,
			TransmittalDate:  today,
			CreatedOn:        now,
		}
		for _, rev := range revisions {
			out.Revisions = append(out.Revisions, domain.ExportedRevision{
				ID:            uuid.NewString(),
				TransmittalID: out.ID,
				DocumentID:    rev.DocumentID,
				DocumentKey:   rev.DocumentKey,
				Revision:      rev.Revision,
				Title:         rev.Title,
				Status:        rev.Status,
				ReturnCode:    rev.ReturnCode,
			})
		}
		if err := tx.Outgoing().Create(ctx, out); err != nil {
			return fmt.Errorf("create outgoing transmittal: %w", err)
		}

		for _, rev := range revisions {
			sent := today
			rev.TransmittalID = out.ID
			rev.TransmittalSentDate = &sent
			rev.ExternalReviewDueDate = nil
			if dueDate != nil {
				d := *dueDate
				rev.ExternalReviewDueDate = &d
			}
			rev.UpdatedOn = now
			if err := tx.Revisions().Update(ctx, rev); err != nil {
				return fmt.Errorf("update revision %s: %w", rev.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build outgoing transmittal: %w", err)
	}

	after := context.WithoutCancel(ctx)
	if s.exporter != nil {
		path, err := s.exporter.Export(after, out)
		if err != nil {
			s.logger.Warn("outgoing_register_export_failed", "transmittal", out.DocumentKey, "error", err)
		} else {
			s.logger.Info("outgoing_register_exported", "transmittal", out.DocumentKey, "path", path)
		}
	}
	actions := make([]domain.IndexAction, 0, len(revisions))
	for _, rev := range revisions {
		actions = append(actions, revisionIndexAction(rev))
	}
	if err := s.index.Bulk(after, actions); err != nil {
		s.logger.Warn("outgoing_index_failed", "transmittal", out.DocumentKey, "error", err)
	}
	if err := s.audit.Record(after, domain.Activity{
		ID:         uuid.NewString(),
		Actor:      actor,
		Verb:       domain.VerbOutgoingCreated,
		TargetType: "outgoing_transmittal",
		TargetID:   out.ID,
		Detail:     out.DocumentKey,
		CreatedAt:  now,
	}); err != nil {
		s.logger.Warn("audit_record_failed", "verb", domain.VerbOutgoingCreated, "transmittal", out.DocumentKey, "error", err)
	}
	return out, nil
}

func (s *OutgoingService) GetByID(ctx context.Context, id string) (*domain.OutgoingTransmittal, error) {
	return s.store.Outgoing().GetByID(ctx, id)
}

func (s *OutgoingService) loadRevisions(ctx context.Context, tx ports.Repos, keys []domain.RevisionKey) ([]*domain.Revision, error) {
	seen := make(map[domain.RevisionKey]struct{}, len(keys))
	out := make([]*domain.Revision, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rev, err := tx.Revisions().Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load revision %s: %w", key, err)
		}
		out = append(out, rev)
	}
	return out, nil
}

func (s *OutgoingService) checkRevisions(revisions []*domain.Revision, target domain.Category) error {
	source := revisions[0].Category
	for _, rev := range revisions {
		if !s.registry.IsTransmittable(rev.DocumentType) {
			return domain.WrapError(domain.ErrInvalidInput, "check revision",
				fmt.Errorf("%w: %s has type %q", domain.ErrNotTransmittable, rev.Key(), rev.DocumentType))
		}
		if rev.IsUnderReview() || !rev.IsReviewed() {
			return domain.WrapError(domain.ErrPrecondition, "check revision",
				fmt.Errorf("%w: %s", domain.ErrNotReviewed, rev.Key()))
		}
		if rev.Category != source {
			return domain.WrapError(domain.ErrInvalidInput, "check revision",
				fmt.Errorf("%w: %s belongs to %q, expected %q", domain.ErrCategoryMismatch, rev.Key(), rev.Category, source))
		}
	}
	sourceCategory, ok := s.categories.Category(source)
	if !ok || sourceCategory.OutgoingCategory != target.Slug {
		return domain.WrapError(domain.ErrInvalidInput, "check revision",
			fmt.Errorf("%w: category %q does not transmit to %q", domain.ErrCategoryMismatch, source, target.Slug))
	}
	return nil
}
