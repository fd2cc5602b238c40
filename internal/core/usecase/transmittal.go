package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/jobs"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// TransmittalService accepts, rejects and processes imported transmittals.
type TransmittalService struct {
	store      ports.Store
	fs         ports.TransmittalFS
	form       ports.DocumentForm
	categories ports.CategoryResolver
	jobs       ports.JobSubmitter
	audit      ports.AuditSink
	index      ports.SearchIndex
	logger     *slog.Logger
	now        func() time.Time
}

func NewTransmittalService(
	store ports.Store,
	fs ports.TransmittalFS,
	form ports.DocumentForm,
	categories ports.CategoryResolver,
	jobSubmitter ports.JobSubmitter,
	audit ports.AuditSink,
	index ports.SearchIndex,
	logger *slog.Logger,
) *TransmittalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransmittalService{
		store:      store,
		fs:         fs,
		form:       form,
		categories: categories,
		jobs:       jobSubmitter,
		audit:      audit,
		index:      index,
		logger:     logger,
		now:        time.Now,
	}
}

// Accept marks the transmittal as processing and schedules the processing job.
func (s *TransmittalService) Accept(ctx context.Context, actor, transmittalID string) (*domain.JobRequest, error) {
	trs, err := s.store.Transmittals().GetByID(ctx, transmittalID)
	if err != nil {
		return nil, fmt.Errorf("load transmittal: %w", err)
	}
	if trs.Status != domain.TransmittalToBeChecked {
		return nil, domain.WrapError(domain.ErrPrecondition, "accept transmittal",
			fmt.Errorf("transmittal %s has status %q", trs.DocumentKey, trs.Status))
	}

	if err := s.setStatus(ctx, trs, domain.TransmittalProcessing); err != nil {
		return nil, err
	}
	req, err := s.jobs.Enqueue(ctx, domain.JobProcessTransmittal, actor, domain.ProcessTransmittalPayload{TransmittalID: trs.ID})
	if err != nil {
		if revertErr := s.setStatus(context.WithoutCancel(ctx), trs, domain.TransmittalToBeChecked); revertErr != nil {
			s.logger.Error("transmittal_status_revert_failed", "transmittal_id", trs.ID, "error", revertErr)
		}
		return nil, fmt.Errorf("enqueue processing: %w", err)
	}
	s.logger.Info("transmittal_accepted", "transmittal_id", trs.ID, "document_key", trs.DocumentKey, "job_id", req.ID)
	return req, nil
}

// Reject moves the transmittal directory to the rejected root and frees its key
// for a corrected resubmission.
func (s *TransmittalService) Reject(ctx context.Context, actor, transmittalID string) (*domain.Transmittal, error) {
	trs, err := s.store.Transmittals().GetByID(ctx, transmittalID)
	if err != nil {
		return nil, fmt.Errorf("load transmittal: %w", err)
	}
	if trs.Status != domain.TransmittalToBeChecked {
		return nil, domain.WrapError(domain.ErrPrecondition, "reject transmittal",
			fmt.Errorf("transmittal %s has status %q", trs.DocumentKey, trs.Status))
	}

	basename := trs.Basename()
	now := s.now().UTC()
	next := *trs
	next.Status = domain.TransmittalRejected
	next.DocumentKey = fmt.Sprintf("%s-%s", trs.DocumentKey, uuid.NewString())
	next.RejectedOn = &now
	next.UpdatedOn = now

	// The move runs last so a failed update leaves the directory in tobechecked.
	moved := false
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		if err := tx.Transmittals().Update(ctx, &next); err != nil {
			return fmt.Errorf("update transmittal: %w", err)
		}
		if err := s.fs.Move(ports.AreaToBeChecked, ports.AreaRejected, basename, true); err != nil {
			return fmt.Errorf("move transmittal to rejected: %w", err)
		}
		moved = true
		return nil
	})
	if err != nil {
		if moved {
			s.moveBack(trs.ID, ports.AreaRejected, basename)
		}
		return nil, fmt.Errorf("reject transmittal %s: %w", trs.DocumentKey, err)
	}

	s.record(context.WithoutCancel(ctx), actor, domain.VerbTransmittalRejected, &next)
	s.logger.Info("transmittal_rejected", "transmittal_id", next.ID, "basename", basename)
	return &next, nil
}

// ReviewLine records a checker's decision on one staged line.
func (s *TransmittalService) ReviewLine(ctx context.Context, actor, trsRevisionID string, accepted bool, comment string) error {
	line, err := s.store.Transmittals().GetRevision(ctx, trsRevisionID)
	if err != nil {
		return fmt.Errorf("load staged line: %w", err)
	}
	trs, err := s.store.Transmittals().GetByID(ctx, line.TransmittalID)
	if err != nil {
		return fmt.Errorf("load transmittal: %w", err)
	}
	if trs.Status != domain.TransmittalToBeChecked {
		return domain.WrapError(domain.ErrPrecondition, "review staged line",
			fmt.Errorf("transmittal %s has status %q", trs.DocumentKey, trs.Status))
	}

	line.Accepted = &accepted
	line.Comment = comment
	if err := s.store.Transmittals().UpdateRevision(ctx, line); err != nil {
		return fmt.Errorf("update staged line: %w", err)
	}
	s.logger.Info("staged_line_reviewed", "transmittal_id", trs.ID, "line", line.LineNumber, "accepted", accepted, "user", actor)
	return nil
}

// Process replays every staged line through the document form in one transaction.
// On failure the transmittal goes back to tobechecked so it can be corrected and retried.
func (s *TransmittalService) Process(ctx context.Context, actor, transmittalID string, progress jobs.ProgressFunc) error {
	if progress == nil {
		progress = func(float64) {}
	}
	trs, err := s.store.Transmittals().GetByID(ctx, transmittalID)
	if err != nil {
		return fmt.Errorf("load transmittal: %w", err)
	}
	if trs.Status != domain.TransmittalToBeChecked && trs.Status != domain.TransmittalProcessing {
		return domain.WrapError(domain.ErrPrecondition, "process transmittal",
			fmt.Errorf("transmittal %s has status %q", trs.DocumentKey, trs.Status))
	}
	basename := trs.Basename()
	if s.fs.Exists(ports.AreaAccepted, basename) {
		return domain.WrapError(domain.ErrConflict, "process transmittal",
			fmt.Errorf("accepted directory already exists: %s", s.fs.Path(ports.AreaAccepted, basename)))
	}
	category, ok := s.categories.Category(trs.Category)
	if !ok {
		return domain.WrapError(domain.ErrPrecondition, "process transmittal", fmt.Errorf("unknown category %q", trs.Category))
	}

	var saved []*domain.Revision
	var failed *domain.TrsRevision
	moved := false
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		lines, err := tx.Transmittals().ListRevisions(ctx, trs.ID)
		if err != nil {
			return fmt.Errorf("list staged lines: %w", err)
		}
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].Revision < lines[j].Revision })

		for i := range lines {
			line := &lines[i]
			if line.Refused() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rev, err := s.saveToDocument(ctx, tx, category, line)
			if err != nil {
				failed = line
				return err
			}
			line.DocumentID = rev.DocumentID
			if err := tx.Transmittals().UpdateRevision(ctx, line); err != nil {
				failed = line
				return fmt.Errorf("link staged line: %w", err)
			}
			saved = append(saved, rev)
			progress(float64(i+1) / float64(len(lines)+postProcessingUnits) * 100)
		}

		next := *trs
		next.Status = domain.TransmittalAccepted
		next.UpdatedOn = s.now().UTC()
		if err := tx.Transmittals().Update(ctx, &next); err != nil {
			return fmt.Errorf("update transmittal: %w", err)
		}
		if err := s.fs.Move(ports.AreaToBeChecked, ports.AreaAccepted, basename, false); err != nil {
			return domain.WrapError(domain.ErrConflict, "process transmittal",
				fmt.Errorf("move %s to accepted: %w", basename, err))
		}
		moved = true
		return nil
	})
	if err != nil {
		if moved {
			s.moveBack(trs.ID, ports.AreaAccepted, basename)
		}
		attrs := []any{"transmittal_id", trs.ID, "document_key", trs.DocumentKey, "error", err}
		if failed != nil {
			attrs = append(attrs, "line", failed.LineNumber, "line_document_key", failed.DocumentKey, "line_revision", failed.Revision)
		}
		s.logger.Error("transmittal_processing_failed", attrs...)
		if revertErr := s.setStatus(context.WithoutCancel(ctx), trs, domain.TransmittalToBeChecked); revertErr != nil {
			s.logger.Error("transmittal_status_revert_failed", "transmittal_id", trs.ID, "error", revertErr)
		}
		return fmt.Errorf("process transmittal %s: %w", trs.DocumentKey, err)
	}
	trs.Status = domain.TransmittalAccepted

	after := context.WithoutCancel(ctx)

	actions := make([]domain.IndexAction, 0, len(saved))
	for _, rev := range saved {
		actions = append(actions, revisionIndexAction(rev))
	}
	if len(actions) > 0 {
		if err := s.index.Bulk(after, actions); err != nil {
			s.logger.Warn("transmittal_index_failed", "transmittal_id", trs.ID, "count", len(actions), "error", err)
		}
	}
	s.record(after, actor, domain.VerbTransmittalAccepted, trs)
	progress(100)
	s.logger.Info("transmittal_processed", "transmittal_id", trs.ID, "revisions", len(saved))
	return nil
}

// saveToDocument resolves the target document and revision and replays the line
// through the document form.
func (s *TransmittalService) saveToDocument(ctx context.Context, tx ports.Repos, category domain.Category, line *domain.TrsRevision) (*domain.Revision, error) {
	doc, err := tx.Documents().GetByKey(ctx, line.DocumentKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		doc = nil
	case err != nil:
		return nil, fmt.Errorf("load document %s: %w", line.DocumentKey, err)
	}

	var rev *domain.Revision
	if doc != nil {
		rev, err = tx.Revisions().Get(ctx, domain.RevisionKey{DocumentID: doc.ID, Revision: line.Revision})
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rev = nil
		case err != nil:
			return nil, fmt.Errorf("load revision %s: %w", line.DocumentKey, err)
		}
	}

	fields := stagedFields(line)
	if verrs := s.form.Validate(ctx, tx, category, fields, doc, rev); len(verrs) > 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate line",
			fmt.Errorf("line %d (%s): %v", line.LineNumber, line.DocumentKey, map[string]string(verrs)))
	}
	doc, rev, err = s.form.Save(ctx, tx, category, fields, doc, rev)
	if err != nil {
		return nil, fmt.Errorf("save line %d (%s): %w", line.LineNumber, line.DocumentKey, err)
	}
	if !doc.IsIndexable {
		doc.IsIndexable = true
		if err := tx.Documents().Update(ctx, doc); err != nil {
			return nil, fmt.Errorf("update document %s: %w", doc.DocumentKey, err)
		}
	}
	return rev, nil
}

func stagedFields(line *domain.TrsRevision) map[string]string {
	fields := make(map[string]string, len(line.Fields)+4)
	for k, v := range line.Fields {
		fields[k] = v
	}
	fields["document_key"] = line.DocumentKey
	fields["title"] = line.Title
	fields["revision"] = fmt.Sprintf("%02d", line.Revision)
	fields["status"] = line.Status
	if line.PageCount > 0 {
		fields["page_count"] = strconv.Itoa(line.PageCount)
	}
	return fields
}

// moveBack returns a directory to tobechecked after its transaction failed to commit.
func (s *TransmittalService) moveBack(transmittalID string, from ports.TransmittalArea, basename string) {
	if err := s.fs.Move(from, ports.AreaToBeChecked, basename, false); err != nil {
		s.logger.Error("transmittal_directory_orphaned",
			"transmittal_id", transmittalID, "path", s.fs.Path(from, basename), "error", err)
	}
}

func (s *TransmittalService) setStatus(ctx context.Context, trs *domain.Transmittal, status domain.TransmittalStatus) error {
	next := *trs
	next.Status = status
	next.UpdatedOn = s.now().UTC()
	if err := s.store.Transmittals().Update(ctx, &next); err != nil {
		return fmt.Errorf("set transmittal status %s: %w", status, err)
	}
	*trs = next
	return nil
}

func (s *TransmittalService) record(ctx context.Context, actor, verb string, trs *domain.Transmittal) {
	err := s.audit.Record(ctx, domain.Activity{
		ID:         uuid.NewString(),
		Actor:      actor,
		Verb:       verb,
		TargetType: "transmittal",
		TargetID:   trs.ID,
		Detail:     trs.DocumentKey,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit_record_failed", "verb", verb, "transmittal_id", trs.ID, "error", err)
	}
}
