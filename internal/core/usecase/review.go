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

// ReviewService drives the reviewer -> leader -> approver protocol of a revision.
//
// Mutating methods do not re-check their preconditions: callers check
// CanBeReviewed / IsUnderReview first. Every mutation runs in one store
// transaction; audit and index side effects happen after commit.
type ReviewService struct {
	store          ports.Store
	audit          ports.AuditSink
	index          ports.SearchIndex
	logger         *slog.Logger
	reviewDuration int
	now            func() time.Time
}

func NewReviewService(
	store ports.Store,
	audit ports.AuditSink,
	index ports.SearchIndex,
	logger *slog.Logger,
	reviewDurationDays int,
) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		store:          store,
		audit:          audit,
		index:          index,
		logger:         logger,
		reviewDuration: reviewDurationDays,
		now:            time.Now,
	}
}

func (s *ReviewService) today() time.Time {
	return domain.Day(s.now())
}

// StartReview stamps the start and due dates and creates one Review row per participant.
func (s *ReviewService) StartReview(ctx context.Context, actor string, rev *domain.Revision) error {
	return s.startReview(ctx, actor, rev, true)
}

func (s *ReviewService) startReview(ctx context.Context, actor string, rev *domain.Revision, reindex bool) error {
	today := s.today()
	due := domain.AddDays(today, s.reviewDuration)

	next := *rev
	next.ReviewStartDate = &today
	next.ReviewDueDate = &due
	next.UpdatedOn = s.now().UTC()

	reviews := buildReviews(&next, due)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		if err := tx.Revisions().Update(ctx, &next); err != nil {
			return fmt.Errorf("update revision: %w", err)
		}
		if err := tx.Reviews().CreateMany(ctx, reviews); err != nil {
			return fmt.Errorf("create reviews: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("start review %s: %w", rev.Key(), err)
	}

	*rev = next
	s.afterTransition(ctx, actor, rev, reindex, domain.VerbReviewStarted)
	return nil
}

func buildReviews(rev *domain.Revision, due time.Time) []domain.Review {
	out := make([]domain.Review, 0, len(rev.Distribution.Reviewers)+2)
	add := func(userID string, role domain.Role) {
		d := due
		out = append(out, domain.Review{
			ID:         uuid.NewString(),
			ReviewerID: userID,
			DocumentID: rev.DocumentID,
			Revision:   rev.Revision,
			Role:       role,
			DueDate:    &d,
			Docclass:   rev.Docclass,
		})
	}
	for _, reviewer := range rev.Distribution.Reviewers {
		add(reviewer, domain.RoleReviewer)
	}
	add(rev.Distribution.Leader, domain.RoleLeader)
	if rev.Distribution.Approver != "" {
		add(rev.Distribution.Approver, domain.RoleApprover)
	}
	return out
}

// CancelReview deletes every Review row of the revision and nulls all review dates.
// Comments and timestamps of individual reviews are lost.
func (s *ReviewService) CancelReview(ctx context.Context, actor string, rev *domain.Revision) error {
	return s.cancelReview(ctx, actor, rev, true)
}

func (s *ReviewService) cancelReview(ctx context.Context, actor string, rev *domain.Revision, reindex bool) error {
	next := *rev
	next.ResetReview()
	next.UpdatedOn = s.now().UTC()

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		if _, err := tx.Reviews().DeleteByRevision(ctx, next.Key()); err != nil {
			return fmt.Errorf("delete reviews: %w", err)
		}
		if err := tx.Revisions().Update(ctx, &next); err != nil {
			return fmt.Errorf("update revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel review %s: %w", rev.Key(), err)
	}

	*rev = next
	s.afterTransition(ctx, actor, rev, reindex, domain.VerbReviewCanceled)
	return nil
}

// EndReviewersStep closes the reviewers step and every reviewer Review row.
func (s *ReviewService) EndReviewersStep(ctx context.Context, actor string, rev *domain.Revision) error {
	return s.closeSteps(ctx, actor, rev, "end reviewers step", func(ctx context.Context, tx ports.Repos, next *domain.Revision) ([]string, error) {
		return s.endReviewersStep(ctx, tx, next)
	})
}

// EndLeaderStep closes the leader step, closing the reviewers step first if still open.
func (s *ReviewService) EndLeaderStep(ctx context.Context, actor string, rev *domain.Revision) error {
	return s.closeSteps(ctx, actor, rev, "end leader step", func(ctx context.Context, tx ports.Repos, next *domain.Revision) ([]string, error) {
		return s.endLeaderStep(ctx, tx, next)
	})
}

// EndReview closes the review, cascading through the earlier steps.
func (s *ReviewService) EndReview(ctx context.Context, actor string, rev *domain.Revision) error {
	return s.closeSteps(ctx, actor, rev, "end review", func(ctx context.Context, tx ports.Repos, next *domain.Revision) ([]string, error) {
		return s.endReview(ctx, tx, next)
	})
}

type stepCloser func(ctx context.Context, tx ports.Repos, next *domain.Revision) ([]string, error)

func (s *ReviewService) closeSteps(ctx context.Context, actor string, rev *domain.Revision, operation string, closeFn stepCloser) error {
	next := *rev
	var verbs []string
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		var err error
		verbs, err = closeFn(ctx, tx, &next)
		if err != nil {
			return err
		}
		next.UpdatedOn = s.now().UTC()
		if err := tx.Revisions().Update(ctx, &next); err != nil {
			return fmt.Errorf("update revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", operation, rev.Key(), err)
	}

	*rev = next
	s.afterTransition(ctx, actor, rev, true, verbs...)
	return nil
}

func (s *ReviewService) endReviewersStep(ctx context.Context, tx ports.Repos, rev *domain.Revision) ([]string, error) {
	today := s.today()
	rev.ReviewersStepClosed = &today
	if err := tx.Reviews().CloseByRole(ctx, rev.Key(), domain.RoleReviewer); err != nil {
		return nil, fmt.Errorf("close reviewer reviews: %w", err)
	}
	return []string{domain.VerbReviewersStepClosed}, nil
}

func (s *ReviewService) endLeaderStep(ctx context.Context, tx ports.Repos, rev *domain.Revision) ([]string, error) {
	var verbs []string
	if rev.ReviewersStepClosed == nil {
		closed, err := s.endReviewersStep(ctx, tx, rev)
		if err != nil {
			return nil, err
		}
		verbs = append(verbs, closed...)
	}

	today := s.today()
	rev.LeaderStepClosed = &today
	if err := tx.Reviews().CloseByRole(ctx, rev.Key(), domain.RoleLeader); err != nil {
		return nil, fmt.Errorf("close leader review: %w", err)
	}
	return append(verbs, domain.VerbLeaderStepClosed), nil
}

func (s *ReviewService) endReview(ctx context.Context, tx ports.Repos, rev *domain.Revision) ([]string, error) {
	var verbs []string
	if rev.LeaderStepClosed == nil {
		closed, err := s.endLeaderStep(ctx, tx, rev)
		if err != nil {
			return nil, err
		}
		verbs = append(verbs, closed...)
	}

	today := s.today()
	rev.ReviewEndDate = &today
	if err := tx.Reviews().CloseByRole(ctx, rev.Key(), domain.RoleApprover); err != nil {
		return nil, fmt.Errorf("close approver review: %w", err)
	}
	return append(verbs, domain.VerbReviewClosed), nil
}

// SubmitReview records a participant's review and advances the review when the
// submission completes a step.
func (s *ReviewService) SubmitReview(ctx context.Context, rev *domain.Revision, sub domain.Submission) error {
	if !rev.IsUnderReview() {
		return domain.WrapError(domain.ErrPrecondition, "submit review", fmt.Errorf("revision %s is not under review", rev.Key()))
	}

	next := *rev
	verbs := []string{domain.VerbReviewSubmitted}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		reviews, err := tx.Reviews().ListByRevision(ctx, next.Key())
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		review, err := findReview(reviews, sub.ReviewerID, sub.Role)
		if err != nil {
			return err
		}
		if review.Closed {
			return domain.WrapError(domain.ErrPrecondition, "submit review", fmt.Errorf("%s review of %s is closed", sub.Role, sub.ReviewerID))
		}

		now := s.now().UTC()
		review.ReviewedOn = &now
		review.Closed = true
		review.Comments = sub.Comments
		review.ReturnCode = sub.ReturnCode
		if err := tx.Reviews().Update(ctx, review); err != nil {
			return fmt.Errorf("update review: %w", err)
		}

		var closed []string
		switch sub.Role {
		case domain.RoleReviewer:
			if pendingReviewers(reviews, review.ID) == 0 {
				closed, err = s.endReviewersStep(ctx, tx, &next)
			}
		case domain.RoleLeader:
			if next.Distribution.Approver == "" {
				closed, err = s.endReview(ctx, tx, &next)
			} else {
				closed, err = s.endLeaderStep(ctx, tx, &next)
			}
		case domain.RoleApprover:
			closed, err = s.endReview(ctx, tx, &next)
		}
		if err != nil {
			return err
		}
		verbs = append(verbs, closed...)

		if next.ReviewEndDate != nil && sub.ReturnCode != "" {
			next.ReturnCode = sub.ReturnCode
		}
		next.UpdatedOn = now
		return tx.Revisions().Update(ctx, &next)
	})
	if err != nil {
		return fmt.Errorf("submit review %s: %w", rev.Key(), err)
	}

	*rev = next
	s.afterTransition(ctx, sub.ReviewerID, rev, true, verbs...)
	return nil
}

// pendingReviewers counts reviewer rows not yet submitted, ignoring skipID.
func pendingReviewers(reviews []domain.Review, skipID string) int {
	n := 0
	for _, r := range reviews {
		if r.Role == domain.RoleReviewer && r.ID != skipID && !r.Submitted() {
			n++
		}
	}
	return n
}

func findReview(reviews []domain.Review, userID string, role domain.Role) (*domain.Review, error) {
	for i := range reviews {
		if reviews[i].ReviewerID == userID && reviews[i].Role == role {
			r := reviews[i]
			return &r, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get review",
		fmt.Errorf("%w: user=%s role=%s", domain.ErrReviewNotFound, userID, role))
}

// GetReview returns the review userID holds in role, or an ErrReviewNotFound error.
func (s *ReviewService) GetReview(ctx context.Context, rev *domain.Revision, userID string, role domain.Role) (*domain.Review, error) {
	reviews, err := s.store.Reviews().ListByRevision(ctx, rev.Key())
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return findReview(reviews, userID, role)
}

func (s *ReviewService) GetReviews(ctx context.Context, rev *domain.Revision) ([]domain.Review, error) {
	reviews, err := s.store.Reviews().ListByRevision(ctx, rev.Key())
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

func (s *ReviewService) afterTransition(ctx context.Context, actor string, rev *domain.Revision, reindex bool, verbs ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, verb := range verbs {
		s.record(ctx, actor, verb, rev)
	}
	if reindex {
		if err := s.index.Bulk(ctx, []domain.IndexAction{revisionIndexAction(rev)}); err != nil {
			s.logger.Warn("index_revision_failed", "revision", rev.Key().String(), "error", err)
		}
	}
}

func (s *ReviewService) record(ctx context.Context, actor, verb string, rev *domain.Revision) {
	err := s.audit.Record(ctx, domain.Activity{
		ID:         uuid.NewString(),
		Actor:      actor,
		Verb:       verb,
		TargetType: "revision",
		TargetID:   rev.Key().String(),
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit_record_failed", "verb", verb, "revision", rev.Key().String(), "error", err)
	}
}

func revisionIndexAction(rev *domain.Revision) domain.IndexAction {
	body := map[string]any{
		"document_key":        rev.DocumentKey,
		"document_type":       rev.DocumentType,
		"category":            rev.Category,
		"revision":            rev.Revision,
		"title":               rev.Title,
		"status":              rev.Status,
		"docclass":            rev.Docclass,
		"current_review_step": string(rev.CurrentReviewStep()),
		"under_review":        rev.IsUnderReview(),
		"leader":              rev.Distribution.Leader,
		"approver":            rev.Distribution.Approver,
		"reviewers":           rev.Distribution.Reviewers,
	}
	if rev.ReviewDueDate != nil {
		body["review_due_date"] = rev.ReviewDueDate.Format(time.DateOnly)
	}
	if rev.TransmittalID != "" {
		body["transmittal_id"] = rev.TransmittalID
	}
	return domain.IndexAction{Op: domain.IndexOpIndex, ID: rev.IndexID(), Body: body}
}
