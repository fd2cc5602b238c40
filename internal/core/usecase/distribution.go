package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

var errStepClosed = errors.New("step is closed")

// UpdateDistributionList edits the participants of a revision, keeping the
// Review rows of an ongoing review in sync.
//
// Reviewers may change only while the reviewers step is open and a reviewer who
// already submitted cannot be removed. Leader and approver are frozen once their
// step closed. Removing the last pending reviewer closes the reviewers step.
func (s *ReviewService) UpdateDistributionList(ctx context.Context, actor string, rev *domain.Revision, list domain.DistributionList) error {
	if err := list.Validate(); err != nil {
		return err
	}

	current := rev.Distribution
	added, removed := diffReviewers(current.Reviewers, list.Reviewers)
	leaderChanged := current.Leader != list.Leader
	approverChanged := current.Approver != list.Approver

	if err := checkDistributionChange(rev, len(added)+len(removed) > 0, leaderChanged, approverChanged); err != nil {
		return err
	}

	next := *rev
	next.Distribution = domain.DistributionList{
		Reviewers: slices.Clone(list.Reviewers),
		Leader:    list.Leader,
		Approver:  list.Approver,
	}
	next.UpdatedOn = s.now().UTC()

	verbs := []string{domain.VerbDistributionEdited}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		if next.IsUnderReview() {
			closed, err := s.syncReviewRows(ctx, tx, &next, added, removed, leaderChanged, approverChanged)
			if err != nil {
				return err
			}
			verbs = append(verbs, closed...)
		}
		return tx.Revisions().Update(ctx, &next)
	})
	if err != nil {
		return fmt.Errorf("update distribution list %s: %w", rev.Key(), err)
	}

	*rev = next
	s.afterTransition(ctx, actor, rev, true, verbs...)
	return nil
}

func checkDistributionChange(rev *domain.Revision, reviewersChanged, leaderChanged, approverChanged bool) error {
	switch {
	case reviewersChanged && rev.ReviewersStepClosed != nil:
		return domain.WrapError(domain.ErrPrecondition, "update distribution list", fmt.Errorf("reviewers: %w", errStepClosed))
	case leaderChanged && rev.LeaderStepClosed != nil:
		return domain.WrapError(domain.ErrPrecondition, "update distribution list", fmt.Errorf("leader: %w", errStepClosed))
	case approverChanged && rev.ReviewEndDate != nil:
		return domain.WrapError(domain.ErrPrecondition, "update distribution list", fmt.Errorf("approver: %w", errStepClosed))
	}
	return nil
}

func (s *ReviewService) syncReviewRows(
	ctx context.Context,
	tx ports.Repos,
	rev *domain.Revision,
	added, removed []string,
	leaderChanged, approverChanged bool,
) ([]string, error) {
	reviews, err := tx.Reviews().ListByRevision(ctx, rev.Key())
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	for _, userID := range removed {
		review, err := findReview(reviews, userID, domain.RoleReviewer)
		if err != nil {
			continue
		}
		if review.Submitted() {
			return nil, domain.WrapError(domain.ErrPrecondition, "remove reviewer",
				fmt.Errorf("%s already submitted a review", userID))
		}
		if err := tx.Reviews().Delete(ctx, review.ID); err != nil {
			return nil, fmt.Errorf("delete review: %w", err)
		}
	}

	var rows []domain.Review
	for _, userID := range added {
		rows = append(rows, s.newReview(rev, userID, domain.RoleReviewer))
	}
	if leaderChanged {
		created, err := s.reassign(ctx, tx, reviews, rev, domain.RoleLeader, rev.Distribution.Leader)
		if err != nil {
			return nil, err
		}
		rows = append(rows, created...)
	}
	if approverChanged {
		created, err := s.reassign(ctx, tx, reviews, rev, domain.RoleApprover, rev.Distribution.Approver)
		if err != nil {
			return nil, err
		}
		rows = append(rows, created...)
	}
	if len(rows) > 0 {
		if err := tx.Reviews().CreateMany(ctx, rows); err != nil {
			return nil, fmt.Errorf("create reviews: %w", err)
		}
	}

	if len(removed) == 0 || rev.CurrentReviewStep() != domain.StepReviewer {
		return nil, nil
	}
	remaining, err := tx.Reviews().ListByRevision(ctx, rev.Key())
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	if pendingReviewers(remaining, "") > 0 {
		return nil, nil
	}
	return s.endReviewersStep(ctx, tx, rev)
}

// reassign moves the open review of role to userID. It returns rows to create.
func (s *ReviewService) reassign(ctx context.Context, tx ports.Repos, reviews []domain.Review, rev *domain.Revision, role domain.Role, userID string) ([]domain.Review, error) {
	var existing *domain.Review
	for i := range reviews {
		if reviews[i].Role == role {
			r := reviews[i]
			existing = &r
			break
		}
	}

	switch {
	case existing == nil && userID == "":
		return nil, nil
	case existing == nil:
		return []domain.Review{s.newReview(rev, userID, role)}, nil
	case userID == "":
		if err := tx.Reviews().Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("delete %s review: %w", role, err)
		}
		return nil, nil
	default:
		existing.ReviewerID = userID
		existing.ReviewedOn = nil
		existing.Comments = ""
		existing.ReturnCode = ""
		if err := tx.Reviews().Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update %s review: %w", role, err)
		}
		return nil, nil
	}
}

func (s *ReviewService) newReview(rev *domain.Revision, userID string, role domain.Role) domain.Review {
	review := domain.Review{
		ID:         uuid.NewString(),
		ReviewerID: userID,
		DocumentID: rev.DocumentID,
		Revision:   rev.Revision,
		Role:       role,
		Docclass:   rev.Docclass,
	}
	if rev.ReviewDueDate != nil {
		due := *rev.ReviewDueDate
		review.DueDate = &due
	}
	return review
}

func diffReviewers(before, after []string) (added, removed []string) {
	for _, u := range after {
		if !slices.Contains(before, u) {
			added = append(added, u)
		}
	}
	for _, u := range before {
		if !slices.Contains(after, u) {
			removed = append(removed, u)
		}
	}
	return added, removed
}
