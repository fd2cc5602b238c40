package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type ReviewRepository struct {
	q sqlx.ExtContext
}

const reviewColumns = `id, reviewer_id, document_id, revision, role, due_date, docclass, reviewed_on, closed, comments, return_code`

func (r *ReviewRepository) CreateMany(ctx context.Context, reviews []domain.Review) error {
	for _, review := range reviews {
		_, err := r.q.ExecContext(ctx, `
INSERT INTO reviews (`+reviewColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			review.ID, review.ReviewerID, review.DocumentID, review.Revision, string(review.Role), review.DueDate,
			review.Docclass, review.ReviewedOn, review.Closed, review.Comments, review.ReturnCode,
		)
		if err != nil {
			return mapError("insert review", err)
		}
	}
	return nil
}

func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE reviews
SET reviewer_id = $2, due_date = $3, reviewed_on = $4, closed = $5, comments = $6, return_code = $7
WHERE id = $1
`, review.ID, review.ReviewerID, review.DueDate, review.ReviewedOn, review.Closed, review.Comments, review.ReturnCode)
	if err != nil {
		return mapError("update review", err)
	}
	return expectAffected("update review", res)
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return mapError("delete review", err)
	}
	return expectAffected("delete review", res)
}

func (r *ReviewRepository) DeleteByRevision(ctx context.Context, key domain.RevisionKey) (int, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE document_id = $1 AND revision = $2`, key.DocumentID, key.Revision)
	if err != nil {
		return 0, mapError("delete reviews", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("delete reviews", err)
	}
	return int(n), nil
}

func (r *ReviewRepository) ListByRevision(ctx context.Context, key domain.RevisionKey) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := sqlx.SelectContext(ctx, r.q, &reviews, `
SELECT `+reviewColumns+`
FROM reviews
WHERE document_id = $1 AND revision = $2
ORDER BY role, reviewer_id
`, key.DocumentID, key.Revision)
	if err != nil {
		return nil, mapError("list reviews", err)
	}
	return reviews, nil
}

func (r *ReviewRepository) CloseByRole(ctx context.Context, key domain.RevisionKey, role domain.Role) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE reviews SET closed = TRUE
WHERE document_id = $1 AND revision = $2 AND role = $3
`, key.DocumentID, key.Revision, string(role))
	return mapError("close reviews", err)
}
