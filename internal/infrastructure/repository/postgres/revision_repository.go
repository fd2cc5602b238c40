package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type RevisionRepository struct {
	q sqlx.ExtContext
}

const revisionColumns = `id, document_id, document_key, document_type, category, revision, title, status, return_code, docclass,
	fields, distribution, review_start_date, review_due_date, reviewers_step_closed, leader_step_closed, review_end_date,
	transmittal_id, transmittal_sent_date, external_review_due_date, created_on, updated_on`

type revisionRow struct {
	ID           string `db:"id"`
	DocumentID   string `db:"document_id"`
	DocumentKey  string `db:"document_key"`
	DocumentType string `db:"document_type"`
	Category     string `db:"category"`
	Revision     int    `db:"revision"`
	Title        string `db:"title"`
	Status       string `db:"status"`
	ReturnCode   string `db:"return_code"`
	Docclass     int    `db:"docclass"`
	Fields       []byte `db:"fields"`
	Distribution []byte `db:"distribution"`
	domain.ReviewState
	domain.TransmittalState
	CreatedOn time.Time `db:"created_on"`
	UpdatedOn time.Time `db:"updated_on"`
}

func (row revisionRow) toDomain() (*domain.Revision, error) {
	rev := &domain.Revision{
		ID:               row.ID,
		DocumentID:       row.DocumentID,
		DocumentKey:      row.DocumentKey,
		DocumentType:     row.DocumentType,
		Category:         row.Category,
		Revision:         row.Revision,
		Title:            row.Title,
		Status:           row.Status,
		ReturnCode:       row.ReturnCode,
		Docclass:         row.Docclass,
		ReviewState:      row.ReviewState,
		TransmittalState: row.TransmittalState,
		CreatedOn:        row.CreatedOn,
		UpdatedOn:        row.UpdatedOn,
	}
	if err := unmarshalFields(row.Fields, &rev.Fields); err != nil {
		return nil, err
	}
	if len(row.Distribution) > 0 {
		if err := json.Unmarshal(row.Distribution, &rev.Distribution); err != nil {
			return nil, fmt.Errorf("unmarshal distribution: %w", err)
		}
	}
	return rev, nil
}

func (r *RevisionRepository) Create(ctx context.Context, rev *domain.Revision) error {
	fields, distribution, err := marshalRevision(rev)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO revisions (`+revisionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
`,
		rev.ID, rev.DocumentID, rev.DocumentKey, rev.DocumentType, rev.Category, rev.Revision, rev.Title, rev.Status,
		rev.ReturnCode, rev.Docclass, fields, distribution,
		rev.ReviewStartDate, rev.ReviewDueDate, rev.ReviewersStepClosed, rev.LeaderStepClosed, rev.ReviewEndDate,
		rev.TransmittalID, rev.TransmittalSentDate, rev.ExternalReviewDueDate, rev.CreatedOn, rev.UpdatedOn,
	)
	return mapError("insert revision", err)
}

func (r *RevisionRepository) Update(ctx context.Context, rev *domain.Revision) error {
	fields, distribution, err := marshalRevision(rev)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE revisions
SET title = $2, status = $3, return_code = $4, docclass = $5, fields = $6, distribution = $7,
	review_start_date = $8, review_due_date = $9, reviewers_step_closed = $10, leader_step_closed = $11, review_end_date = $12,
	transmittal_id = $13, transmittal_sent_date = $14, external_review_due_date = $15, updated_on = $16
WHERE id = $1
`,
		rev.ID, rev.Title, rev.Status, rev.ReturnCode, rev.Docclass, fields, distribution,
		rev.ReviewStartDate, rev.ReviewDueDate, rev.ReviewersStepClosed, rev.LeaderStepClosed, rev.ReviewEndDate,
		rev.TransmittalID, rev.TransmittalSentDate, rev.ExternalReviewDueDate, rev.UpdatedOn,
	)
	if err != nil {
		return mapError("update revision", err)
	}
	return expectAffected("update revision", res)
}

func (r *RevisionRepository) Get(ctx context.Context, key domain.RevisionKey) (*domain.Revision, error) {
	var row revisionRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+revisionColumns+` FROM revisions WHERE document_id = $1 AND revision = $2`, key.DocumentID, key.Revision)
	if err != nil {
		return nil, mapError("get revision", err)
	}
	return row.toDomain()
}

func (r *RevisionRepository) Latest(ctx context.Context, documentID string) (*domain.Revision, error) {
	var row revisionRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+revisionColumns+` FROM revisions WHERE document_id = $1 ORDER BY revision DESC LIMIT 1`, documentID)
	if err != nil {
		return nil, mapError("get latest revision", err)
	}
	return row.toDomain()
}

func marshalRevision(rev *domain.Revision) ([]byte, []byte, error) {
	fields, err := marshalFields(rev.Fields)
	if err != nil {
		return nil, nil, err
	}
	distribution, err := json.Marshal(rev.Distribution)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal distribution: %w", err)
	}
	return fields, distribution, nil
}
