package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type DocumentRepository struct {
	q sqlx.ExtContext
}

const documentColumns = `id, document_key, title, category, document_type, latest_revision, fields, is_indexable, created_on, updated_on`

type documentRow struct {
	ID             string    `db:"id"`
	DocumentKey    string    `db:"document_key"`
	Title          string    `db:"title"`
	Category       string    `db:"category"`
	DocumentType   string    `db:"document_type"`
	LatestRevision int       `db:"latest_revision"`
	Fields         []byte    `db:"fields"`
	IsIndexable    bool      `db:"is_indexable"`
	CreatedOn      time.Time `db:"created_on"`
	UpdatedOn      time.Time `db:"updated_on"`
}

func (row documentRow) toDomain() (*domain.Document, error) {
	doc := &domain.Document{
		ID:             row.ID,
		DocumentKey:    row.DocumentKey,
		Title:          row.Title,
		Category:       row.Category,
		DocumentType:   row.DocumentType,
		LatestRevision: row.LatestRevision,
		IsIndexable:    row.IsIndexable,
		CreatedOn:      row.CreatedOn,
		UpdatedOn:      row.UpdatedOn,
	}
	if err := unmarshalFields(row.Fields, &doc.Fields); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	fields, err := marshalFields(doc.Fields)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.DocumentKey, doc.Title, doc.Category, doc.DocumentType, doc.LatestRevision,
		fields, doc.IsIndexable, doc.CreatedOn, doc.UpdatedOn,
	)
	return mapError("insert document", err)
}

func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	fields, err := marshalFields(doc.Fields)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE documents
SET title = $2, latest_revision = $3, fields = $4, is_indexable = $5, updated_on = $6
WHERE id = $1
`, doc.ID, doc.Title, doc.LatestRevision, fields, doc.IsIndexable, doc.UpdatedOn)
	if err != nil {
		return mapError("update document", err)
	}
	return expectAffected("update document", res)
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var row documentRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id); err != nil {
		return nil, mapError("get document", err)
	}
	return row.toDomain()
}

func (r *DocumentRepository) GetByKey(ctx context.Context, documentKey string) (*domain.Document, error) {
	var row documentRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+documentColumns+` FROM documents WHERE document_key = $1`, documentKey); err != nil {
		return nil, mapError("get document by key", err)
	}
	return row.toDomain()
}

func marshalFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return raw, nil
}

func unmarshalFields(raw []byte, dst *map[string]string) error {
	if len(raw) == 0 {
		*dst = map[string]string{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal fields: %w", err)
	}
	return nil
}
