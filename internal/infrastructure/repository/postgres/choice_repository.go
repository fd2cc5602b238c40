package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// ChoiceRepository stores configurable choice list entries.
type ChoiceRepository struct {
	db sqlx.ExtContext
}

func NewChoiceRepository(db sqlx.ExtContext) *ChoiceRepository {
	return &ChoiceRepository{db: db}
}

func (r *ChoiceRepository) ListByIndex(ctx context.Context, listIndex int) ([]domain.ChoiceEntry, error) {
	entries := []domain.ChoiceEntry{}
	err := sqlx.SelectContext(ctx, r.db, &entries, `
SELECT id, list_index, value, label
FROM values_list_entries
WHERE list_index = $1
ORDER BY value
`, listIndex)
	if err != nil {
		return nil, mapError("list choices", err)
	}
	return entries, nil
}

func (r *ChoiceRepository) Save(ctx context.Context, entry *domain.ChoiceEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO values_list_entries (id, list_index, value, label)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE
SET list_index = EXCLUDED.list_index, value = EXCLUDED.value, label = EXCLUDED.label
`, entry.ID, entry.ListIndex, entry.Index, entry.Label)
	return mapError("save choice", err)
}
