package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type OutgoingRepository struct {
	q sqlx.ExtContext
}

const outgoingColumns = `id, document_key, category, contract, originator, recipient, sequential_number,
	purpose_of_issue, transmittal_date, created_on`

const exportedColumns = `id, transmittal_id, document_id, document_key, revision, title, status, return_code`

type outgoingRow struct {
	ID               string    `db:"id"`
	DocumentKey      string    `db:"document_key"`
	Category         string    `db:"category"`
	Contract         string    `db:"contract"`
	Originator       string    `db:"originator"`
	Recipient        string    `db:"recipient"`
	SequentialNumber int       `db:"sequential_number"`
	PurposeOfIssue   string    `db:"purpose_of_issue"`
	TransmittalDate  time.Time `db:"transmittal_date"`
	CreatedOn        time.Time `db:"created_on"`
}

type exportedRow struct {
	ID            string `db:"id"`
	TransmittalID string `db:"transmittal_id"`
	DocumentID    string `db:"document_id"`
	DocumentKey   string `db:"document_key"`
	Revision      int    `db:"revision"`
	Title         string `db:"title"`
	Status        string `db:"status"`
	ReturnCode    string `db:"return_code"`
}

// Create stores the header and its frozen revision snapshots.
func (r *OutgoingRepository) Create(ctx context.Context, trs *domain.OutgoingTransmittal) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO outgoing_transmittals (`+outgoingColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		trs.ID, trs.DocumentKey, trs.Category, trs.Contract, trs.Originator, trs.Recipient, trs.SequentialNumber,
		trs.PurposeOfIssue, trs.TransmittalDate, trs.CreatedOn,
	)
	if err != nil {
		return mapError("insert outgoing transmittal", err)
	}
	for _, rev := range trs.Revisions {
		_, err := r.q.ExecContext(ctx, `
INSERT INTO exported_revisions (`+exportedColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, rev.ID, trs.ID, rev.DocumentID, rev.DocumentKey, rev.Revision, rev.Title, rev.Status, rev.ReturnCode)
		if err != nil {
			return mapError("insert exported revision", err)
		}
	}
	return nil
}

func (r *OutgoingRepository) GetByID(ctx context.Context, id string) (*domain.OutgoingTransmittal, error) {
	var row outgoingRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+outgoingColumns+` FROM outgoing_transmittals WHERE id = $1`, id); err != nil {
		return nil, mapError("get outgoing transmittal", err)
	}
	var revs []exportedRow
	err := sqlx.SelectContext(ctx, r.q, &revs, `
SELECT `+exportedColumns+`
FROM exported_revisions
WHERE transmittal_id = $1
ORDER BY document_key, revision
`, id)
	if err != nil {
		return nil, mapError("list exported revisions", err)
	}

	out := &domain.OutgoingTransmittal{
		ID:               row.ID,
		DocumentKey:      row.DocumentKey,
		Category:         row.Category,
		Contract:         row.Contract,
		Originator:       row.Originator,
		Recipient:        row.Recipient,
		SequentialNumber: row.SequentialNumber,
		PurposeOfIssue:   row.PurposeOfIssue,
		TransmittalDate:  row.TransmittalDate,
		CreatedOn:        row.CreatedOn,
		Revisions:        make([]domain.ExportedRevision, 0, len(revs)),
	}
	for _, rev := range revs {
		out.Revisions = append(out.Revisions, domain.ExportedRevision(rev))
	}
	return out, nil
}

func (r *OutgoingRepository) NextSequentialNumber(ctx context.Context, contract, originator, recipient string) (int, error) {
	var next int
	err := sqlx.GetContext(ctx, r.q, &next, `
SELECT COALESCE(MAX(sequential_number), 0) + 1
FROM outgoing_transmittals
WHERE contract = $1 AND originator = $2 AND recipient = $3
`, contract, originator, recipient)
	if err != nil {
		return 0, mapError("next sequential number", err)
	}
	return next, nil
}
