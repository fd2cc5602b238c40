package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type TransmittalRepository struct {
	q sqlx.ExtContext
}

const transmittalColumns = `id, document_key, category, contract, originator, recipient, sequential_number, status,
	transmittal_date, rejected_on, created_on, updated_on`

const trsRevisionColumns = `id, transmittal_id, line_number, document_key, title, revision, status, category, fields,
	pdf_file, native_file, page_count, is_new_revision, accepted, comment, document_id, created_on`

type trsRevisionRow struct {
	ID            string    `db:"id"`
	TransmittalID string    `db:"transmittal_id"`
	LineNumber    int       `db:"line_number"`
	DocumentKey   string    `db:"document_key"`
	Title         string    `db:"title"`
	Revision      int       `db:"revision"`
	Status        string    `db:"status"`
	Category      string    `db:"category"`
	Fields        []byte    `db:"fields"`
	PDFFile       string    `db:"pdf_file"`
	NativeFile    string    `db:"native_file"`
	PageCount     int       `db:"page_count"`
	IsNewRevision bool      `db:"is_new_revision"`
	Accepted      *bool     `db:"accepted"`
	Comment       string    `db:"comment"`
	DocumentID    string    `db:"document_id"`
	CreatedOn     time.Time `db:"created_on"`
}

func (row trsRevisionRow) toDomain() (domain.TrsRevision, error) {
	out := domain.TrsRevision{
		ID:            row.ID,
		TransmittalID: row.TransmittalID,
		LineNumber:    row.LineNumber,
		DocumentKey:   row.DocumentKey,
		Title:         row.Title,
		Revision:      row.Revision,
		Status:        row.Status,
		Category:      row.Category,
		PDFFile:       row.PDFFile,
		NativeFile:    row.NativeFile,
		PageCount:     row.PageCount,
		IsNewRevision: row.IsNewRevision,
		Accepted:      row.Accepted,
		Comment:       row.Comment,
		DocumentID:    row.DocumentID,
		CreatedOn:     row.CreatedOn,
	}
	err := unmarshalFields(row.Fields, &out.Fields)
	return out, err
}

type transmittalRow struct {
	ID               string     `db:"id"`
	DocumentKey      string     `db:"document_key"`
	Category         string     `db:"category"`
	Contract         string     `db:"contract"`
	Originator       string     `db:"originator"`
	Recipient        string     `db:"recipient"`
	SequentialNumber int        `db:"sequential_number"`
	Status           string     `db:"status"`
	TransmittalDate  time.Time  `db:"transmittal_date"`
	RejectedOn       *time.Time `db:"rejected_on"`
	CreatedOn        time.Time  `db:"created_on"`
	UpdatedOn        time.Time  `db:"updated_on"`
}

func (row transmittalRow) toDomain() domain.Transmittal {
	return domain.Transmittal{
		ID:               row.ID,
		DocumentKey:      row.DocumentKey,
		Category:         row.Category,
		Contract:         row.Contract,
		Originator:       row.Originator,
		Recipient:        row.Recipient,
		SequentialNumber: row.SequentialNumber,
		Status:           domain.TransmittalStatus(row.Status),
		TransmittalDate:  row.TransmittalDate,
		RejectedOn:       row.RejectedOn,
		CreatedOn:        row.CreatedOn,
		UpdatedOn:        row.UpdatedOn,
	}
}

func (r *TransmittalRepository) Create(ctx context.Context, trs *domain.Transmittal) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO transmittals (`+transmittalColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		trs.ID, trs.DocumentKey, trs.Category, trs.Contract, trs.Originator, trs.Recipient, trs.SequentialNumber,
		string(trs.Status), trs.TransmittalDate, trs.RejectedOn, trs.CreatedOn, trs.UpdatedOn,
	)
	return mapError("insert transmittal", err)
}

func (r *TransmittalRepository) Update(ctx context.Context, trs *domain.Transmittal) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE transmittals
SET document_key = $2, status = $3, rejected_on = $4, updated_on = $5
WHERE id = $1
`, trs.ID, trs.DocumentKey, string(trs.Status), trs.RejectedOn, trs.UpdatedOn)
	if err != nil {
		return mapError("update transmittal", err)
	}
	return expectAffected("update transmittal", res)
}

func (r *TransmittalRepository) GetByID(ctx context.Context, id string) (*domain.Transmittal, error) {
	var row transmittalRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+transmittalColumns+` FROM transmittals WHERE id = $1`, id); err != nil {
		return nil, mapError("get transmittal", err)
	}
	trs := row.toDomain()
	return &trs, nil
}

func (r *TransmittalRepository) FindActiveByKey(ctx context.Context, documentKey string) (*domain.Transmittal, error) {
	var row transmittalRow
	err := sqlx.GetContext(ctx, r.q, &row, `
SELECT `+transmittalColumns+`
FROM transmittals
WHERE document_key = $1 AND status <> $2
`, documentKey, string(domain.TransmittalRejected))
	if err != nil {
		return nil, mapError("find transmittal", err)
	}
	trs := row.toDomain()
	return &trs, nil
}

func (r *TransmittalRepository) FindBySequence(ctx context.Context, contract, originator, recipient string, seq int) ([]domain.Transmittal, error) {
	var rows []transmittalRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
SELECT `+transmittalColumns+`
FROM transmittals
WHERE contract = $1 AND originator = $2 AND recipient = $3 AND sequential_number = $4
ORDER BY created_on
`, contract, originator, recipient, seq)
	if err != nil {
		return nil, mapError("find transmittals by sequence", err)
	}
	out := make([]domain.Transmittal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *TransmittalRepository) CreateRevisions(ctx context.Context, revs []domain.TrsRevision) error {
	for _, rev := range revs {
		fields, err := marshalFields(rev.Fields)
		if err != nil {
			return err
		}
		_, err = r.q.ExecContext(ctx, `
INSERT INTO trs_revisions (`+trsRevisionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
			rev.ID, rev.TransmittalID, rev.LineNumber, rev.DocumentKey, rev.Title, rev.Revision, rev.Status, rev.Category,
			fields, rev.PDFFile, rev.NativeFile, rev.PageCount, rev.IsNewRevision, rev.Accepted, rev.Comment,
			rev.DocumentID, rev.CreatedOn,
		)
		if err != nil {
			return mapError("insert trs revision", err)
		}
	}
	return nil
}

func (r *TransmittalRepository) ListRevisions(ctx context.Context, transmittalID string) ([]domain.TrsRevision, error) {
	var rows []trsRevisionRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
SELECT `+trsRevisionColumns+`
FROM trs_revisions
WHERE transmittal_id = $1
ORDER BY line_number
`, transmittalID)
	if err != nil {
		return nil, mapError("list trs revisions", err)
	}
	out := make([]domain.TrsRevision, 0, len(rows))
	for _, row := range rows {
		rev, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

func (r *TransmittalRepository) GetRevision(ctx context.Context, id string) (*domain.TrsRevision, error) {
	var row trsRevisionRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+trsRevisionColumns+` FROM trs_revisions WHERE id = $1`, id); err != nil {
		return nil, mapError("get trs revision", err)
	}
	rev, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *TransmittalRepository) UpdateRevision(ctx context.Context, rev *domain.TrsRevision) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE trs_revisions
SET accepted = $2, comment = $3, document_id = $4
WHERE id = $1
`, rev.ID, rev.Accepted, rev.Comment, rev.DocumentID)
	if err != nil {
		return mapError("update trs revision", err)
	}
	return expectAffected("update trs revision", res)
}
