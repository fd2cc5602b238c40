package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewStore(sqlx.NewDb(db, "pgx")), mock, func() { _ = db.Close() }
}

func TestGetByKeyReturnsDomainNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, document_key, title").
		WithArgs("FAC-001").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Documents().GetByKey(context.Background(), "FAC-001")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateDocumentReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", "Title", 2, sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Documents().Update(context.Background(), &domain.Document{
		ID:             "missing",
		Title:          "Title",
		LatestRevision: 2,
		IsIndexable:    true,
		UpdatedOn:      time.Now(),
	})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithinTxCommitsAllStatements(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reviews").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO reviews").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE revisions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Repos) error {
		reviews := []domain.Review{
			{ID: "r1", ReviewerID: "u1", DocumentID: "d1", Revision: 1, Role: domain.RoleReviewer},
			{ID: "r2", ReviewerID: "u2", DocumentID: "d1", Revision: 1, Role: domain.RoleLeader},
		}
		if err := tx.Reviews().CreateMany(ctx, reviews); err != nil {
			return err
		}
		return tx.Revisions().Update(ctx, &domain.Revision{ID: "rev1", DocumentID: "d1", Revision: 1})
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnUniqueViolation(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reviews").WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Repos) error {
		return tx.Reviews().CreateMany(ctx, []domain.Review{{ID: "r1", ReviewerID: "u1", DocumentID: "d1", Revision: 1, Role: domain.RoleLeader}})
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnCallbackError(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectRollback()

	errBoom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(context.Context, ports.Repos) error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListReviewsByRevision(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	reviewed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "reviewer_id", "document_id", "revision", "role", "due_date", "docclass", "reviewed_on", "closed", "comments", "return_code",
	}).
		AddRow("r1", "u1", "d1", 3, "reviewer", nil, 1, reviewed, true, "ok", "1").
		AddRow("r2", "u2", "d1", 3, "leader", nil, 1, nil, false, "", "")
	mock.ExpectQuery("SELECT id, reviewer_id").WithArgs("d1", 3).WillReturnRows(rows)

	reviews, err := store.Reviews().ListByRevision(context.Background(), domain.RevisionKey{DocumentID: "d1", Revision: 3})
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(reviews))
	}
	if !reviews[0].Submitted() || reviews[0].Role != domain.RoleReviewer {
		t.Fatalf("unexpected first review: %+v", reviews[0])
	}
	if reviews[1].Submitted() || reviews[1].Role != domain.RoleLeader {
		t.Fatalf("unexpected second review: %+v", reviews[1])
	}
}

func TestNextSequentialNumber(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("FAC10005", "CTR", "CLT").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))

	next, err := store.Outgoing().NextSequentialNumber(context.Background(), "FAC10005", "CTR", "CLT")
	if err != nil {
		t.Fatalf("next sequential number: %v", err)
	}
	if next != 4 {
		t.Fatalf("expected 4, got %d", next)
	}
}

func TestGetJobStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewJobRepository(sqlx.NewDb(db, "pgx"))

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, kind, state").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "state", "progress", "error", "result", "created_at", "updated_at"}).
			AddRow("job-1", "review.start", "running", 42.5, "", nil, now, now))

	status, err := repo.GetJobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job status: %v", err)
	}
	if status.State != domain.JobRunning || status.Progress != 42.5 || status.Kind != domain.JobStartReviews {
		t.Fatalf("unexpected status: %+v", status)
	}
}
