package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "pgx"), mock
}

func TestAuditLogListByTarget(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "actor", "verb", "target_type", "target_id", "detail", "created_at"}).
		AddRow("a-1", "leader", domain.VerbReviewStarted, "revision", "doc-1/2", "", now).
		AddRow("a-2", "leader", domain.VerbReviewClosed, "revision", "doc-1/2", "", now.Add(time.Minute))
	mock.ExpectQuery("FROM activities").
		WithArgs("revision", "doc-1/2").
		WillReturnRows(rows)

	activities, err := NewAuditLog(db).ListByTarget(context.Background(), "revision", "doc-1/2")
	if err != nil {
		t.Fatalf("ListByTarget() error = %v", err)
	}
	if len(activities) != 2 || activities[1].Verb != domain.VerbReviewClosed {
		t.Fatalf("unexpected activities: %+v", activities)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationBoxListDefaultsLimit(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "body", "seen", "created_on"}).
		AddRow("n-1", "u-1", "review started", false, time.Now())
	mock.ExpectQuery("FROM notifications").
		WithArgs("u-1", 50).
		WillReturnRows(rows)

	notifications, err := NewNotificationBox(db).List(context.Background(), "u-1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(notifications) != 1 || notifications[0].Body != "review started" {
		t.Fatalf("unexpected notifications: %+v", notifications)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChoiceRepositorySaveUpserts(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO values_list_entries").
		WithArgs("c-1", 3, "IFR", "Issued for review").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewChoiceRepository(db).Save(context.Background(), &domain.ChoiceEntry{
		ID:        "c-1",
		ListIndex: 3,
		Index:     "IFR",
		Label:     "Issued for review",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
