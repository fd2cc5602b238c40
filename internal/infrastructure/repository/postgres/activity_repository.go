package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// AuditLog appends activities to the audit trail.
type AuditLog struct {
	db sqlx.ExtContext
}

func NewAuditLog(db sqlx.ExtContext) *AuditLog {
	return &AuditLog{db: db}
}

func (l *AuditLog) Record(ctx context.Context, activity domain.Activity) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO activities (id, actor, verb, target_type, target_id, detail, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, activity.ID, activity.Actor, activity.Verb, activity.TargetType, activity.TargetID, activity.Detail, activity.CreatedAt)
	return mapError("insert activity", err)
}

// ListByTarget returns the trail of one target, oldest first.
func (l *AuditLog) ListByTarget(ctx context.Context, targetType, targetID string) ([]domain.Activity, error) {
	out := []domain.Activity{}
	err := sqlx.SelectContext(ctx, l.db, &out, `
SELECT id, actor, verb, target_type, target_id, detail, created_at
FROM activities
WHERE target_type = $1 AND target_id = $2
ORDER BY created_at
`, targetType, targetID)
	if err != nil {
		return nil, mapError("list activities", err)
	}
	return out, nil
}

// NotificationBox stores user-visible notifications.
type NotificationBox struct {
	db  sqlx.ExtContext
	now func() time.Time
}

func NewNotificationBox(db sqlx.ExtContext) *NotificationBox {
	return &NotificationBox{db: db, now: time.Now}
}

func (b *NotificationBox) Notify(ctx context.Context, userID, body string) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO notifications (id, user_id, body, seen, created_on)
VALUES ($1,$2,$3,FALSE,$4)
`, uuid.NewString(), userID, body, b.now().UTC())
	return mapError("insert notification", err)
}

func (b *NotificationBox) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []domain.Notification{}
	err := sqlx.SelectContext(ctx, b.db, &out, `
SELECT id, user_id, body, seen, created_on
FROM notifications
WHERE user_id = $1
ORDER BY created_on DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, mapError("list notifications", err)
	}
	return out, nil
}
