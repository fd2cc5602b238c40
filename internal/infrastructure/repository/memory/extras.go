package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

type JobStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]domain.JobStatus
}

func NewJobStatusStore() *JobStatusStore {
	return &JobStatusStore{statuses: map[string]domain.JobStatus{}}
}

func (s *JobStatusStore) SaveJobStatus(_ context.Context, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.statuses[status.ID]; ok && len(status.Result) == 0 {
		status.Result = prev.Result
	}
	s.statuses[status.ID] = status
	return nil
}

func (s *JobStatusStore) GetJobStatus(_ context.Context, id string) (*domain.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[id]
	if !ok {
		return nil, notFound("get job status", id)
	}
	return &status, nil
}

type ChoiceRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.ChoiceEntry
}

func NewChoiceRepository() *ChoiceRepository {
	return &ChoiceRepository{entries: map[string]domain.ChoiceEntry{}}
}

func (r *ChoiceRepository) ListByIndex(_ context.Context, listIndex int) ([]domain.ChoiceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.ChoiceEntry{}
	for _, entry := range r.entries {
		if entry.ListIndex == listIndex {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *ChoiceRepository) Save(_ context.Context, entry *domain.ChoiceEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.entries {
		if id != entry.ID && existing.ListIndex == entry.ListIndex && existing.Index == entry.Index {
			return conflict("save choice", fmt.Sprintf("%d/%s", entry.ListIndex, entry.Index))
		}
	}
	r.entries[entry.ID] = *entry
	return nil
}

// AuditLog keeps the audit trail in memory.
type AuditLog struct {
	mu         sync.Mutex
	activities []domain.Activity
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Record(_ context.Context, activity domain.Activity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activities = append(l.activities, activity)
	return nil
}

func (l *AuditLog) ListByTarget(_ context.Context, targetType, targetID string) ([]domain.Activity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.Activity{}
	for _, activity := range l.activities {
		if activity.TargetType == targetType && activity.TargetID == targetID {
			out = append(out, activity)
		}
	}
	return out, nil
}

// NotificationBox keeps per-user notifications in memory.
type NotificationBox struct {
	mu    sync.Mutex
	items []domain.Notification
	now   func() time.Time
}

func NewNotificationBox() *NotificationBox {
	return &NotificationBox{now: time.Now}
}

func (b *NotificationBox) Notify(_ context.Context, userID, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Body:      body,
		CreatedOn: b.now().UTC(),
	})
	return nil
}

// List returns the newest notifications of userID first.
func (b *NotificationBox) List(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := []domain.Notification{}
	for i := len(b.items) - 1; i >= 0 && len(out) < limit; i-- {
		if b.items[i].UserID == userID {
			out = append(out, b.items[i])
		}
	}
	return out, nil
}
