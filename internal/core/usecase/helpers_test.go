package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/infrastructure/repository/memory"
)

var fixedNow = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type indexFake struct {
	mu      sync.Mutex
	calls   int
	actions []domain.IndexAction
	err     error
}

func (f *indexFake) Bulk(_ context.Context, actions []domain.IndexAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.actions = append(f.actions, actions...)
	return f.err
}

type auditFake struct {
	mu         sync.Mutex
	activities []domain.Activity
}

func (f *auditFake) Record(_ context.Context, activity domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, activity)
	return nil
}

func (f *auditFake) verbs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.activities))
	for _, a := range f.activities {
		out = append(out, a.Verb)
	}
	return out
}

type notifierFake struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (f *notifierFake) Notify(_ context.Context, userID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = map[string][]string{}
	}
	f.messages[userID] = append(f.messages[userID], body)
	return nil
}

type reviewFixture struct {
	store   *memory.Store
	audit   *auditFake
	index   *indexFake
	service *ReviewService
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	f := &reviewFixture{
		store: memory.NewStore(),
		audit: &auditFake{},
		index: &indexFake{},
	}
	f.service = NewReviewService(f.store, f.audit, f.index, nil, 13)
	f.service.now = fixedClock
	return f
}

// addRevision stores a document with one revision distributed to list.
func (f *reviewFixture) addRevision(t *testing.T, documentID, documentType string, list domain.DistributionList) *domain.Revision {
	t.Helper()
	ctx := context.Background()
	doc := &domain.Document{
		ID:             documentID,
		DocumentKey:    "FAC09001-FWF-000-HSE-REP-" + documentID,
		Title:          "Report " + documentID,
		Category:       "ctr-deliverables",
		DocumentType:   documentType,
		LatestRevision: 1,
		CreatedOn:      fixedNow,
		UpdatedOn:      fixedNow,
	}
	if err := f.store.Documents().Create(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	rev := &domain.Revision{
		ID:           "rev-" + documentID,
		DocumentID:   doc.ID,
		DocumentKey:  doc.DocumentKey,
		DocumentType: doc.DocumentType,
		Category:     doc.Category,
		Revision:     1,
		Title:        doc.Title,
		Status:       "IFR",
		Docclass:     2,
		Distribution: list,
		CreatedOn:    fixedNow,
		UpdatedOn:    fixedNow,
	}
	if err := f.store.Revisions().Create(ctx, rev); err != nil {
		t.Fatalf("create revision: %v", err)
	}
	return rev
}

func (f *reviewFixture) reviews(t *testing.T, rev *domain.Revision) []domain.Review {
	t.Helper()
	reviews, err := f.store.Reviews().ListByRevision(context.Background(), rev.Key())
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	return reviews
}

func (f *reviewFixture) stored(t *testing.T, rev *domain.Revision) *domain.Revision {
	t.Helper()
	got, err := f.store.Revisions().Get(context.Background(), rev.Key())
	if err != nil {
		t.Fatalf("get revision: %v", err)
	}
	return got
}

func fullDistribution() domain.DistributionList {
	return domain.DistributionList{Reviewers: []string{"r1", "r2"}, Leader: "lead", Approver: "appr"}
}

func countRole(reviews []domain.Review, role domain.Role) int {
	n := 0
	for _, r := range reviews {
		if r.Role == role {
			n++
		}
	}
	return n
}
