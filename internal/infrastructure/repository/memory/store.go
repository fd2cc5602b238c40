// Package memory keeps repositories in process memory. Transactions run on a
// copy of the state that replaces the live state only when the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

type state struct {
	documents    map[string]domain.Document
	revisions    map[domain.RevisionKey]domain.Revision
	reviews      map[string]domain.Review
	transmittals map[string]domain.Transmittal
	trsRevisions map[string]domain.TrsRevision
	outgoing     map[string]domain.OutgoingTransmittal
}

func newState() *state {
	return &state{
		documents:    map[string]domain.Document{},
		revisions:    map[domain.RevisionKey]domain.Revision{},
		reviews:      map[string]domain.Review{},
		transmittals: map[string]domain.Transmittal{},
		trsRevisions: map[string]domain.TrsRevision{},
		outgoing:     map[string]domain.OutgoingTransmittal{},
	}
}

func (s *state) clone() *state {
	return &state{
		documents:    maps.Clone(s.documents),
		revisions:    maps.Clone(s.revisions),
		reviews:      maps.Clone(s.reviews),
		transmittals: maps.Clone(s.transmittals),
		trsRevisions: maps.Clone(s.trsRevisions),
		outgoing:     maps.Clone(s.outgoing),
	}
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// view runs fn against the live state.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// update runs fn against the live state. It waits for a running transaction so
// the transaction's commit cannot overwrite the write. Callers inside WithinTx
// must write through the tx repositories.
func (s *Store) update(fn func(st *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Documents() ports.DocumentRepository       { return documents{s.accessor()} }
func (s *Store) Revisions() ports.RevisionRepository       { return revisions{s.accessor()} }
func (s *Store) Reviews() ports.ReviewRepository           { return reviews{s.accessor()} }
func (s *Store) Transmittals() ports.TransmittalRepository { return transmittals{s.accessor()} }
func (s *Store) Outgoing() ports.OutgoingRepository        { return outgoing{s.accessor()} }

func (s *Store) accessor() accessor {
	return accessor{view: s.view, update: s.update}
}

// WithinTx serializes transactions and the writes made outside them.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	tx := &txRepos{st: work}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

type txRepos struct {
	st *state
}

func (t *txRepos) accessor() accessor {
	run := func(fn func(st *state) error) error { return fn(t.st) }
	return accessor{view: run, update: run}
}

func (t *txRepos) Documents() ports.DocumentRepository       { return documents{t.accessor()} }
func (t *txRepos) Revisions() ports.RevisionRepository       { return revisions{t.accessor()} }
func (t *txRepos) Reviews() ports.ReviewRepository           { return reviews{t.accessor()} }
func (t *txRepos) Transmittals() ports.TransmittalRepository { return transmittals{t.accessor()} }
func (t *txRepos) Outgoing() ports.OutgoingRepository        { return outgoing{t.accessor()} }

type accessor struct {
	view   func(fn func(st *state) error) error
	update func(fn func(st *state) error) error
}

func notFound(operation, what string) error {
	return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("%s not found", what))
}

func conflict(operation, what string) error {
	return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("%s already exists", what))
}

type documents struct{ accessor }

func (r documents) Create(_ context.Context, doc *domain.Document) error {
	return r.update(func(st *state) error {
		if _, ok := st.documents[doc.ID]; ok {
			return conflict("insert document", doc.ID)
		}
		for _, existing := range st.documents {
			if existing.DocumentKey == doc.DocumentKey {
				return conflict("insert document", doc.DocumentKey)
			}
		}
		st.documents[doc.ID] = copyDocument(*doc)
		return nil
	})
}

func (r documents) Update(_ context.Context, doc *domain.Document) error {
	return r.update(func(st *state) error {
		if _, ok := st.documents[doc.ID]; !ok {
			return notFound("update document", doc.ID)
		}
		st.documents[doc.ID] = copyDocument(*doc)
		return nil
	})
}

func (r documents) GetByID(_ context.Context, id string) (*domain.Document, error) {
	var out *domain.Document
	err := r.view(func(st *state) error {
		doc, ok := st.documents[id]
		if !ok {
			return notFound("get document", id)
		}
		d := copyDocument(doc)
		out = &d
		return nil
	})
	return out, err
}

func (r documents) GetByKey(_ context.Context, documentKey string) (*domain.Document, error) {
	var out *domain.Document
	err := r.view(func(st *state) error {
		for _, doc := range st.documents {
			if doc.DocumentKey == documentKey {
				d := copyDocument(doc)
				out = &d
				return nil
			}
		}
		return notFound("get document by key", documentKey)
	})
	return out, err
}

type revisions struct{ accessor }

func (r revisions) Create(_ context.Context, rev *domain.Revision) error {
	return r.update(func(st *state) error {
		if _, ok := st.revisions[rev.Key()]; ok {
			return conflict("insert revision", rev.Key().String())
		}
		st.revisions[rev.Key()] = copyRevision(*rev)
		return nil
	})
}

func (r revisions) Update(_ context.Context, rev *domain.Revision) error {
	return r.update(func(st *state) error {
		if _, ok := st.revisions[rev.Key()]; !ok {
			return notFound("update revision", rev.Key().String())
		}
		st.revisions[rev.Key()] = copyRevision(*rev)
		return nil
	})
}

func (r revisions) Get(_ context.Context, key domain.RevisionKey) (*domain.Revision, error) {
	var out *domain.Revision
	err := r.view(func(st *state) error {
		rev, ok := st.revisions[key]
		if !ok {
			return notFound("get revision", key.String())
		}
		c := copyRevision(rev)
		out = &c
		return nil
	})
	return out, err
}

func (r revisions) Latest(_ context.Context, documentID string) (*domain.Revision, error) {
	var out *domain.Revision
	err := r.view(func(st *state) error {
		for key, rev := range st.revisions {
			if key.DocumentID == documentID && (out == nil || rev.Revision > out.Revision) {
				c := copyRevision(rev)
				out = &c
			}
		}
		if out == nil {
			return notFound("get latest revision", documentID)
		}
		return nil
	})
	return out, err
}

type reviews struct{ accessor }

func (r reviews) CreateMany(_ context.Context, items []domain.Review) error {
	return r.update(func(st *state) error {
		for _, review := range items {
			for _, existing := range st.reviews {
				if existing.ReviewerID == review.ReviewerID && existing.DocumentID == review.DocumentID &&
					existing.Revision == review.Revision && existing.Role == review.Role {
					return conflict("insert review", fmt.Sprintf("%s/%s", review.ReviewerID, review.Role))
				}
			}
			st.reviews[review.ID] = review
		}
		return nil
	})
}

func (r reviews) Update(_ context.Context, review *domain.Review) error {
	return r.update(func(st *state) error {
		if _, ok := st.reviews[review.ID]; !ok {
			return notFound("update review", review.ID)
		}
		st.reviews[review.ID] = *review
		return nil
	})
}

func (r reviews) Delete(_ context.Context, id string) error {
	return r.update(func(st *state) error {
		if _, ok := st.reviews[id]; !ok {
			return notFound("delete review", id)
		}
		delete(st.reviews, id)
		return nil
	})
}

func (r reviews) DeleteByRevision(_ context.Context, key domain.RevisionKey) (int, error) {
	n := 0
	err := r.update(func(st *state) error {
		for id, review := range st.reviews {
			if review.DocumentID == key.DocumentID && review.Revision == key.Revision {
				delete(st.reviews, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r reviews) ListByRevision(_ context.Context, key domain.RevisionKey) ([]domain.Review, error) {
	out := []domain.Review{}
	err := r.view(func(st *state) error {
		for _, review := range st.reviews {
			if review.DocumentID == key.DocumentID && review.Revision == key.Revision {
				out = append(out, review)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].ReviewerID < out[j].ReviewerID
	})
	return out, err
}

func (r reviews) CloseByRole(_ context.Context, key domain.RevisionKey, role domain.Role) error {
	return r.update(func(st *state) error {
		for id, review := range st.reviews {
			if review.DocumentID == key.DocumentID && review.Revision == key.Revision && review.Role == role {
				review.Closed = true
				st.reviews[id] = review
			}
		}
		return nil
	})
}

type transmittals struct{ accessor }

func (r transmittals) Create(_ context.Context, trs *domain.Transmittal) error {
	return r.update(func(st *state) error {
		if _, ok := st.transmittals[trs.ID]; ok {
			return conflict("insert transmittal", trs.ID)
		}
		for _, existing := range st.transmittals {
			if existing.DocumentKey == trs.DocumentKey {
				return conflict("insert transmittal", trs.DocumentKey)
			}
		}
		st.transmittals[trs.ID] = *trs
		return nil
	})
}

func (r transmittals) Update(_ context.Context, trs *domain.Transmittal) error {
	return r.update(func(st *state) error {
		if _, ok := st.transmittals[trs.ID]; !ok {
			return notFound("update transmittal", trs.ID)
		}
		st.transmittals[trs.ID] = *trs
		return nil
	})
}

func (r transmittals) GetByID(_ context.Context, id string) (*domain.Transmittal, error) {
	var out *domain.Transmittal
	err := r.view(func(st *state) error {
		trs, ok := st.transmittals[id]
		if !ok {
			return notFound("get transmittal", id)
		}
		out = &trs
		return nil
	})
	return out, err
}

func (r transmittals) FindActiveByKey(_ context.Context, documentKey string) (*domain.Transmittal, error) {
	var out *domain.Transmittal
	err := r.view(func(st *state) error {
		for _, trs := range st.transmittals {
			if trs.DocumentKey == documentKey && trs.Status != domain.TransmittalRejected {
				t := trs
				out = &t
				return nil
			}
		}
		return notFound("find transmittal", documentKey)
	})
	return out, err
}

func (r transmittals) FindBySequence(_ context.Context, contract, originator, recipient string, seq int) ([]domain.Transmittal, error) {
	var out []domain.Transmittal
	err := r.view(func(st *state) error {
		for _, trs := range st.transmittals {
			if trs.Contract == contract && trs.Originator == originator && trs.Recipient == recipient && trs.SequentialNumber == seq {
				out = append(out, trs)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out, err
}

func (r transmittals) CreateRevisions(_ context.Context, revs []domain.TrsRevision) error {
	return r.update(func(st *state) error {
		for _, rev := range revs {
			if _, ok := st.trsRevisions[rev.ID]; ok {
				return conflict("insert trs revision", rev.ID)
			}
			st.trsRevisions[rev.ID] = copyTrsRevision(rev)
		}
		return nil
	})
}

func (r transmittals) ListRevisions(_ context.Context, transmittalID string) ([]domain.TrsRevision, error) {
	out := []domain.TrsRevision{}
	err := r.view(func(st *state) error {
		for _, rev := range st.trsRevisions {
			if rev.TransmittalID == transmittalID {
				out = append(out, copyTrsRevision(rev))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, err
}

func (r transmittals) GetRevision(_ context.Context, id string) (*domain.TrsRevision, error) {
	var out *domain.TrsRevision
	err := r.view(func(st *state) error {
		rev, ok := st.trsRevisions[id]
		if !ok {
			return notFound("get trs revision", id)
		}
		c := copyTrsRevision(rev)
		out = &c
		return nil
	})
	return out, err
}

func (r transmittals) UpdateRevision(_ context.Context, rev *domain.TrsRevision) error {
	return r.update(func(st *state) error {
		if _, ok := st.trsRevisions[rev.ID]; !ok {
			return notFound("update trs revision", rev.ID)
		}
		st.trsRevisions[rev.ID] = copyTrsRevision(*rev)
		return nil
	})
}

type outgoing struct{ accessor }

func (r outgoing) Create(_ context.Context, trs *domain.OutgoingTransmittal) error {
	return r.update(func(st *state) error {
		for _, existing := range st.outgoing {
			if existing.ID == trs.ID || existing.DocumentKey == trs.DocumentKey {
				return conflict("insert outgoing transmittal", trs.DocumentKey)
			}
		}
		c := *trs
		c.Revisions = append([]domain.ExportedRevision(nil), trs.Revisions...)
		st.outgoing[trs.ID] = c
		return nil
	})
}

func (r outgoing) GetByID(_ context.Context, id string) (*domain.OutgoingTransmittal, error) {
	var out *domain.OutgoingTransmittal
	err := r.view(func(st *state) error {
		trs, ok := st.outgoing[id]
		if !ok {
			return notFound("get outgoing transmittal", id)
		}
		trs.Revisions = append([]domain.ExportedRevision(nil), trs.Revisions...)
		out = &trs
		return nil
	})
	return out, err
}

func (r outgoing) NextSequentialNumber(_ context.Context, contract, originator, recipient string) (int, error) {
	next := 1
	err := r.view(func(st *state) error {
		for _, trs := range st.outgoing {
			if trs.Contract == contract && trs.Originator == originator && trs.Recipient == recipient && trs.SequentialNumber >= next {
				next = trs.SequentialNumber + 1
			}
		}
		return nil
	})
	return next, err
}

func copyDocument(doc domain.Document) domain.Document {
	doc.Fields = maps.Clone(doc.Fields)
	return doc
}

func copyRevision(rev domain.Revision) domain.Revision {
	rev.Fields = maps.Clone(rev.Fields)
	rev.Distribution.Reviewers = append([]string(nil), rev.Distribution.Reviewers...)
	return rev
}

func copyTrsRevision(rev domain.TrsRevision) domain.TrsRevision {
	rev.Fields = maps.Clone(rev.Fields)
	if rev.Accepted != nil {
		accepted := *rev.Accepted
		rev.Accepted = &accepted
	}
	return rev
}

var _ ports.Store = (*Store)(nil)
