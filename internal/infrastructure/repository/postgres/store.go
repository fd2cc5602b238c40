package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// Store serves repositories over a pool or, inside WithinTx, over one transaction.
type Store struct {
	db *sqlx.DB
	repos
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, repos: newRepos(db)}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, newRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type repos struct {
	documents    *DocumentRepository
	revisions    *RevisionRepository
	reviews      *ReviewRepository
	transmittals *TransmittalRepository
	outgoing     *OutgoingRepository
}

func newRepos(q sqlx.ExtContext) repos {
	return repos{
		documents:    &DocumentRepository{q: q},
		revisions:    &RevisionRepository{q: q},
		reviews:      &ReviewRepository{q: q},
		transmittals: &TransmittalRepository{q: q},
		outgoing:     &OutgoingRepository{q: q},
	}
}

func (r repos) Documents() ports.DocumentRepository       { return r.documents }
func (r repos) Revisions() ports.RevisionRepository       { return r.revisions }
func (r repos) Reviews() ports.ReviewRepository           { return r.reviews }
func (r repos) Transmittals() ports.TransmittalRepository { return r.transmittals }
func (r repos) Outgoing() ports.OutgoingRepository        { return r.outgoing }

var _ ports.Store = (*Store)(nil)
