package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sandevgo/mnemo/internal/core"
)

const DefaultDuplicateThreshold = 0.7

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements core.Repository on SQLite. A Store bound to a
// transaction is handed to Atomic callbacks.
type Store struct {
	db      *sql.DB
	q       querier
	vectors *vectorIndex
	now     core.Clock

	dupThreshold float64

	// hooks is non-nil inside Atomic and collects index updates that
	// must only be applied after commit.
	hooks *[]func()
}

type Option func(*Store)

func WithClock(now core.Clock) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithDuplicateThreshold(t float64) Option {
	return func(s *Store) {
		if t > 0 {
			s.dupThreshold = t
		}
	}
}

func NewStore(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:           db,
		q:            db,
		vectors:      newVectorIndex(),
		now:          time.Now,
		dupThreshold: DefaultDuplicateThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.vectors.load(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	return s, nil
}

// Open creates the database at path, migrates it and returns a Store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := NewDB(ctx, path)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx() bool {
	return s.hooks != nil
}

func (s *Store) Atomic(ctx context.Context, fn func(core.Repository) error) error {
	if s.inTx() {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	defer tx.Rollback()

	var hooks []func()
	txStore := *s
	txStore.q = tx
	txStore.hooks = &hooks

	if err := fn(&txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit", err)
	}

	for _, h := range hooks {
		h()
	}
	return nil
}

func (s *Store) afterCommit(fn func()) {
	if s.hooks != nil {
		*s.hooks = append(*s.hooks, fn)
		return
	}
	fn()
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy()).String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

var _ core.Repository = (*Store)(nil)
