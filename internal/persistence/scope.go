package persistence

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"rowgraph/internal/store"
)

var ErrScopeClosed = errors.New("scope already committed or rolled back")

// Scope is a transaction shared by every operation run with its context.
// In-memory changes made by those operations are reverted on rollback.
type Scope struct {
	tx      store.Tx
	logger  *slog.Logger
	journal journal
	done    bool
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *Scope {
	sc, _ := ctx.Value(scopeKey{}).(*Scope)
	return sc
}

// Begin opens a transaction and returns a context carrying it. Operations
// called with that context join the transaction instead of opening their own.
func (s *Service) Begin(ctx context.Context) (context.Context, *Scope, error) {
	if sc := scopeFrom(ctx); sc != nil && !sc.done {
		return ctx, nil, store.ErrNestedTx
	}
	tx, err := s.exec.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	sc := &Scope{tx: tx, logger: s.logger}
	return context.WithValue(ctx, scopeKey{}, sc), sc, nil
}

// Commit commits the transaction. A failed commit reverts in-memory state.
func (sc *Scope) Commit() error {
	if sc.done {
		return ErrScopeClosed
	}
	sc.done = true
	if err := sc.tx.Commit(); err != nil {
		sc.journal.revert()
		_ = sc.tx.Rollback()
		return err
	}
	sc.journal = nil
	return nil
}

// Rollback aborts the transaction and reverts in-memory state.
func (sc *Scope) Rollback() error {
	if sc.done {
		return nil
	}
	sc.done = true
	sc.journal.revert()
	sc.logger.Warn("scope rolled back")
	return sc.tx.Rollback()
}

// Close rolls back unless the scope was committed.
func (sc *Scope) Close() error {
	return sc.Rollback()
}

// journal holds functions restoring entities to their state before an
// operation touched them.
type journal []func()

func (j *journal) add(undo func()) { *j = append(*j, undo) }

func (j *journal) merge(other journal) { *j = append(*j, other...) }

func (j *journal) revert() {
	for _, undo := range slices.Backward(*j) {
		undo()
	}
	*j = nil
}
