package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// TxManager runs units of work inside a MySQL transaction.  The open
// transaction travels in the context so every repository call made with
// that context joins it.
type TxManager struct {
	db          *sqlx.DB
	maxAttempts int
}

// NewTxManager returns a TxManager that retries deadlocked transactions up
// to three times.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db, maxAttempts: 3}
}

// WithTx runs fn in a READ COMMITTED transaction.  Serialization between
// competing writers comes from the SELECT ... FOR UPDATE row locks the
// repositories take, not from the isolation level.  When ctx already carries
// a transaction fn simply joins it.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.run(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// conn returns the transaction carried by ctx, or the pool.
func conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// inQuery expands the IN (?) placeholder of query for the slice in args.
func inQuery(q sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	expanded, params, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.Rebind(expanded), params, nil
}
