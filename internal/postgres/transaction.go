package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

type txKey struct{}

// Tx is a transaction shared by every repository call made with its context.
// Nested WithTx calls open savepoints on the same transaction, so an inner
// failure undoes only the inner unit.
type Tx struct {
	*sqlx.Tx
	ID    string
	depth int
}

// GetTx returns the transaction carried by ctx, if any
func GetTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

func (tx *Tx) savepoint() string {
	return fmt.Sprintf("sp_%d", tx.depth)
}

// execSavepoint runs a SAVEPOINT statement of the form "<verb> sp_n"
func (db *DB) execSavepoint(ctx context.Context, tx *Tx, verb string) error {
	stmt := verb + " " + tx.savepoint()
	db.logger.Debugw("savepoint", "tx_id", tx.ID, "statement", stmt)

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return TranslateError(err, stmt)
	}
	return nil
}

// BeginTx opens a transaction, or a savepoint when ctx already carries one
func (db *DB) BeginTx(ctx context.Context) (context.Context, *Tx, error) {
	if tx, ok := GetTx(ctx); ok {
		tx.depth++
		if err := db.execSavepoint(ctx, tx, "SAVEPOINT"); err != nil {
			tx.depth--
			return ctx, nil, err
		}
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ctx, nil, TranslateError(err, "begin transaction")
	}

	tx := &Tx{Tx: sqlxTx, ID: types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TX)}
	db.logger.Debugw("began transaction", "tx_id", tx.ID)

	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

// CommitTx commits the innermost level of the transaction in ctx
func (db *DB) CommitTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("no transaction in context").Mark(ierr.ErrSystem)
	}

	if tx.depth > 0 {
		if err := db.execSavepoint(ctx, tx, "RELEASE SAVEPOINT"); err != nil {
			return err
		}
		tx.depth--
		return nil
	}

	db.logger.Debugw("committing transaction", "tx_id", tx.ID)
	return TranslateError(tx.Commit(), "commit transaction")
}

// RollbackTx undoes the innermost level of the transaction in ctx
func (db *DB) RollbackTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("no transaction in context").Mark(ierr.ErrSystem)
	}

	if tx.depth > 0 {
		if err := db.execSavepoint(ctx, tx, "ROLLBACK TO SAVEPOINT"); err != nil {
			return err
		}
		tx.depth--
		return nil
	}

	db.logger.Debugw("rolling back transaction", "tx_id", tx.ID)
	return TranslateError(tx.Rollback(), "rollback transaction")
}

// WithTx runs fn inside a transaction. Supersession and reservation confirm
// use it to keep their paired writes atomic.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			db.logger.Errorw("panic in transaction", "tx_id", tx.ID, "panic", r)
			_ = db.RollbackTx(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := db.RollbackTx(ctx); rbErr != nil {
			db.logger.Errorw("rollback failed", "tx_id", tx.ID, "error", rbErr, "cause", err)
		}
		return err
	}

	return db.CommitTx(ctx)
}
