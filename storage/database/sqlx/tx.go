package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

type txBeginner struct {
	db *sqlx.DB
}

var _ core.DB = (*txBeginner)(nil)

// NewDB returns the transaction source for the repositories of this package.
func NewDB(db *sqlx.DB) core.DB {
	return &txBeginner{db: db}
}

func (b *txBeginner) BeginTransaction(ctx context.Context) (core.DBTransactor, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return tx, nil
}

// getExec returns the caller's *sqlx.Tx when one is given, db otherwise.
func getExec(db *sqlx.DB, exec []core.DBExecutor) (sqlx.ExtContext, error) {
	if len(exec) == 0 || exec[0] == nil {
		return db, nil
	}
	if ext, ok := exec[0].(sqlx.ExtContext); ok {
		return ext, nil
	}
	return nil, errors.Errorf("unsupported executor %T", exec[0])
}
