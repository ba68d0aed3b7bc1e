package core

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

type (
	// DBExecutor runs statements. *sql.DB, *sql.Tx and their sqlx counterparts satisfy it.
	// Repositories accept an optional one to join a caller's transaction.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}

	// DB starts transactions whose executor the same store's repositories accept.
	DB interface {
		BeginTransaction(ctx context.Context) (DBTransactor, error)
	}
)

// RunInTransaction calls fn within a transaction of db. The transaction is committed when fn returns nil
// and rolled back otherwise.
func RunInTransaction(ctx context.Context, db DB, fn func(exec DBExecutor) error) error {
	tx, err := db.BeginTransaction(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// DBOrdering is one ORDER BY term. Repositories only honour the fields they know.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrdering reads a comma separated list of fields, each optionally prefixed by "-" for descending order,
// e.g. "-price,title". Blank terms are skipped.
func ParseOrdering(raw string) []DBOrdering {
	var orderings []DBOrdering
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		descending := strings.HasPrefix(term, "-")
		field := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(term, "-")))
		if field == "" {
			continue
		}
		orderings = append(orderings, DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}
