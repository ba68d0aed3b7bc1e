package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var errNoSQL = errors.New("in-memory store does not run SQL")

// Tx applies writes as they happen and undoes them on Rollback.
// Other callers see its writes before Commit.
type Tx struct {
	mutex sync.Mutex
	undo  []func()
	done  bool
}

var (
	_ core.DBTransactor = (*Tx)(nil)
	_ core.DB           = (*DB)(nil)
)

func (db *DB) BeginTransaction(context.Context) (core.DBTransactor, error) {
	return &Tx{}, nil
}

func (tx *Tx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (tx *Tx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (tx *Tx) Commit() error {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.undo = nil
	return nil
}

func (tx *Tx) Rollback() error {
	tx.mutex.Lock()
	if tx.done {
		tx.mutex.Unlock()
		return sql.ErrTxDone
	}
	tx.done = true
	undo := tx.undo
	tx.undo = nil
	tx.mutex.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

func (tx *Tx) onRollback(fn func()) {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	tx.undo = append(tx.undo, fn)
}

// txFrom returns the caller's *Tx, nil when exec carries none.
func txFrom(exec []core.DBExecutor) *Tx {
	if len(exec) == 0 {
		return nil
	}
	tx, _ := exec[0].(*Tx)
	return tx
}
