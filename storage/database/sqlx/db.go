package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqInvalidTextInput    = "22P02" // e.g. a malformed UUID
)

func pqErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// trapErr maps driver errors to core and domain errors.
// Missing rows, dangling references and malformed keys become notFound.
// Unique violations become core.ErrConflict.
func trapErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	switch pqErrorCode(err) {
	case pqUniqueViolation:
		return core.ErrConflict
	case pqForeignKeyViolation, pqInvalidTextInput:
		return notFound
	}
	return err
}

// orderBy renders the ORDER BY clause of orderings whose fields are in allowed.
// Unknown fields are skipped, fallback is used when nothing is left.
func orderBy(orderings []core.DBOrdering, allowed map[string]string, fallback string) string {
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(parts) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
