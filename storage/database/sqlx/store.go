package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

// Store runs every unit of work in a postgres transaction.
type Store struct {
	db *sqlx.DB
}

var _ attendance.Store = (*Store)(nil) // interface compliance check

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(repo attendance.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&repository{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// conditions accumulates the AND-ed WHERE clauses of a query with their positional args.
type conditions struct {
	clauses []string
	args    []interface{}
}

// add appends `clause`, whose single %d verb is replaced by the arg's placeholder number.
func (c *conditions) add(clause string, arg interface{}) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func orderBy(ordering []core.DBOrdering, allowed func(string) bool, fallback string) string {
	terms := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if allowed(ord.Field) {
			terms = append(terms, ord.String())
		}
	}
	terms = append(terms, fallback)
	return " ORDER BY " + strings.Join(terms, ", ")
}
