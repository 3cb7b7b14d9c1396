package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

// columns maps filter and sort field names to SQL columns. Fields absent
// from the map cannot be queried.
type columns map[string]string

// queryBuilder accumulates positional arguments while clauses are rendered.
type queryBuilder struct {
	args []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// in renders a parenthesized placeholder list for ids.
func (b *queryBuilder) in(ids []uuid.UUID) string {
	ph := make([]string, len(ids))
	for i, id := range ids {
		ph[i] = b.arg(id)
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

// where renders " WHERE ..." for a conjunction of predicates, or "" when
// there is nothing to filter on. Fields are rendered in sorted order so the
// same filter always yields the same SQL.
func (b *queryBuilder) where(w pagination.Where, cols columns) (string, error) {
	if len(w) == 0 {
		return "", nil
	}

	fields := make([]string, 0, len(w))
	for f := range w {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var conds []string
	for _, field := range fields {
		col, ok := cols[field]
		if !ok {
			return "", fmt.Errorf("%w: unsupported field %q", store.ErrInvalidFilter, field)
		}

		switch v := w[field].(type) {
		case nil:
			conds = append(conds, col+" IS NULL")
		case pagination.Range:
			conds = append(conds, b.rangeConds(col, v)...)
		case *pagination.Range:
			if v == nil {
				continue
			}
			conds = append(conds, b.rangeConds(col, *v)...)
		case pagination.Contains:
			conds = append(conds, col+" ILIKE "+b.arg("%"+escapeLike(string(v))+"%"))
		case *uuid.UUID:
			if v == nil {
				conds = append(conds, col+" IS NULL")
				continue
			}
			conds = append(conds, col+" = "+b.arg(*v))
		default:
			conds = append(conds, col+" = "+b.arg(v))
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

func (b *queryBuilder) rangeConds(col string, r pagination.Range) []string {
	var conds []string
	if !isNil(r.Gte) {
		conds = append(conds, col+" >= "+b.arg(r.Gte))
	}
	if !isNil(r.Lte) {
		conds = append(conds, col+" <= "+b.arg(r.Lte))
	}
	return conds
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if t, ok := v.(*time.Time); ok {
		return t == nil
	}
	return false
}

// orderBy renders " ORDER BY ..." falling back to def when orders is empty.
// The primary key is always appended as a tie-breaker so pages are stable.
func orderBy(orders []pagination.Order, cols columns, def, tieBreaker string) (string, error) {
	parts := make([]string, 0, len(orders)+1)
	for _, o := range orders {
		col, ok := cols[o.Field]
		if !ok {
			return "", fmt.Errorf("%w: cannot sort by %q", store.ErrInvalidFilter, o.Field)
		}
		dir := "ASC"
		switch o.Direction {
		case pagination.Desc:
			dir = "DESC"
		case pagination.Asc, "":
		default:
			return "", fmt.Errorf("%w: invalid sort direction %q", store.ErrInvalidFilter, o.Direction)
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		parts = append(parts, def)
	}
	parts = append(parts, tieBreaker)
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// limitOffset renders the page window. A non-positive take means no limit.
func (b *queryBuilder) limitOffset(take, skip int) string {
	var sb strings.Builder
	if take > 0 {
		sb.WriteString(" LIMIT " + b.arg(take))
	}
	if skip > 0 {
		sb.WriteString(" OFFSET " + b.arg(skip))
	}
	return sb.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// count runs SELECT COUNT(*) against table with the given filter.
func count(ctx context.Context, db store.DBTX, table string, w pagination.Where, cols columns) (int, error) {
	var b queryBuilder
	where, err := b.where(w, cols)
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+where, b.args...).Scan(&n); err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// inTx runs fn inside a transaction when db can start one, or directly on
// db when it already is a transaction.
func inTx(ctx context.Context, db store.DBTX, fn func(q store.DBTX) error) error {
	if sqlDB, ok := db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, sqlDB, func(_ context.Context, tx *sql.Tx) error {
			return fn(tx)
		})
	}
	return fn(db)
}
