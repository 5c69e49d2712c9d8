package db

import (
	"fmt"
	"sort"
	"strings"
)

// Where is an equality predicate for UpdateStatement.
type Where struct {
	Column string
	Value  any
}

// UpdateStatement builds a parameterised UPDATE touching only whitelisted
// columns. Columns are emitted in sorted order and updated_at is always bumped.
func UpdateStatement(table string, allowed map[string]struct{}, updates map[string]any, where ...Where) (string, []any, error) {
	if len(updates) == 0 {
		return "", nil, fmt.Errorf("platform/db: update %s: no columns", table)
	}
	cols := make([]string, 0, len(updates))
	for col := range updates {
		if _, ok := allowed[col]; !ok {
			return "", nil, fmt.Errorf("platform/db: update %s: column %q is not updatable", table, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+len(where))
	for _, col := range cols {
		args = append(args, updates[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	conds := make([]string, 0, len(where))
	for _, w := range where {
		args = append(args, w.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", w.Column, len(args)))
	}

	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ")
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args, nil
}
