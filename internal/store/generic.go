package store

import (
	"fmt"
	"sort"
	"strings"
)

// Query describes a generic read against one table or view.
type Query struct {
	Table   string
	Columns []string // nil means all columns
	Where   string   // optional predicate with ? placeholders
	Args    []any
	GroupBy string
	OrderBy string
	Limit   int // <= 0 means no limit
}

// ResultSet is a fully materialized query result. Results are materialized so
// they can cross goroutine boundaries without holding the connection.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	return len(rs.Rows)
}

// Value returns the value at the given row for the named column, or nil if
// the column does not exist.
func (rs *ResultSet) Value(row int, col string) any {
	for i, c := range rs.Columns {
		if c == col {
			return rs.Rows[row][i]
		}
	}
	return nil
}

// InsertRow inserts a single row and returns its local surrogate id. The
// values map keys are column names; engine errors propagate unmodified.
func (db *DB) InsertRow(table string, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("insert into %s: no values", table)
	}
	cols := sortedKeys(values)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, values[c])
	}

	res, err := db.Exec(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders),
		args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateRows updates all rows matching the predicate and returns the number
// of affected rows. An empty predicate updates every row.
func (db *DB) UpdateRows(table string, values map[string]any, where string, whereArgs ...any) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("update %s: no values", table)
	}
	cols := sortedKeys(values)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	args := make([]any, 0, len(cols)+len(whereArgs))
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		sb.WriteString(" = ?")
		args = append(args, values[c])
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}

	res, err := db.Exec(sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteRows deletes all rows matching the predicate and returns the number
// of affected rows. An empty predicate deletes every row.
func (db *DB) DeleteRows(table string, where string, whereArgs ...any) (int64, error) {
	q := "DELETE FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	res, err := db.Exec(q, whereArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueryRows runs a generic read and materializes the full result.
func (db *DB) QueryRows(q Query) (*ResultSet, error) {
	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(q.Table)
	if q.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where)
	}
	if q.GroupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(q.GroupBy)
	}
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.OrderBy)
	}
	args := q.Args
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(append([]any{}, q.Args...), q.Limit)
	}

	rows, err := db.Query(sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{Columns: names}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// The driver reuses []byte buffers between rows; copy to strings.
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
