// Package search builds parameterized SELECT and COUNT statements for the
// list endpoints.
package search

import (
	"fmt"
	"strings"
)

// Query accumulates WHERE clauses with positional arguments.
type Query struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

// Where appends a clause written with ? placeholders, which are renumbered
// to $n in order.
func (q *Query) Where(clause string, args ...interface{}) *Query {
	for range args {
		q.args = append(q.args, nil)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(q.args)), 1)
	}
	copy(q.args[len(q.args)-len(args):], args)
	q.where = append(q.where, clause)
	return q
}

// Contains adds a case-insensitive substring match over any of cols.
func (q *Query) Contains(value string, cols ...string) *Query {
	if value == "" || len(cols) == 0 {
		return q
	}
	parts := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	pattern := "%" + escapeLike(value) + "%"
	for i, c := range cols {
		parts[i] = c + " ILIKE ?"
		args[i] = pattern
	}
	return q.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// Equal adds col = value when value is not empty.
func (q *Query) Equal(col, value string) *Query {
	if value == "" {
		return q
	}
	return q.Where(col+" = ?", value)
}

func (q *Query) OrderBy(orderBy string) *Query {
	q.orderBy = orderBy
	return q
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return "SELECT COUNT(*) FROM " + q.table + q.whereSQL()
}

func (q *Query) CountArgs() []interface{} {
	return q.args
}

func (q *Query) DataSQL() string {
	sql := "SELECT " + q.cols + " FROM " + q.table + q.whereSQL()
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(q.args)+1, len(q.args)+2)
}

func (q *Query) DataArgs(limit, offset int) []interface{} {
	args := make([]interface{}, 0, len(q.args)+2)
	args = append(args, q.args...)
	return append(args, limit, offset)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
