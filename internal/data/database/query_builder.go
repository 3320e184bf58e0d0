// Package database builds parameterised Postgres list queries with sanitised identifiers.
package database

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op is a comparison operator usable in a Condition.
type Op string

const (
	Equal       Op = "="
	LessThan    Op = "<"
	GreaterThan Op = ">"
	ILike       Op = "ILIKE"
)

// Condition is a single "field op value" predicate.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// OrderTerm is one ORDER BY key. Desc selects descending order.
type OrderTerm struct {
	Column string
	Desc   bool
}

// ListQuery describes a SELECT over one table.
type ListQuery struct {
	Table      string
	Columns    []string
	Conditions []Condition
	OrderBy    []OrderTerm
	Limit      int // zero omits LIMIT
}

// Where appends a condition and returns q for chaining.
func (q *ListQuery) Where(field string, op Op, value any) *ListQuery {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: op, Value: value})
	return q
}

// Build renders the query and its positional arguments.
func (q *ListQuery) Build() (string, []any) {
	var (
		b    strings.Builder
		args []any
	)

	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		cols := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			cols[i] = sanitize(c)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(sanitize(q.Table))

	var where []string
	for _, c := range q.Conditions {
		if c.Field == "" || !c.Op.valid() {
			continue
		}
		args = append(args, c.Value)
		where = append(where, sanitize(c.Field)+" "+string(c.Op)+" $"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, t := range q.OrderBy {
			dir := " ASC"
			if t.Desc {
				dir = " DESC"
			}
			terms[i] = sanitize(t.Column) + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

func (o Op) valid() bool {
	switch o {
	case Equal, LessThan, GreaterThan, ILike:
		return true
	}
	return false
}

// sanitize quotes an identifier, splitting qualified names on dots.
func sanitize(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}
