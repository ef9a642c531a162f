package reports

import (
	"errors"
	"strings"
)

// ClauseKind is the closed set of statement parts a SqlQuery accepts.
type ClauseKind string

const (
	ClauseSelect    ClauseKind = "select"
	ClauseFrom      ClauseKind = "from"
	ClauseJoin      ClauseKind = "join"
	ClauseLeftJoin  ClauseKind = "left_join"
	ClauseRightJoin ClauseKind = "right_join"
	ClauseWhere     ClauseKind = "where"
	ClauseGroupBy   ClauseKind = "group_by"
	ClauseOrderBy   ClauseKind = "order_by"
	ClauseLimit     ClauseKind = "limit"
)

var knownClauseKinds = map[ClauseKind]bool{
	ClauseSelect:    true,
	ClauseFrom:      true,
	ClauseJoin:      true,
	ClauseLeftJoin:  true,
	ClauseRightJoin: true,
	ClauseWhere:     true,
	ClauseGroupBy:   true,
	ClauseOrderBy:   true,
	ClauseLimit:     true,
}

var ErrEmptySelect = errors.New("sql query has no select clause")

// SqlQuery accumulates raw statement fragments per clause kind and renders
// them in a fixed order. Fragments are trusted: table and column names come
// from the data stores' own computed clauses, never from user input; user
// values travel separately as executor args.
type SqlQuery struct {
	name    string
	clauses map[ClauseKind][]string
}

func NewSqlQuery(name string) *SqlQuery {
	return &SqlQuery{
		name:    name,
		clauses: make(map[ClauseKind][]string),
	}
}

func (q *SqlQuery) Name() string {
	return q.name
}

// AddSqlClause appends a raw fragment under the given clause kind.
// Unknown kinds and empty fragments are dropped.
func (q *SqlQuery) AddSqlClause(kind ClauseKind, fragment string) {
	if fragment == "" || !knownClauseKinds[kind] {
		return
	}
	q.clauses[kind] = append(q.clauses[kind], fragment)
}

// GetSqlClause returns the accumulated fragments of one kind joined with a
// single space, in insertion order.
func (q *SqlQuery) GetSqlClause(kind ClauseKind) string {
	return strings.Join(q.clauses[kind], " ")
}

func (q *SqlQuery) ClearSqlClause(kinds ...ClauseKind) {
	for _, kind := range kinds {
		delete(q.clauses, kind)
	}
}

// GetQueryStatement renders the statement. The WHERE clause always starts
// from 1=1 so accumulated fragments can uniformly begin with AND. A query
// embedded as a derived table must be wrapped by its caller in parentheses
// with an alias (three `from` fragments: "(", statement, ") AS alias").
func (q *SqlQuery) GetQueryStatement() (string, error) {
	if q.GetSqlClause(ClauseSelect) == "" {
		return "", ErrEmptySelect
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.GetSqlClause(ClauseSelect))
	b.WriteString("\nFROM ")
	b.WriteString(q.GetSqlClause(ClauseFrom))

	for _, kind := range []ClauseKind{ClauseJoin, ClauseLeftJoin, ClauseRightJoin} {
		if clause := q.GetSqlClause(kind); clause != "" {
			b.WriteString("\n")
			b.WriteString(clause)
		}
	}

	b.WriteString("\nWHERE 1=1 ")
	b.WriteString(q.GetSqlClause(ClauseWhere))

	if groupBy := q.GetSqlClause(ClauseGroupBy); groupBy != "" {
		b.WriteString("\nGROUP BY ")
		b.WriteString(groupBy)
	}
	if orderBy := q.GetSqlClause(ClauseOrderBy); orderBy != "" {
		b.WriteString("\nORDER BY ")
		b.WriteString(orderBy)
	}
	if limit := q.GetSqlClause(ClauseLimit); limit != "" {
		b.WriteString("\nLIMIT ")
		b.WriteString(limit)
	}

	return b.String(), nil
}
