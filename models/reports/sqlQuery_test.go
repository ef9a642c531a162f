package reports

import (
	"strings"
	"testing"
)

func TestSqlQueryRenderOrder(t *testing.T) {
	q := NewSqlQuery("test")
	q.AddSqlClause(ClauseLimit, "10")
	q.AddSqlClause(ClauseOrderBy, "net_revenue DESC")
	q.AddSqlClause(ClauseGroupBy, "category_id")
	q.AddSqlClause(ClauseWhere, "AND order_status = ?")
	q.AddSqlClause(ClauseRightJoin, "RIGHT JOIN c ON c.id = a.id")
	q.AddSqlClause(ClauseLeftJoin, "LEFT JOIN b ON b.id = a.id")
	q.AddSqlClause(ClauseJoin, "JOIN z ON z.id = a.id")
	q.AddSqlClause(ClauseFrom, "order_product_lookup")
	q.AddSqlClause(ClauseSelect, "category_id, SUM(product_qty) as items_sold")

	statement, err := q.GetQueryStatement()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{
		"SELECT category_id, SUM(product_qty) as items_sold",
		"FROM order_product_lookup",
		"JOIN z ON z.id = a.id",
		"LEFT JOIN b ON b.id = a.id",
		"RIGHT JOIN c ON c.id = a.id",
		"WHERE 1=1 AND order_status = ?",
		"GROUP BY category_id",
		"ORDER BY net_revenue DESC",
		"LIMIT 10",
	}
	pos := -1
	for _, part := range wantOrder {
		idx := strings.Index(statement, part)
		if idx < 0 {
			t.Fatalf("statement missing %q:\n%s", part, statement)
		}
		if idx < pos {
			t.Fatalf("clause %q rendered out of order:\n%s", part, statement)
		}
		pos = idx
	}
}

func TestSqlQueryEmptySelectIsInvalid(t *testing.T) {
	q := NewSqlQuery("test")
	q.AddSqlClause(ClauseFrom, "order_product_lookup")
	if _, err := q.GetQueryStatement(); err != ErrEmptySelect {
		t.Fatalf("expected ErrEmptySelect, got %v", err)
	}
}

func TestSqlQueryUnknownKindAndEmptyFragmentDropped(t *testing.T) {
	q := NewSqlQuery("test")
	q.AddSqlClause(ClauseKind("having"), "SUM(x) > 1")
	q.AddSqlClause(ClauseWhere, "")
	q.AddSqlClause(ClauseSelect, "id")
	q.AddSqlClause(ClauseFrom, "t")

	statement, err := q.GetQueryStatement()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(statement, "having") || strings.Contains(statement, "SUM(x) > 1") {
		t.Fatalf("unknown clause kind leaked into statement:\n%s", statement)
	}
	if q.GetSqlClause(ClauseWhere) != "" {
		t.Fatalf("empty fragment should be dropped, got %q", q.GetSqlClause(ClauseWhere))
	}
}

func TestSqlQueryDerivedTableEmbedding(t *testing.T) {
	inner := NewSqlQuery("inner")
	inner.AddSqlClause(ClauseSelect, "category_id, SUM(product_qty) as items_sold")
	inner.AddSqlClause(ClauseFrom, "order_product_lookup")
	inner.AddSqlClause(ClauseGroupBy, "category_id")
	innerStatement, err := inner.GetQueryStatement()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outer := NewSqlQuery("outer")
	outer.AddSqlClause(ClauseSelect, "default_results.category_id, items_sold")
	outer.AddSqlClause(ClauseFrom, "(")
	outer.AddSqlClause(ClauseFrom, innerStatement)
	outer.AddSqlClause(ClauseFrom, ") AS order_product_lookup")
	statement, err := outer.GetQueryStatement()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(statement, "FROM ( SELECT") {
		t.Fatalf("derived table not wrapped in parentheses:\n%s", statement)
	}
	if !strings.Contains(statement, ") AS order_product_lookup") {
		t.Fatalf("derived table not aliased:\n%s", statement)
	}
}

func TestSqlQueryClearClause(t *testing.T) {
	q := NewSqlQuery("test")
	q.AddSqlClause(ClauseOrderBy, "a ASC")
	q.ClearSqlClause(ClauseOrderBy)
	if q.GetSqlClause(ClauseOrderBy) != "" {
		t.Fatalf("clear did not remove order_by")
	}
}
