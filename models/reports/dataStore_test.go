package reports

import (
	"reflect"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/insights_backend/models"
)

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total   int
		perPage int
		want    int
	}{
		{45, 10, 5},
		{50, 10, 5},
		{5, 10, 1},
		{0, 10, 0},
		{1, 1, 1},
		{3, 0, 0},
	}
	for _, c := range cases {
		if got := totalPages(c.total, c.perPage); got != c.want {
			t.Fatalf("totalPages(%d, %d) = %d, want %d", c.total, c.perPage, got, c.want)
		}
	}
}

func TestPageRecords(t *testing.T) {
	data := make([]map[string]interface{}, 0, 5)
	for i := 0; i < 5; i++ {
		data = append(data, map[string]interface{}{"n": i})
	}

	page2 := pageRecords(data, 2, 2)
	if len(page2) != 2 || page2[0]["n"] != 2 || page2[1]["n"] != 3 {
		t.Fatalf("unexpected page 2: %v", page2)
	}

	last := pageRecords(data, 3, 2)
	if len(last) != 1 || last[0]["n"] != 4 {
		t.Fatalf("unexpected short last page: %v", last)
	}

	if got := pageRecords(data, 4, 2); len(got) != 0 {
		t.Fatalf("out-of-range page should be empty, got %v", got)
	}
}

func TestCastNumbers(t *testing.T) {
	types := map[string]ColumnType{
		"items_sold":  ColumnTypeInt,
		"net_revenue": ColumnTypeFloat,
		"name":        ColumnTypeString,
	}
	row := map[string]interface{}{
		"items_sold":  []byte("12"),
		"net_revenue": "45.50",
		"name":        "Hoodies",
		"untyped":     "kept",
	}
	got := castNumbers(row, types)

	if got["items_sold"] != int64(12) {
		t.Fatalf("items_sold = %v (%T), want int64 12", got["items_sold"], got["items_sold"])
	}
	if got["net_revenue"] != 45.5 {
		t.Fatalf("net_revenue = %v (%T), want float64 45.5", got["net_revenue"], got["net_revenue"])
	}
	if got["name"] != "Hoodies" || got["untyped"] != "kept" {
		t.Fatalf("string columns must pass through: %v", got)
	}
}

func TestCoerceIntVariants(t *testing.T) {
	for _, v := range []interface{}{int64(7), int(7), int32(7), uint64(7), float64(7.9), []byte("7"), "7"} {
		got := coerceInt(v)
		if got != 7 {
			t.Fatalf("coerceInt(%T %v) = %d, want 7", v, v, got)
		}
	}
	if coerceInt(nil) != 0 {
		t.Fatalf("coerceInt(nil) should be 0")
	}
}

func TestIdsTable(t *testing.T) {
	got := idsTable([]int{3, 9}, "category_id")
	want := "SELECT 3 AS category_id UNION ALL SELECT 9 AS category_id"
	if got != want {
		t.Fatalf("idsTable = %q, want %q", got, want)
	}
}

func TestFormatJoinSelections(t *testing.T) {
	got := formatJoinSelections([]string{"category_id", "items_sold", "net_revenue"}, []string{"category_id"})
	want := "default_results.category_id, items_sold, net_revenue"
	if got != want {
		t.Fatalf("formatJoinSelections = %q, want %q", got, want)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?,?,?" {
		t.Fatalf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Fatalf("placeholders(0) = %q", got)
	}
}

func TestAddOrderStatusClauseIncludeWins(t *testing.T) {
	q := NewSqlQuery("test")
	args := &ReportQuery{StatusIs: []models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusRefunded}}

	sqlArgs := addOrderStatusClause(q, args, "order_product_lookup", nil)
	where := q.GetSqlClause(ClauseWhere)
	if !strings.Contains(where, "order_product_lookup.order_status IN (?,?)") {
		t.Fatalf("include list not applied: %q", where)
	}
	if !reflect.DeepEqual(sqlArgs, []interface{}{"completed", "refunded"}) {
		t.Fatalf("unexpected args: %v", sqlArgs)
	}
}

func TestAddOrderStatusClauseDefaultExclusion(t *testing.T) {
	q := NewSqlQuery("test")
	sqlArgs := addOrderStatusClause(q, &ReportQuery{}, "order_product_lookup", nil)
	where := q.GetSqlClause(ClauseWhere)
	if !strings.Contains(where, "order_product_lookup.order_status NOT IN (?,?,?)") {
		t.Fatalf("default exclusion not applied: %q", where)
	}
	if !reflect.DeepEqual(sqlArgs, []interface{}{"pending", "cancelled", "refunded"}) {
		t.Fatalf("unexpected args: %v", sqlArgs)
	}
}
