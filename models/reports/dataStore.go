package reports

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	_ "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Executor is the narrow relational-store contract report queries run
// against. Values always travel through args, never concatenated.
type Executor interface {
	Execute(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
}

// GormExecutor runs report statements through gorm's raw path.
type GormExecutor struct {
	DB *gorm.DB
}

func (e *GormExecutor) Execute(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := e.DB.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryExecutionError marks a failure of the backing store, as opposed to a
// query that merely matched nothing.
type QueryExecutionError struct {
	Context string
	Err     error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("fetching %s report data failed: %v", e.Context, e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// DataStore is the contract every report type implements.
type DataStore interface {
	Context() string
	NormalizeOrderBy(key string) string
	GetData(ctx context.Context, args *ReportQuery) (*ReportResult, error)
}

// ReportColumn maps one output column to its aggregate SQL expression.
// Kept as a slice so select lists render deterministically.
type ReportColumn struct {
	Name string
	Expr string
}

type ColumnType string

const (
	ColumnTypeInt    ColumnType = "int"
	ColumnTypeFloat  ColumnType = "float"
	ColumnTypeString ColumnType = "string"
)

// selectedColumns renders the aggregate expressions of the report columns.
func selectedColumns(columns []ReportColumn) string {
	exprs := make([]string, len(columns))
	for i, col := range columns {
		exprs[i] = col.Expr
	}
	return strings.Join(exprs, ", ")
}

// idsTable builds the synthetic derived table of explicitly requested ids,
// so every requested id appears in the output even with zero matching rows.
// Ids are caller-computed integers.
func idsTable(ids []int, idColumn string) string {
	selects := make([]string, len(ids))
	for i, id := range ids {
		selects[i] = fmt.Sprintf("SELECT %d AS %s", id, idColumn)
	}
	return strings.Join(selects, " UNION ALL ")
}

// formatJoinSelections qualifies id columns with the requested-ids derived
// table so they survive the right join; aggregate columns pass through.
func formatJoinSelections(fields []string, idColumns []string) string {
	isId := make(map[string]bool, len(idColumns))
	for _, col := range idColumns {
		isId[col] = true
	}
	out := make([]string, len(fields))
	for i, field := range fields {
		if isId[field] {
			out[i] = "default_results." + field
		} else {
			out[i] = field
		}
	}
	return strings.Join(out, ", ")
}

// pageRecords slices the already-grouped full result set. Grouping must see
// all matching rows before a limit is safe, so paging happens here and not
// in SQL.
func pageRecords(data []map[string]interface{}, pageNo int, perPage int) []map[string]interface{} {
	offset := (pageNo - 1) * perPage
	if offset >= len(data) {
		return []map[string]interface{}{}
	}
	end := offset + perPage
	if end > len(data) {
		end = len(data)
	}
	return data[offset:end]
}

// castNumbers coerces each column of a row to its declared type. MySQL
// aggregate results arrive as strings or []byte through the raw scan path.
func castNumbers(row map[string]interface{}, types map[string]ColumnType) map[string]interface{} {
	for key, val := range row {
		switch types[key] {
		case ColumnTypeInt:
			row[key] = coerceInt(val)
		case ColumnTypeFloat:
			row[key] = coerceFloat(val)
		}
	}
	return row
}

func coerceInt(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func coerceFloat(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// addTimePeriodSqlParams appends the normalized date-range clauses; the
// bound values go through the executor args.
func addTimePeriodSqlParams(query *SqlQuery, args *ReportQuery, tableName string, sqlArgs []interface{}) []interface{} {
	if args.After != nil {
		query.AddSqlClause(ClauseWhere, fmt.Sprintf("AND %s.order_date >= ?", tableName))
		sqlArgs = append(sqlArgs, args.After.Time())
	}
	if args.Before != nil {
		query.AddSqlClause(ClauseWhere, fmt.Sprintf("AND %s.order_date <= ?", tableName))
		sqlArgs = append(sqlArgs, args.Before.Time())
	}
	return sqlArgs
}

// addOrderStatusClause appends the status filter: an explicit include list
// wins, otherwise the default excluded statuses are filtered out.
func addOrderStatusClause(query *SqlQuery, args *ReportQuery, tableName string, sqlArgs []interface{}) []interface{} {
	if len(args.StatusIs) > 0 {
		query.AddSqlClause(ClauseWhere, fmt.Sprintf("AND %s.order_status IN (%s)", tableName, placeholders(len(args.StatusIs))))
		for _, status := range args.StatusIs {
			sqlArgs = append(sqlArgs, string(status))
		}
		return sqlArgs
	}

	excluded := args.StatusIsNot
	if len(excluded) == 0 {
		excluded = models.ExcludedReportOrderStatuses
	}
	query.AddSqlClause(ClauseWhere, fmt.Sprintf("AND %s.order_status NOT IN (%s)", tableName, placeholders(len(excluded))))
	for _, status := range excluded {
		sqlArgs = append(sqlArgs, string(status))
	}
	return sqlArgs
}

func addIncludedProductsClause(query *SqlQuery, args *ReportQuery, tableName string) {
	if len(args.Products) > 0 {
		query.AddSqlClause(ClauseWhere, fmt.Sprintf("AND %s.product_id IN (%s)", tableName, utils.JoinInts(args.Products)))
	}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
