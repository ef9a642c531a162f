package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/sirupsen/logrus"
)

const categoriesContext = "categories"

var categoriesColumnTypes = map[string]ColumnType{
	"category_id":    ColumnTypeInt,
	"items_sold":     ColumnTypeInt,
	"net_revenue":    ColumnTypeFloat,
	"orders_count":   ColumnTypeInt,
	"products_count": ColumnTypeInt,
}

// categoriesReportColumns assigns the aggregate expressions once the
// backing table name is known.
func categoriesReportColumns(tableName string) []ReportColumn {
	return []ReportColumn{
		{Name: "items_sold", Expr: "SUM(product_qty) as items_sold"},
		{Name: "net_revenue", Expr: "SUM(product_net_revenue) AS net_revenue"},
		{Name: "orders_count", Expr: fmt.Sprintf("COUNT(DISTINCT %s.order_id) as orders_count", tableName)},
		{Name: "products_count", Expr: fmt.Sprintf("COUNT(DISTINCT %s.product_id) as products_count", tableName)},
	}
}

func columnNames(columns []ReportColumn) []string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	return names
}

// CategoriesDataStore aggregates order lines per category tree node:
// order_product_lookup joined through product_category_relationships to
// category_lookup, so a sale in a subcategory counts toward every ancestor.
type CategoriesDataStore struct {
	Executor Executor
	Cache    Cache
	Logger   *logrus.Logger
}

func NewCategoriesDataStore(executor Executor) *CategoriesDataStore {
	return &CategoriesDataStore{
		Executor: executor,
		Cache:    RedisCache{},
		Logger:   config.GetLogger(),
	}
}

func (s *CategoriesDataStore) Context() string {
	return categoriesContext
}

// NormalizeOrderBy maps user-facing sort keys to backing columns. Unknown
// keys pass through unchanged and the store rejects them at execution time.
func (s *CategoriesDataStore) NormalizeOrderBy(key string) string {
	if key == "category" {
		return "_cats.name"
	}
	return key
}

// categoriesQuery carries the per-request builder state so one store value
// is safe for concurrent GetData calls.
type categoriesQuery struct {
	subquery *SqlQuery
	query    *SqlQuery
	sqlArgs  []interface{}
}

// GetData returns the categories report for the supplied parameters.
func (s *CategoriesDataStore) GetData(ctx context.Context, args *ReportQuery) (*ReportResult, error) {
	started := time.Now()
	defer logSlowReport(ctx, categoriesContext, started)

	args.applyDefaults("net_revenue")
	if err := args.normalizeTimezones(); err != nil {
		return nil, err
	}

	key := cacheKey(categoriesContext, args)
	if data, ok := s.Cache.Get(key); ok {
		return data, nil
	}

	tableName := models.OrderProductLookup{}.TableName()
	columns := categoriesReportColumns(tableName)

	q := &categoriesQuery{
		subquery: NewSqlQuery(categoriesContext + "_subquery"),
		query:    NewSqlQuery(categoriesContext),
	}
	q.subquery.AddSqlClause(ClauseSelect, "category_lookup.category_tree_id as category_id,")
	q.subquery.AddSqlClause(ClauseFrom, tableName)
	q.subquery.AddSqlClause(ClauseGroupBy, "category_lookup.category_tree_id")
	q.subquery.AddSqlClause(ClauseSelect, selectedColumns(columns))

	s.addSqlQueryParams(args, q, tableName)

	var statement string
	var err error
	if len(args.Categories) > 0 {
		fields := columnNames(columns)
		q.query.AddSqlClause(ClauseSelect, formatJoinSelections(append([]string{"category_id"}, fields...), []string{"category_id"}))

		subStatement, subErr := q.subquery.GetQueryStatement()
		if subErr != nil {
			return nil, subErr
		}
		q.query.AddSqlClause(ClauseFrom, "(")
		q.query.AddSqlClause(ClauseFrom, subStatement)
		q.query.AddSqlClause(ClauseFrom, ") AS "+tableName)
		q.query.AddSqlClause(
			ClauseRightJoin,
			fmt.Sprintf("RIGHT JOIN ( %s ) AS default_results ON default_results.category_id = %s.category_id",
				idsTable(args.Categories, "category_id"), tableName),
		)
		statement, err = q.query.GetQueryStatement()
	} else {
		statement, err = q.subquery.GetQueryStatement()
	}
	if err != nil {
		return nil, err
	}

	rows, execErr := s.Executor.Execute(ctx, statement, q.sqlArgs...)
	if execErr != nil {
		return nil, &QueryExecutionError{Context: categoriesContext, Err: execErr}
	}

	recordCount := len(rows)
	pages := totalPages(recordCount, args.PerPage)
	if args.Page < 1 || args.Page > pages {
		// Out-of-range pages are not an error: the caller gets the real
		// totals with an empty page. Not cached.
		result := emptyResult()
		result.Total = recordCount
		result.Pages = pages
		result.PageNo = args.Page
		return result, nil
	}

	paged := pageRecords(rows, args.Page, args.PerPage)
	s.includeExtendedInfo(ctx, paged, args)
	for i := range paged {
		paged[i] = castNumbers(paged[i], categoriesColumnTypes)
	}

	result := &ReportResult{
		Data:   paged,
		Total:  recordCount,
		Pages:  pages,
		PageNo: args.Page,
	}
	s.Cache.Set(categoriesContext, key, result)

	return result, nil
}

// addSqlQueryParams appends the time span, category/product filters and
// order status restriction for the categories report.
func (s *CategoriesDataStore) addSqlQueryParams(args *ReportQuery, q *categoriesQuery, tableName string) {
	q.sqlArgs = addTimePeriodSqlParams(q.subquery, args, tableName, q.sqlArgs)

	// Join order lines to the flattened category tree.
	q.subquery.AddSqlClause(ClauseLeftJoin,
		fmt.Sprintf("LEFT JOIN product_category_relationships ON %s.product_id = product_category_relationships.product_id", tableName))
	q.subquery.AddSqlClause(ClauseLeftJoin,
		"LEFT JOIN category_lookup ON product_category_relationships.category_id = category_lookup.category_id")

	if len(args.Categories) > 0 {
		q.subquery.AddSqlClause(ClauseWhere,
			fmt.Sprintf("AND category_lookup.category_tree_id IN (%s)", utils.JoinInts(args.Categories)))

		// Limit is left out so paging happens on the grouped result; the
		// order-by goes on the outer wrapped query because the name join
		// must resolve after the right join.
		s.addOrderByParams(args, q, "outer", "default_results.category_id")
	} else {
		s.addOrderByParams(args, q, "inner", "category_lookup.category_tree_id")
	}

	addIncludedProductsClause(q.subquery, args, tableName)
	q.sqlArgs = addOrderStatusClause(q.subquery, args, tableName, q.sqlArgs)
	q.subquery.AddSqlClause(ClauseWhere, "AND category_lookup.category_tree_id IS NOT NULL")
}

// addOrderByParams fills the ORDER BY clause, adding the category-name join
// when sorting on the human-readable name.
func (s *CategoriesDataStore) addOrderByParams(args *ReportQuery, q *categoriesQuery, from string, idCell string) {
	orderByClause := s.NormalizeOrderBy(args.OrderBy)
	target := q.subquery
	if from == "outer" {
		target = q.query
	}
	if orderByClause == "_cats.name" {
		target.AddSqlClause(ClauseJoin, fmt.Sprintf("JOIN product_categories AS _cats ON %s = _cats.id", idCell))
	}
	target.AddSqlClause(ClauseOrderBy, orderByClause+" "+args.Order)
}

// includeExtendedInfo enriches each page row; currently the only extended
// field is the category display name.
func (s *CategoriesDataStore) includeExtendedInfo(ctx context.Context, rows []map[string]interface{}, args *ReportQuery) {
	names := map[int64]string{}
	if args.ExtendedInfo && len(rows) > 0 {
		ids := make([]int, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, int(coerceInt(row["category_id"])))
		}
		ids = utils.UniqueSlice(ids)
		nameRows, err := s.Executor.Execute(ctx,
			fmt.Sprintf("SELECT id, name FROM product_categories WHERE id IN (%s)", utils.JoinInts(ids)))
		if err != nil {
			// Enrichment is best effort; the report itself already computed.
			config.LogError(s.Logger, "reports", "includeExtendedInfo", categoriesContext, ids, err)
		}
		for _, nameRow := range nameRows {
			names[coerceInt(nameRow["id"])] = fmt.Sprint(nameRow["name"])
		}
	}

	for _, row := range rows {
		extended := map[string]interface{}{}
		if args.ExtendedInfo {
			if name, ok := names[coerceInt(row["category_id"])]; ok {
				extended["name"] = name
			}
		}
		row["extended_info"] = extended
	}
}
