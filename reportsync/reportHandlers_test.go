package reportsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"github.com/gin-gonic/gin"
)

type stubReportStore struct {
	lastArgs *reports.ReportQuery
	result   *reports.ReportResult
	err      error
}

func (s *stubReportStore) Context() string { return "categories" }

func (s *stubReportStore) GetData(ctx context.Context, args *reports.ReportQuery) (*reports.ReportResult, error) {
	s.lastArgs = args
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func getRequest(t *testing.T, handler gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler(c)
	return rec
}

func TestParseReportQueryMapsAllParams(t *testing.T) {
	store := &stubReportStore{result: &reports.ReportResult{Data: []map[string]interface{}{}}}
	rec := getRequest(t, ReportHandler(store),
		"/api/reports/categories?page=2&per_page=10&order=asc&orderby=items_sold"+
			"&categories=4,9&after=2026-01-01&before=2026-01-31"+
			"&status_is=completed&extended_info=true")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	args := store.lastArgs
	if args.Page != 2 || args.PerPage != 10 {
		t.Fatalf("paging = %d/%d", args.Page, args.PerPage)
	}
	if args.Order != "ASC" || args.OrderBy != "items_sold" {
		t.Fatalf("ordering = %q %q", args.Order, args.OrderBy)
	}
	if len(args.Categories) != 2 || args.Categories[0] != 4 || args.Categories[1] != 9 {
		t.Fatalf("categories = %v", args.Categories)
	}
	if args.After == nil || args.Before == nil {
		t.Fatalf("date bounds not parsed")
	}
	if len(args.StatusIs) != 1 || args.StatusIs[0] != models.OrderStatusCompleted {
		t.Fatalf("status_is = %v", args.StatusIs)
	}
	if !args.ExtendedInfo {
		t.Fatalf("extended_info not parsed")
	}
}

func TestReportHandlerRejectsBadParams(t *testing.T) {
	store := &stubReportStore{result: &reports.ReportResult{}}

	for _, target := range []string{
		"/api/reports/categories?page=x",
		"/api/reports/categories?categories=4,x",
		"/api/reports/categories?after=not-a-date",
	} {
		rec := getRequest(t, ReportHandler(store), target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
	if store.lastArgs != nil {
		t.Fatalf("store ran despite bad params")
	}
}

func TestReportHandlerReturnsStorePayload(t *testing.T) {
	store := &stubReportStore{result: &reports.ReportResult{
		Data:   []map[string]interface{}{{"category_id": int64(4), "items_sold": int64(7)}},
		Total:  1,
		Pages:  1,
		PageNo: 1,
	}}
	rec := getRequest(t, ReportHandler(store), "/api/reports/categories")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"total":1`) || !strings.Contains(body, `"items_sold":7`) {
		t.Fatalf("body = %s", body)
	}
}

func TestReportExportHandlerStreamsSpreadsheet(t *testing.T) {
	store := &stubReportStore{result: &reports.ReportResult{
		Data:  []map[string]interface{}{{"category_id": int64(4), "items_sold": int64(7)}},
		Total: 1, Pages: 1, PageNo: 1,
	}}
	rec := getRequest(t, ReportExportHandler(store, CategoriesExportColumns()),
		"/api/reports/categories/export")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.lastArgs.PerPage != exportPerPageCap {
		t.Fatalf("per_page = %d, want export cap", store.lastArgs.PerPage)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, ".xlsx") {
		t.Fatalf("content-disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "spreadsheetml") {
		t.Fatalf("content-type = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("empty export body")
	}
}

func TestReportExportHandlerKeepsExplicitPaging(t *testing.T) {
	store := &stubReportStore{result: &reports.ReportResult{Data: []map[string]interface{}{}}}
	rec := getRequest(t, ReportExportHandler(store, CategoriesExportColumns()),
		"/api/reports/categories/export?per_page=50")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.lastArgs.PerPage != 50 {
		t.Fatalf("per_page = %d, want 50", store.lastArgs.PerPage)
	}
}
