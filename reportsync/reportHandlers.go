package reportsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/gin-gonic/gin"
)

// ReportStore is what the report endpoints need from a data store.
type ReportStore interface {
	Context() string
	GetData(ctx context.Context, args *reports.ReportQuery) (*reports.ReportResult, error)
}

// exportPerPageCap bounds the rows one export request pulls when the
// caller does not page explicitly.
const exportPerPageCap = 1000

var categoriesExportColumns = []string{
	"category_id", "items_sold", "net_revenue", "orders_count", "products_count",
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func intsParam(c *gin.Context, name string) ([]int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry: %q", name, part)
		}
		out = append(out, n)
	}
	return out, nil
}

func dateParam(c *gin.Context, name string) (*models.MyDateString, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	var d models.MyDateString
	if err := json.Unmarshal([]byte(strconv.Quote(raw)), &d); err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &d, nil
}

func statusesParam(c *gin.Context, name string) []models.OrderStatus {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]models.OrderStatus, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, models.OrderStatus(part))
	}
	return out
}

// parseReportQuery maps the request query string onto the report
// parameter set. Missing fields stay zero and pick up defaults inside
// the store.
func parseReportQuery(c *gin.Context) (*reports.ReportQuery, error) {
	args := &reports.ReportQuery{
		Order:        strings.ToUpper(strings.TrimSpace(c.Query("order"))),
		OrderBy:      strings.TrimSpace(c.Query("orderby")),
		StatusIs:     statusesParam(c, "status_is"),
		StatusIsNot:  statusesParam(c, "status_is_not"),
		ExtendedInfo: utils.EnvBoolDefault(c.Query("extended_info"), false),
	}

	var err error
	if args.Page, err = intParam(c, "page"); err != nil {
		return nil, err
	}
	if args.PerPage, err = intParam(c, "per_page"); err != nil {
		return nil, err
	}
	if args.Categories, err = intsParam(c, "categories"); err != nil {
		return nil, err
	}
	if args.Products, err = intsParam(c, "products"); err != nil {
		return nil, err
	}
	if args.After, err = dateParam(c, "after"); err != nil {
		return nil, err
	}
	if args.Before, err = dateParam(c, "before"); err != nil {
		return nil, err
	}
	return args, nil
}

func ReportHandler(store ReportStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		args, err := parseReportQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := utils.ValidateStruct(*args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := store.GetData(c.Request.Context(), args)
		if err != nil {
			config.LogError(config.GetLogger(), "reportsync", "ReportHandler", store.Context(), args, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run report"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ReportExportHandler streams the same report as a spreadsheet. Exports
// without explicit paging pull up to exportPerPageCap rows.
func ReportExportHandler(store ReportStore, columns []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		args, err := parseReportQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if args.PerPage == 0 {
			args.PerPage = exportPerPageCap
		}
		if err := utils.ValidateStruct(*args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := store.GetData(c.Request.Context(), args)
		if err != nil {
			config.LogError(config.GetLogger(), "reportsync", "ReportExportHandler", store.Context(), args, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run report"})
			return
		}

		f, err := reports.ExportResult(result, columns)
		if err != nil {
			config.LogError(config.GetLogger(), "reportsync", "ReportExportHandler", store.Context(), args, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render export"})
			return
		}

		filename := fmt.Sprintf("%s-report-%s.xlsx", store.Context(), time.Now().Format("2006-01-02"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "reportsync", "ReportExportHandler", store.Context(), args, err)
		}
	}
}

// CategoriesExportColumns is the fixed column order of the categories
// export sheet.
func CategoriesExportColumns() []string {
	out := make([]string, len(categoriesExportColumns))
	copy(out, categoriesExportColumns)
	return out
}
