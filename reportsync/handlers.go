package reportsync

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/gin-gonic/gin"
)

// RegenerateRequest triggers a full (re)build. A missing days field means
// no horizon bound at all.
type RegenerateRequest struct {
	Days         *int `json:"days" validate:"omitempty,gte=0"`
	SkipExisting bool `json:"skip_existing"`
}

func RegenerateHandler(sync *ReportsSync) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		days := Unbounded()
		if req.Days != nil {
			days = Days(*req.Days)
		}

		msg, err := sync.Regenerate(c.Request.Context(), days, req.SkipExisting)
		if err != nil {
			if errors.Is(err, ErrImportInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			config.LogError(sync.Logger, "reportsync", "RegenerateHandler", "regenerate", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue regenerate"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": msg})
	}
}

func DeleteAllHandler(sync *ReportsSync) gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, err := sync.DeleteAll(c.Request.Context())
		if err != nil {
			config.LogError(sync.Logger, "reportsync", "DeleteAllHandler", "delete_all", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue teardown"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": msg})
	}
}

func StatusHandler(sync *ReportsSync) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		state := sync.Engine.State

		progress := gin.H{}
		for _, worker := range sync.Engine.Workers {
			imported, err := state.ImportedCount(ctx, worker.Name())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read progress"})
				return
			}
			total, err := state.TotalCount(ctx, worker.Name())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read progress"})
				return
			}
			progress[worker.Name()] = gin.H{"imported": imported, "total": total}
		}

		status := gin.H{
			"is_importing": sync.IsImporting(ctx),
			"progress":     progress,
		}
		if mark, ok, err := state.Watermark(ctx); err == nil && ok {
			status["imported_from_days"] = mark.Sentinel()
		}
		c.JSON(http.StatusOK, status)
	}
}

// StockCountsHandler serves the cached per-status product counts next to
// the sync status, for the ops dashboard.
func StockCountsHandler(executor reports.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		counts := gin.H{}
		for _, status := range models.AllStockStatuses() {
			n, err := reports.GetStockCount(ctx, executor, status)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count products"})
				return
			}
			counts[string(status)] = n
		}
		lowStock, err := reports.GetLowStockCount(ctx, executor)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count products"})
			return
		}
		total, err := reports.GetProductCount(ctx, executor)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count products"})
			return
		}
		counts["lowstock"] = lowStock
		counts["total"] = total
		c.JSON(http.StatusOK, counts)
	}
}
