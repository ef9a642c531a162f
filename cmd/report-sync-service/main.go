package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/cataloglistener"
	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"bitbucket.org/mmdatafocus/insights_backend/queue"
	"bitbucket.org/mmdatafocus/insights_backend/reportsync"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("REPORT_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(gin.Recovery())

	// Wiring happens up front; the handlers only touch the database and
	// redis once the readiness gate lets requests through.
	engineHolder := &serviceComponents{}
	r.POST("/api/reports/sync", lazily(engineHolder, reportsync.RegenerateHandler))
	r.DELETE("/api/reports/data", lazily(engineHolder, reportsync.DeleteAllHandler))
	r.GET("/api/reports/sync/status", lazily(engineHolder, reportsync.StatusHandler))
	r.GET("/api/reports/categories", func(c *gin.Context) {
		if engineHolder.categories == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		reportsync.ReportHandler(engineHolder.categories)(c)
	})
	r.GET("/api/reports/categories/export", func(c *gin.Context) {
		if engineHolder.categories == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		reportsync.ReportExportHandler(engineHolder.categories, reportsync.CategoriesExportColumns())(c)
	})
	r.GET("/api/reports/stock/counts", func(c *gin.Context) {
		if engineHolder.executor == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		reportsync.StockCountsHandler(engineHolder.executor)(c)
	})
	r.POST("/pubsub/catalog-events", func(c *gin.Context) {
		if engineHolder.listener == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		cataloglistener.PubSubPushHandler(engineHolder.listener)(c)
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	workers := []reportsync.Worker{
		reportsync.NewCustomersSync(db),
		reportsync.NewOrdersSync(db),
	}
	state := reportsync.NewSyncState(reportsync.RedisOptionStore{})
	engine := reportsync.NewEngine(workers, queue.NewStore(db), state)
	sync := reportsync.NewReportsSync(engine)
	engineHolder.sync = sync
	engineHolder.listener = cataloglistener.NewListener(sync)
	engineHolder.executor = &reports.GormExecutor{DB: db}
	engineHolder.categories = reports.NewCategoriesDataStore(engineHolder.executor)

	dispatcher := queue.NewDispatcher(db, logger)
	engine.RegisterHandlers(dispatcher)
	go dispatcher.Run(sigCtx)

	if os.Getenv("CATALOG_EVENTS_SUBSCRIPTION") != "" {
		if err := cataloglistener.RunCatalogSubscriber(sigCtx, engineHolder.listener); err != nil {
			config.LogError(logger, "main", "main", "catalog subscriber", nil, err)
		}
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

type serviceComponents struct {
	sync       *reportsync.ReportsSync
	listener   *cataloglistener.Listener
	executor   reports.Executor
	categories reportsync.ReportStore
}

// lazily defers handler construction until the backing components exist;
// the server listens before the database connects.
func lazily(holder *serviceComponents, build func(*reportsync.ReportsSync) gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if holder.sync == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		build(holder.sync)(c)
	}
}
