package reports

import (
	"context"
	"fmt"
	"strconv"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
)

const (
	ProductCountCacheKey  = "ProductCount"
	LowStockCountCacheKey = "StockCount:lowstock"

	lowStockThresholdOptionKey = "Option:notify_low_stock_amount"
	defaultLowStockThreshold   = 2
)

func stockCountCacheKey(status models.StockStatus) string {
	return "StockCount:" + string(status)
}

// StockCountCacheKeys is the fixed set of cached stock figures, one per
// stock status plus the low-stock and overall product counts.
func StockCountCacheKeys() []string {
	keys := []string{ProductCountCacheKey, LowStockCountCacheKey}
	for _, status := range models.AllStockStatuses() {
		keys = append(keys, stockCountCacheKey(status))
	}
	return keys
}

// GetStockCount returns the number of products with the given stock status,
// serving the cached figure when present.
func GetStockCount(ctx context.Context, exec Executor, status models.StockStatus) (int64, error) {
	return cachedCount(ctx, exec, stockCountCacheKey(status),
		"SELECT COUNT(*) as total FROM products WHERE stock_status = ?", string(status))
}

// GetLowStockCount counts in-stock products at or below the low-stock
// threshold option.
func GetLowStockCount(ctx context.Context, exec Executor) (int64, error) {
	threshold := int64(defaultLowStockThreshold)
	if v, ok, err := config.GetRedisValue(lowStockThresholdOptionKey); err == nil && ok {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			threshold = n
		}
	}
	return cachedCount(ctx, exec, LowStockCountCacheKey,
		"SELECT COUNT(*) as total FROM products WHERE stock_status = ? AND stock_quantity <= ?",
		string(models.StockStatusInStock), threshold)
}

// GetProductCount returns the total product count.
func GetProductCount(ctx context.Context, exec Executor) (int64, error) {
	return cachedCount(ctx, exec, ProductCountCacheKey,
		"SELECT COUNT(*) as total FROM products")
}

func cachedCount(ctx context.Context, exec Executor, key string, query string, args ...interface{}) (int64, error) {
	var cached int64
	if exists, err := config.GetRedisObject(key, &cached); err == nil && exists {
		return cached, nil
	}

	rows, err := exec.Execute(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("counting products for %s: %w", key, err)
	}
	var total int64
	if len(rows) > 0 {
		total = coerceInt(rows[0]["total"])
	}
	_ = config.SetRedisObject(key, total, reportCacheTTL())
	return total, nil
}
