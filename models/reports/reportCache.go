package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/sirupsen/logrus"
)

// Cache stores computed report payloads keyed by their canonical parameter
// set. One key holds at most one payload; a context groups every key of one
// report type so lookup-table writes can invalidate the whole context.
type Cache interface {
	Get(key string) (*ReportResult, bool)
	Set(contextTag string, key string, data *ReportResult)
	Invalidate(contextTag string)
}

func reportCacheEnabled() bool {
	return utils.EnvBoolDefault(os.Getenv("ENABLE_REPORT_CACHE"), true)
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 3600s)
	ttl := 3600
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
	}).Warn("slow report")
}

func cacheKeySetName(contextTag string) string {
	return "ReportCacheKeys:" + contextTag
}

// RedisCache is the production Cache backed by the shared redis client.
type RedisCache struct{}

func (RedisCache) Get(key string) (*ReportResult, bool) {
	if !reportCacheEnabled() {
		return nil, false
	}
	var result *ReportResult
	exists, err := config.GetRedisObject(key, &result)
	if err != nil || !exists || result == nil {
		return nil, false
	}
	return result, true
}

func (RedisCache) Set(contextTag string, key string, data *ReportResult) {
	if !reportCacheEnabled() {
		return
	}
	// Register the key first; an unregistered cached key could never be
	// invalidated, a registered missing key costs nothing.
	if err := config.AddRedisSet(cacheKeySetName(contextTag), key); err != nil {
		return
	}
	_ = config.SetRedisObject(key, data, reportCacheTTL())
}

func (RedisCache) Invalidate(contextTag string) {
	members, err := config.GetRedisSetMembers(cacheKeySetName(contextTag))
	if err != nil {
		return
	}
	if len(members) > 0 {
		_ = config.RemoveRedisKey(members...)
	}
	_ = config.RemoveRedisKey(cacheKeySetName(contextTag))
}
