package reports

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/models"
)

const DefaultPerPage = 25

// ReportQuery is the full, user-supplied parameter set of one report
// request. Zero values are filled with defaults before the query runs; the
// normalized struct is what the cache key is derived from.
type ReportQuery struct {
	After        *models.MyDateString `json:"after"`
	Before       *models.MyDateString `json:"before"`
	Page         int                  `json:"page" validate:"gte=0"`
	PerPage      int                  `json:"per_page" validate:"gte=0"`
	Order        string               `json:"order"`
	OrderBy      string               `json:"orderby"`
	StatusIs     []models.OrderStatus `json:"status_is"`
	StatusIsNot  []models.OrderStatus `json:"status_is_not"`
	Categories   []int                `json:"categories"`
	Products     []int                `json:"products"`
	ExtendedInfo bool                 `json:"extended_info"`
}

// ReportResult is the uniform payload of every report type.
type ReportResult struct {
	Data   []map[string]interface{} `json:"data"`
	Total  int                      `json:"total"`
	Pages  int                      `json:"pages"`
	PageNo int                      `json:"page_no"`
}

func emptyResult() *ReportResult {
	return &ReportResult{Data: []map[string]interface{}{}}
}

func totalPages(total, perPage int) int {
	if perPage < 1 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(perPage)))
}

// StoreTimezone is the canonical timezone date bounds are interpreted in.
func StoreTimezone() string {
	if tz := os.Getenv("STORE_TIMEZONE"); tz != "" {
		return tz
	}
	return "UTC"
}

func defaultAfter() *models.MyDateString {
	d := models.MyDateString(time.Now().UTC().AddDate(0, 0, -7))
	return &d
}

func defaultBefore() *models.MyDateString {
	d := models.MyDateString(time.Now().UTC())
	return &d
}

// applyDefaults fills missing fields in place. Defaults never raise errors;
// unknown orderby keys are left for NormalizeOrderBy to pass through.
func (args *ReportQuery) applyDefaults(defaultOrderBy string) {
	if args.Page == 0 {
		args.Page = 1
	}
	if args.PerPage == 0 {
		args.PerPage = DefaultPerPage
	}
	if args.Order == "" {
		args.Order = "DESC"
	}
	if args.OrderBy == "" {
		args.OrderBy = defaultOrderBy
	}
	if args.After == nil {
		args.After = defaultAfter()
	}
	if args.Before == nil {
		args.Before = defaultBefore()
	}
}

// normalizeTimezones converts the date bounds to UTC instants in the store
// timezone: `after` snaps to start of day and `before` to end of day unless
// the caller supplied an explicit time of day.
func (args *ReportQuery) normalizeTimezones() error {
	tz := StoreTimezone()
	if args.After != nil {
		if args.After.HasExplicitTime() {
			if err := args.After.UTCTime(tz); err != nil {
				return err
			}
		} else if err := args.After.StartOfDayUTCTime(tz); err != nil {
			return err
		}
	}
	if args.Before != nil {
		if args.Before.HasExplicitTime() {
			if err := args.Before.UTCTime(tz); err != nil {
				return err
			}
		} else if err := args.Before.EndOfDayUTCTime(tz); err != nil {
			return err
		}
	}
	return nil
}

// cacheKey derives the canonical cache key for one normalized parameter
// set. Struct field order is fixed, so marshaling is deterministic.
func cacheKey(context string, args *ReportQuery) string {
	b, _ := json.Marshal(args)
	return fmt.Sprintf("Report:%s:%x", context, md5.Sum(b))
}
