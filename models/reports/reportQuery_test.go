package reports

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/models"
)

func TestApplyDefaults(t *testing.T) {
	args := &ReportQuery{}
	args.applyDefaults("net_revenue")

	if args.Page != 1 || args.PerPage != DefaultPerPage {
		t.Fatalf("paging defaults wrong: page=%d per_page=%d", args.Page, args.PerPage)
	}
	if args.Order != "DESC" || args.OrderBy != "net_revenue" {
		t.Fatalf("sort defaults wrong: %s %s", args.OrderBy, args.Order)
	}
	if args.After == nil || args.Before == nil {
		t.Fatalf("date range defaults missing")
	}
	span := args.Before.Time().Sub(args.After.Time())
	if span < 6*24*time.Hour || span > 8*24*time.Hour {
		t.Fatalf("default range should cover the last week, got %v", span)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	after := models.MyDateString(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	args := &ReportQuery{Page: 3, PerPage: 50, Order: "ASC", OrderBy: "items_sold", After: &after}
	args.applyDefaults("net_revenue")

	if args.Page != 3 || args.PerPage != 50 || args.Order != "ASC" || args.OrderBy != "items_sold" {
		t.Fatalf("explicit values overwritten: %+v", args)
	}
	if !args.After.Time().Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("explicit after overwritten: %v", args.After.Time())
	}
}

func TestNormalizeTimezonesDateOnlyBounds(t *testing.T) {
	after := models.MyDateString(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	before := models.MyDateString(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	args := &ReportQuery{After: &after, Before: &before}

	if err := args.normalizeTimezones(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !args.After.Time().Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("after should stay at start of day: %v", args.After.Time())
	}
	b := args.Before.Time()
	if b.Hour() != 23 || b.Minute() != 59 || b.Second() != 59 {
		t.Fatalf("before should snap to end of day: %v", b)
	}
}

func TestNormalizeTimezonesKeepsExplicitTime(t *testing.T) {
	before := models.MyDateString(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	args := &ReportQuery{Before: &before}

	if err := args.normalizeTimezones(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !args.Before.Time().Equal(time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("explicit time must be kept: %v", args.Before.Time())
	}
}

func TestCacheKeyDeterministicAndDiscriminating(t *testing.T) {
	build := func() *ReportQuery {
		after := models.MyDateString(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		return &ReportQuery{After: &after, Page: 1, PerPage: 25, Order: "DESC", OrderBy: "net_revenue"}
	}

	a := cacheKey("categories", build())
	b := cacheKey("categories", build())
	if a != b {
		t.Fatalf("same params produced different keys: %s vs %s", a, b)
	}

	changed := build()
	changed.Page = 2
	if cacheKey("categories", changed) == a {
		t.Fatalf("different params must produce different keys")
	}
	if cacheKey("products", build()) == a {
		t.Fatalf("different contexts must produce different keys")
	}
}

func TestMyDateStringJSONRoundTrip(t *testing.T) {
	var d models.MyDateString
	if err := d.UnmarshalJSON([]byte(`"2026-03-10"`)); err != nil {
		t.Fatalf("date-only form rejected: %v", err)
	}
	if d.HasExplicitTime() {
		t.Fatalf("date-only value should have no explicit time")
	}

	if err := d.UnmarshalJSON([]byte(`"2026-03-10T14:30:05"`)); err != nil {
		t.Fatalf("datetime form rejected: %v", err)
	}
	if !d.HasExplicitTime() {
		t.Fatalf("datetime value should report explicit time")
	}
	out, err := d.MarshalJSON()
	if err != nil || string(out) != `"2026-03-10T14:30:05"` {
		t.Fatalf("marshal round trip broken: %s %v", out, err)
	}
}
