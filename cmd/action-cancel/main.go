package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
	"bitbucket.org/mmdatafocus/insights_backend/queue"
)

// action-cancel pulls back every pending or failed scheduled action in a
// group. Use it when a queued run must be stopped without waiting for the
// service's teardown endpoint.
//
// Dry-run (default): show counts only
//   go run ./cmd/action-cancel -group=report_import
//
// Execute:
//   go run ./cmd/action-cancel -group=report_import -dry-run=false -confirm=CANCEL
func main() {
	groupTag := flag.String("group", "", "Group tag to cancel (required)")
	dryRun := flag.Bool("dry-run", true, "List only (no writes)")
	confirm := flag.String("confirm", "", "Type CANCEL to proceed when dry-run=false")
	flag.Parse()

	group := strings.TrimSpace(*groupTag)
	if group == "" {
		fmt.Fprintln(os.Stderr, "set --group")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "CANCEL" {
		fmt.Fprintln(os.Stderr, "set --confirm=CANCEL to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var pending []models.ScheduledAction
	err := db.Where("group_tag = ?", group).
		Where("status IN ?", []string{models.ActionStatusPending, models.ActionStatusFailed}).
		Order("id ASC").
		Find(&pending).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing actions failed: %v\n", err)
		os.Exit(1)
	}
	if len(pending) == 0 {
		fmt.Println("no cancellable actions match")
		return
	}

	for _, a := range pending {
		fmt.Printf("id=%d action=%s status=%s attempts=%d\n", a.ID, a.ActionName, a.Status, a.Attempts)
	}
	if *dryRun {
		fmt.Printf("dry-run: %d action(s) would be cancelled\n", len(pending))
		return
	}

	cancelled, err := queue.NewStore(db).CancelByGroup(context.Background(), group)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cancel failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("cancelled %d action(s)\n", cancelled)
}
