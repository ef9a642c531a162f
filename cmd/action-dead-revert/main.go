package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models"
)

// action-dead-revert requeues scheduled actions parked DEAD after exceeding
// their retry budget, once the underlying cause is fixed.
//
// Dry-run (default): show counts only
//   go run ./cmd/action-dead-revert -group=report_import
//
// Execute:
//   go run ./cmd/action-dead-revert -group=report_import -dry-run=false -confirm=REVERT
//
// Single action:
//   go run ./cmd/action-dead-revert -action-id=123 -dry-run=false -confirm=REVERT
func main() {
	groupTag := flag.String("group", "", "Limit to one group tag")
	actionName := flag.String("action", "", "Limit to one action name")
	actionID := flag.Int("action-id", 0, "Revert a single action id")
	dryRun := flag.Bool("dry-run", true, "List only (no writes)")
	confirm := flag.String("confirm", "", "Type REVERT to proceed when dry-run=false")
	flag.Parse()

	if !*dryRun && strings.TrimSpace(*confirm) != "REVERT" {
		fmt.Fprintln(os.Stderr, "set --confirm=REVERT to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	q := db.Model(&models.ScheduledAction{}).Where("status = ?", models.ActionStatusDead)
	if *actionID > 0 {
		q = q.Where("id = ?", *actionID)
	}
	if strings.TrimSpace(*groupTag) != "" {
		q = q.Where("group_tag = ?", strings.TrimSpace(*groupTag))
	}
	if strings.TrimSpace(*actionName) != "" {
		q = q.Where("action_name = ?", strings.TrimSpace(*actionName))
	}

	var dead []models.ScheduledAction
	if err := q.Order("id ASC").Find(&dead).Error; err != nil {
		fmt.Fprintf(os.Stderr, "listing dead actions failed: %v\n", err)
		os.Exit(1)
	}
	if len(dead) == 0 {
		fmt.Println("no dead actions match")
		return
	}

	for _, a := range dead {
		lastError := ""
		if a.LastError != nil {
			lastError = *a.LastError
		}
		fmt.Printf("id=%d action=%s group=%s attempts=%d last_error=%q\n",
			a.ID, a.ActionName, a.GroupTag, a.Attempts, lastError)
	}
	if *dryRun {
		fmt.Printf("dry-run: %d dead action(s) would be requeued\n", len(dead))
		return
	}

	ids := make([]int, 0, len(dead))
	for _, a := range dead {
		ids = append(ids, a.ID)
	}
	result := db.Model(&models.ScheduledAction{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":          models.ActionStatusPending,
			"attempts":        0,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       nil,
			"last_error":      nil,
		})
	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "requeue failed: %v\n", result.Error)
		os.Exit(1)
	}
	fmt.Printf("requeued %d dead action(s)\n", result.RowsAffected)
}
