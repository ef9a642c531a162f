package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"github.com/google/uuid"
)

// catalog-event-publish pushes one catalog event onto the events topic.
// Useful for smoke-testing a deployed listener without touching the
// commerce backend.
//
//   go run ./cmd/catalog-event-publish -type=product -id=42 -action=update
func main() {
	refType := flag.String("type", "", "Reference type (product, category, customer, order, option)")
	refID := flag.Int("id", 0, "Reference id (not required for option events)")
	action := flag.String("action", "update", "Event action (create, update, delete)")
	correlationID := flag.String("correlation-id", "", "Correlation id (generated when empty)")
	flag.Parse()

	if strings.TrimSpace(*refType) == "" {
		fmt.Fprintln(os.Stderr, "set --type")
		os.Exit(1)
	}

	cid := strings.TrimSpace(*correlationID)
	if cid == "" {
		cid = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := config.CatalogEventMessage{
		EventTime:     time.Now().UTC(),
		ReferenceId:   *refID,
		ReferenceType: strings.TrimSpace(*refType),
		Action:        strings.TrimSpace(*action),
		CorrelationId: cid,
	}
	id, err := config.PublishCatalogEvent(ctx, msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("published message_id=%s correlation_id=%s\n", id, cid)
}
