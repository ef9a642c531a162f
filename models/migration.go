package models

import (
	"log"

	"bitbucket.org/mmdatafocus/insights_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	// Source tables belong to the commerce backend; only the tables this
	// service owns are migrated here.
	err := db.AutoMigrate(
		&OrderProductLookup{}, &CustomerLookup{}, &CategoryLookup{},
		&ScheduledAction{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
