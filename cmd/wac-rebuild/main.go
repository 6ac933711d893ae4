package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/workflow"
)

// Offline weighted-average-cost rebuild. Scoped to one (shop, item) chain
// or, with --all, every chain the ledger knows.
func main() {
	shopID := flag.Uint("shop-id", 0, "Shop id of the chain to rebuild")
	itemID := flag.Uint("supplier-item-id", 0, "Supplier item id of the chain to rebuild")
	all := flag.Bool("all", false, "Rebuild every known chain")
	backfill := flag.Bool("backfill", false, "Run the missing-entry backfill before rebuilding")
	flag.Parse()

	if !*all && (*shopID == 0 || *itemID == 0) {
		fmt.Fprintln(os.Stderr, "either --all or both --shop-id and --supplier-item-id are required")
		os.Exit(1)
	}

	config.ConnectDatabasesWithRetry()
	logger := config.GetLogger()
	ctx := context.Background()

	if *backfill {
		report, err := workflow.ProcessMissingWacEntries(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
			os.Exit(1)
		}
		logger.WithFields(logrus.Fields{
			"entries_created": report.EntriesCreated,
			"duplicates":      report.Duplicates,
		}).Info("wac-rebuild.backfill.done")
	}

	if *all {
		rebuilt, err := workflow.RecalculateAllWac(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild failed after %d chains: %v\n", rebuilt, err)
			os.Exit(1)
		}
		fmt.Printf("rebuilt %d chains\n", rebuilt)
		return
	}

	if err := workflow.RecalculateWac(ctx, *shopID, *itemID); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt chain shop=%d supplier_item=%d\n", *shopID, *itemID)
}
