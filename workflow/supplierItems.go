package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
)

const supplierItemPageSize = 500

type SupplierItemSyncReport struct {
	ItemsSeen   int `json:"items_seen"`
	ItemsCopied int `json:"items_copied"`
}

// SyncSupplierItems copies procurement supplier items the inventory store
// does not have yet. Insert-only: the mirror never overwrites, so re-running
// after a partial failure is safe.
func SyncSupplierItems(ctx context.Context) (*SupplierItemSyncReport, error) {
	logger := config.GetLogger()
	report := &SupplierItemSyncReport{}
	started := time.Now()

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		items, err := models.GetProcurementSupplierItemsPage(ctx, afterID, supplierItemPageSize)
		if err != nil {
			return report, fmt.Errorf("load supplier items page after id %d: %w", afterID, err)
		}
		if len(items) == 0 {
			break
		}
		afterID = items[len(items)-1].ID
		report.ItemsSeen += len(items)

		ids := make([]uint, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		existing, err := models.GetInventorySupplierItemIds(ctx, ids)
		if err != nil {
			return report, err
		}

		var missing []models.SupplierItem
		for _, it := range items {
			if !existing[it.ID] {
				missing = append(missing, it)
			}
		}
		if len(missing) > 0 {
			if err := models.CreateInventorySupplierItems(ctx, missing); err != nil {
				return report, fmt.Errorf("copy %d supplier items: %w", len(missing), err)
			}
			report.ItemsCopied += len(missing)
		}
	}

	logger.WithFields(logrus.Fields{
		"items_seen":   report.ItemsSeen,
		"items_copied": report.ItemsCopied,
		"duration_ms":  time.Since(started).Milliseconds(),
	}).Info("supplieritems.sync.done")
	return report, nil
}
