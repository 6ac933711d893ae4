package workflow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
)

type MissingOrdersReport struct {
	// Orders the order store has but the procurement store does not.
	MissingInProcurement []string `json:"missing_in_procurement"`
	// Supplier orders the order store never recorded.
	MissingInOrder []string `json:"missing_in_order"`
}

// CheckMissingOrders diffs order existence in both directions without
// touching detail rows. Cheap enough to expose as an ad-hoc ops endpoint
// next to the full scan.
func CheckMissingOrders(ctx context.Context, batchSize int) (*MissingOrdersReport, error) {
	if batchSize <= 0 {
		batchSize = defaultScanBatchSize
	}
	report := &MissingOrdersReport{}

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		orders, err := models.GetOrderPage(ctx, afterID, batchSize, nil, nil)
		if err != nil {
			return report, fmt.Errorf("load order page after id %d: %w", afterID, err)
		}
		if len(orders) == 0 {
			break
		}
		afterID = orders[len(orders)-1].ID

		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ClientOrderId)
		}
		counterparts, err := models.GetSupplierOrdersByIds(ctx, ids)
		if err != nil {
			return report, err
		}
		found := make(map[string]bool, len(counterparts))
		for _, so := range counterparts {
			found[so.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				report.MissingInProcurement = append(report.MissingInProcurement, id)
			}
		}
	}

	missing, err := findSupplierOrdersMissingInOrderStore(ctx, batchSize)
	if err != nil {
		return report, err
	}
	report.MissingInOrder = missing

	config.GetLogger().WithFields(logrus.Fields{
		"missing_in_procurement": len(report.MissingInProcurement),
		"missing_in_order":       len(report.MissingInOrder),
	}).Info("checks.missing.done")
	return report, nil
}
