package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
	"github.com/aidenhsy/cron-schedules/utils"
)

// StalledCutoff returns yesterday noon in the business timezone. An order
// whose delivery window passed before that point and which never reached
// Delivered is considered abandoned by the supplier flow and gets settled
// from the basic store.
func StalledCutoff(now time.Time) time.Time {
	loc := utils.BusinessTimezone()
	local := now.In(loc)
	yesterday := local.AddDate(0, 0, -1)
	return time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 12, 0, 0, 0, loc)
}

// SweepStalledOrders force-finalizes supplier orders stuck before Delivered
// past the cutoff. Returns how many orders were settled. Orders the basic
// store knows nothing about are left alone: without shipment evidence there
// is nothing to settle from.
func SweepStalledOrders(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	logger := config.GetLogger()
	if limit <= 0 {
		limit = defaultScanBatchSize
	}

	stalled, err := models.GetStalledSupplierOrders(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("load stalled supplier orders: %w", err)
	}
	if len(stalled) == 0 {
		return 0, nil
	}

	logger.WithFields(logrus.Fields{
		"cutoff": cutoff.Format(time.RFC3339),
		"count":  len(stalled),
	}).Info("scan.stalled.start")

	settled := 0
	for i := range stalled {
		so := &stalled[i]
		if err := settleStalledOrder(ctx, so); err != nil {
			config.LogError(logger, "workflow", "SweepStalledOrders", "stalled order settle failed",
				map[string]interface{}{"client_order_id": so.ID}, err)
			continue
		}
		settled++
	}
	return settled, nil
}

func settleStalledOrder(ctx context.Context, supplierOrder *models.SupplierOrder) error {
	basicDetails, err := models.GetBasicOrderDetails(ctx, supplierOrder.ID)
	if err != nil {
		return err
	}
	if len(basicDetails) == 0 {
		// No shipment evidence; skip until the ERP bridge catches up.
		return nil
	}

	order, err := models.GetOrderByClientOrderId(ctx, supplierOrder.ID)
	if err != nil {
		return err
	}

	orderDetails, err := models.GetOrderDetailsByOrderIds(ctx, []uint{order.ID})
	if err != nil {
		return err
	}
	orderByRef := make(map[string]*models.ProcurementOrderDetail, len(orderDetails))
	for i := range orderDetails {
		orderByRef[orderDetails[i].ReferenceId] = &orderDetails[i]
	}

	procDetails, err := models.GetSupplierOrderDetails(ctx, supplierOrder.ID)
	if err != nil {
		return err
	}
	procByRef := make(map[string]*models.SupplierOrderDetail, len(procDetails))
	for i := range procDetails {
		procByRef[procDetails[i].SupplierReferenceId] = &procDetails[i]
	}

	lockSkips, err := settleOrderFromBasic(ctx, dbSettlementStore{}, order, supplierOrder, basicDetails, orderByRef, procByRef)
	if err != nil {
		return err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"client_order_id": supplierOrder.ID,
		"basic_lines":     len(basicDetails),
		"lock_skips":      lockSkips,
	}).Info("scan.stalled.settled")
	return nil
}
