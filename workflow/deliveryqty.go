package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
	"github.com/aidenhsy/cron-schedules/utils"
)

type DeliveryQtySyncResult struct {
	OrdersSynced int               `json:"orders_synced"`
	LinesSynced  int               `json:"lines_synced"`
	LockSkips    int               `json:"lock_skips"`
	Failed       map[string]string `json:"failed,omitempty"`
}

// SyncDeliveryQty copies the basic store's shipped quantity onto both
// writable stores for the given orders, at most two orders in flight. Each
// order fails fast on its first bad line; other orders keep going.
func SyncDeliveryQty(ctx context.Context, clientOrderIds []string) (*DeliveryQtySyncResult, error) {
	logger := config.GetLogger()
	clientOrderIds = utils.UniqueSlice(clientOrderIds)
	if len(clientOrderIds) == 0 {
		return nil, fmt.Errorf("%w: no order ids given", utils.ErrorValidation)
	}

	result := &DeliveryQtySyncResult{Failed: map[string]string{}}
	var mu sync.Mutex

	sem := make(chan struct{}, 2)
	var wg sync.WaitGroup
	for _, id := range clientOrderIds {
		id := id
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			lines, lockSkips, err := syncOrderDeliveryQty(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err.Error()
				config.LogError(logger, "workflow", "SyncDeliveryQty", "order sync failed",
					map[string]interface{}{"client_order_id": id}, err)
				return
			}
			result.OrdersSynced++
			result.LinesSynced += lines
			result.LockSkips += lockSkips
		}()
	}
	wg.Wait()

	logger.WithFields(logrus.Fields{
		"orders_requested": len(clientOrderIds),
		"orders_synced":    result.OrdersSynced,
		"lines_synced":     result.LinesSynced,
		"lock_skips":       result.LockSkips,
		"failed":           len(result.Failed),
	}).Info("deliveryqty.sync.done")
	return result, nil
}

func syncOrderDeliveryQty(ctx context.Context, clientOrderId string) (lines, lockSkips int, err error) {
	procDetails, err := models.GetSupplierOrderDetails(ctx, clientOrderId)
	if err != nil {
		return 0, 0, err
	}
	if len(procDetails) == 0 {
		return 0, 0, fmt.Errorf("%w: supplier order %s has no details", utils.ErrorRecordNotFound, clientOrderId)
	}

	order, err := models.GetOrderByClientOrderId(ctx, clientOrderId)
	if err != nil {
		return 0, 0, err
	}
	orderDetails, err := models.GetOrderDetailsByOrderIds(ctx, []uint{order.ID})
	if err != nil {
		return 0, 0, err
	}
	orderByRef := make(map[string]*models.ProcurementOrderDetail, len(orderDetails))
	for i := range orderDetails {
		orderByRef[orderDetails[i].ReferenceId] = &orderDetails[i]
	}

	basicDetails, err := models.GetBasicOrderDetails(ctx, clientOrderId)
	if err != nil {
		return 0, 0, err
	}
	basicByRef := make(map[string]*models.ScmOrderDetail, len(basicDetails))
	for i := range basicDetails {
		basicByRef[basicDetails[i].ReferenceId] = &basicDetails[i]
	}

	for i := range procDetails {
		pd := &procDetails[i]

		bd := basicByRef[pd.SupplierReferenceId]
		if bd == nil {
			return lines, lockSkips, fmt.Errorf("%w: basic line %s/%s", utils.ErrorRecordNotFound, clientOrderId, pd.SupplierReferenceId)
		}
		od := orderByRef[pd.SupplierReferenceId]
		if od == nil {
			return lines, lockSkips, fmt.Errorf("%w: order line %s/%s", utils.ErrorRecordNotFound, clientOrderId, pd.SupplierReferenceId)
		}

		// Only the delivered quantity is copied; receive and final stay
		// whatever the settlement flows wrote.
		qty := bd.DeliverGoodsQty
		rows, uerr := models.RepairSupplierOrderDetailColumns(ctx, pd.ID,
			map[string]decimal.Decimal{"actual_delivery_qty": qty})
		if uerr != nil {
			return lines, lockSkips, uerr
		}
		if rows == 0 {
			lockSkips++
		}
		rows, uerr = models.RepairOrderDetailColumns(ctx, od.ID,
			map[string]decimal.Decimal{"deliver_qty": qty})
		if uerr != nil {
			return lines, lockSkips, uerr
		}
		if rows == 0 {
			lockSkips++
		}
		lines++
	}
	return lines, lockSkips, nil
}
