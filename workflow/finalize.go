package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
	"github.com/aidenhsy/cron-schedules/utils"
)

// FinalizeLine is one line of a delivered-order event payload.
type FinalizeLine struct {
	ReferenceId string          `json:"reference_id"`
	Qty         decimal.Decimal `json:"qty"`
}

// FinalizeRequest is the decoded order.delivered event. ClientOrderId is the
// aggregate id shared by all three stores.
type FinalizeRequest struct {
	MessageId     string
	ClientOrderId string
	Lines         []FinalizeLine
}

// settlementStore is the slice of the models layer the completion pipeline
// and the stalled sweep write through. Tests substitute a fake.
type settlementStore interface {
	GetSupplierOrder(ctx context.Context, id string) (*models.SupplierOrder, error)
	CountSupplierOrderDetails(ctx context.Context, orderId string) (int64, error)
	CountBasicOrderDetails(ctx context.Context, referenceOrderId string) (int64, error)
	GetOrderByClientOrderId(ctx context.Context, clientOrderId string) (*models.ProcurementOrder, error)
	GetBasicOrderDetails(ctx context.Context, referenceOrderId string) ([]models.ScmOrderDetail, error)
	GetSupplierOrderDetails(ctx context.Context, orderId string) ([]models.SupplierOrderDetail, error)
	GetOrderDetailsByOrderIds(ctx context.Context, orderIds []uint) ([]models.ProcurementOrderDetail, error)
	SettleOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error)
	SettleSupplierOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error)
	SetOrderStatusAndAmount(ctx context.Context, orderId uint, status models.OrderStatus, actualAmount decimal.Decimal) error
	SetSupplierOrderStatusAndAmount(ctx context.Context, orderId string, status models.OrderStatus, actualAmount decimal.Decimal) error
}

// dbSettlementStore delegates to the package-level models helpers.
type dbSettlementStore struct{}

func (dbSettlementStore) GetSupplierOrder(ctx context.Context, id string) (*models.SupplierOrder, error) {
	return models.GetSupplierOrder(ctx, id)
}
func (dbSettlementStore) CountSupplierOrderDetails(ctx context.Context, orderId string) (int64, error) {
	return models.CountSupplierOrderDetails(ctx, orderId)
}
func (dbSettlementStore) CountBasicOrderDetails(ctx context.Context, referenceOrderId string) (int64, error) {
	return models.CountBasicOrderDetails(ctx, referenceOrderId)
}
func (dbSettlementStore) GetOrderByClientOrderId(ctx context.Context, clientOrderId string) (*models.ProcurementOrder, error) {
	return models.GetOrderByClientOrderId(ctx, clientOrderId)
}
func (dbSettlementStore) GetBasicOrderDetails(ctx context.Context, referenceOrderId string) ([]models.ScmOrderDetail, error) {
	return models.GetBasicOrderDetails(ctx, referenceOrderId)
}
func (dbSettlementStore) GetSupplierOrderDetails(ctx context.Context, orderId string) ([]models.SupplierOrderDetail, error) {
	return models.GetSupplierOrderDetails(ctx, orderId)
}
func (dbSettlementStore) GetOrderDetailsByOrderIds(ctx context.Context, orderIds []uint) ([]models.ProcurementOrderDetail, error) {
	return models.GetOrderDetailsByOrderIds(ctx, orderIds)
}
func (dbSettlementStore) SettleOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error) {
	return models.SettleOrderDetailQty(ctx, detailId, qty)
}
func (dbSettlementStore) SettleSupplierOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error) {
	return models.SettleSupplierOrderDetailQty(ctx, detailId, qty)
}
func (dbSettlementStore) SetOrderStatusAndAmount(ctx context.Context, orderId uint, status models.OrderStatus, actualAmount decimal.Decimal) error {
	return models.SetOrderStatusAndAmount(ctx, orderId, status, actualAmount)
}
func (dbSettlementStore) SetSupplierOrderStatusAndAmount(ctx context.Context, orderId string, status models.OrderStatus, actualAmount decimal.Decimal) error {
	return models.SetSupplierOrderStatusAndAmount(ctx, orderId, status, actualAmount)
}

// FinalizeDeliveredOrder settles a delivered order: the basic store's
// shipped quantities become the final quantities on both writable stores,
// amounts are recomputed and both statuses advance to Finalized.
//
// The whole function is replay-safe: an already finalized order is a no-op
// success, every qty write is guarded by is_final, and any error before the
// first write leaves the stores untouched so the broker can redeliver.
func FinalizeDeliveredOrder(ctx context.Context, req FinalizeRequest) error {
	return finalizeDeliveredOrder(ctx, dbSettlementStore{}, req)
}

func finalizeDeliveredOrder(ctx context.Context, store settlementStore, req FinalizeRequest) error {
	logger := config.GetLogger()

	supplierOrder, err := store.GetSupplierOrder(ctx, req.ClientOrderId)
	if err != nil {
		return fmt.Errorf("load supplier order %s: %w", req.ClientOrderId, err)
	}

	if supplierOrder.Status.Settled() {
		logger.WithFields(logrus.Fields{
			"client_order_id": req.ClientOrderId,
			"message_id":      req.MessageId,
			"status":          supplierOrder.Status.String(),
		}).Info("finalize.replay.noop")
		return nil
	}

	// The event claims the order was delivered; if the procurement store has
	// not caught up yet, redelivery retries once it has.
	if !supplierOrder.Status.CanTransition(models.OrderStatusFinalized) {
		return fmt.Errorf("%w: order %s in status %s cannot advance to Finalized",
			utils.ErrorStatusConflict, req.ClientOrderId, supplierOrder.Status)
	}

	procCount, err := store.CountSupplierOrderDetails(ctx, req.ClientOrderId)
	if err != nil {
		return err
	}
	basicCount, err := store.CountBasicOrderDetails(ctx, req.ClientOrderId)
	if err != nil {
		return err
	}
	if err := checkLineParity(req.ClientOrderId, int64(len(req.Lines)), procCount, basicCount); err != nil {
		return err
	}

	order, err := store.GetOrderByClientOrderId(ctx, req.ClientOrderId)
	if err != nil {
		return fmt.Errorf("load order %s: %w", req.ClientOrderId, err)
	}

	basicDetails, err := store.GetBasicOrderDetails(ctx, req.ClientOrderId)
	if err != nil {
		return err
	}
	basicByRef := make(map[string]*models.ScmOrderDetail, len(basicDetails))
	for i := range basicDetails {
		basicByRef[basicDetails[i].ReferenceId] = &basicDetails[i]
	}

	procDetails, err := store.GetSupplierOrderDetails(ctx, req.ClientOrderId)
	if err != nil {
		return err
	}
	procByRef := make(map[string]*models.SupplierOrderDetail, len(procDetails))
	for i := range procDetails {
		procByRef[procDetails[i].SupplierReferenceId] = &procDetails[i]
	}

	orderDetails, err := store.GetOrderDetailsByOrderIds(ctx, []uint{order.ID})
	if err != nil {
		return err
	}
	orderByRef := make(map[string]*models.ProcurementOrderDetail, len(orderDetails))
	for i := range orderDetails {
		orderByRef[orderDetails[i].ReferenceId] = &orderDetails[i]
	}

	// Every payload line must resolve in all stores before the first write.
	for _, line := range req.Lines {
		if basicByRef[line.ReferenceId] == nil {
			return fmt.Errorf("%w: basic line %s/%s", utils.ErrorRecordNotFound, req.ClientOrderId, line.ReferenceId)
		}
		if procByRef[line.ReferenceId] == nil {
			return fmt.Errorf("%w: procurement line %s/%s", utils.ErrorRecordNotFound, req.ClientOrderId, line.ReferenceId)
		}
		if orderByRef[line.ReferenceId] == nil {
			return fmt.Errorf("%w: order line %s/%s", utils.ErrorRecordNotFound, req.ClientOrderId, line.ReferenceId)
		}
	}

	lockSkips, err := settleOrderFromBasic(ctx, store, order, supplierOrder, basicDetails, orderByRef, procByRef)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"client_order_id": req.ClientOrderId,
		"message_id":      req.MessageId,
		"lines":           len(req.Lines),
		"lock_skips":      lockSkips,
	}).Info("finalize.done")
	return nil
}

// checkLineParity rejects an event whose three line counts disagree. The
// stores have not converged yet; redelivery retries later.
func checkLineParity(clientOrderId string, payload, procurement, basic int64) error {
	if payload != procurement || procurement != basic {
		return fmt.Errorf("%w: order %s payload=%d procurement=%d basic=%d",
			utils.ErrorCountMismatch, clientOrderId, payload, procurement, basic)
	}
	return nil
}

// settleOrderFromBasic writes the basic store's shipped quantity onto both
// writable stores (guarded, marking lines final), recomputes both actual
// amounts from the settled rows and advances both statuses to Finalized.
// Locked lines are skipped; their existing final quantity still counts
// toward the totals.
func settleOrderFromBasic(
	ctx context.Context,
	store settlementStore,
	order *models.ProcurementOrder,
	supplierOrder *models.SupplierOrder,
	basicDetails []models.ScmOrderDetail,
	orderByRef map[string]*models.ProcurementOrderDetail,
	procByRef map[string]*models.SupplierOrderDetail,
) (lockSkips int, err error) {
	for i := range basicDetails {
		bd := &basicDetails[i]
		qty := bd.DeliverGoodsQty

		if od := orderByRef[bd.ReferenceId]; od != nil {
			rows, uerr := store.SettleOrderDetailQty(ctx, od.ID, qty)
			if uerr != nil {
				return lockSkips, fmt.Errorf("settle order detail %d: %w", od.ID, uerr)
			}
			if rows == 0 {
				lockSkips++
			}
		}
		if pd := procByRef[bd.ReferenceId]; pd != nil {
			rows, uerr := store.SettleSupplierOrderDetailQty(ctx, pd.ID, qty)
			if uerr != nil {
				return lockSkips, fmt.Errorf("settle supplier detail %d: %w", pd.ID, uerr)
			}
			if rows == 0 {
				lockSkips++
			}
		}
	}

	// Totals come from the rows as settled, locked lines included.
	orderDetails, err := store.GetOrderDetailsByOrderIds(ctx, []uint{order.ID})
	if err != nil {
		return lockSkips, err
	}
	orderTotal := decimal.Zero
	for _, d := range orderDetails {
		orderTotal = orderTotal.Add(d.FinalQty.Mul(d.Price))
	}
	procDetails, err := store.GetSupplierOrderDetails(ctx, supplierOrder.ID)
	if err != nil {
		return lockSkips, err
	}
	procTotal := decimal.Zero
	for _, d := range procDetails {
		procTotal = procTotal.Add(d.FinalQty.Mul(d.Price))
	}

	if err := store.SetOrderStatusAndAmount(ctx, order.ID, models.OrderStatusFinalized, RoundAmount(orderTotal)); err != nil {
		return lockSkips, fmt.Errorf("finalize order %s: %w", order.ClientOrderId, err)
	}
	if err := store.SetSupplierOrderStatusAndAmount(ctx, supplierOrder.ID, models.OrderStatusFinalized, RoundAmount(procTotal)); err != nil {
		return lockSkips, fmt.Errorf("finalize supplier order %s: %w", supplierOrder.ID, err)
	}
	return lockSkips, nil
}
