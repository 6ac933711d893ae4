package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/models"
	"github.com/aidenhsy/cron-schedules/utils"
)

// fakeSettlementStore keeps all three stores in memory and honors the
// is_final guard the way the real guarded UPDATEs do.
type fakeSettlementStore struct {
	supplierOrder *models.SupplierOrder
	order         *models.ProcurementOrder
	basicDetails  []models.ScmOrderDetail
	procDetails   []models.SupplierOrderDetail
	orderDetails  []models.ProcurementOrderDetail

	writes      int
	orderStatus models.OrderStatus
	orderAmount decimal.Decimal
	procStatus  models.OrderStatus
	procAmount  decimal.Decimal
}

func (f *fakeSettlementStore) GetSupplierOrder(ctx context.Context, id string) (*models.SupplierOrder, error) {
	if f.supplierOrder == nil || f.supplierOrder.ID != id {
		return nil, utils.ErrorRecordNotFound
	}
	return f.supplierOrder, nil
}

func (f *fakeSettlementStore) CountSupplierOrderDetails(ctx context.Context, orderId string) (int64, error) {
	return int64(len(f.procDetails)), nil
}

func (f *fakeSettlementStore) CountBasicOrderDetails(ctx context.Context, referenceOrderId string) (int64, error) {
	return int64(len(f.basicDetails)), nil
}

func (f *fakeSettlementStore) GetOrderByClientOrderId(ctx context.Context, clientOrderId string) (*models.ProcurementOrder, error) {
	if f.order == nil || f.order.ClientOrderId != clientOrderId {
		return nil, utils.ErrorRecordNotFound
	}
	return f.order, nil
}

func (f *fakeSettlementStore) GetBasicOrderDetails(ctx context.Context, referenceOrderId string) ([]models.ScmOrderDetail, error) {
	return f.basicDetails, nil
}

func (f *fakeSettlementStore) GetSupplierOrderDetails(ctx context.Context, orderId string) ([]models.SupplierOrderDetail, error) {
	return f.procDetails, nil
}

func (f *fakeSettlementStore) GetOrderDetailsByOrderIds(ctx context.Context, orderIds []uint) ([]models.ProcurementOrderDetail, error) {
	return f.orderDetails, nil
}

func (f *fakeSettlementStore) SettleOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error) {
	for i := range f.orderDetails {
		d := &f.orderDetails[i]
		if d.ID != detailId {
			continue
		}
		if d.IsFinal {
			return 0, nil
		}
		d.DeliverQty, d.ReceiveQty, d.FinalQty = qty, qty, qty
		d.IsFinal = true
		f.writes++
		return 1, nil
	}
	return 0, nil
}

func (f *fakeSettlementStore) SettleSupplierOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error) {
	for i := range f.procDetails {
		d := &f.procDetails[i]
		if d.ID != detailId {
			continue
		}
		if d.IsFinal {
			return 0, nil
		}
		d.ActualDeliveryQty, d.ConfirmDeliveryQty, d.FinalQty = qty, qty, qty
		d.IsFinal = true
		f.writes++
		return 1, nil
	}
	return 0, nil
}

func (f *fakeSettlementStore) SetOrderStatusAndAmount(ctx context.Context, orderId uint, status models.OrderStatus, actualAmount decimal.Decimal) error {
	f.orderStatus = status
	f.orderAmount = actualAmount
	f.writes++
	return nil
}

func (f *fakeSettlementStore) SetSupplierOrderStatusAndAmount(ctx context.Context, orderId string, status models.OrderStatus, actualAmount decimal.Decimal) error {
	f.procStatus = status
	f.procAmount = actualAmount
	f.writes++
	return nil
}

// twoLineStore is a delivered two-line order: refs A (3 units at 2.00) and
// B (2 units at 4.00) consistent across all three stores.
func twoLineStore() *fakeSettlementStore {
	return &fakeSettlementStore{
		supplierOrder: &models.SupplierOrder{ID: "ORD-1", ShopId: 7, Status: models.OrderStatusDelivered},
		order:         &models.ProcurementOrder{ID: 70, ClientOrderId: "ORD-1", Status: models.OrderStatusDelivered},
		basicDetails: []models.ScmOrderDetail{
			{ID: 1, ReferenceOrderId: "ORD-1", ReferenceId: "A", DeliverGoodsQty: dec("3")},
			{ID: 2, ReferenceOrderId: "ORD-1", ReferenceId: "B", DeliverGoodsQty: dec("2")},
		},
		procDetails: []models.SupplierOrderDetail{
			{ID: 11, OrderId: "ORD-1", SupplierReferenceId: "A", Price: dec("2.00")},
			{ID: 12, OrderId: "ORD-1", SupplierReferenceId: "B", Price: dec("4.00")},
		},
		orderDetails: []models.ProcurementOrderDetail{
			{ID: 21, OrderId: 70, ReferenceId: "A", Price: dec("2.00")},
			{ID: 22, OrderId: 70, ReferenceId: "B", Price: dec("4.00")},
		},
	}
}

func twoLineRequest() FinalizeRequest {
	return FinalizeRequest{
		MessageId:     "msg-1",
		ClientOrderId: "ORD-1",
		Lines: []FinalizeLine{
			{ReferenceId: "A", Qty: dec("3")},
			{ReferenceId: "B", Qty: dec("2")},
		},
	}
}

func TestFinalizeDeliveredOrderSettlesBothStores(t *testing.T) {
	store := twoLineStore()
	if err := finalizeDeliveredOrder(context.Background(), store, twoLineRequest()); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	for _, d := range store.orderDetails {
		if !d.IsFinal {
			t.Errorf("order detail %d not locked", d.ID)
		}
	}
	if !store.orderDetails[0].FinalQty.Equal(dec("3")) || !store.orderDetails[1].FinalQty.Equal(dec("2")) {
		t.Errorf("final qtys = %s/%s, want basic 3/2", store.orderDetails[0].FinalQty, store.orderDetails[1].FinalQty)
	}
	// 3x2.00 + 2x4.00 on both sides.
	if !store.orderAmount.Equal(dec("14")) || !store.procAmount.Equal(dec("14")) {
		t.Errorf("amounts = %s/%s, want 14/14", store.orderAmount, store.procAmount)
	}
	if store.orderStatus != models.OrderStatusFinalized || store.procStatus != models.OrderStatusFinalized {
		t.Errorf("statuses = %s/%s, want Finalized", store.orderStatus, store.procStatus)
	}
}

func TestFinalizeReplayIsNoOp(t *testing.T) {
	store := twoLineStore()
	store.supplierOrder.Status = models.OrderStatusFinalized

	if err := finalizeDeliveredOrder(context.Background(), store, twoLineRequest()); err != nil {
		t.Fatalf("replay should succeed: %v", err)
	}
	if store.writes != 0 {
		t.Errorf("replay performed %d writes, want 0", store.writes)
	}
}

func TestFinalizeStatusConflict(t *testing.T) {
	// The event says delivered but the procurement store still says Sent;
	// nothing may be written until the store catches up.
	store := twoLineStore()
	store.supplierOrder.Status = models.OrderStatusSent

	err := finalizeDeliveredOrder(context.Background(), store, twoLineRequest())
	if !errors.Is(err, utils.ErrorStatusConflict) {
		t.Fatalf("err = %v, want ErrorStatusConflict", err)
	}
	if store.writes != 0 {
		t.Errorf("status conflict performed %d writes, want 0", store.writes)
	}
}

func TestFinalizeCountMismatchWritesNothing(t *testing.T) {
	store := twoLineStore()
	req := twoLineRequest()
	req.Lines = req.Lines[:1]

	err := finalizeDeliveredOrder(context.Background(), store, req)
	if !errors.Is(err, utils.ErrorCountMismatch) {
		t.Fatalf("err = %v, want ErrorCountMismatch", err)
	}
	if store.writes != 0 {
		t.Errorf("mismatch performed %d writes, want 0", store.writes)
	}
}

func TestFinalizeMissingLineWritesNothing(t *testing.T) {
	store := twoLineStore()
	req := twoLineRequest()
	req.Lines[1].ReferenceId = "UNKNOWN"

	err := finalizeDeliveredOrder(context.Background(), store, req)
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("err = %v, want ErrorRecordNotFound", err)
	}
	if store.writes != 0 {
		t.Errorf("missing line performed %d writes, want 0", store.writes)
	}
}

func TestFinalizeSkipsLockedLineAndKeepsItsTotal(t *testing.T) {
	store := twoLineStore()
	// Line A was already settled at qty 9 by a concurrent writer.
	store.orderDetails[0].IsFinal = true
	store.orderDetails[0].FinalQty = dec("9")

	if err := finalizeDeliveredOrder(context.Background(), store, twoLineRequest()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !store.orderDetails[0].FinalQty.Equal(dec("9")) {
		t.Errorf("locked line overwritten: final qty = %s, want 9", store.orderDetails[0].FinalQty)
	}
	// 9x2.00 (locked) + 2x4.00 (settled).
	if !store.orderAmount.Equal(dec("26")) {
		t.Errorf("order amount = %s, want 26", store.orderAmount)
	}
}

func TestCheckLineParity(t *testing.T) {
	if err := checkLineParity("ORD-1", 3, 3, 3); err != nil {
		t.Fatalf("equal counts rejected: %v", err)
	}

	cases := []struct{ payload, proc, basic int64 }{
		{2, 3, 3},
		{3, 2, 3},
		{3, 3, 2},
		{0, 3, 3},
	}
	for _, c := range cases {
		err := checkLineParity("ORD-1", c.payload, c.proc, c.basic)
		if !errors.Is(err, utils.ErrorCountMismatch) {
			t.Errorf("counts %d/%d/%d: err = %v, want ErrorCountMismatch", c.payload, c.proc, c.basic, err)
		}
	}
}

func TestStalledCutoffIsYesterdayNoon(t *testing.T) {
	loc := utils.BusinessTimezone()
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, loc)
	cutoff := StalledCutoff(now)

	if cutoff.Year() != 2026 || cutoff.Month() != 3 || cutoff.Day() != 9 {
		t.Errorf("cutoff date = %s, want 2026-03-09", cutoff.Format("2006-01-02"))
	}
	if cutoff.Hour() != 12 || cutoff.Minute() != 0 {
		t.Errorf("cutoff time = %s, want noon", cutoff.Format("15:04"))
	}
}

func TestStalledCutoffConvertsZone(t *testing.T) {
	// 2026-03-10 02:00 UTC is already 10:00 on the 10th in business time, so
	// the cutoff is noon on the 9th.
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	cutoff := StalledCutoff(now)
	if cutoff.Day() != 9 {
		t.Errorf("cutoff day = %d, want 9", cutoff.Day())
	}
}
