package workflow

import (
	"testing"

	"github.com/aidenhsy/cron-schedules/models"
)

func orderDetail(deliver, receive, final string) *models.ProcurementOrderDetail {
	return &models.ProcurementOrderDetail{
		ID:         1,
		DeliverQty: dec(deliver),
		ReceiveQty: dec(receive),
		FinalQty:   dec(final),
	}
}

func procDetail(actual, confirm, final string) *models.SupplierOrderDetail {
	return &models.SupplierOrderDetail{
		ID:                 2,
		ActualDeliveryQty:  dec(actual),
		ConfirmDeliveryQty: dec(confirm),
		FinalQty:           dec(final),
	}
}

func basicDetail(deliverGoods, delivery string) *models.ScmOrderDetail {
	return &models.ScmOrderDetail{
		ID:              3,
		DeliverGoodsQty: dec(deliverGoods),
		DeliveryQty:     dec(delivery),
	}
}

func TestResolveDetailAllAgree(t *testing.T) {
	rep := resolveDetail(orderDetail("10", "9", "9"), procDetail("10", "9", "9"), basicDetail("10", "9"))
	if len(rep.orderUpdates) != 0 || len(rep.procUpdates) != 0 {
		t.Errorf("converged detail should need no repair: %v / %v", rep.orderUpdates, rep.procUpdates)
	}
	if rep.basicVsOrder || rep.procVsBasic || rep.procVsOrder {
		t.Error("converged detail should report no mismatches")
	}
	if rep.orphan {
		t.Error("line with all counterparts is not an orphan")
	}
}

func TestResolveDetailEachFieldIndependently(t *testing.T) {
	// Deliver agrees everywhere; receive diverges only on the order side;
	// final diverges order vs procurement (basic has no final column).
	rep := resolveDetail(
		orderDetail("10", "99", "1"),
		procDetail("10", "5", "42"),
		basicDetail("10", "5"),
	)

	if !rep.basicVsOrder {
		t.Error("receive 99 vs 5 should count basic-vs-order")
	}
	if rep.procVsBasic {
		t.Error("procurement agrees with basic on every shared field")
	}
	if !rep.procVsOrder {
		t.Error("receive and final disagree between order and procurement")
	}

	if len(rep.orderUpdates) != 2 {
		t.Fatalf("order updates = %v, want receive_qty and final_qty", rep.orderUpdates)
	}
	if v, ok := rep.orderUpdates["receive_qty"]; !ok || !v.Equal(dec("5")) {
		t.Errorf("receive_qty repair = %v, want basic 5", rep.orderUpdates)
	}
	if v, ok := rep.orderUpdates["final_qty"]; !ok || !v.Equal(dec("42")) {
		t.Errorf("final_qty repair = %v, want procurement 42", rep.orderUpdates)
	}
	if _, ok := rep.orderUpdates["deliver_qty"]; ok {
		t.Error("deliver_qty agrees and must not be written")
	}
	if len(rep.procUpdates) != 0 {
		t.Errorf("procurement updates = %v, want none", rep.procUpdates)
	}
}

func TestResolveDetailDeliverRepairLeavesOtherColumns(t *testing.T) {
	rep := resolveDetail(
		orderDetail("10", "7", "7"),
		procDetail("12", "7", "7"),
		basicDetail("11", "7"),
	)
	if v, ok := rep.orderUpdates["deliver_qty"]; !ok || !v.Equal(dec("11")) {
		t.Errorf("order deliver repair = %v, want basic 11", rep.orderUpdates)
	}
	if v, ok := rep.procUpdates["actual_delivery_qty"]; !ok || !v.Equal(dec("11")) {
		t.Errorf("procurement deliver repair = %v, want basic 11", rep.procUpdates)
	}
	for _, col := range []string{"receive_qty", "final_qty"} {
		if _, ok := rep.orderUpdates[col]; ok {
			t.Errorf("deliver divergence must not touch %s", col)
		}
	}
	for _, col := range []string{"confirm_delivery_qty", "final_qty"} {
		if _, ok := rep.procUpdates[col]; ok {
			t.Errorf("deliver divergence must not touch %s", col)
		}
	}
}

func TestResolveDetailMissingRowIsOrphanNotRepair(t *testing.T) {
	// Row absence is an orphan finding; the precedence fallback is for
	// absent values only.
	rep := resolveDetail(orderDetail("10", "10", "10"), procDetail("12", "12", "12"), nil)
	if !rep.orphan {
		t.Error("missing basic row should be an orphan finding")
	}
	if len(rep.orderUpdates) != 0 || len(rep.procUpdates) != 0 {
		t.Errorf("orphan line must not be repaired: %v / %v", rep.orderUpdates, rep.procUpdates)
	}
	if !rep.procVsOrder {
		t.Error("value mismatch between the present pair should still be counted")
	}

	rep = resolveDetail(orderDetail("10", "10", "10"), nil, basicDetail("11", "10"))
	if !rep.orphan || len(rep.orderUpdates) != 0 {
		t.Error("missing procurement row should be an orphan finding with no repair")
	}
	if !rep.basicVsOrder {
		t.Error("order vs basic mismatch should still be counted")
	}

	rep = resolveDetail(orderDetail("10", "10", "10"), nil, nil)
	if !rep.orphan {
		t.Error("line with no counterparts anywhere is an orphan")
	}
	if rep.basicVsOrder || rep.procVsBasic || rep.procVsOrder {
		t.Error("nothing to compare, nothing to count")
	}
}

func TestResolveDetailIdempotent(t *testing.T) {
	// Applying the canonical values and re-resolving yields no more repairs.
	first := resolveDetail(orderDetail("3", "3", "3"), procDetail("4", "4", "4"), basicDetail("5", "5"))
	if len(first.orderUpdates) == 0 {
		t.Fatal("divergent line should plan a repair")
	}
	second := resolveDetail(
		orderDetail("5", "5", "4"),
		procDetail("5", "5", "4"),
		basicDetail("5", "5"),
	)
	if len(second.orderUpdates) != 0 || len(second.procUpdates) != 0 {
		t.Errorf("second pass should be a no-op: %v / %v", second.orderUpdates, second.procUpdates)
	}
}

func TestResolveDetailEpsilonNoise(t *testing.T) {
	rep := resolveDetail(
		orderDetail("10.0000000005", "10", "10"),
		procDetail("10", "10", "10"),
		basicDetail("10", "10"),
	)
	if len(rep.orderUpdates) != 0 {
		t.Errorf("sub-epsilon drift must not trigger a repair write: %v", rep.orderUpdates)
	}
}
