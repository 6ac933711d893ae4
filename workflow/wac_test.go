package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/models"
)

func TestNextWacEntryChain(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	receipts := []struct {
		qty, price string
	}{
		{"10", "2.00"},
		{"5", "3.00"},
		{"5", "1.00"},
	}
	wantTotalQty := []string{"10", "15", "20"}
	wantTotalValue := []string{"20", "35", "40"}
	wantWeighted := []string{"2", "2.3333333333333333", "2"}

	var prev *models.WacLedgerEntry
	for i, r := range receipts {
		entry := NextWacEntry(prev, 7, 42, "ORD-1", uint(100+i), dec(r.qty), dec(r.price), base.Add(time.Duration(i)*time.Hour))
		if !entry.TotalQty.Equal(dec(wantTotalQty[i])) {
			t.Errorf("entry %d total qty = %s, want %s", i, entry.TotalQty, wantTotalQty[i])
		}
		if !entry.TotalValue.Equal(dec(wantTotalValue[i])) {
			t.Errorf("entry %d total value = %s, want %s", i, entry.TotalValue, wantTotalValue[i])
		}
		if !entry.WeightedPrice.Round(10).Equal(dec(wantWeighted[i]).Round(10)) {
			t.Errorf("entry %d weighted price = %s, want ~%s", i, entry.WeightedPrice, wantWeighted[i])
		}
		prev = &entry
	}
}

func TestNextWacEntryFirstLink(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := NextWacEntry(nil, 3, 9, "ORD-9", 55, dec("4"), dec("2.5"), at)
	if !entry.TotalQty.Equal(dec("4")) || !entry.TotalValue.Equal(dec("10")) {
		t.Errorf("first link totals = %s/%s, want 4/10", entry.TotalQty, entry.TotalValue)
	}
	if !entry.WeightedPrice.Equal(dec("2.5")) {
		t.Errorf("first link weighted = %s, want 2.5", entry.WeightedPrice)
	}
	if !entry.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %s, want receipt receive time %s", entry.CreatedAt, at)
	}
}

func TestBuildWacChain(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	receipts := []models.ChainReceipt{
		{DetailId: 1, OrderId: "A", Qty: dec("10"), Price: dec("2.00"), ReceiveTime: base},
		{DetailId: 2, OrderId: "B", Qty: dec("5"), Price: dec("3.00"), ReceiveTime: base.Add(time.Hour)},
		{DetailId: 3, OrderId: "C", Qty: dec("5"), Price: dec("1.00"), ReceiveTime: base.Add(2 * time.Hour)},
	}
	entries := BuildWacChain(7, 42, receipts)
	if len(entries) != 3 {
		t.Fatalf("chain length = %d, want 3", len(entries))
	}
	last := entries[2]
	if !last.TotalQty.Equal(dec("20")) || !last.TotalValue.Equal(dec("40")) || !last.WeightedPrice.Equal(dec("2")) {
		t.Errorf("tail = qty %s value %s weighted %s, want 20/40/2", last.TotalQty, last.TotalValue, last.WeightedPrice)
	}
	for i, e := range entries {
		if e.ShopId != 7 || e.SupplierItemId != 42 {
			t.Errorf("entry %d carries wrong chain key %d/%d", i, e.ShopId, e.SupplierItemId)
		}
		if !e.CreatedAt.Equal(receipts[i].ReceiveTime) {
			t.Errorf("entry %d CreatedAt = %s, want %s", i, e.CreatedAt, receipts[i].ReceiveTime)
		}
	}
}

func TestBuildWacChainDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	receipts := []models.ChainReceipt{
		{DetailId: 1, OrderId: "A", Qty: dec("3.5"), Price: dec("1.25"), ReceiveTime: base},
		{DetailId: 2, OrderId: "B", Qty: dec("6.5"), Price: dec("4.75"), ReceiveTime: base.Add(time.Hour)},
	}
	first := BuildWacChain(1, 1, receipts)
	second := BuildWacChain(1, 1, receipts)
	for i := range first {
		if !first[i].TotalValue.Equal(second[i].TotalValue) || !first[i].WeightedPrice.Equal(second[i].WeightedPrice) {
			t.Errorf("rebuild diverged at entry %d", i)
		}
	}
}

func TestBuildWacChainEmpty(t *testing.T) {
	if entries := BuildWacChain(1, 1, nil); len(entries) != 0 {
		t.Errorf("empty receipts produced %d entries", len(entries))
	}
}

func TestNextWacEntryZeroTotalQty(t *testing.T) {
	// A zero-qty chain must not divide by zero.
	entry := NextWacEntry(nil, 1, 1, "A", 1, decimal.Zero, dec("5"), time.Now())
	if !entry.WeightedPrice.IsZero() {
		t.Errorf("weighted price = %s, want 0", entry.WeightedPrice)
	}
}
