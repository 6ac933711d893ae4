package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
)

const wacBackfillPageSize = 500

// NextWacEntry appends one receipt to a weighted-average-cost chain.
// prev == nil starts a new chain. CreatedAt carries the receipt's receive
// time so a later full rebuild reproduces the same ledger.
func NextWacEntry(prev *models.WacLedgerEntry, shopId, supplierItemId uint, sourceOrderId string, sourceDetailId uint, qty, price decimal.Decimal, receivedAt time.Time) models.WacLedgerEntry {
	totalQty := qty
	totalValue := qty.Mul(price)
	if prev != nil {
		totalQty = prev.TotalQty.Add(qty)
		totalValue = prev.TotalValue.Add(qty.Mul(price))
	}

	weighted := decimal.Zero
	if !totalQty.IsZero() {
		weighted = totalValue.Div(totalQty)
	}

	return models.WacLedgerEntry{
		ShopId:         shopId,
		SupplierItemId: supplierItemId,
		SourceOrderId:  sourceOrderId,
		SourceDetailId: sourceDetailId,
		Qty:            qty,
		Price:          price,
		TotalQty:       totalQty,
		TotalValue:     totalValue,
		WeightedPrice:  weighted,
		CreatedAt:      receivedAt,
	}
}

// BuildWacChain folds receipts (already ordered by receive time) into a
// complete chain.
func BuildWacChain(shopId, supplierItemId uint, receipts []models.ChainReceipt) []models.WacLedgerEntry {
	entries := make([]models.WacLedgerEntry, 0, len(receipts))
	var prev *models.WacLedgerEntry
	for _, r := range receipts {
		entry := NextWacEntry(prev, shopId, supplierItemId, r.OrderId, r.DetailId, r.Qty, r.Price, r.ReceiveTime)
		entries = append(entries, entry)
		prev = &entries[len(entries)-1]
	}
	return entries
}

type WacBackfillReport struct {
	ReceiptsSeen   int `json:"receipts_seen"`
	EntriesCreated int `json:"entries_created"`
	Duplicates     int `json:"duplicates"`
	Failures       int `json:"failures"`
}

// ProcessMissingWacEntries walks settled receipts and appends a ledger entry
// for every one the wac store does not know yet. New entries go after the
// current chain tail even when the receipt is older than the tail; the full
// recompute is the correction path for late arrivals.
func ProcessMissingWacEntries(ctx context.Context) (*WacBackfillReport, error) {
	logger := config.GetLogger()
	report := &WacBackfillReport{}
	started := time.Now()

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		details, orders, err := models.GetFinalizedReceiptsPage(ctx, afterID, wacBackfillPageSize)
		if err != nil {
			return report, fmt.Errorf("load receipts page after id %d: %w", afterID, err)
		}
		if len(details) == 0 {
			break
		}
		afterID = details[len(details)-1].ID

		orderByID := make(map[string]*models.SupplierOrder, len(orders))
		for i := range orders {
			orderByID[orders[i].ID] = &orders[i]
		}

		detailIds := make([]uint, 0, len(details))
		for _, d := range details {
			detailIds = append(detailIds, d.ID)
		}
		existing, err := models.GetExistingWacDetailIds(ctx, detailIds)
		if err != nil {
			return report, err
		}

		for i := range details {
			d := &details[i]
			report.ReceiptsSeen++
			if existing[d.ID] {
				continue
			}
			order := orderByID[d.OrderId]
			if order == nil || order.ReceiveTime == nil {
				continue
			}

			prev, err := models.GetLatestWacEntry(ctx, order.ShopId, d.SupplierItemId)
			if err != nil {
				config.LogError(logger, "workflow", "ProcessMissingWacEntries", "load chain tail failed",
					map[string]interface{}{"shop_id": order.ShopId, "supplier_item_id": d.SupplierItemId}, err)
				report.Failures++
				continue
			}

			entry := NextWacEntry(prev, order.ShopId, d.SupplierItemId, d.OrderId, d.ID, d.FinalQty, d.Price, *order.ReceiveTime)
			created, err := models.InsertWacEntry(ctx, &entry)
			if err != nil {
				config.LogError(logger, "workflow", "ProcessMissingWacEntries", "insert entry failed",
					map[string]interface{}{"source_detail_id": d.ID}, err)
				report.Failures++
				continue
			}
			if created {
				report.EntriesCreated++
			} else {
				report.Duplicates++
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"receipts_seen":   report.ReceiptsSeen,
		"entries_created": report.EntriesCreated,
		"duplicates":      report.Duplicates,
		"failures":        report.Failures,
		"duration_ms":     time.Since(started).Milliseconds(),
	}).Info("wac.backfill.done")
	return report, nil
}

// RecalculateWac rebuilds one (shop, item) chain from scratch: delete the
// chain, refold every settled receipt by receive time, all inside one wac
// store transaction.
func RecalculateWac(ctx context.Context, shopId, supplierItemId uint) error {
	receipts, err := models.GetChainReceipts(ctx, shopId, supplierItemId)
	if err != nil {
		return fmt.Errorf("load receipts for shop %d item %d: %w", shopId, supplierItemId, err)
	}
	entries := BuildWacChain(shopId, supplierItemId, receipts)
	if err := models.RebuildWacChain(ctx, shopId, supplierItemId, entries); err != nil {
		return fmt.Errorf("rebuild chain shop %d item %d: %w", shopId, supplierItemId, err)
	}

	config.GetLogger().WithFields(logrus.Fields{
		"shop_id":          shopId,
		"supplier_item_id": supplierItemId,
		"entries":          len(entries),
	}).Info("wac.recalculate.done")
	return nil
}

// RecalculateAllWac rebuilds every known chain, at most two concurrently.
func RecalculateAllWac(ctx context.Context) (int, error) {
	keys, err := models.GetWacChainKeys(ctx)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, 2)
	errCh := make(chan error, len(keys))
	for _, key := range keys {
		key := key
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			errCh <- RecalculateWac(ctx, key.ShopId, key.SupplierItemId)
		}()
	}
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}

	rebuilt := 0
	var firstErr error
	for i := 0; i < len(keys); i++ {
		if err := <-errCh; err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			rebuilt++
		}
	}
	return rebuilt, firstErr
}
