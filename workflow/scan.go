package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
	"github.com/aidenhsy/cron-schedules/utils"
)

const defaultScanBatchSize = 200

// LastScanReportKey caches the most recent completed scan so operators can
// fetch it without triggering a new pass.
const LastScanReportKey = "scan:orders:last_report"

// ScanReport summarizes one full pass over the order store.
type ScanReport struct {
	OrdersScanned        int      `json:"orders_scanned"`
	MissingInProcurement []string `json:"missing_in_procurement"`
	MissingInOrder       []string `json:"missing_in_order"`
	MismatchBasicVsOrder int      `json:"mismatch_basic_vs_order"`
	MismatchProcVsBasic  int      `json:"mismatch_procurement_vs_basic"`
	MismatchProcVsOrder  int      `json:"mismatch_procurement_vs_order"`
	OrphanReferences     int      `json:"orphan_references"`
	RepairedDetails      int      `json:"repaired_details"`
	LockSkips            int      `json:"lock_skips"`
	AmountRepairs        int      `json:"amount_repairs"`
	StalledFinalized     int      `json:"stalled_finalized"`
	FailedOrders         int      `json:"failed_orders"`
	AffectedOrderIds     []string `json:"affected_order_ids"`
}

type detailKey struct {
	orderId string
	refId   string
}

// detailRepair is the pure resolution of one order detail line across
// stores. Updates map column name to canonical value; only divergent columns
// are listed, so a repair never touches a column the stores agree on.
type detailRepair struct {
	orderUpdates map[string]decimal.Decimal
	procUpdates  map[string]decimal.Decimal
	orphan       bool
	basicVsOrder bool
	procVsBasic  bool
	procVsOrder  bool
}

// qtyField pairs up the analogous quantity columns of the three stores.
// proc/basic are nil when the store has no row for the line, and basic
// carries no final quantity at all.
type qtyField struct {
	orderCol string
	procCol  string
	order    decimal.Decimal
	proc     *decimal.Decimal
	basic    *decimal.Decimal
}

func detailFields(od *models.ProcurementOrderDetail, pd *models.SupplierOrderDetail, bd *models.ScmOrderDetail) []qtyField {
	fields := []qtyField{
		{orderCol: "deliver_qty", procCol: "actual_delivery_qty", order: od.DeliverQty},
		{orderCol: "receive_qty", procCol: "confirm_delivery_qty", order: od.ReceiveQty},
		{orderCol: "final_qty", procCol: "final_qty", order: od.FinalQty},
	}
	if pd != nil {
		fields[0].proc = &pd.ActualDeliveryQty
		fields[1].proc = &pd.ConfirmDeliveryQty
		fields[2].proc = &pd.FinalQty
	}
	if bd != nil {
		fields[0].basic = &bd.DeliverGoodsQty
		fields[1].basic = &bd.DeliveryQty
	}
	return fields
}

// resolveDetail compares every quantity field of one logical line across the
// stores, independently per field. A line whose counterpart row is missing
// in the procurement or basic store is an orphan finding, never a repair:
// the precedence fallback applies to absent values, not absent rows.
func resolveDetail(od *models.ProcurementOrderDetail, pd *models.SupplierOrderDetail, bd *models.ScmOrderDetail) detailRepair {
	var rep detailRepair
	fields := detailFields(od, pd, bd)

	// Pairwise mismatch counters over whichever rows exist, independent of
	// which source wins.
	for _, f := range fields {
		if f.basic != nil && !Equivalent(f.order, *f.basic) {
			rep.basicVsOrder = true
		}
		if f.proc != nil && f.basic != nil && !Equivalent(*f.proc, *f.basic) {
			rep.procVsBasic = true
		}
		if f.proc != nil && !Equivalent(f.order, *f.proc) {
			rep.procVsOrder = true
		}
	}

	if pd == nil || bd == nil {
		rep.orphan = true
		return rep
	}

	for _, f := range fields {
		obs := []Observation{
			{Source: SourceOrder, Value: f.order, Present: true},
			{Source: SourceProcurement, Value: *f.proc, Present: true},
		}
		if f.basic != nil {
			obs = append(obs, Observation{Source: SourceBasic, Value: *f.basic, Present: true})
		}
		res := ResolveCanonical(FieldQty, obs)
		for _, src := range res.Divergent {
			switch src {
			case SourceOrder:
				if rep.orderUpdates == nil {
					rep.orderUpdates = map[string]decimal.Decimal{}
				}
				rep.orderUpdates[f.orderCol] = res.Canonical
			case SourceProcurement:
				if rep.procUpdates == nil {
					rep.procUpdates = map[string]decimal.Decimal{}
				}
				rep.procUpdates[f.procCol] = res.Canonical
			}
		}
	}
	return rep
}

// ScanOptions narrows a scan to orders created inside a window. Nil bounds
// mean unbounded.
type ScanOptions struct {
	From *time.Time
	To   *time.Time
}

// ScanOrders walks the order store in keyset pages, repairing divergent
// detail rows toward the canonical value and reporting what it found. Safe
// to re-run at any time; a converged store yields an all-zero report.
// Per-order failures are logged and skipped, never fatal.
func ScanOrders(ctx context.Context, batchSize int, opts *ScanOptions) (*ScanReport, error) {
	logger := config.GetLogger()
	if batchSize <= 0 {
		batchSize = defaultScanBatchSize
	}
	if opts == nil {
		opts = &ScanOptions{}
	}

	report := &ScanReport{}
	started := time.Now()
	startFields := logrus.Fields{"batch_size": batchSize}
	if by, ok := utils.GetTriggeredByFromContext(ctx); ok {
		startFields["triggered_by"] = by
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		startFields["correlation_id"] = cid
	}
	logger.WithFields(startFields).Info("scan.orders.start")

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		orders, err := models.GetOrderPage(ctx, afterID, batchSize, opts.From, opts.To)
		if err != nil {
			return report, fmt.Errorf("load order page after id %d: %w", afterID, err)
		}
		if len(orders) == 0 {
			break
		}
		afterID = orders[len(orders)-1].ID

		if err := scanPage(ctx, orders, report); err != nil {
			return report, err
		}
	}

	// Reverse direction: supplier orders nobody placed in the order store.
	missing, err := findSupplierOrdersMissingInOrderStore(ctx, batchSize)
	if err != nil {
		return report, err
	}
	report.MissingInOrder = missing

	stalled, err := SweepStalledOrders(ctx, StalledCutoff(time.Now()), batchSize)
	if err != nil {
		config.LogError(logger, "workflow", "ScanOrders", "stalled sweep failed", nil, err)
		report.FailedOrders++
	} else {
		report.StalledFinalized = stalled
	}

	logger.WithFields(logrus.Fields{
		"orders_scanned":    report.OrdersScanned,
		"repaired_details":  report.RepairedDetails,
		"lock_skips":        report.LockSkips,
		"orphan_references": report.OrphanReferences,
		"missing_in_proc":   len(report.MissingInProcurement),
		"missing_in_order":  len(report.MissingInOrder),
		"stalled_finalized": report.StalledFinalized,
		"failed_orders":     report.FailedOrders,
		"duration_ms":       time.Since(started).Milliseconds(),
	}).Info("scan.orders.done")

	if err := config.SetRedisObject(LastScanReportKey, report, 24*time.Hour); err != nil {
		config.LogError(logger, "workflow", "ScanOrders", "cache scan report failed", nil, err)
	}
	return report, nil
}

func scanPage(ctx context.Context, orders []models.ProcurementOrder, report *ScanReport) error {
	clientIds := make([]string, 0, len(orders))
	orderIds := make([]uint, 0, len(orders))
	for _, o := range orders {
		clientIds = append(clientIds, o.ClientOrderId)
		orderIds = append(orderIds, o.ID)
	}

	supplierOrders, err := models.GetSupplierOrdersByIds(ctx, clientIds)
	if err != nil {
		return fmt.Errorf("bulk load supplier orders: %w", err)
	}
	supplierByID := make(map[string]models.SupplierOrder, len(supplierOrders))
	for _, so := range supplierOrders {
		supplierByID[so.ID] = so
	}

	orderDetails, err := models.GetOrderDetailsByOrderIds(ctx, orderIds)
	if err != nil {
		return fmt.Errorf("bulk load order details: %w", err)
	}
	supplierDetails, err := models.GetSupplierOrderDetailsByOrderIds(ctx, clientIds)
	if err != nil {
		return fmt.Errorf("bulk load supplier details: %w", err)
	}
	basicDetails, err := models.GetBasicOrderDetailsByOrderIds(ctx, clientIds)
	if err != nil {
		return fmt.Errorf("bulk load basic details: %w", err)
	}

	clientByOrderId := make(map[uint]string, len(orders))
	for _, o := range orders {
		clientByOrderId[o.ID] = o.ClientOrderId
	}
	orderDetailByKey := make(map[detailKey]*models.ProcurementOrderDetail, len(orderDetails))
	detailsByClient := make(map[string][]*models.ProcurementOrderDetail, len(orders))
	for i := range orderDetails {
		d := &orderDetails[i]
		cid := clientByOrderId[d.OrderId]
		orderDetailByKey[detailKey{cid, d.ReferenceId}] = d
		detailsByClient[cid] = append(detailsByClient[cid], d)
	}
	procDetailByKey := make(map[detailKey]*models.SupplierOrderDetail, len(supplierDetails))
	for i := range supplierDetails {
		d := &supplierDetails[i]
		procDetailByKey[detailKey{d.OrderId, d.SupplierReferenceId}] = d
	}
	basicDetailByKey := make(map[detailKey]*models.ScmOrderDetail, len(basicDetails))
	for i := range basicDetails {
		d := &basicDetails[i]
		basicDetailByKey[detailKey{d.ReferenceOrderId, d.ReferenceId}] = d
	}

	for i := range orders {
		order := &orders[i]
		report.OrdersScanned++

		if _, ok := supplierByID[order.ClientOrderId]; !ok {
			report.MissingInProcurement = append(report.MissingInProcurement, order.ClientOrderId)
			continue
		}

		if err := scanOrder(ctx, order, detailsByClient[order.ClientOrderId], procDetailByKey, basicDetailByKey, report); err != nil {
			config.LogError(config.GetLogger(), "workflow", "ScanOrders", "order scan failed",
				map[string]interface{}{"client_order_id": order.ClientOrderId}, err)
			report.FailedOrders++
		}
	}

	// Orphans: procurement or basic rows whose reference is unknown to the
	// order store for an order we do hold.
	held := make(map[string]bool, len(orders))
	for _, o := range orders {
		held[o.ClientOrderId] = true
	}
	for key := range procDetailByKey {
		if held[key.orderId] {
			if _, ok := orderDetailByKey[key]; !ok {
				report.OrphanReferences++
			}
		}
	}
	for key := range basicDetailByKey {
		if held[key.orderId] {
			if _, ok := orderDetailByKey[key]; !ok {
				report.OrphanReferences++
			}
		}
	}
	return nil
}

func scanOrder(
	ctx context.Context,
	order *models.ProcurementOrder,
	details []*models.ProcurementOrderDetail,
	procDetailByKey map[detailKey]*models.SupplierOrderDetail,
	basicDetailByKey map[detailKey]*models.ScmOrderDetail,
	report *ScanReport,
) error {
	touched := false

	for _, od := range details {
		key := detailKey{order.ClientOrderId, od.ReferenceId}
		pd := procDetailByKey[key]
		bd := basicDetailByKey[key]

		rep := resolveDetail(od, pd, bd)
		if rep.basicVsOrder {
			report.MismatchBasicVsOrder++
		}
		if rep.procVsBasic {
			report.MismatchProcVsBasic++
		}
		if rep.procVsOrder {
			report.MismatchProcVsOrder++
		}
		if rep.orphan {
			report.OrphanReferences++
			continue
		}
		if len(rep.orderUpdates) == 0 && len(rep.procUpdates) == 0 {
			continue
		}

		if len(rep.orderUpdates) > 0 {
			rows, err := models.RepairOrderDetailColumns(ctx, od.ID, rep.orderUpdates)
			if err != nil {
				return fmt.Errorf("repair order detail %d: %w", od.ID, err)
			}
			if rows == 0 {
				report.LockSkips++
			} else {
				report.RepairedDetails++
				touched = true
			}
		}
		if len(rep.procUpdates) > 0 {
			rows, err := models.RepairSupplierOrderDetailColumns(ctx, pd.ID, rep.procUpdates)
			if err != nil {
				return fmt.Errorf("repair supplier detail %d: %w", pd.ID, err)
			}
			if rows == 0 {
				report.LockSkips++
			} else {
				report.RepairedDetails++
				touched = true
			}
		}
	}

	if touched {
		report.AffectedOrderIds = append(report.AffectedOrderIds, order.ClientOrderId)
		if err := repairOrderAmount(ctx, order, report); err != nil {
			return err
		}
	}
	return nil
}

// repairOrderAmount recomputes actual_amount from the freshly written final
// quantities and prices, both stores, rounded half-up to 2dp.
func repairOrderAmount(ctx context.Context, order *models.ProcurementOrder, report *ScanReport) error {
	details, err := models.GetOrderDetailsByOrderIds(ctx, []uint{order.ID})
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.FinalQty.Mul(d.Price))
	}
	total = RoundAmount(total)

	if !Equivalent(total, order.ActualAmount) {
		if err := models.SetOrderStatusAndAmount(ctx, order.ID, order.Status, total); err != nil {
			return fmt.Errorf("repair order amount %s: %w", order.ClientOrderId, err)
		}
		report.AmountRepairs++
	}

	procDetails, err := models.GetSupplierOrderDetails(ctx, order.ClientOrderId)
	if err != nil {
		return err
	}
	procTotal := decimal.Zero
	for _, d := range procDetails {
		procTotal = procTotal.Add(d.FinalQty.Mul(d.Price))
	}
	procTotal = RoundAmount(procTotal)

	so, err := models.GetSupplierOrder(ctx, order.ClientOrderId)
	if err != nil {
		return err
	}
	if !Equivalent(procTotal, so.ActualAmount) {
		if err := models.SetSupplierOrderStatusAndAmount(ctx, so.ID, so.Status, procTotal); err != nil {
			return fmt.Errorf("repair supplier amount %s: %w", so.ID, err)
		}
		report.AmountRepairs++
	}
	return nil
}

func findSupplierOrdersMissingInOrderStore(ctx context.Context, batchSize int) ([]string, error) {
	var missing []string
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return missing, err
		}
		page, err := models.GetSupplierOrdersPage(ctx, afterID, batchSize)
		if err != nil {
			return missing, fmt.Errorf("load supplier order page after %q: %w", afterID, err)
		}
		if len(page) == 0 {
			return missing, nil
		}
		afterID = page[len(page)-1].ID

		ids := make([]string, 0, len(page))
		for _, so := range page {
			ids = append(ids, so.ID)
		}
		counterparts, err := models.GetOrdersByClientOrderIds(ctx, ids)
		if err != nil {
			return missing, err
		}
		found := make(map[string]bool, len(counterparts))
		for _, o := range counterparts {
			found[o.ClientOrderId] = true
		}
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
	}
}
