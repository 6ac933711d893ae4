package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/utils"
)

// SupplierOrder is the procurement system's copy of an order. Its primary
// key is the shared client order id.
type SupplierOrder struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	ShopId       uint            `gorm:"index;not null" json:"shop_id"`
	SupplierId   uint            `gorm:"index;not null" json:"supplier_id"`
	Status       OrderStatus     `gorm:"not null;index" json:"status"`
	OrderAmount  decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"order_amount"`
	ActualAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"actual_amount"`
	DeliveryTime *time.Time      `gorm:"default:null;index" json:"delivery_time"`
	ReceiveTime  *time.Time      `gorm:"default:null" json:"receive_time"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SupplierOrder) TableName() string { return "supplier_orders" }

type SupplierOrderDetail struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	OrderId             string          `gorm:"size:64;index;not null" json:"order_id"`
	SupplierItemId      uint            `gorm:"index;not null" json:"supplier_item_id"`
	SupplierReferenceId string          `gorm:"size:64;index;not null" json:"supplier_reference_id"`
	ActualDeliveryQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"actual_delivery_qty"`
	ConfirmDeliveryQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"confirm_delivery_qty"`
	FinalQty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"final_qty"`
	Price               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	IsFinal             bool            `gorm:"not null;default:false" json:"is_final"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SupplierOrderDetail) TableName() string { return "supplier_order_details" }

func GetSupplierOrder(ctx context.Context, id string) (*SupplierOrder, error) {
	var order SupplierOrder
	err := config.GetProcurementDB().WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func GetSupplierOrdersByIds(ctx context.Context, ids []string) ([]SupplierOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []SupplierOrder
	err := config.GetProcurementDB().WithContext(ctx).
		Where("id IN ?", ids).
		Find(&orders).Error
	return orders, err
}

// GetSupplierOrdersPage keyset-pages supplier orders by their string pk.
func GetSupplierOrdersPage(ctx context.Context, afterID string, limit int) ([]SupplierOrder, error) {
	var orders []SupplierOrder
	err := config.GetProcurementDB().WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func GetSupplierOrderDetails(ctx context.Context, orderId string) ([]SupplierOrderDetail, error) {
	var details []SupplierOrderDetail
	err := config.GetProcurementDB().WithContext(ctx).
		Where("order_id = ?", orderId).
		Find(&details).Error
	return details, err
}

func GetSupplierOrderDetailsByOrderIds(ctx context.Context, orderIds []string) ([]SupplierOrderDetail, error) {
	if len(orderIds) == 0 {
		return nil, nil
	}
	var details []SupplierOrderDetail
	err := config.GetProcurementDB().WithContext(ctx).
		Where("order_id IN ?", orderIds).
		Find(&details).Error
	return details, err
}

// GetStalledSupplierOrders returns pre-delivery orders whose delivery_time
// passed before the cutoff. The supplier never confirmed them, so the sweep
// settles them from basic-store quantities.
func GetStalledSupplierOrders(ctx context.Context, cutoff time.Time, limit int) ([]SupplierOrder, error) {
	var orders []SupplierOrder
	err := config.GetProcurementDB().WithContext(ctx).
		Where("status IN ? AND delivery_time IS NOT NULL AND delivery_time < ?",
			[]OrderStatus{OrderStatusCreated, OrderStatusSent}, cutoff).
		Order("delivery_time ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func CountSupplierOrderDetails(ctx context.Context, orderId string) (int64, error) {
	var n int64
	err := config.GetProcurementDB().WithContext(ctx).
		Model(&SupplierOrderDetail{}).
		Where("order_id = ?", orderId).
		Count(&n).Error
	return n, err
}

// RepairSupplierOrderDetailColumns mirrors RepairOrderDetailColumns on the
// procurement side: only divergent columns, guarded by is_final.
func RepairSupplierOrderDetailColumns(ctx context.Context, detailId uint, columns map[string]decimal.Decimal) (int64, error) {
	if len(columns) == 0 {
		return 0, nil
	}
	updates := make(map[string]interface{}, len(columns))
	for col, v := range columns {
		updates[col] = v
	}
	res := config.GetProcurementDB().WithContext(ctx).
		Model(&SupplierOrderDetail{}).
		Where("id = ? AND is_final = ?", detailId, false).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// SettleSupplierOrderDetailQty mirrors SettleOrderDetailQty: settled quantity
// into all three columns, row locked, zero rows affected = already locked.
func SettleSupplierOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error) {
	res := config.GetProcurementDB().WithContext(ctx).
		Model(&SupplierOrderDetail{}).
		Where("id = ? AND is_final = ?", detailId, false).
		Updates(map[string]interface{}{
			"actual_delivery_qty":  qty,
			"confirm_delivery_qty": qty,
			"final_qty":            qty,
			"is_final":             true,
		})
	return res.RowsAffected, res.Error
}

func SetSupplierOrderStatusAndAmount(ctx context.Context, orderId string, status OrderStatus, actualAmount decimal.Decimal) error {
	return config.GetProcurementDB().WithContext(ctx).
		Model(&SupplierOrder{}).
		Where("id = ?", orderId).
		Updates(map[string]interface{}{
			"status":        status,
			"actual_amount": actualAmount,
		}).Error
}

// ChainReceipt is one settled receipt feeding a valuation chain.
type ChainReceipt struct {
	DetailId    uint            `json:"detail_id"`
	OrderId     string          `json:"order_id"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	ReceiveTime time.Time       `json:"receive_time"`
}

// GetChainReceipts returns every settled receipt for one (shop, item),
// receive time ascending, ready for a full chain rebuild.
func GetChainReceipts(ctx context.Context, shopId, supplierItemId uint) ([]ChainReceipt, error) {
	var receipts []ChainReceipt
	err := config.GetProcurementDB().WithContext(ctx).
		Model(&SupplierOrderDetail{}).
		Select("supplier_order_details.id AS detail_id",
			"supplier_order_details.order_id AS order_id",
			"supplier_order_details.final_qty AS qty",
			"supplier_order_details.price AS price",
			"supplier_orders.receive_time AS receive_time").
		Joins("JOIN supplier_orders ON supplier_orders.id = supplier_order_details.order_id").
		Where("supplier_orders.shop_id = ?", shopId).
		Where("supplier_order_details.supplier_item_id = ?", supplierItemId).
		Where("supplier_orders.receive_time IS NOT NULL").
		Where("supplier_order_details.final_qty > 0").
		Where("supplier_order_details.price > 0").
		Order("supplier_orders.receive_time ASC, supplier_order_details.id ASC").
		Scan(&receipts).Error
	return receipts, err
}

// GetFinalizedReceiptsPage pages supplier order lines that belong to
// received orders and carry a positive settled quantity. These are the
// candidate rows for the valuation ledger.
func GetFinalizedReceiptsPage(ctx context.Context, afterDetailId uint, limit int) ([]SupplierOrderDetail, []SupplierOrder, error) {
	var details []SupplierOrderDetail
	err := config.GetProcurementDB().WithContext(ctx).
		Joins("JOIN supplier_orders ON supplier_orders.id = supplier_order_details.order_id").
		Where("supplier_order_details.id > ?", afterDetailId).
		Where("supplier_orders.receive_time IS NOT NULL").
		Where("supplier_order_details.final_qty > 0").
		Where("supplier_order_details.price > 0").
		Order("supplier_order_details.id ASC").
		Limit(limit).
		Find(&details).Error
	if err != nil {
		return nil, nil, err
	}

	orderIds := make([]string, 0, len(details))
	for _, d := range details {
		orderIds = append(orderIds, d.OrderId)
	}
	orders, err := GetSupplierOrdersByIds(ctx, utils.UniqueSlice(orderIds))
	if err != nil {
		return nil, nil, err
	}
	return details, orders, nil
}
