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

// ProcurementOrder is the order-management system's copy of an order.
// ClientOrderId joins it to the procurement store's supplier_orders.id.
type ProcurementOrder struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	ClientOrderId       string          `gorm:"size:64;uniqueIndex;not null" json:"client_order_id"`
	ShopId              uint            `gorm:"index;not null" json:"shop_id"`
	Status              OrderStatus     `gorm:"not null;index" json:"status"`
	OrderAmount         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"order_amount"`
	ActualAmount        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"actual_amount"`
	SentTime            *time.Time      `gorm:"default:null" json:"sent_time"`
	DeliveryTime        *time.Time      `gorm:"default:null" json:"delivery_time"`
	CustomerReceiveTime *time.Time      `gorm:"default:null" json:"customer_receive_time"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProcurementOrder) TableName() string { return "procurement_orders" }

type ProcurementOrderDetail struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	OrderId     uint            `gorm:"index;not null" json:"order_id"`
	ReferenceId string          `gorm:"size:64;index;not null" json:"reference_id"`
	DeliverQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deliver_qty"`
	ReceiveQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"receive_qty"`
	FinalQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"final_qty"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	IsFinal     bool            `gorm:"not null;default:false" json:"is_final"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProcurementOrderDetail) TableName() string { return "procurement_order_details" }

// GetOrderPage returns the next keyset page of orders, pk ascending,
// optionally bounded to a created_at window. The scanner never holds a
// cursor or transaction across pages.
func GetOrderPage(ctx context.Context, afterID uint, limit int, from, to *time.Time) ([]ProcurementOrder, error) {
	q := config.GetOrderDB().WithContext(ctx).
		Where("id > ?", afterID)
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}
	var orders []ProcurementOrder
	err := q.Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func GetOrderByClientOrderId(ctx context.Context, clientOrderId string) (*ProcurementOrder, error) {
	var order ProcurementOrder
	err := config.GetOrderDB().WithContext(ctx).
		Where("client_order_id = ?", clientOrderId).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func GetOrdersByClientOrderIds(ctx context.Context, clientOrderIds []string) ([]ProcurementOrder, error) {
	if len(clientOrderIds) == 0 {
		return nil, nil
	}
	var orders []ProcurementOrder
	err := config.GetOrderDB().WithContext(ctx).
		Where("client_order_id IN ?", clientOrderIds).
		Find(&orders).Error
	return orders, err
}

func GetOrderDetailsByOrderIds(ctx context.Context, orderIds []uint) ([]ProcurementOrderDetail, error) {
	if len(orderIds) == 0 {
		return nil, nil
	}
	var details []ProcurementOrderDetail
	err := config.GetOrderDB().WithContext(ctx).
		Where("order_id IN ?", orderIds).
		Find(&details).Error
	return details, err
}

// RepairOrderDetailColumns writes canonical values onto only the divergent
// columns of an unlocked detail row. Zero rows affected means a concurrent
// writer set is_final first; the caller skips the row instead of overwriting
// a locked value.
func RepairOrderDetailColumns(ctx context.Context, detailId uint, columns map[string]decimal.Decimal) (int64, error) {
	if len(columns) == 0 {
		return 0, nil
	}
	updates := make(map[string]interface{}, len(columns))
	for col, v := range columns {
		updates[col] = v
	}
	res := config.GetOrderDB().WithContext(ctx).
		Model(&ProcurementOrderDetail{}).
		Where("id = ? AND is_final = ?", detailId, false).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// SettleOrderDetailQty writes the settled quantity into all three quantity
// columns and locks the row. Only the completion pipeline and the stalled
// sweep settle lines; zero rows affected means the line was already locked.
func SettleOrderDetailQty(ctx context.Context, detailId uint, qty decimal.Decimal) (int64, error) {
	res := config.GetOrderDB().WithContext(ctx).
		Model(&ProcurementOrderDetail{}).
		Where("id = ? AND is_final = ?", detailId, false).
		Updates(map[string]interface{}{
			"deliver_qty": qty,
			"receive_qty": qty,
			"final_qty":   qty,
			"is_final":    true,
		})
	return res.RowsAffected, res.Error
}

func SetOrderStatusAndAmount(ctx context.Context, orderId uint, status OrderStatus, actualAmount decimal.Decimal) error {
	return config.GetOrderDB().WithContext(ctx).
		Model(&ProcurementOrder{}).
		Where("id = ?", orderId).
		Updates(map[string]interface{}{
			"status":        status,
			"actual_amount": actualAmount,
		}).Error
}
