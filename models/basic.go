package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/config"
)

// ScmOrderDetail is the ERP bridge's record of what actually left the
// warehouse. This store is read-only here: its values are canonical and
// never repaired.
type ScmOrderDetail struct {
	ID               uint            `gorm:"primary_key" json:"id"`
	ReferenceOrderId string          `gorm:"size:64;index" json:"reference_order_id"`
	ReferenceId      string          `gorm:"size:64;index" json:"reference_id"`
	DeliverGoodsQty  decimal.Decimal `gorm:"type:decimal(20,4)" json:"deliver_goods_qty"`
	DeliveryQty      decimal.Decimal `gorm:"type:decimal(20,4)" json:"delivery_qty"`
	DeliveryTime     *time.Time      `json:"delivery_time"`
}

func (ScmOrderDetail) TableName() string { return "scm_order_details" }

func GetBasicOrderDetails(ctx context.Context, referenceOrderId string) ([]ScmOrderDetail, error) {
	var details []ScmOrderDetail
	err := config.GetBasicDB().WithContext(ctx).
		Where("reference_order_id = ?", referenceOrderId).
		Find(&details).Error
	return details, err
}

func GetBasicOrderDetailsByOrderIds(ctx context.Context, referenceOrderIds []string) ([]ScmOrderDetail, error) {
	if len(referenceOrderIds) == 0 {
		return nil, nil
	}
	var details []ScmOrderDetail
	err := config.GetBasicDB().WithContext(ctx).
		Where("reference_order_id IN ?", referenceOrderIds).
		Find(&details).Error
	return details, err
}

func CountBasicOrderDetails(ctx context.Context, referenceOrderId string) (int64, error) {
	var n int64
	err := config.GetBasicDB().WithContext(ctx).
		Model(&ScmOrderDetail{}).
		Where("reference_order_id = ?", referenceOrderId).
		Count(&n).Error
	return n, err
}
