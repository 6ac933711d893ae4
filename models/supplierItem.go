package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/config"
)

// SupplierItem exists in the procurement store (source of truth) and as a
// mirror in the inventory store. The mirror sync only ever inserts.
type SupplierItem struct {
	ID         uint            `gorm:"primary_key" json:"id"`
	SupplierId uint            `gorm:"index;not null" json:"supplier_id"`
	ShopId     uint            `gorm:"index;not null" json:"shop_id"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	Unit       string          `gorm:"size:32" json:"unit"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SupplierItem) TableName() string { return "supplier_items" }

func GetProcurementSupplierItemsPage(ctx context.Context, afterID uint, limit int) ([]SupplierItem, error) {
	var items []SupplierItem
	err := config.GetProcurementDB().WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// GetInventorySupplierItemIds returns which of the given ids already exist
// in the inventory mirror.
func GetInventorySupplierItemIds(ctx context.Context, ids []uint) (map[uint]bool, error) {
	if len(ids) == 0 {
		return map[uint]bool{}, nil
	}
	var found []uint
	err := config.GetInventoryDB().WithContext(ctx).
		Model(&SupplierItem{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, err
	}
	existing := make(map[uint]bool, len(found))
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

func CreateInventorySupplierItems(ctx context.Context, items []SupplierItem) error {
	if len(items) == 0 {
		return nil
	}
	return config.GetInventoryDB().WithContext(ctx).Create(&items).Error
}
