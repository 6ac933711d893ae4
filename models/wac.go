package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aidenhsy/cron-schedules/config"
)

// WacLedgerEntry is one link in the per-(shop, item) weighted-average-cost
// chain. CreatedAt carries the receipt's receive time, not the insert time,
// so a full recompute reproduces the same chain.
type WacLedgerEntry struct {
	ID             uint            `gorm:"primary_key" json:"id"`
	ShopId         uint            `gorm:"not null;index:uniq_wac_source,unique;index:idx_wac_chain" json:"shop_id"`
	SupplierItemId uint            `gorm:"not null;index:uniq_wac_source,unique;index:idx_wac_chain" json:"supplier_item_id"`
	SourceOrderId  string          `gorm:"size:64;not null" json:"source_order_id"`
	SourceDetailId uint            `gorm:"not null;index:uniq_wac_source,unique" json:"source_detail_id"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Price          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	TotalQty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_qty"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_value"`
	WeightedPrice  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"weighted_price"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_wac_chain" json:"created_at"`
}

func (WacLedgerEntry) TableName() string { return "wac_ledger_entries" }

// IsDuplicateKeyError reports a MySQL 1062 unique-constraint violation.
func IsDuplicateKeyError(err error) bool {
	var myErr *mysqlDriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GetLatestWacEntry returns the chain tail for (shop, item), or
// gorm.ErrRecordNotFound mapped to (nil, nil) when the chain is empty.
func GetLatestWacEntry(ctx context.Context, shopId, supplierItemId uint) (*WacLedgerEntry, error) {
	var entry WacLedgerEntry
	err := config.GetWacDB().WithContext(ctx).
		Where("shop_id = ? AND supplier_item_id = ?", shopId, supplierItemId).
		Order("created_at DESC, id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// InsertWacEntry appends one entry. A duplicate source key means another
// run already wrote it; callers treat that as success.
func InsertWacEntry(ctx context.Context, entry *WacLedgerEntry) (created bool, err error) {
	err = config.GetWacDB().WithContext(ctx).Create(entry).Error
	if err != nil {
		if IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetExistingWacDetailIds returns which of the given source details already
// have a ledger row, for bulk skip during backfill.
func GetExistingWacDetailIds(ctx context.Context, detailIds []uint) (map[uint]bool, error) {
	if len(detailIds) == 0 {
		return map[uint]bool{}, nil
	}
	var ids []uint
	err := config.GetWacDB().WithContext(ctx).
		Model(&WacLedgerEntry{}).
		Where("source_detail_id IN ?", detailIds).
		Pluck("source_detail_id", &ids).Error
	if err != nil {
		return nil, err
	}
	existing := make(map[uint]bool, len(ids))
	for _, id := range ids {
		existing[id] = true
	}
	return existing, nil
}

type WacChainKey struct {
	ShopId         uint `json:"shop_id"`
	SupplierItemId uint `json:"supplier_item_id"`
}

func GetWacChainKeys(ctx context.Context) ([]WacChainKey, error) {
	var keys []WacChainKey
	err := config.GetWacDB().WithContext(ctx).
		Model(&WacLedgerEntry{}).
		Distinct("shop_id", "supplier_item_id").
		Find(&keys).Error
	return keys, err
}

// RebuildWacChain deletes and rewrites one (shop, item) chain atomically.
// Entries must arrive ordered by receive time ascending with cumulative
// totals already computed.
func RebuildWacChain(ctx context.Context, shopId, supplierItemId uint, entries []WacLedgerEntry) error {
	return config.GetWacDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("shop_id = ? AND supplier_item_id = ?", shopId, supplierItemId).
			Delete(&WacLedgerEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}
