package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockBalance is the denormalized per-(org, warehouse, item) aggregate:
// total remaining quantity plus remaining-weighted average cost. It is a
// materialized view of batches and must always be rebuildable from them.
type StockBalance struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;not null;index:uniq_stock_balance,unique" json:"organization_id"`
	WarehouseId    string          `gorm:"size:36;not null;index:uniq_stock_balance,unique" json:"warehouse_id"`
	NomenclatureId string          `gorm:"size:36;not null;index:uniq_stock_balance,unique" json:"nomenclature_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	AvgCost        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"avg_cost"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type batchCostRow struct {
	TotalRemaining decimal.Decimal
	TotalValue     decimal.Decimal
}

// AdjustStockBalance upserts the stock key row, applies deltaQty and
// recomputes avg cost as Σ(remaining × price) / Σ remaining over the live
// batches. When no live batches remain the previous avg cost is kept as the
// last known cost (used when a sale pushes stock negative). Must run inside
// the same transaction as the batch mutation it follows.
func AdjustStockBalance(tx *gorm.DB, ctx context.Context, organizationId string, warehouseId string, nomenclatureId string, deltaQty decimal.Decimal) error {

	var balance StockBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND warehouse_id = ? AND nomenclature_id = ?",
			organizationId, warehouseId, nomenclatureId).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = StockBalance{
			ID:             uuid.NewString(),
			OrganizationId: organizationId,
			WarehouseId:    warehouseId,
			NomenclatureId: nomenclatureId,
			Quantity:       decimal.Zero,
			AvgCost:        decimal.Zero,
		}
		if err := tx.WithContext(ctx).Create(&balance).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	var row batchCostRow
	err = tx.WithContext(ctx).Model(&Batch{}).
		Select("COALESCE(SUM(remaining), 0) AS total_remaining, COALESCE(SUM(remaining * purchase_price), 0) AS total_value").
		Where("organization_id = ? AND warehouse_id = ? AND nomenclature_id = ? AND remaining > 0",
			organizationId, warehouseId, nomenclatureId).
		Scan(&row).Error
	if err != nil {
		return err
	}

	avgCost := balance.AvgCost
	if row.TotalRemaining.IsPositive() {
		avgCost = row.TotalValue.DivRound(row.TotalRemaining, 4)
	}

	return tx.WithContext(ctx).Model(&StockBalance{}).
		Where("id = ?", balance.ID).
		Updates(map[string]interface{}{
			"quantity": gorm.Expr("quantity + ?", deltaQty),
			"avg_cost": avgCost,
		}).Error
}

// RebuildStockBalances regenerates the whole cache of an organization from
// the batch ledger. Used by cmd/stock-rebuild and by tests asserting the
// cache stays a faithful materialization.
func RebuildStockBalances(db *gorm.DB, ctx context.Context, organizationId string) error {

	type rebuiltRow struct {
		WarehouseId    string
		NomenclatureId string
		TotalRemaining decimal.Decimal
		TotalValue     decimal.Decimal
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []rebuiltRow
		err := tx.Model(&Batch{}).
			Select("warehouse_id, nomenclature_id, COALESCE(SUM(remaining), 0) AS total_remaining, COALESCE(SUM(remaining * purchase_price), 0) AS total_value").
			Where("organization_id = ?", organizationId).
			Group("warehouse_id, nomenclature_id").
			Scan(&rows).Error
		if err != nil {
			return err
		}

		for _, row := range rows {
			avgCost := decimal.Zero
			if row.TotalRemaining.IsPositive() {
				avgCost = row.TotalValue.DivRound(row.TotalRemaining, 4)
			}
			balance := StockBalance{
				ID:             uuid.NewString(),
				OrganizationId: organizationId,
				WarehouseId:    row.WarehouseId,
				NomenclatureId: row.NomenclatureId,
				Quantity:       row.TotalRemaining,
				AvgCost:        avgCost,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "organization_id"}, {Name: "warehouse_id"}, {Name: "nomenclature_id"},
				},
				DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_cost", "updated_at"}),
			}).Create(&balance).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStockBalance reads the cached row for a stock key, nil when the key has
// never been touched.
func GetStockBalance(tx *gorm.DB, ctx context.Context, organizationId string, warehouseId string, nomenclatureId string) (*StockBalance, error) {
	var balances []*StockBalance
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND warehouse_id = ? AND nomenclature_id = ?",
			organizationId, warehouseId, nomenclatureId).
		Limit(1).
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, nil
	}
	return balances[0], nil
}

// GetStockBalanceQuantity reads the cached quantity for a stock key, zero
// when the key has never been touched.
func GetStockBalanceQuantity(tx *gorm.DB, ctx context.Context, organizationId string, warehouseId string, nomenclatureId string) (decimal.Decimal, error) {
	var balances []*StockBalance
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND warehouse_id = ? AND nomenclature_id = ?",
			organizationId, warehouseId, nomenclatureId).
		Limit(1).
		Find(&balances).Error
	if err != nil {
		return decimal.Zero, err
	}
	if len(balances) == 0 {
		return decimal.Zero, nil
	}
	return balances[0].Quantity, nil
}
