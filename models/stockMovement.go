package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is the append-only audit record of one allocation event. For
// sale movements it doubles as the idempotency key: the existence of a
// movement tagged with a sale id means that sale's FIFO draw already applied.
type StockMovement struct {
	ID                 string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId     string          `gorm:"size:36;index;not null" json:"organization_id"`
	Type               MovementType    `gorm:"type:enum('receipt','write_off','transfer','sale','return','adjustment','assembly');not null;index" json:"type"`
	NomenclatureId     string          `gorm:"size:36;index;not null" json:"nomenclature_id"`
	WarehouseFromId    *string         `gorm:"size:36;index" json:"warehouse_from_id"`
	WarehouseToId      *string         `gorm:"size:36;index" json:"warehouse_to_id"`
	BatchId            *string         `gorm:"size:36;index" json:"batch_id"`
	SaleId             *string         `gorm:"size:36;index" json:"sale_id"`
	Quantity           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Reason             WriteOffReason  `gorm:"size:20" json:"reason"`
	// set when a sale drew more than was on hand; the shortage part of the
	// draw has no batch behind it
	IsShortage bool      `gorm:"not null;default:false" json:"is_shortage"`
	Notes      string    `gorm:"type:text" json:"notes"`
	CreatedBy  string    `gorm:"size:255" json:"created_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// HasSaleMovements reports whether FIFO was already applied for a sale.
func HasSaleMovements(tx *gorm.DB, ctx context.Context, saleId string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&StockMovement{}).
		Where("type = ? AND sale_id = ?", MovementTypeSale, saleId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FetchSaleMovements loads all sale-tagged movements of a sale for rollback.
func FetchSaleMovements(tx *gorm.DB, ctx context.Context, saleId string) ([]*StockMovement, error) {
	var movements []*StockMovement
	err := tx.WithContext(ctx).
		Where("type = ? AND sale_id = ?", MovementTypeSale, saleId).
		Find(&movements).Error
	return movements, err
}
