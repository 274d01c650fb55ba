package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Batch is one purchased (or assembled) lot of an item. Remaining quantity is
// only ever decremented by FIFO consumption or incremented by a compensating
// rollback. Unique source of truth for stock; StockBalance is derived from it.
type Batch struct {
	ID             string           `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string           `gorm:"size:36;not null;index:idx_batch_fifo,priority:1" json:"organization_id"`
	WarehouseId    string           `gorm:"size:36;not null;index:idx_batch_fifo,priority:2" json:"warehouse_id"`
	NomenclatureId string           `gorm:"size:36;not null;index:idx_batch_fifo,priority:3" json:"nomenclature_id"`
	SupplierId     *string          `gorm:"size:36;index" json:"supplier_id"`
	PurchasePrice  decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"purchase_price"`
	Quantity       decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Remaining      decimal.Decimal  `gorm:"type:decimal(20,4);not null;index:idx_batch_fifo,priority:4;check:remaining >= 0" json:"remaining"`
	ArrivalDate    time.Time        `gorm:"not null;index" json:"arrival_date"`
	ExpiryDate     *time.Time       `json:"expiry_date"`
	InvoiceNumber  string           `gorm:"size:100" json:"invoice_number"`
	Notes          string           `gorm:"type:text" json:"notes"`
	Nomenclature   *Nomenclature    `gorm:"foreignKey:NomenclatureId" json:"nomenclature,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// FetchFifoBatches loads the live batches for a stock key in consumption
// order, row-locked for the rest of the enclosing transaction. Arrival date
// first, then insertion order; the ordering decides cost attribution and must
// stay deterministic.
func FetchFifoBatches(tx *gorm.DB, ctx context.Context, organizationId string, warehouseId string, nomenclatureId string) ([]*Batch, error) {
	var batches []*Batch
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND warehouse_id = ? AND nomenclature_id = ? AND remaining > 0",
			organizationId, warehouseId, nomenclatureId).
		Order("arrival_date, created_at").
		Find(&batches).Error
	return batches, err
}

// DecrementBatchRemaining takes qty off a batch. The caller must already hold
// the row lock from FetchFifoBatches.
func DecrementBatchRemaining(tx *gorm.DB, ctx context.Context, batchId string, qty decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&Batch{}).
		Where("id = ?", batchId).
		Update("remaining", gorm.Expr("remaining - ?", qty)).Error
}

// IncrementBatchRemaining restores qty onto a batch (sale rollback path).
func IncrementBatchRemaining(tx *gorm.DB, ctx context.Context, batchId string, qty decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&Batch{}).
		Where("id = ?", batchId).
		Update("remaining", gorm.Expr("remaining + ?", qty)).Error
}
