package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Supplier struct {
	ID             string    `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string    `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Phone          string    `gorm:"size:20" json:"phone"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SupplierNomenclature remembers the last price a supplier charged for an
// item. Unique per (supplier, nomenclature); refreshed on every receipt.
type SupplierNomenclature struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	SupplierId     string          `gorm:"size:36;not null;index:uniq_supplier_nom,unique" json:"supplier_id"`
	NomenclatureId string          `gorm:"size:36;not null;index:uniq_supplier_nom,unique" json:"nomenclature_id"`
	LastPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"last_price"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertSupplierPrice refreshes the supplier's last price for an item.
func UpsertSupplierPrice(tx *gorm.DB, ctx context.Context, record *SupplierNomenclature) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "supplier_id"}, {Name: "nomenclature_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_price", "updated_at"}),
		}).
		Create(record).Error
}
