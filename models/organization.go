package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Organization is the tenant anchor. Every domain row carries its id, and the
// row itself doubles as the per-tenant serialization point for sequence
// numbering (see LockOrganizationRow).
type Organization struct {
	ID        string    `gorm:"size:36;primary_key" json:"id"` // uuid
	Name      string    `gorm:"size:255;not null" json:"name"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type TradingPoint struct {
	ID             string    `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string    `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Address        string    `gorm:"type:text" json:"address"`
	NumberPrefix   string    `gorm:"size:10" json:"number_prefix"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Warehouse struct {
	ID             string    `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string    `gorm:"size:36;index;not null" json:"organization_id"`
	TradingPointId *string   `gorm:"size:36;index" json:"trading_point_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	// exactly one warehouse per trading point should carry this flag;
	// sale fulfillment prefers it when resolving a warehouse
	IsDefaultForSales *bool     `gorm:"not null;default:false" json:"is_default_for_sales"`
	IsActive          *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LockOrganizationRow takes the organization row lock for the rest of the
// enclosing transaction. Sequence numbering and checkout serialize on it.
func LockOrganizationRow(tx *gorm.DB, ctx context.Context, organizationId string) error {
	var org Organization
	return tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", organizationId).
		First(&org).Error
}
