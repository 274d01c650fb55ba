package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Nomenclature is the catalog record the engine consumes: id, name, type
// (service items are never stock-tracked) and the last known purchase cost.
type Nomenclature struct {
	ID             string           `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string           `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string           `gorm:"size:255;not null" json:"name"`
	Type           NomenclatureType `gorm:"type:enum('product','bouquet','service');default:'product'" json:"type"`
	// refreshed on every receipt and on bouquet assembly
	LastPurchasePrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"last_purchase_price"`
	SalePrice         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"sale_price"`
	Unit              string          `gorm:"size:20" json:"unit"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (n *Nomenclature) IsService() bool {
	return n.Type == NomenclatureTypeService
}

// BouquetComponent is one line of a bouquet nomenclature's template:
// which component and how many per assembled unit.
type BouquetComponent struct {
	ID              string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId  string          `gorm:"size:36;index;not null" json:"organization_id"`
	BouquetId       string          `gorm:"size:36;index;not null" json:"bouquet_id"`
	ComponentId     string          `gorm:"size:36;index;not null" json:"component_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Bouquet         *Nomenclature   `gorm:"foreignKey:BouquetId" json:"bouquet,omitempty"`
	Component       *Nomenclature   `gorm:"foreignKey:ComponentId" json:"component,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// GetNomenclature loads a catalog record scoped to the organization.
func GetNomenclature(tx *gorm.DB, ctx context.Context, organizationId string, id string) (*Nomenclature, error) {
	var nom Nomenclature
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND id = ?", organizationId, id).
		First(&nom).Error
	if err != nil {
		return nil, err
	}
	return &nom, nil
}

// UpdateNomenclaturePurchasePrice refreshes the cached last-known cost.
func UpdateNomenclaturePurchasePrice(tx *gorm.DB, ctx context.Context, organizationId string, id string, price decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&Nomenclature{}).
		Where("organization_id = ? AND id = ?", organizationId, id).
		Update("last_purchase_price", price).Error
}

// GetBouquetComponents loads the component template of a bouquet nomenclature.
func GetBouquetComponents(tx *gorm.DB, ctx context.Context, organizationId string, bouquetId string) ([]*BouquetComponent, error) {
	var components []*BouquetComponent
	err := tx.WithContext(ctx).
		Preload("Component").
		Where("organization_id = ? AND bouquet_id = ?", organizationId, bouquetId).
		Find(&components).Error
	return components, err
}
