package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Customer struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	Phone          string          `gorm:"size:20;index" json:"phone"`
	PurchasesTotal decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"purchases_total"`
	PurchasesCount int             `gorm:"not null;default:0" json:"purchases_count"`
	Bonuses        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"bonuses"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PromoCode struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	Code           string          `gorm:"size:50;not null;index" json:"code"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	UsageCount     int             `gorm:"not null;default:0" json:"usage_count"`
	UsageLimit     *int            `json:"usage_limit"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LoyaltyProgram hands the synchronizer a numeric accrual percent; the accrual
// formula itself lives outside the engine.
type LoyaltyProgram struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	BonusPercent   decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"bonus_percent"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IncrementCustomerStats bumps purchase totals and count when a sale becomes
// completed-and-paid. Best-effort bookkeeping, not authoritative accounting.
func IncrementCustomerStats(tx *gorm.DB, ctx context.Context, customerId string, amount decimal.Decimal, bonuses decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&Customer{}).
		Where("id = ?", customerId).
		Updates(map[string]interface{}{
			"purchases_total": gorm.Expr("purchases_total + ?", amount),
			"purchases_count": gorm.Expr("purchases_count + 1"),
			"bonuses":         gorm.Expr("bonuses + ?", bonuses),
		}).Error
}

// DecrementCustomerStats reverses IncrementCustomerStats. Floor-clamped at
// zero to tolerate historical drift.
func DecrementCustomerStats(tx *gorm.DB, ctx context.Context, customerId string, amount decimal.Decimal, bonuses decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&Customer{}).
		Where("id = ?", customerId).
		Updates(map[string]interface{}{
			"purchases_total": gorm.Expr("GREATEST(purchases_total - ?, 0)", amount),
			"purchases_count": gorm.Expr("GREATEST(purchases_count - 1, 0)"),
			"bonuses":         gorm.Expr("GREATEST(bonuses - ?, 0)", bonuses),
		}).Error
}

func IncrementPromoCodeUsage(tx *gorm.DB, ctx context.Context, promoCodeId string) error {
	return tx.WithContext(ctx).Model(&PromoCode{}).
		Where("id = ?", promoCodeId).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

func DecrementPromoCodeUsage(tx *gorm.DB, ctx context.Context, promoCodeId string) error {
	return tx.WithContext(ctx).Model(&PromoCode{}).
		Where("id = ?", promoCodeId).
		Update("usage_count", gorm.Expr("GREATEST(usage_count - 1, 0)")).Error
}

// GetActiveLoyaltyProgram returns the organization's active program, or nil
// when none is configured.
func GetActiveLoyaltyProgram(tx *gorm.DB, ctx context.Context, organizationId string) (*LoyaltyProgram, error) {
	var programs []*LoyaltyProgram
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND is_active = true", organizationId).
		Order("created_at").
		Limit(1).
		Find(&programs).Error
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		return nil, nil
	}
	return programs[0], nil
}
