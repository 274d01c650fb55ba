package models

import (
	"context"
	"fmt"
	"time"

	"github.com/floradesk/flora_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Sale struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	TradingPointId string          `gorm:"size:36;index;not null" json:"trading_point_id"`
	Number         int             `gorm:"not null;index" json:"number"`
	Status         SaleStatus      `gorm:"type:enum('open','completed','cancelled');default:'open';index" json:"status"`
	// derived: true iff status = completed
	IsPaid          *bool           `gorm:"not null;default:false" json:"is_paid"`
	CustomerId      *string         `gorm:"size:36;index" json:"customer_id"`
	PaymentMethodId *string         `gorm:"size:36;index" json:"payment_method_id"`
	PromoCodeId     *string         `gorm:"size:36;index" json:"promo_code_id"`
	CashShiftId     *string         `gorm:"size:36;index" json:"cash_shift_id"`
	OrderId         *string         `gorm:"size:36;uniqueIndex" json:"order_id"`
	Total           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	Discount        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	EarnedBonuses   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"earned_bonuses"`
	Items           []SaleItem      `gorm:"foreignKey:SaleId" json:"items"`
	CreatedBy       string          `gorm:"size:255" json:"created_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleItem struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	SaleId         string          `gorm:"size:36;index;not null" json:"sale_id"`
	NomenclatureId string          `gorm:"size:36;index;not null" json:"nomenclature_id"`
	BatchId        *string         `gorm:"size:36;index" json:"batch_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Discount       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	// FIFO-weighted cost, written back by the synchronizer
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_cost"`
	Nomenclature *Nomenclature   `gorm:"foreignKey:NomenclatureId" json:"nomenclature,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// IsCompletedAndPaid reports whether the sale is in the state that carries
// inventory and ledger effects.
func (s *Sale) IsCompletedAndPaid() bool {
	return s.Status == SaleStatusCompleted && s.IsPaid != nil && *s.IsPaid
}

// RecalcTotals recomputes the sale total from its items. Per-item discounts
// are already inside the line amounts; the sale-level discount subtracts last.
func (s *Sale) RecalcTotals() {
	total := decimal.Zero
	for _, item := range s.Items {
		line := item.Quantity.Mul(item.UnitPrice).Sub(item.Discount)
		total = total.Add(line)
	}
	s.Total = total.Sub(s.Discount)
	if s.Total.IsNegative() {
		s.Total = decimal.Zero
	}
}

// GenerateSaleNumber issues the next sale number for the organization.
// MAX+1 computed under the organization row lock, so concurrent creators
// serialize and the sequence stays gap-free.
func GenerateSaleNumber(tx *gorm.DB, ctx context.Context, organizationId string) (int, error) {
	if err := LockOrganizationRow(tx, ctx, organizationId); err != nil {
		return 0, err
	}
	var maxNumber int
	err := tx.WithContext(ctx).Model(&Sale{}).
		Where("organization_id = ?", organizationId).
		Select("COALESCE(MAX(number), 0)").
		Scan(&maxNumber).Error
	if err != nil {
		return 0, err
	}
	return maxNumber + 1, nil
}

// GetNumberPrefix resolves the trading point's receipt-number prefix,
// redis-cached because every sale save reads it.
func GetNumberPrefix(ctx context.Context, tradingPointId string) (string, error) {
	var prefix string
	redisKey := "numberPrefix:" + tradingPointId
	exists, err := config.GetRedisObject(redisKey, &prefix)
	if err != nil {
		return "", err
	}
	if !exists {
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&TradingPoint{}).
			Where("id = ?", tradingPointId).
			Select("number_prefix").
			Scan(&prefix).Error; err != nil {
			return "", err
		}
		if err := config.SetRedisObject(redisKey, &prefix, 0); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

// FormatSaleNumber renders the display number, e.g. "TP1-000042".
func FormatSaleNumber(prefix string, number int) string {
	if prefix == "" {
		return fmt.Sprintf("%06d", number)
	}
	return fmt.Sprintf("%s-%06d", prefix, number)
}

// GetSaleByOrder returns the sale produced by an order's checkout, nil when
// the order has not been checked out.
func GetSaleByOrder(tx *gorm.DB, ctx context.Context, orderId string) (*Sale, error) {
	var sales []*Sale
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderId).
		Limit(1).
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	return sales[0], nil
}
