package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashShift is a bounded session over a cash wallet. The partial unique index
// column OpenKey enforces at most one open shift per wallet at the DB level:
// it carries the wallet id while open and is cleared on close.
type CashShift struct {
	ID             string      `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string      `gorm:"size:36;index;not null" json:"organization_id"`
	TradingPointId string      `gorm:"size:36;index;not null" json:"trading_point_id"`
	WalletId       string      `gorm:"size:36;index;not null" json:"wallet_id"`
	Status         ShiftStatus `gorm:"type:enum('open','closed');default:'open';index" json:"status"`
	// equals WalletId while the shift is open, NULL once closed; unique, so
	// a second concurrent open on the same wallet hits a duplicate key
	OpenKey       *string         `gorm:"size:36;index:uniq_open_shift,unique" json:"-"`
	BalanceAtOpen decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance_at_open"`
	Expected      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"expected"`
	Actual        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"actual"`
	Discrepancy   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discrepancy"`
	OpenedBy      string          `gorm:"size:255" json:"opened_by"`
	ClosedBy      string          `gorm:"size:255" json:"closed_by"`
	Notes         string          `gorm:"type:text" json:"notes"`
	OpenedAt      time.Time       `gorm:"not null" json:"opened_at"`
	ClosedAt      *time.Time      `json:"closed_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type DuplicateOpenShiftError struct {
	WalletId string
}

func (e *DuplicateOpenShiftError) Error() string {
	return fmt.Sprintf("wallet %s already has an open shift", e.WalletId)
}

type ShiftAlreadyClosedError struct {
	ShiftId string
}

func (e *ShiftAlreadyClosedError) Error() string {
	return fmt.Sprintf("shift %s is already closed", e.ShiftId)
}

// GetOpenShift returns the wallet's open shift, nil when there is none.
func GetOpenShift(tx *gorm.DB, ctx context.Context, walletId string) (*CashShift, error) {
	var shifts []*CashShift
	err := tx.WithContext(ctx).
		Where("wallet_id = ? AND status = ?", walletId, ShiftStatusOpen).
		Limit(1).
		Find(&shifts).Error
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}
	return shifts[0], nil
}

// GetOpenShiftForTradingPoint returns the trading point's open shift; a sale
// created at the point is attached to it.
func GetOpenShiftForTradingPoint(tx *gorm.DB, ctx context.Context, tradingPointId string) (*CashShift, error) {
	var shifts []*CashShift
	err := tx.WithContext(ctx).
		Where("trading_point_id = ? AND status = ?", tradingPointId, ShiftStatusOpen).
		Limit(1).
		Find(&shifts).Error
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}
	return shifts[0], nil
}
