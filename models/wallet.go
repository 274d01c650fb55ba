package models

import (
	"context"
	"fmt"
	"time"

	"github.com/floradesk/flora_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Wallet holds a cash/account balance. Mutated only through transaction
// application and reversal under a row lock; at rest the balance equals the
// signed sum of all transactions touching the wallet.
type Wallet struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	TradingPointId *string         `gorm:"size:36;index" json:"trading_point_id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	Type           WalletType      `gorm:"type:enum('cash','bank','card');default:'cash'" json:"type"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	AllowNegative  *bool           `gorm:"not null;default:false" json:"allow_negative"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type WalletOverdraftError struct {
	WalletName string
	Balance    decimal.Decimal
	Amount     decimal.Decimal
}

func (e *WalletOverdraftError) Error() string {
	return fmt.Sprintf("wallet %q balance %s is not enough for %s",
		e.WalletName, e.Balance.String(), e.Amount.String())
}

// LockWallet reads the wallet under a row lock held for the rest of the
// enclosing transaction.
func LockWallet(tx *gorm.DB, ctx context.Context, walletId string) (*Wallet, error) {
	var wallet Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletId).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreditWallet adds amount to a locked wallet's balance.
func CreditWallet(tx *gorm.DB, ctx context.Context, walletId string, amount decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&Wallet{}).
		Where("id = ?", walletId).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// DebitWallet subtracts amount from a locked wallet's balance, refusing an
// overdraft unless the wallet allows negative balances.
func DebitWallet(tx *gorm.DB, ctx context.Context, wallet *Wallet, amount decimal.Decimal) error {
	if !utils.DereferencePtr(wallet.AllowNegative) && wallet.Balance.LessThan(amount) {
		return &WalletOverdraftError{
			WalletName: wallet.Name,
			Balance:    wallet.Balance,
			Amount:     amount,
		}
	}
	return tx.WithContext(ctx).Model(&Wallet{}).
		Where("id = ?", wallet.ID).
		Update("balance", gorm.Expr("balance - ?", amount)).Error
}
