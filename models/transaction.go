package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is one append-only ledger row. Amount is always a positive
// magnitude; the type decides which wallet side it touches. Sale-linked
// transactions are created, updated and deleted only by the synchronizer.
type Transaction struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	Type           TransactionType `gorm:"type:enum('income','expense','transfer','salary','personal_expense','supplier_payment');not null" json:"type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	WalletFromId   *string         `gorm:"size:36;index" json:"wallet_from_id"`
	WalletToId     *string         `gorm:"size:36;index" json:"wallet_to_id"`
	SaleId         *string         `gorm:"size:36;index" json:"sale_id"`
	OrderId        *string         `gorm:"size:36;index" json:"order_id"`
	CategoryId     *string         `gorm:"size:36;index" json:"category_id"`
	Description    string          `gorm:"type:text" json:"description"`
	CreatedBy      string          `gorm:"size:255" json:"created_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionCategory struct {
	ID             string    `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string    `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PaymentMethod maps a sale's payment choice to the wallet its money lands
// in. Methods without a wallet produce no ledger entry (e.g. external pay).
type PaymentMethod struct {
	ID             string    `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string    `gorm:"size:36;index;not null" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	WalletId       *string   `gorm:"size:36;index" json:"wallet_id"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Debt is the advisory accounts-payable record a receipt emits: what the
// organization owes the supplier for the delivered lot.
type Debt struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	SupplierId     string          `gorm:"size:36;index;not null" json:"supplier_id"`
	BatchId        *string         `gorm:"size:36;index" json:"batch_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	IsPaid         *bool           `gorm:"not null;default:false" json:"is_paid"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// validateWallets enforces which side each transaction type must carry.
func (t *Transaction) validateWallets() error {
	switch t.Type {
	case TransactionTypeIncome:
		if t.WalletToId == nil {
			return errors.New("income transaction requires a destination wallet")
		}
	case TransactionTypeExpense, TransactionTypeSalary, TransactionTypePersonalExpense, TransactionTypeSupplierPayment:
		if t.WalletFromId == nil {
			return errors.New("outgoing transaction requires a source wallet")
		}
	case TransactionTypeTransfer:
		if t.WalletFromId == nil || t.WalletToId == nil {
			return errors.New("transfer requires both wallets")
		}
		if *t.WalletFromId == *t.WalletToId {
			return errors.New("transfer wallets must differ")
		}
	default:
		return errors.New("invalid transaction type")
	}
	if !t.Amount.IsPositive() {
		return errors.New("transaction amount must be positive")
	}
	return nil
}

// CreateTransaction validates, applies the wallet balance effects under row
// locks, and persists the row. One call, one atomic ledger entry.
func CreateTransaction(tx *gorm.DB, ctx context.Context, txn *Transaction) error {
	if err := txn.validateWallets(); err != nil {
		return err
	}
	if err := applyTransactionBalance(tx, ctx, txn); err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(txn).Error
}

// DeleteTransaction reverses the wallet effects and removes the row.
func DeleteTransaction(tx *gorm.DB, ctx context.Context, txn *Transaction) error {
	if err := ReverseTransactionBalance(tx, ctx, txn); err != nil {
		return err
	}
	return tx.WithContext(ctx).Delete(&Transaction{}, "id = ?", txn.ID).Error
}

func applyTransactionBalance(tx *gorm.DB, ctx context.Context, txn *Transaction) error {
	if txn.WalletFromId != nil {
		wallet, err := LockWallet(tx, ctx, *txn.WalletFromId)
		if err != nil {
			return err
		}
		if wallet.OrganizationId != txn.OrganizationId {
			return errors.New("wallet belongs to another organization")
		}
		if err := DebitWallet(tx, ctx, wallet, txn.Amount); err != nil {
			return err
		}
	}
	if txn.WalletToId != nil {
		wallet, err := LockWallet(tx, ctx, *txn.WalletToId)
		if err != nil {
			return err
		}
		if wallet.OrganizationId != txn.OrganizationId {
			return errors.New("wallet belongs to another organization")
		}
		if err := CreditWallet(tx, ctx, *txn.WalletToId, txn.Amount); err != nil {
			return err
		}
	}
	return nil
}

// ReverseTransactionBalance undoes the balance effects of a transaction. The
// reversal can overdraw: respecting allow_negative here would leave the ledger
// and the wallet permanently out of sync.
func ReverseTransactionBalance(tx *gorm.DB, ctx context.Context, txn *Transaction) error {
	if txn.WalletFromId != nil {
		if _, err := LockWallet(tx, ctx, *txn.WalletFromId); err != nil {
			return err
		}
		if err := CreditWallet(tx, ctx, *txn.WalletFromId, txn.Amount); err != nil {
			return err
		}
	}
	if txn.WalletToId != nil {
		if _, err := LockWallet(tx, ctx, *txn.WalletToId); err != nil {
			return err
		}
		err := tx.WithContext(ctx).Model(&Wallet{}).
			Where("id = ?", *txn.WalletToId).
			Update("balance", gorm.Expr("balance - ?", txn.Amount)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// GetSaleTransaction returns the sale's transaction, or nil when none exists.
func GetSaleTransaction(tx *gorm.DB, ctx context.Context, saleId string) (*Transaction, error) {
	var txns []*Transaction
	err := tx.WithContext(ctx).
		Where("sale_id = ?", saleId).
		Limit(1).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return txns[0], nil
}
