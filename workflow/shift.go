package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OpenShiftRequest struct {
	OrganizationId string `validate:"required,uuid4"`
	TradingPointId string `validate:"required,uuid4"`
	WalletId       string `validate:"required,uuid4"`
}

type CloseShiftRequest struct {
	OrganizationId string          `validate:"required,uuid4"`
	ShiftId        string          `validate:"required,uuid4"`
	ActualBalance  decimal.Decimal `validate:"required"`
	Notes          string
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// OpenShift starts a cash session on a wallet. Race-safe twice over: the
// wallet row lock serializes openers in one database, the unique open-key
// index catches anything that slips through, and a redis lock serializes
// across instances.
func OpenShift(ctx context.Context, input *OpenShiftRequest) (*models.CashShift, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	release, err := utils.ObtainRedisLock(ctx, logger, "workflow", "OpenShift", "shift-open", input.WalletId)
	if err != nil {
		return nil, err
	}
	defer release()

	var shift *models.CashShift
	err = db.Transaction(func(tx *gorm.DB) error {
		wallet, err := models.LockWallet(tx, ctx, input.WalletId)
		if err != nil {
			return err
		}
		if wallet.OrganizationId != input.OrganizationId {
			return utils.ErrorRecordNotFound
		}

		existing, err := models.GetOpenShift(tx, ctx, input.WalletId)
		if err != nil {
			return err
		}
		if existing != nil {
			return &models.DuplicateOpenShiftError{WalletId: input.WalletId}
		}

		openKey := input.WalletId
		shift = &models.CashShift{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			TradingPointId: input.TradingPointId,
			WalletId:       input.WalletId,
			Status:         models.ShiftStatusOpen,
			OpenKey:        &openKey,
			BalanceAtOpen:  wallet.Balance,
			OpenedBy:       utils.GetUserNameFromContextOrEmpty(ctx),
			OpenedAt:       time.Now(),
		}
		if err := tx.WithContext(ctx).Create(shift).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return &models.DuplicateOpenShiftError{WalletId: input.WalletId}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// computeExpectedBalance is the reconciliation formula: what the drawer
// should hold at close given the opening balance and the session's flows.
func computeExpectedBalance(balanceAtOpen, incoming, outgoing decimal.Decimal) decimal.Decimal {
	return balanceAtOpen.Add(incoming).Sub(outgoing)
}

// CloseShift reconciles and closes a session: expected balance is opening
// balance plus the signed sum of the wallet's transactions created during
// the shift; discrepancy is what the operator counted minus that.
func CloseShift(ctx context.Context, input *CloseShiftRequest) (*models.CashShift, error) {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var shift models.CashShift
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("organization_id = ? AND id = ?", input.OrganizationId, input.ShiftId).
			First(&shift).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}
		if shift.Status == models.ShiftStatusClosed {
			return &models.ShiftAlreadyClosedError{ShiftId: shift.ID}
		}

		if _, err := models.LockWallet(tx, ctx, shift.WalletId); err != nil {
			return err
		}

		var incoming, outgoing decimal.Decimal
		err = tx.WithContext(ctx).Model(&models.Transaction{}).
			Where("wallet_to_id = ? AND created_at >= ?", shift.WalletId, shift.OpenedAt).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&incoming).Error
		if err != nil {
			return err
		}
		err = tx.WithContext(ctx).Model(&models.Transaction{}).
			Where("wallet_from_id = ? AND created_at >= ?", shift.WalletId, shift.OpenedAt).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&outgoing).Error
		if err != nil {
			return err
		}

		expected := computeExpectedBalance(shift.BalanceAtOpen, incoming, outgoing)
		discrepancy := input.ActualBalance.Sub(expected)
		now := time.Now()

		shift.Status = models.ShiftStatusClosed
		shift.OpenKey = nil
		shift.Expected = expected
		shift.Actual = input.ActualBalance
		shift.Discrepancy = discrepancy
		shift.Notes = input.Notes
		shift.ClosedBy = utils.GetUserNameFromContextOrEmpty(ctx)
		shift.ClosedAt = &now

		return tx.WithContext(ctx).Model(&models.CashShift{}).
			Where("id = ?", shift.ID).
			Updates(map[string]interface{}{
				"status":      models.ShiftStatusClosed,
				"open_key":    nil,
				"expected":    expected,
				"actual":      input.ActualBalance,
				"discrepancy": discrepancy,
				"notes":       input.Notes,
				"closed_by":   shift.ClosedBy,
				"closed_at":   now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &shift, nil
}
