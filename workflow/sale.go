package workflow

import (
	"context"
	"errors"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SaleItemRequest struct {
	NomenclatureId string          `validate:"required,uuid4"`
	BatchId        *string         `validate:"omitempty,uuid4"`
	Quantity       decimal.Decimal `validate:"required"`
	UnitPrice      decimal.Decimal
	Discount       decimal.Decimal
}

type SaleRequest struct {
	OrganizationId  string            `validate:"required,uuid4"`
	TradingPointId  string            `validate:"required,uuid4"`
	Status          models.SaleStatus `validate:"required,oneof=open completed cancelled"`
	CustomerId      *string           `validate:"omitempty,uuid4"`
	PaymentMethodId *string           `validate:"omitempty,uuid4"`
	PromoCodeId     *string           `validate:"omitempty,uuid4"`
	OrderId         *string           `validate:"omitempty,uuid4"`
	Discount        decimal.Decimal
	Items           []SaleItemRequest `validate:"required,min=1,dive"`
}

func buildSaleItems(saleId string, inputs []SaleItemRequest) []models.SaleItem {
	items := make([]models.SaleItem, 0, len(inputs))
	for _, input := range inputs {
		items = append(items, models.SaleItem{
			ID:             uuid.NewString(),
			SaleId:         saleId,
			NomenclatureId: input.NomenclatureId,
			BatchId:        input.BatchId,
			Quantity:       input.Quantity,
			UnitPrice:      input.UnitPrice,
			Discount:       input.Discount,
		})
	}
	return items
}

// validateSaleInput checks item quantities and that every optional reference
// on the request exists inside the organization before the sale touches the
// ledgers.
func validateSaleInput(ctx context.Context, input *SaleRequest) error {
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("sale item quantity must be positive")
		}
	}
	if input.CustomerId != nil {
		if err := utils.ValidateResourceId[models.Customer](ctx, input.OrganizationId, *input.CustomerId); err != nil {
			return err
		}
	}
	if input.PaymentMethodId != nil {
		if err := utils.ValidateResourceId[models.PaymentMethod](ctx, input.OrganizationId, *input.PaymentMethodId); err != nil {
			return err
		}
	}
	if input.PromoCodeId != nil {
		if err := utils.ValidateResourceId[models.PromoCode](ctx, input.OrganizationId, *input.PromoCodeId); err != nil {
			return err
		}
	}
	return nil
}

// SaveSale creates a sale and synchronizes its ledger effects in one
// transaction. A sale created completed is immediately paid, FIFO-applied
// and posted to the wallet; re-running any of those steps later is a no-op.
func SaveSale(ctx context.Context, input *SaleRequest) (*models.Sale, *SaleSyncResult, error) {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	if err := validateSaleInput(ctx, input); err != nil {
		return nil, nil, err
	}

	var sale *models.Sale
	var result *SaleSyncResult
	err := db.Transaction(func(tx *gorm.DB) error {
		number, err := models.GenerateSaleNumber(tx, ctx, input.OrganizationId)
		if err != nil {
			return err
		}

		isPaid := input.Status == models.SaleStatusCompleted
		shift, err := models.GetOpenShiftForTradingPoint(tx, ctx, input.TradingPointId)
		if err != nil {
			return err
		}
		var shiftId *string
		if shift != nil {
			shiftId = &shift.ID
		}

		sale = &models.Sale{
			ID:              uuid.NewString(),
			OrganizationId:  input.OrganizationId,
			TradingPointId:  input.TradingPointId,
			Number:          number,
			Status:          input.Status,
			IsPaid:          &isPaid,
			CustomerId:      input.CustomerId,
			PaymentMethodId: input.PaymentMethodId,
			PromoCodeId:     input.PromoCodeId,
			CashShiftId:     shiftId,
			OrderId:         input.OrderId,
			Discount:        input.Discount,
			CreatedBy:       utils.GetUserNameFromContextOrEmpty(ctx),
		}
		sale.Items = buildSaleItems(sale.ID, input.Items)
		sale.RecalcTotals()

		if err := tx.WithContext(ctx).Create(sale).Error; err != nil {
			return err
		}

		result, err = syncSaleEffects(tx, ctx, sale)
		if err != nil {
			return err
		}
		if sale.IsCompletedAndPaid() {
			if err := applySaleStats(tx, ctx, sale); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, result, nil
}

// UpdateSale replaces a sale's items and status and re-synchronizes every
// effect. A sale leaving completed-and-paid has its draw and stats rolled
// back; a sale entering it gets them applied; the transaction is always
// driven to the desired state last.
func UpdateSale(ctx context.Context, saleId string, input *SaleRequest) (*models.Sale, *SaleSyncResult, error) {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	if err := validateSaleInput(ctx, input); err != nil {
		return nil, nil, err
	}

	var sale *models.Sale
	var result *SaleSyncResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.Sale
		err := tx.WithContext(ctx).
			Preload("Items").
			Where("organization_id = ? AND id = ?", input.OrganizationId, saleId).
			First(&existing).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		wasEffective := existing.IsCompletedAndPaid()
		if wasEffective {
			if err := RollbackSaleFifo(tx, ctx, &existing); err != nil {
				return err
			}
			if err := rollbackSaleStats(tx, ctx, &existing); err != nil {
				return err
			}
		}

		if err := tx.WithContext(ctx).Where("sale_id = ?", existing.ID).Delete(&models.SaleItem{}).Error; err != nil {
			return err
		}

		isPaid := input.Status == models.SaleStatusCompleted
		existing.Status = input.Status
		existing.IsPaid = &isPaid
		existing.CustomerId = input.CustomerId
		existing.PaymentMethodId = input.PaymentMethodId
		existing.PromoCodeId = input.PromoCodeId
		existing.OrderId = input.OrderId
		existing.Discount = input.Discount
		existing.Items = buildSaleItems(existing.ID, input.Items)
		existing.RecalcTotals()

		err = tx.WithContext(ctx).Model(&models.Sale{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"status":            existing.Status,
				"is_paid":           isPaid,
				"customer_id":       existing.CustomerId,
				"payment_method_id": existing.PaymentMethodId,
				"promo_code_id":     existing.PromoCodeId,
				"order_id":          existing.OrderId,
				"discount":          existing.Discount,
				"total":             existing.Total,
			}).Error
		if err != nil {
			return err
		}
		for i := range existing.Items {
			if err := tx.WithContext(ctx).Create(&existing.Items[i]).Error; err != nil {
				return err
			}
		}

		result, err = syncSaleEffects(tx, ctx, &existing)
		if err != nil {
			return err
		}
		if existing.IsCompletedAndPaid() {
			if err := applySaleStats(tx, ctx, &existing); err != nil {
				return err
			}
		}
		sale = &existing
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, result, nil
}

// DeleteSale rolls back every effect the sale contributed and removes it.
func DeleteSale(ctx context.Context, organizationId string, saleId string) error {
	db := config.GetDB()

	if organizationId == "" {
		return utils.ErrorOrganizationRequired
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var sale models.Sale
		err := tx.WithContext(ctx).
			Preload("Items").
			Where("organization_id = ? AND id = ?", organizationId, saleId).
			First(&sale).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		if err := RollbackSaleFifo(tx, ctx, &sale); err != nil {
			return err
		}
		if sale.IsCompletedAndPaid() {
			if err := rollbackSaleStats(tx, ctx, &sale); err != nil {
				return err
			}
		}

		txn, err := models.GetSaleTransaction(tx, ctx, sale.ID)
		if err != nil {
			return err
		}
		if txn != nil {
			if err := models.DeleteTransaction(tx, ctx, txn); err != nil {
				return err
			}
		}

		if err := tx.WithContext(ctx).Where("sale_id = ?", sale.ID).Delete(&models.SaleItem{}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Delete(&models.Sale{}, "id = ?", sale.ID).Error
	})
}
