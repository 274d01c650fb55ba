package workflow

import (
	"context"
	"errors"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckoutRequest struct {
	OrganizationId  string  `validate:"required,uuid4"`
	OrderId         string  `validate:"required,uuid4"`
	PaymentMethodId *string `validate:"omitempty,uuid4"`
	PromoCodeId     *string `validate:"omitempty,uuid4"`
	Comment         string
}

// CheckoutOrder turns an order into a completed, paid sale. The sale and its
// ledger effects post first and the order transition runs last, so a ledger
// failure can never leave a falsely completed order. Serialized per
// organization across instances.
func CheckoutOrder(ctx context.Context, input *CheckoutRequest) (*models.Sale, *SaleSyncResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}

	release, err := utils.ObtainRedisLock(ctx, logger, "workflow", "CheckoutOrder", "checkout", input.OrganizationId)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var sale *models.Sale
	var result *SaleSyncResult
	err = db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.WithContext(ctx).
			Preload("Items").
			Where("organization_id = ? AND id = ?", input.OrganizationId, input.OrderId).
			First(&order).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		existing, err := models.GetSaleByOrder(tx, ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.New("order has already been checked out")
		}

		// fail before any ledger effect if the order could not complete
		if !models.CanTransition(order.Status, models.OrderStatusCompleted) {
			return &models.InvalidTransitionError{
				From:    order.Status,
				To:      models.OrderStatusCompleted,
				Allowed: models.AllowedTransitionsFrom(order.Status),
			}
		}

		if err := models.LockOrganizationRow(tx, ctx, input.OrganizationId); err != nil {
			return err
		}
		number, err := models.GenerateSaleNumber(tx, ctx, input.OrganizationId)
		if err != nil {
			return err
		}

		shift, err := models.GetOpenShiftForTradingPoint(tx, ctx, order.TradingPointId)
		if err != nil {
			return err
		}
		var shiftId *string
		if shift != nil {
			shiftId = &shift.ID
		}

		isPaid := true
		sale = &models.Sale{
			ID:              uuid.NewString(),
			OrganizationId:  order.OrganizationId,
			TradingPointId:  order.TradingPointId,
			Number:          number,
			Status:          models.SaleStatusCompleted,
			IsPaid:          &isPaid,
			CustomerId:      order.CustomerId,
			PaymentMethodId: input.PaymentMethodId,
			PromoCodeId:     input.PromoCodeId,
			CashShiftId:     shiftId,
			OrderId:         &order.ID,
			CreatedBy:       utils.GetUserNameFromContextOrEmpty(ctx),
		}
		for _, orderItem := range order.Items {
			sale.Items = append(sale.Items, models.SaleItem{
				ID:             uuid.NewString(),
				SaleId:         sale.ID,
				NomenclatureId: orderItem.NomenclatureId,
				Quantity:       orderItem.Quantity,
				UnitPrice:      orderItem.UnitPrice,
				Discount:       orderItem.Discount,
			})
		}
		sale.RecalcTotals()

		if err := tx.WithContext(ctx).Create(sale).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return errors.New("order has already been checked out")
			}
			return err
		}

		result, err = syncSaleEffects(tx, ctx, sale)
		if err != nil {
			return err
		}
		if err := applySaleStats(tx, ctx, sale); err != nil {
			return err
		}

		actor := utils.GetUserNameFromContextOrEmpty(ctx)
		return order.TransitionTo(tx, ctx, models.OrderStatusCompleted, actor, input.Comment)
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, result, nil
}
