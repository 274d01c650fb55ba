package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReceiptRequest struct {
	OrganizationId string          `validate:"required,uuid4"`
	WarehouseId    string          `validate:"required,uuid4"`
	NomenclatureId string          `validate:"required,uuid4"`
	SupplierId     *string         `validate:"omitempty,uuid4"`
	Quantity       decimal.Decimal `validate:"required"`
	PurchasePrice  decimal.Decimal
	ArrivalDate    time.Time `validate:"required"`
	ExpiryDate     *time.Time
	InvoiceNumber  string
	Notes          string
}

type WriteOffRequest struct {
	OrganizationId string                `validate:"required,uuid4"`
	WarehouseId    string                `validate:"required,uuid4"`
	NomenclatureId string                `validate:"required,uuid4"`
	Quantity       decimal.Decimal       `validate:"required"`
	Reason         models.WriteOffReason `validate:"required"`
	Notes          string
}

type TransferRequest struct {
	OrganizationId  string          `validate:"required,uuid4"`
	WarehouseFromId string          `validate:"required,uuid4"`
	WarehouseToId   string          `validate:"required,uuid4,nefield=WarehouseFromId"`
	NomenclatureId  string          `validate:"required,uuid4"`
	Quantity        decimal.Decimal `validate:"required"`
	Notes           string
}

// ProcessReceipt puts a delivered lot on stock: new batch, balance adjust,
// receipt movement, refreshed item cost. The supplier price record and the
// payable Debt are advisory side effects; their failure is logged but never
// fails the stock mutation.
func ProcessReceipt(ctx context.Context, input *ReceiptRequest) (*models.Batch, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		config.LogError(logger, "workflow", "ProcessReceipt", "validation failed", utils.ProcessValidationErrors(err), err)
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, errors.New("receipt quantity must be positive")
	}
	if err := utils.ValidateResourceId[models.Warehouse](ctx, input.OrganizationId, input.WarehouseId); err != nil {
		return nil, err
	}

	var batch *models.Batch
	err := db.Transaction(func(tx *gorm.DB) error {
		nom, err := models.GetNomenclature(tx, ctx, input.OrganizationId, input.NomenclatureId)
		if err != nil {
			return err
		}
		if nom.IsService() {
			return errors.New("service items are not stock-tracked")
		}

		batch = &models.Batch{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			WarehouseId:    input.WarehouseId,
			NomenclatureId: input.NomenclatureId,
			SupplierId:     input.SupplierId,
			PurchasePrice:  input.PurchasePrice,
			Quantity:       input.Quantity,
			Remaining:      input.Quantity,
			ArrivalDate:    input.ArrivalDate,
			ExpiryDate:     input.ExpiryDate,
			InvoiceNumber:  input.InvoiceNumber,
			Notes:          input.Notes,
		}
		if err := tx.WithContext(ctx).Create(batch).Error; err != nil {
			return err
		}

		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseId, input.NomenclatureId, input.Quantity); err != nil {
			return err
		}

		movement := models.StockMovement{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			Type:           models.MovementTypeReceipt,
			NomenclatureId: input.NomenclatureId,
			WarehouseToId:  &input.WarehouseId,
			BatchId:        &batch.ID,
			Quantity:       input.Quantity,
			UnitPrice:      input.PurchasePrice,
			Notes:          input.Notes,
			CreatedBy:      utils.GetUserNameFromContextOrEmpty(ctx),
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return err
		}

		if err := models.UpdateNomenclaturePurchasePrice(tx, ctx, input.OrganizationId, input.NomenclatureId, input.PurchasePrice); err != nil {
			return err
		}

		if input.SupplierId != nil {
			priceRecord := models.SupplierNomenclature{
				ID:             uuid.NewString(),
				OrganizationId: input.OrganizationId,
				SupplierId:     *input.SupplierId,
				NomenclatureId: input.NomenclatureId,
				LastPrice:      input.PurchasePrice,
			}
			if err := models.UpsertSupplierPrice(tx, ctx, &priceRecord); err != nil {
				config.LogError(logger, "workflow", "ProcessReceipt", "supplier price upsert", input.NomenclatureId, err)
			}

			debt := models.Debt{
				ID:             uuid.NewString(),
				OrganizationId: input.OrganizationId,
				SupplierId:     *input.SupplierId,
				BatchId:        &batch.ID,
				Amount:         input.Quantity.Mul(input.PurchasePrice),
			}
			if err := tx.WithContext(ctx).Create(&debt).Error; err != nil {
				config.LogError(logger, "workflow", "ProcessReceipt", "advisory debt create", input.SupplierId, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// ProcessWriteOff removes stock manually. All-or-nothing: an insufficient
// draw aborts the whole operation with no partial decrement.
func ProcessWriteOff(ctx context.Context, input *WriteOffRequest) error {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Quantity.IsPositive() {
		return errors.New("write-off quantity must be positive")
	}
	if err := utils.ValidateResourceId[models.Warehouse](ctx, input.OrganizationId, input.WarehouseId); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		nom, err := models.GetNomenclature(tx, ctx, input.OrganizationId, input.NomenclatureId)
		if err != nil {
			return err
		}

		allocations, err := FifoWriteOff(tx, ctx, input.OrganizationId, input.WarehouseId, input.NomenclatureId, input.Quantity, nom.Name)
		if err != nil {
			return err
		}

		for _, allocation := range allocations {
			batchId := allocation.BatchId
			movement := models.StockMovement{
				ID:              uuid.NewString(),
				OrganizationId:  input.OrganizationId,
				Type:            models.MovementTypeWriteOff,
				NomenclatureId:  input.NomenclatureId,
				WarehouseFromId: &input.WarehouseId,
				BatchId:         &batchId,
				Quantity:        allocation.Qty,
				UnitPrice:       allocation.UnitPrice,
				Reason:          input.Reason,
				Notes:           input.Notes,
				CreatedBy:       utils.GetUserNameFromContextOrEmpty(ctx),
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return err
			}
		}

		return models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseId, input.NomenclatureId, input.Quantity.Neg())
	})
}

// ProcessTransfer moves stock between warehouses: FIFO out of the source,
// one destination batch priced at the draw's weighted cost, both balances
// adjusted, one transfer movement.
func ProcessTransfer(ctx context.Context, input *TransferRequest) error {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Quantity.IsPositive() {
		return errors.New("transfer quantity must be positive")
	}
	for _, warehouseId := range []string{input.WarehouseFromId, input.WarehouseToId} {
		if err := utils.ValidateResourceId[models.Warehouse](ctx, input.OrganizationId, warehouseId); err != nil {
			return err
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		nom, err := models.GetNomenclature(tx, ctx, input.OrganizationId, input.NomenclatureId)
		if err != nil {
			return err
		}
		if nom.IsService() {
			return errors.New("service items are not stock-tracked")
		}

		allocations, err := FifoWriteOff(tx, ctx, input.OrganizationId, input.WarehouseFromId, input.NomenclatureId, input.Quantity, nom.Name)
		if err != nil {
			return err
		}
		unitCost := weightedUnitCost(allocations)

		destBatch := models.Batch{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			WarehouseId:    input.WarehouseToId,
			NomenclatureId: input.NomenclatureId,
			PurchasePrice:  unitCost,
			Quantity:       input.Quantity,
			Remaining:      input.Quantity,
			ArrivalDate:    time.Now(),
			Notes:          input.Notes,
		}
		if err := tx.WithContext(ctx).Create(&destBatch).Error; err != nil {
			return err
		}

		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseFromId, input.NomenclatureId, input.Quantity.Neg()); err != nil {
			return err
		}
		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseToId, input.NomenclatureId, input.Quantity); err != nil {
			return err
		}

		movement := models.StockMovement{
			ID:              uuid.NewString(),
			OrganizationId:  input.OrganizationId,
			Type:            models.MovementTypeTransfer,
			NomenclatureId:  input.NomenclatureId,
			WarehouseFromId: &input.WarehouseFromId,
			WarehouseToId:   &input.WarehouseToId,
			BatchId:         &destBatch.ID,
			Quantity:        input.Quantity,
			UnitPrice:       unitCost,
			Notes:           input.Notes,
			CreatedBy:       utils.GetUserNameFromContextOrEmpty(ctx),
		}
		return tx.WithContext(ctx).Create(&movement).Error
	})
}
