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

type AssembleComponent struct {
	NomenclatureId string          `validate:"required,uuid4"`
	Quantity       decimal.Decimal `validate:"required"` // per assembled unit
	WarehouseId    *string         `validate:"omitempty,uuid4"`
}

type AssembleRequest struct {
	OrganizationId string              `validate:"required,uuid4"`
	WarehouseId    string              `validate:"required,uuid4"`
	BouquetId      string              `validate:"required,uuid4"`
	Count          decimal.Decimal     `validate:"required"`
	Components     []AssembleComponent `validate:"omitempty,dive"`
	Notes          string
}

type DisassemblyAction string

const (
	DisassemblyActionReturn   DisassemblyAction = "return"
	DisassemblyActionWriteOff DisassemblyAction = "write_off"
	DisassemblyActionAdd      DisassemblyAction = "add"
)

type DisassemblyRow struct {
	NomenclatureId string            `validate:"required,uuid4"`
	Quantity       decimal.Decimal   `validate:"required"`
	Action         DisassemblyAction `validate:"required,oneof=return write_off add"`
	Reason         models.WriteOffReason
	WarehouseId    *string `validate:"omitempty,uuid4"`
}

type DisassembleRequest struct {
	OrganizationId string           `validate:"required,uuid4"`
	WarehouseId    string           `validate:"required,uuid4"`
	BouquetId      string           `validate:"required,uuid4"`
	Rows           []DisassemblyRow `validate:"required,min=1,dive"`
	Notes          string
}

type CorrectBouquetRequest struct {
	OrganizationId string           `validate:"required,uuid4"`
	WarehouseId    string           `validate:"required,uuid4"`
	BouquetId      string           `validate:"required,uuid4"`
	Rows           []DisassemblyRow `validate:"required,min=1,dive"`
	Notes          string
}

// AssembleBouquet builds finished goods out of components in one atomic
// unit: FIFO-consume each stock-tracked component for the whole run, create
// one finished batch priced at total component cost per unit, refresh the
// finished item's cached cost.
func AssembleBouquet(ctx context.Context, input *AssembleRequest) (*models.Batch, error) {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Count.IsPositive() {
		return nil, errors.New("assembled count must be positive")
	}

	var finished *models.Batch
	err := db.Transaction(func(tx *gorm.DB) error {
		bouquet, err := models.GetNomenclature(tx, ctx, input.OrganizationId, input.BouquetId)
		if err != nil {
			return err
		}
		if bouquet.IsService() {
			return errors.New("service items are not stock-tracked")
		}

		components := input.Components
		if len(components) == 0 {
			template, err := models.GetBouquetComponents(tx, ctx, input.OrganizationId, input.BouquetId)
			if err != nil {
				return err
			}
			for _, line := range template {
				components = append(components, AssembleComponent{
					NomenclatureId: line.ComponentId,
					Quantity:       line.Quantity,
				})
			}
		}
		if len(components) == 0 {
			return errors.New("bouquet has no components")
		}

		componentIds := make([]string, 0, len(components))
		for _, component := range components {
			if !component.Quantity.IsPositive() {
				return errors.New("component quantity must be positive")
			}
			componentIds = append(componentIds, component.NomenclatureId)
		}
		if err := utils.ValidateResourcesId[models.Nomenclature](ctx, input.OrganizationId, componentIds); err != nil {
			return err
		}

		totalCost := decimal.Zero
		createdBy := utils.GetUserNameFromContextOrEmpty(ctx)

		for _, component := range components {
			nom, err := models.GetNomenclature(tx, ctx, input.OrganizationId, component.NomenclatureId)
			if err != nil {
				return err
			}
			// services contribute no stock and no cost
			if nom.IsService() {
				continue
			}

			warehouseId := input.WarehouseId
			if component.WarehouseId != nil {
				warehouseId = *component.WarehouseId
			}
			needed := component.Quantity.Mul(input.Count)

			allocations, err := FifoWriteOff(tx, ctx, input.OrganizationId, warehouseId, component.NomenclatureId, needed, nom.Name)
			if err != nil {
				return err
			}

			for _, allocation := range allocations {
				totalCost = totalCost.Add(allocation.Qty.Mul(allocation.UnitPrice))
				batchId := allocation.BatchId
				movement := models.StockMovement{
					ID:              uuid.NewString(),
					OrganizationId:  input.OrganizationId,
					Type:            models.MovementTypeAssembly,
					NomenclatureId:  component.NomenclatureId,
					WarehouseFromId: &warehouseId,
					BatchId:         &batchId,
					Quantity:        allocation.Qty,
					UnitPrice:       allocation.UnitPrice,
					Notes:           input.Notes,
					CreatedBy:       createdBy,
				}
				if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
					return err
				}
			}

			if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, warehouseId, component.NomenclatureId, needed.Neg()); err != nil {
				return err
			}
		}

		unitCost := totalCost.DivRound(input.Count, 4)

		finished = &models.Batch{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			WarehouseId:    input.WarehouseId,
			NomenclatureId: input.BouquetId,
			PurchasePrice:  unitCost,
			Quantity:       input.Count,
			Remaining:      input.Count,
			ArrivalDate:    time.Now(),
			Notes:          input.Notes,
		}
		if err := tx.WithContext(ctx).Create(finished).Error; err != nil {
			return err
		}
		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseId, input.BouquetId, input.Count); err != nil {
			return err
		}

		movement := models.StockMovement{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			Type:           models.MovementTypeReceipt,
			NomenclatureId: input.BouquetId,
			WarehouseToId:  &input.WarehouseId,
			BatchId:        &finished.ID,
			Quantity:       input.Count,
			UnitPrice:      unitCost,
			Notes:          input.Notes,
			CreatedBy:      createdBy,
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return err
		}

		return models.UpdateNomenclaturePurchasePrice(tx, ctx, input.OrganizationId, input.BouquetId, unitCost)
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}

// DisassembleBouquet tears one finished unit back into components. Returned
// components come back on stock as new batches at their last known cost;
// written-off components with no tracked batches fall back to a batchless
// movement plus a balance decrement rather than aborting the disassembly.
func DisassembleBouquet(ctx context.Context, input *DisassembleRequest) error {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := validateDisassemblyRows(input.Rows); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		bouquet, err := models.GetNomenclature(tx, ctx, input.OrganizationId, input.BouquetId)
		if err != nil {
			return err
		}

		one := decimal.NewFromInt(1)
		allocations, err := FifoWriteOff(tx, ctx, input.OrganizationId, input.WarehouseId, input.BouquetId, one, bouquet.Name)
		if err != nil {
			return err
		}
		createdBy := utils.GetUserNameFromContextOrEmpty(ctx)

		for _, allocation := range allocations {
			batchId := allocation.BatchId
			movement := models.StockMovement{
				ID:              uuid.NewString(),
				OrganizationId:  input.OrganizationId,
				Type:            models.MovementTypeWriteOff,
				NomenclatureId:  input.BouquetId,
				WarehouseFromId: &input.WarehouseId,
				BatchId:         &batchId,
				Quantity:        allocation.Qty,
				UnitPrice:       allocation.UnitPrice,
				Reason:          models.WriteOffReasonDisassembly,
				Notes:           input.Notes,
				CreatedBy:       createdBy,
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return err
			}
		}
		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseId, input.BouquetId, one.Neg()); err != nil {
			return err
		}

		for _, row := range input.Rows {
			if err := processDisassemblyRow(tx, ctx, input.OrganizationId, input.WarehouseId, &row, input.Notes, createdBy); err != nil {
				return err
			}
		}
		return nil
	})
}

// CorrectBouquet adjusts a live finished good's component mix: write off the
// finished unit at its FIFO cost, apply the per-row component changes, then
// put the corrected unit back on stock at the original finished cost.
func CorrectBouquet(ctx context.Context, input *CorrectBouquetRequest) error {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := validateDisassemblyRows(input.Rows); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		bouquet, err := models.GetNomenclature(tx, ctx, input.OrganizationId, input.BouquetId)
		if err != nil {
			return err
		}

		one := decimal.NewFromInt(1)
		allocations, err := FifoWriteOff(tx, ctx, input.OrganizationId, input.WarehouseId, input.BouquetId, one, bouquet.Name)
		if err != nil {
			return err
		}
		finishedCost := weightedUnitCost(allocations)
		createdBy := utils.GetUserNameFromContextOrEmpty(ctx)

		for _, allocation := range allocations {
			batchId := allocation.BatchId
			movement := models.StockMovement{
				ID:              uuid.NewString(),
				OrganizationId:  input.OrganizationId,
				Type:            models.MovementTypeWriteOff,
				NomenclatureId:  input.BouquetId,
				WarehouseFromId: &input.WarehouseId,
				BatchId:         &batchId,
				Quantity:        allocation.Qty,
				UnitPrice:       allocation.UnitPrice,
				Reason:          models.WriteOffReasonCorrection,
				Notes:           input.Notes,
				CreatedBy:       createdBy,
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return err
			}
		}
		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseId, input.BouquetId, one.Neg()); err != nil {
			return err
		}

		for _, row := range input.Rows {
			if err := processDisassemblyRow(tx, ctx, input.OrganizationId, input.WarehouseId, &row, input.Notes, createdBy); err != nil {
				return err
			}
		}

		// the corrected unit keeps the cost it carried before correction
		corrected := models.Batch{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			WarehouseId:    input.WarehouseId,
			NomenclatureId: input.BouquetId,
			PurchasePrice:  finishedCost,
			Quantity:       one,
			Remaining:      one,
			ArrivalDate:    time.Now(),
			Notes:          input.Notes,
		}
		if err := tx.WithContext(ctx).Create(&corrected).Error; err != nil {
			return err
		}
		if err := models.AdjustStockBalance(tx, ctx, input.OrganizationId, input.WarehouseId, input.BouquetId, one); err != nil {
			return err
		}

		movement := models.StockMovement{
			ID:             uuid.NewString(),
			OrganizationId: input.OrganizationId,
			Type:           models.MovementTypeReceipt,
			NomenclatureId: input.BouquetId,
			WarehouseToId:  &input.WarehouseId,
			BatchId:        &corrected.ID,
			Quantity:       one,
			UnitPrice:      finishedCost,
			Notes:          input.Notes,
			CreatedBy:      createdBy,
		}
		return tx.WithContext(ctx).Create(&movement).Error
	})
}

func validateDisassemblyRows(rows []DisassemblyRow) error {
	for _, row := range rows {
		if !row.Quantity.IsPositive() {
			return errors.New("row quantity must be positive")
		}
	}
	return nil
}

// processDisassemblyRow handles one component line of a disassembly or
// correction: return to stock, write off, or add (extra consumption).
func processDisassemblyRow(tx *gorm.DB, ctx context.Context, organizationId string, defaultWarehouseId string, row *DisassemblyRow, notes string, createdBy string) error {
	logger := config.GetLogger()

	nom, err := models.GetNomenclature(tx, ctx, organizationId, row.NomenclatureId)
	if err != nil {
		return err
	}
	if nom.IsService() {
		return nil
	}

	warehouseId := defaultWarehouseId
	if row.WarehouseId != nil {
		warehouseId = *row.WarehouseId
	}

	switch row.Action {
	case DisassemblyActionReturn:
		batch := models.Batch{
			ID:             uuid.NewString(),
			OrganizationId: organizationId,
			WarehouseId:    warehouseId,
			NomenclatureId: row.NomenclatureId,
			PurchasePrice:  nom.LastPurchasePrice,
			Quantity:       row.Quantity,
			Remaining:      row.Quantity,
			ArrivalDate:    time.Now(),
			Notes:          notes,
		}
		if err := tx.WithContext(ctx).Create(&batch).Error; err != nil {
			return err
		}
		if err := models.AdjustStockBalance(tx, ctx, organizationId, warehouseId, row.NomenclatureId, row.Quantity); err != nil {
			return err
		}
		movement := models.StockMovement{
			ID:             uuid.NewString(),
			OrganizationId: organizationId,
			Type:           models.MovementTypeReturn,
			NomenclatureId: row.NomenclatureId,
			WarehouseToId:  &warehouseId,
			BatchId:        &batch.ID,
			Quantity:       row.Quantity,
			UnitPrice:      nom.LastPurchasePrice,
			Notes:          notes,
			CreatedBy:      createdBy,
		}
		return tx.WithContext(ctx).Create(&movement).Error

	case DisassemblyActionWriteOff, DisassemblyActionAdd:
		reason := row.Reason
		if reason == "" {
			reason = models.WriteOffReasonDisassembly
		}

		allocations, err := FifoWriteOff(tx, ctx, organizationId, warehouseId, row.NomenclatureId, row.Quantity, nom.Name)
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			// the component was never actually tracked; write off without a
			// batch link and let the balance go negative
			config.LogError(logger, "workflow", "processDisassemblyRow", "untracked component write-off", row.NomenclatureId, err)
			movement := models.StockMovement{
				ID:              uuid.NewString(),
				OrganizationId:  organizationId,
				Type:            models.MovementTypeWriteOff,
				NomenclatureId:  row.NomenclatureId,
				WarehouseFromId: &warehouseId,
				Quantity:        row.Quantity,
				UnitPrice:       nom.LastPurchasePrice,
				Reason:          reason,
				Notes:           notes,
				CreatedBy:       createdBy,
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return err
			}
			return models.AdjustStockBalance(tx, ctx, organizationId, warehouseId, row.NomenclatureId, row.Quantity.Neg())
		} else if err != nil {
			return err
		}

		for _, allocation := range allocations {
			batchId := allocation.BatchId
			movement := models.StockMovement{
				ID:              uuid.NewString(),
				OrganizationId:  organizationId,
				Type:            models.MovementTypeWriteOff,
				NomenclatureId:  row.NomenclatureId,
				WarehouseFromId: &warehouseId,
				BatchId:         &batchId,
				Quantity:        allocation.Qty,
				UnitPrice:       allocation.UnitPrice,
				Reason:          reason,
				Notes:           notes,
				CreatedBy:       createdBy,
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return err
			}
		}
		return models.AdjustStockBalance(tx, ctx, organizationId, warehouseId, row.NomenclatureId, row.Quantity.Neg())

	default:
		return errors.New("invalid disassembly action")
	}
}
