package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleSyncResult carries the outcome of synchronizing a sale with the stock
// and wallet ledgers. Warnings are soft: a stock shortfall never blocks a
// sale, it is reported here and recorded as a shortage movement.
type SaleSyncResult struct {
	Warnings []string
}

func (r *SaleSyncResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// resolveSaleWarehouse picks the warehouse a sale item draws from:
// the item's already-resolved batch's warehouse, else the trading point's
// default-for-sales warehouse, else any warehouse in the trading point,
// else any warehouse in the organization.
func resolveSaleWarehouse(tx *gorm.DB, ctx context.Context, sale *models.Sale, item *models.SaleItem) (string, error) {

	if item.BatchId != nil {
		var warehouseId string
		err := tx.WithContext(ctx).Model(&models.Batch{}).
			Where("id = ?", *item.BatchId).
			Select("warehouse_id").
			Scan(&warehouseId).Error
		if err != nil {
			return "", err
		}
		if warehouseId != "" {
			return warehouseId, nil
		}
	}

	var warehouses []*models.Warehouse
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND trading_point_id = ? AND is_default_for_sales = true AND is_active = true",
			sale.OrganizationId, sale.TradingPointId).
		Limit(1).
		Find(&warehouses).Error
	if err != nil {
		return "", err
	}
	if len(warehouses) > 0 {
		return warehouses[0].ID, nil
	}

	err = tx.WithContext(ctx).
		Where("organization_id = ? AND trading_point_id = ? AND is_active = true",
			sale.OrganizationId, sale.TradingPointId).
		Order("created_at").
		Limit(1).
		Find(&warehouses).Error
	if err != nil {
		return "", err
	}
	if len(warehouses) > 0 {
		return warehouses[0].ID, nil
	}

	err = tx.WithContext(ctx).
		Where("organization_id = ? AND is_active = true", sale.OrganizationId).
		Order("created_at").
		Limit(1).
		Find(&warehouses).Error
	if err != nil {
		return "", err
	}
	if len(warehouses) > 0 {
		return warehouses[0].ID, nil
	}
	return "", errors.New("organization has no warehouses")
}

// ApplySaleFifo draws the sale's items from stock. Idempotent: a sale-tagged
// movement already existing for this sale means the draw already happened and
// the call is a silent no-op. Shortfalls never fail the sale: the draw is
// capped at availability, the gap becomes an explicit shortage movement and a
// warning, and the balance goes negative.
func ApplySaleFifo(tx *gorm.DB, ctx context.Context, sale *models.Sale) (*SaleSyncResult, error) {
	result := &SaleSyncResult{}

	applied, err := models.HasSaleMovements(tx, ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	if applied {
		return result, nil
	}

	createdBy := utils.GetUserNameFromContextOrEmpty(ctx)

	for i := range sale.Items {
		item := &sale.Items[i]

		nom, err := models.GetNomenclature(tx, ctx, sale.OrganizationId, item.NomenclatureId)
		if err != nil {
			return nil, err
		}
		if nom.IsService() {
			continue
		}

		warehouseId, err := resolveSaleWarehouse(tx, ctx, sale, item)
		if err != nil {
			return nil, err
		}

		batches, err := models.FetchFifoBatches(tx, ctx, sale.OrganizationId, warehouseId, item.NomenclatureId)
		if err != nil {
			return nil, err
		}
		available := decimal.Zero
		for _, batch := range batches {
			available = available.Add(batch.Remaining)
		}

		drawQty := decimal.Min(item.Quantity, available)
		totalCost := decimal.Zero

		if drawQty.IsPositive() {
			allocations, err := allocateFromBatches(batches, drawQty, nom.Name)
			if err != nil {
				return nil, err
			}
			for _, allocation := range allocations {
				if err := models.DecrementBatchRemaining(tx, ctx, allocation.BatchId, allocation.Qty); err != nil {
					return nil, err
				}
				totalCost = totalCost.Add(allocation.Qty.Mul(allocation.UnitPrice))
				batchId := allocation.BatchId
				movement := models.StockMovement{
					ID:              uuid.NewString(),
					OrganizationId:  sale.OrganizationId,
					Type:            models.MovementTypeSale,
					NomenclatureId:  item.NomenclatureId,
					WarehouseFromId: &warehouseId,
					BatchId:         &batchId,
					SaleId:          &sale.ID,
					Quantity:        allocation.Qty,
					UnitPrice:       allocation.UnitPrice,
					CreatedBy:       createdBy,
				}
				if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
					return nil, err
				}
			}
		}

		shortage := item.Quantity.Sub(drawQty)
		if shortage.IsPositive() {
			// cost the untracked part at the last known cost of the key
			shortageCost := nom.LastPurchasePrice
			balance, err := models.GetStockBalance(tx, ctx, sale.OrganizationId, warehouseId, item.NomenclatureId)
			if err != nil {
				return nil, err
			}
			if balance != nil && balance.AvgCost.IsPositive() {
				shortageCost = balance.AvgCost
			}

			movement := models.StockMovement{
				ID:              uuid.NewString(),
				OrganizationId:  sale.OrganizationId,
				Type:            models.MovementTypeSale,
				NomenclatureId:  item.NomenclatureId,
				WarehouseFromId: &warehouseId,
				SaleId:          &sale.ID,
				Quantity:        shortage,
				UnitPrice:       shortageCost,
				IsShortage:      true,
				CreatedBy:       createdBy,
			}
			if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
				return nil, err
			}
			totalCost = totalCost.Add(shortage.Mul(shortageCost))

			result.addWarning("sold %s of %q with only %s in stock; balance goes negative",
				item.Quantity.String(), nom.Name, available.String())
		}

		if err := models.AdjustStockBalance(tx, ctx, sale.OrganizationId, warehouseId, item.NomenclatureId, item.Quantity.Neg()); err != nil {
			return nil, err
		}

		// write the resolved weighted cost back onto the item
		unitCost := utils.SafeDiv(totalCost, item.Quantity)
		item.UnitCost = unitCost
		err = tx.WithContext(ctx).Model(&models.SaleItem{}).
			Where("id = ?", item.ID).
			Update("unit_cost", unitCost).Error
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// RollbackSaleFifo reverses a sale's stock effects: restores every consumed
// batch, restores the balances and deletes the sale-tagged movements.
// Idempotent: with no movements left it is a no-op.
func RollbackSaleFifo(tx *gorm.DB, ctx context.Context, sale *models.Sale) error {
	movements, err := models.FetchSaleMovements(tx, ctx, sale.ID)
	if err != nil {
		return err
	}

	for _, movement := range movements {
		if movement.BatchId != nil {
			if err := models.IncrementBatchRemaining(tx, ctx, *movement.BatchId, movement.Quantity); err != nil {
				return err
			}
		}
		if movement.WarehouseFromId != nil {
			err := models.AdjustStockBalance(tx, ctx, sale.OrganizationId, *movement.WarehouseFromId, movement.NomenclatureId, movement.Quantity)
			if err != nil {
				return err
			}
		}
	}

	return tx.WithContext(ctx).
		Where("type = ? AND sale_id = ?", models.MovementTypeSale, sale.ID).
		Delete(&models.StockMovement{}).Error
}

// SyncSaleTransaction drives the sale's ledger row to its desired state:
// exactly one transaction iff the sale is completed, paid and its payment
// method lands in a wallet; zero otherwise. Create, amend or delete as
// needed, moving wallet balance under row locks each time.
func SyncSaleTransaction(tx *gorm.DB, ctx context.Context, sale *models.Sale) error {

	var walletId *string
	if sale.PaymentMethodId != nil {
		var methods []*models.PaymentMethod
		err := tx.WithContext(ctx).
			Where("id = ?", *sale.PaymentMethodId).
			Limit(1).
			Find(&methods).Error
		if err != nil {
			return err
		}
		if len(methods) > 0 {
			walletId = methods[0].WalletId
		}
	}

	desired := sale.IsCompletedAndPaid() && walletId != nil

	existing, err := models.GetSaleTransaction(tx, ctx, sale.ID)
	if err != nil {
		return err
	}

	switch {
	case desired && existing == nil:
		prefix, err := models.GetNumberPrefix(ctx, sale.TradingPointId)
		if err != nil {
			return err
		}
		txn := models.Transaction{
			ID:             uuid.NewString(),
			OrganizationId: sale.OrganizationId,
			Type:           models.TransactionTypeIncome,
			Amount:         sale.Total,
			WalletToId:     walletId,
			SaleId:         &sale.ID,
			OrderId:        sale.OrderId,
			Description:    "sale " + models.FormatSaleNumber(prefix, sale.Number),
			CreatedBy:      utils.GetUserNameFromContextOrEmpty(ctx),
		}
		return models.CreateTransaction(tx, ctx, &txn)

	case desired && existing != nil:
		sameWallet := existing.WalletToId != nil && *existing.WalletToId == *walletId
		if sameWallet && existing.Amount.Equal(sale.Total) {
			return nil
		}
		// reverse the old credit, amend, apply the new one
		if err := models.ReverseTransactionBalance(tx, ctx, existing); err != nil {
			return err
		}
		err := tx.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"amount":       sale.Total,
				"wallet_to_id": *walletId,
			}).Error
		if err != nil {
			return err
		}
		if _, err := models.LockWallet(tx, ctx, *walletId); err != nil {
			return err
		}
		return models.CreditWallet(tx, ctx, *walletId, sale.Total)

	case !desired && existing != nil:
		return models.DeleteTransaction(tx, ctx, existing)
	}
	return nil
}

// applySaleStats bumps the best-effort counters when a sale becomes
// completed-and-paid: customer totals, loyalty bonuses, promo usage.
func applySaleStats(tx *gorm.DB, ctx context.Context, sale *models.Sale) error {
	if sale.CustomerId != nil {
		bonuses := decimal.Zero
		program, err := models.GetActiveLoyaltyProgram(tx, ctx, sale.OrganizationId)
		if err != nil {
			return err
		}
		if program != nil && program.BonusPercent.IsPositive() {
			bonuses = sale.Total.Mul(program.BonusPercent).DivRound(decimal.NewFromInt(100), 4)
		}
		sale.EarnedBonuses = bonuses
		err = tx.WithContext(ctx).Model(&models.Sale{}).
			Where("id = ?", sale.ID).
			Update("earned_bonuses", bonuses).Error
		if err != nil {
			return err
		}
		if err := models.IncrementCustomerStats(tx, ctx, *sale.CustomerId, sale.Total, bonuses); err != nil {
			return err
		}
	}
	if sale.PromoCodeId != nil {
		if err := models.IncrementPromoCodeUsage(tx, ctx, *sale.PromoCodeId); err != nil {
			return err
		}
	}
	return nil
}

// rollbackSaleStats reverses applySaleStats, floor-clamped at zero.
func rollbackSaleStats(tx *gorm.DB, ctx context.Context, sale *models.Sale) error {
	if sale.CustomerId != nil {
		if err := models.DecrementCustomerStats(tx, ctx, *sale.CustomerId, sale.Total, sale.EarnedBonuses); err != nil {
			return err
		}
	}
	if sale.PromoCodeId != nil {
		if err := models.DecrementPromoCodeUsage(tx, ctx, *sale.PromoCodeId); err != nil {
			return err
		}
	}
	return nil
}

// syncSaleEffects runs the full effect suite for a sale already in its
// desired state inside the caller's transaction.
func syncSaleEffects(tx *gorm.DB, ctx context.Context, sale *models.Sale) (*SaleSyncResult, error) {
	result := &SaleSyncResult{}

	if sale.IsCompletedAndPaid() {
		fifoResult, err := ApplySaleFifo(tx, ctx, sale)
		if err != nil {
			return nil, err
		}
		result.Warnings = append(result.Warnings, fifoResult.Warnings...)
	}

	if err := SyncSaleTransaction(tx, ctx, sale); err != nil {
		return nil, err
	}
	return result, nil
}
