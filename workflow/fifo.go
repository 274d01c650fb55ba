package workflow

import (
	"context"
	"fmt"

	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InsufficientStockError struct {
	NomenclatureName string
	Requested        decimal.Decimal
	Available        decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %q: requested %s, available %s",
		e.NomenclatureName, e.Requested.String(), e.Available.String())
}

// FifoAllocation is one slice of a FIFO draw: which batch, how much of it,
// and at what purchase cost.
type FifoAllocation struct {
	BatchId   string
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
}

// allocateFromBatches walks already-ordered batches oldest-first and splits
// qty across them. All-or-nothing: when the batches cannot cover qty it
// returns InsufficientStockError and no allocations.
func allocateFromBatches(batches []*models.Batch, qty decimal.Decimal, nomenclatureName string) ([]FifoAllocation, error) {
	available := decimal.Zero
	for _, batch := range batches {
		available = available.Add(batch.Remaining)
	}
	if available.LessThan(qty) {
		return nil, &InsufficientStockError{
			NomenclatureName: nomenclatureName,
			Requested:        qty,
			Available:        available,
		}
	}

	allocations := make([]FifoAllocation, 0)
	left := qty
	for _, batch := range batches {
		if !left.IsPositive() {
			break
		}
		take := decimal.Min(batch.Remaining, left)
		if !take.IsPositive() {
			continue
		}
		allocations = append(allocations, FifoAllocation{
			BatchId:   batch.ID,
			Qty:       take,
			UnitPrice: batch.PurchasePrice,
		})
		left = left.Sub(take)
	}
	return allocations, nil
}

// weightedUnitCost collapses a draw into one per-unit cost,
// Σ(qty × price) / Σ qty.
func weightedUnitCost(allocations []FifoAllocation) decimal.Decimal {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, a := range allocations {
		totalQty = totalQty.Add(a.Qty)
		totalValue = totalValue.Add(a.Qty.Mul(a.UnitPrice))
	}
	return utils.SafeDiv(totalValue, totalQty)
}

// FifoWriteOff locks the stock key's live batches, allocates qty oldest-first
// and decrements each consumed batch. The row locks live until the enclosing
// transaction commits, so two concurrent draws against the same batches
// serialize. Callers are responsible for the balance adjustment and the audit
// movement.
func FifoWriteOff(tx *gorm.DB, ctx context.Context, organizationId string, warehouseId string, nomenclatureId string, qty decimal.Decimal, nomenclatureName string) ([]FifoAllocation, error) {

	batches, err := models.FetchFifoBatches(tx, ctx, organizationId, warehouseId, nomenclatureId)
	if err != nil {
		return nil, err
	}

	allocations, err := allocateFromBatches(batches, qty, nomenclatureName)
	if err != nil {
		return nil, err
	}

	for _, allocation := range allocations {
		if err := models.DecrementBatchRemaining(tx, ctx, allocation.BatchId, allocation.Qty); err != nil {
			return nil, err
		}
	}
	return allocations, nil
}
