package reports

import (
	"context"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/floradesk/flora_backend/utils"
	"github.com/shopspring/decimal"
)

// ShiftReportResponse is the financial summary of one cash shift. Read-only,
// computed from committed data without locks.
type ShiftReportResponse struct {
	ShiftId       string          `json:"ShiftId"`
	Revenue       decimal.Decimal `json:"Revenue"`
	Cost          decimal.Decimal `json:"Cost"`
	GrossProfit   decimal.Decimal `json:"GrossProfit"`
	MarginPercent decimal.Decimal `json:"MarginPercent"`
	SalesCount    int             `json:"SalesCount"`
	AverageTicket decimal.Decimal `json:"AverageTicket"`
	BalanceAtOpen decimal.Decimal `json:"BalanceAtOpen"`
	Expected      decimal.Decimal `json:"Expected"`
	Actual        decimal.Decimal `json:"Actual"`
	Discrepancy   decimal.Decimal `json:"Discrepancy"`
}

type shiftSalesRow struct {
	Revenue    decimal.Decimal
	Cost       decimal.Decimal
	SalesCount int
}

func GetShiftReport(ctx context.Context, organizationId string, shiftId string) (*ShiftReportResponse, error) {
	if organizationId == "" {
		return nil, utils.ErrorOrganizationRequired
	}
	db := config.GetDB()

	shift, err := utils.FetchModel[models.CashShift](ctx, organizationId, shiftId)
	if err != nil {
		return nil, err
	}

	sql := `
SELECT
    COALESCE(SUM(sales.total), 0) AS revenue,
    COALESCE(SUM(items.cost), 0) AS cost,
    COUNT(sales.id) AS sales_count
FROM
    sales
    LEFT JOIN (
        SELECT sale_id, SUM(quantity * unit_cost) AS cost
        FROM sale_items
        GROUP BY sale_id
    ) AS items ON items.sale_id = sales.id
WHERE
    sales.organization_id = @organizationId
    AND sales.cash_shift_id = @shiftId
    AND sales.status = 'completed'
    AND sales.is_paid = true
`

	var row shiftSalesRow
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"organizationId": organizationId,
		"shiftId":        shiftId,
	}).Scan(&row).Error; err != nil {
		return nil, err
	}

	grossProfit := row.Revenue.Sub(row.Cost)
	margin := decimal.Zero
	if row.Revenue.IsPositive() {
		margin = grossProfit.Mul(decimal.NewFromInt(100)).DivRound(row.Revenue, 2)
	}
	averageTicket := decimal.Zero
	if row.SalesCount > 0 {
		averageTicket = row.Revenue.DivRound(decimal.NewFromInt(int64(row.SalesCount)), 2)
	}

	return &ShiftReportResponse{
		ShiftId:       shift.ID,
		Revenue:       row.Revenue,
		Cost:          row.Cost,
		GrossProfit:   grossProfit,
		MarginPercent: margin,
		SalesCount:    row.SalesCount,
		AverageTicket: averageTicket,
		BalanceAtOpen: shift.BalanceAtOpen,
		Expected:      shift.Expected,
		Actual:        shift.Actual,
		Discrepancy:   shift.Discrepancy,
	}, nil
}
