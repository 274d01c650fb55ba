package reports

import (
	"context"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/utils"
	"github.com/shopspring/decimal"
)

// StockSummaryResponse aggregates availability of one item across all
// warehouses. Service items never appear: they carry no stock.
type StockSummaryResponse struct {
	NomenclatureId   string          `json:"NomenclatureId"`
	NomenclatureName string          `json:"NomenclatureName"`
	TotalQuantity    decimal.Decimal `json:"TotalQuantity"`
	AvgCost          decimal.Decimal `json:"AvgCost"`
	WarehouseCount   int             `json:"WarehouseCount"`
}

// NegativeStockResponse is one stock key that went below zero after sales
// in the negative.
type NegativeStockResponse struct {
	NomenclatureId   string          `json:"NomenclatureId"`
	NomenclatureName string          `json:"NomenclatureName"`
	WarehouseId      string          `json:"WarehouseId"`
	WarehouseName    string          `json:"WarehouseName"`
	Quantity         decimal.Decimal `json:"Quantity"`
}

func GetStockSummaryReport(ctx context.Context, organizationId string) ([]*StockSummaryResponse, error) {
	if organizationId == "" {
		return nil, utils.ErrorOrganizationRequired
	}

	sql := `
SELECT
    sb.nomenclature_id,
    nomenclatures.name AS nomenclature_name,
    SUM(sb.quantity) AS total_quantity,
    CASE
        WHEN SUM(sb.quantity) > 0 THEN SUM(sb.quantity * sb.avg_cost) / SUM(sb.quantity)
        ELSE 0
    END AS avg_cost,
    COUNT(DISTINCT sb.warehouse_id) AS warehouse_count
FROM
    stock_balances sb
    LEFT JOIN nomenclatures ON nomenclatures.id = sb.nomenclature_id
WHERE
    sb.organization_id = @organizationId
    AND nomenclatures.type <> 'service'
GROUP BY sb.nomenclature_id, nomenclatures.name
ORDER BY nomenclatures.name
`

	var records []*StockSummaryResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"organizationId": organizationId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func GetNegativeStockReport(ctx context.Context, organizationId string) ([]*NegativeStockResponse, error) {
	if organizationId == "" {
		return nil, utils.ErrorOrganizationRequired
	}

	sql := `
SELECT
    sb.nomenclature_id,
    nomenclatures.name AS nomenclature_name,
    sb.warehouse_id,
    warehouses.name AS warehouse_name,
    sb.quantity
FROM
    stock_balances sb
    LEFT JOIN nomenclatures ON nomenclatures.id = sb.nomenclature_id
    LEFT JOIN warehouses ON warehouses.id = sb.warehouse_id
WHERE
    sb.organization_id = @organizationId
    AND sb.quantity < 0
ORDER BY sb.quantity
`

	var records []*NegativeStockResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"organizationId": organizationId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
