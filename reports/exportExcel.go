package reports

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportStockSummaryExcel writes the stock summary report to an xlsx file.
func ExportStockSummaryExcel(ctx context.Context, organizationId string, filename string) error {

	data, err := GetStockSummaryReport(ctx, organizationId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	_, err = f.NewSheet("Sheet1")
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Nomenclature")
	f.SetCellValue("Sheet1", "B1", "TotalQuantity")
	f.SetCellValue("Sheet1", "C1", "AvgCost")
	f.SetCellValue("Sheet1", "D1", "Warehouses")

	// Add data
	for i, d := range data {
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), d.NomenclatureName)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), d.TotalQuantity.String())
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), d.AvgCost.String())
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), d.WarehouseCount)
	}

	return f.SaveAs(filename)
}

// ExportShiftReportExcel writes one shift's financial summary to an xlsx
// file, one row per metric.
func ExportShiftReportExcel(ctx context.Context, organizationId string, shiftId string, filename string) error {

	report, err := GetShiftReport(ctx, organizationId, shiftId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	_, err = f.NewSheet("Sheet1")
	if err != nil {
		return err
	}

	rows := [][2]string{
		{"Revenue", report.Revenue.String()},
		{"Cost", report.Cost.String()},
		{"GrossProfit", report.GrossProfit.String()},
		{"MarginPercent", report.MarginPercent.String()},
		{"SalesCount", fmt.Sprint(report.SalesCount)},
		{"AverageTicket", report.AverageTicket.String()},
		{"BalanceAtOpen", report.BalanceAtOpen.String()},
		{"Expected", report.Expected.String()},
		{"Actual", report.Actual.String()},
		{"Discrepancy", report.Discrepancy.String()},
	}
	for i, row := range rows {
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+1), row[0])
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+1), row[1])
	}

	return f.SaveAs(filename)
}
