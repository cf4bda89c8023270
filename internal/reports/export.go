package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// BuildBillingPDF renders a minimal PDF for a billing report.
func BuildBillingPDF(report *BillingReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Water Billing Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Vendor: %s", report.VendorName))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Supply Line: %s", report.SupplyLineName))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		report.PeriodStart.Format("2006-01-02"), report.PeriodEnd.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", report.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Metric", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)

	rows := []struct {
		label string
		value string
	}{
		{"Total Volume (m³)", fmt.Sprintf("%.2f", report.TotalVolume)},
		{"Peak Flow Rate (L/s)", fmt.Sprintf("%.2f", report.PeakFlowRate)},
		{"Average Flow Rate (L/s)", fmt.Sprintf("%.2f", report.AverageFlowRate)},
		{"Downtime (minutes)", fmt.Sprintf("%d", report.DowntimeMinutes)},
		{"Alarms Raised", fmt.Sprintf("%d", report.AlarmCount)},
		{"Rate per m³", fmt.Sprintf("%.2f", report.BillingRate)},
		{"Amount", fmt.Sprintf("%.2f", report.Amount)},
	}
	for _, row := range rows {
		pdf.CellFormat(90, 6, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, row.value, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillingXLSX renders a minimal XLSX for a billing report.
func BuildBillingXLSX(report *BillingReport) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "billing"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Water Billing Report")
	_ = f.SetCellValue(sheet, "A3", "Vendor")
	_ = f.SetCellValue(sheet, "B3", report.VendorName)
	_ = f.SetCellValue(sheet, "A4", "Supply Line")
	_ = f.SetCellValue(sheet, "B4", report.SupplyLineName)
	_ = f.SetCellValue(sheet, "A5", "Period Start")
	_ = f.SetCellValue(sheet, "B5", report.PeriodStart.Format("2006-01-02"))
	_ = f.SetCellValue(sheet, "A6", "Period End")
	_ = f.SetCellValue(sheet, "B6", report.PeriodEnd.Format("2006-01-02"))
	_ = f.SetCellValue(sheet, "A7", "Total Volume (m³)")
	_ = f.SetCellValue(sheet, "B7", report.TotalVolume)
	_ = f.SetCellValue(sheet, "A8", "Peak Flow Rate (L/s)")
	_ = f.SetCellValue(sheet, "B8", report.PeakFlowRate)
	_ = f.SetCellValue(sheet, "A9", "Average Flow Rate (L/s)")
	_ = f.SetCellValue(sheet, "B9", report.AverageFlowRate)
	_ = f.SetCellValue(sheet, "A10", "Downtime (minutes)")
	_ = f.SetCellValue(sheet, "B10", report.DowntimeMinutes)
	_ = f.SetCellValue(sheet, "A11", "Alarms Raised")
	_ = f.SetCellValue(sheet, "B11", report.AlarmCount)
	_ = f.SetCellValue(sheet, "A12", "Rate per m³")
	_ = f.SetCellValue(sheet, "B12", report.BillingRate)
	_ = f.SetCellValue(sheet, "A13", "Amount")
	_ = f.SetCellValue(sheet, "B13", report.Amount)
	_ = f.SetCellValue(sheet, "A14", "Status")
	_ = f.SetCellValue(sheet, "B14", string(report.Status))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
