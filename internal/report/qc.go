// Package report builds the quality-control workbook for a purchase order.
package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kalambet/bidfetch/internal/storage"
)

// SheetName is the only sheet of a QC workbook.
const SheetName = "QC"

// ContentType is the MIME type of an xlsx file.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{"Work Order #", "Item #", "Order Qty", "Sample Size", "Passed Qty", "Rejected Qty"}

// sampleSizes maps an upper bound on order quantity to the number of units
// to inspect. Quantities above the last bound use maxSample.
var sampleSizes = []struct{ upTo, sample int }{
	{15, 2},
	{25, 3},
	{90, 5},
	{150, 8},
	{280, 13},
	{500, 20},
	{1200, 32},
	{3200, 50},
	{10000, 80},
	{35000, 125},
	{150000, 200},
	{500000, 315},
}

const maxSample = 500

// SampleQuantity returns how many units of an order of qty to inspect.
func SampleQuantity(qty int) int {
	for _, s := range sampleSizes {
		if qty <= s.upTo {
			return s.sample
		}
	}
	return maxSample
}

// QCFileName is the attachment name for a PO's workbook: YYYY-MM-DD-<po>-qc.xlsx.
func QCFileName(poNumber string, now time.Time) string {
	return fmt.Sprintf("%s-%s-qc.xlsx", now.Format("2006-01-02"), poNumber)
}

// QCWorkbook lays out one row per line item with its sample size. Passed
// and rejected quantities are left for the inspector.
func QCWorkbook(poNumber string, items []storage.LineItem) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("styling header: %w", err)
	}

	for i, it := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := []any{poNumber, it.ItemNumber, it.Qty, SampleQuantity(it.Qty), nil, nil}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "F", 16); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freezing header: %w", err)
	}
	return f, nil
}
