// Package report renders the status overview for operators.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"feeledger/internal/core"
	"feeledger/internal/metrics"
	"feeledger/internal/sheets"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"

	statusSheet  = "status"
	summarySheet = "summary"
)

// StatusXLSX renders one row per student plus a summary sheet with the bucket counts.
func StatusXLSX(rows []core.StudentStatus, generatedAt time.Time) (out []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveExport(FormatXLSX, resultOf(err), time.Since(start)) }()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statusSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}

	header := make([]any, len(sheets.StatusHeader))
	for i, h := range sheets.StatusHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(statusSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	var counts core.StatusCounts
	for i, r := range rows {
		counts.Add(r.Status)
		cells := []any{
			r.Code,
			r.Name,
			r.ClassName,
			r.Fee.Units(),
			r.Balance.Units(),
			string(r.Status),
			r.Amount.Units(),
			r.TotalPaid.Units(),
			r.LastPaymentDate.String(),
			r.StudentID,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(statusSheet, cell, &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Fee Status")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generatedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Students")
	_ = f.SetCellValue(summarySheet, "B4", counts.Total)
	_ = f.SetCellValue(summarySheet, "A5", "Paid")
	_ = f.SetCellValue(summarySheet, "B5", counts.Paid)
	_ = f.SetCellValue(summarySheet, "A6", "Pending")
	_ = f.SetCellValue(summarySheet, "B6", counts.Pending)
	_ = f.SetCellValue(summarySheet, "A7", "Excess")
	_ = f.SetCellValue(summarySheet, "B7", counts.Excess)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// StatusPDF renders the bucket counts and a table of students.
func StatusPDF(rows []core.StudentStatus, generatedAt time.Time) (out []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveExport(FormatPDF, resultOf(err), time.Since(start)) }()

	var counts core.StatusCounts
	for _, r := range rows {
		counts.Add(r.Status)
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fee Status")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Students: %d   Paid: %d   Pending: %d   Excess: %d",
		counts.Total, counts.Paid, counts.Pending, counts.Excess))
	pdf.Ln(8)

	widths := []float64{25, 55, 30, 25, 25, 22, 25, 28, 30}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range sheets.StatusHeader[:len(widths)] {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, r := range rows {
		cells := sheets.StatusRow(r)
		for i := range widths {
			align := "L"
			if i >= 3 && i <= 7 && i != 5 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, cells[i], "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func resultOf(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
