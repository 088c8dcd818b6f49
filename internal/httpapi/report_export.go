package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"tradeledger/backend/internal/domain"
)

func sortedProductNames(report domain.ReportSummary) []string {
	names := make([]string, 0, len(report.ProductStats))
	for name := range report.ProductStats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func reportToCSV(report domain.ReportSummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"start_date", report.StartDate},
		{"end_date", report.EndDate},
		{"total_sales", strconv.Itoa(report.TotalSales)},
		{"total_revenue", report.TotalRevenue.StringFixed(2)},
		{},
		{"product", "quantity", "revenue"},
	}
	for _, name := range sortedProductNames(report) {
		stat := report.ProductStats[name]
		rows = append(rows, []string{name, strconv.Itoa(stat.Quantity), stat.Revenue.StringFixed(2)})
	}

	rows = append(rows, []string{}, []string{"sale_id", "sold_at", "product", "customer", "quantity", "total_price"})
	for _, sale := range report.Sales {
		rows = append(rows, []string{
			sale.ID,
			sale.SoldAt.UTC().Format(time.RFC3339),
			sale.ProductName,
			sale.CustomerName,
			strconv.Itoa(sale.Quantity),
			sale.TotalPrice.StringFixed(2),
		})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const pdfFontFamily = "report"

// pdfWriter picks the font for the export. With a UTF-8 TrueType font every
// script renders as is; the core Arial fallback only covers cp1252, so text is
// translated and unmappable runes degrade to '.'.
func pdfWriter(fontTTF []byte) (*gofpdf.Fpdf, string, func(string) string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	if len(fontTTF) == 0 {
		return pdf, "Arial", pdf.UnicodeTranslatorFromDescriptor(""), pdf.Error()
	}
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "", fontTTF)
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "B", fontTTF)
	return pdf, pdfFontFamily, func(s string) string { return s }, pdf.Error()
}

func reportToPDF(report domain.ReportSummary, fontTTF []byte) ([]byte, error) {
	pdf, family, tr, err := pdfWriter(fontTTF)
	if err != nil {
		return nil, fmt.Errorf("load pdf font: %w", err)
	}
	pdf.AddPage()
	pdf.SetFont(family, "B", 16)
	pdf.CellFormat(0, 10, "Sales Report", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont(family, "", 12)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Date Range: %s to %s", report.StartDate, report.EndDate)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Total Sales: %d", report.TotalSales), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Total Revenue: %s", report.TotalRevenue.StringFixed(2)), "", 1, "L", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont(family, "B", 12)
	pdf.CellFormat(90, 10, "Product", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 10, "Quantity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 10, "Revenue", "1", 1, "C", false, 0, "")

	pdf.SetFont(family, "", 12)
	for _, name := range sortedProductNames(report) {
		stat := report.ProductStats[name]
		pdf.CellFormat(90, 10, tr(name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 10, strconv.Itoa(stat.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 10, stat.Revenue.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	if len(report.Sales) > 0 {
		pdf.Ln(8)
		pdf.SetFont(family, "B", 11)
		pdf.CellFormat(40, 9, "Date", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 9, "Product", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 9, "Customer", "1", 0, "C", false, 0, "")
		pdf.CellFormat(15, 9, "Qty", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 9, "Total", "1", 1, "C", false, 0, "")

		pdf.SetFont(family, "", 10)
		for _, sale := range report.Sales {
			pdf.CellFormat(40, 9, sale.SoldAt.UTC().Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(50, 9, tr(sale.ProductName), "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 9, tr(sale.CustomerName), "1", 0, "L", false, 0, "")
			pdf.CellFormat(15, 9, strconv.Itoa(sale.Quantity), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 9, sale.TotalPrice.StringFixed(2), "1", 1, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func reportFilename(report domain.ReportSummary, ext string) string {
	return fmt.Sprintf("attachment; filename=\"sales-report-%s-%s.%s\"", report.StartDate, report.EndDate, ext)
}
