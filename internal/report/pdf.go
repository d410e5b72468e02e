package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

const (
	pageMargin   = 15.0
	productWidth = 48
)

var methodLabels = map[domain.PaymentMethod]string{
	domain.PaymentPix:      "Pix",
	domain.PaymentMaquina:  "Máquina",
	domain.PaymentDinheiro: "Dinheiro",
}

// renderPDF lays out header, sales, expenses and the summary block. Document
// dates are pinned to the business day so output depends on the report only.
func renderPDF(report domain.ClosingReport, business string, loc *time.Location) ([]byte, error) {
	day, err := time.ParseInLocation(ledger.DateLayout, report.Date, loc)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(day)
	pdf.SetModificationDate(day)
	pdf.SetTitle("Fechamento de caixa "+report.Date, true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, tr("FECHAMENTO DE CAIXA - "+business), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 6, "Data: "+day.Format("02/01/2006"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	colTime := contentW * 0.12
	colProduct := contentW * 0.40
	colMethod := contentW * 0.16
	colAmount := contentW * 0.16
	colChange := contentW * 0.16

	sectionTitle(pdf, contentW, tr(fmt.Sprintf("Vendas (%d)", len(report.Sales))))
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(colTime, 6, "Hora", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colProduct, 6, "Produto", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colMethod, 6, "Pagamento", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colAmount, 6, "Valor", "B", 0, "R", false, 0, "")
	pdf.CellFormat(colChange, 6, "Troco", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, sale := range report.Sales {
		pdf.CellFormat(colTime, 5, sale.CreatedAt.In(loc).Format("15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(colProduct, 5, tr(truncate(sale.Product, productWidth)), "", 0, "L", false, 0, "")
		pdf.CellFormat(colMethod, 5, tr(methodLabel(sale.PaymentMethod)), "", 0, "L", false, 0, "")
		pdf.CellFormat(colAmount, 5, brl(sale.Amount), "", 0, "R", false, 0, "")
		pdf.CellFormat(colChange, 5, brl(sale.Change), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	sectionTitle(pdf, contentW, tr(fmt.Sprintf("Gastos (%d)", len(report.Expenses))))
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(colTime, 6, "Hora", "B", 0, "L", false, 0, "")
	pdf.CellFormat(contentW-colTime-colAmount, 6, tr("Descrição"), "B", 0, "L", false, 0, "")
	pdf.CellFormat(colAmount, 6, "Valor", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, expense := range report.Expenses {
		pdf.CellFormat(colTime, 5, expense.CreatedAt.In(loc).Format("15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW-colTime-colAmount, 5, tr(truncate(expense.Description, productWidth+16)), "", 0, "L", false, 0, "")
		pdf.CellFormat(colAmount, 5, brl(expense.Amount), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	sectionTitle(pdf, contentW, "Resumo")
	labelW := contentW - colAmount
	summary := []struct {
		label string
		value decimal.Decimal
	}{
		{"Pix", report.ByPayment.Pix},
		{"Máquina", report.ByPayment.Maquina},
		{"Dinheiro", report.ByPayment.Dinheiro},
	}
	if !report.ByPayment.Outros.IsZero() {
		summary = append(summary, struct {
			label string
			value decimal.Decimal
		}{"Outros", report.ByPayment.Outros})
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range summary {
		pdf.CellFormat(labelW, 6, tr(line.label), "", 0, "L", false, 0, "")
		pdf.CellFormat(colAmount, 6, brl(line.value), "", 1, "R", false, 0, "")
	}
	pdf.Line(pageMargin, pdf.GetY(), pageW-pageMargin, pdf.GetY())
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(labelW, 6, "Total vendas", "", 0, "L", false, 0, "")
	pdf.CellFormat(colAmount, 6, brl(report.TotalSales), "", 1, "R", false, 0, "")
	pdf.CellFormat(labelW, 6, "Total gastos", "", 0, "L", false, 0, "")
	pdf.CellFormat(colAmount, 6, brl(report.TotalExpenses), "", 1, "R", false, 0, "")
	pdf.CellFormat(labelW, 7, "Saldo", "T", 0, "L", false, 0, "")
	pdf.CellFormat(colAmount, 7, brl(report.Balance), "T", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *fpdf.Fpdf, width float64, title string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(width, 7, title, "", 1, "L", false, 0, "")
}

func methodLabel(method domain.PaymentMethod) string {
	if label, ok := methodLabels[method]; ok {
		return label
	}
	if method == "" {
		return "-"
	}
	return string(method)
}

func brl(d decimal.Decimal) string {
	return "R$ " + ledger.RoundCents(d).StringFixed(2)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
