package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

// renderCSV writes one row per record followed by the summary rows. The
// first column tells the row kinds apart.
func renderCSV(report domain.ClosingReport, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{{"tipo", "id", "data", "descricao", "pagamento", "valor", "nota_dada", "troco"}}
	for _, sale := range report.Sales {
		rows = append(rows, []string{
			"venda",
			strconv.FormatInt(sale.ID, 10),
			sale.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			sale.Product,
			string(sale.PaymentMethod),
			cents(sale.Amount),
			cents(sale.Tendered),
			cents(sale.Change),
		})
	}
	for _, expense := range report.Expenses {
		rows = append(rows, []string{
			"gasto",
			strconv.FormatInt(expense.ID, 10),
			expense.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			expense.Description,
			"",
			cents(expense.Amount),
			"",
			"",
		})
	}

	summary := []struct {
		label string
		value decimal.Decimal
	}{
		{"pix", report.ByPayment.Pix},
		{"maquina", report.ByPayment.Maquina},
		{"dinheiro", report.ByPayment.Dinheiro},
		{"outros", report.ByPayment.Outros},
		{"total_vendas", report.TotalSales},
		{"total_gastos", report.TotalExpenses},
		{"saldo", report.Balance},
	}
	for _, line := range summary {
		rows = append(rows, []string{"resumo", "", report.Date, line.label, "", cents(line.value), "", ""})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cents(d decimal.Decimal) string {
	return ledger.RoundCents(d).StringFixed(2)
}
