// Package ledger groups a business day's sales and expenses into a
// reconciled closing report. It performs no I/O.
package ledger

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid business date")

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ChangeDue is computed when a sale is written. Only cash sales give change,
// and a short tender clamps to zero instead of going negative.
func ChangeDue(method domain.PaymentMethod, amount decimal.Decimal, tendered decimal.Decimal) decimal.Decimal {
	if method != domain.PaymentDinheiro {
		return decimal.Zero
	}
	change := RoundCents(tendered.Sub(amount))
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

// ParseBusinessDay resolves the optional date parameter. Empty means the
// current day in loc.
func ParseBusinessDay(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return BusinessDayOf(now, loc), nil
	}
	day, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return day, nil
}

// BusinessDayOf returns local midnight of the calendar date t falls on.
func BusinessDayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the half-open range [from, to) covering day. AddDate keeps
// 23h and 25h days correct across DST changes.
func DayBounds(day time.Time) (time.Time, time.Time) {
	from := BusinessDayOf(day, day.Location())
	return from, from.AddDate(0, 0, 1)
}

func FormatDay(day time.Time) string {
	return day.Format(DateLayout)
}

// Aggregate builds the closing report for day. Records stamped outside day
// are dropped so a coarse store query can never leak neighbours into the
// totals. The inputs are not modified.
func Aggregate(day time.Time, sales []domain.Sale, expenses []domain.Expense) domain.ClosingReport {
	from, to := DayBounds(day)

	report := domain.ClosingReport{
		Date:          FormatDay(from),
		Sales:         make([]domain.Sale, 0, len(sales)),
		Expenses:      make([]domain.Expense, 0, len(expenses)),
		ByPayment:     zeroTotals(),
		TotalSales:    decimal.Zero,
		TotalExpenses: decimal.Zero,
	}

	for _, sale := range sales {
		if !within(sale.CreatedAt, from, to) {
			continue
		}
		amount := RoundCents(sale.Amount)
		switch sale.PaymentMethod {
		case domain.PaymentPix:
			report.ByPayment.Pix = report.ByPayment.Pix.Add(amount)
			report.CountByMethod.Pix++
		case domain.PaymentMaquina:
			report.ByPayment.Maquina = report.ByPayment.Maquina.Add(amount)
			report.CountByMethod.Maquina++
		case domain.PaymentDinheiro:
			report.ByPayment.Dinheiro = report.ByPayment.Dinheiro.Add(amount)
			report.CountByMethod.Dinheiro++
		default:
			report.ByPayment.Outros = report.ByPayment.Outros.Add(amount)
			report.CountByMethod.Outros++
		}
		report.TotalSales = report.TotalSales.Add(amount)
		report.Sales = append(report.Sales, sale)
	}

	for _, expense := range expenses {
		if !within(expense.CreatedAt, from, to) {
			continue
		}
		report.TotalExpenses = report.TotalExpenses.Add(RoundCents(expense.Amount))
		report.Expenses = append(report.Expenses, expense)
	}

	sort.SliceStable(report.Sales, func(i, j int) bool {
		return report.Sales[i].ID > report.Sales[j].ID
	})
	sort.SliceStable(report.Expenses, func(i, j int) bool {
		return report.Expenses[i].ID > report.Expenses[j].ID
	})

	report.Balance = report.TotalSales.Sub(report.TotalExpenses)
	return report
}

// Reconciled reports whether the grand total equals the sum of the buckets.
func Reconciled(report domain.ClosingReport) bool {
	return report.TotalSales.Equal(report.ByPayment.Sum())
}

func within(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func zeroTotals() domain.PaymentTotals {
	return domain.PaymentTotals{
		Pix:      decimal.Zero,
		Maquina:  decimal.Zero,
		Dinheiro: decimal.Zero,
		Outros:   decimal.Zero,
	}
}
