package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentPix      PaymentMethod = "pix"
	PaymentMaquina  PaymentMethod = "maquina"
	PaymentDinheiro PaymentMethod = "dinheiro"
)

// MaxAmount is the largest value a NUMERIC(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// AmountInRange reports whether d is a storable amount: non-negative, at
// most MaxAmount and with no more scale than a cent column can round. The
// magnitude check runs on the digit count first, so exponent forms such as
// 1e5000000 are rejected without expanding them.
func AmountInRange(d decimal.Decimal) bool {
	if d.Sign() < 0 {
		return false
	}
	if d.Sign() == 0 {
		return true
	}
	if d.Exponent() < -12 || d.NumDigits()+int(d.Exponent()) > 10 {
		return false
	}
	return d.LessThanOrEqual(MaxAmount)
}

// AmountsInRange reports whether every money field of the sale is storable.
func (s Sale) AmountsInRange() bool {
	return AmountInRange(s.Amount) && AmountInRange(s.Tendered) && AmountInRange(s.Change)
}

// PaymentMethods is the closed set of methods with a named subtotal.
var PaymentMethods = []PaymentMethod{PaymentPix, PaymentMaquina, PaymentDinheiro}

func (m PaymentMethod) Known() bool {
	switch m {
	case PaymentPix, PaymentMaquina, PaymentDinheiro:
		return true
	}
	return false
}

type Sale struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Product        string          `json:"product"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Tendered       decimal.Decimal `json:"tendered"`
	Change         decimal.Decimal `json:"change"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Expense struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

type SaleRequest struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=64"`
	Product        string          `json:"product" validate:"required,max=200"`
	Amount         decimal.Decimal `json:"amount" validate:"gte=0,lte=9999999999.99"`
	PaymentMethod  PaymentMethod   `json:"payment_method" validate:"required,oneof=pix maquina dinheiro"`
	Tendered       decimal.Decimal `json:"tendered" validate:"gte=0,lte=9999999999.99"`
}

type ExpenseRequest struct {
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=64"`
	Description    string          `json:"description" validate:"required,max=200"`
	Amount         decimal.Decimal `json:"amount" validate:"gte=0,lte=9999999999.99"`
}

type PaymentTotals struct {
	Pix      decimal.Decimal `json:"pix"`
	Maquina  decimal.Decimal `json:"maquina"`
	Dinheiro decimal.Decimal `json:"dinheiro"`
	// Outros holds sales whose method is outside the closed set (legacy rows).
	Outros decimal.Decimal `json:"outros"`
}

// Sum adds every bucket, including Outros.
func (p PaymentTotals) Sum() decimal.Decimal {
	return p.Pix.Add(p.Maquina).Add(p.Dinheiro).Add(p.Outros)
}

func (p PaymentTotals) Get(method PaymentMethod) decimal.Decimal {
	switch method {
	case PaymentPix:
		return p.Pix
	case PaymentMaquina:
		return p.Maquina
	case PaymentDinheiro:
		return p.Dinheiro
	}
	return p.Outros
}

type PaymentCounts struct {
	Pix      int `json:"pix"`
	Maquina  int `json:"maquina"`
	Dinheiro int `json:"dinheiro"`
	Outros   int `json:"outros"`
}

type ClosingReport struct {
	Date          string          `json:"date"`
	Sales         []Sale          `json:"sales"`
	Expenses      []Expense       `json:"expenses"`
	ByPayment     PaymentTotals   `json:"by_payment"`
	CountByMethod PaymentCounts   `json:"count_by_method"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Balance       decimal.Decimal `json:"balance"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Actor struct {
	Username string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Active    bool
	CreatedAt time.Time
}
