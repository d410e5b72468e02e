package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/report"
	"caixa/backend/internal/store"
	"caixa/backend/internal/store/memory"
)

var brt = time.FixedZone("BRT", -3*60*60)

func newTestService(t *testing.T, now time.Time) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	emitter := report.NewEmitter("Rações Trovão", brt, report.DirSink{Dir: t.TempDir()})
	svc := New(repo, emitter, brt)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClosingSheetScenario(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))
	ctx := context.Background()

	pix, _, err := svc.RecordSale(ctx, domain.SaleRequest{
		Product: "Ração 10kg", Amount: dec("120.00"), PaymentMethod: domain.PaymentPix, Tendered: dec("200.00"),
	})
	require.NoError(t, err)
	assert.True(t, pix.Change.IsZero(), "non-cash sales never give change")

	cash, _, err := svc.RecordSale(ctx, domain.SaleRequest{
		Product: "Ração 5kg", Amount: dec("60.00"), PaymentMethod: domain.PaymentDinheiro, Tendered: dec("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "40.00", cash.Change.StringFixed(2))

	closing, err := svc.Closing(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, "180.00", closing.TotalSales.StringFixed(2))
	assert.Equal(t, "120.00", closing.ByPayment.Pix.StringFixed(2))
	assert.Equal(t, "60.00", closing.ByPayment.Dinheiro.StringFixed(2))
	assert.Equal(t, "0.00", closing.ByPayment.Maquina.StringFixed(2))
	assert.True(t, ledger.Reconciled(closing))

	today, err := svc.Closing(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", today.Date)
}

func TestRecordSaleRejectsInvalidInput(t *testing.T) {
	svc, repo := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.SaleRequest
		code string
	}{
		{"negative amount", domain.SaleRequest{Product: "x", Amount: dec("-1"), PaymentMethod: domain.PaymentPix}, "valor_invalido"},
		{"unknown method", domain.SaleRequest{Product: "x", Amount: dec("1"), PaymentMethod: "fiado"}, "pagamento_invalido"},
		{"missing method", domain.SaleRequest{Product: "x", Amount: dec("1")}, "pagamento_invalido"},
		{"blank product", domain.SaleRequest{Product: "   ", Amount: dec("1"), PaymentMethod: domain.PaymentPix}, "produto_invalido"},
		{"negative tender", domain.SaleRequest{Product: "x", Amount: dec("1"), PaymentMethod: domain.PaymentDinheiro, Tendered: dec("-5")}, "nota_invalida"},
		{"overflowing amount", domain.SaleRequest{Product: "x", Amount: dec("1e400"), PaymentMethod: domain.PaymentPix}, "valor_invalido"},
		{"huge exponent", domain.SaleRequest{Product: "x", Amount: dec("1e5000000"), PaymentMethod: domain.PaymentPix}, "valor_invalido"},
		{"above column limit", domain.SaleRequest{Product: "x", Amount: dec("10000000000"), PaymentMethod: domain.PaymentPix}, "valor_invalido"},
		{"overflowing tender", domain.SaleRequest{Product: "x", Amount: dec("1"), PaymentMethod: domain.PaymentDinheiro, Tendered: dec("1e12")}, "nota_invalida"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.RecordSale(ctx, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrInvalidInput)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.code, verr.Code)
		})
	}

	sales, err := repo.ListSalesByDay(ctx, time.Time{}, time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, sales, "rejected sales must not be stored")
}

func TestAmountsAtColumnLimit(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))
	ctx := context.Background()

	sale, _, err := svc.RecordSale(ctx, domain.SaleRequest{
		Product: "Lote", Amount: dec("9999999999.99"), PaymentMethod: domain.PaymentPix,
	})
	require.NoError(t, err)
	assert.Equal(t, "9999999999.99", sale.Amount.StringFixed(2))

	_, _, err = svc.RecordExpense(ctx, domain.ExpenseRequest{Description: "Frete", Amount: dec("1e400")})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "valor_invalido", verr.Code)
}

func TestRecordSaleNormalizesMethodCase(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))

	sale, _, err := svc.RecordSale(context.Background(), domain.SaleRequest{
		Product: " Ração ", Amount: dec("10"), PaymentMethod: " Maquina ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMaquina, sale.PaymentMethod)
	assert.Equal(t, "Ração", sale.Product)
}

func TestRecordSaleShortTenderClamps(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))

	sale, _, err := svc.RecordSale(context.Background(), domain.SaleRequest{
		Product: "Ração", Amount: dec("60.00"), PaymentMethod: domain.PaymentDinheiro, Tendered: dec("50.00"),
	})
	require.NoError(t, err)
	assert.True(t, sale.Change.IsZero())
}

func TestIdempotentWrites(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))
	ctx := context.Background()
	req := domain.SaleRequest{IdempotencyKey: "form-123", Product: "Ração", Amount: dec("10"), PaymentMethod: domain.PaymentPix}

	first, dup, err := svc.RecordSale(ctx, req)
	require.NoError(t, err)
	assert.False(t, dup)
	second, dup, err := svc.RecordSale(ctx, req)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)

	expReq := domain.ExpenseRequest{IdempotencyKey: "form-456", Description: "Frete", Amount: dec("5")}
	e1, _, err := svc.RecordExpense(ctx, expReq)
	require.NoError(t, err)
	e2, dup, err := svc.RecordExpense(ctx, expReq)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, e1.ID, e2.ID)

	closing, err := svc.Closing(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Len(t, closing.Sales, 1)
	assert.Len(t, closing.Expenses, 1)
}

func TestUpdateSaleRecomputesChange(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))
	ctx := context.Background()

	sale, _, err := svc.RecordSale(ctx, domain.SaleRequest{Product: "Ração", Amount: dec("60"), PaymentMethod: domain.PaymentPix})
	require.NoError(t, err)

	updated, err := svc.UpdateSale(ctx, sale.ID, domain.SaleRequest{
		Product: "Ração", Amount: dec("60"), PaymentMethod: domain.PaymentDinheiro, Tendered: dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "40.00", updated.Change.StringFixed(2))
	assert.True(t, updated.CreatedAt.Equal(sale.CreatedAt))

	_, err = svc.UpdateSale(ctx, 999, domain.SaleRequest{Product: "x", Amount: dec("1"), PaymentMethod: domain.PaymentPix})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeletesRemoveFromClosing(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))
	ctx := context.Background()

	sale, _, err := svc.RecordSale(ctx, domain.SaleRequest{Product: "Ração", Amount: dec("60"), PaymentMethod: domain.PaymentPix})
	require.NoError(t, err)
	expense, _, err := svc.RecordExpense(ctx, domain.ExpenseRequest{Description: "Frete", Amount: dec("5")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSale(ctx, sale.ID))
	require.NoError(t, svc.DeleteExpense(ctx, expense.ID))
	assert.ErrorIs(t, svc.DeleteSale(ctx, sale.ID), store.ErrNotFound)

	closing, err := svc.Closing(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Empty(t, closing.Sales)
	assert.Empty(t, closing.Expenses)
	assert.True(t, closing.Balance.IsZero())
}

func TestClosingRejectsMalformedDate(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))

	_, err := svc.Closing(context.Background(), "15/03/2024")
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)
}

func TestExportEmptyDay(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2024, 3, 15, 14, 0, 0, 0, brt))

	artifact, err := svc.Export(context.Background(), "2024-03-16", report.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "fechamento_2024-03-16.pdf", artifact.Name)
	assert.NotEmpty(t, artifact.Body)
	assert.FileExists(t, artifact.Location)
}

type failingRepo struct {
	*memory.Store
}

func (failingRepo) ListSalesByDay(context.Context, time.Time, time.Time) ([]domain.Sale, error) {
	return nil, errors.New("connection refused")
}

func TestClosingSurfacesStorageFailure(t *testing.T) {
	svc := New(failingRepo{memory.New()}, nil, brt)

	_, err := svc.Closing(context.Background(), "2024-03-15")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrInvalidInput)
}
