package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("CAIXA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CAIXA_TEST_DATABASE_URL to run postgres integration test")
	}

	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ctx := context.Background()
	s, err := New(ctx, databaseURL, loc)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestSaleLifecycleAndDayRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// A day far in the past keeps the range free of other rows.
	stamp := time.Now().UnixNano()
	day := time.Date(1990, 1, 2, 0, 0, 0, 0, s.loc).AddDate(0, 0, int(stamp%3000))
	key := fmt.Sprintf("idem-it-%d", stamp)

	inside, err := s.CreateSale(ctx, domain.Sale{
		IdempotencyKey: key,
		Product:        "Ração 5kg",
		Amount:         decimal.RequireFromString("60.00"),
		PaymentMethod:  domain.PaymentDinheiro,
		Tendered:       decimal.RequireFromString("100.00"),
		Change:         decimal.RequireFromString("40.00"),
		CreatedAt:      day.Add(23*time.Hour + 59*time.Minute),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	outside, err := s.CreateSale(ctx, domain.Sale{
		Product:       "Ração 10kg",
		Amount:        decimal.RequireFromString("120.00"),
		PaymentMethod: domain.PaymentPix,
		CreatedAt:     day.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM vendas WHERE id IN ($1, $2)`, inside.ID, outside.ID)
	})

	again, err := s.CreateSale(ctx, domain.Sale{IdempotencyKey: key, Product: "dup", Amount: decimal.NewFromInt(1), PaymentMethod: domain.PaymentPix})
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if again.ID != inside.ID {
		t.Fatalf("expected idempotent replay to return sale %d, got %d", inside.ID, again.ID)
	}

	sales, err := s.ListSalesByDay(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != inside.ID {
		t.Fatalf("expected only sale %d in range, got %+v", inside.ID, sales)
	}
	if sales[0].Change.StringFixed(2) != "40.00" {
		t.Fatalf("expected change 40.00, got %s", sales[0].Change.StringFixed(2))
	}

	if err := s.DeleteSale(ctx, inside.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if err := s.DeleteSale(ctx, inside.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
