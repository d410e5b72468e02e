package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"caixa/backend/internal/bootstrap"
	"caixa/backend/internal/config"
	"caixa/backend/internal/domain"
	sqlitestore "caixa/backend/internal/store/sqlite"
)

type legacySource interface {
	AllSales(ctx context.Context) ([]domain.Sale, error)
	AllExpenses(ctx context.Context) ([]domain.Expense, error)
}

type legacyImporter interface {
	ImportLegacy(ctx context.Context, sales []domain.Sale, expenses []domain.Expense) (int, int, error)
}

func newMigrateCmd() *cobra.Command {
	var sqlitePath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy sales and expenses from a legacy SQLite file into Postgres",
		Long: `Copies every row of the vendas and gastos tables of a SQLite register
file into the Postgres database named by DATABASE_URL, in one transaction.
Timestamps are kept; ids are reassigned. Run it once per file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sqlitePath == "" {
				return errors.New("--sqlite is required")
			}
			return withBackend(cmd, func(ctx context.Context, _ config.Config, loc *time.Location, backend *bootstrap.Backend) error {
				if backend.Postgres == nil {
					return fmt.Errorf("migrate needs STORAGE_DRIVER=postgres, got %q", backend.Driver)
				}

				src, err := sqlitestore.New(ctx, sqlitePath, loc)
				if err != nil {
					return err
				}
				defer func() { _ = src.Close() }()
				// Older files lack the idempotency columns.
				if err := src.EnsureSchema(ctx); err != nil {
					return err
				}

				sales, expenses, err := migrateLegacy(ctx, src, backend.Postgres)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "imported %d sales and %d expenses from %s", sales, expenses, sqlitePath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "path to the legacy SQLite file")
	return cmd
}

func migrateLegacy(ctx context.Context, src legacySource, dst legacyImporter) (int, int, error) {
	sales, err := src.AllSales(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read sales: %w", err)
	}
	expenses, err := src.AllExpenses(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read expenses: %w", err)
	}
	return dst.ImportLegacy(ctx, sales, expenses)
}
