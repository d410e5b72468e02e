package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/backend/internal/auth"
	"caixa/backend/internal/domain"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "caixa.db")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("BUSINESS_TIMEZONE", "America/Sao_Paulo")
	t.Setenv("REPORT_DIR", "")
	t.Setenv("REPORT_S3_BUCKET", "")
	return path
}

func TestHashPasswordFromFlag(t *testing.T) {
	out, err := run(t, "", "hash-password", "--password", "caixa123")
	require.NoError(t, err)

	hashed := strings.TrimSpace(out)
	assert.True(t, auth.VerifyPassword(hashed, "caixa123"))
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := run(t, "segredo\n", "hash-password")
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(strings.TrimSpace(out), "segredo"))

	_, err = run(t, "", "hash-password")
	assert.EqualError(t, err, "password is required")
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "", "create-user", "--username", "Operador", "--password", "caixa123")
	require.NoError(t, err)
	assert.Contains(t, out, "user operador created")

	_, err = run(t, "", "create-user", "--username", "operador", "--password", "outra")
	assert.EqualError(t, err, `user "operador" already exists`)

	_, err = run(t, "", "create-user", "--password", "x")
	assert.EqualError(t, err, "--username is required")
}

func TestExportWritesClosingFile(t *testing.T) {
	useSQLite(t)
	outDir := t.TempDir()

	out, err := run(t, "", "export", "--data", "2024-03-15", "--format", "csv", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "fechamento_2024-03-15.csv")

	body, err := os.ReadFile(filepath.Join(outDir, "fechamento_2024-03-15.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "tipo,id,data,descricao,pagamento,valor,nota_dada,troco"))
}

func TestExportRejectsBadInput(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "", "export", "--format", "docx", "--out", t.TempDir())
	assert.Error(t, err)

	_, err = run(t, "", "export", "--data", "15/03/2024", "--out", t.TempDir())
	assert.Error(t, err)
}

func TestMigrateNeedsPostgres(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "", "migrate", "--sqlite", filepath.Join(t.TempDir(), "legado.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER=postgres")

	_, err = run(t, "", "migrate")
	assert.EqualError(t, err, "--sqlite is required")
}

type fakeLegacy struct {
	sales    []domain.Sale
	expenses []domain.Expense
	err      error
}

func (f fakeLegacy) AllSales(context.Context) ([]domain.Sale, error) { return f.sales, f.err }

func (f fakeLegacy) AllExpenses(context.Context) ([]domain.Expense, error) { return f.expenses, nil }

type fakeImporter struct {
	sales    []domain.Sale
	expenses []domain.Expense
}

func (f *fakeImporter) ImportLegacy(_ context.Context, sales []domain.Sale, expenses []domain.Expense) (int, int, error) {
	f.sales = sales
	f.expenses = expenses
	return len(sales), len(expenses), nil
}

func TestMigrateLegacyCopiesEverything(t *testing.T) {
	at := time.Date(2023, 11, 2, 14, 5, 0, 0, time.UTC)
	src := fakeLegacy{
		sales: []domain.Sale{
			{ID: 7, Product: "Ração", Amount: decimal.RequireFromString("45.90"), PaymentMethod: domain.PaymentPix, CreatedAt: at},
			{ID: 8, Product: "Coleira", Amount: decimal.RequireFromString("19.90"), PaymentMethod: "cartao", CreatedAt: at},
		},
		expenses: []domain.Expense{{ID: 3, Description: "Frete", Amount: decimal.RequireFromString("12.00"), CreatedAt: at}},
	}
	dst := &fakeImporter{}

	sales, expenses, err := migrateLegacy(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, sales)
	assert.Equal(t, 1, expenses)
	assert.Equal(t, domain.PaymentMethod("cartao"), dst.sales[1].PaymentMethod, "unknown methods are carried over as-is")
}

func TestMigrateLegacyStopsOnReadError(t *testing.T) {
	dst := &fakeImporter{}
	_, _, err := migrateLegacy(context.Background(), fakeLegacy{err: errors.New("disk I/O error")}, dst)

	assert.ErrorContains(t, err, "read sales")
	assert.Nil(t, dst.sales)
}
