// Package sqlite stores the register in a single SQLite file. The table
// layout matches the register's older single-file installations, so an
// existing caixa.db opens as-is and is upgraded in place.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/store"
)

// timeLayout is how the data column is written: wall-clock time in the
// business zone, so string order equals time order.
const timeLayout = "2006-01-02 15:04:05"

var readLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS usuarios (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vendas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	produto TEXT NOT NULL,
	valor REAL NOT NULL,
	pagamento TEXT NOT NULL,
	nota_dada REAL NOT NULL DEFAULT 0,
	troco REAL NOT NULL DEFAULT 0,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gastos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	descricao TEXT NOT NULL,
	valor REAL NOT NULL,
	data TEXT NOT NULL
);
`

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(ctx context.Context, path string, loc *time.Location) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates missing tables and adds the columns older files lack.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	upgrades := []struct {
		table  string
		column string
		decl   string
	}{
		{"vendas", "idempotency_key", "TEXT"},
		{"gastos", "idempotency_key", "TEXT"},
		{"usuarios", "active", "INTEGER NOT NULL DEFAULT 1"},
		{"usuarios", "created_at", "TEXT NOT NULL DEFAULT ''"},
	}
	for _, u := range upgrades {
		if err := s.ensureColumn(ctx, u.table, u.column, u.decl); err != nil {
			return err
		}
	}
	if err := s.normalizeUsernames(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS vendas_idempotency_key_idx ON vendas (idempotency_key) WHERE idempotency_key IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS gastos_idempotency_key_idx ON gastos (idempotency_key) WHERE idempotency_key IS NOT NULL;
		CREATE INDEX IF NOT EXISTS vendas_data_idx ON vendas (data);
		CREATE INDEX IF NOT EXISTS gastos_data_idx ON gastos (data);
	`)
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

// normalizeUsernames lower-cases stored usernames, since lookups are
// case-insensitive. A name whose lower-case form is already taken is left
// alone and logged.
func (s *Store) normalizeUsernames(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM usuarios WHERE username <> lower(trim(username))`)
	if err != nil {
		return fmt.Errorf("normalize usernames: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, name := range names {
		_, err := s.db.ExecContext(ctx, `UPDATE usuarios SET username = ? WHERE username = ?`, strings.ToLower(strings.TrimSpace(name)), name)
		switch {
		case err == nil:
		case isUniqueViolation(err):
			log.Warn().Str("username", name).Msg("username clashes with an existing lower-case account and cannot log in")
		default:
			return fmt.Errorf("normalize username %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table string, column string, decl string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+decl); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

const saleColumns = `id, COALESCE(idempotency_key, ''), produto, valor, pagamento, nota_dada, troco, data`

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if strings.TrimSpace(sale.Product) == "" || !sale.AmountsInRange() {
		return nil, store.ErrInvalidInput
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO vendas (idempotency_key, produto, valor, pagamento, nota_dada, troco, data)
		VALUES (?,?,?,?,?,?,?)
	`, nullIfEmpty(sale.IdempotencyKey), sale.Product, money(sale.Amount), string(sale.PaymentMethod),
		money(sale.Tendered), money(sale.Change), s.formatTime(sale.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			return s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
		}
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) findSale(ctx context.Context, column string, value any) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM vendas WHERE `+column+` = ?`, value)
	sale, err := s.scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

// ListSalesByDay expects from and to on business-day boundaries. They are
// compared as bare dates so date-only legacy stamps stay inside their day.
func (s *Store) ListSalesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.listSales(ctx, `WHERE data >= ? AND data < ? ORDER BY id DESC`, s.formatDate(from), s.formatDate(to))
}

// AllSales returns every sale in insertion order.
func (s *Store) AllSales(ctx context.Context) ([]domain.Sale, error) {
	return s.listSales(ctx, `ORDER BY id`)
}

func (s *Store) listSales(ctx context.Context, clause string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM vendas `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := s.scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if strings.TrimSpace(sale.Product) == "" || !sale.AmountsInRange() {
		return nil, store.ErrInvalidInput
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE vendas
		SET produto = ?, valor = ?, pagamento = ?, nota_dada = ?, troco = ?
		WHERE id = ?
	`, sale.Product, money(sale.Amount), string(sale.PaymentMethod), money(sale.Tendered), money(sale.Change), sale.ID)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM vendas WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

const expenseColumns = `id, COALESCE(idempotency_key, ''), descricao, valor, data`

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.Description) == "" || !domain.AmountInRange(expense.Amount) {
		return nil, store.ErrInvalidInput
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO gastos (idempotency_key, descricao, valor, data)
		VALUES (?,?,?,?)
	`, nullIfEmpty(expense.IdempotencyKey), expense.Description, money(expense.Amount), s.formatTime(expense.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) && expense.IdempotencyKey != "" {
			return s.FindExpenseByIdempotency(ctx, expense.IdempotencyKey)
		}
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM gastos WHERE id = ?`, id)
	return s.scanExpense(row)
}

func (s *Store) FindExpenseByIdempotency(ctx context.Context, key string) (*domain.Expense, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM gastos WHERE idempotency_key = ?`, key)
	expense, err := s.scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return expense, nil
}

func (s *Store) ListExpensesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	return s.listExpenses(ctx, `WHERE data >= ? AND data < ? ORDER BY id DESC`, s.formatDate(from), s.formatDate(to))
}

// AllExpenses returns every expense in insertion order.
func (s *Store) AllExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.listExpenses(ctx, `ORDER BY id`)
}

func (s *Store) listExpenses(ctx context.Context, clause string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM gastos `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		expense, err := s.scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM gastos WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var (
		user      domain.UserAccount
		active    int64
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, active, created_at
		FROM usuarios
		WHERE username = ?
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.Active = active != 0
	if createdAt != "" {
		user.CreatedAt, _ = s.parseTime(createdAt)
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	active := 0
	if user.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usuarios (username, password, active, created_at)
		VALUES (?,?,?,?)
	`, username, user.Password, active, s.formatTime(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	result, err := s.db.ExecContext(ctx, `UPDATE usuarios SET password = ? WHERE username = ?`, password, username)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSale(row rowScanner) (*domain.Sale, error) {
	var (
		sale     domain.Sale
		method   string
		amount   float64
		tendered float64
		change   float64
		stamp    string
	)
	if err := row.Scan(&sale.ID, &sale.IdempotencyKey, &sale.Product, &amount, &method, &tendered, &change, &stamp); err != nil {
		return nil, err
	}
	createdAt, err := s.parseTime(stamp)
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", sale.ID, err)
	}
	if !finite(amount, tendered, change) {
		return nil, fmt.Errorf("sale %d: %w", sale.ID, errNonFinite)
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.Amount = cents(amount)
	sale.Tendered = cents(tendered)
	sale.Change = cents(change)
	sale.CreatedAt = createdAt
	return &sale, nil
}

func (s *Store) scanExpense(row rowScanner) (*domain.Expense, error) {
	var (
		expense domain.Expense
		amount  float64
		stamp   string
	)
	if err := row.Scan(&expense.ID, &expense.IdempotencyKey, &expense.Description, &amount, &stamp); err != nil {
		return nil, err
	}
	createdAt, err := s.parseTime(stamp)
	if err != nil {
		return nil, fmt.Errorf("expense %d: %w", expense.ID, err)
	}
	if !finite(amount) {
		return nil, fmt.Errorf("expense %d: %w", expense.ID, errNonFinite)
	}
	expense.Amount = cents(amount)
	expense.CreatedAt = createdAt
	return &expense, nil
}

func (s *Store) formatTime(t time.Time) string {
	return t.In(s.loc).Format(timeLayout)
}

// formatDate is the "YYYY-MM-DD" prefix every stored stamp starts with. As
// a string it sorts before every stamp of that day and after every stamp of
// the day before.
func (s *Store) formatDate(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

func (s *Store) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// money converts to the float the REAL columns hold. Values are rounded to
// cents again on read.
func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// cents expects a finite value; scanners check with finite first.
func cents(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

var errNonFinite = errors.New("non-finite amount in REAL column")

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func nullIfEmpty(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
