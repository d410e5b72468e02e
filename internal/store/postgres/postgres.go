package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db  *sql.DB
	loc *time.Location
}

// New opens the pool and checks connectivity. Timestamps read back are
// expressed in loc.
func New(ctx context.Context, databaseURL string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
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

// EnsureSchema creates the tables when missing. It is safe to run on every
// start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
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

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO vendas (idempotency_key, produto, valor, pagamento, nota_dada, troco, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+saleColumns,
		nullIfEmpty(sale.IdempotencyKey), sale.Product, sale.Amount, string(sale.PaymentMethod),
		sale.Tendered, sale.Change, sale.CreatedAt,
	)
	created, err := s.scanSale(row)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			return s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
		}
		return nil, err
	}
	return created, nil
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
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM vendas WHERE `+column+` = $1`, value)
	sale, err := s.scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSalesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM vendas
		WHERE data >= $1 AND data < $2
		ORDER BY id DESC
	`, from, to)
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
	row := s.db.QueryRowContext(ctx, `
		UPDATE vendas
		SET produto = $2, valor = $3, pagamento = $4, nota_dada = $5, troco = $6
		WHERE id = $1
		RETURNING `+saleColumns,
		sale.ID, sale.Product, sale.Amount, string(sale.PaymentMethod), sale.Tendered, sale.Change,
	)
	updated, err := s.scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "vendas", id)
}

const expenseColumns = `id, COALESCE(idempotency_key, ''), descricao, valor, data`

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.Description) == "" || !domain.AmountInRange(expense.Amount) {
		return nil, store.ErrInvalidInput
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO gastos (idempotency_key, descricao, valor, data)
		VALUES ($1,$2,$3,$4)
		RETURNING `+expenseColumns,
		nullIfEmpty(expense.IdempotencyKey), expense.Description, expense.Amount, expense.CreatedAt,
	)
	created, err := s.scanExpense(row)
	if err != nil {
		if isUniqueViolation(err) && expense.IdempotencyKey != "" {
			return s.FindExpenseByIdempotency(ctx, expense.IdempotencyKey)
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) FindExpenseByIdempotency(ctx context.Context, key string) (*domain.Expense, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM gastos WHERE idempotency_key = $1`, key)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM gastos
		WHERE data >= $1 AND data < $2
		ORDER BY id DESC
	`, from, to)
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
	return s.deleteByID(ctx, "gastos", id)
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, active, created_at
		FROM usuarios
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usuarios (username, password, active, created_at)
		VALUES ($1,$2,$3,$4)
	`, username, user.Password, user.Active, user.CreatedAt)
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
	result, err := s.db.ExecContext(ctx, `UPDATE usuarios SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ImportLegacy copies rows from an older installation in one transaction.
// Rows keep their original timestamps; ids are reassigned.
func (s *Store) ImportLegacy(ctx context.Context, sales []domain.Sale, expenses []domain.Expense) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, sale := range sales {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vendas (produto, valor, pagamento, nota_dada, troco, data)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.Product, sale.Amount, string(sale.PaymentMethod), sale.Tendered, sale.Change, sale.CreatedAt); err != nil {
			return 0, 0, fmt.Errorf("import sale %d: %w", sale.ID, err)
		}
	}
	for _, expense := range expenses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gastos (descricao, valor, data)
			VALUES ($1,$2,$3)
		`, expense.Description, expense.Amount, expense.CreatedAt); err != nil {
			return 0, 0, fmt.Errorf("import expense %d: %w", expense.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return len(sales), len(expenses), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSale(row rowScanner) (*domain.Sale, error) {
	var (
		sale   domain.Sale
		method string
	)
	if err := row.Scan(&sale.ID, &sale.IdempotencyKey, &sale.Product, &sale.Amount, &method, &sale.Tendered, &sale.Change, &sale.CreatedAt); err != nil {
		return nil, err
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.CreatedAt = sale.CreatedAt.In(s.loc)
	return &sale, nil
}

func (s *Store) scanExpense(row rowScanner) (*domain.Expense, error) {
	var expense domain.Expense
	if err := row.Scan(&expense.ID, &expense.IdempotencyKey, &expense.Description, &expense.Amount, &expense.CreatedAt); err != nil {
		return nil, err
	}
	expense.CreatedAt = expense.CreatedAt.In(s.loc)
	return &expense, nil
}

func nullIfEmpty(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
