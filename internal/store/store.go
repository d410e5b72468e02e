package store

import (
	"context"
	"errors"
	"time"

	"caixa/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
)

// Repository is the storage collaborator. Day queries take a half-open
// [from, to) range already expressed in the business time zone.
type Repository interface {
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSalesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id int64) error

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	FindExpenseByIdempotency(ctx context.Context, key string) (*domain.Expense, error)
	ListExpensesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error

	UserStore
}

type UserStore interface {
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
