package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/store"
)

// Store keeps everything in process memory. It backs tests and local demos;
// nothing survives a restart.
type Store struct {
	mu              sync.RWMutex
	nextSaleID      int64
	nextExpenseID   int64
	salesByID       map[int64]domain.Sale
	salesByIdem     map[string]int64
	expensesByID    map[int64]domain.Expense
	expensesByIdem  map[string]int64
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		salesByID:       make(map[int64]domain.Sale),
		salesByIdem:     make(map[string]int64),
		expensesByID:    make(map[int64]domain.Expense),
		expensesByIdem:  make(map[string]int64),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             time.Now,
	}
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(sale.Product) == "" {
		return nil, store.ErrInvalidInput
	}
	if sale.IdempotencyKey != "" {
		if id, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			existing := s.salesByID[id]
			return &existing, nil
		}
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	s.salesByID[sale.ID] = sale
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}
	return &sale, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdem[key]
	if !ok || key == "" {
		return nil, store.ErrNotFound
	}
	sale := s.salesByID[id]
	return &sale, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListSalesByDay(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0)
	for _, sale := range s.salesByID {
		if inRange(sale.CreatedAt, from, to) {
			out = append(out, sale)
		}
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return cmpID(b.ID, a.ID)
	})
	return out, nil
}

// UpdateSale rewrites the editable fields and keeps the original timestamp
// and idempotency key.
func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Product = sale.Product
	existing.Amount = sale.Amount
	existing.PaymentMethod = sale.PaymentMethod
	existing.Tendered = sale.Tendered
	existing.Change = sale.Change
	s.salesByID[sale.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.salesByID, id)
	if sale.IdempotencyKey != "" {
		delete(s.salesByIdem, sale.IdempotencyKey)
	}
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(expense.Description) == "" {
		return nil, store.ErrInvalidInput
	}
	if expense.IdempotencyKey != "" {
		if id, ok := s.expensesByIdem[expense.IdempotencyKey]; ok {
			existing := s.expensesByID[id]
			return &existing, nil
		}
	}

	s.nextExpenseID++
	expense.ID = s.nextExpenseID
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = s.now()
	}
	s.expensesByID[expense.ID] = expense
	if expense.IdempotencyKey != "" {
		s.expensesByIdem[expense.IdempotencyKey] = expense.ID
	}
	return &expense, nil
}

func (s *Store) FindExpenseByIdempotency(_ context.Context, key string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.expensesByIdem[key]
	if !ok || key == "" {
		return nil, store.ErrNotFound
	}
	expense := s.expensesByID[id]
	return &expense, nil
}

func (s *Store) ListExpensesByDay(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0)
	for _, expense := range s.expensesByID {
		if inRange(expense.CreatedAt, from, to) {
			out = append(out, expense)
		}
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return cmpID(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, ok := s.expensesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	if expense.IdempotencyKey != "" {
		delete(s.expensesByIdem, expense.IdempotencyKey)
	}
	return nil
}

func (s *Store) FindUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func cmpID(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
