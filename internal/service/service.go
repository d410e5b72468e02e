package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/report"
	"caixa/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	emitter *report.Emitter
	loc     *time.Location
	now     func() time.Time
}

func New(repo store.Repository, emitter *report.Emitter, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if emitter == nil {
		emitter = report.NewEmitter("", loc, nil)
	}
	return &Service{
		repo:    repo,
		emitter: emitter,
		loc:     loc,
		now:     time.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// RecordSale stores a sale with its change due fixed at write time. A
// repeated idempotency key returns the stored sale and duplicate=true.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, bool, error) {
	req = normalizeSale(req)
	if err := validateStruct(req); err != nil {
		return domain.Sale{}, false, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			return *existing, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, false, err
		}
	}

	sale := saleFromRequest(req)
	sale.CreatedAt = s.now().In(s.loc)
	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, false, err
	}
	return *created, false, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// UpdateSale corrects a sale in place. Change due is recomputed from the new
// values; the original timestamp is kept.
func (s *Service) UpdateSale(ctx context.Context, id int64, req domain.SaleRequest) (domain.Sale, error) {
	req = normalizeSale(req)
	req.IdempotencyKey = ""
	if err := validateStruct(req); err != nil {
		return domain.Sale{}, err
	}

	sale := saleFromRequest(req)
	sale.ID = id
	updated, err := s.repo.UpdateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	s.audit(ctx, "sale.update", id)
	return *updated, nil
}

func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "sale.delete", id)
	return nil
}

func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, bool, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := validateStruct(req); err != nil {
		return domain.Expense{}, false, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindExpenseByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			return *existing, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Expense{}, false, err
		}
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
		Amount:         ledger.RoundCents(req.Amount),
		CreatedAt:      s.now().In(s.loc),
	})
	if err != nil {
		return domain.Expense{}, false, err
	}
	return *created, false, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "expense.delete", id)
	return nil
}

// Closing builds the report for the date in raw (YYYY-MM-DD), or for today
// in the business zone when raw is empty.
func (s *Service) Closing(ctx context.Context, raw string) (domain.ClosingReport, error) {
	day, err := ledger.ParseBusinessDay(raw, s.loc, s.now())
	if err != nil {
		return domain.ClosingReport{}, err
	}
	return s.ClosingFor(ctx, day)
}

func (s *Service) ClosingFor(ctx context.Context, day time.Time) (domain.ClosingReport, error) {
	from, to := ledger.DayBounds(ledger.BusinessDayOf(day, s.loc))
	sales, err := s.repo.ListSalesByDay(ctx, from, to)
	if err != nil {
		return domain.ClosingReport{}, fmt.Errorf("list sales: %w", err)
	}
	expenses, err := s.repo.ListExpensesByDay(ctx, from, to)
	if err != nil {
		return domain.ClosingReport{}, fmt.Errorf("list expenses: %w", err)
	}
	return ledger.Aggregate(from, sales, expenses), nil
}

// Export builds the day's report, stores the artifact in the configured sink
// and returns it.
func (s *Service) Export(ctx context.Context, raw string, format report.Format) (report.Artifact, error) {
	closing, err := s.Closing(ctx, raw)
	if err != nil {
		return report.Artifact{}, err
	}
	return s.emitter.Emit(ctx, closing, format)
}

// CloseDay emits the PDF closing for day. It backs the scheduled
// end-of-day job and the offline export command.
func (s *Service) CloseDay(ctx context.Context, day time.Time, format report.Format) (report.Artifact, error) {
	closing, err := s.ClosingFor(ctx, day)
	if err != nil {
		return report.Artifact{}, err
	}
	return s.emitter.Emit(ctx, closing, format)
}

func (s *Service) audit(ctx context.Context, action string, id int64) {
	actor, _ := ActorFromContext(ctx)
	log.Info().
		Str("action", action).
		Int64("id", id).
		Str("actor", actor.Username).
		Msg("record changed")
}

func normalizeSale(req domain.SaleRequest) domain.SaleRequest {
	req.Product = strings.TrimSpace(req.Product)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	return req
}

func saleFromRequest(req domain.SaleRequest) domain.Sale {
	amount := ledger.RoundCents(req.Amount)
	tendered := ledger.RoundCents(req.Tendered)
	return domain.Sale{
		IdempotencyKey: req.IdempotencyKey,
		Product:        req.Product,
		Amount:         amount,
		PaymentMethod:  req.PaymentMethod,
		Tendered:       tendered,
		Change:         ledger.ChangeDue(req.PaymentMethod, amount, tendered),
	}
}
