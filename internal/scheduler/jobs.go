package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/metrics"
	"caixa/backend/internal/report"
)

// DayCloser emits the closing artifact for a business day.
type DayCloser interface {
	CloseDay(ctx context.Context, day time.Time, format report.Format) (report.Artifact, error)
}

// AutoCloseJob stores the current business day's PDF closing in the report
// sink. Each run overwrites the same file name, so an early or repeated run
// is corrected by the next one.
type AutoCloseJob struct {
	closer DayCloser
	loc    *time.Location
	now    func() time.Time
}

func NewAutoCloseJob(closer DayCloser, loc *time.Location) *AutoCloseJob {
	return &AutoCloseJob{closer: closer, loc: loc, now: time.Now}
}

func (j *AutoCloseJob) Name() string { return "auto-close" }

func (j *AutoCloseJob) Run(ctx context.Context) error {
	artifact, err := j.closer.CloseDay(ctx, j.now().In(j.loc), report.FormatPDF)
	if err != nil {
		return err
	}
	metrics.ReportsEmitted.WithLabelValues(string(report.FormatPDF), "schedule").Inc()
	log.Info().
		Str("file", artifact.Name).
		Str("location", artifact.Location).
		Msg("day closed")
	return nil
}

// Pruner drops expired entries and reports how many went.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// PruneRevocationsJob clears expired tokens from an in-memory denylist.
type PruneRevocationsJob struct {
	list Pruner
}

func NewPruneRevocationsJob(list Pruner) *PruneRevocationsJob {
	return &PruneRevocationsJob{list: list}
}

func (j *PruneRevocationsJob) Name() string { return "prune-revocations" }

func (j *PruneRevocationsJob) Run(ctx context.Context) error {
	removed, err := j.list.Prune(ctx)
	if err != nil {
		return err
	}
	metrics.RevocationsPruned.Add(float64(removed))
	return nil
}

// FuncJob adapts a plain function.
type FuncJob struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j FuncJob) Name() string { return j.JobName }

func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }
