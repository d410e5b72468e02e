package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// jobTimeout bounds a single run so a hung store cannot pile up runs.
const jobTimeout = 2 * time.Minute

// Job is a unit of background work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler runs registered jobs on cron schedules evaluated in the
// business time zone.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job under a standard five-field cron expression or a
// descriptor such as "@every 10m".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("job registered")
	return nil
}

// RunNow executes job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	startedAt := time.Now()
	err := job.Run(ctx)
	s.log.Debug().
		Str("job", job.Name()).
		Dur("duration", time.Since(startedAt)).
		Bool("ok", err == nil).
		Msg("job finished")
	return err
}

// ValidSchedule reports whether expr parses as a five-field cron expression
// or descriptor.
func ValidSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
