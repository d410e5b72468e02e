package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/backend/internal/report"
	"caixa/backend/internal/service"
	"caixa/backend/internal/store/memory"
)

var brt = time.FixedZone("BRT", -3*60*60)

type fakeCloser struct {
	days    []time.Time
	formats []report.Format
	err     error
}

func (f *fakeCloser) CloseDay(_ context.Context, day time.Time, format report.Format) (report.Artifact, error) {
	f.days = append(f.days, day)
	f.formats = append(f.formats, format)
	if f.err != nil {
		return report.Artifact{}, f.err
	}
	return report.Artifact{Name: "fechamento_" + day.Format("2006-01-02") + ".pdf"}, nil
}

type fakePruner struct {
	removed int
	calls   int
}

func (f *fakePruner) Prune(context.Context) (int, error) {
	f.calls++
	return f.removed, nil
}

func TestAutoCloseJobUsesBusinessDay(t *testing.T) {
	closer := &fakeCloser{}
	job := NewAutoCloseJob(closer, brt)
	// 01:30 UTC on the 16th is still the 15th in BRT.
	job.now = func() time.Time { return time.Date(2024, 3, 16, 1, 30, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, closer.days, 1)
	assert.Equal(t, "2024-03-15", closer.days[0].Format("2006-01-02"))
	assert.Equal(t, report.FormatPDF, closer.formats[0])
}

func TestAutoCloseJobPropagatesFailure(t *testing.T) {
	closer := &fakeCloser{err: errors.New("sink unavailable")}
	job := NewAutoCloseJob(closer, brt)

	err := job.Run(context.Background())
	assert.EqualError(t, err, "sink unavailable")
}

func TestAutoCloseJobWritesClosingFile(t *testing.T) {
	dir := t.TempDir()
	svc := service.New(memory.New(), report.NewEmitter("Rações Trovão", brt, report.DirSink{Dir: dir}), brt)
	job := NewAutoCloseJob(svc, brt)
	job.now = func() time.Time { return time.Date(2024, 3, 15, 23, 55, 0, 0, brt) }

	require.NoError(t, job.Run(context.Background()))

	body, err := os.ReadFile(filepath.Join(dir, "fechamento_2024-03-15.pdf"))
	require.NoError(t, err)
	assert.True(t, len(body) > 0 && string(body[:5]) == "%PDF-")
}

func TestPruneRevocationsJob(t *testing.T) {
	pruner := &fakePruner{removed: 3}
	job := NewPruneRevocationsJob(pruner)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, "prune-revocations", job.Name())
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop(), brt)

	err := s.AddJob("not a schedule", FuncJob{JobName: "noop", Fn: func(context.Context) error { return nil }})
	assert.Error(t, err)
	assert.Error(t, ValidSchedule("61 * * * *"))
	assert.NoError(t, ValidSchedule("55 23 * * *"))
	assert.NoError(t, ValidSchedule("@every 10m"))
}

func TestRunNowPassesDeadline(t *testing.T) {
	s := New(zerolog.Nop(), brt)
	var hadDeadline bool
	job := FuncJob{JobName: "probe", Fn: func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}}

	require.NoError(t, s.RunNow(job))
	assert.True(t, hadDeadline)
}

func TestSchedulerRunsRegisteredJob(t *testing.T) {
	s := New(zerolog.Nop(), brt)
	ran := make(chan struct{}, 1)
	job := FuncJob{JobName: "tick", Fn: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("expected job to run within its interval")
	}
}
