// Package bootstrap opens the storage backend and report sink selected by
// configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/auth"
	"caixa/backend/internal/config"
	"caixa/backend/internal/domain"
	"caixa/backend/internal/report"
	"caixa/backend/internal/store"
	"caixa/backend/internal/store/memory"
	pgstore "caixa/backend/internal/store/postgres"
	sqlitestore "caixa/backend/internal/store/sqlite"
)

// Backend is an open repository plus its lifecycle hooks.
type Backend struct {
	Repo   store.Repository
	Driver string
	// Postgres is set only for the postgres driver; the migrate command
	// needs its bulk import.
	Postgres *pgstore.Store
	ping     func(ctx context.Context) error
	close    func() error
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// ValidateStorage reports missing connection parameters for the selected
// driver.
func ValidateStorage(cfg config.Config) error {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("DATABASE_URL must be set for the postgres driver")
		}
	case config.DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return errors.New("SQLITE_PATH must be set for the sqlite driver")
		}
	case config.DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	return nil
}

// OpenStore connects to the configured driver and brings its schema up to
// date. There is no silent fallback to memory when a database is configured.
func OpenStore(ctx context.Context, cfg config.Config, loc *time.Location) (*Backend, error) {
	if err := ValidateStorage(cfg); err != nil {
		return nil, err
	}

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, loc)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return &Backend{Repo: pg, Driver: cfg.StorageDriver, Postgres: pg, ping: pg.Ping, close: pg.Close}, nil

	case config.DriverSQLite:
		lite, err := sqlitestore.New(ctx, cfg.SQLitePath, loc)
		if err != nil {
			return nil, fmt.Errorf("sqlite unavailable: %w", err)
		}
		if err := lite.EnsureSchema(ctx); err != nil {
			_ = lite.Close()
			return nil, err
		}
		return &Backend{Repo: lite, Driver: cfg.StorageDriver, ping: lite.Ping, close: lite.Close}, nil
	}

	log.Warn().Msg("using in-memory storage; records are lost on restart")
	return &Backend{Repo: memory.New(), Driver: config.DriverMemory}, nil
}

// NewSink picks S3 when a bucket is configured, then a local directory,
// and otherwise keeps artifacts only in the response.
func NewSink(ctx context.Context, cfg config.Config) (report.Sink, error) {
	switch {
	case cfg.ReportS3Bucket != "":
		sink, err := report.NewS3Sink(ctx, cfg.ReportS3Bucket, cfg.ReportS3Prefix)
		if err != nil {
			return nil, fmt.Errorf("s3 report sink: %w", err)
		}
		return sink, nil
	case cfg.ReportDir != "":
		return report.DirSink{Dir: cfg.ReportDir}, nil
	}
	return report.DiscardSink{}, nil
}

type userSeeder interface {
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

// SeedUser creates username unless it already exists. password may be a
// plain value or an existing bcrypt/pbkdf2 hash. It reports whether a user
// was created.
func SeedUser(ctx context.Context, users userSeeder, username string, password string) (bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return false, nil
	}

	_, err := users.FindUser(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	hashed := password
	if !auth.IsPasswordHash(password) {
		if hashed, err = auth.HashPassword(password); err != nil {
			return false, err
		}
	}
	err = users.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  hashed,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}
