package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/auth"
	"caixa/backend/internal/bootstrap"
	"caixa/backend/internal/cache"
	"caixa/backend/internal/config"
	"caixa/backend/internal/httpapi"
	"caixa/backend/internal/logger"
	"caixa/backend/internal/report"
	"caixa/backend/internal/scheduler"
	"caixa/backend/internal/service"
)

func main() {
	cfg := config.Load()
	logger.SetGlobalLogger(logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty}))

	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	backend, err := bootstrap.OpenStore(ctx, cfg, loc)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("storage unavailable")
	}
	closers := []func() error{backend.Close}
	log.Info().Str("driver", backend.Driver).Msg("repository ready")

	if created, err := bootstrap.SeedUser(ctx, backend.Repo, cfg.SeedAdminUsername, cfg.SeedAdminPassword); err != nil {
		log.Fatal().Err(err).Msg("seed admin user")
	} else if created {
		log.Info().Str("username", cfg.SeedAdminUsername).Msg("admin user created")
	}

	var revoked auth.RevocationList
	var memRevoked *cache.MemoryRevocationList
	if cfg.RedisAddr != "" {
		redisList := cache.NewRedisRevocationList(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisList.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-memory session denylist")
			_ = redisList.Close()
		} else {
			revoked = redisList
			closers = append(closers, redisList.Close)
			log.Info().Msg("session denylist: redis")
		}
	}
	if revoked == nil {
		memRevoked = cache.NewMemoryRevocationList()
		revoked = memRevoked
	}

	sink, err := bootstrap.NewSink(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("report sink unavailable")
	}

	codec, err := auth.NewTokenCodec(cfg.SecretKey, cfg.SessionTTL())
	if err != nil {
		log.Fatal().Err(err).Msg("session codec")
	}
	authManager := auth.NewAuthManager(codec, backend.Repo, revoked)
	svc := service.New(backend.Repo, report.NewEmitter(cfg.BusinessName, loc, sink), loc)
	api := httpapi.New(svc, authManager, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		Ready:          backend.Ping,
	})

	sched, err := newScheduler(cfg, loc, svc, api, memRevoked)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	sched.Start()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("business", cfg.BusinessName).Msg("caixa listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	sched.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// newScheduler registers the housekeeping jobs and, when configured, the
// end-of-day closing.
func newScheduler(cfg config.Config, loc *time.Location, svc *service.Service, api *httpapi.API, memRevoked *cache.MemoryRevocationList) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log.Logger, loc)

	if err := sched.AddJob("@every 5m", scheduler.FuncJob{
		JobName: "prune-login-limiter",
		Fn: func(context.Context) error {
			api.PruneLimiter()
			return nil
		},
	}); err != nil {
		return nil, err
	}
	if memRevoked != nil {
		if err := sched.AddJob("@every 10m", scheduler.NewPruneRevocationsJob(memRevoked)); err != nil {
			return nil, err
		}
	}
	if cfg.AutoCloseCron != "" {
		if err := sched.AddJob(cfg.AutoCloseCron, scheduler.NewAutoCloseJob(svc, loc)); err != nil {
			return nil, fmt.Errorf("AUTO_CLOSE_CRON: %w", err)
		}
	}
	return sched, nil
}

func validateConfig(cfg config.Config) error {
	if len(cfg.SecretKey) < 32 {
		return errors.New("SECRET_KEY must be set and at least 32 characters")
	}
	if err := bootstrap.ValidateStorage(cfg); err != nil {
		return err
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.AutoCloseCron != "" {
		if err := scheduler.ValidSchedule(cfg.AutoCloseCron); err != nil {
			return fmt.Errorf("AUTO_CLOSE_CRON: %w", err)
		}
	}
	if cfg.StorageDriver == config.DriverMemory && cfg.SeedAdminPassword == "" {
		return errors.New("SEED_ADMIN_PASSWORD must be set for the memory driver, otherwise nobody can log in")
	}
	return nil
}
