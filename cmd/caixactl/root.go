package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"caixa/backend/internal/bootstrap"
	"caixa/backend/internal/config"
	"caixa/backend/internal/logger"
)

// commandTimeout bounds every command that touches storage.
const commandTimeout = 2 * time.Minute

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "caixactl",
		Short:         "Administrative tasks for the cash register",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg := config.Load()
			logger.SetGlobalLogger(logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Pretty: true}, cmd.ErrOrStderr()))
		},
	}

	root.AddCommand(
		newHashPasswordCmd(),
		newCreateUserCmd(),
		newMigrateCmd(),
		newExportCmd(),
	)
	return root
}

// withBackend loads configuration, opens the configured store and hands
// both to fn.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, loc *time.Location, backend *bootstrap.Backend) error) error {
	cfg := config.Load()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	backend, err := bootstrap.OpenStore(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	return fn(ctx, cfg, loc, backend)
}

func success(out io.Writer, format string, args ...any) {
	okColor.Fprint(out, "ok ")
	fmt.Fprintf(out, format+"\n", args...)
}

func warn(out io.Writer, format string, args ...any) {
	warnColor.Fprintf(out, format+"\n", args...)
}
