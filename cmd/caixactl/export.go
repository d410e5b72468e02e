package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"caixa/backend/internal/bootstrap"
	"caixa/backend/internal/config"
	"caixa/backend/internal/metrics"
	"caixa/backend/internal/report"
	"caixa/backend/internal/service"
)

func newExportCmd() *cobra.Command {
	var day, format, outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the closing report for a day",
		Long: `Builds the closing report for --data (today when omitted) and stores it
in --out, or in the configured report sink when --out is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, cfg config.Config, loc *time.Location, backend *bootstrap.Backend) error {
				sink, err := exportSink(ctx, cfg, outDir)
				if err != nil {
					return err
				}
				svc := service.New(backend.Repo, report.NewEmitter(cfg.BusinessName, loc, sink), loc)
				artifact, err := svc.Export(ctx, day, parsed)
				if err != nil {
					return err
				}
				metrics.ReportsEmitted.WithLabelValues(string(parsed), "cli").Inc()
				success(cmd.OutOrStdout(), "%s (%d bytes) -> %s", artifact.Name, len(artifact.Body), artifact.Location)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "data", "", "business day as YYYY-MM-DD")
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or csv")
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write to")
	return cmd
}

// exportSink prefers --out, then the configured sink, then the working
// directory so the command always leaves a file behind.
func exportSink(ctx context.Context, cfg config.Config, outDir string) (report.Sink, error) {
	if outDir != "" {
		return report.DirSink{Dir: outDir}, nil
	}
	sink, err := bootstrap.NewSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, discard := sink.(report.DiscardSink); discard {
		return report.DirSink{Dir: "."}, nil
	}
	return sink, nil
}
