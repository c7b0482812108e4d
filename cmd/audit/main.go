package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"personachat/config"
	"personachat/logging"
	"personachat/services"
)

func main() {
	var (
		configPath string
		since      time.Duration
		every      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report relay outcomes per persona from the exchange table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			db, err := services.NewDynamoClient(ctx, cfg.AuditSettings())
			if err != nil {
				return err
			}
			recorder := services.NewDynamoRecorder(db, cfg.Audit.Table, logger)

			report := func() error {
				summary, err := recorder.Summarize(ctx, time.Now().Add(-since))
				if err != nil {
					return err
				}
				return writeReport(cmd.OutOrStdout(), summary)
			}
			if err := report(); err != nil {
				return err
			}
			if every <= 0 {
				return nil
			}

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := report(); err != nil {
						logger.Error().Err(err).Msg("audit report failed")
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "report exchanges started within this window")
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the report at this interval (0 runs once)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
