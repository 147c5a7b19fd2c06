package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobsift/jobsift/pkg/api"
	"github.com/jobsift/jobsift/pkg/cleanup"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/scheduler"
)

func newServeCmd(configPath *string) *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and the continuous tier scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, *configPath)
			if err != nil {
				return err
			}
			defer p.close()

			server := api.NewServer(p.settings.ListenAddr, p.settings.WebhookAPIKey,
				p.scheduler, p.store, p.client, p.db)

			retention := cleanup.NewService(p.db.DB, 0, 0)
			retention.Start(ctx)
			defer retention.Stop()

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			if !noSchedule {
				go func() {
					if err := p.scheduler.RunContinuous(ctx); err != nil && ctx.Err() == nil {
						slog.Error("Scheduler stopped", "error", err)
					}
				}()
			}

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false,
		"serve the API without the continuous scheduler")
	return cmd
}

func newScheduleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the continuous tier scheduler without the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, *configPath)
			if err != nil {
				return err
			}
			defer p.close()

			if err := p.scheduler.RunContinuous(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print pending tier counts and usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			ctx := context.Background()

			p, err := buildPipeline(ctx, *configPath)
			if err != nil {
				return err
			}
			defer p.close()

			status, err := p.store.ProcessingStatus(ctx)
			if err != nil {
				return err
			}

			body := map[string]any{
				"processing_status": status,
				"usage":             p.client.Ledger().Snapshot(),
				"current_time":      time.Now().Format(time.RFC3339),
			}
			if tier, ok := p.scheduler.ActiveTier(); ok {
				body["active_tier"] = int(tier)
			}
			return printJSON(body)
		},
	}
}

func newTierCmd(configPath *string, tier models.Tier) *cobra.Command {
	var maxJobs int
	var model string

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("tier%d", tier),
		Short: fmt.Sprintf("Run tier %d analysis over pending jobs", tier),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, *configPath)
			if err != nil {
				return err
			}
			defer p.close()

			if model != "" {
				if _, ok := p.client.Catalog().Get(model); !ok {
					return usageError{fmt.Errorf("unknown model %q", model)}
				}
			}

			stats, err := p.scheduler.RunTierBatch(ctx, tier, maxJobs, model)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "maximum jobs to process (0 = all)")
	cmd.Flags().StringVar(&model, "model", "", "model override for this run")
	return cmd
}

func newAllCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run tiers 1, 2, and 3 sequentially over pending jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, *configPath)
			if err != nil {
				return err
			}
			defer p.close()

			stats, err := p.scheduler.RunFullSequentialBatch(ctx, scheduler.SequentialOptions{})
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
