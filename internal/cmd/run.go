package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthcheck_srv/internal/app"
	"healthcheck_srv/internal/domain/report"
	"healthcheck_srv/internal/infrastructure/template"
	"healthcheck_srv/internal/usecase"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newRunCommand(e *env) *cobra.Command {
	var (
		categories []string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the catalog and write an xlsx workbook",
		Long: `Run every catalog query through the configured executor and write the
results into an xlsx workbook. Placeholder entries are listed as skipped,
and a failing query only fails its own table.

Examples:
  healthcheck run --config orion.yaml
  healthcheck run --category NPM --category SAM --out nightly.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = fmt.Sprintf("healthcheck-%s.xlsx", time.Now().Format("20060102-150405"))
			}

			full, err := e.catalog()
			if err != nil {
				return err
			}
			cat, err := full.Filter(categories...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			executor, closeExecutor, err := app.NewExecutor(ctx, e.cfg.Executor, e.logger)
			if err != nil {
				return fmt.Errorf("failed to create executor: %w", err)
			}
			defer closeExecutor()

			bar := progressbar.NewOptions(cat.ReportCount(),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Running queries"),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionSetRenderBlankState(true),
				progressbar.OptionClearOnFinish(),
			)

			runner := usecase.NewRunner(executor, e.logger, usecase.Options{
				Concurrency:  e.cfg.Runner.Concurrency,
				QueryTimeout: e.cfg.Runner.QueryTimeout,
				OnTable: func(report.Table) {
					_ = bar.Add(1)
				},
			})

			result, err := runner.Run(ctx, cat)
			_ = bar.Finish()
			if err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}

			data, err := template.NewXLSX(e.logger).Render(result)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write workbook: %w", err)
			}

			printSummary(cmd, result, out)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&categories, "category", nil, "category to run, repeatable (default: all)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "workbook path (default: healthcheck-<time>.xlsx)")
	return cmd
}

func printSummary(cmd *cobra.Command, result report.Result, out string) {
	w := cmd.OutOrStdout()

	for _, sec := range result.Sections {
		for _, t := range sec.Tables {
			if t.Status == report.StatusFailed {
				fmt.Fprintf(w, "%s %s / %s: %s\n", styleError.Render("✗"), sec.Category, t.Label, t.Error)
			}
		}
	}

	fmt.Fprintf(w, "%s %s, %s, %s in %s\n",
		styleSuccess.Render("✓"),
		styleSuccess.Render(fmt.Sprintf("%d executed", result.Executed())),
		styleMuted.Render(fmt.Sprintf("%d skipped", result.Skipped())),
		styleError.Render(fmt.Sprintf("%d failed", result.Failed())),
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Workbook written to %s\n", out)
}
