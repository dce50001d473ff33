package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/warranty-cli/internal/browser"
	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"github.com/xkilldash9x/warranty-cli/internal/config"
	"github.com/xkilldash9x/warranty-cli/internal/observability"
	"github.com/xkilldash9x/warranty-cli/internal/reporting"
	"github.com/xkilldash9x/warranty-cli/internal/store"
	"github.com/xkilldash9x/warranty-cli/internal/hp"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
)

// withPage starts a browser session and hands fn the HP page adapter bound
// to it. The session is closed when fn returns. Swapped out in tests.
var withPage = func(ctx context.Context, cfg *config.Config, logger *zap.Logger, fn func(warranty.Page) error) error {
	return browser.Acquire(ctx, cfg.Browser, logger, func(s *browser.Session) error {
		return fn(hp.New(s, cfg.Vendor, logger))
	})
}

// openStore connects to PostgreSQL and prepares the results table.
var openStore = func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (warranty.Sink, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st, err := store.New(ctx, pool, cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize result store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

type lookupOptions struct {
	input  string
	output string
	format string
	report string
}

func newLookupCmd() *cobra.Command {
	opts := &lookupOptions{}

	lookupCmd := &cobra.Command{
		Use:   "lookup",
		Short: "Looks up warranty dates for every computer in the input file",
		Long: `Reads serial and product numbers from a CSV file, submits them to the HP
warranty checker in batches and appends each finished batch to the output CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runLookup(cmd.Context(), cfg, opts, observability.GetLogger())
		},
	}

	lookupCmd.Flags().StringVarP(&opts.input, "input", "i", "hp_products.csv", "CSV file with serial_number,product_number columns")
	lookupCmd.Flags().StringVarP(&opts.output, "output", "o", "hp_warranty.csv", "CSV file the results are written to")
	lookupCmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Format of the run summary ('table' or 'json')")
	lookupCmd.Flags().StringVar(&opts.report, "report", "", "File the run summary is written to (default stdout)")
	lookupCmd.Flags().Bool("headless", true, "Run the browser without a window (overrides config/env)")
	lookupCmd.Flags().Int("max-items", 0, "Maximum computers per batch (overrides config/env)")
	lookupCmd.Flags().Duration("batch-interval", 0, "Minimum spacing between batches (overrides config/env)")
	lookupCmd.Flags().String("metrics-file", "", "Prometheus textfile the run metrics are written to (overrides config/env)")
	return lookupCmd
}

func runLookup(ctx context.Context, cfg *config.Config, opts *lookupOptions, logger *zap.Logger) error {
	input, err := homedir.Expand(opts.input)
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	output, err := homedir.Expand(opts.output)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	cfg.Run = config.RunConfig{Input: input, Output: output}

	computers, err := computer.ReadComputersFile(input)
	if err != nil {
		return err
	}
	logger.Info("Loaded computers.", zap.Int("count", len(computers)), zap.String("input", input))

	report := opts.report
	if report != "" {
		if report, err = homedir.Expand(report); err != nil {
			return fmt.Errorf("invalid report path: %w", err)
		}
	}
	reporter, err := reporting.New(opts.format, report)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Error("Failed to close reporter", zap.Error(err))
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	sinks := []warranty.Sink{computer.NewResultWriter(output)}
	if cfg.Store.URL != "" {
		sink, closeStore, err := openStore(ctx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		sinks = append(sinks, sink)
	}

	var summary warranty.Summary
	runErr := withPage(ctx, cfg, logger, func(page warranty.Page) error {
		waiter := warranty.NewWaiter(nil, cfg.Lookup.PollInterval, logger, metrics)
		orchestrator := warranty.NewOrchestrator(page, waiter, warranty.Options{
			LoadTimeout:      cfg.Lookup.LoadTimeout,
			OutcomeTimeout:   cfg.Lookup.OutcomeTimeout,
			SettleTimeout:    cfg.Lookup.SettleTimeout,
			ProductQueryName: cfg.Vendor.Markup.ProductNumberQueryName,
		}, logger, metrics)
		runner := warranty.NewRunner(orchestrator, warranty.RunnerConfig{
			MaxItems:      cfg.Lookup.MaxItems,
			BatchInterval: cfg.Lookup.BatchInterval,
		}, logger, metrics, sinks...)

		var err error
		summary, err = runner.Run(ctx, computers)
		return err
	})

	if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logger.Warn("Failed to write metrics.", zap.Error(err))
	}

	// Aborted runs still print the batches that finished.
	if summary.RunID != "" {
		if err := reporter.Write(summary); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to write report: %w", err))
		}
	}
	if runErr != nil {
		return fmt.Errorf("warranty lookup failed: %w", runErr)
	}

	logger.Info("Results written.", zap.String("output", output), zap.String("run_id", summary.RunID))
	return nil
}
