// Command bookwatch crawls the demo catalog, tracks changes against a
// local store, and serves the read API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/bookwatch/api"
	"github.com/aluiziolira/bookwatch/config"
	"github.com/aluiziolira/bookwatch/models"
	"github.com/aluiziolira/bookwatch/scheduler"
	"github.com/aluiziolira/bookwatch/scraper"
	"github.com/aluiziolira/bookwatch/store"
	"github.com/aluiziolira/bookwatch/tracker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, err := configFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var verbose bool
	root := &cobra.Command{
		Use:           "bookwatch",
		Short:         "Catalog crawler with change tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Verbose = verbose
			setupLogger(verbose)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL to crawl")
	pf.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum catalog pages (0 = until exhausted)")
	pf.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Concurrent detail requests per page")
	pf.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries per URL after the first attempt")
	pf.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Fixed wait between retries")
	pf.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	pf.StringVar(&cfg.ReportJSON, "report-json", cfg.ReportJSON, "Cumulative JSON report path")
	pf.StringVar(&cfg.ReportCSV, "report-csv", cfg.ReportCSV, "Cumulative CSV report path")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address (e.g. :9090)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newCrawlCmd(cfg), newWatchCmd(cfg), newServeCmd(cfg))
	return root
}

func newCrawlCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl-and-diff cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			metrics := scraper.NewMetrics()
			shutdownMetrics := serveMetrics(cfg, metrics)
			defer shutdownMetrics()

			job := newJob(cfg, st, metrics)

			started := time.Now()
			summary, err := job.RunOnce(ctx)
			if err != nil {
				return err
			}
			printSummary(summary, time.Since(started))
			return nil
		},
	}
}

func newWatchCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run crawl-and-diff cycles on a fixed interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			metrics := scraper.NewMetrics()
			shutdownMetrics := serveMetrics(cfg, metrics)
			defer shutdownMetrics()

			watcher := scheduler.NewWatcher(newJob(cfg, st, metrics), cfg.Interval)
			slog.Info("watching catalog",
				slog.String("base_url", cfg.BaseURL),
				slog.Duration("interval", cfg.Interval),
			)
			if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&cfg.Interval, "interval", cfg.Interval, "Time between cycles")
	return cmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signalContext()
			defer stop()

			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			server := &http.Server{
				Addr:    cfg.APIAddr,
				Handler: api.NewServer(st, cfg.APIKeys, cfg.RatePerHour).Routes(),
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("api shutdown failed", slog.Any("error", err))
				}
			}()

			slog.Info("serving read api",
				slog.String("addr", cfg.APIAddr),
				slog.Int("keys", len(cfg.APIKeys)),
			)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.APIAddr, "addr", cfg.APIAddr, "API listen address")
	cmd.Flags().StringSliceVar(&cfg.APIKeys, "api-key", cfg.APIKeys, "Accepted API key (repeatable)")
	cmd.Flags().IntVar(&cfg.RatePerHour, "rate-limit", cfg.RatePerHour, "Requests per hour per key")
	return cmd
}

func newJob(cfg *config.Config, st *store.Store, metrics *scraper.Metrics) *scheduler.Job {
	crawler := scraper.NewCrawler(cfg, metrics)
	detector := tracker.NewDetector(st)
	reports := tracker.NewReportWriter(cfg.ReportJSON, cfg.ReportCSV)
	return scheduler.NewJob(crawler, detector, reports, metrics)
}

// configFromEnv applies BOOKWATCH_* environment overrides on top of the
// defaults; flags are layered on afterwards.
func configFromEnv() (*config.Config, error) {
	cfg := config.DefaultConfig()

	if value, ok := config.EnvString("BOOKWATCH_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok, err := config.EnvInt("BOOKWATCH_PAGES"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvInt("BOOKWATCH_PARALLEL"); err != nil {
		return nil, err
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok := config.EnvString("BOOKWATCH_DB"); ok {
		cfg.DatabasePath = value
	}
	if value, ok, err := config.EnvDuration("BOOKWATCH_INTERVAL"); err != nil {
		return nil, err
	} else if ok {
		cfg.Interval = value
	}
	if value, ok := config.EnvString("BOOKWATCH_API_ADDR"); ok {
		cfg.APIAddr = value
	}
	if value, ok := config.EnvString("BOOKWATCH_API_KEYS"); ok {
		cfg.APIKeys = strings.Split(value, ",")
	}
	if value, ok, err := config.EnvInt("BOOKWATCH_RATE_LIMIT"); err != nil {
		return nil, err
	} else if ok {
		cfg.RatePerHour = value
	}
	if value, ok := config.EnvString("BOOKWATCH_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return cfg, nil
}

// serveMetrics exposes the Prometheus registry when configured. The
// returned func shuts the listener down.
func serveMetrics(cfg *config.Config, metrics *scraper.Metrics) func() {
	if cfg.MetricsAddr == "" {
		return func() {}
	}

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()
	return ctx, stop
}

func printSummary(summary *models.RunSummary, duration time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"New", "Updated", "Unchanged", "Skipped", "Duration"})
	t.AppendRow(table.Row{
		summary.New,
		summary.Updated,
		summary.Unchanged,
		summary.Skipped,
		duration.Round(time.Millisecond),
	})
	t.Render()
}

func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
