package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/doiwatch/internal/alert"
	"github.com/hazz-dev/doiwatch/internal/config"
	"github.com/hazz-dev/doiwatch/internal/doi"
	"github.com/hazz-dev/doiwatch/internal/health"
	"github.com/hazz-dev/doiwatch/internal/metrics"
	"github.com/hazz-dev/doiwatch/internal/monitor"
	"github.com/hazz-dev/doiwatch/internal/prober"
	"github.com/hazz-dev/doiwatch/internal/scheduler"
	"github.com/hazz-dev/doiwatch/internal/server"
	"github.com/hazz-dev/doiwatch/internal/storage"
	"github.com/hazz-dev/doiwatch/internal/version"
)

var cfgFile string

// store is the full persistence capability the commands need; both storage
// backends satisfy it.
type store interface {
	ListIdentifiers(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, doi string) (*health.Record, error)
	PutStatus(ctx context.Context, doi string, rec health.Record) error
	DeleteStatus(ctx context.Context, doi string) error
	AddIdentifier(ctx context.Context, doi string) error
	RemoveIdentifier(ctx context.Context, doi string) error
	Close() error
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "doiwatch",
		Short:        "DOI link-rot monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(cycleCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(addCmd())
	root.AddCommand(removeCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("doiwatch %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return storage.OpenPostgres(ctx, cfg.Storage.URL)
	default:
		return storage.Open(cfg.Storage.Path)
	}
}

func buildMonitor(cfg *config.Config, db store, m *metrics.Metrics, logger *slog.Logger) *monitor.Monitor {
	p := prober.New(prober.Config{
		UserAgent:       cfg.Probe.UserAgent,
		Timeout:         cfg.Probe.Timeout.Duration,
		MaxRetries:      cfg.Probe.MaxRetriesOrDefault(),
		RetryDelay:      cfg.Probe.RetryDelay.Duration,
		FollowRedirects: cfg.Probe.FollowRedirectsOrDefault(),
		MaxConcurrency:  cfg.Monitor.MaxConcurrency,
		ResolverBase:    cfg.Probe.ResolverBase,
	})
	dispatcher := alert.New(alert.Config{
		Enabled:          cfg.Alerts.Enabled,
		EndpointURL:      cfg.Alerts.EndpointURL,
		AuthToken:        cfg.Alerts.AuthToken,
		MaxMessageLength: cfg.Alerts.MaxMessageLength,
		MaxRetries:       cfg.Alerts.MaxRetriesOrDefault(),
		RetryDelay:       cfg.Alerts.RetryDelay.Duration,
		Timeout:          cfg.Alerts.Timeout.Duration,
	}, logger)
	return monitor.New(db, p, dispatcher, m, cfg.Monitor.CycleBudget.Duration, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitor with its scheduler and HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	mon := buildMonitor(cfg, db, m, logger)

	sched := scheduler.New(mon, cfg.Monitor.Interval.Duration, logger)
	apiServer := server.New(db, mon, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: apiServer.Router(),
	}

	sched.Start(ctx)
	logger.Info("scheduler started", "interval", cfg.Monitor.Interval.Duration)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one check cycle over all monitored DOIs",
		RunE:  runCycle,
	}
}

func runCycle(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	mon := buildMonitor(cfg, db, nil, slog.Default())
	return executeCycle(cmd, mon)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current status of all monitored DOIs",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd, db)
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <doi>",
		Short: "Add a DOI to the monitored set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			normalized, err := doi.Normalize(args[0])
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer db.Close()

			if err := db.AddIdentifier(cmd.Context(), normalized); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitoring %s\n", normalized)
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <doi>",
		Short: "Remove a DOI from the monitored set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			normalized, err := doi.Normalize(args[0])
			if err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer db.Close()

			if err := db.RemoveIdentifier(cmd.Context(), normalized); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped monitoring %s\n", normalized)
			return nil
		},
	}
}
