package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Aman-CERP/docrag/internal/config"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/telemetry"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// loadConfig loads the configuration for the current directory and applies
// the --config and --data-dir flags.
func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.LoadWithFile(dir, configFile)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		abs, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, docerrors.ConfigError("invalid --data-dir", err).WithDetail("path", dataDir)
		}
		cfg.Paths.DataDir = abs
	}
	return cfg, nil
}

// plainOutput reports whether colors are disabled by flag or environment.
func plainOutput() bool {
	return noColor || ui.DetectNoColor()
}

// session is an open Manager plus the persistent query log and activity
// counters of one command.
type session struct {
	cfg       *config.Config
	manager   *lifecycle.Manager
	queries   *telemetry.QueryMetrics
	collector *telemetry.Collector
	store     *telemetry.SQLiteMetricsStore
}

// openSession opens the indexes of cfg with metrics recording into
// DataDir/metrics.db. A metrics store that cannot be opened only costs
// the persistent query log.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	s := &session{cfg: cfg}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeFilePermission, "cannot create data directory", err).
			WithDetail("path", cfg.Paths.DataDir)
	}

	metricsPath := filepath.Join(cfg.Paths.DataDir, telemetry.MetricsFileName)
	store, err := telemetry.OpenSQLiteMetricsStore(metricsPath)
	if err != nil {
		slog.Warn("metrics_store_unavailable",
			slog.String("path", metricsPath),
			slog.String("error", err.Error()))
		s.queries = telemetry.NewQueryMetrics(nil)
	} else {
		s.store = store
		s.queries = telemetry.NewQueryMetrics(store)
	}

	s.collector = telemetry.NewCollector()
	m, err := lifecycle.Open(ctx, cfg, lifecycle.WithMetrics(s.collector.Metrics(s.queries)))
	if err != nil {
		return nil, errors.Join(err, s.closeMetrics())
	}
	s.manager = m
	return s, nil
}

// Close closes the manager, flushes the query log and activity counters
// and closes their store.
func (s *session) Close() error {
	var errs []error
	if s.manager != nil {
		errs = append(errs, s.manager.Close())
	}
	errs = append(errs, s.closeMetrics())
	return errors.Join(errs...)
}

func (s *session) closeMetrics() error {
	var errs []error
	if s.queries != nil {
		errs = append(errs, s.queries.Close())
		s.queries = nil
	}
	if s.collector != nil {
		ctx := context.Background()
		if s.store != nil {
			errs = append(errs, s.collector.Persist(ctx, s.store, time.Now()))
		}
		errs = append(errs, s.collector.Shutdown(ctx))
		s.collector = nil
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}
	return errors.Join(errs...)
}

// withSession loads the config, opens a session and runs fn with it.
func withSession(ctx context.Context, fn func(ctx context.Context, s *session) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
