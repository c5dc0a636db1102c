package main

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/config"
	"github.com/getpup/datacopy/history"
	"github.com/getpup/datacopy/internal/lock"
	"github.com/getpup/datacopy/internal/logging"
	"github.com/getpup/datacopy/metrics"
	pkgdatacopy "github.com/getpup/datacopy/pkg/datacopy"
)

// session holds everything a migration command needs, opened from the settings.
type session struct {
	settings *config.Settings
	logger   *logging.Logger
	migrator datacopy.Migrator
	conns    []*pkgdatacopy.Connection
	lock     *lock.Lock
	metrics  *metrics.Server
}

func loadSettings() (*config.Settings, error) {
	s, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		s.Log.Level = logLevel
	}
	return s, nil
}

func newLogger(s *config.Settings) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:      s.Log.Level,
		File:       s.Log.File,
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
	})
}

// openSession connects both instances and builds the migrator.
// With exclusive set, the destination lock is taken first.
func openSession(ctx context.Context, exclusive bool) (_ *session, err error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(settings)
	if err != nil {
		return nil, err
	}

	s := &session{settings: settings, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	if exclusive {
		if s.lock, err = lock.Acquire(settings.RootDir, settings.Destination); err != nil {
			return nil, err
		}
	}

	src, err := s.connect(ctx, settings.Source)
	if err != nil {
		return nil, err
	}
	dst := src
	if settings.Destination != settings.Source {
		if dst, err = s.connect(ctx, settings.Destination); err != nil {
			return nil, err
		}
	}

	if settings.MetricsAddr != "" {
		s.metrics = metrics.NewServer(settings.MetricsAddr)
		s.metrics.Start()
		logger.Info(ctx, "serving metrics", "addr", settings.MetricsAddr)
	}

	s.migrator, err = pkgdatacopy.New(
		pkgdatacopy.WithSettings(settings),
		pkgdatacopy.WithSource(src.Store, settings.Source),
		pkgdatacopy.WithDestination(dst.Store, settings.Destination),
		pkgdatacopy.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) connect(ctx context.Context, alias string) (*pkgdatacopy.Connection, error) {
	inst, ok := s.settings.Instance(alias)
	if !ok {
		return nil, fmt.Errorf("%w: no instance configured for alias %s", datacopy.ErrConfiguration, alias)
	}
	conn, err := pkgdatacopy.Connect(ctx, inst, s.logger)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", alias, err)
	}
	s.conns = append(s.conns, conn)
	return conn, nil
}

func (s *session) close() {
	ctx := context.Background()
	if s.metrics != nil {
		if err := s.metrics.Err(); err != nil {
			s.logger.Warn(ctx, "metrics server failed", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = s.metrics.Shutdown(shutdownCtx)
		cancel()
	}
	for _, conn := range s.conns {
		if err := conn.Close(); err != nil {
			s.logger.Warn(ctx, "failed to close connection", "error", err)
		}
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.logger.Warn(ctx, "failed to release lock", "error", err)
		}
	}
	_ = s.logger.Close()
}

// record saves a finished run to the history database. Failures are logged only.
func (s *session) record(ctx context.Context, command string, started time.Time, bad int, runErr error) {
	store, err := history.Open(s.settings.HistoryPath)
	if err != nil {
		s.logger.Warn(ctx, "run history unavailable", "error", err)
		return
	}
	defer store.Close()

	run := &history.Run{
		Command:     command,
		Source:      s.settings.Source,
		Destination: s.settings.Destination,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Bad:         bad,
		Results:     s.migrator.Results(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := store.Save(ctx, run); err != nil {
		s.logger.Warn(ctx, "failed to save run", "error", err)
		return
	}
	s.logger.Debug(ctx, "run saved", "id", run.ID)
}
