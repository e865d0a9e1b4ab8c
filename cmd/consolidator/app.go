package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/JonMunkholm/consolidator/internal/config"
	"github.com/JonMunkholm/consolidator/internal/metrics"
	"github.com/JonMunkholm/consolidator/internal/normalize"
	"github.com/JonMunkholm/consolidator/internal/pipeline"
	"github.com/JonMunkholm/consolidator/internal/publish"
	"github.com/JonMunkholm/consolidator/internal/scanner"
	"github.com/JonMunkholm/consolidator/internal/state"
	"github.com/JonMunkholm/consolidator/internal/store"
	"github.com/JonMunkholm/consolidator/internal/tabular"
)

// openMode selects what an app may touch.
type openMode int

const (
	modeReadOnly openMode = iota // reads the store, creates nothing
	modeLocal                    // writes the store, no downstream sinks
	modeFull                     // writes the store and feeds the sinks
)

// Dialers for the downstream sinks, replaced in tests.
var (
	openDB      = publish.OpenDB
	connectNATS = publish.ConnectNATS
)

// app is the wired pipeline and the resources it owns.
type app struct {
	cfg      *config.Config
	states   *state.Table
	store    *store.Manager
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline

	db       *sql.DB
	notifier *publish.Notifier
}

// openApp wires every component from cfg. Only modeFull connects to the
// downstream sinks.
func openApp(ctx context.Context, cfg *config.Config, mode openMode) (*app, error) {
	readOnly := mode == modeReadOnly
	states, err := state.Open(filepath.Join(cfg.Store.Root, state.FileName), state.Options{
		LockTimeout: cfg.Store.LockTimeout,
		ReadOnly:    readOnly,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		states: states,
		store: store.New(cfg.Store.Root, store.Options{
			CSV:         cfg.Export.CSV,
			Parquet:     cfg.Export.Parquet,
			LockTimeout: cfg.Store.LockTimeout,
			ReadOnly:    readOnly,
		}),
		metrics: metrics.New(),
	}

	opts := pipeline.Options{
		InputRoot: cfg.Input.Root,
		Workers:   cfg.Pipeline.Workers,
		Scanner: scanner.New(scanner.Options{
			MaxFileSize: cfg.Input.MaxFileSize,
			Extensions:  cfg.Input.Extensions,
			SkipDirs:    []string{cfg.Store.Root, filepath.Join(cfg.Store.Root, store.PartitionsDir)},
			Decode:      tabular.Options{HeaderScore: pipeline.HeaderScore},
		}),
		Normalizer: normalize.New(normalize.Options{
			FuzzyThreshold:  cfg.Normalize.FuzzyThreshold,
			DefaultCurrency: cfg.Normalize.DefaultCurrency,
		}),
		Metrics:     a.metrics,
		SinkTimeout: cfg.Pipeline.SinkTimeout,
	}

	if mode == modeFull {
		if m := a.openMirror(ctx); m != nil {
			opts.Mirror = m
		}
		if n := a.openNotifier(); n != nil {
			opts.Notifier = n
		}
	}

	a.pipeline = pipeline.New(states, a.store, opts)
	return a, nil
}

// openMirror connects the Postgres mirror. Failure disables the mirror for
// this process; the marks let a later process catch up.
func (a *app) openMirror(ctx context.Context) *publish.Mirror {
	if !a.cfg.Database.MirrorEnabled() {
		return nil
	}
	db, err := openDB(ctx, a.cfg.Database.URL, publish.DBOptions{
		MaxConns:        a.cfg.Database.MaxConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		slog.Warn("postgres mirror disabled", "error", err)
		return nil
	}

	m := publish.NewMirror(db, publish.MirrorOptions{
		BreakerFailures: a.cfg.Database.BreakerFailures,
		BreakerTimeout:  a.cfg.Database.BreakerTimeout,
	})
	if err := m.EnsureSchema(ctx); err != nil {
		slog.Warn("postgres mirror disabled", "error", err)
		_ = db.Close()
		return nil
	}

	a.db = db
	slog.Info("postgres mirror enabled")
	return m
}

func (a *app) openNotifier() *publish.Notifier {
	if a.cfg.NATS.URL == "" {
		return nil
	}
	n, err := connectNATS(a.cfg.NATS.URL, a.cfg.NATS.Subject)
	if err != nil {
		slog.Warn("merge events disabled", "error", err)
		return nil
	}
	a.notifier = n
	slog.Info("merge events enabled", "subject", n.Subject())
	return n
}

// Close releases the state lock and the sink connections.
func (a *app) Close() error {
	if a.notifier != nil {
		a.notifier.Close()
	}
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	errs = append(errs, a.states.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
