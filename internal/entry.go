// Package internal provides the application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/starford/csvledger/internal/journal"
	"github.com/starford/csvledger/internal/ledger"
)

// App holds the services one command runs against.
type App struct {
	Config *Config
	Logger *slog.Logger
	Ledger *ledger.Service

	journal *journal.DB
}

// New wires the logger, the journal and the ledger service.
func New(opts ...Option) (*App, error) {
	app := &application{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := NewLogger(app.logOutput, cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("data_file", cfg.Store.DataFile),
		slog.String("id_column", cfg.Store.IDColumn),
		slog.Bool("journal", cfg.Journal.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	a := &App{Config: cfg, Logger: logger}
	var rec journal.Recorder
	if cfg.Journal.Enabled {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		a.journal = db
		rec = db
	}
	a.Ledger = ledger.NewService(ledger.Options{
		DataFile: cfg.Store.DataFile,
		IDColumn: cfg.Store.IDColumn,
	}, rec, logger)
	return a, nil
}

// Close releases the journal.
func (a *App) Close() error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Close()
}

// Watch keeps the index in step with the data file until ctx is cancelled
// or the process receives SIGINT or SIGTERM.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Ledger.Watch(gCtx, func(path string, err error) {
			if err == nil {
				a.Logger.Info("Index rebuilt", slog.String("path", path))
			}
		})
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			a.Logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// NewLogger returns a JSON logger, or a tint text logger that colours its
// output when w is a terminal.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
}
