// Command socialcore serves the social store over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"socialcore/internal/adapters/exports"
	"socialcore/internal/adapters/httpapi"
	"socialcore/internal/blob"
	"socialcore/internal/config"
	"socialcore/internal/core"
	"socialcore/internal/infra/events"
	"socialcore/internal/infra/journal"
	"socialcore/internal/infra/journal/postgres"
	"socialcore/internal/infra/journal/sqlite"
	"socialcore/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("socialcore stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app holds the assembled components and the cleanups that release them.
type app struct {
	service  *core.Service
	api      *httpapi.Handler
	handler  http.Handler
	exporter *exports.Worker
	closers  []func() error
}

// attach installs the handler on server and ends open event streams as soon
// as Shutdown begins.
func (a *app) attach(server *http.Server) {
	server.Handler = a.handler
	server.RegisterOnShutdown(a.api.Close)
}

func (a *app) close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	metrics := observability.NewMetrics()
	bus := events.NewBus()
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetrics(metrics),
		core.WithPublisher(bus),
	}
	apiOpts := []httpapi.Option{httpapi.WithEvents(bus)}

	reader, journalSink, closeJournal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return nil, err
	}
	if closeJournal != nil {
		a.closers = append(a.closers, closeJournal)
	}
	if journalSink != nil {
		opts = append(opts, core.WithJournal(journalSink))
		apiOpts = append(apiOpts, httpapi.WithChanges(reader))
	}

	if cfg.NATS.URL != "" {
		pub, err := events.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			a.close(logger)
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, core.WithPublisher(pub))
		logger.Info("publishing changes to nats", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	a.service = core.NewInMemoryService(opts...)

	if cfg.Blob.Driver != config.BlobNone {
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			a.close(logger)
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		format, err := exports.ParseFormat(cfg.Export.Format)
		if err != nil {
			a.close(logger)
			return nil, err
		}
		a.exporter = exports.NewWorker(a.service, store, format, exports.WithLogger(logger))
		if cfg.Export.Schedule != "" {
			if err := a.exporter.Schedule(cfg.Export.Schedule); err != nil {
				a.close(logger)
				return nil, err
			}
		}
		apiOpts = append(apiOpts, httpapi.WithExports(a.exporter))
	}

	tracing, err := observability.NewTracing(cfg.Zipkin.ServiceName, localHostPort(cfg.HTTP.Addr), cfg.Zipkin.Endpoint)
	if err != nil {
		a.close(logger)
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, tracing.Close)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	a.api = httpapi.NewHandler(a.service, apiOpts...)
	mux.Handle("/", a.api)
	a.handler = httpapi.Chain(mux,
		tracing.Middleware,
		metrics.Middleware,
		httpapi.AccessLog(logger),
	)
	return a, nil
}

// localHostPort turns a listen address such as ":8080" into one the tracer
// can resolve.
func localHostPort(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// openJournal returns the reader and sink for the configured driver. Both are
// nil for the none driver.
func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Reader, core.ChangeJournal, func() error, error) {
	switch cfg.Driver {
	case config.JournalNone:
		return nil, nil, nil, nil
	case config.JournalSQLite:
		j, err := sqlite.NewJournal(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return j, j, j.Close, nil
	case config.JournalPostgres:
		j, err := postgres.NewJournal(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres journal: %w", err)
		}
		return j, j, j.Close, nil
	default:
		j := journal.NewMemory(cfg.Capacity)
		return j, j, nil, nil
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	if a.exporter != nil {
		a.exporter.Start()
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.attach(server)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("socialcore listening", "addr", cfg.HTTP.Addr, "journal", cfg.Journal.Driver, "blob", cfg.Blob.Driver)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if a.exporter != nil {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancelStop()
		if err := a.exporter.Stop(stopCtx); err != nil {
			logger.Warn("export worker shutdown", "error", err)
		}
	}
	return nil
}
