/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance adjudication server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment, then flags)
  2. Open the store selected by DB_DRIVER
  3. Load shift policies from SHIFTS_FILE
  4. Create API handler and router
  5. Start the reminder scheduler (when REMINDER_INTERVAL > 0)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port, overrides APP_PORT
  -db      SQLite database path, overrides SQLITE_PATH
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reminder scheduler
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/attendance.db"

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://localhost/attendance ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/store/memory"
	"github.com/warp/attendance-engine/store/postgres"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides APP_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides SQLITE_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.App.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.SQLitePath = *dbPath
	}

	logFormat := httplog.SchemaECS.Concise(!cfg.IsProduction())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.SlogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "attendance-engine"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()
	logger.Info("store ready", "driver", cfg.Database.Driver)

	shifts := factory.NewShiftFactory()
	if cfg.Shifts.File != "" {
		if err := shifts.LoadFile(cfg.Shifts.File); err != nil {
			return fmt.Errorf("failed to load shifts: %w", err)
		}
		logger.Info("shift policies loaded", "file", cfg.Shifts.File, "count", len(shifts.Shifts()))
	}

	handler := api.NewHandler(store, shifts, cfg.DefaultSchedule(), logger)

	opts := api.RouterOptions{Logger: logger, EnableScenarios: !cfg.IsProduction()}
	if cfg.JWT.Secret != "" {
		opts.TokenAuth = api.NewTokenAuth(cfg.JWT.Secret)
	} else {
		logger.Warn("JWT_SECRET not set: API is unauthenticated and trusts actor_id from request bodies")
	}
	router := api.NewRouter(handler, opts)

	reminders := api.NewReminderScheduler(handler, api.SlogNotifier{Logger: logger})
	reminders.CheckInterval = cfg.Reminder.Interval
	reminders.StaleAfter = cfg.Reminder.StaleAfter
	reminders.Start()
	defer reminders.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (api.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return memory.New(), func() {}, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
