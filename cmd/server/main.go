package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tablesift/internal/config"
	"github.com/JonMunkholm/tablesift/internal/core"
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/ingest"
	"github.com/JonMunkholm/tablesift/internal/logging"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/render"
	"github.com/JonMunkholm/tablesift/internal/web"
)

func main() {
	// Load .env if present; variables already set in the environment win.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	// PostgreSQL export is optional.
	var sink *export.Postgres
	if cfg.Export.ExportEnabled() {
		sink, err = export.NewPostgres(ctx, cfg.Export.DatabaseURL, cfg.Export.Schema)
		if err != nil {
			slog.Error("failed to connect to export database", "error", err)
			os.Exit(1)
		}
		defer sink.Close()

		if u, err := url.Parse(cfg.Export.DatabaseURL); err == nil {
			slog.Info("export database connected", "name", strings.TrimPrefix(u.Path, "/"), "schema", cfg.Export.Schema)
		} else {
			slog.Info("export database connected")
		}
	}

	session := core.NewSession(core.Options{
		Logger: logger,
		Loader: ingest.NewLoader(ingest.Options{
			MaxFileSize: cfg.Load.MaxFileSize,
			ChunkSize:   cfg.Load.ChunkSize,
			Timeout:     cfg.Load.Timeout,
			Logger:      logger,
		}),
		Engine: query.NewEngine(cfg.Search.ShardSize),
		Render: render.Options{
			MaxCellWidth: cfg.Render.MaxCellWidth,
			MemoLimit:    cfg.Render.MemoLimit,
		},
		Postgres:        sink,
		DefaultPageSize: cfg.Render.PageSize,
		MaxPageSize:     cfg.Render.MaxPageSize,
	})

	server := web.NewServer(session, *cfg)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := session.Shutdown(shutdownCtx); err != nil {
			slog.Warn("load did not stop in time", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
