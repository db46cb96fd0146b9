// Entry point for the pagecap HTTP service: chi router, optional Basic
// Auth, SQLite capture history, optional MCP stdio transport.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagecap/browser"
	"github.com/hazyhaar/pagecap/capture"
	"github.com/hazyhaar/pagecap/config"
	"github.com/hazyhaar/pagecap/persist"
	"github.com/hazyhaar/pagecap/service"
	"github.com/hazyhaar/pagecap/store"
)

func main() {
	cfgPath := env("CONFIG", "")
	logLevel := env("LOG_LEVEL", "info")
	mcpTransport := env("MCP_TRANSPORT", "")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if addr := os.Getenv("ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Capture history.
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		slog.Error("store dir", "error", err)
		os.Exit(1)
	}
	hist, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer hist.Close()

	// Output sink.
	defFormat, err := persist.ParseFormat(cfg.Output.Format)
	if err != nil {
		slog.Error("output format", "error", err)
		os.Exit(1)
	}
	sink, err := persist.NewSink(cfg.Output.Dir)
	if err != nil {
		slog.Error("sink", "error", err)
		os.Exit(1)
	}

	// Browser.
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		DisableStealth:  cfg.Browser.DisableStealth,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		Logger:          logger,
	})
	if !cfg.Capture.Disabled {
		if err := mgr.Start(ctx); err != nil {
			slog.Error("browser start", "error", err)
			os.Exit(1)
		}
	}
	defer mgr.Close()

	// Capture engine and service.
	engine := capture.New(capture.Config{
		Retry: capture.RetryPolicy{
			Retries:   cfg.Capture.Retries,
			BaseDelay: cfg.Capture.RetryBaseDelay,
		},
		SettleDelay: cfg.Capture.SettleDelay,
		Logger:      logger,
	})

	opener := service.OpenerFunc(func(ctx context.Context) (capture.RenderSurface, error) {
		return mgr.OpenSurface(ctx)
	})

	svc := service.New(service.Config{
		Disabled: cfg.Capture.Disabled,
		Viewport: capture.Viewport{Width: cfg.Capture.Width, Height: cfg.Capture.Height},
		Format:   defFormat,
		AuthHash: cfg.Server.AuthPasswordHash,
	}, engine, opener, sink, hist, logger)

	// Optional MCP stdio transport.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "pagecap",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
