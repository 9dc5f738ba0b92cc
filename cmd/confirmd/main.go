package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"confirm-dialog/internal/app"
	"confirm-dialog/internal/config"
	"confirm-dialog/internal/http/response"
	"confirm-dialog/internal/logging"
	"confirm-dialog/internal/policy"
	"confirm-dialog/internal/tools"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "confirmd",
		Short:         "Server-side confirmation dialogs for destructive actions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (overrides CONFIG_FILE)")

	load := func() (config.Config, *zap.Logger, func(), error) {
		if configFile != "" {
			_ = os.Setenv("CONFIG_FILE", configFile)
		}
		cfg, err := config.FromEnv()
		if err != nil {
			return config.Config{}, nil, nil, errors.Wrap(err, "invalid config")
		}
		log, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir})
		if err != nil {
			return config.Config{}, nil, nil, err
		}
		return cfg, log, cleanup, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the dialog pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, cleanup, err := load()
			if err != nil {
				return err
			}
			defer cleanup()
			return serve(cmd.Context(), cfg, log)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP administration server (stdio or http)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, cleanup, err := load()
			if err != nil {
				return err
			}
			defer cleanup()
			return runMCP(cmd.Context(), cfg, log)
		},
	})
	return root
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.SessionBackend == "memory" {
		log.Warn("memory session backend is private to this process; the MCP server will not see web sessions")
	}
	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}, nil)
	tools.NewRegistry(tools.Options{
		Dialogs:     core.Dialogs,
		Sessions:    core.Sessions,
		Observer:    core.Observer(),
		Confirm:     policy.NewConfirmPolicy(cfg.MCP.ConfirmToken),
		Idempotency: policy.NewIdempotencyStore(cfg.MCP.IdempotencyTTL),
		Audit:       core.Audit,
		Logger:      log,
	}).Register(server)

	switch cfg.MCP.Transport {
	case "http":
		return runMCPHTTP(server, cfg.MCP, log)
	default:
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
			return errors.Wrap(err, "mcp stdio server exited")
		}
		return nil
	}
}

func runMCPHTTP(server *mcp.Server, cfg config.MCPConfig, log *zap.Logger) error {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/healthz"
	}
	mux.HandleFunc("GET "+healthPath, func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, response.OKEmpty())
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("mcp http listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "mcp http server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
