// Package main is the entry point for the selector engine server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/selector-engine/pkg/api"
	grpcapi "github.com/lemonberrylabs/selector-engine/pkg/api/grpc"
	"github.com/lemonberrylabs/selector-engine/pkg/config"
	"github.com/lemonberrylabs/selector-engine/pkg/runtime"
	"github.com/lemonberrylabs/selector-engine/pkg/store"
	"github.com/lemonberrylabs/selector-engine/web"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "selectors-server",
	Short: "Selector query engine HTTP and gRPC server",
	RunE:  run,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("selectors-server version {{.Version}}\n")

	rootCmd.Flags().String("config", "", "YAML configuration file (env SELECTORS_CONFIG)")
	rootCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	rootCmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	rootCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	rootCmd.Flags().String("documents-dir", "", "Directory of HTML documents to load (env DOCUMENTS_DIR)")
	rootCmd.Flags().String("documents-pattern", "", "Doublestar pattern selecting documents (default **/*.html)")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := envOrDefault("SELECTORS_CONFIG", "")
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		cfg.Server.GRPCPort = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Server.Host = v
	}
	if v, _ := cmd.Flags().GetString("documents-dir"); v != "" {
		cfg.Documents.Dir = v
	}
	if v, _ := cmd.Flags().GetString("documents-pattern"); v != "" {
		cfg.Documents.Pattern = v
	}
	if v, _ := cmd.Flags().GetBool("debug"); v {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engine, err := runtime.NewEngine(cfg, logger)
	if err != nil {
		return err
	}
	s := store.New(logger.Named("store"))
	if cfg.Documents.Dir != "" {
		if _, err := s.LoadDir(cfg.Documents.Dir, cfg.Documents.Pattern); err != nil {
			logger.Warn("failed to load documents directory", zap.String("dir", cfg.Documents.Dir), zap.Error(err))
		}
	}

	server := api.New(s, engine, logger.Named("http"))
	web.New(s, engine).Register(server.App())
	grpcServer := grpcapi.New(s, engine, logger.Named("grpc"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", grpcAddr))
		return grpcServer.Serve(grpcAddr)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", addr), zap.Int("documents", len(s.List())))
		return server.Listen(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
