package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/api"
	"github.com/marmos91/dittovault/pkg/config"
	"github.com/marmos91/dittovault/pkg/server"
	"github.com/marmos91/dittovault/pkg/vault"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetFormat(cfg.Logging.Format); err != nil {
		return err
	}
	closer, err := logger.SetOutput(cfg.Logging.Output)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	logger.Info("dittovault %s starting", version)
	logger.Info("Block store: %s, metadata index: %s", cfg.Blocks.Type, cfg.Metadata.Type)

	// Terminates on Ctrl+C or SIGTERM
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(cfg)

	blocks, err := config.CreateBlockStore(ctx, &cfg.Blocks, m.S3)
	if err != nil {
		return err
	}
	index, err := config.CreateMetadataIndex(ctx, &cfg.Metadata)
	if err != nil {
		_ = blocks.Close()
		return err
	}

	svc := vault.New(blocks, index, cfg.Vault, m.Vault)

	srv := server.New(svc, cfg.Server.ShutdownTimeout)
	if err := srv.Add(api.NewServer(svc, cfg.API)); err != nil {
		return err
	}
	if m.Server != nil {
		if err := srv.Add(m.Server); err != nil {
			return err
		}
	}

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
