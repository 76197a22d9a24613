package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teilomillet/promptgate/config"
	"github.com/teilomillet/promptgate/errors"
	"github.com/teilomillet/promptgate/server"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Starts the HTTP gateway. When the config file exists it is watched and
logging.level and queue.max_waiting are applied on change; other settings,
including backend.base_url, need a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFileOrDefault(opts.configFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			logger, level, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()
			errors.SetLogger(logger)

			serverOpts := []server.Option{server.WithLogLevel(level)}
			if _, err := os.Stat(opts.configFile); err == nil {
				watcher, err := config.NewConfigWatcher(opts.configFile, logger)
				if err != nil {
					return fmt.Errorf("watching config: %w", err)
				}
				defer watcher.Close()
				serverOpts = append(serverOpts, server.WithConfigWatcher(watcher))
			} else {
				logger.Info("No config file, using defaults", zap.String("path", opts.configFile))
			}

			srv, err := server.New(cfg, logger, serverOpts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting promptgate",
				zap.String("version", Version),
				zap.Int("port", cfg.Server.Port),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8000, "listen port (overrides server.port)")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadFile(opts.configFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
}
