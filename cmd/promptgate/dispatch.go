package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teilomillet/promptgate/config"
	"github.com/teilomillet/promptgate/server/backend"
	"github.com/teilomillet/promptgate/server/dispatch"
)

// errDispatchFailed marks a failure result that has already been written to
// stdout.
var errDispatchFailed = errors.New("dispatch failed")

func newDispatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "dispatch {chat|code}",
		Short:     "Run one request read from stdin and print the result",
		Long:      `Reads one JSON request object from stdin, runs it through the chat or code pipeline and writes the result object to stdout. The exit status is non-zero when the result is a failure.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(dispatch.KindChat), string(dispatch.KindCode)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := dispatch.ParseKind(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.LoadFileOrDefault(opts.configFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, _, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			payload, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading request: %w", err)
			}
			if len(payload) == 0 {
				return errors.New("reading request: stdin is empty")
			}

			client, err := backend.NewClient(cfg.Backend, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := dispatch.New(client, cfg.Dispatch, logger).Dispatch(ctx, kind, payload)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("writing result: %w", err)
			}
			if !res.Succeeded() {
				return errDispatchFailed
			}
			return nil
		},
	}
}
