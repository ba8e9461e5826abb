package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/piiscan/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP extraction service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					a.log.Error().Err(err).Msg("shutdown cleanup failed")
				}
			}()

			srv := server.New(a.pipeline, a.log, server.Options{
				Addr:            cfg.Server.Addr,
				APIKeys:         cfg.Server.APIKeys,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				MaxBodyBytes:    cfg.Server.MaxBodyBytes,
				RequestTimeout:  time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
				ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
				Version:         version,
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
