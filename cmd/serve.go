package main

import (
	"context"

	"github.com/desertthunder/mangax/internal/server"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve exposes the matching service over HTTP until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Port = int(port)
	}

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.Close()

	srv := server.New(cfg, s.svc, shared.WithLogger(r.logger, "component", "server"))
	return srv.ListenAndServe(ctx)
}
