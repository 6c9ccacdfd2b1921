package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tylerbarker/sql-kit/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := a.openPool(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			store := a.openHistory()
			if store != nil {
				defer func() { _ = store.Close() }()
			}

			srv := server.New(server.Config{
				Addr:           a.cfg.Server.Addr,
				RateLimitRPS:   a.cfg.Server.RateLimitRPS,
				RateLimitBurst: a.cfg.Server.RateLimitBurst,
				CORSOrigins:    a.cfg.Server.CORSOrigins,
			}, p, store, a.logger)

			return srv.Run(ctx)
		},
	}
}
