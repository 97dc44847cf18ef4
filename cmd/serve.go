// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/observability"
	"github.com/xkilldash9x/inputpipe/internal/replay"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept input events over a websocket",
		Long: `Listens on source.listen_addr for websocket clients on /input. Each message holds
one or more JSON-lines trace records; every resolved event is broadcast back to
all connected clients. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyPipelineFlags(cmd, cfg)

			ws := replay.NewWebSocketSource(cfg.Source().ListenAddr, logger)
			p, err := buildPipeline(ctx, cfg, logger, ws)
			if err != nil {
				return err
			}
			logger.Info("Serving input pipeline.",
				zap.String("session_id", p.session),
				zap.String("addr", cfg.Source().ListenAddr))

			// Live input is applied on arrival.
			if err := p.run(ctx, ws, false); err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), p.session, p.stats, p.journal)
		},
	}

	serveCmd.Flags().String("listen", "", "Address to listen on. (Overrides config/env)")
	addPipelineFlags(serveCmd)
	return serveCmd
}
