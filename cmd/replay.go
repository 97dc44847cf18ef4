// File: cmd/replay.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/observability"
	"github.com/xkilldash9x/inputpipe/internal/replay"
)

// applyPipelineFlags copies the input switches shared by replay and serve
// onto cfg when they were set on the command line.
func applyPipelineFlags(cmd *cobra.Command, cfg config.Interface) {
	if f := cmd.Flags().Lookup("disable-gesture-debounce"); f != nil && f.Changed {
		disabled, _ := cmd.Flags().GetBool("disable-gesture-debounce")
		cfg.SetInputDebounceEnabled(!disabled)
	}
	if f := cmd.Flags().Lookup("touch-ack-timeout"); f != nil && f.Changed {
		enabled, _ := cmd.Flags().GetBool("touch-ack-timeout")
		cfg.SetInputAckTimeoutEnabled(enabled)
	}
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("disable-gesture-debounce", false, "Send scroll gestures without debouncing them. (Overrides config/env)")
	cmd.Flags().Bool("touch-ack-timeout", false, "Enable the touch ack timeout. (Overrides config/env)")
}

// newReplayCmd creates and configures the `replay` command.
func newReplayCmd() *cobra.Command {
	var noPace bool

	replayCmd := &cobra.Command{
		Use:   "replay [trace.jsonl]",
		Short: "Replay a recorded input trace through the pipeline",
		Long: `Reads a JSON-lines trace of input events, feeds it through the gesture filter,
touch queue and router, and prints how every event was resolved. The trace path
defaults to source.trace_path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.SetSourceTracePath(args[0])
			}
			applyPipelineFlags(cmd, cfg)

			src := cfg.Source()
			if src.TracePath == "" {
				return fmt.Errorf("no trace given; pass a path or set source.trace_path")
			}

			p, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("Replaying trace.",
				zap.String("session_id", p.session),
				zap.String("path", src.TracePath),
				zap.String("renderer", cfg.Renderer().Kind))

			file := replay.NewFileSource(src.TracePath, src.Follow, logger)
			if err := p.run(ctx, file, src.Paced && !noPace); err != nil {
				return err
			}
			if skipped := file.Skipped(); skipped > 0 {
				logger.Warn("Trace had malformed lines.", zap.Int("skipped", skipped))
			}
			return printSummary(cmd.OutOrStdout(), p.session, p.stats, p.journal)
		},
	}

	replayCmd.Flags().Bool("follow", false, "Keep reading the trace as it grows. (Overrides config/env)")
	replayCmd.Flags().BoolVar(&noPace, "no-pace", false, "Apply events as fast as possible instead of at their recorded offsets.")
	addPipelineFlags(replayCmd)
	return replayCmd
}
