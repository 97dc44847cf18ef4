// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/observability"
	"github.com/xkilldash9x/inputpipe/internal/store"
)

// storeProvider opens the journal database. Tests inject a mock pool through it.
type storeProvider interface {
	// Create returns a pool, a cleanup function that releases it, and an
	// error if the connection fails.
	Create(ctx context.Context, cfg config.Interface) (store.DBPool, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the journal database and verifies the connection.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (store.DBPool, func(), error) {
	url := cfg.Journal().URL
	if url == "" {
		return nil, nil, fmt.Errorf("journal URL is not configured (INPUTPIPE_JOURNAL_URL)")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, pool.Close, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var sessionID string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise the ack latency journal of a session",
		Long: `Reads the acks a session wrote to the latency journal and prints, per event type
and ack state, how many events there were and their mean and worst latency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runReport(ctx, cmd.OutOrStdout(), logger, cfg, sessionID, provider)
		},
	}

	reportCmd.Flags().StringVar(&sessionID, "session", "", "The session to summarise (required)")
	_ = reportCmd.MarkFlagRequired("session")
	return reportCmd
}

// runReport contains the testable core of the report command.
func runReport(ctx context.Context, w io.Writer, logger *zap.Logger, cfg config.Interface, sessionID string, provider storeProvider) error {
	logger.Info("Summarising session", zap.String("session_id", sessionID))

	pool, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer cleanup()

	rows, err := store.Summarize(ctx, pool, sessionID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no journal entries for session %s", sessionID)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATE\tCOUNT\tMEAN_MS\tMAX_MS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\n", r.EventType, r.AckState, r.Count, r.MeanMs, r.MaxMs)
	}
	return tw.Flush()
}
