// File: cmd/pipeline.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/input/loop"
	"github.com/xkilldash9x/inputpipe/internal/input/observer"
	"github.com/xkilldash9x/inputpipe/internal/input/router"
	"github.com/xkilldash9x/inputpipe/internal/renderer"
	"github.com/xkilldash9x/inputpipe/internal/replay"
	"github.com/xkilldash9x/inputpipe/internal/store"
)

const (
	recordBuffer = 256
	idlePoll     = 10 * time.Millisecond
	drainTimeout = 10 * time.Second
)

// pipeline holds the wired components of one session.
type pipeline struct {
	session  string
	loop     *loop.Loop
	router   *router.Router
	stats    *observer.Stats
	journal  *store.Journal
	workers  []func(ctx context.Context) error
	cleanups []func()
	logger   *zap.Logger
}

// journalOpener connects the latency journal. Swapped out in tests.
var journalOpener = openJournal

func openJournal(ctx context.Context, cfg config.JournalConfig, session string, logger *zap.Logger) (*store.Journal, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	journal, err := store.New(ctx, pool, cfg, session, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := journal.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return journal, pool.Close, nil
}

// buildPipeline wires loop, renderer, router and ack sinks. extra sinks are
// told about every resolved event alongside the built-in ones.
func buildPipeline(ctx context.Context, cfg config.Interface, logger *zap.Logger, extra ...observer.Sink) (*pipeline, error) {
	p := &pipeline{
		session: uuid.NewString(),
		loop:    loop.New(logger),
		stats:   observer.NewStats(),
		logger:  logger,
	}

	sinks := observer.Sinks{p.stats, observer.NewLogging(logger)}
	if jc := cfg.Journal(); jc.Enabled {
		journal, closePool, err := journalOpener(ctx, jc, p.session, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		p.journal = journal
		p.cleanups = append(p.cleanups, closePool)
		p.workers = append(p.workers, journal.Run)
		sinks = append(sinks, journal)
	}
	sinks = append(sinks, extra...)

	rend, err := p.newRenderer(ctx, cfg.Renderer())
	if err != nil {
		p.close()
		return nil, err
	}

	p.router = router.New(router.NewConfig(cfg.Input()), rend, observer.NewRecorder(sinks, p.loop), p.loop, logger)
	rend.Bind(p.router)
	return p, nil
}

func (p *pipeline) newRenderer(ctx context.Context, rc config.RendererConfig) (renderer.Bindable, error) {
	switch rc.Kind {
	case config.RendererCDP:
		browser, err := renderer.NewBrowser(ctx, rc.CDP, p.logger)
		if err != nil {
			return nil, err
		}
		p.cleanups = append(p.cleanups, browser.Close)
		cdp := renderer.NewCDP(rc.CDP, browser.RunActions, p.loop, p.logger)
		p.workers = append(p.workers, cdp.Run)
		return cdp, nil
	default:
		simCfg, err := renderer.NewSimConfig(rc.Sim)
		if err != nil {
			return nil, err
		}
		return renderer.NewSim(simCfg, p.loop, p.logger), nil
	}
}

func (p *pipeline) close() {
	for _, c := range slices.Backward(p.cleanups) {
		c()
	}
	p.cleanups = nil
}

// run feeds src through the pipeline until the source is exhausted and every
// event is resolved, or ctx is done. The loop outlives the source so late
// acks still land; the workers outlive the loop so the journal sees them.
func (p *pipeline) run(ctx context.Context, src replay.Source, paced bool) error {
	defer p.close()

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	var background errgroup.Group
	background.Go(func() error { return p.loop.Run(loopCtx) })
	for _, w := range p.workers {
		background.Go(func() error { return w(workerCtx) })
	}

	player := replay.NewPlayer(p.session, p.loop, p.router, paced, p.logger)
	records := make(chan replay.Record, recordBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		return src.Stream(gctx, records)
	})
	g.Go(func() error {
		if err := player.Run(gctx, records); err != nil {
			return err
		}
		if gctx.Err() != nil {
			return nil
		}
		waitCtx, cancel := context.WithTimeout(gctx, drainTimeout)
		defer cancel()
		if err := replay.WaitIdle(waitCtx, p.loop, p.router, idlePoll); err != nil {
			p.logger.Warn("Pipeline did not drain before shutdown.", zap.Error(err))
		}
		return nil
	})
	err := g.Wait()

	stopLoop()
	<-p.loop.Done()
	stopWorkers()
	if bgErr := background.Wait(); err == nil {
		err = bgErr
	}

	p.logger.Info("Session finished.",
		zap.String("session_id", p.session),
		zap.Int("applied", player.Applied()),
		zap.Int("acked", p.stats.Total()))
	return err
}

// printSummary writes per type ack counts.
func printSummary(w io.Writer, session string, stats *observer.Stats, journal *store.Journal) error {
	snapshot := stats.Snapshot()
	types := make([]schemas.EventType, 0, len(snapshot))
	for typ := range snapshot {
		types = append(types, typ)
	}
	slices.Sort(types)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Session %s: %d events resolved\n", session, stats.Total())
	fmt.Fprintln(tw, "TYPE\tSTATE\tCOUNT")
	for _, typ := range types {
		states := make([]schemas.AckState, 0, len(snapshot[typ]))
		for st := range snapshot[typ] {
			states = append(states, st)
		}
		slices.Sort(states)
		for _, st := range states {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", typ, st, snapshot[typ][st])
		}
	}
	if journal != nil {
		fmt.Fprintf(tw, "Journal: %d written, %d dropped\n", journal.Written(), journal.Dropped())
	}
	return tw.Flush()
}
