// internal/replay/player.go
package replay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Poster runs a closure on the pipeline goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Player feeds records to the pipeline. Records are applied on the pipeline
// goroutine in the order they arrive.
type Player struct {
	session string
	poster  Poster
	target  Target
	paced   bool
	logger  *zap.Logger
	now     func() time.Time

	applied int
}

// NewPlayer creates a player for one replay session; an empty session gets a
// fresh id. When paced is set the player waits for each record's offset
// before applying it.
func NewPlayer(session string, poster Poster, target Target, paced bool, logger *zap.Logger) *Player {
	if session == "" {
		session = uuid.NewString()
	}
	return &Player{
		session: session,
		poster:  poster,
		target:  target,
		paced:   paced,
		logger:  logger.Named("player").With(zap.String("session_id", session)),
		now:     time.Now,
	}
}

// Session returns the session identifier.
func (p *Player) Session() string { return p.session }

// Applied returns how many records were handed to the pipeline.
func (p *Player) Applied() int { return p.applied }

// Run consumes in until it is closed or ctx is done.
func (p *Player) Run(ctx context.Context, in <-chan Record) error {
	p.logger.Info("Replay started.", zap.Bool("paced", p.paced))
	start := p.now()
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		var rec Record
		select {
		case <-ctx.Done():
			p.logger.Info("Replay interrupted.", zap.Int("applied", p.applied))
			return nil
		case r, ok := <-in:
			if !ok {
				p.logger.Info("Replay finished.", zap.Int("applied", p.applied))
				return nil
			}
			rec = r
		}

		if p.paced {
			if wait := start.Add(rec.Offset()).Sub(p.now()); wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					return nil
				case <-timer.C:
				}
			}
		}
		if !p.poster.Post(func() { rec.Apply(p.target) }) {
			p.logger.Warn("Pipeline stopped; ending replay.", zap.Int("applied", p.applied))
			return nil
		}
		p.applied++
	}
}

// Idler reports whether the pipeline has nothing queued or in flight.
type Idler interface {
	Idle() bool
}

// Doer runs a closure on the pipeline goroutine and waits for it.
type Doer interface {
	Do(ctx context.Context, fn func()) error
}

// WaitIdle polls the pipeline until it is idle or ctx is done.
func WaitIdle(ctx context.Context, loop Doer, idler Idler, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var idle bool
		if err := loop.Do(ctx, func() { idle = idler.Idle() }); err != nil {
			return err
		}
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
