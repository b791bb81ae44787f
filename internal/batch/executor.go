// Package batch walks an address interval and drives per-address store
// commands through bounded pipelines, replaying from the last acknowledged
// address when the owning shard moves.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/umegbewe/ippool/internal/iprange"
	"github.com/umegbewe/ippool/internal/keys"
	"github.com/umegbewe/ippool/internal/metrics"
	"github.com/umegbewe/ippool/internal/storage"
)

// DefaultPipelineLimit is the number of addresses sent per round trip.
const DefaultPipelineLimit = 1000

var (
	// ErrProtocol reports a reply of unexpected shape or count.
	ErrProtocol = errors.New("unexpected store reply")
	// ErrRedirectLimit reports that routing did not settle within the
	// configured number of redirects.
	ErrRedirectLimit = errors.New("too many redirects")
)

// Operation is one kind of bulk lease change. Every command an operation
// queues must be safe to send twice: batches are replayed after a redirect.
type Operation interface {
	Name() string
	// Enqueue queues the commands for one address and returns how many it
	// queued.
	Enqueue(p *Pipeline, b iprange.Block) (int, error)
	// Process consumes the replies to the commands queued for b.
	Process(b iprange.Block, replies []*redis.Cmd) error
}

// Pipeline collects commands for one round trip.
type Pipeline struct {
	cmds [][]interface{}
}

func (p *Pipeline) Do(args ...interface{}) {
	p.cmds = append(p.cmds, args)
}

func (p *Pipeline) Len() int {
	return len(p.cmds)
}

func (p *Pipeline) reset() {
	p.cmds = p.cmds[:0]
}

type Config struct {
	PipelineLimit   int
	MaxRedirects    int
	RedirectBackoff time.Duration
}

type Executor struct {
	store  storage.Store
	cfg    Config
	logger log.FieldLogger
}

func NewExecutor(store storage.Store, cfg Config, logger log.FieldLogger) *Executor {
	if cfg.PipelineLimit <= 0 {
		cfg.PipelineLimit = DefaultPipelineLimit
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Executor{store: store, cfg: cfg, logger: logger}
}

// batch is one filled pipeline and the per-address command counts.
type batch struct {
	pipe   Pipeline
	counts []int
}

// Run applies op to every address of iv in pool. It returns only once the
// whole interval has been acknowledged by the store, or on the first error.
// On error whatever op aggregated must be discarded by the caller.
func (e *Executor) Run(ctx context.Context, pool string, iv iprange.Interval, op Operation) error {
	route, err := keys.HashTag(pool)
	if err != nil {
		return err
	}

	logger := e.logger.WithFields(log.Fields{"action": op.Name(), "pool": pool})
	logger.Debugf("Processing %s (%s addresses/prefixes)", iv, iv.Size())

	var (
		b         batch
		current   = iv.Start
		more      = true
		processed uint64
	)

	for more {
		// Everything before acked has been confirmed by the store.
		acked, ackedMore := current, more
		redirects := 0

		var replies []*redis.Cmd
		for {
			current, more = acked, ackedMore

			replies, err = e.attempt(ctx, logger, route, iv, op, &b, &current, &more)
			if !errors.Is(err, storage.ErrRedirect) {
				break
			}

			redirects++
			metrics.Redirects.Inc()
			if redirects > e.cfg.MaxRedirects {
				return fmt.Errorf("%w: batch starting at %s: %v", ErrRedirectLimit, iv.Block(acked), err)
			}
			logger.Warnf("Redirected, replaying from %s: %v", iv.Block(acked), err)

			if err := sleep(ctx, e.cfg.RedirectBackoff*time.Duration(redirects)); err != nil {
				return err
			}
		}
		if err != nil {
			return err
		}

		metrics.Batches.WithLabelValues(op.Name()).Inc()

		if len(replies) != b.pipe.Len() {
			return fmt.Errorf("%w: sent %d commands, got %d replies", ErrProtocol, b.pipe.Len(), len(replies))
		}

		addr := acked
		offset := 0
		for _, n := range b.counts {
			if err := op.Process(iv.Block(addr), replies[offset:offset+n]); err != nil {
				return fmt.Errorf("processing %s: %w", iv.Block(addr), err)
			}
			offset += n
			addr, _ = iv.Next(addr)
		}
		processed += uint64(len(b.counts))
		metrics.Addresses.WithLabelValues(op.Name()).Add(float64(len(b.counts)))

		logger.Tracef("Batch of %d addresses acknowledged, %d so far", len(b.counts), processed)
	}

	return nil
}

// attempt opens the shard owning route, fills one pipeline starting at
// *current and sends it.
func (e *Executor) attempt(ctx context.Context, logger log.FieldLogger, route string, iv iprange.Interval,
	op Operation, b *batch, current *iprange.Addr, more *bool) ([]*redis.Cmd, error) {

	shard, err := e.store.Open(ctx, route)
	if err != nil {
		return nil, err
	}

	b.pipe.reset()
	b.counts = b.counts[:0]

	for i := 0; i < e.cfg.PipelineLimit && *more; i++ {
		block := iv.Block(*current)
		n, err := op.Enqueue(&b.pipe, block)
		if err != nil {
			return nil, fmt.Errorf("queueing %s: %w", block, err)
		}
		logger.Debugf("Queued %d commands for %s", n, block)
		b.counts = append(b.counts, n)
		*current, *more = iv.Next(*current)
	}

	metrics.Commands.WithLabelValues(op.Name()).Add(float64(b.pipe.Len()))

	start := time.Now()
	replies, err := shard.Exec(ctx, b.pipe.cmds)
	metrics.BatchLatency.WithLabelValues(op.Name()).Observe(time.Since(start).Seconds())

	return replies, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
