// Package scheduler runs the bounded worker pool that drains the registry's
// round-robin pair schedule, hands each selected trade to the transaction
// pipeline, and reports run-level statistics (§4.8, §6).
package scheduler

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"go.uber.org/zap"

	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/selector"
	"github.com/rainarb/solver/internal/txpipeline"
)

// idleBackoff is how long a worker waits before retrying NextPair when the
// registry currently has nothing scheduled.
const idleBackoff = 10 * time.Millisecond

// BlockSource supplies the current block number and gas price a worker
// should quote and build against.
type BlockSource func(ctx context.Context) (block uint64, gasPrice *big.Int, err error)

// Stats is a point-in-time snapshot of scheduler activity counters.
type Stats struct {
	Scheduled int64
	Selected  int64
	Confirmed int64
	Reverted  int64
	TimedOut  int64
}

// Scheduler owns the worker pool: each worker independently draws a pair
// from the registry's fair rotation, runs it through the selector, and — on
// a Selected outcome — through the transaction pipeline. Workers never
// share a signer concurrently: the pipeline's SignerPool is the sole
// at-most-one-attempt-per-signer guarantee (§4.8), so the scheduler itself
// only needs to bound concurrency and rate, which is why a plain
// goroutine-per-worker loop over shared, mutex-protected state (the
// registry) is enough here — the same shape as a channel-sharded worker
// pool, minus the sharding, since pairs (not exchange symbols) are already
// fairly distributed by the registry's own cursors.
type Scheduler struct {
	Registry *registry.Registry
	Selector *selector.Deps
	Pipeline *txpipeline.Pipeline
	Block    BlockSource
	Limiter  *rate.Limiter
	Workers  int
	Logger   *zap.SugaredLogger

	stats    Stats
	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New constructs a Scheduler. Workers defaults to 1 if not positive.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{Workers: workers, shutdown: make(chan struct{})}
}

// Start launches the worker pool. It returns immediately; call Stop (or
// cancel ctx) to wind the pool down.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.Workers; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx, i)
	}
}

// Stop signals every worker to exit and blocks until they have.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.shutdown) })
	s.wg.Wait()
}

// Snapshot returns the current counters.
func (s *Scheduler) Snapshot() Stats {
	return Stats{
		Scheduled: atomic.LoadInt64(&s.stats.Scheduled),
		Selected:  atomic.LoadInt64(&s.stats.Selected),
		Confirmed: atomic.LoadInt64(&s.stats.Confirmed),
		Reverted:  atomic.LoadInt64(&s.stats.Reverted),
		TimedOut:  atomic.LoadInt64(&s.stats.TimedOut),
	}
}

func (s *Scheduler) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return
			}
		}

		pair, ok := s.Registry.NextPair()
		if !ok {
			select {
			case <-time.After(idleBackoff):
			case <-ctx.Done():
				return
			case <-s.shutdown:
				return
			}
			continue
		}
		atomic.AddInt64(&s.stats.Scheduled, 1)

		block, gasPrice, err := s.Block(ctx)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warnw("scheduler: block source failed", "worker", id, "error", err)
			}
			continue
		}

		sel := s.Selector.ProcessOrder(ctx, pair.Key(), block, gasPrice)
		if sel.Outcome != selector.Selected {
			if s.Logger != nil {
				s.Logger.Debugw("scheduler: no trade selected", "worker", id, "outcome", sel.Outcome)
			}
			continue
		}
		atomic.AddInt64(&s.stats.Selected, 1)

		result := s.Pipeline.Run(ctx, txpipeline.Attempt{
			Pair:             sel.Pair,
			TradeParams:      sel.TradeParams,
			GasPrice:         gasPrice,
			InputToEthPrice:  sel.InputEthPrice,
			OutputToEthPrice: sel.OutputEthPrice,
		})

		switch result.Outcome {
		case txpipeline.Confirmed:
			atomic.AddInt64(&s.stats.Confirmed, 1)
		case txpipeline.Timeout:
			atomic.AddInt64(&s.stats.TimedOut, 1)
		default:
			atomic.AddInt64(&s.stats.Reverted, 1)
		}
		if s.Logger != nil {
			s.Logger.Infow("scheduler: attempt finished", "worker", id, "outcome", result.Outcome, "reason", result.Reason, "tx", result.TxHash.Hex())
		}
	}
}
