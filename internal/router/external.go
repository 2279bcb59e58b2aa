package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
)

// PoolFetcher is the external collaborator that actually talks to an AMM
// aggregator or subgraph to list candidate pools for a (from, to) token
// pair as of a block (§4.4 fetch_pools). The core only depends on this
// interface.
type PoolFetcher interface {
	FetchPools(ctx context.Context, from, to common.Address, block uint64, ignoreCache bool) ([]Pool, error)
}

type poolKey struct {
	from common.Address
	to   common.Address
}

type poolSnapshot struct {
	block uint64
	pools []Pool
}

// ExternalRouter is the AMM-aggregator router variant (§4.4). It maintains
// a pool snapshot cache keyed by (fromToken, toToken, block), applies a
// lowercased-address pool blacklist at both fetch and selection time, and
// wraps the upstream fetcher in a circuit breaker so a flapping aggregator
// fails fast with a Fetch error rather than stalling every worker.
type ExternalRouter struct {
	fetcher PoolFetcher
	breaker *gobreaker.CircuitBreaker[[]Pool]

	mu        sync.RWMutex
	snapshots map[poolKey]poolSnapshot
	blacklist map[common.Address]struct{}
}

// NewExternalRouter builds an ExternalRouter backed by fetcher, blacklisting
// the given pool addresses (case-insensitively, per §4.4).
func NewExternalRouter(fetcher PoolFetcher, blacklist []common.Address) *ExternalRouter {
	bl := make(map[common.Address]struct{}, len(blacklist))
	for _, a := range blacklist {
		bl[common.HexToAddress(strings.ToLower(a.Hex()))] = struct{}{}
	}

	cb := gobreaker.NewCircuitBreaker[[]Pool](gobreaker.Settings{
		Name:        "external-router-pools",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &ExternalRouter{
		fetcher:   fetcher,
		breaker:   cb,
		snapshots: make(map[poolKey]poolSnapshot),
		blacklist: bl,
	}
}

func (r *ExternalRouter) isBlacklisted(a common.Address) bool {
	_, ok := r.blacklist[common.HexToAddress(strings.ToLower(a.Hex()))]
	return ok
}

func (r *ExternalRouter) filterBlacklist(pools []Pool) []Pool {
	out := pools[:0:0]
	for _, p := range pools {
		if !r.isBlacklisted(p.Address) {
			out = append(out, p)
		}
	}
	return out
}

// FetchPools returns the pool candidates for (from, to) as of block,
// consulting the snapshot cache unless ignoreCache is set. The blacklist is
// applied to whatever is returned, whether from cache or freshly fetched.
func (r *ExternalRouter) FetchPools(ctx context.Context, from, to common.Address, block uint64, ignoreCache bool) ([]Pool, error) {
	key := poolKey{from: from, to: to}

	if !ignoreCache {
		r.mu.RLock()
		snap, ok := r.snapshots[key]
		r.mu.RUnlock()
		if ok && snap.block == block {
			return r.filterBlacklist(snap.pools), nil
		}
	}

	pools, err := r.breaker.Execute(func() ([]Pool, error) {
		return r.fetcher.FetchPools(ctx, from, to, block, ignoreCache)
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindFetch, err, "fetchPoolsForToken failed")
	}

	r.mu.Lock()
	r.snapshots[key] = poolSnapshot{block: block, pools: pools}
	r.mu.Unlock()

	return r.filterBlacklist(pools), nil
}

func quoteConstantProduct(pool Pool, amountIn fixedpoint.FP18) (fixedpoint.FP18, error) {
	num, err := pool.ReserveOut.Mul(amountIn)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	denom, err := pool.ReserveIn.Add(amountIn)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	if denom.IsZero() {
		return fixedpoint.Zero(), errs.New(errs.KindInternal, "pool has no liquidity")
	}
	return num.Div(denom)
}

// bestRouteQuote picks, for a given amountIn, the best achievable amountOut
// across the candidate pools: the single best pool in ModeSingle, or an
// even split across up to the two best pools in ModeMulti.
func bestRouteQuote(pools []Pool, amountIn fixedpoint.FP18, mode Mode) (fixedpoint.FP18, []Pool, error) {
	if len(pools) == 0 {
		return fixedpoint.Zero(), nil, ErrNoRoute
	}

	type scored struct {
		pool Pool
		out  fixedpoint.FP18
	}
	var candidates []scored
	for _, p := range pools {
		out, err := quoteConstantProduct(p, amountIn)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{pool: p, out: out})
	}
	if len(candidates) == 0 {
		return fixedpoint.Zero(), nil, ErrNoRoute
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.out.Cmp(best.out) > 0 {
			best = c
		}
	}

	if mode == ModeSingle || len(candidates) == 1 {
		return best.out, []Pool{best.pool}, nil
	}

	second := best
	for _, c := range candidates {
		if c.pool.Address == best.pool.Address {
			continue
		}
		if second.pool.Address == best.pool.Address || c.out.Cmp(second.out) > 0 {
			second = c
		}
	}
	if second.pool.Address == best.pool.Address {
		return best.out, []Pool{best.pool}, nil
	}

	two, err := fixedpoint.One().Add(fixedpoint.One())
	if err != nil {
		return fixedpoint.Zero(), nil, err
	}
	half, err := amountIn.Div(two)
	if err != nil {
		return fixedpoint.Zero(), nil, err
	}
	outA, errA := quoteConstantProduct(best.pool, half)
	outB, errB := quoteConstantProduct(second.pool, half)
	if errA != nil || errB != nil {
		return best.out, []Pool{best.pool}, nil
	}
	sum, err := outA.Add(outB)
	if err != nil {
		return best.out, []Pool{best.pool}, nil
	}
	if sum.Cmp(best.out) <= 0 {
		return best.out, []Pool{best.pool}, nil
	}
	return sum, []Pool{best.pool, second.pool}, nil
}

// Quote implements Router.Quote for the external variant: the registry
// Quote it returns is a maxOutput/ratio snapshot for the requested amount.
func (r *ExternalRouter) Quote(ctx context.Context, p QuoteParams) (registry.Quote, error) {
	pools, err := r.FetchPools(ctx, p.FromToken, p.ToToken, p.Block, false)
	if err != nil {
		return registry.Quote{}, err
	}
	out, _, err := bestRouteQuote(pools, p.AmountIn, ModeSingle)
	if err != nil {
		if err == ErrNoRoute {
			return registry.Quote{}, nil
		}
		return registry.Quote{}, err
	}
	ratio, err := out.Div(p.AmountIn)
	if err != nil {
		return registry.Quote{}, err
	}
	return registry.Quote{MaxOutput: out, Ratio: ratio}, nil
}

// GetMarketPrice reports the price18(amountIn, amountOut) at a unit amount,
// used only for telemetry (§4.6 step 4).
func (r *ExternalRouter) GetMarketPrice(ctx context.Context, p QuoteParams) (fixedpoint.FP18, error) {
	q, err := r.Quote(ctx, p)
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return q.Ratio, nil
}

// GetTradeParams runs the largest partial-fill search against the pair's
// ratio and returns the winning amount, route legs, and pool-code map.
func (r *ExternalRouter) GetTradeParams(ctx context.Context, args TradeArgs) (TradeParams, error) {
	pair := args.Pair
	pools, err := r.FetchPools(ctx, pair.SellToken, pair.BuyToken, 0, args.IgnorePoolCache)
	if err != nil {
		return TradeParams{}, err
	}
	if len(pools) == 0 {
		return TradeParams{}, ErrNoRoute
	}

	quoteFn := func(amountIn fixedpoint.FP18) (fixedpoint.FP18, error) {
		out, _, err := bestRouteQuote(pools, amountIn, args.Mode)
		return out, err
	}

	amount, ok, err := LargestPartialFill(quoteFn, args.MaximumInput, pair.Quote.Ratio)
	if err != nil {
		return TradeParams{}, err
	}
	if !ok {
		return TradeParams{}, ErrNoRoute
	}

	amountOut, legs, err := bestRouteQuote(pools, amount, args.Mode)
	if err != nil {
		return TradeParams{}, err
	}

	codeMap := make(map[common.Address][]byte, len(legs))
	for _, leg := range legs {
		codeMap[leg.Address] = leg.Code
	}

	return TradeParams{
		Kind:        KindExternal,
		AmountIn:    amount,
		AmountOut:   amountOut,
		PoolCodeMap: codeMap,
	}, nil
}
