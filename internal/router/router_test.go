package router

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
)

func mustScale(t *testing.T, whole int64) fixedpoint.FP18 {
	t.Helper()
	v, err := fixedpoint.ScaleTo18(big.NewInt(whole), 0)
	if err != nil {
		t.Fatalf("ScaleTo18: %v", err)
	}
	return v
}

func TestLargestPartialFillFindsQualifyingAmount(t *testing.T) {
	// price18(amountIn, amountOut) is constant at 2x regardless of amount,
	// ratio demands >= 1x, so every candidate amount qualifies and the
	// search should converge toward maximumInput.
	two, _ := fixedpoint.One().Add(fixedpoint.One())
	quote := func(amountIn fixedpoint.FP18) (fixedpoint.FP18, error) {
		return amountIn.Mul(two)
	}
	maxInput := mustScale(t, 100)
	best, ok, err := LargestPartialFill(quote, maxInput, fixedpoint.One())
	if err != nil {
		t.Fatalf("LargestPartialFill: %v", err)
	}
	if !ok {
		t.Fatalf("expected a qualifying amount")
	}
	if best.Cmp(fixedpoint.Zero()) <= 0 {
		t.Fatalf("expected a positive best amount, got %s", best.String())
	}
}

func TestLargestPartialFillNoneQualify(t *testing.T) {
	quote := func(amountIn fixedpoint.FP18) (fixedpoint.FP18, error) {
		return fixedpoint.Zero(), nil
	}
	maxInput := mustScale(t, 100)
	_, ok, err := LargestPartialFill(quote, maxInput, fixedpoint.One())
	if err != nil {
		t.Fatalf("LargestPartialFill: %v", err)
	}
	if ok {
		t.Fatalf("expected no qualifying amount when every quote is zero")
	}
}

type stubFetcher struct {
	pools []Pool
}

func (s *stubFetcher) FetchPools(ctx context.Context, from, to common.Address, block uint64, ignoreCache bool) ([]Pool, error) {
	return s.pools, nil
}

func poolAddr(b byte) common.Address {
	var a common.Address
	a[len(a)-1] = b
	return a
}

func TestExternalRouterBlacklistFiltersPools(t *testing.T) {
	blocked := poolAddr(1)
	allowed := poolAddr(2)
	fetcher := &stubFetcher{pools: []Pool{
		{Address: blocked, ReserveIn: mustScale(t, 1000), ReserveOut: mustScale(t, 1000)},
		{Address: allowed, ReserveIn: mustScale(t, 1000), ReserveOut: mustScale(t, 1000)},
	}}
	r := NewExternalRouter(fetcher, []common.Address{blocked})

	pools, err := r.FetchPools(context.Background(), poolAddr(10), poolAddr(11), 1, false)
	if err != nil {
		t.Fatalf("FetchPools: %v", err)
	}
	if len(pools) != 1 || pools[0].Address != allowed {
		t.Fatalf("expected only the allowed pool, got %+v", pools)
	}
}

func TestExternalRouterCachesByBlock(t *testing.T) {
	fetcher := &stubFetcher{pools: []Pool{{Address: poolAddr(1), ReserveIn: mustScale(t, 1), ReserveOut: mustScale(t, 1)}}}
	r := NewExternalRouter(fetcher, nil)

	if _, err := r.FetchPools(context.Background(), poolAddr(10), poolAddr(11), 5, false); err != nil {
		t.Fatalf("FetchPools: %v", err)
	}
	fetcher.pools = nil // mutate upstream; cached snapshot for block 5 must still serve the old list
	pools, err := r.FetchPools(context.Background(), poolAddr(10), poolAddr(11), 5, false)
	if err != nil {
		t.Fatalf("FetchPools: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected cached snapshot to be served, got %d pools", len(pools))
	}
}

func TestArbTableResolvesKnownCombinations(t *testing.T) {
	fn, err := ResolveArbFunction(registry.V3, KindExternal, false)
	if err != nil {
		t.Fatalf("ResolveArbFunction: %v", err)
	}
	if fn.Name != "arb2" {
		t.Fatalf("expected arb2 for v3/external/full, got %s", fn.Name)
	}

	fn, err = ResolveArbFunction(registry.V4, KindInterOrderbook, true)
	if err != nil {
		t.Fatalf("ResolveArbFunction: %v", err)
	}
	if fn.Name != "arb5" {
		t.Fatalf("expected arb5 for v4/inter/partial, got %s", fn.Name)
	}
}

func TestIntraOrderbookRouterPicksMinOutputAtCounterpartyRatio(t *testing.T) {
	ob := poolAddr(1)
	ourOrder := &registry.Order{Hash: hashAddr(1), Owner: poolAddr(2), Orderbook: ob}
	cpOrder := &registry.Order{Hash: hashAddr(2), Owner: poolAddr(3), Orderbook: ob}

	pair := registry.Pair{Order: ourOrder, Quote: registry.Quote{MaxOutput: mustScale(t, 10), Ratio: fixedpoint.One()}}
	cp := registry.Pair{Order: cpOrder, Quote: registry.Quote{MaxOutput: mustScale(t, 5), Ratio: fixedpoint.One()}}

	r := NewIntraOrderbookRouter()
	params, err := r.GetTradeParams(context.Background(), TradeArgs{Pair: pair, Counterparty: &cp})
	if err != nil {
		t.Fatalf("GetTradeParams: %v", err)
	}
	if params.AmountOut.Cmp(mustScale(t, 5)) != 0 {
		t.Fatalf("expected amountOut capped at counterparty maxOutput, got %s", params.AmountOut.String())
	}
	if params.SwapData != nil {
		t.Fatalf("expected nil swap data for intra-orderbook clear")
	}
}

func TestInterOrderbookRouterRejectsSameOrderbook(t *testing.T) {
	ob := poolAddr(1)
	ourOrder := &registry.Order{Hash: hashAddr(1), Orderbook: ob}
	cpOrder := &registry.Order{Hash: hashAddr(2), Orderbook: ob}
	pair := registry.Pair{Order: ourOrder, Quote: registry.Quote{MaxOutput: mustScale(t, 10), Ratio: fixedpoint.One()}}
	cp := registry.Pair{Order: cpOrder, Quote: registry.Quote{MaxOutput: mustScale(t, 5), Ratio: fixedpoint.One()}}

	r := NewInterOrderbookRouter()
	_, err := r.GetTradeParams(context.Background(), TradeArgs{Pair: pair, Counterparty: &cp})
	if err == nil {
		t.Fatalf("expected an error for a same-orderbook counterparty")
	}
}

func hashAddr(b byte) (h common.Hash) {
	h[len(h)-1] = b
	return h
}
