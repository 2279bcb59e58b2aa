package selector

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/router"
)

func addr(b byte) common.Address {
	var a common.Address
	a[len(a)-1] = b
	return a
}

func hash(b byte) common.Hash {
	var h common.Hash
	h[len(h)-1] = b
	return h
}

func mustScale(t *testing.T, whole int64) fixedpoint.FP18 {
	t.Helper()
	v, err := fixedpoint.ScaleTo18(big.NewInt(whole), 0)
	if err != nil {
		t.Fatalf("ScaleTo18: %v", err)
	}
	return v
}

type noopFetcher struct{}

func (noopFetcher) FetchPools(ctx context.Context, from, to common.Address, block uint64, ignoreCache bool) ([]router.Pool, error) {
	return nil, nil
}

func newTestDeps(t *testing.T, quote QuoteFunc) (*Deps, *registry.Registry, registry.Key) {
	t.Helper()
	reg := registry.New(nil)
	ob, owner := addr(1), addr(2)
	tokenA, tokenB := addr(10), addr(11)
	order := &registry.Order{
		Hash:      hash(1),
		Owner:     owner,
		Orderbook: ob,
		Version:   registry.V4,
		Inputs:    []registry.IO{{Token: tokenA}},
		Outputs:   []registry.IO{{Token: tokenB}},
	}
	if err := reg.AddOrder(order, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	key := registry.Key{OrderHash: hash(1), InputIndex: 0, OutputIdx: 0}
	if err := reg.RefreshVaultBalances(key, mustScale(t, 100), mustScale(t, 100)); err != nil {
		t.Fatalf("RefreshVaultBalances: %v", err)
	}

	deps := &Deps{
		Registry: reg,
		Quote:    quote,
		External: router.NewExternalRouter(noopFetcher{}, nil),
		Intra:    router.NewIntraOrderbookRouter(),
		Inter:    router.NewInterOrderbookRouter(),
		EthPrice: func(ctx context.Context, token common.Address) (fixedpoint.FP18, error) {
			return fixedpoint.One(), nil
		},
		GasCoveragePercentage: "0",
	}
	return deps, reg, key
}

func TestProcessOrderZeroOutput(t *testing.T) {
	deps, _, key := newTestDeps(t, func(ctx context.Context, pair registry.Pair) (registry.Quote, error) {
		return registry.Quote{MaxOutput: fixedpoint.Zero(), Ratio: fixedpoint.Zero()}, nil
	})
	sel := deps.ProcessOrder(context.Background(), key, 1, big.NewInt(1))
	if sel.Outcome != ZeroOutput {
		t.Fatalf("expected ZeroOutput, got %s", sel.Outcome)
	}
	if _, ok := deps.Registry.Pair(key); !ok {
		t.Fatalf("pair should still be projected even though not in the pair-map")
	}
}

func TestProcessOrderFailedToQuote(t *testing.T) {
	deps, _, key := newTestDeps(t, func(ctx context.Context, pair registry.Pair) (registry.Quote, error) {
		return registry.Quote{}, errs.New(errs.KindFetch, "rpc down")
	})
	sel := deps.ProcessOrder(context.Background(), key, 1, big.NewInt(1))
	if sel.Outcome != FailedToQuote {
		t.Fatalf("expected FailedToQuote, got %s", sel.Outcome)
	}
}

func TestProcessOrderNoOpportunityWithoutCounterpartiesOrPools(t *testing.T) {
	deps, _, key := newTestDeps(t, func(ctx context.Context, pair registry.Pair) (registry.Quote, error) {
		return registry.Quote{MaxOutput: mustScale(t, 5), Ratio: fixedpoint.One()}, nil
	})
	sel := deps.ProcessOrder(context.Background(), key, 1, big.NewInt(1))
	if sel.Outcome != NoOpportunity {
		t.Fatalf("expected NoOpportunity, got %s (%v)", sel.Outcome, sel.Err)
	}
}

func TestProcessOrderSelectsIntraOrderbookCounterparty(t *testing.T) {
	deps, reg, key := newTestDeps(t, func(ctx context.Context, pair registry.Pair) (registry.Quote, error) {
		return registry.Quote{MaxOutput: mustScale(t, 5), Ratio: fixedpoint.One()}, nil
	})

	// Counterparty order on the same orderbook, opposite direction, already
	// quoted non-zero so it is live in the pair-map.
	ob := addr(1)
	tokenA, tokenB := addr(10), addr(11)
	cpOrder := &registry.Order{
		Hash:      hash(2),
		Owner:     addr(3),
		Orderbook: ob,
		Version:   registry.V4,
		Inputs:    []registry.IO{{Token: tokenB}},
		Outputs:   []registry.IO{{Token: tokenA}},
	}
	if err := reg.AddOrder(cpOrder, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	cpKey := registry.Key{OrderHash: hash(2), InputIndex: 0, OutputIdx: 0}
	if err := reg.RecordQuote(cpKey, registry.Quote{MaxOutput: mustScale(t, 3), Ratio: fixedpoint.One()}); err != nil {
		t.Fatalf("RecordQuote: %v", err)
	}

	sel := deps.ProcessOrder(context.Background(), key, 1, big.NewInt(1))
	if sel.Outcome != Selected {
		t.Fatalf("expected Selected, got %s (%v) attrs=%v", sel.Outcome, sel.Err, sel.SpanAttributes)
	}
	if sel.TradeParams.Kind != router.KindIntraOrderbook {
		t.Fatalf("expected the intra-orderbook route to win, got %s", sel.TradeParams.Kind)
	}
	if sel.TradeParams.AmountOut.Cmp(mustScale(t, 3)) != 0 {
		t.Fatalf("expected amountOut capped at the counterparty's maxOutput, got %s", sel.TradeParams.AmountOut.String())
	}
}
