// Package selector implements the trade-mode selector (§4.6): the strict
// ordered pipeline process_order(pair, signer) runs once per scheduled
// pair, short-circuiting into a typed, non-error outcome at the first
// stage that cannot proceed, and otherwise handing the winning trade
// parameters to the transaction pipeline (§4.7).
package selector

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/router"
)

// Outcome tags the terminal status of one process_order attempt. Every
// value except Selected is a non-error short-circuit (§4.6).
type Outcome string

const (
	ZeroOutput          Outcome = "zero_output"
	FailedToQuote       Outcome = "failed_to_quote"
	FailedToGetPools    Outcome = "failed_to_get_pools"
	FailedToGetEthPrice Outcome = "failed_to_get_eth_price"
	NoOpportunity       Outcome = "no_opportunity"
	Selected            Outcome = "selected"
)

// QuoteFunc performs the on-chain quote_order read (§3) for a pair.
type QuoteFunc func(ctx context.Context, pair registry.Pair) (registry.Quote, error)

// EthPriceFunc quotes a token's price against the chain's native asset.
type EthPriceFunc func(ctx context.Context, token common.Address) (fixedpoint.FP18, error)

// Deps bundles the selector's external collaborators. None of them are
// owned by the selector — it is pure pipeline logic over interfaces.
type Deps struct {
	Registry              *registry.Registry
	Quote                 QuoteFunc
	External              *router.ExternalRouter
	Intra                 *router.IntraOrderbookRouter
	Inter                 *router.InterOrderbookRouter
	EthPrice              EthPriceFunc
	GasCoveragePercentage string // "0" disables the eth-price hard requirement
	Tracer                trace.Tracer
}

// Selection is the result of one process_order attempt.
type Selection struct {
	Outcome          Outcome
	Pair             registry.Pair
	TradeParams      router.TradeParams
	InputEthPrice    fixedpoint.FP18
	OutputEthPrice   fixedpoint.FP18
	Err              error
	SpanAttributes   map[string]string
}

// ProcessOrder runs the §4.6 pipeline for the pair identified by key, at
// the given block and gas price.
func (d *Deps) ProcessOrder(ctx context.Context, key registry.Key, block uint64, gasPrice *big.Int) Selection {
	attrs := map[string]string{"pair.order_hash": key.OrderHash.Hex()}

	ctx, span := d.startSpan(ctx, "process_order")
	defer span.End()

	pair, ok := d.Registry.Pair(key)
	if !ok {
		return d.finish(span, attrs, Selection{Outcome: FailedToQuote, Err: errs.New(errs.KindInternal, "pair not found"), SpanAttributes: attrs})
	}

	// Step 1: quote.
	quoteStart := time.Now()
	quote, err := d.Quote(ctx, pair)
	attrs["quote.duration"] = durationMS(quoteStart)
	if err != nil {
		_ = d.Registry.RemoveFromPairMaps(key)
		return d.finish(span, attrs, Selection{Outcome: FailedToQuote, Pair: pair, Err: err, SpanAttributes: attrs})
	}
	pair.Quote = quote
	attrs["quote.max_output"] = quote.MaxOutput.String()
	attrs["quote.ratio"] = quote.Ratio.String()
	if quote.IsZero() {
		_ = d.Registry.RemoveFromPairMaps(key)
		return d.finish(span, attrs, Selection{Outcome: ZeroOutput, Pair: pair, SpanAttributes: attrs})
	}

	// Step 2: commit to pair-map.
	if err := d.Registry.RecordQuote(key, quote); err != nil {
		return d.finish(span, attrs, Selection{Outcome: FailedToQuote, Pair: pair, Err: err, SpanAttributes: attrs})
	}

	// Step 3: pools refresh.
	if _, err := d.External.FetchPools(ctx, pair.SellToken, pair.BuyToken, block, false); err != nil {
		if !strings.Contains(err.Error(), "fetchPoolsForToken") {
			return d.finish(span, attrs, Selection{Outcome: FailedToGetPools, Pair: pair, Err: err, SpanAttributes: attrs})
		}
		attrs["pools.refresh_error_ignored"] = err.Error()
	}

	// Step 4: pair market price (telemetry only).
	if price, err := d.External.GetMarketPrice(ctx, router.QuoteParams{FromToken: pair.SellToken, ToToken: pair.BuyToken, AmountIn: fixedpoint.One(), Block: block}); err == nil {
		attrs["market_price"] = price.String()
	}

	// Step 5: eth prices.
	inputPrice, inErr := d.EthPrice(ctx, pair.SellToken)
	outputPrice, outErr := d.EthPrice(ctx, pair.BuyToken)
	if inErr != nil && outErr != nil && d.GasCoveragePercentage != "0" {
		return d.finish(span, attrs, Selection{Outcome: FailedToGetEthPrice, Pair: pair, Err: errs.Wrap(errs.KindFetch, inErr, "both eth price quotes failed"), SpanAttributes: attrs})
	}
	if inErr != nil {
		inputPrice = fixedpoint.Zero()
	}
	if outErr != nil {
		outputPrice = fixedpoint.Zero()
	}
	attrs["eth_price.input"] = inputPrice.String()
	attrs["eth_price.output"] = outputPrice.String()

	// Step 6: find best trade across the three router variants.
	best, bestKind, bestProfit, haveBest, diagnostics := d.findBestTrade(ctx, key, pair, gasPrice, block, inputPrice, outputPrice)
	for k, v := range diagnostics {
		attrs[k] = v
	}
	if !haveBest {
		return d.finish(span, attrs, Selection{Outcome: NoOpportunity, Pair: pair, SpanAttributes: attrs})
	}
	attrs["selected.kind"] = bestKind.String()
	attrs["selected.estimated_profit_eth"] = bestProfit.String()

	return d.finish(span, attrs, Selection{
		Outcome:        Selected,
		Pair:           pair,
		TradeParams:    best,
		InputEthPrice:  inputPrice,
		OutputEthPrice: outputPrice,
		SpanAttributes: attrs,
	})
}

// findBestTrade asks each router variant for a TradeParams and returns the
// one with the highest estimated profit (the guard's total_bounty_eth
// evaluated locally). If no variant produced a profitable trade, the bool
// result is false and bestKind is the zero Kind.
func (d *Deps) findBestTrade(ctx context.Context, key registry.Key, pair registry.Pair, gasPrice *big.Int, block uint64, inputPrice, outputPrice fixedpoint.FP18) (router.TradeParams, router.Kind, fixedpoint.FP18, bool, map[string]string) {
	diagnostics := make(map[string]string)
	var bestKind router.Kind
	var best router.TradeParams
	var bestProfit fixedpoint.FP18
	haveBest := false

	tryCandidate := func(kind router.Kind, r router.Router, args router.TradeArgs) {
		tp, err := r.GetTradeParams(ctx, args)
		if err != nil {
			diagnostics["candidate."+kind.String()+".error"] = err.Error()
			return
		}
		profit, ok := estimatedProfit(inputPrice, outputPrice, tp)
		diagnostics["candidate."+kind.String()+".amount_out"] = tp.AmountOut.String()
		if !ok {
			diagnostics["candidate."+kind.String()+".unprofitable"] = "true"
			return
		}
		if !haveBest || profit.Cmp(bestProfit) > 0 {
			best = tp
			bestKind = kind
			bestProfit = profit
			haveBest = true
		}
	}

	tryCandidate(router.KindExternal, d.External, router.TradeArgs{
		Pair: pair, GasPrice: gasPrice, MaximumInput: pair.InputVaultBalance, Mode: router.ModeSingle,
	})

	if intraCandidates, err := d.Registry.FindIntraOBCounterparties(key); err == nil && len(intraCandidates) > 0 {
		cp := intraCandidates[0]
		tryCandidate(router.KindIntraOrderbook, d.Intra, router.TradeArgs{Pair: pair, Counterparty: &cp, GasPrice: gasPrice})
	} else if err != nil {
		diagnostics["candidate.intra_orderbook.error"] = err.Error()
	}

	if interCandidates, err := d.Registry.FindInterOBCounterparties(key); err == nil && len(interCandidates) > 0 {
		cp := interCandidates[0]
		tryCandidate(router.KindInterOrderbook, d.Inter, router.TradeArgs{Pair: pair, Counterparty: &cp, GasPrice: gasPrice})
	} else if err != nil {
		diagnostics["candidate.inter_orderbook.error"] = err.Error()
	}

	if !haveBest {
		return router.TradeParams{}, 0, fixedpoint.Zero(), false, diagnostics
	}
	return best, bestKind, bestProfit, true, diagnostics
}

// estimatedProfit approximates the guard's total_bounty_eth: the eth value
// of what we receive minus the eth value of what we give up. A candidate
// whose estimated profit is negative is reported as unprofitable (ok=false)
// rather than surfaced with a clamped zero, so callers can tell "broke even"
// apart from "not evaluated."
func estimatedProfit(inputPrice, outputPrice fixedpoint.FP18, tp router.TradeParams) (fixedpoint.FP18, bool) {
	received, err := outputPrice.Mul(tp.AmountOut)
	if err != nil {
		return fixedpoint.Zero(), false
	}
	given, err := inputPrice.Mul(tp.AmountIn)
	if err != nil {
		return fixedpoint.Zero(), false
	}
	profit, err := received.Sub(given)
	if err != nil {
		return fixedpoint.Zero(), false
	}
	return profit, true
}

func (d *Deps) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if d.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return d.Tracer.Start(ctx, name)
}

// finish stamps sel's terminal span attributes, including the §7
// noneNodeError boolean: whether the attempt's terminal error (if any) is
// the absence of a node/chain-originated error, per errs.NoneNodeError.
func (d *Deps) finish(span trace.Span, attrs map[string]string, sel Selection) Selection {
	noneNodeError := errs.NoneNodeError(sel.Err)
	attrs["noneNodeError"] = strconv.FormatBool(noneNodeError)
	sel.SpanAttributes = attrs

	if span != nil && span.IsRecording() {
		kv := make([]attribute.KeyValue, 0, len(attrs)+2)
		kv = append(kv, attribute.String("outcome", string(sel.Outcome)))
		kv = append(kv, attribute.Bool("noneNodeError", noneNodeError))
		for k, v := range attrs {
			if k == "noneNodeError" {
				continue
			}
			kv = append(kv, attribute.String(k, v))
		}
		span.SetAttributes(kv...)
	}
	return sel
}

func durationMS(start time.Time) string {
	return time.Since(start).String()
}
