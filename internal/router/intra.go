package router

import (
	"context"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
)

// IntraOrderbookRouter clears our pair directly against a counterparty pair
// on the same orderbook (§4.4): a clear2/clear3 structure with zero
// external swap data. Price is min(counterparty.maxOutput, pair.maxOutput)
// at counterparty.ratio.
type IntraOrderbookRouter struct{}

// NewIntraOrderbookRouter constructs an IntraOrderbookRouter. It holds no
// state: every call is fully determined by the TradeArgs it receives.
func NewIntraOrderbookRouter() *IntraOrderbookRouter { return &IntraOrderbookRouter{} }

// Quote has no meaning independent of a specific counterparty for this
// variant; the trade-mode selector only relies on GetTradeParams for it.
func (r *IntraOrderbookRouter) Quote(ctx context.Context, p QuoteParams) (registry.Quote, error) {
	return registry.Quote{}, nil
}

// GetMarketPrice mirrors Quote: telemetry-only and meaningless without a
// counterparty, so it reports zero.
func (r *IntraOrderbookRouter) GetMarketPrice(ctx context.Context, p QuoteParams) (fixedpoint.FP18, error) {
	return fixedpoint.Zero(), nil
}

// GetTradeParams builds the clear2/clear3 trade for args.Pair against
// args.Counterparty.
func (r *IntraOrderbookRouter) GetTradeParams(ctx context.Context, args TradeArgs) (TradeParams, error) {
	if args.Counterparty == nil {
		return TradeParams{}, errs.New(errs.KindCompose, "intra-orderbook route requires a counterparty pair")
	}
	cp := args.Counterparty

	amountOut := args.Pair.Quote.MaxOutput
	if cp.Quote.MaxOutput.Cmp(amountOut) < 0 {
		amountOut = cp.Quote.MaxOutput
	}
	if amountOut.IsZero() {
		return TradeParams{}, ErrNoRoute
	}

	amountIn, err := amountOut.Div(cp.Quote.Ratio)
	if err != nil {
		return TradeParams{}, errs.Wrap(errs.KindCompose, err, "computing clear amount in from counterparty ratio")
	}

	return TradeParams{
		Kind:         KindIntraOrderbook,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		SwapData:     nil, // clear2/clear3 carries zero external swap data
		Counterparty: cp.Order,
	}, nil
}
