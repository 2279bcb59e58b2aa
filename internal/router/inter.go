package router

import (
	"context"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
)

// InterOrderbookRouter uses an order on a *different* orderbook as the
// liquidity source via arb3-style composition (§4.4): our pair is the take
// side, the counterparty is the maker side on its own orderbook, and the
// external swap data is the counterparty's order encoded as a take-orders
// call. The actual ABI encoding of that call happens in the transaction
// pipeline's BUILD stage (§4.7), which has access to the orderbook ABI
// bindings; this router only decides which counterparty to use and at what
// size.
type InterOrderbookRouter struct{}

// NewInterOrderbookRouter constructs an InterOrderbookRouter.
func NewInterOrderbookRouter() *InterOrderbookRouter { return &InterOrderbookRouter{} }

func (r *InterOrderbookRouter) Quote(ctx context.Context, p QuoteParams) (registry.Quote, error) {
	return registry.Quote{}, nil
}

func (r *InterOrderbookRouter) GetMarketPrice(ctx context.Context, p QuoteParams) (fixedpoint.FP18, error) {
	return fixedpoint.Zero(), nil
}

// GetTradeParams sizes the arb against the counterparty order on its own
// orderbook, at the counterparty's ratio, capped by both sides' maxOutput.
func (r *InterOrderbookRouter) GetTradeParams(ctx context.Context, args TradeArgs) (TradeParams, error) {
	if args.Counterparty == nil {
		return TradeParams{}, errs.New(errs.KindCompose, "inter-orderbook route requires a counterparty pair")
	}
	cp := args.Counterparty
	if cp.Order.Orderbook == args.Pair.Order.Orderbook {
		return TradeParams{}, errs.New(errs.KindCompose, "inter-orderbook route requires a counterparty on a different orderbook")
	}

	amountOut := args.Pair.Quote.MaxOutput
	if cp.Quote.MaxOutput.Cmp(amountOut) < 0 {
		amountOut = cp.Quote.MaxOutput
	}
	if amountOut.IsZero() {
		return TradeParams{}, ErrNoRoute
	}

	amountIn, err := amountOut.Div(cp.Quote.Ratio)
	if err != nil {
		return TradeParams{}, errs.Wrap(errs.KindCompose, err, "computing arb amount in from counterparty ratio")
	}

	return TradeParams{
		Kind:         KindInterOrderbook,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		SwapData:     cp.Order.Bytecode,
		Counterparty: cp.Order,
	}, nil
}
