// Package router implements the three trade-route variants of §4.4: an
// external AMM aggregator, an intra-orderbook clear, and an inter-orderbook
// arb. All three share the polymorphic Router interface so the trade-mode
// selector (internal/selector) can try each and compare estimated profit.
package router

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
)

// ErrNoRoute is returned by GetTradeParams when no profitable route exists
// for the requested direction.
var ErrNoRoute = errors.New("router: no route")

// Kind tags which of the three router variants produced a TradeParams.
type Kind uint8

const (
	KindExternal Kind = iota
	KindIntraOrderbook
	KindInterOrderbook
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindIntraOrderbook:
		return "intra_orderbook"
	case KindInterOrderbook:
		return "inter_orderbook"
	default:
		return "unknown"
	}
}

// Mode selects single- or multi-hop search for the external router.
type Mode uint8

const (
	ModeSingle Mode = iota
	ModeMulti
)

// QuoteParams is the common input to Quote and GetMarketPrice.
type QuoteParams struct {
	FromToken common.Address
	ToToken   common.Address
	AmountIn  fixedpoint.FP18
	Block     uint64
}

// TradeArgs is the common input to GetTradeParams.
type TradeArgs struct {
	Pair          registry.Pair
	Counterparty  *registry.Pair // nil for the external router
	GasPrice      *big.Int
	MaximumInput  fixedpoint.FP18
	Mode          Mode
	IgnorePoolCache bool
}

// TradeParams is the output of GetTradeParams: enough to build the §4.7
// BUILD stage's calldata regardless of which router produced it.
type TradeParams struct {
	Kind        Kind
	AmountIn    fixedpoint.FP18
	AmountOut   fixedpoint.FP18
	SwapData    []byte
	PoolCodeMap map[common.Address][]byte
	Counterparty *registry.Order
}

// Router is the polymorphic interface shared by all three variants (§4.4).
type Router interface {
	Quote(ctx context.Context, p QuoteParams) (registry.Quote, error)
	GetMarketPrice(ctx context.Context, p QuoteParams) (fixedpoint.FP18, error)
	GetTradeParams(ctx context.Context, args TradeArgs) (TradeParams, error)
}

// Pool is one AMM liquidity pool candidate for a (from, to) token pair.
type Pool struct {
	Address  common.Address
	Code     []byte // protocol-specific pool identifier, opaque to the router
	ReserveIn  fixedpoint.FP18
	ReserveOut fixedpoint.FP18
}
