// Package onchain is the seam between the core's pure pipeline logic and
// the three read collaborators spec §6 explicitly places out of the core's
// scope: quote_order, fetch_pools, and the native-asset price lookup all
// depend on the orderbook/aggregator/oracle ABIs, and "ABI constant tables"
// and "direct JSON-RPC transport" are named as out-of-scope collaborators
// in their own right. This package defines the unconfigured default:
// Unconfigured, a type that compiles against selector.Deps/router.PoolFetcher's
// interfaces but returns a clearly-tagged error until an operator wires in
// the real contract calls for their deployment.
package onchain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/router"
)

// Unconfigured satisfies selector.QuoteFunc, selector.EthPriceFunc, and
// router.PoolFetcher, but every method fails with KindFetch until it is
// replaced: a real deployment provides each as a call against its own
// orderbook/aggregator/oracle contracts and ABI, which is exactly the
// out-of-scope surface this package marks the edge of.
type Unconfigured struct{}

// QuoteOrder implements selector.QuoteFunc.
func (Unconfigured) QuoteOrder(ctx context.Context, pair registry.Pair) (registry.Quote, error) {
	return registry.Quote{}, errs.New(errs.KindFetch, "onchain: quote_order not configured for this deployment")
}

// EthPrice implements selector.EthPriceFunc.
func (Unconfigured) EthPrice(ctx context.Context, token common.Address) (fixedpoint.FP18, error) {
	return fixedpoint.FP18{}, errs.New(errs.KindFetch, "onchain: native-asset price oracle not configured for this deployment")
}

// FetchPools implements router.PoolFetcher.
func (Unconfigured) FetchPools(ctx context.Context, from, to common.Address, block uint64, ignoreCache bool) ([]router.Pool, error) {
	return nil, errs.New(errs.KindFetch, "onchain: fetch_pools aggregator not configured for this deployment")
}

// Lookup implements errs.SelectorRegistry, the selector-signature HTTP
// registry §6 places outside the core: until a deployment wires its own
// registry client, a selector cache miss (anything beyond the static seed
// table in internal/errs/abiconstants.go) fails with KindFetch rather than
// silently returning no candidates.
func (Unconfigured) Lookup(ctx context.Context, selector [4]byte) ([]string, error) {
	return nil, errs.New(errs.KindFetch, "onchain: selector registry not configured for this deployment")
}
