package router

import (
	"fmt"

	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
)

// ArbFunction names the on-chain arb entry point and the calldata layout it
// expects, resolved from (orderbook version, router variant, is-partial)
// per the §9 open question: the choice between arb3 (v5 orderbooks) and
// arb4/arb5 (v6 orderbooks) is implicit in the deployed ABI constant
// tables, not derivable from the order data itself, so it is made explicit
// here as a lookup table rather than inferred at call time.
type ArbFunction struct {
	Name         string
	TakesPartial bool
}

type arbKey struct {
	version  registry.OrderVersion
	kind     Kind
	isPartial bool
}

// arbTable is the lookup populated at package init. V3 orders are cleared
// by v5 orderbook deployments (arb2/arb3); V4 orders are cleared by v6
// deployments (arb4/arb5). In both, partial fills and inter-orderbook clears
// go through the second entry point (arb3 or arb5).
var arbTable = map[arbKey]ArbFunction{
	{version: registry.V3, kind: KindExternal, isPartial: false}:        {Name: "arb2", TakesPartial: false},
	{version: registry.V3, kind: KindExternal, isPartial: true}:         {Name: "arb3", TakesPartial: true},
	{version: registry.V3, kind: KindIntraOrderbook, isPartial: false}:  {Name: "arb2", TakesPartial: false},
	{version: registry.V3, kind: KindIntraOrderbook, isPartial: true}:   {Name: "arb3", TakesPartial: true},
	{version: registry.V3, kind: KindInterOrderbook, isPartial: false}:  {Name: "arb3", TakesPartial: false},
	{version: registry.V3, kind: KindInterOrderbook, isPartial: true}:   {Name: "arb3", TakesPartial: true},

	{version: registry.V4, kind: KindExternal, isPartial: false}:        {Name: "arb4", TakesPartial: false},
	{version: registry.V4, kind: KindExternal, isPartial: true}:         {Name: "arb5", TakesPartial: true},
	{version: registry.V4, kind: KindIntraOrderbook, isPartial: false}:  {Name: "arb4", TakesPartial: false},
	{version: registry.V4, kind: KindIntraOrderbook, isPartial: true}:   {Name: "arb5", TakesPartial: true},
	{version: registry.V4, kind: KindInterOrderbook, isPartial: false}:  {Name: "arb5", TakesPartial: false},
	{version: registry.V4, kind: KindInterOrderbook, isPartial: true}:   {Name: "arb5", TakesPartial: true},
}

// ResolveArbFunction returns the arb entry point for the given orderbook
// version, router variant, and whether the trade is a partial fill of the
// order's maxOutput (amountOut < quote.MaxOutput).
func ResolveArbFunction(version registry.OrderVersion, kind Kind, isPartial bool) (ArbFunction, error) {
	fn, ok := arbTable[arbKey{version: version, kind: kind, isPartial: isPartial}]
	if !ok {
		return ArbFunction{}, fmt.Errorf("router: no arb function registered for version=%v kind=%v partial=%v", version, kind, isPartial)
	}
	return fn, nil
}

// IsPartialFill reports whether amountOut is a partial fill of maxOutput.
func IsPartialFill(amountOut, maxOutput fixedpoint.FP18) bool {
	return amountOut.Cmp(maxOutput) < 0
}
