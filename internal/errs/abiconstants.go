package errs

import "github.com/ethereum/go-ethereum/crypto"

// knownCustomErrors lists the Orderbook/Arb/RouteProcessor/Balancer custom
// error signatures the solver knows about ahead of time. This is the
// minimal slice of the "ABI constant tables" collaborator (§1, out of
// scope) needed to seed the selector cache and exercise the decode path
// without a registry round-trip for the common cases.
var knownCustomErrors = []string{
	// Orderbook
	"TokenSelfTrade(address,address)",
	"ZeroAmount()",
	"MinimumInput(uint256,uint256)",
	"InsufficientOutputAmount()",
	"OrderNotFound(bytes32)",
	"UnsupportedCalculateIO()",
	"NotAuthorized(address)",
	// Arb contracts
	"MinimumOutput(uint256,uint256)",
	"NonZeroBeforeTask()",
	"BadLength(uint256,uint256)",
	// RouteProcessor
	"MinimalOutputBalanceViolation(address)",
	"WrongPoolReserves(address)",
	// Balancer / vault-style custom errors
	"SwapLimitExceeded(uint256,uint256)",
	"TokenOutNotInPool(address)",
}

// SeedTable computes the selector -> candidate-signature map used to seed a
// new SelectorCache. Selectors are derived by hashing, not hardcoded, since
// hand-hardcoded 4-byte constants would be easy to get silently wrong.
func SeedTable() map[[4]byte][]string {
	table := make(map[[4]byte][]string, len(knownCustomErrors))
	for _, sig := range knownCustomErrors {
		hash := crypto.Keccak256([]byte(sig))
		var selector [4]byte
		copy(selector[:], hash[:4])
		table[selector] = append(table[selector], sig)
	}
	return table
}
