// Package registry owns the order set (§4.3): the order-book map, the
// pair-derived indices, owner round-robin scheduling state, and the
// counterparty-lookup operations the trade-mode selector depends on.
package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/fixedpoint"
)

// OrderVersion tags which wire version produced an Order. The tag is
// immutable for the order's lifetime.
type OrderVersion uint8

const (
	// V3 orders carry integer amounts.
	V3 OrderVersion = iota
	// V4 orders carry 32-byte fixed-point amounts.
	V4
)

// IO describes one input or output vault slot of an order: the token
// address, vault id, and (for telemetry/quoting) decimals and symbol.
type IO struct {
	Token    common.Address
	VaultID  [32]byte
	Decimals uint8
	Symbol   string
}

// Order is the solver's tagged-sum representation of an on-chain order
// (§3). Version is immutable once set; downstream logic only branches on it
// when composing the clearing transaction (§4.7's BUILD stage).
type Order struct {
	Hash        common.Hash
	Owner       common.Address
	Orderbook   common.Address
	Version     OrderVersion
	Inputs      []IO
	Outputs     []IO
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
	Nonce       [32]byte
}

// Vault identifies a per-owner, per-token, per-id balance (§3). Balance
// itself is tracked separately as a non-negative FP18 and is always
// refreshed from chain state rather than cached indefinitely.
type Vault struct {
	Owner common.Address
	Token common.Address
	ID    [32]byte
}

// Quote is a recent snapshot of an order's maxOutput and ratio (§3, GLOSSARY).
type Quote struct {
	MaxOutput fixedpoint.FP18
	Ratio     fixedpoint.FP18
}

// IsZero reports whether the quote carries no output, per the pair-map
// invariant (a pair is present in the pair-map iff its last quote was
// non-zero).
func (q Quote) IsZero() bool { return q.MaxOutput.IsZero() }

// Pair is a directional (buy, sell) projection of a single order with its
// selected input/output IO indices (§3, GLOSSARY). Pairs are the unit of
// scheduling.
type Pair struct {
	Order      *Order
	InputIndex int
	OutputIdx  int

	BuyToken  common.Address
	SellToken common.Address

	InputVaultBalance  fixedpoint.FP18
	OutputVaultBalance fixedpoint.FP18

	Quote    Quote
	HasQuote bool
}

// Key identifies a pair uniquely by order hash and IO index pair, used as
// the map key everywhere a pair must be referenced without an in-memory
// pointer cycle back to its owner/orderbook (§9 design note on cycles).
type Key struct {
	OrderHash  common.Hash
	InputIndex int
	OutputIdx  int
}

func (p *Pair) Key() Key {
	return Key{OrderHash: p.Order.Hash, InputIndex: p.InputIndex, OutputIdx: p.OutputIdx}
}

// OwnerProfile is the ordered set of orders owned by one address plus the
// round-robin scheduling state for that owner (§3).
type OwnerProfile struct {
	Owner      common.Address
	OrderHashes []common.Hash // insertion order of the owner's orders
	PairKeys   []Key // projected pairs in insertion order, the round-robin sequence
	Orders     map[common.Hash]*Order
	Limit      int // rotation limit: consecutive pairs considered before moving on
	LastIndex  int // index into PairKeys of the next pair; reset to 0 when it reaches Limit
}
