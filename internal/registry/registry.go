package registry

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
)

// obState is the per-orderbook scheduling and ownership state.
type obState struct {
	owners      map[common.Address]*OwnerProfile
	ownerOrder  []common.Address // insertion order, for round-robin
	ownerCursor int
}

// Registry owns the order-book map, the pair-derived indices, and the
// round-robin scheduling cursors (§3, §4.3). All mutating operations take
// the write lock only long enough to update in-memory maps — no network
// I/O is ever performed while holding it (§5).
type Registry struct {
	mu     sync.RWMutex
	logger *zap.SugaredLogger

	orderbooks map[common.Address]*obState
	obOrder    []common.Address
	obCursor   int

	// pairMap is the invariant-gated O(1) counterparty index:
	// orderbook -> sellToken -> buyToken -> orderHash -> Pair.
	pairMap map[common.Address]map[common.Address]map[common.Address]map[common.Hash]*Pair

	// pairsByKey is the authoritative store of every projected pair,
	// regardless of quote status — the scheduler walks this even before a
	// pair has ever been quoted.
	pairsByKey map[Key]*Pair
}

// New creates an empty registry.
func New(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		logger:     logger,
		orderbooks: make(map[common.Address]*obState),
		pairMap:    make(map[common.Address]map[common.Address]map[common.Address]map[common.Hash]*Pair),
		pairsByKey: make(map[Key]*Pair),
	}
}

// AddOrder ingests an order event: inserts it into the order-book map under
// (orderbook, owner) and projects it into pairs for every (input, output)
// combination where input token != output token. Projected pairs are not
// yet inserted into the pair-map — that happens only on a successful
// non-zero quote (§4.3, §4.6 step 2).
func (r *Registry) AddOrder(order *Order, rotationLimit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ob, ok := r.orderbooks[order.Orderbook]
	if !ok {
		ob = &obState{owners: make(map[common.Address]*OwnerProfile)}
		r.orderbooks[order.Orderbook] = ob
		r.obOrder = append(r.obOrder, order.Orderbook)
	}

	profile, ok := ob.owners[order.Owner]
	if !ok {
		profile = &OwnerProfile{
			Owner:  order.Owner,
			Orders: make(map[common.Hash]*Order),
			Limit:  rotationLimit,
		}
		ob.owners[order.Owner] = profile
		ob.ownerOrder = append(ob.ownerOrder, order.Owner)
	}
	if rotationLimit > 0 {
		profile.Limit = rotationLimit
	}

	if _, exists := profile.Orders[order.Hash]; exists {
		return errs.New(errs.KindInternal, "order already registered for this owner")
	}
	for ownerAddr, p := range ob.owners {
		if ownerAddr == order.Owner {
			continue
		}
		if _, exists := p.Orders[order.Hash]; exists {
			return errs.New(errs.KindInternal, "order already registered under a different owner in this orderbook")
		}
	}

	profile.Orders[order.Hash] = order
	profile.OrderHashes = append(profile.OrderHashes, order.Hash)

	for i, in := range order.Inputs {
		for j, out := range order.Outputs {
			if in.Token == out.Token {
				continue
			}
			// Vault balances start at zero and are refreshed explicitly by
			// the caller (via RefreshVaultBalances) once chain state is read.
			pair := &Pair{
				Order:      order,
				InputIndex: i,
				OutputIdx:  j,
				BuyToken:   out.Token,
				SellToken:  in.Token,
			}
			key := pair.Key()
			r.pairsByKey[key] = pair
			profile.PairKeys = append(profile.PairKeys, key)
		}
	}
	return nil
}

// RefreshVaultBalances updates the input/output vault balance snapshot for
// a pair (§4.3); these are used by routers to cap trade size and are kept
// separate from Quote since they refresh on a different cadence.
func (r *Registry) RefreshVaultBalances(key Key, input, output fixedpoint.FP18) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairsByKey[key]
	if !ok {
		return errs.New(errs.KindInternal, "unknown pair")
	}
	pair.InputVaultBalance = input
	pair.OutputVaultBalance = output
	return nil
}

// RemoveOrder deletes an order and all of its derived pairs from both the
// order-book map and the pair-map (§3 lifecycle, §4.3).
func (r *Registry) RemoveOrder(orderbook, owner common.Address, hash common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ob, ok := r.orderbooks[orderbook]
	if !ok {
		return errs.New(errs.KindInternal, "unknown orderbook")
	}
	profile, ok := ob.owners[owner]
	if !ok {
		return errs.New(errs.KindInternal, "unknown owner")
	}
	if _, ok := profile.Orders[hash]; !ok {
		return errs.New(errs.KindInternal, "order not found for owner")
	}

	remaining := profile.PairKeys[:0]
	for _, key := range profile.PairKeys {
		if key.OrderHash != hash {
			remaining = append(remaining, key)
			continue
		}
		if pair, ok := r.pairsByKey[key]; ok {
			r.removeFromPairMapLocked(pair)
		}
		delete(r.pairsByKey, key)
	}
	profile.PairKeys = remaining

	delete(profile.Orders, hash)
	for i, h := range profile.OrderHashes {
		if h == hash {
			profile.OrderHashes = append(profile.OrderHashes[:i], profile.OrderHashes[i+1:]...)
			break
		}
	}
	if len(profile.PairKeys) > 0 {
		profile.LastIndex = profile.LastIndex % len(profile.PairKeys)
	} else {
		profile.LastIndex = 0
	}
	return nil
}

// AddToPairMaps ensures pair is present in the invariant-gated pair-map.
// Called on a successful non-zero quote (§4.3, §4.6 step 2).
func (r *Registry) AddToPairMaps(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairsByKey[key]
	if !ok {
		return errs.New(errs.KindInternal, "unknown pair")
	}
	r.addToPairMapLocked(pair)
	return nil
}

// RemoveFromPairMaps removes pair from the invariant-gated pair-map.
// Called on a zero-output or failed quote (§4.6 step 1).
func (r *Registry) RemoveFromPairMaps(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairsByKey[key]
	if !ok {
		return errs.New(errs.KindInternal, "unknown pair")
	}
	r.removeFromPairMapLocked(pair)
	return nil
}

func (r *Registry) addToPairMapLocked(pair *Pair) {
	ob := pair.Order.Orderbook
	bySell, ok := r.pairMap[ob]
	if !ok {
		bySell = make(map[common.Address]map[common.Address]map[common.Hash]*Pair)
		r.pairMap[ob] = bySell
	}
	byBuy, ok := bySell[pair.SellToken]
	if !ok {
		byBuy = make(map[common.Address]map[common.Hash]*Pair)
		bySell[pair.SellToken] = byBuy
	}
	byHash, ok := byBuy[pair.BuyToken]
	if !ok {
		byHash = make(map[common.Hash]*Pair)
		byBuy[pair.BuyToken] = byHash
	}
	byHash[pair.Order.Hash] = pair
}

func (r *Registry) removeFromPairMapLocked(pair *Pair) {
	ob := pair.Order.Orderbook
	bySell, ok := r.pairMap[ob]
	if !ok {
		return
	}
	byBuy, ok := bySell[pair.SellToken]
	if !ok {
		return
	}
	byHash, ok := byBuy[pair.BuyToken]
	if !ok {
		return
	}
	delete(byHash, pair.Order.Hash)
}

// RecordQuote updates a pair's quote snapshot (§4.3 quote_order — the
// registry only records the result; the network read itself happens
// outside any lock, performed by the caller via a Router) and enforces the
// pair-map invariant in the same critical section.
func (r *Registry) RecordQuote(key Key, quote Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairsByKey[key]
	if !ok {
		return errs.New(errs.KindInternal, "unknown pair")
	}
	pair.Quote = quote
	pair.HasQuote = true
	if quote.IsZero() {
		r.removeFromPairMapLocked(pair)
	} else {
		r.addToPairMapLocked(pair)
	}
	return nil
}

// Pair returns a snapshot copy of the pair identified by key.
func (r *Registry) Pair(key Key) (Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairsByKey[key]
	if !ok {
		return Pair{}, false
	}
	return *p, true
}

// NextPair implements the round-robin scheduler: orderbooks, then owners
// within an orderbook, then pairs within an owner (§4.3). Each call
// advances exactly one owner's LastIndex; when it reaches the owner's
// rotation Limit, scheduling moves to the next owner, resetting that
// owner's LastIndex.
func (r *Registry) NextPair() (Pair, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.obOrder) == 0 {
		return Pair{}, false
	}

	// Bounded search: at most one full sweep of (orderbooks * owners) to
	// find a non-empty owner, so an all-empty registry returns promptly.
	maxAttempts := 0
	for _, obAddr := range r.obOrder {
		maxAttempts += len(r.orderbooks[obAddr].ownerOrder)
	}
	if maxAttempts == 0 {
		return Pair{}, false
	}

	for attempt := 0; attempt < maxAttempts+len(r.obOrder); attempt++ {
		obAddr := r.obOrder[r.obCursor]
		ob := r.orderbooks[obAddr]
		if len(ob.ownerOrder) == 0 {
			r.advanceOrderbook()
			continue
		}

		ownerAddr := ob.ownerOrder[ob.ownerCursor]
		profile := ob.owners[ownerAddr]

		if len(profile.PairKeys) == 0 {
			r.advanceOwner(ob)
			continue
		}

		idx := profile.LastIndex % len(profile.PairKeys)
		key := profile.PairKeys[idx]
		pair, ok := r.pairsByKey[key]
		if !ok {
			r.advanceOwner(ob)
			continue
		}

		profile.LastIndex++
		if profile.Limit <= 0 || profile.LastIndex >= profile.Limit {
			profile.LastIndex = 0
			r.advanceOwner(ob)
		}

		return *pair, true
	}
	return Pair{}, false
}

func (r *Registry) advanceOwner(ob *obState) {
	ob.ownerCursor++
	if ob.ownerCursor >= len(ob.ownerOrder) {
		ob.ownerCursor = 0
		r.advanceOrderbook()
	}
}

func (r *Registry) advanceOrderbook() {
	r.obCursor++
	if r.obCursor >= len(r.obOrder) {
		r.obCursor = 0
	}
}

// FindIntraOBCounterparties returns other pairs in the same orderbook whose
// buy-token is pair.SellToken and whose sell-token is pair.BuyToken, owned
// by a different address, ordered by the tie-break in §4.3: higher
// maxOutput, then lower ratio, then lexicographic order hash.
func (r *Registry) FindIntraOBCounterparties(key Key) ([]Pair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.pairsByKey[key]
	if !ok {
		return nil, errs.New(errs.KindInternal, "unknown pair")
	}
	candidates := r.counterpartiesLocked(pair.Order.Orderbook, pair)
	sortCounterparties(candidates)
	return candidates, nil
}

// FindInterOBCounterparties returns counterparty pairs across every
// orderbook other than pair's own, with the same tie-break as
// FindIntraOBCounterparties.
func (r *Registry) FindInterOBCounterparties(key Key) ([]Pair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.pairsByKey[key]
	if !ok {
		return nil, errs.New(errs.KindInternal, "unknown pair")
	}
	var candidates []Pair
	for obAddr := range r.pairMap {
		if obAddr == pair.Order.Orderbook {
			continue
		}
		candidates = append(candidates, r.counterpartiesLocked(obAddr, pair)...)
	}
	sortCounterparties(candidates)
	return candidates, nil
}

func (r *Registry) counterpartiesLocked(orderbook common.Address, pair *Pair) []Pair {
	bySell, ok := r.pairMap[orderbook]
	if !ok {
		return nil
	}
	byBuy, ok := bySell[pair.BuyToken]
	if !ok {
		return nil
	}
	byHash, ok := byBuy[pair.SellToken]
	if !ok {
		return nil
	}
	out := make([]Pair, 0, len(byHash))
	for _, candidate := range byHash {
		if candidate.Order.Owner == pair.Order.Owner {
			continue
		}
		out = append(out, *candidate)
	}
	return out
}

func sortCounterparties(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if cmp := a.Quote.MaxOutput.Cmp(b.Quote.MaxOutput); cmp != 0 {
			return cmp > 0 // higher maxOutput first
		}
		if cmp := a.Quote.Ratio.Cmp(b.Quote.Ratio); cmp != 0 {
			return cmp < 0 // lower ratio first
		}
		return bytes.Compare(a.Order.Hash.Bytes(), b.Order.Hash.Bytes()) < 0
	})
}

// Snapshot returns per-orderbook owner/pair counts for the status API.
func (r *Registry) Snapshot() map[common.Address]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[common.Address]int, len(r.orderbooks))
	for ob, state := range r.orderbooks {
		count := 0
		for _, p := range state.owners {
			count += len(p.PairKeys)
		}
		out[ob] = count
	}
	return out
}

// OwnerCount returns the total number of distinct (orderbook, owner) slots.
func (r *Registry) OwnerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, state := range r.orderbooks {
		n += len(state.owners)
	}
	return n
}

// PairCount returns the total number of projected pairs (regardless of
// pair-map membership).
func (r *Registry) PairCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairsByKey)
}
