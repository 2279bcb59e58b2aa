package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/fixedpoint"
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

func newOrder(ob, owner common.Address, h common.Hash, tokenIn, tokenOut common.Address) *Order {
	return &Order{
		Hash:      h,
		Owner:     owner,
		Orderbook: ob,
		Version:   V4,
		Inputs:    []IO{{Token: tokenIn}},
		Outputs:   []IO{{Token: tokenOut}},
	}
}

func TestAddOrderRejectsDuplicateHash(t *testing.T) {
	r := New(nil)
	ob, owner := addr(1), addr(2)
	tokenA, tokenB := addr(10), addr(11)
	order := newOrder(ob, owner, hash(1), tokenA, tokenB)

	if err := r.AddOrder(order, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if err := r.AddOrder(order, 4); err == nil {
		t.Fatalf("expected error re-adding the same order hash")
	}
}

func TestPairMapInvariant(t *testing.T) {
	r := New(nil)
	ob, owner := addr(1), addr(2)
	tokenA, tokenB := addr(10), addr(11)
	order := newOrder(ob, owner, hash(1), tokenA, tokenB)
	if err := r.AddOrder(order, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	key := Key{OrderHash: hash(1), InputIndex: 0, OutputIdx: 0}

	// A fresh pair has never been quoted, so it must not appear in the
	// invariant-gated pair-map: no counterparty lookup should see it.
	counterOrder := newOrder(ob, addr(3), hash(2), tokenB, tokenA)
	if err := r.AddOrder(counterOrder, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	counterKey := Key{OrderHash: hash(2), InputIndex: 0, OutputIdx: 0}

	found, err := r.FindIntraOBCounterparties(key)
	if err != nil {
		t.Fatalf("FindIntraOBCounterparties: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no counterparties before any quote, got %d", len(found))
	}

	// Quote the counterparty with a non-zero output: it must now appear.
	if err := r.RecordQuote(counterKey, Quote{MaxOutput: fixedpoint.One(), Ratio: fixedpoint.One()}); err != nil {
		t.Fatalf("RecordQuote: %v", err)
	}
	found, err = r.FindIntraOBCounterparties(key)
	if err != nil {
		t.Fatalf("FindIntraOBCounterparties: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 counterparty after non-zero quote, got %d", len(found))
	}

	// A zero-output quote must retract it again (§8 scenario 1).
	if err := r.RecordQuote(counterKey, Quote{MaxOutput: fixedpoint.Zero(), Ratio: fixedpoint.Zero()}); err != nil {
		t.Fatalf("RecordQuote: %v", err)
	}
	found, err = r.FindIntraOBCounterparties(key)
	if err != nil {
		t.Fatalf("FindIntraOBCounterparties: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected 0 counterparties after zero-output quote, got %d", len(found))
	}
}

func TestCounterpartyTieBreak(t *testing.T) {
	r := New(nil)
	ob, owner := addr(1), addr(2)
	tokenA, tokenB := addr(10), addr(11)
	order := newOrder(ob, owner, hash(1), tokenA, tokenB)
	if err := r.AddOrder(order, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	key := Key{OrderHash: hash(1), InputIndex: 0, OutputIdx: 0}

	low := newOrder(ob, addr(3), hash(2), tokenB, tokenA)
	high := newOrder(ob, addr(4), hash(3), tokenB, tokenA)
	if err := r.AddOrder(low, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if err := r.AddOrder(high, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}

	two, err := fixedpoint.One().Add(fixedpoint.One())
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.RecordQuote(Key{OrderHash: hash(2), InputIndex: 0, OutputIdx: 0}, Quote{MaxOutput: fixedpoint.One(), Ratio: fixedpoint.One()}); err != nil {
		t.Fatalf("RecordQuote: %v", err)
	}
	if err := r.RecordQuote(Key{OrderHash: hash(3), InputIndex: 0, OutputIdx: 0}, Quote{MaxOutput: two, Ratio: fixedpoint.One()}); err != nil {
		t.Fatalf("RecordQuote: %v", err)
	}

	found, err := r.FindIntraOBCounterparties(key)
	if err != nil {
		t.Fatalf("FindIntraOBCounterparties: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 counterparties, got %d", len(found))
	}
	if found[0].Order.Hash != hash(3) {
		t.Fatalf("expected higher-maxOutput counterparty first, got hash %x", found[0].Order.Hash)
	}
}

func TestRemoveOrderClearsPairs(t *testing.T) {
	r := New(nil)
	ob, owner := addr(1), addr(2)
	tokenA, tokenB := addr(10), addr(11)
	order := newOrder(ob, owner, hash(1), tokenA, tokenB)
	if err := r.AddOrder(order, 4); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	key := Key{OrderHash: hash(1), InputIndex: 0, OutputIdx: 0}
	if err := r.RecordQuote(key, Quote{MaxOutput: fixedpoint.One(), Ratio: fixedpoint.One()}); err != nil {
		t.Fatalf("RecordQuote: %v", err)
	}
	if r.PairCount() != 1 {
		t.Fatalf("expected 1 pair before removal")
	}
	if err := r.RemoveOrder(ob, owner, hash(1)); err != nil {
		t.Fatalf("RemoveOrder: %v", err)
	}
	if r.PairCount() != 0 {
		t.Fatalf("expected 0 pairs after removal")
	}
	if _, ok := r.Pair(key); ok {
		t.Fatalf("expected pair to be gone after removal")
	}
}

// TestRoundRobinFairness checks §8's fairness property: for an owner with k
// orders and rotation limit L, over k*L calls to NextPair every one of that
// owner's orders is returned at least L times — here k=L and each order
// projects one pair, so every pair is returned once per sweep of L calls.
func TestRoundRobinFairness(t *testing.T) {
	r := New(nil)
	ob, owner := addr(1), addr(2)
	tokenA := addr(10)

	const k = 3
	const limit = 3
	hashes := make([]common.Hash, k)
	for i := 0; i < k; i++ {
		h := hash(byte(i + 1))
		hashes[i] = h
		order := newOrder(ob, owner, h, tokenA, addr(byte(20+i)))
		if err := r.AddOrder(order, limit); err != nil {
			t.Fatalf("AddOrder: %v", err)
		}
	}

	counts := make(map[common.Hash]int, k)
	for i := 0; i < k*limit; i++ {
		pair, ok := r.NextPair()
		if !ok {
			t.Fatalf("NextPair returned false at iteration %d", i)
		}
		counts[pair.Order.Hash]++
	}

	for _, h := range hashes {
		if counts[h] < limit {
			t.Fatalf("order %x returned %d times, expected at least %d", h, counts[h], limit)
		}
	}
}

func TestNextPairEmptyRegistry(t *testing.T) {
	r := New(nil)
	if _, ok := r.NextPair(); ok {
		t.Fatalf("expected no pair from an empty registry")
	}
}

func TestNextPairSkipsOtherOwner(t *testing.T) {
	r := New(nil)
	ob := addr(1)
	ownerA, ownerB := addr(2), addr(3)
	tokenA, tokenB := addr(10), addr(11)

	orderA := newOrder(ob, ownerA, hash(1), tokenA, tokenB)
	if err := r.AddOrder(orderA, 2); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	orderB := newOrder(ob, ownerB, hash(2), tokenB, tokenA)
	if err := r.AddOrder(orderB, 2); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}

	seen := map[common.Address]int{}
	for i := 0; i < 4; i++ {
		pair, ok := r.NextPair()
		if !ok {
			t.Fatalf("NextPair returned false")
		}
		seen[pair.Order.Owner]++
	}
	if seen[ownerA] == 0 || seen[ownerB] == 0 {
		t.Fatalf("expected both owners scheduled, got %v", seen)
	}
}
