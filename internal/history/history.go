// Package history is the append-only local sink for attempt outcomes (§7):
// the solver core never reads its own history back, so writes are the only
// operation the core depends on — Recent exists purely for internal/statusapi.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/errs"
)

// Outcome is one recorded process_order/pipeline attempt, flattened for
// storage and for the status API's JSON feed.
type Outcome struct {
	TimestampMillis  int64          `json:"timestampMillis"`
	OrderHash        common.Hash    `json:"orderHash"`
	InputIndex       int            `json:"inputIndex"`
	OutputIndex      int            `json:"outputIndex"`
	SelectorOutcome  string         `json:"selectorOutcome"`
	PipelineOutcome  string         `json:"pipelineOutcome,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	TxHash           common.Hash    `json:"txHash,omitempty"`
	FrontrunTxHash    common.Hash   `json:"frontrunTxHash,omitempty"`
	EstimatedProfitEth string       `json:"estimatedProfitEth,omitempty"`
}

const outcomePrefix = "o:"

// Store is a pebble-backed append-only log, keyed so iteration returns
// outcomes in timestamp order (§7: the history sink, not the core, is
// where any on-disk state for this system lives).
type Store struct {
	db *pebble.DB
}

// Open creates or reuses a pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "history: open pebble store")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one outcome. NoSync matches the teacher's trade-log
// durability tradeoff (pkg/storage/pebble_store.go SaveTrade): history is a
// telemetry sink, not a source of truth, so fsync-per-write isn't worth the
// latency.
func (s *Store) Append(o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "history: marshal outcome")
	}
	key := outcomeKey(o.TimestampMillis, o.OrderHash)
	if err := s.db.Set(key, data, pebble.NoSync); err != nil {
		return errs.Wrap(errs.KindInternal, err, "history: write outcome")
	}
	return nil
}

// Recent returns up to limit of the most recently appended outcomes, newest
// first.
func (s *Store) Recent(limit int) ([]Outcome, error) {
	prefix := []byte(outcomePrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "history: new iterator")
	}
	defer iter.Close()

	var out []Outcome
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var o Outcome
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// outcomeKey is "o:<20-digit-millis>:<orderHash>" so lexicographic order
// matches chronological order regardless of key collisions within the same
// millisecond across different orders.
func outcomeKey(timestampMillis int64, orderHash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", outcomePrefix, timestampMillis, orderHash.Hex()))
}

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
