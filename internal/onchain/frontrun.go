package onchain

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/txpipeline"
)

// LogFilterer is the subset of ethclient.Client §4.7.2's frontrun lookup
// needs: eth_getLogs, which §6 lists as in-scope JSON-RPC transport (unlike
// quote_order/fetch_pools/the price oracle, which depend on third-party
// protocol ABIs).
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// ClearLogsFromChain returns a txpipeline.FrontrunLookup backed by a real
// eth_getLogs call against filterer, scoped to the orderbook address and the
// single block the reverted attempt landed in. Decoding the clearing event's
// order-config fields depends on the orderbook's own event ABI, which is out
// of scope the same way quote_order is (§1); instead each log's keccak256
// over its raw data is used as the structural fingerprint DetectFrontrun
// compares, which is sufficient to recognize "this log clears the same order
// config as one of ours" without knowing the event's field layout.
func ClearLogsFromChain(filterer LogFilterer) txpipeline.FrontrunLookup {
	return func(ctx context.Context, orderbook common.Address, blockNumber uint64) ([]txpipeline.ClearLog, error) {
		block := new(big.Int).SetUint64(blockNumber)
		logs, err := filterer.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: block,
			ToBlock:   block,
			Addresses: []common.Address{orderbook},
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindFetch, err, "onchain: filter orderbook clearing logs")
		}

		out := make([]txpipeline.ClearLog, 0, len(logs))
		for _, l := range logs {
			out = append(out, txpipeline.ClearLog{
				TxHash:           l.TxHash,
				TransactionIndex: uint(l.TxIndex),
				OrderConfigHash:  crypto.Keccak256Hash(l.Data),
			})
		}
		return out, nil
	}
}
