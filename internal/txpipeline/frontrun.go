package txpipeline

import "github.com/ethereum/go-ethereum/common"

// ClearLog is the shape relevant to frontrun detection (§4.7.2): a TakeOrder
// or Clear event emitted by the same orderbook in the same block, reduced to
// the fields we need to decide whether it structurally matches one of our
// own candidate order configs.
type ClearLog struct {
	TxHash           common.Hash
	TransactionIndex uint
	OrderConfigHash  common.Hash // hash of the decoded order config, for structural equality
}

// DetectFrontrun implements §4.7.2: among the logs emitted by the same
// orderbook in the same block as our reverted attempt, find one that (a)
// landed earlier in the block than our transaction and (b) clears a
// structurally identical order config to one of ours. Its transaction hash
// becomes the "Actual Cause" attached to the revert diagnosis.
//
// Soundness: a log at or after receiptTxIndex, or whose config hash is not
// one of ours, never yields a match — both conditions are checked before
// any match can be returned.
func DetectFrontrun(logs []ClearLog, receiptTxIndex uint, ourConfigHashes map[common.Hash]struct{}) (common.Hash, bool) {
	for _, log := range logs {
		if log.TransactionIndex >= receiptTxIndex {
			continue
		}
		if _, ours := ourConfigHashes[log.OrderConfigHash]; !ours {
			continue
		}
		return log.TxHash, true
	}
	return common.Hash{}, false
}
