package txpipeline

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rainarb/solver/internal/errs"
)

// transferEventTopic is keccak256("Transfer(address,address,uint256)"), the
// standard ERC-20 Transfer log signature.
var transferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// afterClearEventTopic is keccak256("AfterClear((address,uint256,uint256),uint256,uint256)"),
// the orderbook's post-clear settlement event. Its last two 32-byte words
// are (aliceOutput, bobOutput) regardless of how many leading words the
// clear-state-change struct occupies, so aliceOutput is read positionally
// from the end of the log data rather than through a full ABI decode.
var afterClearEventTopic = crypto.Keccak256Hash([]byte("AfterClear((address,uint256,uint256),uint256,uint256)"))

const evmWordSize = 32

// ExtractIncome scans a receipt's logs for ERC-20 Transfer events whose
// recipient is signer, returning the first (token -> amount) observed per
// token (§4.7.3): "first match wins" when an attempt produces more than one
// transfer of the same token to the signer.
func ExtractIncome(logs []*types.Log, signer common.Address) map[common.Address]*big.Int {
	income := make(map[common.Address]*big.Int)
	for _, log := range logs {
		if len(log.Topics) != 3 || log.Topics[0] != transferEventTopic {
			continue
		}
		to := common.BytesToAddress(log.Topics[2].Bytes())
		if to != signer {
			continue
		}
		if _, seen := income[log.Address]; seen {
			continue
		}
		income[log.Address] = new(big.Int).SetBytes(log.Data)
	}
	return income
}

// ExtractAfterClearOutput decodes the aliceOutput field of an AfterClear
// event emitted by orderbook, for the clear-against-self case (§4.7.3) where
// our income never leaves the orderbook as an ERC-20 Transfer to the signer
// and so ExtractIncome finds nothing.
func ExtractAfterClearOutput(logs []*types.Log, orderbook common.Address) (*big.Int, error) {
	for _, log := range logs {
		if log.Address != orderbook || len(log.Topics) == 0 || log.Topics[0] != afterClearEventTopic {
			continue
		}
		if len(log.Data) < 2*evmWordSize {
			return nil, errs.New(errs.KindDecode, "AfterClear: log data too short")
		}
		aliceOutputWord := log.Data[len(log.Data)-2*evmWordSize : len(log.Data)-evmWordSize]
		return new(big.Int).SetBytes(aliceOutputWord), nil
	}
	return nil, errs.New(errs.KindInternal, "no AfterClear event found")
}
