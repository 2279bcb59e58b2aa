// Package txpipeline drives one clearing attempt through the §4.7 state
// machine: BUILD -> ESTIMATE -> SIGN -> SUBMIT -> WAIT_RECEIPT -> CLASSIFY,
// terminating in Confirmed, RevertDiagnosed, or Timeout.
package txpipeline

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/guard"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/router"
)

// Outcome is the terminal state of one attempt.
type Outcome string

const (
	Confirmed       Outcome = "confirmed"
	RevertDiagnosed Outcome = "revert_diagnosed"
	Timeout         Outcome = "timeout"
)

// ChainClient is the subset of an ethclient.Client the pipeline needs, kept
// as an interface so the BUILD/ESTIMATE/WAIT stages are testable without a
// live node (grounded on the EthereumClient shape in the blockchain package
// of the order-api-microservices reference).
type ChainClient interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// FrontrunLookup fetches the clearing logs emitted by orderbook in the given
// block, for §4.7.2 frontrun detection. It is optional: a nil lookup skips
// frontrun diagnosis and reports a bare revert.
type FrontrunLookup func(ctx context.Context, orderbook common.Address, blockNumber uint64) ([]ClearLog, error)

// Pipeline owns the collaborators a clearing attempt needs end to end.
type Pipeline struct {
	Client                  ChainClient
	Signers                 *SignerPool
	Deployer                guard.Deployer
	ArbContract             common.Address
	ChainID                 *big.Int
	GasLimitHeadroomPercent uint64 // added on top of the raw EstimateGas result
	ReceiptTimeout          time.Duration
	FrontrunLookup          FrontrunLookup
	RevertCache             *errs.SelectorCache // nil: revert reproduction is skipped
}

// Attempt is everything the pipeline needs to clear one selected trade.
type Attempt struct {
	Pair             registry.Pair
	TradeParams      router.TradeParams
	GasPrice         *big.Int // nil: ask the client to suggest one
	InputToEthPrice  fixedpoint.FP18
	OutputToEthPrice fixedpoint.FP18
	MinimumExpected  fixedpoint.FP18
}

// Result is the pipeline's outcome for one attempt.
type Result struct {
	Outcome        Outcome
	TxHash         common.Hash
	Receipt        *types.Receipt
	Reason         string
	FrontrunTxHash common.Hash
	Income         map[common.Address]*big.Int
	Err            error
}

// Run drives a single attempt through every stage, always releasing the
// signer it acquired (§4.8: at most one in-flight attempt per signer).
func (p *Pipeline) Run(ctx context.Context, att Attempt) Result {
	// BUILD
	calldata, err := p.build(ctx, att)
	if err != nil {
		return Result{Outcome: RevertDiagnosed, Reason: "build failed", Err: err}
	}

	signer, err := p.Signers.Acquire(ctx)
	if err != nil {
		return Result{Outcome: RevertDiagnosed, Reason: "no signer available", Err: err}
	}
	defer p.Signers.Release(signer)

	// ESTIMATE
	gasLimit, gasPrice, err := p.estimate(ctx, signer.Address(), calldata, att.GasPrice)
	if err != nil {
		return Result{Outcome: RevertDiagnosed, Reason: "estimate failed", Err: err}
	}

	nonce, err := p.Client.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return Result{Outcome: RevertDiagnosed, Reason: "nonce lookup failed", Err: err}
	}

	// SIGN
	unsigned := types.NewTransaction(nonce, p.ArbContract, big.NewInt(0), gasLimit, gasPrice, calldata)
	signed, err := signer.SignTx(ctx, unsigned, p.ChainID)
	if err != nil {
		return Result{Outcome: RevertDiagnosed, Reason: "sign failed", Err: err}
	}

	// SUBMIT
	txHash, err := signer.SendRaw(ctx, signed)
	if err != nil {
		return Result{Outcome: RevertDiagnosed, Reason: "submit failed", Err: err}
	}

	// WAIT_RECEIPT
	receipt, err := signer.WaitReceipt(ctx, txHash, p.ReceiptTimeout)
	if err != nil {
		return Result{Outcome: Timeout, TxHash: txHash, Reason: "receipt not observed within timeout", Err: err}
	}

	// CLASSIFY
	return p.classify(ctx, signer, att, txHash, calldata, gasLimit, gasPrice, receipt)
}

func (p *Pipeline) build(ctx context.Context, att Attempt) ([]byte, error) {
	isPartial := router.IsPartialFill(att.TradeParams.AmountOut, att.Pair.Quote.MaxOutput)
	arbFn, err := router.ResolveArbFunction(att.Pair.Order.Version, att.TradeParams.Kind, isPartial)
	if err != nil {
		return nil, err
	}

	var bytecode []byte
	if att.TradeParams.Kind == router.KindExternal {
		bytecode, err = guard.BuildExternal(ctx, p.Deployer, guard.ExternalParams{
			ExpectedSender:   p.ArbContract,
			InputToEthPrice:  att.InputToEthPrice,
			OutputToEthPrice: att.OutputToEthPrice,
			MinimumExpected:  att.MinimumExpected,
		})
	} else {
		bytecode, err = guard.BuildInternal(ctx, p.Deployer, guard.InternalParams{
			ExpectedSender:   p.ArbContract,
			InputToken:       att.Pair.SellToken,
			OutputToken:      att.Pair.BuyToken,
			InputToEthPrice:  att.InputToEthPrice,
			OutputToEthPrice: att.OutputToEthPrice,
			MinimumExpected:  att.MinimumExpected,
		})
	}
	if err != nil {
		return nil, err
	}

	return packCalldata(arbFn, att.TradeParams, bytecode), nil
}

// packCalldata produces a 4-byte selector derived from the arb function's
// name followed by a length-prefixed encoding of its variable-size
// arguments. The real orderbook ABI is out of scope here; this keeps the
// same shape (selector + swap data + pool code map + guard bytecode) the
// deployed arb functions expect, so downstream gas estimation and signing
// exercise a realistically sized payload.
func packCalldata(fn router.ArbFunction, tp router.TradeParams, guardBytecode []byte) []byte {
	selector := crypto.Keccak256([]byte(fn.Name + "()"))[:4]

	data := make([]byte, 0, len(selector)+len(tp.SwapData)+len(guardBytecode)+64)
	data = append(data, selector...)
	data = appendLengthPrefixed(data, tp.SwapData)
	data = appendLengthPrefixed(data, guardBytecode)
	for _, code := range tp.PoolCodeMap {
		data = appendLengthPrefixed(data, code)
	}
	return data
}

func appendLengthPrefixed(dst, payload []byte) []byte {
	var lenWord [32]byte
	big.NewInt(int64(len(payload))).FillBytes(lenWord[:])
	dst = append(dst, lenWord[:]...)
	return append(dst, payload...)
}

func (p *Pipeline) estimate(ctx context.Context, from common.Address, calldata []byte, gasPrice *big.Int) (uint64, *big.Int, error) {
	if gasPrice == nil {
		suggested, err := p.Client.SuggestGasPrice(ctx)
		if err != nil {
			return 0, nil, errs.Wrap(errs.KindFetch, err, "suggest gas price")
		}
		gasPrice = suggested
	}

	raw, err := p.Client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &p.ArbContract,
		Data: calldata,
	})
	if err != nil {
		return 0, nil, errs.Wrap(errs.KindFetch, err, "estimate gas")
	}

	gasLimit := raw + raw*p.GasLimitHeadroomPercent/100
	return gasLimit, gasPrice, nil
}

// classify implements §4.7 CLASSIFY: (a) check local gas sufficiency, (b)
// eth_call the original attempt against the historical block to reproduce
// the revert and extract its revert data, (c) attempt frontrun detection,
// (d) emit RevertDiagnosed with a reason decoded via §4.2.
func (p *Pipeline) classify(ctx context.Context, signer Signer, att Attempt, txHash common.Hash, calldata []byte, gasLimit uint64, gasPrice *big.Int, receipt *types.Receipt) Result {
	if receipt.Status == types.ReceiptStatusSuccessful {
		income := ExtractIncome(receipt.Logs, signer.Address())
		if len(income) == 0 {
			if aliceOutput, err := ExtractAfterClearOutput(receipt.Logs, att.Pair.Order.Orderbook); err == nil {
				income = map[common.Address]*big.Int{att.Pair.BuyToken: aliceOutput}
			}
		}
		return Result{Outcome: Confirmed, TxHash: txHash, Receipt: receipt, Income: income}
	}

	// (a) local gas sufficiency
	balance, err := signer.Balance(ctx)
	if err != nil {
		balance = big.NewInt(0)
	}
	if gasOutcome := CheckGasSufficiency(receipt.GasUsed, gasLimit, gasPrice, balance); gasOutcome != GasOK {
		return Result{Outcome: RevertDiagnosed, TxHash: txHash, Receipt: receipt, Reason: string(gasOutcome)}
	}

	// (b) reproduce the revert against the historical block and decode it
	reason := p.reproduceRevert(ctx, signer.Address(), calldata, receipt.BlockNumber)

	// (c) frontrun detection
	if p.FrontrunLookup != nil {
		logs, err := p.FrontrunLookup(ctx, att.Pair.Order.Orderbook, receipt.BlockNumber.Uint64())
		if err == nil {
			ourConfig := map[common.Hash]struct{}{att.Pair.Order.Hash: {}}
			if frontrunTx, ok := DetectFrontrun(logs, receipt.TransactionIndex, ourConfig); ok {
				return Result{Outcome: RevertDiagnosed, TxHash: txHash, Receipt: receipt, Reason: "frontrun", FrontrunTxHash: frontrunTx}
			}
		}
	}

	// (d) emit RevertDiagnosed with the decoded reason, falling back if nothing
	// above could diagnose it.
	if reason == "" {
		reason = "revert: cause undetermined"
	}
	return Result{Outcome: RevertDiagnosed, TxHash: txHash, Receipt: receipt, Reason: reason}
}

// reproduceRevert replays calldata against the arb contract at the block the
// attempt was mined in, via eth_call, and decodes any revert data it gets
// back through the §4.2 selector cache. It returns "" (never an error) when
// reproduction isn't possible or doesn't decode, since an undiagnosed revert
// is still a valid terminal classification.
func (p *Pipeline) reproduceRevert(ctx context.Context, from common.Address, calldata []byte, blockNumber *big.Int) string {
	if p.RevertCache == nil {
		return ""
	}

	_, err := p.Client.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   &p.ArbContract,
		Data: calldata,
	}, blockNumber)
	if err == nil {
		return ""
	}

	de, ok := err.(rpc.DataError)
	if !ok {
		return ""
	}
	raw, ok := de.ErrorData().(string)
	if !ok || raw == "" {
		return ""
	}

	reason, err := errs.DecodeRevert(ctx, p.RevertCache, raw)
	if err != nil {
		return ""
	}
	return reason
}
