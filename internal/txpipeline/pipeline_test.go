package txpipeline

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/router"
)

type fakeChainClient struct {
	gasEstimate uint64
	gasPrice    *big.Int
	nonce       uint64
	estimateErr error
	callErr     error
	callResult  []byte
}

func (c *fakeChainClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if c.estimateErr != nil {
		return 0, c.estimateErr
	}
	return c.gasEstimate, nil
}

func (c *fakeChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.gasPrice, nil
}

func (c *fakeChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeChainClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.callResult, c.callErr
}

// fakeRevertError implements rpc.DataError, the shape go-ethereum attaches
// revert payloads to on a reverted eth_call.
type fakeRevertError struct{ data string }

func (e *fakeRevertError) Error() string        { return "execution reverted" }
func (e *fakeRevertError) ErrorData() interface{} { return e.data }

type fakeSigner struct {
	address common.Address
	balance *big.Int
	receipt *types.Receipt
	waitErr error
}

func (s *fakeSigner) Address() common.Address { return s.address }

func (s *fakeSigner) Balance(ctx context.Context) (*big.Int, error) { return s.balance, nil }

func (s *fakeSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return tx, nil
}

func (s *fakeSigner) SendRaw(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	return signed.Hash(), nil
}

func (s *fakeSigner) WaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if s.waitErr != nil {
		return nil, s.waitErr
	}
	return s.receipt, nil
}

type fakeDeployer struct{ bytecode []byte }

func (d *fakeDeployer) Parse2(ctx context.Context, expression string) ([]byte, error) {
	return d.bytecode, nil
}

func testOrder(orderbook common.Address, version registry.OrderVersion) *registry.Order {
	return &registry.Order{
		Hash:      cfgHash(1),
		Orderbook: orderbook,
		Version:   version,
	}
}

func testPair(order *registry.Order) registry.Pair {
	return registry.Pair{
		Order:     order,
		BuyToken:  tokenAddr(1),
		SellToken: tokenAddr(2),
		Quote:     registry.Quote{MaxOutput: mustScaleP(5), Ratio: fixedpoint.One()},
	}
}

func mustScaleP(whole int64) fixedpoint.FP18 {
	v, err := fixedpoint.ScaleTo18(big.NewInt(whole), 0)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestPipeline(client ChainClient, signer Signer, deployer *fakeDeployer) *Pipeline {
	return &Pipeline{
		Client:                  client,
		Signers:                 NewSignerPool([]Signer{signer}),
		Deployer:                deployer,
		ArbContract:             tokenAddr(0xFE),
		ChainID:                 big.NewInt(42161),
		GasLimitHeadroomPercent: 20,
		ReceiptTimeout:          time.Second,
	}
}

func TestPipelineRunConfirmed(t *testing.T) {
	order := testOrder(tokenAddr(3), registry.V4)
	pair := testPair(order)
	signerAddr := tokenAddr(0xAA)

	receipt := &types.Receipt{
		Status:           types.ReceiptStatusSuccessful,
		GasUsed:          50_000,
		BlockNumber:      big.NewInt(100),
		TransactionIndex: 1,
		Logs: []*types.Log{
			{Address: tokenAddr(1), Topics: []common.Hash{transferEventTopic, addrTopic(tokenAddr(9)), addrTopic(signerAddr)}, Data: amountData(5)},
		},
	}

	client := &fakeChainClient{gasEstimate: 100_000, gasPrice: big.NewInt(1), nonce: 7}
	signer := &fakeSigner{address: signerAddr, balance: big.NewInt(1_000_000_000_000_000_000), receipt: receipt}
	p := newTestPipeline(client, signer, &fakeDeployer{bytecode: []byte{0x01, 0x02}})

	result := p.Run(context.Background(), Attempt{
		Pair: pair,
		TradeParams: router.TradeParams{
			Kind:      router.KindExternal,
			AmountIn:  mustScaleP(1),
			AmountOut: mustScaleP(2),
		},
		InputToEthPrice:  fixedpoint.One(),
		OutputToEthPrice: fixedpoint.One(),
		MinimumExpected:  fixedpoint.Zero(),
	})

	if result.Outcome != Confirmed {
		t.Fatalf("expected Confirmed, got %s (%v)", result.Outcome, result.Err)
	}
	if result.Income[tokenAddr(1)].Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected income of 5, got %v", result.Income[tokenAddr(1)])
	}
	if signer != nil {
		// signer must have been released back to the pool
		if _, err := p.Signers.Acquire(context.Background()); err != nil {
			t.Fatalf("expected signer to be released: %v", err)
		}
	}
}

func TestPipelineRunRevertDiagnosesGasLimit(t *testing.T) {
	order := testOrder(tokenAddr(3), registry.V3)
	pair := testPair(order)
	signerAddr := tokenAddr(0xAA)

	receipt := &types.Receipt{
		Status:           types.ReceiptStatusFailed,
		GasUsed:          118_000, // >= 98% of the 120,000 gas limit (100,000 + 20% headroom)
		BlockNumber:      big.NewInt(100),
		TransactionIndex: 1,
	}

	client := &fakeChainClient{gasEstimate: 100_000, gasPrice: big.NewInt(1), nonce: 7}
	signer := &fakeSigner{address: signerAddr, balance: big.NewInt(1_000_000_000_000_000_000), receipt: receipt}
	p := newTestPipeline(client, signer, &fakeDeployer{bytecode: []byte{0x01}})

	result := p.Run(context.Background(), Attempt{
		Pair: pair,
		TradeParams: router.TradeParams{
			Kind:      router.KindExternal,
			AmountIn:  mustScaleP(1),
			AmountOut: mustScaleP(2),
		},
		InputToEthPrice:  fixedpoint.One(),
		OutputToEthPrice: fixedpoint.One(),
		MinimumExpected:  fixedpoint.Zero(),
	})

	if result.Outcome != RevertDiagnosed {
		t.Fatalf("expected RevertDiagnosed, got %s", result.Outcome)
	}
	if result.Reason != string(GasLimitInsufficient) {
		t.Fatalf("expected reason %q, got %q", GasLimitInsufficient, result.Reason)
	}
}

func TestPipelineRunRevertDiagnosesFrontrun(t *testing.T) {
	order := testOrder(tokenAddr(3), registry.V3)
	order.Hash = cfgHash(1)
	pair := testPair(order)
	signerAddr := tokenAddr(0xAA)

	receipt := &types.Receipt{
		Status:           types.ReceiptStatusFailed,
		GasUsed:          1_000, // well under the gas-limit threshold
		BlockNumber:      big.NewInt(100),
		TransactionIndex: 5,
	}

	client := &fakeChainClient{gasEstimate: 100_000, gasPrice: big.NewInt(1), nonce: 7}
	signer := &fakeSigner{address: signerAddr, balance: big.NewInt(1_000_000_000_000_000_000), receipt: receipt}
	p := newTestPipeline(client, signer, &fakeDeployer{bytecode: []byte{0x01}})
	p.FrontrunLookup = func(ctx context.Context, orderbook common.Address, blockNumber uint64) ([]ClearLog, error) {
		return []ClearLog{{TxHash: txHash(9), TransactionIndex: 2, OrderConfigHash: cfgHash(1)}}, nil
	}

	result := p.Run(context.Background(), Attempt{
		Pair: pair,
		TradeParams: router.TradeParams{
			Kind:      router.KindExternal,
			AmountIn:  mustScaleP(1),
			AmountOut: mustScaleP(2),
		},
		InputToEthPrice:  fixedpoint.One(),
		OutputToEthPrice: fixedpoint.One(),
		MinimumExpected:  fixedpoint.Zero(),
	})

	if result.Outcome != RevertDiagnosed || result.Reason != "frontrun" {
		t.Fatalf("expected frontrun diagnosis, got %s/%s", result.Outcome, result.Reason)
	}
	if result.FrontrunTxHash != txHash(9) {
		t.Fatalf("expected frontrun tx hash %v, got %v", txHash(9), result.FrontrunTxHash)
	}
}

func TestPipelineRunRevertDecodesReason(t *testing.T) {
	order := testOrder(tokenAddr(3), registry.V3)
	pair := testPair(order)
	signerAddr := tokenAddr(0xAA)

	receipt := &types.Receipt{
		Status:           types.ReceiptStatusFailed,
		GasUsed:          1_000, // well under the gas-limit threshold
		BlockNumber:      big.NewInt(100),
		TransactionIndex: 5,
	}

	selector := crypto.Keccak256([]byte("ZeroAmount()"))[:4]
	client := &fakeChainClient{
		gasEstimate: 100_000, gasPrice: big.NewInt(1), nonce: 7,
		callErr: &fakeRevertError{data: "0x" + hex.EncodeToString(selector)},
	}
	signer := &fakeSigner{address: signerAddr, balance: big.NewInt(1_000_000_000_000_000_000), receipt: receipt}
	p := newTestPipeline(client, signer, &fakeDeployer{bytecode: []byte{0x01}})
	p.RevertCache = errs.NewSelectorCache(nil, errs.SeedTable())

	result := p.Run(context.Background(), Attempt{
		Pair: pair,
		TradeParams: router.TradeParams{
			Kind:      router.KindExternal,
			AmountIn:  mustScaleP(1),
			AmountOut: mustScaleP(2),
		},
		InputToEthPrice:  fixedpoint.One(),
		OutputToEthPrice: fixedpoint.One(),
		MinimumExpected:  fixedpoint.Zero(),
	})

	if result.Outcome != RevertDiagnosed {
		t.Fatalf("expected RevertDiagnosed, got %s", result.Outcome)
	}
	if result.Reason != "ZeroAmount()" {
		t.Fatalf("expected decoded reason %q, got %q", "ZeroAmount()", result.Reason)
	}
}

func TestPipelineRunTimeout(t *testing.T) {
	order := testOrder(tokenAddr(3), registry.V4)
	pair := testPair(order)
	signerAddr := tokenAddr(0xAA)

	client := &fakeChainClient{gasEstimate: 100_000, gasPrice: big.NewInt(1), nonce: 7}
	signer := &fakeSigner{address: signerAddr, balance: big.NewInt(1), waitErr: context.DeadlineExceeded}
	p := newTestPipeline(client, signer, &fakeDeployer{bytecode: []byte{0x01}})

	result := p.Run(context.Background(), Attempt{
		Pair: pair,
		TradeParams: router.TradeParams{
			Kind:      router.KindExternal,
			AmountIn:  mustScaleP(1),
			AmountOut: mustScaleP(2),
		},
		InputToEthPrice:  fixedpoint.One(),
		OutputToEthPrice: fixedpoint.One(),
		MinimumExpected:  fixedpoint.Zero(),
	})

	if result.Outcome != Timeout {
		t.Fatalf("expected Timeout, got %s", result.Outcome)
	}
}
