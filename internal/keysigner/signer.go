// Package keysigner is the concrete, outside-the-core implementation of
// txpipeline.Signer (§6): one ECDSA key plus an ethclient connection,
// adapted from the teacher's standalone pkg/crypto ECDSA signer into a live
// account that can check its own balance, sign, broadcast, and wait for a
// receipt.
package keysigner

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/pkg/util"
)

// Chain is the subset of *ethclient.Client a Signer needs.
type Chain interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer is one funded EOA: an ECDSA key pair plus the chain connection it
// signs and broadcasts against. It implements txpipeline.Signer.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chain      Chain
	clock      util.Clock
}

// FromPrivateKeyHex loads a Signer from a hex-encoded secp256k1 private key
// (with or without a leading "0x"), matching the teacher's
// pkg/crypto.FromPrivateKeyHex parsing.
func FromPrivateKeyHex(hexKey string, chain Chain) (*Signer, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.KindParse, err, "keysigner: parse private key")
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errs.New(errs.KindParse, "keysigner: public key is not ECDSA")
	}
	return &Signer{privateKey: pk, address: crypto.PubkeyToAddress(*pub), chain: chain, clock: util.RealClock{}}, nil
}

// Dial opens an ethclient connection to rpcURL and wraps it as a Chain.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "keysigner: dial rpc")
	}
	return client, nil
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Balance returns the signer's current native-asset balance.
func (s *Signer) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := s.chain.BalanceAt(ctx, s.address, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "keysigner: balance query")
	}
	return bal, nil
}

// SignTx signs tx for chainID with the signer's key using EIP-155 replay
// protection.
func (s *Signer) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "keysigner: sign transaction")
	}
	return signed, nil
}

// SendRaw broadcasts a signed transaction and returns its hash.
func (s *Signer) SendRaw(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	if err := s.chain.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errs.Wrap(errs.KindTransport, err, "keysigner: broadcast")
	}
	return signed.Hash(), nil
}

// WaitReceipt polls for a transaction's receipt until it appears or timeout
// elapses, at which point it returns a KindTimeout error so the pipeline
// classifies the attempt as Outcome Timeout rather than RevertDiagnosed.
func (s *Signer) WaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	clock := s.clock
	if clock == nil {
		clock = util.RealClock{}
	}
	deadline := clock.Now().Add(timeout)
	const pollInterval = 500 * time.Millisecond

	for {
		receipt, err := s.chain.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, errs.Wrap(errs.KindTransport, err, "keysigner: receipt query")
		}
		if clock.Now().After(deadline) {
			return nil, errs.New(errs.KindTimeout, "keysigner: receipt wait timed out")
		}
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindTimeout, ctx.Err(), "keysigner: receipt wait canceled")
		case <-clock.After(pollInterval):
		}
	}
}
