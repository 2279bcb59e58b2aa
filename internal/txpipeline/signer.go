package txpipeline

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rainarb/solver/internal/errs"
)

// Signer is the §6 signer abstraction: address, balance, sign, broadcast,
// and wait-for-receipt. Core code depends only on this interface; key
// material and RPC transport live behind an implementation outside the
// core.
type Signer interface {
	Address() common.Address
	Balance(ctx context.Context) (*big.Int, error)
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	SendRaw(ctx context.Context, signed *types.Transaction) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error)
}

// SignerPool hands out at most one in-flight attempt per signer (§4.8): a
// buffered channel of size N acts as a semaphore over the N funded signer
// accounts, which is the idiomatic Go substitute for the teacher's
// mutex-guarded queue discipline (pkg/app/core/mempool) where no pack
// example needed to also track per-worker identity.
type SignerPool struct {
	slots chan Signer
}

// NewSignerPool creates a pool over the given signers. Each signer appears
// exactly once, so at most len(signers) attempts are ever in flight.
func NewSignerPool(signers []Signer) *SignerPool {
	slots := make(chan Signer, len(signers))
	for _, s := range signers {
		slots <- s
	}
	return &SignerPool{slots: slots}
}

// Acquire blocks until a signer is free or ctx is done.
func (p *SignerPool) Acquire(ctx context.Context) (Signer, error) {
	select {
	case s := <-p.slots:
		return s, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindTimeout, ctx.Err(), "signer pool: acquire canceled")
	}
}

// Release returns a signer to the pool. It must be called exactly once per
// successful Acquire, including on every terminal state (§4.7 SIGN note).
func (p *SignerPool) Release(s Signer) {
	p.slots <- s
}

// Len reports the pool's total capacity (number of funded signer accounts).
func (p *SignerPool) Len() int {
	return cap(p.slots)
}
