package onchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rainarb/solver/internal/errs"
)

// CallContractFunc is the subset of ethclient.Client the Deployer needs;
// kept as a function type (rather than pulling the whole client in) so
// tests can supply a fake without a live RPC endpoint.
type CallContractFunc func(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

var parse2Selector = crypto.Keccak256([]byte("parse2(string)"))[:4]

// Deployer implements guard.Deployer against a real on-chain interpreter
// deployer contract: parse2(string) returns (bytes). Unlike the quote/pool/
// price read-path (see Unconfigured in onchain.go), this single function signature
// is given directly by the guard package's own documentation rather than
// depending on a third party's protocol ABI, so wiring a real call here
// does not cross into the "ABI constant tables" collaborator spec.md
// keeps out of scope.
type Deployer struct {
	Call    CallContractFunc
	Address common.Address
}

func (d Deployer) Parse2(ctx context.Context, expression string) ([]byte, error) {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "onchain: build abi string type")
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "onchain: build abi bytes type")
	}

	args := abi.Arguments{{Type: stringType}}
	packedArgs, err := args.Pack(expression)
	if err != nil {
		return nil, errs.Wrap(errs.KindCompose, err, "onchain: encode parse2 argument")
	}

	calldata := append(append([]byte{}, parse2Selector...), packedArgs...)
	out, err := d.Call(ctx, ethereum.CallMsg{To: &d.Address, Data: calldata}, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "onchain: parse2 call failed")
	}

	returns := abi.Arguments{{Type: bytesType}}
	unpacked, err := returns.Unpack(out)
	if err != nil || len(unpacked) != 1 {
		return nil, errs.Wrap(errs.KindDecode, err, "onchain: decode parse2 return")
	}
	bytecode, ok := unpacked[0].([]byte)
	if !ok {
		return nil, errs.New(errs.KindDecode, "onchain: parse2 return is not bytes")
	}
	return bytecode, nil
}
