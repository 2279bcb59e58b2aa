// Package guard builds the post-execution bounty-ensure task attached to
// every clearing transaction (§4.5): a literal instantiation of one of two
// expression-language templates, submitted to the deployer contract's
// parse2 method to obtain bytecode.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/fixedpoint"
)

// Deployer is the on-chain collaborator that compiles an expression-language
// source string into interpreter bytecode.
type Deployer interface {
	Parse2(ctx context.Context, expression string) ([]byte, error)
}

// externalTemplate asserts the transaction sender is the expected address
// and that the weighted eth value of the two clear-context amounts exceeds
// a minimum (§4.5, external variant: our bot is both sides of the arb).
const externalTemplate = `
expected-sender: %s,
_ _: sender expected-sender,
total-bounty-eth: add(
  mul(%s context<1 0>())
  mul(%s context<1 1>())
),
:ensure(equal-to(sender expected-sender) "guard: sender mismatch"),
:ensure(greater-than(total-bounty-eth %s) "guard: bounty below minimum");
`

// internalTemplate reads the bot's own balances of the two tokens before and
// after the clear, weights the deltas by the two eth prices, and requires
// the weighted sum to exceed a minimum (§4.5, internal/withdraw-style
// variant: clear against another orderbook's order).
const internalTemplate = `
expected-sender: %s,
_ _: sender expected-sender,
input-delta: sub(after-balance(%s) before-balance(%s)),
output-delta: sub(after-balance(%s) before-balance(%s)),
total-bounty-eth: add(
  mul(%s input-delta)
  mul(%s output-delta)
),
:ensure(equal-to(sender expected-sender) "guard: sender mismatch"),
:ensure(greater-than(total-bounty-eth %s) "guard: bounty below minimum");
`

// ExternalParams is the literal input to BuildExternal.
type ExternalParams struct {
	ExpectedSender   common.Address
	InputToEthPrice  fixedpoint.FP18
	OutputToEthPrice fixedpoint.FP18
	MinimumExpected  fixedpoint.FP18
}

// InternalParams is the literal input to BuildInternal.
type InternalParams struct {
	ExpectedSender   common.Address
	InputToken       common.Address
	OutputToken      common.Address
	InputToEthPrice  fixedpoint.FP18
	OutputToEthPrice fixedpoint.FP18
	MinimumExpected  fixedpoint.FP18
}

func validateSender(sender string) error {
	if strings.TrimSpace(sender) == "" || common.HexToAddress(sender) == (common.Address{}) {
		return errs.New(errs.KindCompose, "guard: sender address must not be empty")
	}
	if !common.IsHexAddress(sender) {
		return errs.New(errs.KindCompose, "guard: sender is not a valid 20-byte address")
	}
	return nil
}

// BuildExternal instantiates the external guard template and submits it to
// deployer.Parse2, returning the compiled bytecode.
func BuildExternal(ctx context.Context, deployer Deployer, p ExternalParams) ([]byte, error) {
	sender := p.ExpectedSender.Hex()
	if err := validateSender(sender); err != nil {
		return nil, err
	}

	source := fmt.Sprintf(externalTemplate,
		sender,
		p.InputToEthPrice.DecimalString18(),
		p.OutputToEthPrice.DecimalString18(),
		p.MinimumExpected.DecimalString18(),
	)
	return parse(ctx, deployer, source)
}

// BuildInternal instantiates the internal (withdraw-style) guard template
// and submits it to deployer.Parse2, returning the compiled bytecode.
func BuildInternal(ctx context.Context, deployer Deployer, p InternalParams) ([]byte, error) {
	sender := p.ExpectedSender.Hex()
	if err := validateSender(sender); err != nil {
		return nil, err
	}
	if p.InputToken == (common.Address{}) || p.OutputToken == (common.Address{}) {
		return nil, errs.New(errs.KindCompose, "guard: input and output token addresses must be set")
	}

	inputToken := p.InputToken.Hex()
	outputToken := p.OutputToken.Hex()
	source := fmt.Sprintf(internalTemplate,
		sender,
		inputToken, inputToken,
		outputToken, outputToken,
		p.InputToEthPrice.DecimalString18(),
		p.OutputToEthPrice.DecimalString18(),
		p.MinimumExpected.DecimalString18(),
	)
	return parse(ctx, deployer, source)
}

func parse(ctx context.Context, deployer Deployer, source string) ([]byte, error) {
	bytecode, err := deployer.Parse2(ctx, source)
	if err != nil {
		return nil, errs.Wrap(errs.KindParse, err, "guard: deployer parse2 failed")
	}
	if len(bytecode) == 0 {
		return nil, errs.New(errs.KindParse, "guard: deployer returned empty bytecode")
	}
	return bytecode, nil
}
