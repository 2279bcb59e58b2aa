package txpipeline

import "math/big"

// GasOutcome classifies a local, pre-decode diagnosis of why a transaction
// reverted or looks like it ran out of gas (§4.7.1).
type GasOutcome string

const (
	GasOK                   GasOutcome = ""
	GasAccountInsufficient  GasOutcome = "account ran out of gas"
	GasLimitInsufficient    GasOutcome = "transaction ran out of specified gas"
)

// gasLimitThresholdNumerator (over 100) is the §4.7.1 "ran out of specified gas" cutoff.
const gasLimitThresholdNumerator = 98

// CheckGasSufficiency implements §4.7.1. The gas-limit check is evaluated
// first so the monotonicity invariant in §8 holds unconditionally: whenever
// gasUsed is at least 98% of gasLimit, the classifier reports "transaction
// ran out of specified gas" regardless of the signer's balance.
func CheckGasSufficiency(gasUsed, gasLimit uint64, effectiveGasPrice, signerBalance *big.Int) GasOutcome {
	threshold := gasLimit * gasLimitThresholdNumerator / 100
	if gasUsed >= threshold {
		return GasLimitInsufficient
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), effectiveGasPrice)
	if cost.Cmp(signerBalance) > 0 {
		return GasAccountInsufficient
	}
	return GasOK
}
