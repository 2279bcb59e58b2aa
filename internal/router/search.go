package router

import (
	"github.com/rainarb/solver/internal/fixedpoint"
)

// QuoteFunc returns the amount out for a candidate amount in.
type QuoteFunc func(amountIn fixedpoint.FP18) (fixedpoint.FP18, error)

// LargestPartialFill implements §4.4's largest partial-fill search: 25
// iterations of binary search starting at maximumInput/2, halving the step
// every iteration. At each iteration it quotes the candidate amount; if the
// resulting price (amountOut/amountIn) meets or exceeds ratio, the amount is
// recorded as the new best and the next candidate increases by the current
// step, otherwise it decreases. A quote error at a candidate amount is
// treated the same as a price that fails to meet ratio — it disqualifies
// that amount without aborting the search.
//
// Returns the largest amount that met ratio and true, or the zero value and
// false if no amount across all 25 iterations qualified.
func LargestPartialFill(quote QuoteFunc, maximumInput, ratio fixedpoint.FP18) (fixedpoint.FP18, bool, error) {
	two, err := fixedpoint.One().Add(fixedpoint.One())
	if err != nil {
		return fixedpoint.Zero(), false, err
	}

	amount, err := maximumInput.Div(two)
	if err != nil {
		return fixedpoint.Zero(), false, err
	}
	step := amount

	var best fixedpoint.FP18
	found := false

	const iterations = 25
	for i := 0; i < iterations; i++ {
		meets := false
		if !amount.IsZero() {
			out, quoteErr := quote(amount)
			if quoteErr == nil {
				price, divErr := out.Div(amount)
				if divErr == nil && price.Cmp(ratio) >= 0 {
					meets = true
				}
			}
		}

		if meets {
			best = amount
			found = true
			next, addErr := amount.Add(step)
			if addErr != nil {
				break
			}
			amount = next
		} else {
			next, subErr := amount.Sub(step)
			if subErr != nil {
				amount = fixedpoint.Zero()
			} else {
				amount = next
			}
		}

		if i == iterations-1 {
			break
		}
		nextStep, divErr := step.Div(two)
		if divErr != nil {
			break
		}
		step = nextStep
	}

	return best, found, nil
}
