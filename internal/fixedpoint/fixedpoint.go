// Package fixedpoint implements the solver's uniform 18-decimal fixed-point
// number representation. All monetary quantities internal to the solver core
// are non-negative integers of at least 256 bits, scaled to 18 decimals.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the fixed internal scale used throughout the solver.
const Decimals = 18

var (
	// ErrOverflow is returned whenever an operation would exceed the
	// representable 256-bit range. Operations never panic on overflow.
	ErrOverflow = fmt.Errorf("fixedpoint: overflow")
	// ErrNegative is returned when an input would produce a negative value.
	// The solver's fixed-point numbers are always non-negative.
	ErrNegative = fmt.Errorf("fixedpoint: negative value")
)

// FP18 is an 18-decimal, non-negative fixed-point number backed by a
// 256-bit unsigned integer.
type FP18 struct {
	v uint256.Int
}

var pow10 = func() [78]*uint256.Int {
	var table [78]*uint256.Int
	cur := uint256.NewInt(1)
	for i := range table {
		table[i] = new(uint256.Int).Set(cur)
		cur = new(uint256.Int).Mul(cur, uint256.NewInt(10))
	}
	return table
}()

func pow10At(n int) (*uint256.Int, error) {
	if n < 0 || n >= len(pow10) {
		return nil, ErrOverflow
	}
	return pow10[n], nil
}

// Zero returns the additive identity.
func Zero() FP18 { return FP18{} }

// One returns 1.0 in 18-decimal fixed point.
func One() FP18 {
	one, _ := pow10At(Decimals)
	return FP18{v: *one}
}

// FromUint256 wraps a raw 256-bit integer already expressed in 18 decimals.
func FromUint256(v *uint256.Int) FP18 {
	var fp FP18
	fp.v.Set(v)
	return fp
}

// Uint256 returns the underlying 256-bit integer.
func (f FP18) Uint256() *uint256.Int {
	return new(uint256.Int).Set(&f.v)
}

// IsZero reports whether the value is zero.
func (f FP18) IsZero() bool { return f.v.IsZero() }

// Cmp compares two fixed-point values the way big.Int.Cmp does.
func (f FP18) Cmp(o FP18) int { return f.v.Cmp(&o.v) }

// ScaleTo18 widens a token-native integer of the given decimals into 18-decimal
// fixed point. Fails with ErrNegative on a negative input and otherwise only
// on overflow.
func ScaleTo18(raw *big.Int, decimals uint8) (FP18, error) {
	if raw.Sign() < 0 {
		return FP18{}, ErrNegative
	}
	rawU, overflow := uint256.FromBig(raw)
	if overflow {
		return FP18{}, ErrOverflow
	}
	if int(decimals) > Decimals {
		div, err := pow10At(int(decimals) - Decimals)
		if err != nil {
			return FP18{}, err
		}
		out := new(uint256.Int).Div(rawU, div)
		return FP18{v: *out}, nil
	}
	mul, err := pow10At(Decimals - int(decimals))
	if err != nil {
		return FP18{}, err
	}
	out, overflow := new(uint256.Int).MulOverflow(rawU, mul)
	if overflow {
		return FP18{}, ErrOverflow
	}
	return FP18{v: *out}, nil
}

// ScaleFrom18 narrows an 18-decimal fixed-point value down to a token-native
// integer of the given decimals, truncating toward zero. Fails only on
// overflow, never rounds up.
func ScaleFrom18(f FP18, decimals uint8) (*big.Int, error) {
	if int(decimals) > Decimals {
		mul, err := pow10At(int(decimals) - Decimals)
		if err != nil {
			return nil, err
		}
		out, overflow := new(uint256.Int).MulOverflow(&f.v, mul)
		if overflow {
			return nil, ErrOverflow
		}
		return out.ToBig(), nil
	}
	div, err := pow10At(Decimals - int(decimals))
	if err != nil {
		return nil, err
	}
	out := new(uint256.Int).Div(&f.v, div)
	return out.ToBig(), nil
}

// ParseFloat normalizes a v4-wire 32-byte fixed-point value (already
// expressed as an 18-decimal integer) into an FP18.
func ParseFloat(b [32]byte) FP18 {
	var v uint256.Int
	v.SetBytes(b[:])
	return FP18{v: v}
}

// ToFloat denormalizes an FP18 back into the 32-byte v4 wire format.
func ToFloat(f FP18) [32]byte {
	return f.v.Bytes32()
}

// Price18 computes (amountOut * 1e18) / amountIn, each native amount first
// normalized to 18 decimals. Returns ErrOverflow on multiplication overflow
// and a division-by-zero guard when amountIn is zero.
func Price18(amountInRaw, amountOutRaw *big.Int, decimalsIn, decimalsOut uint8) (FP18, error) {
	in, err := ScaleTo18(amountInRaw, decimalsIn)
	if err != nil {
		return FP18{}, err
	}
	out, err := ScaleTo18(amountOutRaw, decimalsOut)
	if err != nil {
		return FP18{}, err
	}
	if in.IsZero() {
		return FP18{}, fmt.Errorf("fixedpoint: division by zero amountIn")
	}
	scale, _ := pow10At(Decimals)
	numerator, overflow := new(uint256.Int).MulOverflow(&out.v, scale)
	if overflow {
		return FP18{}, ErrOverflow
	}
	result := new(uint256.Int).Div(numerator, &in.v)
	return FP18{v: *result}, nil
}

// Add returns f+o, failing on overflow.
func (f FP18) Add(o FP18) (FP18, error) {
	out, overflow := new(uint256.Int).AddOverflow(&f.v, &o.v)
	if overflow {
		return FP18{}, ErrOverflow
	}
	return FP18{v: *out}, nil
}

// Sub returns f-o. Since values are non-negative, an underflow is reported
// as ErrNegative rather than wrapping.
func (f FP18) Sub(o FP18) (FP18, error) {
	if f.v.Lt(&o.v) {
		return FP18{}, ErrNegative
	}
	out := new(uint256.Int).Sub(&f.v, &o.v)
	return FP18{v: *out}, nil
}

// Mul returns f*o scaled back down by 1e18, failing on overflow.
func (f FP18) Mul(o FP18) (FP18, error) {
	scale, _ := pow10At(Decimals)
	raw, overflow := new(uint256.Int).MulOverflow(&f.v, &o.v)
	if overflow {
		return FP18{}, ErrOverflow
	}
	out := new(uint256.Int).Div(raw, scale)
	return FP18{v: *out}, nil
}

// Div returns (f*1e18)/o, failing on overflow or division by zero.
func (f FP18) Div(o FP18) (FP18, error) {
	if o.IsZero() {
		return FP18{}, fmt.Errorf("fixedpoint: division by zero")
	}
	scale, _ := pow10At(Decimals)
	numerator, overflow := new(uint256.Int).MulOverflow(&f.v, scale)
	if overflow {
		return FP18{}, ErrOverflow
	}
	out := new(uint256.Int).Div(numerator, &o.v)
	return FP18{v: *out}, nil
}

// String renders the value as a decimal string with up to 18 fractional
// digits, trimmed of trailing zeros, via shopspring/decimal — used whenever
// a fixed-point amount must cross a text boundary (bounty-guard templates,
// telemetry fields).
func (f FP18) String() string {
	d := decimal.NewFromBigInt(f.v.ToBig(), -Decimals)
	return d.String()
}

// DecimalString18 renders the value with exactly 18-decimal string
// formatting required by the bounty-guard templates (no trimming).
func (f FP18) DecimalString18() string {
	d := decimal.NewFromBigInt(f.v.ToBig(), -Decimals)
	return d.StringFixed(Decimals)
}
