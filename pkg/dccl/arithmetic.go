package dccl

import (
	"fmt"
	"math"
)

// Arithmetic encodes a float64 bounded to [min, max] at a fixed decimal
// precision. Code 0 is reserved for the null value, so a value v maps onto
// codes [1, 2^Size()-1] as round(v, precision)*10^precision - min*10^precision + 1.
type Arithmetic struct {
	min       float64
	max       float64
	precision int
}

// NewArithmetic validates the field bounds and returns the codec.
func NewArithmetic(spec FieldSpec) (*Arithmetic, error) {
	if err := spec.requireBounds(); err != nil {
		return nil, err
	}
	return &Arithmetic{min: *spec.Min, max: *spec.Max, precision: spec.Precision}, nil
}

// Size returns the field width in bits: the minimum width whose code space
// holds every representable value plus the reserved null code.
func (c *Arithmetic) Size() int {
	// leave one value for unspecified (always encoded as 0)
	const nullValue = 1
	return int(math.Ceil(math.Log2((c.max-c.min)*c.pow10() + 1 + nullValue)))
}

// Encode maps v to its wire code. Out-of-range values encode as the null
// pattern rather than failing. The value is rounded to the field's precision
// before the offset is applied, then the scaled result snaps to the nearest
// code so float residue from a fractional minimum cannot shift it.
func (c *Arithmetic) Encode(v float64) Bits {
	if v < c.min || v > c.max {
		return NewBits(c.Size())
	}
	r := unbiasedRound(v, c.precision)
	code := uint64(math.Round((r - c.min) * c.pow10()))
	return BitsFromUint64(c.Size(), code+1)
}

// EncodeEmpty returns the null pattern.
func (c *Arithmetic) EncodeEmpty() Bits { return NewBits(c.Size()) }

// Decode inverts Encode. The all-zero pattern yields ErrNullValue.
func (c *Arithmetic) Decode(bits Bits) (float64, error) {
	if bits.Len() != c.Size() {
		return 0, fmt.Errorf("dccl: arithmetic field is %d bits, got %d", c.Size(), bits.Len())
	}
	t, err := bits.Uint64()
	if err != nil {
		return 0, err
	}
	if t == 0 {
		return 0, ErrNullValue
	}
	t--
	return unbiasedRound(float64(t)/c.pow10()+c.min, c.precision), nil
}

func (c *Arithmetic) pow10() float64 { return math.Pow(10, float64(c.precision)) }

// unbiasedRound rounds v to the given number of decimal digits, halves away
// from zero.
func unbiasedRound(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}
