package dccl

import (
	"fmt"
	"math"
)

// DefaultMaxLength bounds variable-length fields when the schema does not
// declare a maximum.
const DefaultMaxLength = 255

// varLength is the shared layout of the string and bytes codecs: a length
// prefix wide enough to address the declared maximum, followed by the raw
// content bytes, eight bits each.
type varLength struct {
	maxLength int
}

func newVarLength(spec FieldSpec) (varLength, error) {
	max := spec.MaxLength
	if max == 0 {
		max = DefaultMaxLength
	}
	if max < 0 || max > DefaultMaxLength {
		return varLength{}, fmt.Errorf("dccl: field %q: max_length %d outside (0, %d]", spec.Name, max, DefaultMaxLength)
	}
	return varLength{maxLength: max}, nil
}

func (c varLength) lengthBits() int {
	return int(math.Ceil(math.Log2(float64(c.maxLength + 1))))
}

// MaxSize is the widest possible encoding in bits.
func (c varLength) MaxSize() int { return c.lengthBits() + 8*c.maxLength }

// MinSize is the length prefix alone (empty content).
func (c varLength) MinSize() int { return c.lengthBits() }

func (c varLength) encode(content []byte) Bits {
	if len(content) > c.maxLength {
		content = content[:c.maxLength]
	}
	out := BitsFromUint64(c.lengthBits(), uint64(len(content)))
	for _, b := range content {
		out.Append(BitsFromUint64(8, uint64(b)))
	}
	return out
}

func (c varLength) decode(bits Bits) ([]byte, error) {
	prefix, err := bits.TakeFront(c.lengthBits())
	if err != nil {
		return nil, err
	}
	n64, err := prefix.Uint64()
	if err != nil {
		return nil, err
	}
	n := int(n64)
	if n > c.maxLength {
		return nil, fmt.Errorf("dccl: declared length %d exceeds maximum %d", n, c.maxLength)
	}
	content := make([]byte, n)
	for i := range content {
		bb, err := bits.TakeFront(8)
		if err != nil {
			return nil, err
		}
		v, err := bb.Uint64()
		if err != nil {
			return nil, err
		}
		content[i] = byte(v)
	}
	return content, nil
}

// String is the variable-length text codec. Content beyond the maximum
// length is truncated on encode.
type String struct {
	varLength
}

func NewString(spec FieldSpec) (*String, error) {
	vl, err := newVarLength(spec)
	if err != nil {
		return nil, err
	}
	return &String{varLength: vl}, nil
}

func (c *String) Encode(s string) Bits { return c.encode([]byte(s)) }

func (c *String) EncodeEmpty() Bits { return NewBits(c.MinSize()) }

func (c *String) Decode(bits Bits) (string, error) {
	b, err := c.decode(bits)
	return string(b), err
}

// Bytes is the variable-length opaque data codec.
type Bytes struct {
	varLength
}

func NewBytes(spec FieldSpec) (*Bytes, error) {
	vl, err := newVarLength(spec)
	if err != nil {
		return nil, err
	}
	return &Bytes{varLength: vl}, nil
}

func (c *Bytes) Encode(b []byte) Bits { return c.encode(b) }

func (c *Bytes) EncodeEmpty() Bits { return NewBits(c.MinSize()) }

func (c *Bytes) Decode(bits Bits) ([]byte, error) { return c.decode(bits) }
