package dccl

import (
	"fmt"
	"time"
)

// Bool is the single-bit boolean codec. It does not reuse the arithmetic
// machinery: true encodes as 1, false as 0, and the empty encoding is the
// zero bit (absence is only distinguishable at message level).
type Bool struct{}

func (Bool) Size() int { return 1 }

func (Bool) Encode(v bool) Bits {
	out := NewBits(1)
	if v {
		return BitsFromUint64(1, 1)
	}
	return out
}

func (Bool) EncodeEmpty() Bits { return NewBits(1) }

func (Bool) Decode(bits Bits) (bool, error) {
	if bits.Len() != 1 {
		return false, fmt.Errorf("dccl: bool field is 1 bit, got %d", bits.Len())
	}
	return bits.Test(0), nil
}

// Enum encodes a symbolic value as its ordinal within the declared value
// set, using an arithmetic codec bounded [0, N-1] at precision 0.
type Enum struct {
	arith  *Arithmetic
	values []string
	index  map[string]int
}

// NewEnum builds the codec for the declared value set, in declaration order.
func NewEnum(spec FieldSpec) (*Enum, error) {
	n := len(spec.EnumValues)
	if n == 0 {
		return nil, fmt.Errorf("dccl: field %q: enum has no values", spec.Name)
	}
	arith, err := NewArithmetic(FieldSpec{Name: spec.Name, Min: Float64(0), Max: Float64(float64(n - 1))})
	if err != nil {
		return nil, err
	}
	e := &Enum{arith: arith, values: spec.EnumValues, index: make(map[string]int, n)}
	for i, v := range spec.EnumValues {
		if _, dup := e.index[v]; dup {
			return nil, fmt.Errorf("dccl: field %q: duplicate enum value %q", spec.Name, v)
		}
		e.index[v] = i
	}
	return e, nil
}

func (e *Enum) Size() int { return e.arith.Size() }

// Encode maps the symbol to its ordinal. Unknown symbols are an error, not a
// null encoding, since they indicate a schema mismatch.
func (e *Enum) Encode(symbol string) (Bits, error) {
	i, ok := e.index[symbol]
	if !ok {
		return Bits{}, fmt.Errorf("dccl: %q is not a declared enum value", symbol)
	}
	return e.arith.Encode(float64(i)), nil
}

func (e *Enum) EncodeEmpty() Bits { return e.arith.EncodeEmpty() }

func (e *Enum) Decode(bits Bits) (string, error) {
	v, err := e.arith.Decode(bits)
	if err != nil {
		return "", err
	}
	i := int(v)
	if i < 0 || i >= len(e.values) {
		return "", fmt.Errorf("dccl: enum ordinal %d out of range", i)
	}
	return e.values[i], nil
}

// TimeOfDay encodes the seconds-since-midnight (UTC) of a time value.
type TimeOfDay struct {
	arith *Arithmetic
}

const secondsPerDay = 24 * 3600

func NewTimeOfDay() *TimeOfDay {
	arith, _ := NewArithmetic(FieldSpec{Name: "time", Min: Float64(0), Max: Float64(secondsPerDay)})
	return &TimeOfDay{arith: arith}
}

func (c *TimeOfDay) Size() int { return c.arith.Size() }

func (c *TimeOfDay) Encode(t time.Time) Bits {
	u := t.UTC()
	sec := u.Hour()*3600 + u.Minute()*60 + u.Second()
	return c.arith.Encode(float64(sec))
}

func (c *TimeOfDay) EncodeEmpty() Bits { return c.arith.EncodeEmpty() }

// Decode returns the decoded time of day on the current UTC date. The date
// itself is not carried on the wire.
func (c *TimeOfDay) Decode(bits Bits) (time.Time, error) {
	v, err := c.arith.Decode(bits)
	if err != nil {
		return time.Time{}, err
	}
	sec := int(v)
	day := time.Now().UTC().Truncate(24 * time.Hour)
	return day.Add(time.Duration(sec) * time.Second), nil
}

// Static is the zero-width codec for fields whose value is implied by
// context: nothing is transmitted and decode always yields the configured
// constant.
type Static struct {
	value string
}

func NewStatic(spec FieldSpec) (*Static, error) {
	if spec.StaticValue == "" {
		return nil, fmt.Errorf("dccl: field %q: static_value not specified", spec.Name)
	}
	return &Static{value: spec.StaticValue}, nil
}

func (c *Static) Size() int { return 0 }

func (c *Static) Encode(string) Bits { return NewBits(0) }

func (c *Static) EncodeEmpty() Bits { return NewBits(0) }

func (c *Static) Decode(bits Bits) (string, error) {
	if bits.Len() != 0 {
		return "", fmt.Errorf("dccl: static field is 0 bits, got %d", bits.Len())
	}
	return c.value, nil
}

// Identifier maps symbolic platform names onto the small modem id space
// [0, 30] through a bidirectional table owned by the codec instance. The
// table must be populated with Add before use.
type Identifier struct {
	arith  *Arithmetic
	toID   map[string]int
	toName map[int]string
}

const maxIdentifierID = 30

func NewIdentifier() *Identifier {
	arith, _ := NewArithmetic(FieldSpec{Name: "identifier", Min: Float64(0), Max: Float64(maxIdentifierID)})
	return &Identifier{arith: arith, toID: make(map[string]int), toName: make(map[int]string)}
}

// Add registers a name/id pair.
func (c *Identifier) Add(name string, id int) error {
	if id < 0 || id > maxIdentifierID {
		return fmt.Errorf("dccl: identifier id %d outside [0, %d]", id, maxIdentifierID)
	}
	if _, dup := c.toID[name]; dup {
		return fmt.Errorf("dccl: identifier %q already registered", name)
	}
	if _, dup := c.toName[id]; dup {
		return fmt.Errorf("dccl: identifier id %d already registered", id)
	}
	c.toID[name] = id
	c.toName[id] = name
	return nil
}

func (c *Identifier) Size() int { return c.arith.Size() }

// Encode null-encodes unregistered names.
func (c *Identifier) Encode(name string) Bits {
	id, ok := c.toID[name]
	if !ok {
		return c.arith.EncodeEmpty()
	}
	return c.arith.Encode(float64(id))
}

func (c *Identifier) EncodeEmpty() Bits { return c.arith.EncodeEmpty() }

func (c *Identifier) Decode(bits Bits) (string, error) {
	v, err := c.arith.Decode(bits)
	if err != nil {
		return "", err
	}
	name, ok := c.toName[int(v)]
	if !ok {
		return "", fmt.Errorf("dccl: no identifier registered for id %d", int(v))
	}
	return name, nil
}
