// Package dccl implements the bounded-range bit-packing field codecs used on
// the acoustic link. Each codec maps one typed value to a fixed- or
// variable-width bit string driven entirely by declarative bounds supplied by
// the schema provider; a single all-zero code is reserved in every numeric
// codec to mean "value absent".
package dccl

import (
	"errors"
	"fmt"
)

// ErrNullValue signals decode of the reserved all-zero pattern. It means the
// field was not present, distinguished from a malformed-input error; callers
// should treat it as absence, not failure.
var ErrNullValue = errors.New("dccl: null value")

// FieldSpec is the declarative description of one field as supplied by the
// schema provider. Only the members relevant to a given codec need to be set.
type FieldSpec struct {
	Name        string
	Min         *float64
	Max         *float64
	Precision   int // decimal digits after the point
	EnumValues  []string
	MaxLength   int // strings/bytes; 0 means the default
	StaticValue string
}

// Float64 is a convenience for populating FieldSpec bounds.
func Float64(v float64) *float64 { return &v }

func (s FieldSpec) requireBounds() error {
	if s.Min == nil {
		return fmt.Errorf("dccl: field %q: min not specified", s.Name)
	}
	if s.Max == nil {
		return fmt.Errorf("dccl: field %q: max not specified", s.Name)
	}
	if *s.Min >= *s.Max {
		return fmt.Errorf("dccl: field %q: min %v not below max %v", s.Name, *s.Min, *s.Max)
	}
	return nil
}
