package dccl

import (
	"errors"
	"testing"
	"time"
)

func TestBoolCodec(t *testing.T) {
	var c Bool
	if c.Size() != 1 {
		t.Fatalf("bool size = %d", c.Size())
	}
	for _, v := range []bool{true, false} {
		got, err := c.Decode(c.Encode(v))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != v {
			t.Fatalf("roundtrip(%v) = %v", v, got)
		}
	}
	if _, err := c.Decode(NewBits(2)); err == nil {
		t.Fatal("wrong width accepted")
	}
}

func TestEnumCodec(t *testing.T) {
	e, err := NewEnum(FieldSpec{Name: "mode", EnumValues: []string{"idle", "survey", "transit", "abort"}})
	if err != nil {
		t.Fatalf("new enum: %v", err)
	}
	if e.Size() != 3 { // 4 values + null
		t.Fatalf("enum size = %d, want 3", e.Size())
	}
	for _, v := range []string{"idle", "survey", "transit", "abort"} {
		bits, err := e.Encode(v)
		if err != nil {
			t.Fatalf("encode(%q): %v", v, err)
		}
		got, err := e.Decode(bits)
		if err != nil {
			t.Fatalf("decode(%q): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip(%q) = %q", v, got)
		}
	}
	if _, err := e.Encode("bogus"); err == nil {
		t.Fatal("undeclared symbol accepted")
	}
	if _, err := e.Decode(e.EncodeEmpty()); !errors.Is(err, ErrNullValue) {
		t.Fatalf("decode(empty): err = %v, want ErrNullValue", err)
	}
	if _, err := e.Decode(BitsFromUint64(e.Size(), 6)); err == nil {
		t.Fatal("out-of-set ordinal accepted")
	}
}

func TestTimeOfDayCodec(t *testing.T) {
	c := NewTimeOfDay()
	in := time.Date(2010, 6, 15, 13, 45, 17, 0, time.UTC)
	got, err := c.Decode(c.Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantSec := 13*3600 + 45*60 + 17
	gotSec := got.Hour()*3600 + got.Minute()*60 + got.Second()
	if gotSec != wantSec {
		t.Fatalf("time of day = %ds, want %ds", gotSec, wantSec)
	}
	if _, err := c.Decode(c.EncodeEmpty()); !errors.Is(err, ErrNullValue) {
		t.Fatalf("decode(empty): err = %v, want ErrNullValue", err)
	}
}

func TestStaticCodec(t *testing.T) {
	c, err := NewStatic(FieldSpec{Name: "proto", StaticValue: "unicorn"})
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	if c.Size() != 0 {
		t.Fatalf("static size = %d", c.Size())
	}
	if bits := c.Encode("anything"); bits.Len() != 0 {
		t.Fatalf("static encode emitted %d bits", bits.Len())
	}
	got, err := c.Decode(NewBits(0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "unicorn" {
		t.Fatalf("decode = %q", got)
	}
	if _, err := NewStatic(FieldSpec{Name: "proto"}); err == nil {
		t.Fatal("missing static_value accepted")
	}
}

func TestIdentifierCodec(t *testing.T) {
	c := NewIdentifier()
	if err := c.Add("unicorn", 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add("narwhal", 4); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add("unicorn", 9); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := c.Add("kraken", 31); err == nil {
		t.Fatal("id out of range accepted")
	}
	got, err := c.Decode(c.Encode("narwhal"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "narwhal" {
		t.Fatalf("roundtrip = %q", got)
	}
	// unregistered names are absent on the wire, not an error
	if _, err := c.Decode(c.Encode("kraken")); !errors.Is(err, ErrNullValue) {
		t.Fatalf("decode(unregistered): err = %v, want ErrNullValue", err)
	}
}

func TestStringCodec(t *testing.T) {
	c, err := NewString(FieldSpec{Name: "note", MaxLength: 31})
	if err != nil {
		t.Fatalf("new string: %v", err)
	}
	if c.MinSize() != 5 || c.MaxSize() != 5+8*31 {
		t.Fatalf("sizes = %d/%d", c.MinSize(), c.MaxSize())
	}
	for _, s := range []string{"", "a", "hello, vehicle"} {
		got, err := c.Decode(c.Encode(s))
		if err != nil {
			t.Fatalf("decode(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("roundtrip(%q) = %q", s, got)
		}
	}
	// over-length content is truncated to the declared maximum
	long := "0123456789012345678901234567890123456789"
	got, err := c.Decode(c.Encode(long))
	if err != nil {
		t.Fatalf("decode(long): %v", err)
	}
	if got != long[:31] {
		t.Fatalf("truncated = %q", got)
	}
	if _, err := NewString(FieldSpec{Name: "note", MaxLength: 300}); err == nil {
		t.Fatal("max_length beyond prefix range accepted")
	}
}

func TestBytesCodec(t *testing.T) {
	c, err := NewBytes(FieldSpec{Name: "blob"})
	if err != nil {
		t.Fatalf("new bytes: %v", err)
	}
	in := []byte{0x00, 0xff, 0x5a, 0x01}
	got, err := c.Decode(c.Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != string(in) {
		t.Fatalf("roundtrip = %x", got)
	}
}
