package dccl

import (
	"bytes"
	"testing"
)

func TestBitsUintRoundtrip(t *testing.T) {
	for _, tc := range []struct {
		n int
		v uint64
	}{
		{1, 1}, {3, 5}, {8, 0xa5}, {17, 86400}, {21, 1800001}, {64, ^uint64(0)},
	} {
		b := BitsFromUint64(tc.n, tc.v)
		if b.Len() != tc.n {
			t.Fatalf("len = %d, want %d", b.Len(), tc.n)
		}
		got, err := b.Uint64()
		if err != nil {
			t.Fatalf("uint64: %v", err)
		}
		if got != tc.v {
			t.Fatalf("roundtrip(%d bits, %d) = %d", tc.n, tc.v, got)
		}
	}
}

func TestBitsAppendAndTakeFront(t *testing.T) {
	b := BitsFromUint64(5, 21)
	b.Append(BitsFromUint64(11, 1234))
	b.Append(BitsFromUint64(3, 6))
	if b.Len() != 19 {
		t.Fatalf("len = %d", b.Len())
	}
	first, err := b.TakeFront(5)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if v, _ := first.Uint64(); v != 21 {
		t.Fatalf("first = %d", v)
	}
	second, _ := b.TakeFront(11)
	if v, _ := second.Uint64(); v != 1234 {
		t.Fatalf("second = %d", v)
	}
	if v, _ := b.Uint64(); v != 6 || b.Len() != 3 {
		t.Fatalf("rest = %d (%d bits)", v, b.Len())
	}
	if _, err := b.TakeFront(4); err == nil {
		t.Fatal("over-take accepted")
	}
}

func TestBitsBytes(t *testing.T) {
	b := BitsFromUint64(12, 0xabc)
	raw := b.Bytes()
	if !bytes.Equal(raw, []byte{0xbc, 0x0a}) {
		t.Fatalf("bytes = %x", raw)
	}
	back, err := BitsFromBytes(raw, 12)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if v, _ := back.Uint64(); v != 0xabc {
		t.Fatalf("back = %x", v)
	}
	if _, err := BitsFromBytes([]byte{1}, 9); err == nil {
		t.Fatal("short input accepted")
	}
}
