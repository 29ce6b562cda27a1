package dccl

import (
	"errors"
	"fmt"
	"strings"
)

// Bits is a variable-length bit string used as the unit of exchange between
// field codecs. Bit i of the string is stored at bit (i%8) of byte (i/8),
// so the first appended field occupies the least significant bits.
type Bits struct {
	n int
	b []byte
}

// NewBits returns a bit string of n zero bits.
func NewBits(n int) Bits {
	return Bits{n: n, b: make([]byte, (n+7)/8)}
}

// BitsFromUint64 returns an n-bit string holding the low n bits of v.
func BitsFromUint64(n int, v uint64) Bits {
	out := NewBits(n)
	for i := 0; i < n && i < 64; i++ {
		if v&(1<<uint(i)) != 0 {
			out.b[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// BitsFromBytes wraps the first n bits of raw as a bit string.
func BitsFromBytes(raw []byte, n int) (Bits, error) {
	if len(raw)*8 < n {
		return Bits{}, fmt.Errorf("dccl: need %d bits, have %d", n, len(raw)*8)
	}
	out := NewBits(n)
	copy(out.b, raw[:(n+7)/8])
	out.clearTail()
	return out, nil
}

// Len returns the number of bits.
func (s Bits) Len() int { return s.n }

// Test reports whether bit i is set.
func (s Bits) Test(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.b[i/8]&(1<<uint(i%8)) != 0
}

// Uint64 returns the bit string interpreted as an unsigned integer.
func (s Bits) Uint64() (uint64, error) {
	if s.n > 64 {
		return 0, errors.New("dccl: bit string exceeds 64 bits")
	}
	var v uint64
	for i := 0; i < s.n; i++ {
		if s.Test(i) {
			v |= 1 << uint(i)
		}
	}
	return v, nil
}

// Append concatenates o after the existing bits.
func (s *Bits) Append(o Bits) {
	for i := 0; i < o.n; i++ {
		s.appendBit(o.Test(i))
	}
}

// AppendBit adds a single bit to the end.
func (s *Bits) AppendBit(on bool) { s.appendBit(on) }

func (s *Bits) appendBit(on bool) {
	if s.n%8 == 0 {
		s.b = append(s.b, 0)
	}
	if on {
		s.b[s.n/8] |= 1 << uint(s.n%8)
	}
	s.n++
}

// TakeFront removes and returns the first n bits.
func (s *Bits) TakeFront(n int) (Bits, error) {
	if n > s.n {
		return Bits{}, fmt.Errorf("dccl: take %d bits from %d", n, s.n)
	}
	front := NewBits(n)
	for i := 0; i < n; i++ {
		if s.Test(i) {
			front.b[i/8] |= 1 << uint(i%8)
		}
	}
	rest := NewBits(s.n - n)
	for i := n; i < s.n; i++ {
		if s.Test(i) {
			rest.b[(i-n)/8] |= 1 << uint((i-n)%8)
		}
	}
	*s = rest
	return front, nil
}

// Bytes returns the packed form, least significant bit first. Trailing pad
// bits of the final byte are zero.
func (s Bits) Bytes() []byte {
	out := make([]byte, (s.n+7)/8)
	copy(out, s.b)
	return out
}

// String renders the bits most significant first, for logs and tests.
func (s Bits) String() string {
	var sb strings.Builder
	for i := s.n - 1; i >= 0; i-- {
		if s.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (s *Bits) clearTail() {
	if s.n%8 == 0 {
		return
	}
	s.b[s.n/8] &= byte(1<<uint(s.n%8)) - 1
}
