// Package wideint implements the fixed width unsigned arithmetic used for
// address math. IPv4 addresses use the native uint32 helpers, IPv6 addresses
// use Uint128, which carries the value as two 64 bit halves.
package wideint

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Uint128 is an unsigned 128 bit integer.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// New returns the Uint128 with the given halves.
func New(hi, lo uint64) Uint128 {
	return Uint128{Hi: hi, Lo: lo}
}

// FromBytes decodes a big endian (network order) 16 byte value.
func FromBytes(b [16]byte) Uint128 {
	return Uint128{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}
}

// Bytes encodes u in network order.
func (u Uint128) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], u.Hi)
	binary.BigEndian.PutUint64(b[8:], u.Lo)
	return b
}

// Add returns u+v, wrapping on overflow.
func (u Uint128) Add(v Uint128) Uint128 {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, _ := bits.Add64(u.Hi, v.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}
}

// Sub returns u-v, wrapping on underflow.
func (u Uint128) Sub(v Uint128) Uint128 {
	lo, borrow := bits.Sub64(u.Lo, v.Lo, 0)
	hi, _ := bits.Sub64(u.Hi, v.Hi, borrow)
	return Uint128{Hi: hi, Lo: lo}
}

func (u Uint128) And(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi & v.Hi, Lo: u.Lo & v.Lo}
}

func (u Uint128) Or(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi | v.Hi, Lo: u.Lo | v.Lo}
}

// Lsh returns u<<n. n must be less than 128.
func (u Uint128) Lsh(n uint) Uint128 {
	if n >= 128 {
		panic(fmt.Sprintf("wideint: shift of %d bits on 128 bit value", n))
	}
	if n >= 64 {
		return Uint128{Hi: u.Lo << (n - 64)}
	}
	if n == 0 {
		return u
	}
	return Uint128{
		Hi: u.Hi<<n | u.Lo>>(64-n),
		Lo: u.Lo << n,
	}
}

// Rsh returns u>>n. n must be less than 128.
func (u Uint128) Rsh(n uint) Uint128 {
	if n >= 128 {
		panic(fmt.Sprintf("wideint: shift of %d bits on 128 bit value", n))
	}
	if n >= 64 {
		return Uint128{Lo: u.Hi >> (n - 64)}
	}
	if n == 0 {
		return u
	}
	return Uint128{
		Hi: u.Hi >> n,
		Lo: u.Lo>>n | u.Hi<<(64-n),
	}
}

func (u Uint128) Equal(v Uint128) bool {
	return u.Hi == v.Hi && u.Lo == v.Lo
}

// GreaterThan reports whether u > v.
func (u Uint128) GreaterThan(v Uint128) bool {
	if u.Hi != v.Hi {
		return u.Hi > v.Hi
	}
	return u.Lo > v.Lo
}

func (u Uint128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

func (u Uint128) String() string {
	return fmt.Sprintf("%#016x%016x", u.Hi, u.Lo)
}

// Mask128 returns a value with the low n bits set. n >= 128 yields all ones.
func Mask128(n uint) Uint128 {
	switch {
	case n >= 128:
		return Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}
	case n > 64:
		return Uint128{Hi: (uint64(1) << (n - 64)) - 1, Lo: ^uint64(0)}
	case n == 64:
		return Uint128{Lo: ^uint64(0)}
	default:
		return Uint128{Lo: (uint64(1) << n) - 1}
	}
}

// Mask32 returns a value with the low n bits set. n >= 32 yields all ones.
func Mask32(n uint) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return (uint32(1) << n) - 1
}

// Lsh32 returns u<<n. n must be less than 32.
func Lsh32(u uint32, n uint) uint32 {
	if n >= 32 {
		panic(fmt.Sprintf("wideint: shift of %d bits on 32 bit value", n))
	}
	return u << n
}
