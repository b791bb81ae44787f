// Package iprange parses address range expressions and walks them one
// allocation prefix at a time.
package iprange

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/umegbewe/ippool/internal/wideint"
	"go4.org/netipx"
)

// ErrParse is wrapped by every error Parse returns.
var ErrParse = errors.New("invalid range")

// MaxSpan is the largest number of bits between a network mask and the
// allocation prefix that Parse accepts.
const MaxSpan = 64

type Family uint8

const (
	Unspecified Family = iota
	IPv4
	IPv6
)

// Bits returns the address width of the family.
func (f Family) Bits() uint8 {
	switch f {
	case IPv4:
		return 32
	case IPv6:
		return 128
	default:
		return 0
	}
}

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unspec"
	}
}

// Addr is an IPv4 or IPv6 address held in host order. IPv4 values live in the
// low 32 bits.
type Addr struct {
	family Family
	v      wideint.Uint128
}

// AddrFrom converts a netip.Addr. IPv4-mapped IPv6 addresses stay IPv6.
func AddrFrom(ip netip.Addr) Addr {
	if ip.Is4() {
		b := ip.As4()
		return Addr{family: IPv4, v: wideint.New(0, uint64(b[0])<<24|uint64(b[1])<<16|uint64(b[2])<<8|uint64(b[3]))}
	}
	if ip.Is6() {
		return Addr{family: IPv6, v: wideint.FromBytes(ip.As16())}
	}
	return Addr{}
}

// MustParseAddr is AddrFrom(netip.MustParseAddr(s)).
func MustParseAddr(s string) Addr {
	return AddrFrom(netip.MustParseAddr(s))
}

func (a Addr) Family() Family { return a.family }

// Value returns the numeric value of the address.
func (a Addr) Value() wideint.Uint128 { return a.v }

func (a Addr) IsValid() bool { return a.family != Unspecified }

// Netip converts a back to a netip.Addr.
func (a Addr) Netip() netip.Addr {
	switch a.family {
	case IPv4:
		lo := uint32(a.v.Lo)
		return netip.AddrFrom4([4]byte{byte(lo >> 24), byte(lo >> 16), byte(lo >> 8), byte(lo)})
	case IPv6:
		return netip.AddrFrom16(a.v.Bytes())
	default:
		return netip.Addr{}
	}
}

func (a Addr) String() string {
	return a.Netip().String()
}

// Format renders the address the way it is stored in the pool: the bare
// address when prefix is the full width, "addr/prefix" otherwise.
func (a Addr) Format(prefix uint8) string {
	if prefix == 0 || prefix == a.family.Bits() {
		return a.String()
	}
	return fmt.Sprintf("%s/%d", a, prefix)
}

// Equal reports whether a and b are the same family and value.
func (a Addr) Equal(b Addr) bool {
	return a.family == b.family && a.v.Equal(b.v)
}

// Block is one member of an interval: an address and the prefix length it
// is allocated with.
type Block struct {
	Addr Addr
	Bits uint8
}

func (b Block) String() string {
	return b.Addr.Format(b.Bits)
}

// Interval is the set of addresses from Start to End inclusive, stepping by
// 1<<(width-Prefix). A CIDR start keeps its host bits, so blocks need not be
// aligned to Prefix.
type Interval struct {
	Start  Addr
	End    Addr
	Prefix uint8
}

func (iv Interval) Family() Family { return iv.Start.family }

// IPRange returns the bounds of the interval.
func (iv Interval) IPRange() netipx.IPRange {
	return netipx.IPRangeFrom(iv.Start.Netip(), iv.End.Netip())
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s step /%d", iv.IPRange(), iv.Prefix)
}

// Block pairs addr with the interval's prefix length.
func (iv Interval) Block(addr Addr) Block {
	return Block{Addr: addr, Bits: iv.Prefix}
}

// Next returns the address following addr in the interval. It reports false,
// and returns addr unchanged, once addr has reached iv.End.
func (iv Interval) Next(addr Addr) (Addr, bool) {
	return Next(addr, iv.End, iv.Prefix)
}

// Size returns the number of addresses in the interval.
func (iv Interval) Size() wideint.Uint128 {
	width := uint(iv.Family().Bits())
	span := iv.End.v.Sub(iv.Start.v).Rsh(width - uint(iv.Prefix))
	return span.Add(wideint.New(0, 1))
}

// Next advances addr by one allocation prefix. The step is never taken past
// end: once addr equals end, or the next step would exceed it, Next returns
// addr and false.
//
// Mixing families or passing a prefix outside 1..width panics.
func Next(addr, end Addr, prefix uint8) (Addr, bool) {
	if !addr.IsValid() || addr.family != end.family {
		panic(fmt.Sprintf("iprange: cannot step %s address towards %s address", addr.family, end.family))
	}
	width := addr.family.Bits()
	if prefix == 0 || prefix > width {
		panic(fmt.Sprintf("iprange: prefix /%d out of range for %s", prefix, addr.family))
	}

	if addr.v.Equal(end.v) {
		return addr, false
	}

	var next wideint.Uint128
	switch addr.family {
	case IPv4:
		cur := uint32(addr.v.Lo)
		step := wideint.Lsh32(1, uint(32-prefix))
		n := cur + step
		if n < cur || n > uint32(end.v.Lo) {
			return addr, false
		}
		next = wideint.New(0, uint64(n))
	case IPv6:
		step := wideint.New(0, 1).Lsh(uint(128 - prefix))
		next = addr.v.Add(step)
		if addr.v.GreaterThan(next) || next.GreaterThan(end.v) {
			return addr, false
		}
	}
	return Addr{family: addr.family, v: next}, true
}

// Parse converts a range expression into an Interval. Accepted forms are
// "start-end", a CIDR "addr/mask" and a bare address. Host bits of a CIDR
// address select the first address. prefix is the allocation prefix length,
// 0 meaning the full address width.
//
// When allocating whole addresses the upper broadcast address of a CIDR block
// is excluded, except for /31, /32, /127 and /128 which yield a single address.
func Parse(text string, prefix uint8) (Interval, error) {
	if startStr, endStr, ok := strings.Cut(text, "-"); ok {
		return parseRange(startStr, endStr, prefix)
	}
	return parseCIDR(text, prefix)
}

func parseRange(startStr, endStr string, prefix uint8) (Interval, error) {
	startIP, err := parseAddr(startStr)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: failed parsing %q as start address: %v", ErrParse, startStr, err)
	}
	endIP, err := parseAddr(endStr)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: failed parsing %q as end address: %v", ErrParse, endStr, err)
	}

	start, end := AddrFrom(startIP), AddrFrom(endIP)
	if start.family != end.family {
		return Interval{}, fmt.Errorf("%w: start and end address must be of the same address family", ErrParse)
	}

	width := start.family.Bits()
	if prefix == 0 {
		prefix = width
	}
	if prefix > width {
		return Interval{}, fmt.Errorf("%w: prefix length must be less than or equal to address length (%d)", ErrParse, width)
	}
	if start.v.GreaterThan(end.v) {
		return Interval{}, fmt.Errorf("%w: end address must be greater than or equal to start address", ErrParse)
	}

	start = start.mask(prefix)
	end = end.mask(prefix)

	return Interval{Start: start, End: end, Prefix: prefix}, nil
}

func parseCIDR(text string, prefix uint8) (Interval, error) {
	var (
		ip   netip.Addr
		bits int
	)
	if strings.Contains(text, "/") {
		p, err := netip.ParsePrefix(text)
		if err != nil {
			return Interval{}, fmt.Errorf("%w: failed parsing %q as IPv4/v6 subnet: %v", ErrParse, text, err)
		}
		ip, bits = p.Addr(), p.Bits()
	} else {
		a, err := parseAddr(text)
		if err != nil {
			return Interval{}, fmt.Errorf("%w: failed parsing %q as IPv4/v6 subnet: %v", ErrParse, text, err)
		}
		ip, bits = a, a.BitLen()
	}

	start := AddrFrom(ip)
	width := start.family.Bits()
	mask := uint8(bits)

	if prefix == 0 {
		prefix = width
	}
	if prefix < mask {
		return Interval{}, fmt.Errorf("%w: prefix length must be greater than or equal to /<mask> (%d)", ErrParse, mask)
	}
	if prefix > width {
		return Interval{}, fmt.Errorf("%w: prefix length must be less than or equal to address length (%d)", ErrParse, width)
	}
	if prefix-mask > MaxSpan {
		return Interval{}, fmt.Errorf("%w: prefix length must be less than or equal to %d", ErrParse, int(mask)+MaxSpan)
	}

	// Broadcast exclusion only makes sense for single addresses.
	exBroadcast := prefix == width
	if exBroadcast && mask >= width-1 {
		return Interval{Start: start, End: start, Prefix: prefix}, nil
	}

	end := start
	shift := uint(width - prefix)
	span := uint(prefix - mask)

	switch start.family {
	case IPv4:
		ip := uint32(start.v.Lo) | wideint.Lsh32(wideint.Mask32(span), shift)
		if exBroadcast {
			ip--
		}
		end.v = wideint.New(0, uint64(ip))
	case IPv6:
		ip := start.v.Or(wideint.Mask128(span).Lsh(shift))
		if exBroadcast {
			ip = ip.Sub(wideint.New(0, 1))
		}
		end.v = ip
	}

	return Interval{Start: start, End: end, Prefix: prefix}, nil
}

func parseAddr(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, err
	}
	if ip.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("zoned addresses are not supported")
	}
	return ip, nil
}

// mask clears the bits below prefix.
func (a Addr) mask(prefix uint8) Addr {
	width := a.family.Bits()
	if prefix >= width {
		return a
	}
	switch a.family {
	case IPv4:
		m := wideint.Lsh32(wideint.Mask32(uint(prefix)), uint(32-prefix))
		a.v = wideint.New(0, uint64(uint32(a.v.Lo)&m))
	case IPv6:
		m := wideint.Mask128(uint(prefix)).Lsh(uint(128 - prefix))
		a.v = a.v.And(m)
	}
	return a
}
