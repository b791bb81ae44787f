package wideint

import (
	"math"
	"testing"
)

func TestAddCarry(t *testing.T) {
	got := New(0, math.MaxUint64).Add(New(0, 1))
	if !got.Equal(New(1, 0)) {
		t.Fatalf("Expected carry into high half, got %s", got)
	}

	got = New(math.MaxUint64, math.MaxUint64).Add(New(0, 1))
	if !got.IsZero() {
		t.Errorf("Expected wrap to zero, got %s", got)
	}
}

func TestSubBorrow(t *testing.T) {
	got := New(1, 0).Sub(New(0, 1))
	if !got.Equal(New(0, math.MaxUint64)) {
		t.Fatalf("Expected borrow from high half, got %s", got)
	}

	got = New(5, 10).Sub(New(2, 3))
	if !got.Equal(New(3, 7)) {
		t.Errorf("Expected 3:7, got %s", got)
	}
}

func TestAndOr(t *testing.T) {
	a := New(0xf0f0, 0x00ff)
	b := New(0x0ff0, 0x0f0f)

	if got := a.And(b); !got.Equal(New(0x00f0, 0x000f)) {
		t.Errorf("And: got %s", got)
	}
	if got := a.Or(b); !got.Equal(New(0xfff0, 0x0fff)) {
		t.Errorf("Or: got %s", got)
	}
}

func TestLsh(t *testing.T) {
	one := New(0, 1)
	cases := []struct {
		n    uint
		want Uint128
	}{
		{0, New(0, 1)},
		{1, New(0, 2)},
		{63, New(0, 1<<63)},
		{64, New(1, 0)},
		{65, New(2, 0)},
		{127, New(1<<63, 0)},
	}
	for _, c := range cases {
		if got := one.Lsh(c.n); !got.Equal(c.want) {
			t.Errorf("1<<%d: expected %s, got %s", c.n, c.want, got)
		}
	}

	got := New(0, 0x8000000000000001).Lsh(4)
	if !got.Equal(New(0x8, 0x10)) {
		t.Errorf("Expected bits to cross the half boundary, got %s", got)
	}
}

func TestRsh(t *testing.T) {
	v := New(1, 0)
	if got := v.Rsh(1); !got.Equal(New(0, 1<<63)) {
		t.Errorf("Expected bit to cross into low half, got %s", got)
	}
	if got := v.Rsh(64); !got.Equal(New(0, 1)) {
		t.Errorf("1:0 >> 64: got %s", got)
	}
	if got := New(0, 0xff).Rsh(4); !got.Equal(New(0, 0xf)) {
		t.Errorf("0xff >> 4: got %s", got)
	}
}

func TestLshPanicsOnFullWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Expected panic shifting by 128")
		}
	}()
	New(0, 1).Lsh(128)
}

func TestGreaterThan(t *testing.T) {
	if !New(1, 0).GreaterThan(New(0, math.MaxUint64)) {
		t.Error("Expected high half to dominate")
	}
	if New(0, 1).GreaterThan(New(0, 1)) {
		t.Error("Equal values must not compare greater")
	}
	if New(0, 1).GreaterThan(New(0, 2)) {
		t.Error("1 > 2 reported true")
	}
}

func TestMask128(t *testing.T) {
	if !Mask128(0).IsZero() {
		t.Errorf("Mask128(0) should be zero, got %s", Mask128(0))
	}
	if got := Mask128(128); !got.Equal(New(math.MaxUint64, math.MaxUint64)) {
		t.Errorf("Mask128(128) should be all ones, got %s", got)
	}
	if got := Mask128(64); !got.Equal(New(0, math.MaxUint64)) {
		t.Errorf("Mask128(64): got %s", got)
	}
	if got := Mask128(65); !got.Equal(New(1, math.MaxUint64)) {
		t.Errorf("Mask128(65): got %s", got)
	}
	if got := Mask128(8); !got.Equal(New(0, 0xff)) {
		t.Errorf("Mask128(8): got %s", got)
	}
}

func TestMask32(t *testing.T) {
	if Mask32(0) != 0 {
		t.Errorf("Mask32(0) = %#x", Mask32(0))
	}
	if Mask32(32) != math.MaxUint32 {
		t.Errorf("Mask32(32) = %#x", Mask32(32))
	}
	if Mask32(8) != 0xff {
		t.Errorf("Mask32(8) = %#x", Mask32(8))
	}
	if got := Lsh32(Mask32(8), 24); got != 0xff000000 {
		t.Errorf("Lsh32 = %#x", got)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	v := New(0x20010db800000000, 0x1)
	b := v.Bytes()
	if b[0] != 0x20 || b[1] != 0x01 || b[15] != 0x01 {
		t.Fatalf("Unexpected network order encoding: %x", b)
	}
	if !FromBytes(b).Equal(v) {
		t.Errorf("Expected %s, got %s", v, FromBytes(b))
	}
}
