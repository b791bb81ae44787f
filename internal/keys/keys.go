// Package keys builds the store keys for a pool. Every key starts with the
// pool name wrapped in braces, the hash tag that pins all of a pool's keys to
// one shard.
package keys

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PoolSuffix    = "pool"
	AddressSuffix = "ip"
	DeviceSuffix  = "device"

	// MaxPoolNameLen bounds the hash tag.
	MaxPoolNameLen = 128
	// MaxKeyLen bounds any key built here.
	MaxKeyLen = 256
)

var ErrKeyOverflow = errors.New("key too long")

// Pool returns the index key "{pool}:pool".
func Pool(pool string) (string, error) {
	return build(pool, PoolSuffix, "")
}

// Address returns the metadata key "{pool}:ip:<address>".
func Address(pool, address string) (string, error) {
	if address == "" {
		return "", errors.New("empty address")
	}
	return build(pool, AddressSuffix, address)
}

// Device returns the device reverse index key "{pool}:device:<device>".
func Device(pool, device string) (string, error) {
	if device == "" {
		return "", errors.New("empty device id")
	}
	return build(pool, DeviceSuffix, device)
}

// HashTag returns "{pool}", the part of every key that decides its shard.
func HashTag(pool string) (string, error) {
	if err := checkPool(pool); err != nil {
		return "", err
	}
	return "{" + pool + "}", nil
}

func checkPool(pool string) error {
	if pool == "" {
		return errors.New("empty pool name")
	}
	if len(pool) > MaxPoolNameLen {
		return fmt.Errorf("%w: pool name is %d bytes, max %d", ErrKeyOverflow, len(pool), MaxPoolNameLen)
	}
	// A brace would end the hash tag early and split the pool across slots.
	if strings.ContainsAny(pool, "{}") {
		return fmt.Errorf("pool name %q must not contain braces", pool)
	}
	return nil
}

func build(pool, kind, suffix string) (string, error) {
	if err := checkPool(pool); err != nil {
		return "", err
	}

	n := len(pool) + len("{}:") + len(kind)
	if suffix != "" {
		n += 1 + len(suffix)
	}
	if n > MaxKeyLen {
		return "", fmt.Errorf("%w: %s key for pool %q would be %d bytes, max %d", ErrKeyOverflow, kind, pool, n, MaxKeyLen)
	}

	var b strings.Builder
	b.Grow(n)
	b.WriteByte('{')
	b.WriteString(pool)
	b.WriteString("}:")
	b.WriteString(kind)
	if suffix != "" {
		b.WriteByte(':')
		b.WriteString(suffix)
	}
	return b.String(), nil
}
