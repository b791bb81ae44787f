// Package leasescript holds the server side scripts that change a lease's
// index entry, metadata hash and device reverse index in one step.
//
// Both scripts take the pool name as KEYS[1] and the address string as
// ARGV[1]. KEYS[1] hashes to the same slot as the "{pool}" hash tag, so the
// store runs each script on the shard that owns every key it touches.
package leasescript

import (
	"fmt"

	"github.com/umegbewe/ippool/internal/keys"
)

// Script is a lease transition script. Name is the action it implements.
type Script struct {
	Name   string
	Source string
}

// Args returns the EVAL command for pool and addr, ready to be queued on a
// pipeline.
func (s *Script) Args(pool, addr string) []interface{} {
	return []interface{}{"eval", s.Source, 1, pool, addr}
}

// Release zeroes the expiry of an address already in the pool and drops the
// device reverse index entry of its last holder. Returns 1 if the lease was
// changed, 0 otherwise.
var Release = &Script{Name: "release", Source: fmt.Sprintf(`
local ret = redis.call('ZADD', '{' .. KEYS[1] .. '}:%[1]s', 'XX', 'CH', 0, ARGV[1])
if ret == 0 then
  return 0
end
local found = redis.call('HGET', '{' .. KEYS[1] .. '}:%[2]s:' .. ARGV[1], 'device')
if found then
  redis.call('DEL', '{' .. KEYS[1] .. '}:%[3]s:' .. found)
end
return 1
`, keys.PoolSuffix, keys.AddressSuffix, keys.DeviceSuffix)}

// Remove deletes an address from the pool along with its metadata hash and
// device reverse index entry. Metadata is cleaned up even when the index entry
// is already gone. Returns 1 if the index entry was deleted, 0 otherwise.
var Remove = &Script{Name: "remove", Source: fmt.Sprintf(`
local ret = redis.call('ZREM', '{' .. KEYS[1] .. '}:%[1]s', ARGV[1])
local address_key = '{' .. KEYS[1] .. '}:%[2]s:' .. ARGV[1]
local found = redis.call('HGET', address_key, 'device')
redis.call('DEL', address_key)
if found then
  redis.call('DEL', '{' .. KEYS[1] .. '}:%[3]s:' .. found)
end
return ret
`, keys.PoolSuffix, keys.AddressSuffix, keys.DeviceSuffix)}
