package storage

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ErrRedirect reports that the shard owning a key has changed. Work sent
// since the last acknowledged batch has to be replayed against the new owner.
var ErrRedirect = errors.New("key served by another shard")

// Store routes keys to shards.
type Store interface {
	// Open returns the shard that owns key.
	Open(ctx context.Context, key string) (Shard, error)
	Close() error
}

// Shard runs pipelines against one node.
type Shard interface {
	// Exec sends cmds in one round trip and returns one reply per command, in
	// order. It returns ErrRedirect if any command was refused because the
	// slot moved, and the first other command error otherwise. redis.Nil
	// replies are not errors.
	Exec(ctx context.Context, cmds [][]interface{}) ([]*redis.Cmd, error)
}

// redirectTarget returns the node address named by a MOVED reply, and
// whether err is a redirect at all. ASK, TRYAGAIN and CLUSTERDOWN are
// redirects without a target: the slot is still migrating, so routing is
// retried once it settles.
func redirectTarget(err error) (string, bool) {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return "", false
	}
	s := rerr.Error()
	switch {
	case strings.HasPrefix(s, "MOVED "):
		if i := strings.LastIndex(s, " "); i > 0 {
			return s[i+1:], true
		}
		return "", true
	case strings.HasPrefix(s, "ASK "), strings.HasPrefix(s, "TRYAGAIN"), strings.HasPrefix(s, "CLUSTERDOWN"):
		return "", true
	}
	return "", false
}

// sameNode reports whether two node addresses name the same host and port.
// Loopback names are treated as one host, since nodes on one machine may be
// announced as either.
func sameNode(a, b string) bool {
	if a == b {
		return true
	}
	ha, pa, err := net.SplitHostPort(a)
	if err != nil {
		return false
	}
	hb, pb, err := net.SplitHostPort(b)
	if err != nil || pa != pb {
		return false
	}
	if strings.EqualFold(ha, hb) {
		return true
	}
	ia, erra := netip.ParseAddr(ha)
	ib, errb := netip.ParseAddr(hb)
	if erra == nil && errb == nil {
		return ia.Unmap() == ib.Unmap() || (ia.IsLoopback() && ib.IsLoopback())
	}
	return isLoopback(ha) && isLoopback(hb)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}
