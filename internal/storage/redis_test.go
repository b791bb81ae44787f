package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), Options{Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedirectTarget(t *testing.T) {
	cases := []struct {
		err      error
		target   string
		redirect bool
	}{
		{replyError("MOVED 3999 127.0.0.1:6381"), "127.0.0.1:6381", true},
		{replyError("ASK 3999 127.0.0.1:6382"), "", true},
		{replyError("TRYAGAIN Multiple keys request during rehashing of slot"), "", true},
		{replyError("CLUSTERDOWN The cluster is down"), "", true},
		{replyError("WRONGTYPE Operation against a key holding the wrong kind of value"), "", false},
		{errors.New("MOVED 1 10.0.0.1:6379"), "", false},
		{nil, "", false},
	}
	for _, c := range cases {
		target, ok := redirectTarget(c.err)
		if ok != c.redirect || target != c.target {
			t.Errorf("redirectTarget(%v) = %q, %v; expected %q, %v", c.err, target, ok, c.target, c.redirect)
		}
	}
}

func TestShardExecOrderedReplies(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	shard, err := store.Open(ctx, "{p}:pool")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	replies, err := shard.Exec(ctx, [][]interface{}{
		{"zadd", "{p}:pool", "NX", 0, "10.0.0.1"},
		{"zscore", "{p}:pool", "10.0.0.1"},
		{"zscore", "{p}:pool", "10.0.0.2"},
		{"multi"},
		{"hset", "{p}:ip:10.0.0.1", "range", "r1"},
		{"exec"},
	})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if len(replies) != 6 {
		t.Fatalf("Expected 6 replies, got %d", len(replies))
	}
	if n, _ := replies[0].Int64(); n != 1 {
		t.Errorf("Expected ZADD to add 1 member, got %d", n)
	}
	if replies[2].Err() == nil {
		t.Errorf("Expected nil reply for missing member")
	}
	if s, _ := replies[4].Text(); s != "QUEUED" {
		t.Errorf("Expected QUEUED inside transaction, got %q", s)
	}
	vals, err := replies[5].Slice()
	if err != nil || len(vals) != 1 {
		t.Fatalf("Expected EXEC array of one reply, got %v, %v", vals, err)
	}
	if got := mr.HGet("{p}:ip:10.0.0.1", "range"); got != "r1" {
		t.Errorf("Expected range r1, got %q", got)
	}
}

func TestShardExecCommandError(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	mr.Set("{p}:pool", "not a zset")

	shard, _ := store.Open(ctx, "{p}:pool")
	_, err := shard.Exec(ctx, [][]interface{}{
		{"zscore", "{p}:pool", "missing"},
		{"zadd", "{p}:pool", "NX", 0, "10.0.0.1"},
	})
	if err == nil {
		t.Fatal("Expected WRONGTYPE to surface as an error")
	}
	if errors.Is(err, ErrRedirect) {
		t.Errorf("WRONGTYPE must not be reported as a redirect: %v", err)
	}
}

func TestNewUnknownMode(t *testing.T) {
	if _, err := New(context.Background(), "sentinel", Options{Addrs: []string{"localhost:6379"}}); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestClusterStoreWaitsForMovedTarget(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewClusterStore(ctx, Options{Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatalf("Failed to connect to test cluster: %v", err)
	}
	defer store.Close()

	shard, err := store.Open(ctx, "{p}")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ns := shard.(*nodeShard)
	if got := ns.client.Options().Addr; got != mr.Addr() {
		t.Fatalf("Expected shard on %s, got %s", mr.Addr(), got)
	}

	// The slot map does not know the new owner yet.
	ns.onRedirect(ctx, "127.0.0.1:1")
	if _, err := store.Open(ctx, "{p}"); !errors.Is(err, ErrRedirect) {
		t.Fatalf("Expected ErrRedirect while routing is stale, got %v", err)
	}
	// After one reload the slot map is trusted even if it names another node.
	if _, err := store.Open(ctx, "{p}"); err != nil {
		t.Fatalf("Expected Open to give up waiting after one reload, got %v", err)
	}

	// The target may be announced under another loopback name.
	ns.onRedirect(ctx, "localhost:"+mr.Port())
	shard, err = store.Open(ctx, "{p}")
	if err != nil {
		t.Fatalf("Expected Open to succeed once routed to the target, got %v", err)
	}
	replies, err := shard.Exec(ctx, [][]interface{}{{"zadd", "{p}:pool", "NX", 0, "10.0.0.1"}})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if n, _ := replies[0].Int64(); n != 1 {
		t.Errorf("Expected 1 member added, got %d", n)
	}
}

func TestSameNode(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"10.0.0.1:6379", "10.0.0.1:6379", true},
		{"127.0.0.1:7000", "localhost:7000", true},
		{"[::1]:7000", "127.0.0.1:7000", true},
		{"[::ffff:10.0.0.1]:6379", "10.0.0.1:6379", true},
		{"Redis-1:6379", "redis-1:6379", true},
		{"10.0.0.1:6379", "10.0.0.1:6380", false},
		{"10.0.0.1:6379", "10.0.0.2:6379", false},
		{"redis-1:6379", "10.0.0.1:6379", false},
		{"bogus", "10.0.0.1:6379", false},
	}
	for _, c := range cases {
		if got := sameNode(c.a, c.b); got != c.want {
			t.Errorf("sameNode(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
