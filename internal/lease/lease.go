package lease

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/umegbewe/ippool/internal/batch"
	"github.com/umegbewe/ippool/internal/iprange"
	"github.com/umegbewe/ippool/internal/keys"
	"github.com/umegbewe/ippool/internal/leasescript"
)

// Lease is the state of one address or prefix in a pool.
type Lease struct {
	Block iprange.Block
	// Expires is the unix time the lease runs out, 0 for a lease never handed out
	// or released.
	Expires int64
	Device  string
	Gateway string
	Range   string
}

// Active reports whether the lease is still held at now.
func (l *Lease) Active(now time.Time) bool {
	return now.Unix() <= l.Expires
}

// NextEvent returns the expiry time, or the zero time if there is none.
func (l *Lease) NextEvent() time.Time {
	if l.Expires == 0 {
		return time.Time{}
	}
	return time.Unix(l.Expires, 0)
}

// Add inserts addresses into the pool with an expiry of 0, leaving existing
// entries' expiry untouched, and tags them with Range.
type Add struct {
	Pool  string
	Range string
	// Count is the number of addresses actually inserted.
	Count uint64
}

func (a *Add) Name() string { return "add" }

func (a *Add) Enqueue(p *batch.Pipeline, b iprange.Block) (int, error) {
	poolKey, err := keys.Pool(a.Pool)
	if err != nil {
		return 0, err
	}
	addr := b.String()
	ipKey, err := keys.Address(a.Pool, addr)
	if err != nil {
		return 0, err
	}

	p.Do("multi")
	p.Do("zadd", poolKey, "NX", 0, addr)
	p.Do("hset", ipKey, "range", a.Range)
	p.Do("exec")
	return 4, nil
}

func (a *Add) Process(b iprange.Block, replies []*redis.Cmd) error {
	vals, err := execReply(replies)
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if n, ok := vals[0].(int64); ok {
			a.Count += uint64(n)
		}
	}
	return nil
}

// Remove deletes addresses from the pool along with their metadata.
type Remove struct {
	Pool  string
	Count uint64
}

func (r *Remove) Name() string { return leasescript.Remove.Name }

func (r *Remove) Enqueue(p *batch.Pipeline, b iprange.Block) (int, error) {
	return enqueueScript(p, leasescript.Remove, r.Pool, b)
}

func (r *Remove) Process(b iprange.Block, replies []*redis.Cmd) error {
	return sumInt(&r.Count, replies)
}

// Release returns leased addresses to the pool.
type Release struct {
	Pool  string
	Count uint64
}

func (r *Release) Name() string { return leasescript.Release.Name }

func (r *Release) Enqueue(p *batch.Pipeline, b iprange.Block) (int, error) {
	return enqueueScript(p, leasescript.Release, r.Pool, b)
}

func (r *Release) Process(b iprange.Block, replies []*redis.Cmd) error {
	return sumInt(&r.Count, replies)
}

// Show reads the lease of every address in the range. Addresses missing from
// the index are skipped.
type Show struct {
	Pool   string
	Leases []*Lease
}

func (s *Show) Name() string { return "show" }

func (s *Show) Enqueue(p *batch.Pipeline, b iprange.Block) (int, error) {
	poolKey, err := keys.Pool(s.Pool)
	if err != nil {
		return 0, err
	}
	addr := b.String()
	ipKey, err := keys.Address(s.Pool, addr)
	if err != nil {
		return 0, err
	}

	p.Do("multi")
	p.Do("zscore", poolKey, addr)
	p.Do("hget", ipKey, "device")
	p.Do("hget", ipKey, "gateway")
	p.Do("hget", ipKey, "range")
	p.Do("exec")
	return 6, nil
}

func (s *Show) Process(b iprange.Block, replies []*redis.Cmd) error {
	vals, err := execReply(replies)
	if err != nil {
		return err
	}
	if len(vals) < 4 {
		return fmt.Errorf("%w: lease info for %s has %d fields", batch.ErrProtocol, b, len(vals))
	}

	score, ok := vals[0].(string)
	if !ok {
		return nil
	}
	expires, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return fmt.Errorf("%w: score %q for %s: %v", batch.ErrProtocol, score, b, err)
	}

	l := &Lease{Block: b, Expires: int64(expires)}
	l.Device, _ = vals[1].(string)
	l.Gateway, _ = vals[2].(string)
	l.Range, _ = vals[3].(string)
	s.Leases = append(s.Leases, l)
	return nil
}

func enqueueScript(p *batch.Pipeline, script *leasescript.Script, pool string, b iprange.Block) (int, error) {
	addr := b.String()
	// The script builds the keys itself, check they fit before sending.
	if _, err := keys.Address(pool, addr); err != nil {
		return 0, err
	}
	p.Do(script.Args(pool, addr)...)
	return 1, nil
}

func sumInt(total *uint64, replies []*redis.Cmd) error {
	if len(replies) != 1 {
		return fmt.Errorf("%w: expected 1 reply, got %d", batch.ErrProtocol, len(replies))
	}
	n, err := replies[0].Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", batch.ErrProtocol, err)
	}
	*total += uint64(n)
	return nil
}

// execReply returns the elements of the EXEC reply closing a transaction.
func execReply(replies []*redis.Cmd) ([]interface{}, error) {
	if len(replies) == 0 {
		return nil, fmt.Errorf("%w: no replies", batch.ErrProtocol)
	}
	vals, err := replies[len(replies)-1].Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: transaction reply: %v", batch.ErrProtocol, err)
	}
	return vals, nil
}
