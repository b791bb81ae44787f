package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// Options holds the connection parameters shared by both backends.
type Options struct {
	Addrs        []string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger log.FieldLogger
}

func (o Options) logger() log.FieldLogger {
	if o.Logger == nil {
		return log.StandardLogger()
	}
	return o.Logger
}

// RedisStore talks to a single, unclustered server. Every key lives on it.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	if len(opts.Addrs) == 0 {
		return nil, errors.New("no server address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addrs[0],
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Open(ctx context.Context, key string) (Shard, error) {
	return &nodeShard{client: s.client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// ClusterStore routes each key to the master owning its slot and follows
// slot migrations reported by the nodes.
type ClusterStore struct {
	client *redis.ClusterClient
	logger log.FieldLogger

	mu    sync.Mutex
	moved map[string]*pendingMove
}

// pendingMove is a redirect not yet reflected in the slot map.
type pendingMove struct {
	target   string
	reloaded bool
}

func NewClusterStore(ctx context.Context, opts Options) (*ClusterStore, error) {
	if len(opts.Addrs) == 0 {
		return nil, errors.New("no cluster seed address")
	}
	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:        opts.Addrs,
		Password:     opts.Password,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &ClusterStore{client: client, logger: opts.logger(), moved: make(map[string]*pendingMove)}, nil
}

func (s *ClusterStore) Open(ctx context.Context, key string) (Shard, error) {
	node, err := s.client.MasterForKey(ctx, key)
	if err != nil {
		if _, ok := redirectTarget(err); ok {
			s.client.ReloadState(ctx)
			return nil, fmt.Errorf("%w: %v", ErrRedirect, err)
		}
		return nil, err
	}

	addr := node.Options().Addr

	// Wait for the slot map to name the redirect target, but only for one
	// reload: the map may announce the node under another address.
	s.mu.Lock()
	move, pending := s.moved[key]
	stale := pending && move.target != "" && !sameNode(move.target, addr) && !move.reloaded
	if stale {
		move.reloaded = true
	} else if pending {
		if move.target != "" && !sameNode(move.target, addr) {
			s.logger.Debugf("Slot for %s still routed to %s after reload, using it instead of %s", key, addr, move.target)
		}
		delete(s.moved, key)
	}
	s.mu.Unlock()

	if stale {
		s.client.ReloadState(ctx)
		return nil, fmt.Errorf("%w: %s not yet routed to %s (have %s)", ErrRedirect, key, move.target, addr)
	}

	return &nodeShard{
		client: node,
		onRedirect: func(ctx context.Context, target string) {
			s.logger.Debugf("Slot for %s moved from %s to %q", key, addr, target)
			s.mu.Lock()
			s.moved[key] = &pendingMove{target: target}
			s.mu.Unlock()
			s.client.ReloadState(ctx)
		},
	}, nil
}

func (s *ClusterStore) Close() error {
	return s.client.Close()
}

// nodeShard pipelines commands to one node without following redirects.
type nodeShard struct {
	client     *redis.Client
	onRedirect func(ctx context.Context, target string)
}

func (s *nodeShard) Exec(ctx context.Context, cmds [][]interface{}) ([]*redis.Cmd, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	replies := make([]*redis.Cmd, len(cmds))
	for i, args := range cmds {
		replies[i] = pipe.Do(ctx, args...)
	}
	_, err := pipe.Exec(ctx)

	for _, reply := range replies {
		if target, ok := redirectTarget(reply.Err()); ok {
			if s.onRedirect != nil {
				s.onRedirect(ctx, target)
			}
			return replies, fmt.Errorf("%w: %v", ErrRedirect, reply.Err())
		}
	}

	var rerr redis.Error
	if err != nil && !errors.As(err, &rerr) {
		return replies, err
	}
	for i, reply := range replies {
		if e := reply.Err(); e != nil && e != redis.Nil {
			return replies, fmt.Errorf("command %d (%v): %w", i, reply.Args()[0], e)
		}
	}
	return replies, nil
}

// New connects to the store in the given mode, "standalone" or "cluster".
func New(ctx context.Context, mode string, opts Options) (Store, error) {
	switch mode {
	case "", "standalone":
		s, err := NewRedisStore(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "cluster":
		s, err := NewClusterStore(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", mode)
	}
}
