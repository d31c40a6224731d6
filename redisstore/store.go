package redisstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andreyvit/arbor"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// Prefix namespaces the keys: entities live under "<prefix>:<kind>:<name>".
	// Default: "arbor"
	Prefix string

	// TTL expires stored entities; zero keeps them forever.
	TTL time.Duration

	Logf    func(format string, args ...any)
	Verbose bool
}

// Store is an arbor.Backend keeping entities in Redis as EncodeValue blobs.
// Writes and deletes of a batch run in a single MULTI/EXEC transaction;
// reads use one MGET.
type Store struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	logf    func(format string, args ...any)
	verbose bool
}

var _ arbor.Backend = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, opts), nil
}

// NewWithClient wraps an existing client. Only Prefix, TTL, Logf and Verbose
// are taken from opts.
func NewWithClient(client *redis.Client, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "arbor"
	}
	if opts.Logf == nil {
		opts.Logf = func(format string, args ...any) {}
	}
	return &Store{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		logf:    opts.Logf,
		verbose: opts.Verbose,
	}
}

// RedisKey returns the Redis key holding the entity with key k.
func (s *Store) RedisKey(k arbor.Key) string {
	return s.prefix + ":" + k.Kind + ":" + k.Name
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) SubmitWrites(ctx context.Context, writes []arbor.Write) *arbor.Async[struct{}] {
	return arbor.Go(ctx, func(ctx context.Context) (struct{}, error) {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				raw, err := arbor.EncodeValue(w.Node)
				if err != nil {
					return fmt.Errorf("redisstore: %v: %w", w.Key, err)
				}
				if s.verbose {
					s.logf("redisstore: SET %s => %s", s.RedisKey(w.Key), arbor.Dump(w.Node))
				}
				pipe.Set(ctx, s.RedisKey(w.Key), raw, s.ttl)
			}
			return nil
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("redisstore: failed to write %d entities: %w", len(writes), err)
		}
		return struct{}{}, nil
	})
}

func (s *Store) SubmitDeletes(ctx context.Context, keys []arbor.Key) *arbor.Async[struct{}] {
	return arbor.Go(ctx, func(ctx context.Context) (struct{}, error) {
		redisKeys := s.redisKeys(keys)
		if s.verbose {
			s.logf("redisstore: DEL %v", redisKeys)
		}
		if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
			return struct{}{}, fmt.Errorf("redisstore: failed to delete %d entities: %w", len(keys), err)
		}
		return struct{}{}, nil
	})
}

func (s *Store) SubmitReads(ctx context.Context, keys []arbor.Key) *arbor.Async[[]arbor.Node] {
	return arbor.Go(ctx, func(ctx context.Context) ([]arbor.Node, error) {
		values, err := s.client.MGet(ctx, s.redisKeys(keys)...).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: failed to read %d entities: %w", len(keys), err)
		}
		nodes := make([]arbor.Node, len(keys))
		for i, v := range values {
			switch v := v.(type) {
			case nil:
			case string:
				node, err := arbor.DecodeValue([]byte(v))
				if err != nil {
					return nil, fmt.Errorf("redisstore: %v: %w", keys[i], err)
				}
				nodes[i] = node
			default:
				return nil, fmt.Errorf("redisstore: %v: unexpected reply %T", keys[i], v)
			}
		}
		return nodes, nil
	})
}

func (s *Store) redisKeys(keys []arbor.Key) []string {
	result := make([]string, len(keys))
	for i, k := range keys {
		result[i] = s.RedisKey(k)
	}
	return result
}
