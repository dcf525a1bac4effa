// Package redisindex implements a metadata index adapter backed by
// Redis. Each record is a hash at key "<prefix><token>", with the
// record's own ExpiresAtEpochMs used to compute a Redis EXPIRE so that
// stale records disappear from Redis roughly in step with their
// application-level expiry, independent of this process's lifetime.
package redisindex

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/fleetpx/ephimg/index"
	"github.com/fleetpx/ephimg/index/driver"
)

// Scheme identifies this adapter in config and log fields.
const Scheme = "redis"

// minTTL is the floor passed to Redis EXPIRE; a record whose computed
// TTL has already lapsed (clock skew between this process and the one
// that minted it) still gets a brief grace period in Redis rather than
// an EXPIRE call with a non-positive seconds argument, which Redis
// treats as an immediate delete.
const minTTL = 1 * time.Second

var _ driver.Storage = (*storage)(nil)

// Option configures a storage at construction time.
type Option func(s *storage)

// Prefix sets the key prefix used for every record this storage reads
// or writes. The zero value is no prefix.
func Prefix(p string) Option {
	return func(s *storage) { s.prefix = p }
}

// Skew extends every record's Redis TTL by d beyond its
// ExpiresAtEpochMs, so a record is never evicted from Redis before the
// access arbiter's own clock-skew grace window has elapsed for it. This
// should match the skew passed to access.NewArbiter. The zero value
// adds no grace.
func Skew(d time.Duration) Option {
	return func(s *storage) { s.skew = d }
}

type storage struct {
	pool   *redis.Pool
	prefix string
	skew   time.Duration
}

// OpenIndex returns an *index.Index backed by Redis connections from
// pool.
func OpenIndex(pool *redis.Pool, opts ...Option) (*index.Index, error) {
	s := &storage{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.ping(); err != nil {
		return nil, err
	}
	return index.NewIndex(s), nil
}

func (s *storage) ProviderName() string { return Scheme }

func (s *storage) key(token string) string {
	return s.prefix + token
}

func (s *storage) getConn() (redis.Conn, error) {
	conn := s.pool.Get()
	if err := conn.Err(); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *storage) ping() (bool, error) {
	conn, err := s.getConn()
	if err != nil {
		return false, err
	}
	defer conn.Close()
	data, err := conn.Do("PING")
	if err != nil || data == nil {
		return false, err
	}
	return data == "PONG", nil
}

// recordHash is the wire shape of a Record in Redis's HMSET/HGETALL.
type recordHash struct {
	Token            string
	Ref              string
	ExpiresAtEpochMs string
	ContentType      string
}

func (rh *recordHash) toRecord() (*driver.Record, error) {
	expiresAt, err := parseEpochMs(rh.ExpiresAtEpochMs)
	if err != nil {
		return nil, err
	}
	return &driver.Record{
		Token:            rh.Token,
		Ref:              rh.Ref,
		ExpiresAtEpochMs: expiresAt,
		ContentType:      rh.ContentType,
	}, nil
}

func parseEpochMs(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

// ttlFor computes the Redis-level TTL for a record expiring at
// expiresAtEpochMs: time remaining until expiry, plus s.skew so the
// record survives through the access arbiter's clock-skew grace window,
// floored at minTTL so EXPIRE never sees a non-positive argument.
func (s *storage) ttlFor(expiresAtEpochMs int64) time.Duration {
	ttl := time.Until(time.UnixMilli(expiresAtEpochMs)) + s.skew
	if ttl < minTTL {
		ttl = minTTL
	}
	return ttl
}

// Put upserts rec via HMSET, then sets a Redis-level TTL derived from
// rec.ExpiresAtEpochMs plus s.skew, so a record still within the access
// arbiter's clock-skew grace window is never evicted out from under it.
func (s *storage) Put(ctx context.Context, rec driver.Record) error {
	conn, err := s.getConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	key := s.key(rec.Token)
	rh := recordHash{
		Token:            rec.Token,
		Ref:              rec.Ref,
		ExpiresAtEpochMs: fmt.Sprintf("%d", rec.ExpiresAtEpochMs),
		ContentType:      rec.ContentType,
	}

	ttl := s.ttlFor(rec.ExpiresAtEpochMs)

	conn.Send("MULTI")
	conn.Send("HMSET", redis.Args{}.Add(key).AddFlat(rh)...)
	conn.Send("EXPIRE", key, int(ttl.Seconds()))
	_, err = conn.Do("EXEC")
	return err
}

// Get returns the record for token, or (nil, nil) if the key is absent
// (never minted, or already expired out of Redis).
func (s *storage) Get(ctx context.Context, token string) (*driver.Record, error) {
	conn, err := s.getConn()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Values(conn.Do("HGETALL", s.key(token)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	rh := new(recordHash)
	if err := redis.ScanStruct(data, rh); err != nil {
		return nil, err
	}
	return rh.toRecord()
}

func (s *storage) Close() error {
	return s.pool.Close()
}
