package redisindex

import (
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/ory/dockertest/v3"

	"github.com/fleetpx/ephimg/index/indextest"
)

func TestTTLForIncludesSkewGrace(t *testing.T) {
	s := &storage{skew: 5 * time.Second}
	expiresAt := time.Now().Add(10 * time.Second)

	ttl := s.ttlFor(expiresAt.UnixMilli())
	if ttl < 14*time.Second || ttl > 16*time.Second {
		t.Fatalf("ttlFor() = %v, want approximately 15s (10s remaining + 5s skew)", ttl)
	}
}

func TestTTLForFloorsAtMinTTL(t *testing.T) {
	s := &storage{skew: 0}
	expiresAt := time.Now().Add(-1 * time.Hour)

	if ttl := s.ttlFor(expiresAt.UnixMilli()); ttl != minTTL {
		t.Fatalf("ttlFor() = %v, want the minTTL floor %v", ttl, minTTL)
	}
}

func TestConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis-backed conformance test in short mode")
	}

	cleanup, addr := prepareRedisServer(t)
	defer cleanup()

	pool := createRedisPool(addr)
	st := &storage{pool: pool, prefix: "conformance-test:"}
	indextest.RunConformanceTests(t, st)
}

func createRedisPool(address string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
	}
}

func prepareRedisServer(t *testing.T) (func(), string) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	resource, err := pool.Run("redis", "6-alpine", []string{})
	if err != nil {
		t.Fatalf("could not start redis container: %v", err)
	}
	cleanup := func() {
		if err := pool.Purge(resource); err != nil {
			log.Printf("redisindex: failed to purge container: %v", err)
		}
	}

	addr := fmt.Sprintf("127.0.0.1:%s", resource.GetPort("6379/tcp"))
	retryErr := pool.Retry(func() error {
		conn, err := redis.Dial("tcp", addr)
		if err != nil {
			return err
		}
		defer conn.Close()
		data, err := conn.Do("PING")
		if err != nil || data == nil {
			return err
		}
		if data != "PONG" {
			return fmt.Errorf("expected PONG from server, got: %s", data)
		}
		return nil
	})
	if retryErr != nil {
		cleanup()
		t.Fatalf("redis container did not become ready: %v", retryErr)
	}

	return cleanup, addr
}
