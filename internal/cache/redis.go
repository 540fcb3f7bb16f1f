package cache

import (
	"github.com/gomodule/redigo/redis"
)

// RedisBackend is the optional shared-cache backend for deployments
// running the aggregator across multiple machines against one project
// checkout. Disabled unless a pool is supplied.
type RedisBackend struct {
	Pool      *redis.Pool
	KeyPrefix string
}

// NewRedisBackend creates a RedisBackend using an existing connection
// pool; keyPrefix namespaces keys when the Redis instance is shared.
func NewRedisBackend(pool *redis.Pool, keyPrefix string) *RedisBackend {
	return &RedisBackend{Pool: pool, KeyPrefix: keyPrefix}
}

func (r *RedisBackend) convKey(projectRoot string) string {
	return r.KeyPrefix + ":conversations:" + projectRoot
}

func (r *RedisBackend) metaKey(projectRoot string) string {
	return r.KeyPrefix + ":metadata:" + projectRoot
}

// Read implements Backend.
func (r *RedisBackend) Read(projectRoot string) ([]byte, []byte, error) {
	conn := r.Pool.Get()
	defer conn.Close()

	conv, err := redis.Bytes(conn.Do("GET", r.convKey(projectRoot)))
	if err != nil {
		return nil, nil, nil // cache miss is not an error
	}
	meta, err := redis.Bytes(conn.Do("GET", r.metaKey(projectRoot)))
	if err != nil {
		return nil, nil, nil
	}
	return conv, meta, nil
}

// Write implements Backend.
func (r *RedisBackend) Write(projectRoot string, conversations, metadata []byte) error {
	conn := r.Pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", r.convKey(projectRoot), conversations); err != nil {
		return err
	}
	_, err := conn.Do("SET", r.metaKey(projectRoot), metadata)
	return err
}
