package dbtaskrediscluster

import (
	"io"
	"time"

	"github.com/chasex/redis-go-cluster"
	"github.com/pkg/errors"
	. "github.com/xiaonanln/gomercury/engine/dbtask/dbtask_common"
)

const (
	keyPrefix = "_DBT_"
)

type redisClusterEngine struct {
	c redis.Cluster
}

// OpenRedisCluster opens a redis cluster as db task engine
func OpenRedisCluster(startNodes []string) (Engine, error) {
	c, err := redis.NewCluster(&redis.Options{
		StartNodes:   startNodes,
		ConnTimeout:  10 * time.Second, // Connection timeout
		ReadTimeout:  60 * time.Second, // Read timeout
		WriteTimeout: 60 * time.Second, // Write timeout
		KeepAlive:    1,                // Maximum keep alive connecion in each node
		AliveTime:    10 * time.Minute, // Keep alive timeout
	})
	if err != nil {
		return nil, errors.Wrap(err, "redis cluster dail failed")
	}
	return &redisClusterEngine{c: c}, nil
}

func (e *redisClusterEngine) Get(key string) ([]byte, error) {
	val, err := redis.Bytes(e.c.Do("GET", keyPrefix+key))
	if err == redis.ErrNil {
		return nil, nil
	}
	return val, err
}

func (e *redisClusterEngine) Put(key string, val []byte) error {
	_, err := e.c.Do("SET", keyPrefix+key, val)
	return err
}

func (e *redisClusterEngine) Del(key string) error {
	_, err := e.c.Do("DEL", keyPrefix+key)
	return err
}

// Close is a no-op, redis.Cluster has nothing to close
func (e *redisClusterEngine) Close() {
}

func (e *redisClusterEngine) IsConnectionError(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
