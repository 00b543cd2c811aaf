package dbtaskredis

import (
	"io"

	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
	. "github.com/xiaonanln/gomercury/engine/dbtask/dbtask_common"
)

const (
	keyPrefix = "_DBT_"
)

type redisEngine struct {
	c redis.Conn
}

// OpenRedis opens redis as db task engine
func OpenRedis(host string, dbindex int) (Engine, error) {
	c, err := redis.Dial("tcp", host)
	if err != nil {
		return nil, errors.Wrap(err, "redis dail failed")
	}

	if _, err := c.Do("SELECT", dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis select db failed")
	}
	return &redisEngine{c: c}, nil
}

func (e *redisEngine) Get(key string) ([]byte, error) {
	val, err := redis.Bytes(e.c.Do("GET", keyPrefix+key))
	if err == redis.ErrNil {
		return nil, nil
	}
	return val, err
}

func (e *redisEngine) Put(key string, val []byte) error {
	_, err := e.c.Do("SET", keyPrefix+key, val)
	return err
}

func (e *redisEngine) Del(key string) error {
	_, err := e.c.Do("DEL", keyPrefix+key)
	return err
}

func (e *redisEngine) Close() {
	e.c.Close()
}

func (e *redisEngine) IsConnectionError(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF || e.c.Err() != nil
}
