package dbtaskmongodb

import (
	"io"

	"github.com/pkg/errors"
	. "github.com/xiaonanln/gomercury/engine/dbtask/dbtask_common"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

const (
	_DEFAULT_DB_NAME = "mercury"
	_VAL_KEY         = "_"
)

type mongoEngine struct {
	s *mgo.Session
	c *mgo.Collection
}

// OpenMongoDB opens a mongodb collection as db task engine
func OpenMongoDB(url string, dbname string, collectionName string) (Engine, error) {
	gwlog.Debugf("Connecting MongoDB ...")
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "mongodb dial failed")
	}

	session.SetMode(mgo.Monotonic, true)
	if dbname == "" {
		// if db is not specified, use default
		dbname = _DEFAULT_DB_NAME
	}
	return &mongoEngine{
		s: session,
		c: session.DB(dbname).C(collectionName),
	}, nil
}

func (e *mongoEngine) Get(key string) ([]byte, error) {
	var doc bson.M
	if err := e.c.FindId(key).One(&doc); err != nil {
		if err == mgo.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	val, ok := doc[_VAL_KEY].([]byte)
	if !ok {
		return nil, errors.Errorf("mongodb: value of %s is %T", key, doc[_VAL_KEY])
	}
	return val, nil
}

func (e *mongoEngine) Put(key string, val []byte) error {
	_, err := e.c.UpsertId(key, bson.M{
		_VAL_KEY: val,
	})
	return err
}

func (e *mongoEngine) Del(key string) error {
	err := e.c.RemoveId(key)
	if err == mgo.ErrNotFound {
		return nil
	}
	return err
}

func (e *mongoEngine) Close() {
	e.s.Close()
}

func (e *mongoEngine) IsConnectionError(err error) bool {
	err = errors.Cause(err)
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
