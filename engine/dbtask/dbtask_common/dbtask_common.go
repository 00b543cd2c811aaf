package dbtaskcommon

// Engine is the key value store db tasks run against
//
// An engine is owned by one worker goroutine.
type Engine interface {
	// Get returns nil without error if key does not exist
	Get(key string) ([]byte, error)
	Put(key string, val []byte) error
	Del(key string) error
	Close()
	IsConnectionError(err error) bool
}

// Opener connects a new engine
type Opener func() (Engine, error)
