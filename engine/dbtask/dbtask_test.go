package dbtask

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/callbackmgr"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/config"
	. "github.com/xiaonanln/gomercury/engine/dbtask/dbtask_common"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/opmon"
	"github.com/xiaonanln/gomercury/engine/post"
)

type memStore struct {
	sync.Mutex
	data      map[string][]byte
	opens     int
	failOpen  bool
	failNextN int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (st *memStore) open() (Engine, error) {
	st.Lock()
	defer st.Unlock()
	if st.failOpen {
		return nil, errors.New("connection refused")
	}
	st.opens++
	return &memEngine{st}, nil
}

type memEngine struct {
	st *memStore
}

func (e *memEngine) Get(key string) ([]byte, error) {
	e.st.Lock()
	defer e.st.Unlock()
	if e.st.failNextN > 0 {
		e.st.failNextN--
		return nil, io.EOF
	}
	return e.st.data[key], nil
}

func (e *memEngine) Put(key string, val []byte) error {
	e.st.Lock()
	defer e.st.Unlock()
	if e.st.failNextN > 0 {
		e.st.failNextN--
		return io.EOF
	}
	e.st.data[key] = val
	return nil
}

func (e *memEngine) Del(key string) error {
	e.st.Lock()
	defer e.st.Unlock()
	delete(e.st.data, key)
	return nil
}

func (e *memEngine) Close() {}

func (e *memEngine) IsConnectionError(err error) bool {
	return errors.Cause(err) == io.EOF
}

type result struct {
	res interface{}
	err error
}

// waitResults ticks queue until n callbacks have run
func waitResults(t *testing.T, queue *post.Queue, results *[]result, n int) {
	deadline := time.Now().Add(5 * time.Second)
	for len(*results) < n {
		if time.Now().After(deadline) {
			t.Fatalf("waiting for %d results, got %d", n, len(*results))
		}
		time.Sleep(time.Millisecond)
		queue.Tick()
	}
}

func TestSaveAndLoadMailbox(t *testing.T) {
	st := newMemStore()
	queue := post.NewQueue()
	monitor := opmon.NewMonitor()
	s := NewService(st.open, 2, queue, monitor)
	defer s.Close()

	router := &mailbox.Router{}
	mb := router.NewMailbox(1024, 3001, 7, common.ROLE_CELL)
	var results []result
	collect := func(res interface{}, err error) {
		results = append(results, result{res, err})
	}
	s.Submit(NewSaveMailbox("avatar.1024.cell", mb), collect)
	s.Submit(NewLoadMailbox("avatar.1024.cell", router), collect)
	s.Submit(NewLoadMailbox("avatar.missing", router), collect)
	waitResults(t, queue, &results, 3)

	var loaded, missing *mailbox.Mailbox
	for _, r := range results[1:] {
		assert.Equal(t, nil, r.err)
		got := r.res.(*mailbox.Mailbox)
		if got != nil {
			loaded = got
		} else {
			missing = got
		}
	}
	assert.Equal(t, (*mailbox.Mailbox)(nil), missing)
	assert.T(t, loaded.Equal(mb))
	assert.Equal(t, router, loaded.Router())

	found := false
	for _, info := range monitor.Snapshot(false) {
		if info.Name == "dbtask.saveMailbox" {
			found = true
			assert.Equal(t, uint64(1), info.Count)
		}
	}
	assert.T(t, found)
}

func TestConnectionErrorReopensEngine(t *testing.T) {
	st := newMemStore()
	st.failNextN = 1
	queue := post.NewQueue()
	s := NewService(st.open, 1, queue, opmon.NewMonitor())
	defer s.Close()

	var results []result
	collect := func(res interface{}, err error) {
		results = append(results, result{res, err})
	}
	mb := (&mailbox.Router{}).NewMailbox(1, 3001, 7, common.ROLE_BASE)
	s.Submit(NewSaveMailbox("k", mb), collect)
	s.Submit(NewSaveMailbox("k", mb), collect)
	waitResults(t, queue, &results, 2)

	assert.Equal(t, io.EOF, errors.Cause(results[0].err))
	assert.Equal(t, nil, results[1].err)
	st.Lock()
	assert.Equal(t, 2, st.opens)
	st.Unlock()
}

func TestSaveAndRestoreCallbacks(t *testing.T) {
	st := newMemStore()
	queue := post.NewQueue()
	s := NewService(st.open, 1, queue, opmon.NewMonitor())
	defer s.Close()

	mgr := callbackmgr.NewManager(time.Minute)
	id := mgr.Save("pending", 0)

	var results []result
	s.Submit(NewSaveCallbacks("callbacks.3001", mgr), func(res interface{}, err error) {
		results = append(results, result{res, err})
	})
	waitResults(t, queue, &results, 1)
	assert.Equal(t, nil, results[0].err)

	restored := callbackmgr.NewManager(time.Minute)
	s.RestoreCallbacks("callbacks.3001", restored, nil, func(err error) {
		results = append(results, result{nil, err})
	})
	waitResults(t, queue, &results, 2)
	assert.Equal(t, nil, results[1].err)
	assert.Equal(t, 1, restored.Len())
	cb, ok := restored.Take(id)
	assert.T(t, ok)
	assert.Equal(t, "pending", cb)
}

func TestShutdownFailsUnreachableTasks(t *testing.T) {
	st := newMemStore()
	st.failOpen = true
	queue := post.NewQueue()
	s := NewService(st.open, 1, queue, opmon.NewMonitor())
	s.retryBackoff = time.Millisecond

	var results []result
	s.Submit(NewLoadCallbacks("callbacks.3001"), func(res interface{}, err error) {
		results = append(results, result{res, err})
	})
	time.Sleep(10 * time.Millisecond)
	s.Close()
	waitResults(t, queue, &results, 1)
	assert.Equal(t, ErrShuttingDown, errors.Cause(results[0].err))
	s.WaitTerminated()
}

func TestOpenDisabled(t *testing.T) {
	s, err := Open(config.DBTaskConfig{}, post.NewQueue(), opmon.NewMonitor())
	assert.Equal(t, nil, err)
	assert.Equal(t, (*Service)(nil), s)

	_, err = Open(config.DBTaskConfig{Type: "leveldb", Workers: 1}, post.NewQueue(), opmon.NewMonitor())
	assert.NotEqual(t, nil, err)
}

func TestSubmitAfterClose(t *testing.T) {
	st := newMemStore()
	queue := post.NewQueue()
	s := NewService(st.open, 1, queue, opmon.NewMonitor())
	s.Close()
	s.WaitTerminated()

	var results []result
	mb := (&mailbox.Router{}).NewMailbox(1, 3001, 7, common.ROLE_BASE)
	s.Submit(NewSaveMailbox("k", mb), func(res interface{}, err error) {
		results = append(results, result{res, err})
	})
	s.Submit(NewSaveMailbox("k", mb), nil)
	waitResults(t, queue, &results, 1)
	assert.Equal(t, ErrShuttingDown, results[0].err)
	assert.Equal(t, nil, results[0].res)

	st.Lock()
	_, saved := st.data["k"]
	st.Unlock()
	assert.T(t, !saved)
}
