package post

import (
	"sync"

	"github.com/xiaonanln/gomercury/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue is a completion queue drained by the main loop
//
// Push might be called from worker goroutines, Tick is only called by the main loop
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates a completion queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed when other things are done in the main routine
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs all posted functions, including those posted while running
func (q *Queue) Tick() {
	for {
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break
		}
		// switch callbacks in locked section
		callbacksCopy := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacksCopy))
		q.lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
	}
}

var defaultQueue = NewQueue()

// Default returns the process completion queue
func Default() *Queue {
	return defaultQueue
}

// Post a callback to the process completion queue
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick is called by the main routine to run all posted functions
func Tick() {
	defaultQueue.Tick()
}
