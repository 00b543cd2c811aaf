package async

import (
	"sync"

	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/post"
	"golang.org/x/net/context"
)

// AsyncCallback receives the result of an async routine on the main loop
type AsyncCallback func(res interface{}, err error)

// AsyncRoutine runs on a worker goroutine and must not touch main loop state
type AsyncRoutine func(ctx context.Context) (res interface{}, err error)

type asyncJobItem struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

type asyncJobWorker struct {
	group    string
	jobQueue chan asyncJobItem
}

// Pool runs async jobs in per-group worker goroutines, jobs of the same group run in order
type Pool struct {
	queue *post.Queue

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup

	lock    sync.RWMutex
	workers map[string]*asyncJobWorker
	closed  bool
}

// NewPool creates a worker pool posting callbacks to queue
func NewPool(queue *post.Queue) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   queue,
		ctx:     ctx,
		cancel:  cancel,
		workers: map[string]*asyncJobWorker{},
	}
}

func (p *Pool) newWorker(group string) *asyncJobWorker {
	ajw := &asyncJobWorker{
		group:    group,
		jobQueue: make(chan asyncJobItem, consts.ASYNC_JOB_QUEUE_MAXLEN),
	}
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		gwutils.RepeatUntilPanicless(func() {
			p.workerLoop(ajw)
		})
	}()
	return ajw
}

func (p *Pool) workerLoop(ajw *asyncJobWorker) {
	for item := range ajw.jobQueue {
		res, err := item.routine(p.ctx)
		if item.callback != nil {
			callback := item.callback
			p.queue.Post(func() {
				callback(res, err)
			})
		}
	}
}

func (p *Pool) getWorker(group string) (ajw *asyncJobWorker) {
	p.lock.RLock()
	ajw = p.workers[group]
	p.lock.RUnlock()

	if ajw == nil {
		p.lock.Lock()
		ajw = p.workers[group]
		if ajw == nil && !p.closed {
			ajw = p.newWorker(group)
			p.workers[group] = ajw
		}
		p.lock.Unlock()
	}
	return
}

// AppendAsyncJob appends a job to the group, callback is called on the main loop
func (p *Pool) AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) bool {
	ajw := p.getWorker(group)
	if ajw == nil {
		gwlog.Errorf("async: pool is shut down, job of group %s dropped", group)
		return false
	}
	ajw.jobQueue <- asyncJobItem{routine, callback}
	return true
}

// Shutdown closes all job queues and waits for the workers to quit
func (p *Pool) Shutdown() {
	p.lock.Lock()
	p.closed = true
	for _, ajw := range p.workers {
		close(ajw.jobQueue)
	}
	p.workers = map[string]*asyncJobWorker{}
	p.lock.Unlock()

	p.running.Wait()
	p.cancel()
}

var defaultPool = NewPool(post.Default())

// AppendAsyncJob appends a job to the process pool
func AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) bool {
	return defaultPool.AppendAsyncJob(group, routine, callback)
}
