package dbtask

import (
	"hash/fnv"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/dbtask/backend/mongodb"
	"github.com/xiaonanln/gomercury/engine/dbtask/backend/redis"
	"github.com/xiaonanln/gomercury/engine/dbtask/backend/redis_cluster"
	. "github.com/xiaonanln/gomercury/engine/dbtask/dbtask_common"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/opmon"
	"github.com/xiaonanln/gomercury/engine/post"
)

// ErrShuttingDown is returned to tasks that can not reach the engine once the service is closing
var ErrShuttingDown = errors.New("dbtask: shutting down")

// Task runs on a worker goroutine against the engine of that worker
//
// Tasks of the same key run in submission order.
type Task interface {
	Name() string
	Key() string
	Run(engine Engine) (interface{}, error)
}

// Callback receives the result of a task on the main loop
type Callback func(res interface{}, err error)

type taskRequest struct {
	task     Task
	callback Callback
}

type worker struct {
	index      int
	service    *Service
	engine     Engine
	queue      *xnsyncutil.SyncQueue
	terminated *xnsyncutil.OneTimeCond
}

// Service runs db tasks on worker goroutines and posts results to the main loop
type Service struct {
	open         Opener
	queue        *post.Queue
	monitor      *opmon.Monitor
	workers      []*worker
	closing      xnsyncutil.AtomicBool
	retryBackoff time.Duration

	recentWarnedQueueLen int
}

// NewService starts numWorkers workers, each connecting its own engine with open
func NewService(open Opener, numWorkers int, queue *post.Queue, monitor *opmon.Monitor) *Service {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	s := &Service{
		open:         open,
		queue:        queue,
		monitor:      monitor,
		retryBackoff: time.Second,
	}
	for i := 0; i < numWorkers; i++ {
		w := &worker{
			index:      i,
			service:    s,
			queue:      xnsyncutil.NewSyncQueue(),
			terminated: xnsyncutil.NewOneTimeCond(),
		}
		s.workers = append(s.workers, w)
		go w.routine()
	}
	return s
}

// Open starts the service of the configured backend, it returns nil if db tasks are not enabled
func Open(dc config.DBTaskConfig, queue *post.Queue, monitor *opmon.Monitor) (*Service, error) {
	open, err := newOpener(dc)
	if err != nil || open == nil {
		return nil, err
	}
	gwlog.Infof("dbtask initializing, config:\n%s", config.DumpPretty(dc))
	return NewService(open, dc.Workers, queue, monitor), nil
}

func newOpener(dc config.DBTaskConfig) (Opener, error) {
	switch dc.Type {
	case "":
		return nil, nil
	case "redis":
		dbindex, err := strconv.Atoi(dc.DB)
		if err != nil {
			return nil, errors.Wrap(err, "redis db must be integer")
		}
		return func() (Engine, error) {
			return dbtaskredis.OpenRedis(dc.Url, dbindex)
		}, nil
	case "redis_cluster":
		startNodes := dc.StartNodes.ToList()
		return func() (Engine, error) {
			return dbtaskrediscluster.OpenRedisCluster(startNodes)
		}, nil
	case "mongodb":
		return func() (Engine, error) {
			return dbtaskmongodb.OpenMongoDB(dc.Url, dc.DB, dc.Collection)
		}, nil
	}
	return nil, errors.Errorf("dbtask type %s is not implemented", dc.Type)
}

// Submit queues a task, callback is called on the main loop with the result
//
// Tasks submitted after Close are not run, their callback gets ErrShuttingDown.
func (s *Service) Submit(task Task, callback Callback) {
	if s.closing.Load() {
		gwlog.Warnf("dbtask %s %s submitted after close", task.Name(), task.Key())
		if callback != nil {
			s.queue.Post(func() {
				callback(nil, ErrShuttingDown)
			})
		}
		return
	}
	w := s.workers[s.workerIndex(task.Key())]
	w.queue.Push(taskRequest{task: task, callback: callback})
	s.checkOperationQueueLen(w)
}

func (s *Service) workerIndex(key string) int {
	if len(s.workers) == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.workers)))
}

func (s *Service) checkOperationQueueLen(w *worker) {
	qlen := w.queue.Len()
	if qlen > 100 && qlen%100 == 0 && s.recentWarnedQueueLen != qlen {
		gwlog.Warnf("dbtask worker %d queue length = %d", w.index, qlen)
		s.recentWarnedQueueLen = qlen
	}
}

// Close stops accepting tasks, queued tasks are still run
func (s *Service) Close() {
	s.closing.Store(true)
	for _, w := range s.workers {
		w.queue.Close()
	}
}

// WaitTerminated waits for all workers to finish queued tasks
func (s *Service) WaitTerminated() {
	for _, w := range s.workers {
		w.terminated.Wait()
	}
}

func (w *worker) assureEngineReady() (err error) {
	if w.engine != nil { // connection is valid
		return
	}
	w.engine, err = w.service.open()
	return
}

func (w *worker) routine() {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("dbtask worker %d paniced: %v, restarting ...", w.index, err)
			go w.routine()
		} else {
			// normal quit
			if w.engine != nil {
				w.engine.Close()
				w.engine = nil
			}
			w.terminated.Signal()
		}
	}()

	for {
		req := w.queue.Pop()
		if req == nil { // queue is closed, returning nil
			break
		}
		w.handle(req.(taskRequest))
	}
}

func (w *worker) handle(req taskRequest) {
	s := w.service
	for {
		err := w.assureEngineReady()
		if err == nil {
			break
		}
		if s.closing.Load() {
			w.done(req, nil, errors.Wrap(ErrShuttingDown, err.Error()))
			return
		}
		gwlog.Errorf("dbtask engine is not ready: %s", err)
		time.Sleep(s.retryBackoff)
	}

	monop := s.monitor.StartOperation("dbtask." + req.task.Name())
	res, err := req.task.Run(w.engine)
	monop.Finish(consts.DB_TASK_WARN_THRESHOLD)
	if err != nil {
		gwlog.Errorf("dbtask %s %s failed: %s", req.task.Name(), req.task.Key(), err)
		if w.engine.IsConnectionError(err) {
			w.engine.Close()
			w.engine = nil
		}
	}
	w.done(req, res, err)
}

func (w *worker) done(req taskRequest, res interface{}, err error) {
	if req.callback == nil {
		return
	}
	callback := req.callback
	w.service.queue.Post(func() {
		callback(res, err)
	})
}
