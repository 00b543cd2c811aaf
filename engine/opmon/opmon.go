package opmon

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	monitor = NewMonitor()
)

func init() {
	if consts.OPMON_DUMP_INTERVAL > 0 {
		go func() {
			for {
				time.Sleep(consts.OPMON_DUMP_INTERVAL)
				monitor.Dump(gwlogWriter{})
			}
		}()
	}
}

// OpInfo is the statistics of one kind of operation
type OpInfo struct {
	Name          string
	Count         uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

// AvgDuration returns the average duration of the operation
func (info OpInfo) AvgDuration() time.Duration {
	if info.Count == 0 {
		return 0
	}
	return info.TotalDuration / time.Duration(info.Count)
}

// Monitor collects operation durations
type Monitor struct {
	sync.Mutex
	opInfos map[string]*OpInfo
}

// NewMonitor creates an operation monitor
func NewMonitor() *Monitor {
	return &Monitor{
		opInfos: map[string]*OpInfo{},
	}
}

// Default returns the process monitor
func Default() *Monitor {
	return monitor
}

func (m *Monitor) record(opname string, duration time.Duration) {
	m.Lock()
	info := m.opInfos[opname]
	if info == nil {
		info = &OpInfo{Name: opname}
		m.opInfos[opname] = info
	}
	info.Count += 1
	info.TotalDuration += duration
	if duration > info.MaxDuration {
		info.MaxDuration = duration
	}
	m.Unlock()
}

// Snapshot returns all operation infos sorted by name and optionally resets the monitor
func (m *Monitor) Snapshot(reset bool) []OpInfo {
	m.Lock()
	opInfos := m.opInfos
	if reset {
		m.opInfos = map[string]*OpInfo{}
	}
	infos := make([]OpInfo, 0, len(opInfos))
	for _, info := range opInfos {
		infos = append(infos, *info)
	}
	m.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Dump writes and clears the collected infos
func (m *Monitor) Dump(w io.Writer) {
	fmt.Fprint(w, "=====================================================================================\n")
	for _, info := range m.Snapshot(true) {
		fmt.Fprintf(w, "%-30sx%-10d AVG %-10s MAX %-10s\n", info.Name, info.Count, info.AvgDuration(), info.MaxDuration)
	}
}

// StartOperation creates a new operation on this monitor
func (m *Monitor) StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.monitor = m
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Operation is the type of operation to be monitored
type Operation struct {
	monitor   *Monitor
	name      string
	startTime time.Time
}

// StartOperation creates a new operation on the process monitor
func StartOperation(operationName string) *Operation {
	return monitor.StartOperation(operationName)
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) time.Duration {
	takeTime := time.Since(op.startTime)
	op.monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	op.monitor = nil
	operationAllocPool.Put(op)
	return takeTime
}

type gwlogWriter struct{}

func (gwlogWriter) Write(p []byte) (int, error) {
	gwlog.Infof("%s", p)
	return len(p), nil
}
