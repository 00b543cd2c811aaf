package profile

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
	"golang.org/x/net/context"
)

// ProcessSnapshot is the resource usage of the current process
type ProcessSnapshot struct {
	Pid        int32
	CPUPercent float64
	RSS        uint64
	VMS        uint64
	NumThreads int32
}

func (s ProcessSnapshot) String() string {
	return fmt.Sprintf("pid=%d cpu=%.2f%% rss=%dKB vms=%dKB threads=%d", s.Pid, s.CPUPercent, s.RSS/1024, s.VMS/1024, s.NumThreads)
}

// TakeProcessSnapshot collects the resource usage of the current process
func TakeProcessSnapshot(ctx context.Context) (ProcessSnapshot, error) {
	pid := int32(os.Getpid())
	snapshot := ProcessSnapshot{Pid: pid}
	p, err := process.NewProcess(pid)
	if err != nil {
		return snapshot, errors.Wrapf(err, "find process %d", pid)
	}

	if snapshot.CPUPercent, err = p.CPUPercentWithContext(ctx); err != nil {
		return snapshot, errors.Wrap(err, "cpu percent")
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return snapshot, errors.Wrap(err, "memory info")
	}
	snapshot.RSS, snapshot.VMS = mem.RSS, mem.VMS
	if snapshot.NumThreads, err = p.NumThreadsWithContext(ctx); err != nil {
		return snapshot, errors.Wrap(err, "num threads")
	}
	return snapshot, nil
}
