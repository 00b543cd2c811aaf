package profile

import (
	"fmt"
	"io"
	"time"

	"github.com/xiaonanln/gomercury/engine/opmon"
)

// TimingProfile reports operation timings collected by an opmon.Monitor since it started
type TimingProfile struct {
	monitor  *opmon.Monitor
	baseline map[string]opmon.OpInfo
}

// NewTimingProfile records the current operation counters as the baseline
func NewTimingProfile(monitor *opmon.Monitor) *TimingProfile {
	p := &TimingProfile{
		monitor:  monitor,
		baseline: map[string]opmon.OpInfo{},
	}
	for _, info := range monitor.Snapshot(false) {
		p.baseline[info.Name] = info
	}
	return p
}

// Diff returns the operations run since the baseline, MaxDuration covers the whole monitor lifetime
func (p *TimingProfile) Diff() []opmon.OpInfo {
	var res []opmon.OpInfo
	for _, info := range p.monitor.Snapshot(false) {
		base := p.baseline[info.Name]
		info.Count -= base.Count
		info.TotalDuration -= base.TotalDuration
		if info.Count == 0 {
			continue
		}
		res = append(res, info)
	}
	return res
}

// Dump writes the timings to w
func (p *TimingProfile) Dump(w io.Writer) {
	for _, info := range p.Diff() {
		fmt.Fprintf(w, "%-30sx%-10d AVG %-10s SUM %-10s\n", info.Name, info.Count, info.AvgDuration(), info.TotalDuration.Round(time.Microsecond))
	}
}
