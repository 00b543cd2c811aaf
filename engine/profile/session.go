package profile

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/opmon"
	"golang.org/x/net/context"
)

// Kind is the kind of a profile session
type Kind int

const (
	// KindNetwork profiles message traffic
	KindNetwork Kind = iota
	// KindEvent profiles tracked events
	KindEvent
	// KindTiming profiles operation timings
	KindTiming
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindEvent:
		return "event"
	case KindTiming:
		return "timing"
	}
	return fmt.Sprintf("Kind<%d>", int(k))
}

// Sources are what a session can profile
type Sources struct {
	Catalogs []*msgcatalog.Catalog
	Events   *EventProfile
	Monitor  *opmon.Monitor
}

// Session profiles one kind of source for a time window, then reports the difference
type Session struct {
	Name      string
	Kind      Kind
	Duration  time.Duration
	startTime time.Time
	network   *NetworkProfile
	timing    *TimingProfile
	events    *EventProfile
	baseline  map[string]EventStat
	finished  bool
}

// StartSession snapshots the baseline and schedules the report after the window elapses
func StartSession(name string, kind Kind, duration time.Duration, src Sources, sched channel.Scheduler, report func(s *Session, text string)) *Session {
	s := &Session{
		Name:      name,
		Kind:      kind,
		Duration:  duration,
		startTime: time.Now(),
	}
	switch kind {
	case KindNetwork:
		s.network = NewNetworkProfile(src.Catalogs...)
	case KindTiming:
		monitor := src.Monitor
		if monitor == nil {
			monitor = opmon.Default()
		}
		s.timing = NewTimingProfile(monitor)
	case KindEvent:
		s.events = src.Events
		s.baseline = map[string]EventStat{}
		if s.events != nil {
			for _, stat := range s.events.Snapshot(false) {
				s.baseline[stat.Category+"/"+stat.Name] = stat
			}
		}
	default:
		gwlog.Panicf("profile %s: unknown kind %s", name, kind)
	}

	gwlog.Infof("profile %s: %s profiling started for %s", name, kind, duration)
	sched.AfterFunc(duration, func() {
		report(s, s.Finish())
	})
	return s
}

// Finish stops the session and returns the report text
func (s *Session) Finish() string {
	if s.finished {
		return ""
	}
	s.finished = true

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "profile %s (%s) %s\n", s.Name, s.Kind, time.Since(s.startTime).Round(time.Millisecond))
	switch s.Kind {
	case KindNetwork:
		s.network.Dump(&buf)
	case KindTiming:
		s.timing.Dump(&buf)
	case KindEvent:
		for _, stat := range s.EventDiff() {
			fmt.Fprintf(&buf, "%-20s %-30s x%-10d %10d bytes AVG %d\n", stat.Category, stat.Name, stat.Count, stat.Size, stat.AvgSize())
		}
	}

	if snapshot, err := TakeProcessSnapshot(context.Background()); err == nil {
		fmt.Fprintf(&buf, "process: %s\n", snapshot)
	} else {
		gwlog.Warnf("profile %s: process snapshot failed: %v", s.Name, err)
	}
	return buf.String()
}

// IsFinished returns if the session has reported
func (s *Session) IsFinished() bool {
	return s.finished
}

// EventDiff returns the events recorded since the session started
func (s *Session) EventDiff() []EventStat {
	if s.events == nil {
		return nil
	}
	var res []EventStat
	for _, stat := range s.events.Snapshot(false) {
		base := s.baseline[stat.Category+"/"+stat.Name]
		stat.Count -= base.Count
		stat.Size -= base.Size
		if stat.Count == 0 {
			continue
		}
		res = append(res, stat)
	}
	return res
}
