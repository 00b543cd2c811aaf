package profile

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Tracker receives instrumentation events, e.g. the size of every client-bound remote call
type Tracker interface {
	RecordEvent(category string, name string, size int)
}

// NopTracker drops every event
type NopTracker struct{}

// RecordEvent does nothing
func (NopTracker) RecordEvent(category string, name string, size int) {}

// EventStat is the statistics of one event
type EventStat struct {
	Category string
	Name     string
	Count    uint64
	Size     uint64
}

// AvgSize returns the average size per event
func (s EventStat) AvgSize() uint64 {
	if s.Count == 0 {
		return 0
	}
	return s.Size / s.Count
}

// EventProfile counts events by category and name
type EventProfile struct {
	sync.Mutex
	events    map[string]map[string]*EventStat
	startTime time.Time
}

// NewEventProfile creates an empty event profile
func NewEventProfile() *EventProfile {
	return &EventProfile{
		events:    map[string]map[string]*EventStat{},
		startTime: time.Now(),
	}
}

// RecordEvent implements Tracker
func (p *EventProfile) RecordEvent(category string, name string, size int) {
	p.Lock()
	byName := p.events[category]
	if byName == nil {
		byName = map[string]*EventStat{}
		p.events[category] = byName
	}
	stat := byName[name]
	if stat == nil {
		stat = &EventStat{Category: category, Name: name}
		byName[name] = stat
	}
	stat.Count++
	stat.Size += uint64(size)
	p.Unlock()
}

// Get returns the statistics of one event
func (p *EventProfile) Get(category string, name string) EventStat {
	p.Lock()
	defer p.Unlock()
	if stat := p.events[category][name]; stat != nil {
		return *stat
	}
	return EventStat{Category: category, Name: name}
}

// Snapshot returns all statistics sorted by category and name, optionally resetting the profile
func (p *EventProfile) Snapshot(reset bool) []EventStat {
	p.Lock()
	events := p.events
	if reset {
		p.events = map[string]map[string]*EventStat{}
		p.startTime = time.Now()
	}
	var stats []EventStat
	for _, byName := range events {
		for _, stat := range byName {
			stats = append(stats, *stat)
		}
	}
	p.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Category != stats[j].Category {
			return stats[i].Category < stats[j].Category
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Dump writes the statistics to w
func (p *EventProfile) Dump(w io.Writer) {
	p.Lock()
	elapsed := time.Since(p.startTime)
	p.Unlock()
	fmt.Fprintf(w, "event profile, %s elapsed\n", elapsed)
	for _, stat := range p.Snapshot(false) {
		fmt.Fprintf(w, "%-20s %-30s x%-10d %10d bytes AVG %d\n", stat.Category, stat.Name, stat.Count, stat.Size, stat.AvgSize())
	}
}
