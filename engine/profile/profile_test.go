package profile

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/opmon"
	"golang.org/x/net/context"
)

type manualScheduler struct {
	delays []time.Duration
	funcs  []func()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
}

func TestEventProfile(t *testing.T) {
	p := NewEventProfile()
	p.RecordEvent("Avatar", "onChat", 10)
	p.RecordEvent("Avatar", "onChat", 30)
	p.RecordEvent("Account", "onLogin", 5)

	stat := p.Get("Avatar", "onChat")
	assert.Equal(t, uint64(2), stat.Count)
	assert.Equal(t, uint64(40), stat.Size)
	assert.Equal(t, uint64(20), stat.AvgSize())
	assert.Equal(t, uint64(0), p.Get("Avatar", "missing").Count)

	stats := p.Snapshot(true)
	assert.Equal(t, 2, len(stats))
	assert.Equal(t, "Account", stats[0].Category)
	assert.Equal(t, "Avatar", stats[1].Category)
	assert.Equal(t, 0, len(p.Snapshot(false)))
}

func TestNopTracker(t *testing.T) {
	var tracker Tracker = NopTracker{}
	tracker.RecordEvent("Avatar", "onChat", 1)
}

func TestNetworkProfileDiff(t *testing.T) {
	c := msgcatalog.NewCatalog("ClientInterface")
	chat := c.Add("onChat", nil, msgcatalog.MSG_LENGTH_VARIABLE, msgcatalog.MESSAGE_TYPE_ENTITY, nil)
	c.Add("onIdle", nil, msgcatalog.MSG_LENGTH_VARIABLE, msgcatalog.MESSAGE_TYPE_ENTITY, nil)
	chat.OnSend(100)

	p := NewNetworkProfile(c)
	chat.OnSend(20)
	chat.OnRecv(7)

	diff := p.Diff()
	assert.Equal(t, 1, len(diff))
	assert.Equal(t, "ClientInterface::onChat", diff[0].FullName)
	assert.Equal(t, uint64(1), diff[0].SendCount)
	assert.Equal(t, uint64(20), diff[0].SendSize)
	assert.Equal(t, uint64(7), diff[0].RecvSize)

	var buf bytes.Buffer
	p.Dump(&buf)
	assert.T(t, strings.Contains(buf.String(), "ClientInterface::onChat"))
	assert.T(t, !strings.Contains(buf.String(), "onIdle"))
}

func TestTimingProfileDiff(t *testing.T) {
	m := opmon.NewMonitor()
	m.StartOperation("before").Finish(time.Hour)
	p := NewTimingProfile(m)
	m.StartOperation("during").Finish(time.Hour)
	m.StartOperation("during").Finish(time.Hour)

	diff := p.Diff()
	assert.Equal(t, 1, len(diff))
	assert.Equal(t, "during", diff[0].Name)
	assert.Equal(t, uint64(2), diff[0].Count)
}

func TestEventSessionReportsAfterWindow(t *testing.T) {
	events := NewEventProfile()
	events.RecordEvent("Avatar", "onChat", 100)

	sched := &manualScheduler{}
	var reported string
	s := StartSession("chat", KindEvent, time.Second*5, Sources{Events: events}, sched, func(s *Session, text string) {
		reported = text
	})
	events.RecordEvent("Avatar", "onChat", 8)
	events.RecordEvent("Avatar", "onMove", 4)

	assert.Equal(t, 1, len(sched.funcs))
	assert.Equal(t, time.Second*5, sched.delays[0])
	assert.T(t, !s.IsFinished())

	diff := s.EventDiff()
	assert.Equal(t, 2, len(diff))
	assert.Equal(t, uint64(1), diff[0].Count)
	assert.Equal(t, uint64(8), diff[0].Size)

	sched.funcs[0]()
	assert.T(t, s.IsFinished())
	assert.T(t, strings.Contains(reported, "profile chat (event)"))
	assert.T(t, strings.Contains(reported, "onMove"))
	assert.Equal(t, "", s.Finish())
}

func TestProcessSnapshot(t *testing.T) {
	snapshot, err := TakeProcessSnapshot(context.Background())
	assert.Equal(t, nil, err)
	assert.T(t, snapshot.Pid > 0)
	assert.T(t, snapshot.RSS > 0)
}
