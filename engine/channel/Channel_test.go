package channel

import (
	"net"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

type fakeEndpoint struct {
	failures []netutil.Reason
	attempts int
	sent     [][]byte
	closed   bool
	external bool
}

func (ep *fakeEndpoint) Send(data []byte) error {
	ep.attempts++
	if len(ep.failures) > 0 {
		reason := ep.failures[0]
		ep.failures = ep.failures[1:]
		return netutil.NewReasonError(reason, errors.New("injected"))
	}
	ep.sent = append(ep.sent, append([]byte(nil), data...))
	return nil
}

func (ep *fakeEndpoint) Recv() ([]byte, error) { return nil, net.ErrClosed }
func (ep *fakeEndpoint) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 20013}
}
func (ep *fakeEndpoint) LocalAddr() net.Addr { return nil }
func (ep *fakeEndpoint) Close() error        { ep.closed = true; return nil }
func (ep *fakeEndpoint) IsExternal() bool    { return ep.external }

type immediateScheduler struct {
	delays []time.Duration
}

func (s *immediateScheduler) AfterFunc(d time.Duration, f func()) {
	s.delays = append(s.delays, d)
	f()
}

type manualScheduler struct {
	pending []func()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.pending = append(s.pending, f)
}

func (s *manualScheduler) runAll() {
	pending := s.pending
	s.pending = nil
	for _, f := range pending {
		f()
	}
}

type recordingListener struct {
	reasons []netutil.Reason
}

func (l *recordingListener) OnChannelDeregister(ch *Channel, reason netutil.Reason) {
	l.reasons = append(l.reasons, reason)
}

func testConfig() config.ChannelConfig {
	return config.Default().ChannelInternal
}

func packetOf(s string) *netutil.Packet {
	return netutil.NewPacketFromBytes([]byte(s))
}

func TestSendSuccess(t *testing.T) {
	ep := &fakeEndpoint{}
	ch := NewChannel(ep, testConfig())
	assert.Equal(t, netutil.REASON_SUCCESS, ch.Send(packetOf("a")))
	assert.Equal(t, 1, ep.attempts)
	assert.Equal(t, "10.0.0.1:20013", ch.Addr())
	assert.Equal(t, uint64(1), ch.Stats().PacketsSent)
}

func TestPortClosedTwiceThenSuccess(t *testing.T) {
	ep := &fakeEndpoint{failures: []netutil.Reason{netutil.REASON_NO_SUCH_PORT, netutil.REASON_NO_SUCH_PORT}}
	sched := &immediateScheduler{}
	ch := NewChannel(ep, testConfig(), WithScheduler(sched))

	assert.Equal(t, netutil.REASON_SUCCESS, ch.Send(packetOf("hello")))
	assert.Equal(t, 3, ep.attempts)
	assert.Equal(t, 0, len(sched.delays)) // port closed retries immediately
	assert.Equal(t, [][]byte{[]byte("hello")}, ep.sent)
}

func TestResourceUnavailableGivesUpAfterFourAttempts(t *testing.T) {
	ep := &fakeEndpoint{failures: []netutil.Reason{
		netutil.REASON_RESOURCE_UNAVAILABLE, netutil.REASON_RESOURCE_UNAVAILABLE,
		netutil.REASON_RESOURCE_UNAVAILABLE, netutil.REASON_RESOURCE_UNAVAILABLE,
	}}
	sched := &immediateScheduler{}
	ch := NewChannel(ep, testConfig(), WithScheduler(sched))

	var final netutil.Reason = 1
	reason := ch.SendWithCallback(packetOf("x"), func(r netutil.Reason) { final = r })
	assert.Equal(t, netutil.REASON_RESOURCE_UNAVAILABLE, reason)
	assert.Equal(t, netutil.REASON_RESOURCE_UNAVAILABLE, final)
	assert.Equal(t, 4, ep.attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, sched.delays)
	assert.Equal(t, uint64(1), ch.Stats().SendFailures)
	assert.Equal(t, STATE_CONNECTED, ch.State())
}

func TestBackoffKeepsOrderAndDoesNotBlock(t *testing.T) {
	ep := &fakeEndpoint{failures: []netutil.Reason{netutil.REASON_GENERAL_NETWORK}}
	sched := &manualScheduler{}
	ch := NewChannel(ep, testConfig(), WithScheduler(sched))

	assert.Equal(t, netutil.REASON_SUCCESS, ch.Send(packetOf("1")))
	assert.Equal(t, netutil.REASON_SUCCESS, ch.Send(packetOf("2")))
	assert.Equal(t, 2, ch.SendQueueLen())
	assert.Equal(t, 0, len(ep.sent))

	sched.runAll()
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, ep.sent)
	assert.Equal(t, 0, ch.SendQueueLen())
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	ep := &fakeEndpoint{failures: []netutil.Reason{netutil.REASON_WINDOW_OVERFLOW}}
	ch := NewChannel(ep, testConfig(), WithScheduler(&immediateScheduler{}))
	assert.Equal(t, netutil.REASON_WINDOW_OVERFLOW, ch.Send(packetOf("big")))
	assert.Equal(t, 1, ep.attempts)
	assert.Equal(t, STATE_CONNECTED, ch.State())
}

func TestChannelLostKillsChannel(t *testing.T) {
	ep := &fakeEndpoint{failures: []netutil.Reason{netutil.REASON_CHANNEL_LOST}}
	l := &recordingListener{}
	ch := NewChannel(ep, testConfig(), WithListener(l))
	assert.Equal(t, netutil.REASON_CHANNEL_LOST, ch.Send(packetOf("x")))
	assert.Equal(t, STATE_DEAD, ch.State())
	assert.T(t, ep.closed)
	assert.Equal(t, []netutil.Reason{netutil.REASON_CHANNEL_LOST}, l.reasons)
}

func TestInactivityTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	ep := &fakeEndpoint{}
	l := &recordingListener{}
	cfg := testConfig()
	ch := NewChannel(ep, cfg, WithClock(func() time.Time { return now }), WithListener(l))

	assert.T(t, !ch.CheckInactivity(now.Add(cfg.Timeout/2)))
	now = now.Add(cfg.Timeout / 2)
	ch.OnPacketReceived(10)
	assert.T(t, !ch.CheckInactivity(now.Add(cfg.Timeout-time.Millisecond)))

	assert.T(t, ch.CheckInactivity(now.Add(cfg.Timeout)))
	assert.Equal(t, STATE_DEAD, ch.State())
	assert.T(t, ch.IsDead())
	assert.Equal(t, []netutil.Reason{netutil.REASON_INACTIVITY}, l.reasons)

	attempts := ep.attempts
	assert.Equal(t, netutil.REASON_CHANNEL_LOST, ch.Send(packetOf("late")))
	assert.Equal(t, attempts, ep.attempts)
	assert.T(t, !ch.CheckInactivity(now.Add(10*cfg.Timeout)))
	assert.Equal(t, 1, len(l.reasons))
}

func TestStopInactivityDetection(t *testing.T) {
	now := time.Unix(1000, 0)
	ch := NewChannel(&fakeEndpoint{}, testConfig(), WithClock(func() time.Time { return now }))
	ch.StopInactivityDetection()
	assert.T(t, !ch.CheckInactivity(now.Add(time.Hour)))
	ch.StartInactivityDetection()
	assert.T(t, ch.CheckInactivity(now.Add(time.Hour)))
}

func TestCondemnDrainsQueueThenDies(t *testing.T) {
	ep := &fakeEndpoint{failures: []netutil.Reason{netutil.REASON_RESOURCE_UNAVAILABLE}}
	sched := &manualScheduler{}
	l := &recordingListener{}
	ch := NewChannel(ep, testConfig(), WithScheduler(sched), WithListener(l))

	ch.Send(packetOf("in-flight"))
	ch.Condemn()
	assert.Equal(t, STATE_CONDEMNED, ch.State())
	assert.Equal(t, netutil.REASON_CHANNEL_CONDEMN, ch.Send(packetOf("new")))

	sched.runAll()
	assert.Equal(t, [][]byte{[]byte("in-flight")}, ep.sent)
	assert.Equal(t, STATE_DEAD, ch.State())
	assert.Equal(t, []netutil.Reason{netutil.REASON_CHANNEL_CONDEMN}, l.reasons)
}

func TestCorruptedPacketsCondemn(t *testing.T) {
	ch := NewChannel(&fakeEndpoint{}, testConfig())
	ch.OnCorruptedPacket()
	ch.OnGoodPacket()
	ch.OnCorruptedPacket()
	ch.OnCorruptedPacket()
	assert.Equal(t, STATE_CONNECTED, ch.State())
	ch.OnCorruptedPacket()
	assert.Equal(t, STATE_DEAD, ch.State()) // empty queue, condemned channels die at once
}
