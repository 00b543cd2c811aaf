package channel

import (
	"fmt"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// State is the lifecycle state of a channel
type State int

const (
	// STATE_CONNECTED channels send and receive
	STATE_CONNECTED State = iota
	// STATE_INACTIVITY_TIMED_OUT channels received nothing for too long
	STATE_INACTIVITY_TIMED_OUT
	// STATE_CONDEMNED channels refuse new traffic and drain queued packets
	STATE_CONDEMNED
	// STATE_DEAD channels refuse everything
	STATE_DEAD
)

func (s State) String() string {
	switch s {
	case STATE_CONNECTED:
		return "Connected"
	case STATE_INACTIVITY_TIMED_OUT:
		return "InactivityTimedOut"
	case STATE_CONDEMNED:
		return "Condemned"
	case STATE_DEAD:
		return "Dead"
	}
	return fmt.Sprintf("State<%d>", int(s))
}

// Listener is notified once when a channel is deregistered
type Listener interface {
	OnChannelDeregister(ch *Channel, reason netutil.Reason)
}

// SendCallback receives the final result of one packet
type SendCallback func(reason netutil.Reason)

type sendItem struct {
	pkt      *netutil.Packet
	attempts int
	done     SendCallback
}

// Stats holds channel counters
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	SendAttempts    uint64
	SendFailures    uint64
}

// Channel is an ordered session with one peer over an endpoint
//
// All methods except IsDestroyed must be called on the main loop.
type Channel struct {
	addr      string
	endpoint  netutil.Endpoint
	cfg       config.ChannelConfig
	scheduler Scheduler
	listener  Listener
	clock     func() time.Time

	state           State
	inactivityCheck bool
	lastRecvTime    time.Time

	sendQueue      []*sendItem
	waitingBackoff bool
	destroyed      xnsyncutil.AtomicBool

	corruptedPackets int
	stats            Stats

	// Tag is owned by the application, e.g. the component or entity behind the channel
	Tag interface{}
}

// Option customizes a new channel
type Option func(ch *Channel)

// WithScheduler sets the scheduler of send retries
func WithScheduler(s Scheduler) Option {
	return func(ch *Channel) { ch.scheduler = s }
}

// WithClock sets the time source of inactivity checks
func WithClock(clock func() time.Time) Option {
	return func(ch *Channel) { ch.clock = clock }
}

// WithListener sets the deregistration listener
func WithListener(l Listener) Option {
	return func(ch *Channel) { ch.listener = l }
}

// NewChannel creates a connected channel, cfg is the internal or external channel config
func NewChannel(endpoint netutil.Endpoint, cfg config.ChannelConfig, opts ...Option) *Channel {
	ch := &Channel{
		endpoint:        endpoint,
		cfg:             cfg,
		scheduler:       TimerScheduler(),
		clock:           time.Now,
		state:           STATE_CONNECTED,
		inactivityCheck: true,
	}
	if addr := endpoint.RemoteAddr(); addr != nil {
		ch.addr = addr.String()
	}
	for _, opt := range opts {
		opt(ch)
	}
	ch.lastRecvTime = ch.clock()
	return ch
}

func (ch *Channel) String() string {
	kind := "internal"
	if ch.IsExternal() {
		kind = "external"
	}
	return fmt.Sprintf("Channel<%s|%s|%s>", ch.addr, kind, ch.state)
}

// Addr returns the peer address
func (ch *Channel) Addr() string {
	return ch.addr
}

// Endpoint returns the transport endpoint
func (ch *Channel) Endpoint() netutil.Endpoint {
	return ch.endpoint
}

// IsExternal returns if the peer is a client
func (ch *Channel) IsExternal() bool {
	return ch.endpoint.IsExternal()
}

// State returns the lifecycle state
func (ch *Channel) State() State {
	return ch.state
}

// IsDead returns if the channel refuses sends, it is checked by every send path
func (ch *Channel) IsDead() bool {
	return ch.state != STATE_CONNECTED
}

// IsDestroyed can be called from any goroutine
func (ch *Channel) IsDestroyed() bool {
	return ch.destroyed.Load()
}

// Stats returns a copy of the channel counters
func (ch *Channel) Stats() Stats {
	return ch.stats
}

// SendQueueLen returns the number of packets waiting to be sent
func (ch *Channel) SendQueueLen() int {
	return len(ch.sendQueue)
}

// Send queues pkt and tries to send it right away, the channel owns pkt afterwards
//
// The returned reason is the final result if it is known before Send returns,
// REASON_SUCCESS otherwise.
func (ch *Channel) Send(pkt *netutil.Packet) netutil.Reason {
	return ch.SendWithCallback(pkt, nil)
}

// SendWithCallback is Send with a callback receiving the final result
func (ch *Channel) SendWithCallback(pkt *netutil.Packet, cb SendCallback) netutil.Reason {
	if ch.state != STATE_CONNECTED {
		reason := ch.refuseReason()
		pkt.Release()
		if cb != nil {
			cb(reason)
		}
		return reason
	}
	if len(ch.sendQueue) >= consts.CHANNEL_SEND_QUEUE_MAX_LEN {
		gwlog.Warnf("%s: send queue is full, packet of %d bytes discarded", ch, pkt.Len())
		pkt.Release()
		ch.stats.SendFailures++
		if cb != nil {
			cb(netutil.REASON_TRANSMIT_QUEUE_FULL)
		}
		return netutil.REASON_TRANSMIT_QUEUE_FULL
	}

	result := netutil.REASON_SUCCESS
	ch.sendQueue = append(ch.sendQueue, &sendItem{
		pkt: pkt,
		done: func(reason netutil.Reason) {
			result = reason
			if cb != nil {
				cb(reason)
			}
		},
	})
	ch.flush()
	return result
}

func (ch *Channel) refuseReason() netutil.Reason {
	switch ch.state {
	case STATE_CONDEMNED:
		return netutil.REASON_CHANNEL_CONDEMN
	case STATE_INACTIVITY_TIMED_OUT:
		return netutil.REASON_INACTIVITY
	}
	return netutil.REASON_CHANNEL_LOST
}

// flush sends queued packets in order until the queue is empty or the head waits for a backoff
func (ch *Channel) flush() {
	for len(ch.sendQueue) > 0 && !ch.waitingBackoff {
		if ch.state == STATE_DEAD || ch.state == STATE_INACTIVITY_TIMED_OUT {
			ch.failQueued(ch.refuseReason())
			return
		}

		item := ch.sendQueue[0]
		item.attempts++
		ch.stats.SendAttempts++
		err := ch.endpoint.Send(item.pkt.Data())
		if err == nil {
			ch.stats.PacketsSent++
			ch.stats.BytesSent += uint64(item.pkt.Len())
			if consts.DEBUG_PACKETS {
				gwlog.Debugf("%s: sent %d bytes after %d attempts", ch, item.pkt.Len(), item.attempts)
			}
			ch.popHead(netutil.REASON_SUCCESS)
			continue
		}

		reason := netutil.ReasonFromError(err)
		if reason.IsRetryable() && item.attempts <= ch.cfg.SendRetries {
			if reason.NeedsBackoff() {
				ch.waitingBackoff = true
				ch.scheduler.AfterFunc(ch.cfg.SendBackoff, ch.onBackoffExpired)
				return
			}
			continue
		}

		gwlog.Errorf("%s: send failed after %d attempts, packet of %d bytes discarded: %s (%v)",
			ch, item.attempts, item.pkt.Len(), reason, err)
		ch.stats.SendFailures++
		ch.popHead(reason)

		if reason == netutil.REASON_CHANNEL_LOST {
			ch.Destroy(reason)
			return
		}
	}

	if ch.state == STATE_CONDEMNED && len(ch.sendQueue) == 0 && !ch.waitingBackoff {
		ch.Destroy(netutil.REASON_CHANNEL_CONDEMN)
	}
}

func (ch *Channel) onBackoffExpired() {
	ch.waitingBackoff = false
	ch.flush()
}

func (ch *Channel) popHead(reason netutil.Reason) {
	item := ch.sendQueue[0]
	ch.sendQueue[0] = nil
	ch.sendQueue = ch.sendQueue[1:]
	item.pkt.Release()
	item.done(reason)
}

func (ch *Channel) failQueued(reason netutil.Reason) {
	for len(ch.sendQueue) > 0 {
		ch.stats.SendFailures++
		ch.popHead(reason)
	}
}

// OnPacketReceived records inbound traffic and resets the inactivity timer
func (ch *Channel) OnPacketReceived(size int) {
	ch.lastRecvTime = ch.clock()
	ch.stats.PacketsReceived++
	ch.stats.BytesReceived += uint64(size)
}

// OnCorruptedPacket counts a bad packet and condemns the channel when they keep coming
func (ch *Channel) OnCorruptedPacket() {
	ch.corruptedPackets++
	if ch.corruptedPackets >= consts.MAX_CORRUPTED_PACKETS && ch.state == STATE_CONNECTED {
		gwlog.Errorf("%s: %d corrupted packets, condemned", ch, ch.corruptedPackets)
		ch.Condemn()
	}
}

// OnGoodPacket resets the corrupted packet counter
func (ch *Channel) OnGoodPacket() {
	ch.corruptedPackets = 0
}

// StopInactivityDetection keeps the channel alive without traffic
func (ch *Channel) StopInactivityDetection() {
	ch.inactivityCheck = false
}

// StartInactivityDetection restarts inactivity checks from now
func (ch *Channel) StartInactivityDetection() {
	ch.inactivityCheck = true
	ch.lastRecvTime = ch.clock()
}

// CheckInactivity times out the channel if nothing was received within the timeout
func (ch *Channel) CheckInactivity(now time.Time) bool {
	if ch.state != STATE_CONNECTED || !ch.inactivityCheck {
		return false
	}
	if now.Sub(ch.lastRecvTime) < ch.cfg.Timeout {
		return false
	}

	gwlog.Warnf("%s: timed out, nothing received for %s", ch, now.Sub(ch.lastRecvTime))
	ch.state = STATE_INACTIVITY_TIMED_OUT
	ch.Destroy(netutil.REASON_INACTIVITY)
	return true
}

// Condemn refuses new traffic, queued packets are still sent before the channel dies
func (ch *Channel) Condemn() {
	if ch.state != STATE_CONNECTED {
		return
	}
	if consts.DEBUG_CHANNELS {
		gwlog.Debugf("%s: condemned", ch)
	}
	ch.state = STATE_CONDEMNED
	ch.flush()
}

// Destroy kills the channel, closes the endpoint and notifies the listener once
func (ch *Channel) Destroy(reason netutil.Reason) {
	if ch.destroyed.Load() {
		return
	}
	ch.state = STATE_DEAD
	ch.destroyed.Store(true)
	ch.failQueued(reason)

	if err := ch.endpoint.Close(); err != nil && consts.DEBUG_CHANNELS {
		gwlog.Debugf("%s: close endpoint: %v", ch, err)
	}
	if consts.DEBUG_CHANNELS {
		gwlog.Debugf("%s: destroyed: %s", ch, reason)
	}
	if ch.listener != nil {
		ch.listener.OnChannelDeregister(ch, reason)
	}
}
