package network

import (
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

const (
	_RESTART_TCP_SERVER_INTERVAL = 3 * time.Second
)

type inboundItem struct {
	ep        netutil.Endpoint
	data      []byte
	err       error
	connected bool
}

type channelEntry struct {
	ch     *channel.Channel
	reader *bundle.MessageReader
}

// NetworkInterface owns the channels of a process and dispatches inbound messages on the main loop
//
// Endpoints are read on their own goroutines, received packets wait in the inbound queue
// until ProcessInbound is called by the main loop.
type NetworkInterface struct {
	catalog  *msgcatalog.Catalog
	internal config.ChannelConfig
	external config.ChannelConfig
	opts     []channel.Option

	inbound   chan inboundItem
	channels  map[string]*channelEntry
	endpoints map[netutil.Endpoint]*channelEntry
	listeners []channel.Listener

	onRegister func(ch *channel.Channel)
	sweepTimer *timer.Timer
	clock      func() time.Time
}

// NewNetworkInterface creates a network interface dispatching inbound messages with catalog
//
// opts are applied to every channel, the interface itself is always the channel listener.
func NewNetworkInterface(catalog *msgcatalog.Catalog, internal, external config.ChannelConfig, opts ...channel.Option) *NetworkInterface {
	return &NetworkInterface{
		catalog:   catalog,
		internal:  internal,
		external:  external,
		opts:      opts,
		inbound:   make(chan inboundItem, consts.INBOUND_PACKET_QUEUE_SIZE),
		channels:  map[string]*channelEntry{},
		endpoints: map[netutil.Endpoint]*channelEntry{},
		clock:     time.Now,
	}
}

// Catalog returns the catalog of inbound messages
func (ni *NetworkInterface) Catalog() *msgcatalog.Catalog {
	return ni.catalog
}

// SetClock sets the time source of inactivity sweeps and of channels registered afterwards
func (ni *NetworkInterface) SetClock(clock func() time.Time) {
	ni.clock = clock
	ni.opts = append(ni.opts, channel.WithClock(clock))
}

// OnRegister sets the function called for every channel registered
func (ni *NetworkInterface) OnRegister(f func(ch *channel.Channel)) {
	ni.onRegister = f
}

// AddListener adds a listener notified when channels are deregistered
func (ni *NetworkInterface) AddListener(l channel.Listener) {
	ni.listeners = append(ni.listeners, l)
}

// RegisterChannel creates the channel of ep, it must be called on the main loop
func (ni *NetworkInterface) RegisterChannel(ep netutil.Endpoint) *channel.Channel {
	if entry := ni.endpoints[ep]; entry != nil {
		return entry.ch
	}
	cfg := ni.internal
	if ep.IsExternal() {
		cfg = ni.external
	}
	opts := append(append([]channel.Option(nil), ni.opts...), channel.WithListener(ni))
	ch := channel.NewChannel(ep, cfg, opts...)
	if old := ni.channels[ch.Addr()]; old != nil {
		gwlog.Warnf("%s: replacing channel %s of the same address", ni, old.ch)
		old.ch.Destroy(netutil.REASON_CHANNEL_LOST)
	}

	entry := &channelEntry{
		ch:     ch,
		reader: bundle.NewMessageReader(ni.catalog),
	}
	ni.channels[ch.Addr()] = entry
	ni.endpoints[ep] = entry
	gwlog.Infof("%s: channel %s registered", ni, ch)
	if ni.onRegister != nil {
		gwutils.RunPanicless(func() {
			ni.onRegister(ch)
		})
	}
	return ch
}

// OnChannelDeregister implements channel.Listener
func (ni *NetworkInterface) OnChannelDeregister(ch *channel.Channel, reason netutil.Reason) {
	if entry := ni.channels[ch.Addr()]; entry != nil && entry.ch == ch {
		delete(ni.channels, ch.Addr())
	}
	delete(ni.endpoints, ch.Endpoint())
	gwlog.Infof("%s: channel %s deregistered: %s", ni, ch, reason)
	for _, l := range ni.listeners {
		l := l
		gwutils.RunPanicless(func() {
			l.OnChannelDeregister(ch, reason)
		})
	}
}

// FindChannel returns the channel of the peer address, or nil
func (ni *NetworkInterface) FindChannel(addr string) *channel.Channel {
	if entry := ni.channels[addr]; entry != nil {
		return entry.ch
	}
	return nil
}

// NumChannels returns the number of registered channels
func (ni *NetworkInterface) NumChannels() int {
	return len(ni.channels)
}

// Channels returns the registered channels ordered by address
func (ni *NetworkInterface) Channels() []*channel.Channel {
	res := make([]*channel.Channel, 0, len(ni.channels))
	for _, entry := range ni.channels {
		res = append(res, entry.ch)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Addr() < res[j].Addr()
	})
	return res
}

func (ni *NetworkInterface) String() string {
	return "NetworkInterface<" + ni.catalog.Name() + ">"
}

// Inbound queue, the following methods are safe to call from any goroutine

// Accept registers ep on the main loop and starts reading it
func (ni *NetworkInterface) Accept(ep netutil.Endpoint) {
	ni.inbound <- inboundItem{ep: ep, connected: true}
	go netutil.ServeEndpoint(ep, ni)
}

// OnEndpointPacket implements netutil.RecvHandler
func (ni *NetworkInterface) OnEndpointPacket(ep netutil.Endpoint, data []byte) {
	ni.inbound <- inboundItem{ep: ep, data: append([]byte(nil), data...)}
}

// OnEndpointError implements netutil.RecvHandler
func (ni *NetworkInterface) OnEndpointError(ep netutil.Endpoint, err error) {
	ni.inbound <- inboundItem{ep: ep, err: err}
}

// PendingInbound returns the number of items waiting in the inbound queue
func (ni *NetworkInterface) PendingInbound() int {
	return len(ni.inbound)
}

// ProcessInbound handles every queued item, it returns the number of items handled
func (ni *NetworkInterface) ProcessInbound() int {
	n := 0
	for {
		select {
		case item := <-ni.inbound:
			ni.handleInbound(item)
			n++
		default:
			return n
		}
	}
}

func (ni *NetworkInterface) handleInbound(item inboundItem) {
	if item.connected {
		ni.RegisterChannel(item.ep)
		return
	}

	entry := ni.endpoints[item.ep]
	if entry == nil {
		if consts.DEBUG_CHANNELS {
			gwlog.Debugf("%s: dropping inbound item of unregistered endpoint %s", ni, item.ep.RemoteAddr())
		}
		return
	}
	if item.err != nil {
		reason := netutil.ReasonFromError(item.err)
		if entry.ch.IsExternal() {
			reason = netutil.REASON_CLIENT_DISCONNECTED
		}
		entry.ch.Destroy(reason)
		return
	}
	ni.processPacket(entry, item.data)
}

// processPacket dispatches the messages of one packet received on the channel of entry
func (ni *NetworkInterface) processPacket(entry *channelEntry, data []byte) {
	ch := entry.ch
	if ch.IsDead() {
		return
	}
	ch.OnPacketReceived(len(data))
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv %d bytes from %s", ni, len(data), ch)
	}

	corrupted := false
	err := entry.reader.Feed(data, func(h *msgcatalog.MessageHandler, payload *netutil.Packet) {
		if corrupted {
			return
		}
		if ch.IsExternal() && !h.Exposed {
			gwlog.Errorf("%s: %s is not exposed to %s", ni, h, ch)
			corrupted = true
			return
		}
		if h.Handler == nil {
			gwlog.Warnf("%s: %s has no handler, dropped", ni, h)
			return
		}
		if netutil.CatchUnderflow(func() {
			h.Handler(ch, payload)
		}) {
			gwlog.Errorf("%s: %s from %s is truncated", ni, h, ch)
			corrupted = true
		}
	})
	if err != nil {
		gwlog.Errorf("%s: %s from %s: %v", ni, netutil.REASON_CORRUPTED_PACKET, ch, err)
		corrupted = true
	}

	if corrupted {
		entry.reader.Reset()
		ch.OnCorruptedPacket()
	} else {
		ch.OnGoodPacket()
	}
}

// Inactivity sweep

// StartInactivitySweep checks channel inactivity every interval on goTimer
func (ni *NetworkInterface) StartInactivitySweep(interval time.Duration) {
	if ni.sweepTimer != nil {
		return
	}
	if interval <= 0 {
		interval = consts.CHANNEL_INACTIVITY_CHECK_INTERVAL
	}
	ni.sweepTimer = timer.AddTimer(interval, ni.CheckInactivity)
}

// StopInactivitySweep stops the inactivity sweep
func (ni *NetworkInterface) StopInactivitySweep() {
	if ni.sweepTimer != nil {
		ni.sweepTimer.Cancel()
		ni.sweepTimer = nil
	}
}

// CheckInactivity times out channels that received nothing within their timeout
func (ni *NetworkInterface) CheckInactivity() {
	now := ni.clock()
	for _, ch := range ni.Channels() {
		ch.CheckInactivity(now)
	}
}

// Close destroys every channel
func (ni *NetworkInterface) Close() {
	ni.StopInactivitySweep()
	for _, ch := range ni.Channels() {
		ch.Destroy(netutil.REASON_SHUTTING_DOWN)
	}
}

// Connections

// ConnectTCP dials an internal peer and registers its channel, it must be called on the main loop
func (ni *NetworkInterface) ConnectTCP(addr string) (*channel.Channel, error) {
	ep, err := netutil.DialTCP(addr)
	if err != nil {
		return nil, err
	}
	ch := ni.RegisterChannel(ep)
	go netutil.ServeEndpoint(ep, ni)
	return ch, nil
}

// ConnectUDP dials an internal peer over plain datagrams and registers its channel, it must be called on the main loop
func (ni *NetworkInterface) ConnectUDP(addr string) (*channel.Channel, error) {
	ep, err := netutil.DialUDP(addr, false)
	if err != nil {
		return nil, err
	}
	ch := ni.RegisterChannel(ep)
	go netutil.ServeEndpoint(ep, ni)
	return ch, nil
}

// ServeTCPForever serves internal peers on addr, restarting the listener when it fails
func (ni *NetworkInterface) ServeTCPForever(addr string) {
	for {
		err := ni.ServeTCP(addr)
		gwlog.Errorf("%s: tcp server@%s failed with error: %v, will restart after %s", ni, addr, err, _RESTART_TCP_SERVER_INTERVAL)
		time.Sleep(_RESTART_TCP_SERVER_INTERVAL)
	}
}

// ServeTCP accepts internal peers on addr until the listener fails
func (ni *NetworkInterface) ServeTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen tcp")
	}
	defer ln.Close()
	gwlog.Infof("%s: listening on tcp %s", ni, ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if netutil.IsTimeoutError(err) {
				continue
			}
			return errors.Wrap(err, "accept tcp")
		}
		ni.Accept(netutil.NewTCPEndpoint(conn, false))
	}
}

// ServeExternal accepts clients on addr with the transport kind (kcp or websocket)
func (ni *NetworkInterface) ServeExternal(kind string, addr string) error {
	gwlog.Infof("%s: listening on %s %s", ni, kind, addr)
	switch kind {
	case "kcp":
		return netutil.ListenKCP(addr, ni.external.ResendInterval, func(ep *netutil.KCPEndpoint) {
			ni.Accept(ep)
		})
	case "websocket":
		return http.ListenAndServe(addr, netutil.WebSocketHandler(func(ep *netutil.WebSocketEndpoint) {
			ni.Accept(ep)
		}))
	}
	return errors.Errorf("%s: can not serve clients over %s", ni, kind)
}
