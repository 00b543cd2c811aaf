package witness

import (
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// Relay carries finished client bundles toward the client
type Relay interface {
	Relay(b *bundle.Bundle) bool
	// RelayRaw carries bytes of finished client messages, as received in a forward message
	RelayRaw(data []byte) bool
}

// ChannelRelay sends straight to the client channel, used on the baseapp owning the proxy
type ChannelRelay struct {
	Channel *channel.Channel
}

// Relay sends b to the client channel
func (r ChannelRelay) Relay(b *bundle.Bundle) bool {
	if r.Channel == nil || r.Channel.IsDead() {
		return false
	}
	if reason := b.Send(r.Channel); reason != netutil.REASON_SUCCESS {
		gwlog.Warnf("ChannelRelay: send to %s failed: %s", r.Channel, reason)
	}
	return true
}

// RelayRaw sends finished message bytes to the client channel
func (r ChannelRelay) RelayRaw(data []byte) bool {
	if r.Channel == nil || r.Channel.IsDead() {
		return false
	}
	if reason := r.Channel.Send(netutil.NewPacketFromBytes(data)); reason != netutil.REASON_SUCCESS {
		gwlog.Warnf("ChannelRelay: send to %s failed: %s", r.Channel, reason)
	}
	return true
}

// BaseRelay wraps client bundles in a forward message to the base, used on cellapps
type BaseRelay struct {
	Base          *mailbox.Mailbox
	Forward       *msgcatalog.MessageHandler
	MaxPacketSize int
}

// Relay posts b to the base of the entity, which forwards it to the client
func (r BaseRelay) Relay(b *bundle.Bundle) bool {
	fb := bundle.NewBundle(r.MaxPacketSize)
	defer fb.Release()
	fb.NewForwardToClient(r.Forward, r.Base.EntityID, b)
	return r.Base.PostMail(fb)
}

// RelayRaw posts finished message bytes to the base of the entity
func (r BaseRelay) RelayRaw(data []byte) bool {
	fb := bundle.NewBundle(r.MaxPacketSize)
	defer fb.Release()
	fb.NewMessage(r.Forward)
	fb.AppendInt32(int32(r.Base.EntityID))
	fb.AppendBytes(data)
	fb.Finish(true)
	return r.Base.PostMail(fb)
}
