package witness

import (
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/gomercury/engine/proto"
)

// Witness is the client view of an entity: it relays messages to the client and tells the client
// which neighbors enter and leave its AOI
type Witness struct {
	ifs           *proto.Interfaces
	relay         Relay
	maxPacketSize int
	node          *Node

	// NoFloat sends coordinates to the client as int32
	NoFloat bool
}

// NewWitness creates a witness relaying through relay
func NewWitness(ifs *proto.Interfaces, relay Relay, maxPacketSize int) *Witness {
	return &Witness{
		ifs:           ifs,
		relay:         relay,
		maxPacketSize: maxPacketSize,
	}
}

// Node returns the space node the witness is attached to, or nil
func (w *Witness) Node() *Node {
	return w.node
}

// SendToClient relays a finished bundle whose message h targets the client
func (w *Witness) SendToClient(h *msgcatalog.MessageHandler, b *bundle.Bundle) bool {
	if !b.IsFinished() {
		gwlog.Panicf("SendToClient: bundle of %s is not finished", h)
	}
	if consts.DEBUG_MAILBOX {
		gwlog.Debugf("%s: send %s to client, %d bytes", w, h, b.Len())
	}
	if !w.relay.Relay(b) {
		gwlog.Warnf("%s: relay of %s failed", w, h)
		return false
	}
	return true
}

// SendRawToClient relays bytes of finished client messages, such as the payload of a forward message
func (w *Witness) SendRawToClient(data []byte) bool {
	if !w.relay.RelayRaw(data) {
		gwlog.Warnf("%s: relay of %d raw bytes failed", w, len(data))
		return false
	}
	return true
}

func (w *Witness) String() string {
	if w.node == nil {
		return "Witness<detached>"
	}
	return "Witness<" + w.node.String() + ">"
}

func (w *Witness) newBundle() *bundle.Bundle {
	return bundle.NewBundle(w.maxPacketSize)
}

func (w *Witness) onEnterWorld(other *Node) {
	b := w.newBundle()
	defer b.Release()
	w.ifs.WriteEntityEnterWorld(b, other.EntityID, other.TypeID, func(pkt *netutil.Packet) {
		entitydef.AddPosDirToStream(pkt, other.Position, other.Direction, w.NoFloat)
	})
	w.SendToClient(w.ifs.ClientOnEntityEnterWorld, b)
}

func (w *Witness) onLeaveWorld(other *Node) {
	b := w.newBundle()
	defer b.Release()
	w.ifs.WriteEntityLeaveWorld(b, other.EntityID)
	w.SendToClient(w.ifs.ClientOnEntityLeaveWorld, b)
}
