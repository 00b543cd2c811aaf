package mailbox

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/components"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/gomercury/engine/proto"
)

// TRANSFER_SIZE is the size of a packed mailbox
const TRANSFER_SIZE = 8 + 8 + 4 + 2

// Router resolves messages and channels of mailboxes
type Router struct {
	Interfaces *proto.Interfaces
	Components *components.Registry
	// DirectChannel returns the channel of mailboxes not routed through the component registry:
	// client mailboxes on a server and server mailboxes on a client
	DirectChannel func(mb *Mailbox) *channel.Channel
}

// NewMailbox creates a mailbox bound to the router
func (r *Router) NewMailbox(entityID common.EntityID, componentID common.ComponentID, typeID common.EntityTypeID, role common.EntityRole) *Mailbox {
	return &Mailbox{
		EntityID:    entityID,
		ComponentID: componentID,
		TypeID:      typeID,
		Role:        role,
		router:      r,
	}
}

// Attach binds a decoded mailbox to the router
func (r *Router) Attach(mb *Mailbox) *Mailbox {
	mb.router = r
	return mb
}

// Mailbox addresses one part (cell, base or client) of an entity that may live in another process
type Mailbox struct {
	EntityID    common.EntityID
	ComponentID common.ComponentID
	TypeID      common.EntityTypeID
	Role        common.EntityRole

	router *Router
}

func (mb *Mailbox) String() string {
	return fmt.Sprintf("Mailbox<%s:%d@%d>", mb.Role, mb.EntityID, mb.ComponentID)
}

// Equal returns if two mailboxes address the same endpoint
func (mb *Mailbox) Equal(other *Mailbox) bool {
	return mb.EntityID == other.EntityID && mb.ComponentID == other.ComponentID && mb.Role == other.Role
}

// IsClient returns if the mailbox addresses a client mirror
func (mb *Mailbox) IsClient() bool {
	return mb.Role == common.ROLE_CLIENT
}

// Router returns the router of the mailbox, or nil for unattached mailboxes
func (mb *Mailbox) Router() *Router {
	return mb.router
}

func (mb *Mailbox) assureRouter(op string) *Router {
	if mb.router == nil {
		gwlog.Panicf("%s.%s: mailbox is not attached to a router", mb, op)
	}
	return mb.router
}

// outboundMessage resolves the message opening mail to mb, withRole tells if the role follows the entity id
func (mb *Mailbox) outboundMessage() (h *msgcatalog.MessageHandler, withRole bool) {
	ifs := mb.assureRouter("NewOutboundMessage").Interfaces
	if mb.Role == common.ROLE_CLIENT {
		return ifs.ClientOnRemoteMethodCall, false
	}

	if mb.ComponentID == 0 {
		switch mb.Role {
		case common.ROLE_BASE:
			return ifs.BaseappOnRemoteMethodCall, false
		case common.ROLE_CELL:
			return ifs.BaseappOnRemoteCallCellMethodFromClient, false
		}
		gwlog.Errorf("%s.NewOutboundMessage: invalid role", mb)
		return nil, false
	}

	info := mb.router.Components.FindComponent(mb.ComponentID)
	if info == nil {
		gwlog.Errorf("%s.NewOutboundMessage: component %d not found", mb, mb.ComponentID)
		return nil, false
	}
	h = ifs.EntityMailHandler(info.Type)
	if h == nil {
		gwlog.Errorf("%s.NewOutboundMessage: component %s does not take entity mail", mb, info)
		return nil, false
	}
	return h, true
}

// NewOutboundMessage opens a message in b carrying mail to mb
//
// The method payload is appended by the caller. Returns false with the bundle untouched if
// the target can not be resolved.
func (mb *Mailbox) NewOutboundMessage(b *bundle.Bundle) bool {
	h, withRole := mb.outboundMessage()
	if h == nil {
		return false
	}
	b.NewMessage(h)
	b.AppendInt32(int32(mb.EntityID))
	if withRole {
		b.AppendUint16(uint16(mb.Role))
	}
	if consts.DEBUG_MAILBOX {
		gwlog.Debugf("%s.NewOutboundMessage: %s", mb, h)
	}
	return true
}

// Channel returns the channel mail to mb goes through, or nil
func (mb *Mailbox) Channel() *channel.Channel {
	r := mb.assureRouter("Channel")
	if mb.Role == common.ROLE_CLIENT || mb.ComponentID == 0 {
		if r.DirectChannel == nil {
			return nil
		}
		return r.DirectChannel(mb)
	}
	if info := r.Components.FindComponent(mb.ComponentID); info != nil {
		return info.Channel
	}
	return nil
}

// PostMail sends a finished bundle to the channel of mb
//
// Returns false if the channel is missing or dead, the bundle is not sent in that case.
func (mb *Mailbox) PostMail(b *bundle.Bundle) bool {
	ch := mb.Channel()
	if ch == nil || ch.IsDead() {
		addr := "<nil>"
		if ch != nil {
			addr = ch.Addr()
		}
		gwlog.Errorf("%s.PostMail: invalid channel %s", mb, addr)
		return false
	}
	if reason := b.Send(ch); reason != netutil.REASON_SUCCESS {
		gwlog.Warnf("%s.PostMail: send to %s failed: %s", mb, ch.Addr(), reason)
	}
	return true
}

// PackTransfer appends the transfer tuple (entity id, component id, type id, role) to pkt
func (mb *Mailbox) PackTransfer(pkt *netutil.Packet) {
	pkt.AppendInt64(int64(mb.EntityID))
	pkt.AppendUint64(uint64(mb.ComponentID))
	pkt.AppendUint32(uint32(mb.TypeID))
	pkt.AppendInt16(int16(mb.Role))
}

// UnpackTransfer reads a transfer tuple written by PackTransfer, the mailbox is not attached
func UnpackTransfer(pkt *netutil.Packet) (*Mailbox, error) {
	if pkt.Remaining() < TRANSFER_SIZE {
		return nil, errors.Errorf("mailbox transfer needs %d bytes, %d remaining", TRANSFER_SIZE, pkt.Remaining())
	}
	entityID, componentID, typeID, role := pkt.ReadInt64(), pkt.ReadUint64(), pkt.ReadUint32(), pkt.ReadInt16()
	mb := &Mailbox{}
	if err := mb.setTransfer(entityID, componentID, typeID, role); err != nil {
		return nil, errors.Wrap(err, "mailbox transfer")
	}
	return mb, nil
}

// setTransfer fills mb from the wide fields of a transfer tuple, out of range values are refused
func (mb *Mailbox) setTransfer(entityID int64, componentID uint64, typeID uint32, role int16) error {
	if entityID < math.MinInt32 || entityID > math.MaxInt32 {
		return errors.Errorf("entity id %d out of range", entityID)
	}
	if typeID > math.MaxUint16 {
		return errors.Errorf("type id %d out of range", typeID)
	}
	if !common.EntityRole(role).IsValid() {
		return errors.Errorf("invalid role %d", role)
	}
	mb.EntityID = common.EntityID(entityID)
	mb.ComponentID = common.ComponentID(componentID)
	mb.TypeID = common.EntityTypeID(typeID)
	mb.Role = common.EntityRole(role)
	return nil
}

var _ msgpack.CustomEncoder = (*Mailbox)(nil)
var _ msgpack.CustomDecoder = (*Mailbox)(nil)

// EncodeMsgpack encodes the transfer tuple as a msgpack array
func (mb *Mailbox) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(int64(mb.EntityID), uint64(mb.ComponentID), uint32(mb.TypeID), int16(mb.Role))
}

// DecodeMsgpack decodes the transfer tuple written by EncodeMsgpack
func (mb *Mailbox) DecodeMsgpack(dec *msgpack.Decoder) error {
	var entityID int64
	var componentID uint64
	var typeID uint32
	var role int16
	if err := dec.DecodeMulti(&entityID, &componentID, &typeID, &role); err != nil {
		return errors.Wrap(err, "decode mailbox")
	}
	return errors.Wrap(mb.setTransfer(entityID, componentID, typeID, role), "decode mailbox")
}
