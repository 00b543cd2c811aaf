package remotemethod

import (
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/callbackmgr"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/gomercury/engine/profile"
	"github.com/xiaonanln/gomercury/engine/proto"
)

// Witness relays messages to the client attached to a local entity
type Witness interface {
	SendToClient(h *msgcatalog.MessageHandler, b *bundle.Bundle) bool
}

// Entities finds the client witness of local entities
type Entities interface {
	// FindWitness returns the type name and the witness of a local entity, w is nil if the entity
	// does not exist here or has no client attached
	FindWitness(id common.EntityID) (entityType string, w Witness)
}

// Dispatcher turns method calls on mailboxes into mail
type Dispatcher struct {
	Entities      Entities
	Tracker       profile.Tracker
	Callbacks     *callbackmgr.Manager
	MaxPacketSize int
}

// NewDispatcher creates a dispatcher, entities and tracker may be nil
func NewDispatcher(entities Entities, tracker profile.Tracker, callbacks *callbackmgr.Manager, maxPacketSize int) *Dispatcher {
	if tracker == nil {
		tracker = profile.NopTracker{}
	}
	if maxPacketSize <= 0 {
		maxPacketSize = consts.PACKET_MAX_SIZE_TCP
	}
	return &Dispatcher{
		Entities:      entities,
		Tracker:       tracker,
		Callbacks:     callbacks,
		MaxPacketSize: maxPacketSize,
	}
}

// Call calls method md of the entity part addressed by mb
//
// Arguments are checked against the method signature before anything is written, a failed check
// leaves no trace. A client mailbox of a local entity with a witness is served by the witness
// directly, everything else is posted as mail.
func (d *Dispatcher) Call(mb *mailbox.Mailbox, md *entitydef.MethodDescription, args ...interface{}) error {
	args, err := d.checkCall(mb, md, args)
	if err != nil {
		return err
	}
	return d.send(mb, md, args)
}

// CallWithReply calls md with a callback id as its first argument, cb is run with the reply data
//
// The first declared argument of md must be UINT32. The callback is not registered if the call
// can not be sent.
func (d *Dispatcher) CallWithReply(mb *mailbox.Mailbox, md *entitydef.MethodDescription, cb callbackmgr.Callback, timeout time.Duration, args ...interface{}) (callbackmgr.CallbackID, error) {
	if d.Callbacks == nil {
		return 0, errors.Errorf("%s.%s: dispatcher has no callback registry", mb, md.Name)
	}
	if len(md.Args) == 0 || md.Args[0] != entitydef.UINT32 {
		return 0, errors.Errorf("%s.%s: first argument is not a callback id", mb, md.Name)
	}

	callArgs := append([]interface{}{uint32(0)}, args...)
	callArgs, err := d.checkCall(mb, md, callArgs)
	if err != nil {
		return 0, err
	}

	id := d.Callbacks.Save(cb, timeout)
	callArgs[0] = uint32(id)
	if err := d.send(mb, md, callArgs); err != nil {
		d.Callbacks.Take(id)
		return 0, err
	}
	return id, nil
}

func (d *Dispatcher) checkCall(mb *mailbox.Mailbox, md *entitydef.MethodDescription, args []interface{}) ([]interface{}, error) {
	if md.Role != mb.Role {
		return nil, errors.Errorf("%s.%s: method belongs to %s", mb, md.Name, md.Role)
	}
	args, err := md.CheckArgs(args)
	if err != nil {
		return nil, errors.Wrapf(err, "%s.%s", mb, md.Name)
	}
	return args, nil
}

func (d *Dispatcher) send(mb *mailbox.Mailbox, md *entitydef.MethodDescription, args []interface{}) error {
	if mb.IsClient() && d.Entities != nil {
		if entityType, w := d.Entities.FindWitness(mb.EntityID); w != nil {
			return d.sendThroughWitness(mb, md, args, entityType, w)
		}
	}
	return d.sendMail(mb, md, args)
}

func (d *Dispatcher) sendMail(mb *mailbox.Mailbox, md *entitydef.MethodDescription, args []interface{}) error {
	b := bundle.NewBundle(d.MaxPacketSize)
	defer b.Release()

	if !mb.NewOutboundMessage(b) {
		return errors.Errorf("%s.%s: mailbox can not be routed", mb, md.Name)
	}
	md.AddToStream(b.Payload(), args)
	b.Finish(true)
	if !mb.PostMail(b) {
		return errors.Errorf("%s.%s: mailbox has no live channel", mb, md.Name)
	}
	return nil
}

func (d *Dispatcher) sendThroughWitness(mb *mailbox.Mailbox, md *entitydef.MethodDescription, args []interface{}, entityType string, w Witness) error {
	b := bundle.NewBundle(d.MaxPacketSize)
	defer b.Release()

	if !mb.NewOutboundMessage(b) {
		return errors.Errorf("%s.%s: mailbox can not be routed", mb, md.Name)
	}
	h := b.CurrentMessage()
	md.AddToStream(b.Payload(), args)
	b.Finish(true)
	size := b.LastMessageSize()
	if !w.SendToClient(h, b) {
		return errors.Errorf("%s.%s: send to client failed", mb, md.Name)
	}
	d.Tracker.RecordEvent(entityType, md.Name, size)
	return nil
}

// Reply answers a call made with CallWithReply, to addresses the server entity part that made the call
func (d *Dispatcher) Reply(to *mailbox.Mailbox, callbackID uint32, data interface{}) error {
	r := to.Router()
	if r == nil || to.IsClient() || to.ComponentID == 0 {
		return errors.Errorf("%s: replies only go to server entity parts", to)
	}
	info := r.Components.FindComponent(to.ComponentID)
	if info == nil {
		return errors.Errorf("%s: component %d not found", to, to.ComponentID)
	}
	h := r.Interfaces.CallbackReplyHandler(info.Type)
	if h == nil {
		return errors.Errorf("%s: component %s takes no callback replies", to, info)
	}

	b := bundle.NewBundle(d.MaxPacketSize)
	defer b.Release()
	proto.WriteCallbackReply(b, h, callbackID, data)
	if !to.PostMail(b) {
		return errors.Errorf("%s: reply of callback %d not sent", to, callbackID)
	}
	return nil
}

// HandleCallbackReply runs the callback a callbackReply payload answers
//
// Replies of callbacks that already fired or timed out are dropped.
func (d *Dispatcher) HandleCallbackReply(pkt *netutil.Packet) {
	var data interface{}
	id, err := proto.ReadCallbackReply(pkt, &data)
	if err != nil {
		gwlog.Errorf("HandleCallbackReply: bad reply of callback %d: %v", id, err)
		return
	}
	cb, ok := d.Callbacks.Take(callbackmgr.CallbackID(id))
	if !ok {
		gwlog.Warnf("HandleCallbackReply: callback %d not found", id)
		return
	}
	if f, ok := cb.(callbackmgr.Callback); ok {
		f(data)
	} else if f, ok := cb.(func(interface{})); ok {
		f(data)
	} else {
		gwlog.Errorf("HandleCallbackReply: callback %d is not callable: %T", id, cb)
	}
}
