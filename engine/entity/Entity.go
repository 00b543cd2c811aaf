package entity

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/mover"
	"github.com/xiaonanln/gomercury/engine/witness"
)

// Entity is the part (base or cell) of a game object living in this process
//
// Entity types embed Entity and implement the declared methods of their role.
type Entity struct {
	ID       common.EntityID
	TypeName string
	I        IEntity
	V        reflect.Value

	typeDesc      *EntityTypeDesc
	manager       *Manager
	destroyed     bool
	position      common.Vector3
	direction     common.Direction
	props         map[string]interface{}
	space         *witness.Space
	node          *witness.Node
	witness       *witness.Witness
	clientChannel *channel.Channel
	client        *mailbox.Mailbox
	base          *mailbox.Mailbox
	cell          *mailbox.Mailbox
	controllers   *mover.Controllers
}

// IEntity declares the callbacks of entities, Entity implements all of them as no-ops
type IEntity interface {
	OnInit()    // Called when initializing entity struct
	OnCreated() // Called when entity is just created
	OnDestroy() // Called when entity is destroying (just before destroy)
	// Client Notifications
	OnClientConnected()
	OnClientDisconnected()
	// Space Operations
	OnEnterSpace()
	OnLeaveSpace(space *witness.Space)
	// Movement
	OnMove(controllerID mover.ControllerID, layer int32, oldPos common.Vector3, userArg interface{})
	OnMoveOver(controllerID mover.ControllerID, layer int32, oldPos common.Vector3, userArg interface{})
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s<%d>", e.TypeName, e.ID)
}

func (e *Entity) init(typeName string, entityID common.EntityID, entityInstance reflect.Value) {
	e.ID = entityID
	e.V = entityInstance
	e.I = entityInstance.Interface().(IEntity)
	e.TypeName = typeName

	e.props = map[string]interface{}{}
	for _, pd := range e.typeDesc.def.Properties() {
		if e.manager.ownsProperty(pd) {
			e.props[pd.Name] = pd.Default
		}
	}
	e.controllers = mover.NewControllers(moverTarget{e}, 0)

	e.I.OnInit()
}

// Def returns the schema of the entity type
func (e *Entity) Def() *entitydef.EntityDef {
	return e.typeDesc.def
}

// Manager returns the manager owning the entity
func (e *Entity) Manager() *Manager {
	return e.manager
}

// IsDestroyed returns if the entity is destroyed
func (e *Entity) IsDestroyed() bool {
	return e.destroyed
}

// Destroy destroys the entity
func (e *Entity) Destroy() {
	if e.destroyed {
		return
	}
	gwlog.Debugf("%s.Destroy ...", e)
	gwutils.RunPanicless(e.I.OnDestroy)
	e.controllers.CancelAll()
	e.LeaveSpace()
	e.witness = nil
	e.clientChannel = nil
	e.manager.del(e)
	e.destroyed = true
}

// Mailboxes

// Client returns the mailbox of the client of the entity, or nil
func (e *Entity) Client() *mailbox.Mailbox {
	return e.client
}

// Base returns the mailbox of the base part, or nil
func (e *Entity) Base() *mailbox.Mailbox {
	if e.manager.role == common.ROLE_BASE {
		return e.manager.router.NewMailbox(e.ID, e.manager.componentID, e.typeDesc.def.TypeID, common.ROLE_BASE)
	}
	return e.base
}

// Cell returns the mailbox of the cell part, or nil
func (e *Entity) Cell() *mailbox.Mailbox {
	if e.manager.role == common.ROLE_CELL {
		return e.manager.router.NewMailbox(e.ID, e.manager.componentID, e.typeDesc.def.TypeID, common.ROLE_CELL)
	}
	return e.cell
}

// SetBase records the mailbox of the base part living in another process
func (e *Entity) SetBase(mb *mailbox.Mailbox) {
	e.base = e.manager.attach(mb)
}

// SetCell records the mailbox of the cell part living in another process
func (e *Entity) SetCell(mb *mailbox.Mailbox) {
	e.cell = e.manager.attach(mb)
}

// Client connection

// HasClient returns if the entity has a client attached
func (e *Entity) HasClient() bool {
	return e.witness != nil
}

// Witness returns the client view of the entity, or nil
func (e *Entity) Witness() *witness.Witness {
	return e.witness
}

// AttachClient attaches the client on ch to the entity, messages go straight to the channel
func (e *Entity) AttachClient(ch *channel.Channel) {
	e.attachWitness(e.manager.newWitness(witness.ChannelRelay{Channel: ch}))
	e.clientChannel = ch
	gwutils.RunPanicless(e.I.OnClientConnected)
}

// AttachClientThroughBase attaches the client of the entity reached through its base part
func (e *Entity) AttachClientThroughBase() error {
	if e.base == nil {
		return errors.Errorf("%s.AttachClientThroughBase: no base mailbox", e)
	}
	e.attachWitness(e.manager.newWitness(witness.BaseRelay{
		Base:          e.base,
		Forward:       e.manager.router.Interfaces.BaseappForwardMessageToClientFromCellapp,
		MaxPacketSize: e.manager.maxPacketSize,
	}))
	gwutils.RunPanicless(e.I.OnClientConnected)
	return nil
}

func (e *Entity) attachWitness(w *witness.Witness) {
	if e.witness != nil {
		e.DetachClient()
	}
	e.witness = w
	e.client = e.manager.router.NewMailbox(e.ID, 0, e.typeDesc.def.TypeID, common.ROLE_CLIENT)
	if e.node != nil {
		e.node.AttachWitness(w)
	}
}

// DetachClient removes the client of the entity
func (e *Entity) DetachClient() {
	if e.witness == nil {
		return
	}
	if e.node != nil {
		e.node.DetachWitness()
	}
	e.witness = nil
	e.client = nil
	e.clientChannel = nil
	gwutils.RunPanicless(e.I.OnClientDisconnected)
}

// Remote calls

// CallClient calls a client method of the entity
func (e *Entity) CallClient(method string, args ...interface{}) error {
	if e.client == nil {
		return errors.Errorf("%s.CallClient %s: no client", e, method)
	}
	return e.manager.Call(e.client, method, args...)
}

// CallBase calls a base method of the entity
func (e *Entity) CallBase(method string, args ...interface{}) error {
	mb := e.Base()
	if mb == nil {
		return errors.Errorf("%s.CallBase %s: no base", e, method)
	}
	return e.manager.Call(mb, method, args...)
}

// CallCell calls a cell method of the entity
func (e *Entity) CallCell(method string, args ...interface{}) error {
	mb := e.Cell()
	if mb == nil {
		return errors.Errorf("%s.CallCell %s: no cell", e, method)
	}
	return e.manager.Call(mb, method, args...)
}

// Reply answers a call made with CallWithReply, to is the mailbox of the caller
func (e *Entity) Reply(to *mailbox.Mailbox, callbackID uint32, data interface{}) error {
	if to == nil {
		return errors.Errorf("%s.Reply %d: no caller", e, callbackID)
	}
	return e.manager.dispatcher.Reply(e.manager.attach(to), callbackID, data)
}

// CallOtherClients calls a client method of the entity on the clients of every neighbor
//
// Returns the number of clients reached.
func (e *Entity) CallOtherClients(method string, args ...interface{}) (int, error) {
	md := e.typeDesc.def.FindMethod(common.ROLE_CLIENT, method)
	if md == nil {
		return 0, errors.Errorf("%s.CallOtherClients: client method %s not found", e, method)
	}
	args, err := md.CheckArgs(args)
	if err != nil {
		return 0, err
	}
	if e.node == nil {
		return 0, nil
	}
	h := e.manager.router.Interfaces.ClientOnRemoteMethodCall
	n := e.node.BroadcastToOthers(h, func(b *bundle.Bundle) {
		b.NewMessage(h)
		b.AppendInt32(int32(e.ID))
		md.AddToStream(b.Payload(), args)
		b.Finish(true)
	})
	return n, nil
}

// Properties

// GetProperty returns the value of a property living in this process
func (e *Entity) GetProperty(name string) interface{} {
	return e.props[name]
}

// SetProperty converts and stores a property value, then propagates the change to clients
func (e *Entity) SetProperty(name string, value interface{}) error {
	pd := e.typeDesc.def.FindProperty(name)
	if pd == nil {
		return errors.Errorf("%s.SetProperty: property %s not found", e, name)
	}
	if !e.manager.ownsProperty(pd) {
		return errors.Errorf("%s.SetProperty: property %s does not live on %s", e, name, e.manager.role)
	}
	v, err := pd.Kind.Convert(value)
	if err != nil {
		return errors.Wrapf(err, "%s.SetProperty %s", e, name)
	}
	e.props[name] = v
	e.onDefDataChanged(pd, v)
	return nil
}

// onDefDataChanged sends a changed property to the own client and the clients that see the entity, as the flags tell
func (e *Entity) onDefDataChanged(pd *entitydef.PropertyDescription, v interface{}) {
	ifs := e.manager.router.Interfaces
	h := ifs.ClientOnUpdatePropertys
	write := func(b *bundle.Bundle) {
		b.NewMessage(h)
		b.AppendInt32(int32(e.ID))
		b.AppendUint16(pd.UType)
		pd.Kind.AddToStream(b.Payload(), v)
		b.Finish(true)
	}

	if pd.Flags.HasOwnClient() && e.witness != nil {
		b := bundle.NewBundle(e.manager.maxPacketSize)
		write(b)
		size := b.LastMessageSize()
		if e.witness.SendToClient(h, b) {
			e.manager.tracker.RecordEvent(e.TypeName, pd.Name, size)
		}
		b.Release()
	}
	if pd.Flags.HasOtherClients() && e.node != nil {
		e.node.BroadcastToOthers(h, write)
	}
}

// Space and movement

// Space returns the space the entity is in, or nil
func (e *Entity) Space() *witness.Space {
	return e.space
}

// Node returns the AOI node of the entity, or nil
func (e *Entity) Node() *witness.Node {
	return e.node
}

// EnterSpace places the entity in space at pos
func (e *Entity) EnterSpace(space *witness.Space, pos common.Vector3) {
	if e.space != nil {
		e.LeaveSpace()
	}
	e.position = pos
	e.space = space
	e.node = space.Enter(e.ID, e.typeDesc.def.TypeID, pos, e.witness)
	e.node.Direction = e.direction
	gwutils.RunPanicless(e.I.OnEnterSpace)
}

// LeaveSpace removes the entity from its space
func (e *Entity) LeaveSpace() {
	space := e.space
	if space == nil {
		return
	}
	space.Leave(e.node)
	e.space, e.node = nil, nil
	gwutils.RunPanicless(func() {
		e.I.OnLeaveSpace(space)
	})
}

// Position returns the position of the entity
func (e *Entity) Position() common.Vector3 {
	return e.position
}

// Direction returns the direction of the entity
func (e *Entity) Direction() common.Direction {
	return e.direction
}

// SetPositionAndDirection moves the entity, AOI neighbors are updated
func (e *Entity) SetPositionAndDirection(pos common.Vector3, dir common.Direction) {
	e.position = pos
	e.direction = dir
	if e.space != nil {
		e.node.Direction = dir
		e.space.Move(e.node, pos)
	}
}

// MoveToPoint moves the entity to dest at velocity per second, stopping distance away from it
func (e *Entity) MoveToPoint(dest common.Vector3, velocity, distance common.Coord, userArg interface{}, faceMovement, moveVertically bool) mover.ControllerID {
	return e.controllers.MoveToPoint(dest, velocity, distance, userArg, faceMovement, moveVertically)
}

// CancelController stops a move controller
func (e *Entity) CancelController(id mover.ControllerID) bool {
	return e.controllers.Cancel(id)
}

// Controllers returns the move controllers of the entity
func (e *Entity) Controllers() *mover.Controllers {
	return e.controllers
}

// moverTarget routes mover callbacks to the entity instance
type moverTarget struct {
	e *Entity
}

func (t moverTarget) Position() common.Vector3    { return t.e.position }
func (t moverTarget) Direction() common.Direction { return t.e.direction }
func (t moverTarget) SetPositionAndDirection(pos common.Vector3, dir common.Direction) {
	t.e.SetPositionAndDirection(pos, dir)
}
func (t moverTarget) OnMove(id mover.ControllerID, layer int32, oldPos common.Vector3, userArg interface{}) {
	t.e.I.OnMove(id, layer, oldPos, userArg)
}
func (t moverTarget) OnMoveOver(id mover.ControllerID, layer int32, oldPos common.Vector3, userArg interface{}) {
	t.e.I.OnMoveOver(id, layer, oldPos, userArg)
}

// Default callbacks

// OnInit is called when initializing entity struct
func (e *Entity) OnInit() {}

// OnCreated is called when entity is just created
func (e *Entity) OnCreated() {}

// OnDestroy is called just before entity is destroyed
func (e *Entity) OnDestroy() {}

// OnClientConnected is called when a client is attached
func (e *Entity) OnClientConnected() {}

// OnClientDisconnected is called when the client is detached
func (e *Entity) OnClientDisconnected() {}

// OnEnterSpace is called after entity enters a space
func (e *Entity) OnEnterSpace() {}

// OnLeaveSpace is called after entity leaves a space
func (e *Entity) OnLeaveSpace(space *witness.Space) {}

// OnMove is called after every step of a move controller
func (e *Entity) OnMove(controllerID mover.ControllerID, layer int32, oldPos common.Vector3, userArg interface{}) {
}

// OnMoveOver is called when a move controller reaches its destination
func (e *Entity) OnMoveOver(controllerID mover.ControllerID, layer int32, oldPos common.Vector3, userArg interface{}) {
}
