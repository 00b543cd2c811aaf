package entity

import (
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/callbackmgr"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/gomercury/engine/profile"
	"github.com/xiaonanln/gomercury/engine/proto"
	"github.com/xiaonanln/gomercury/engine/remotemethod"
	"github.com/xiaonanln/gomercury/engine/witness"
)

// EntityTypeDesc binds an entity def to the Go type implementing it
type EntityTypeDesc struct {
	def        *entitydef.EntityDef
	entityType reflect.Type
	rpcDescs   rpcDescMap
}

// Def returns the entity def of the type
func (desc *EntityTypeDesc) Def() *entitydef.EntityDef {
	return desc.def
}

// ManagerConfig is what a Manager needs from its process
type ManagerConfig struct {
	Role          common.EntityRole // ROLE_BASE on baseapps, ROLE_CELL on cellapps
	ComponentID   common.ComponentID
	Defs          *entitydef.Registry
	Router        *mailbox.Router
	Tracker       profile.Tracker
	Callbacks     *callbackmgr.Manager
	MaxPacketSize int
	NoFloat       bool // coordinates on client connections are int32
}

// Manager keeps the entities of one process and dispatches mail to them
type Manager struct {
	role          common.EntityRole
	componentID   common.ComponentID
	defs          *entitydef.Registry
	router        *mailbox.Router
	tracker       profile.Tracker
	dispatcher    *remotemethod.Dispatcher
	maxPacketSize int
	noFloat       bool

	types          map[string]*EntityTypeDesc
	entities       EntityMap
	entitiesByType map[string]EntityMap
	lastID         common.EntityID
}

// NewManager creates the entity manager of a process
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Role != common.ROLE_BASE && cfg.Role != common.ROLE_CELL {
		gwlog.Panicf("NewManager: entities can not live on %s", cfg.Role)
	}
	if cfg.Tracker == nil {
		cfg.Tracker = profile.NopTracker{}
	}
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = consts.PACKET_MAX_SIZE_TCP
	}
	m := &Manager{
		role:           cfg.Role,
		componentID:    cfg.ComponentID,
		defs:           cfg.Defs,
		router:         cfg.Router,
		tracker:        cfg.Tracker,
		maxPacketSize:  cfg.MaxPacketSize,
		noFloat:        cfg.NoFloat,
		types:          map[string]*EntityTypeDesc{},
		entities:       EntityMap{},
		entitiesByType: map[string]EntityMap{},
	}
	m.dispatcher = remotemethod.NewDispatcher(m, cfg.Tracker, cfg.Callbacks, cfg.MaxPacketSize)
	return m
}

// Role returns the role of the entity parts living here
func (m *Manager) Role() common.EntityRole {
	return m.role
}

// Dispatcher returns the remote method dispatcher of the manager
func (m *Manager) Dispatcher() *remotemethod.Dispatcher {
	return m.dispatcher
}

func (m *Manager) ownsProperty(pd *entitydef.PropertyDescription) bool {
	if m.role == common.ROLE_BASE {
		return pd.Flags.IsBase()
	}
	return pd.Flags.IsCell()
}

func (m *Manager) attach(mb *mailbox.Mailbox) *mailbox.Mailbox {
	if mb == nil {
		return nil
	}
	return m.router.Attach(mb)
}

// RegisterEntity registers the Go type implementing the declared entity type typeName
//
// entity must be a pointer to a struct embedding Entity, with a method for every declared method
// of the manager role.
func (m *Manager) RegisterEntity(typeName string, entity IEntity) *EntityTypeDesc {
	if _, ok := m.types[typeName]; ok {
		gwlog.Fatalf("RegisterEntity: Entity type %s already registered", typeName)
	}
	def := m.defs.Find(typeName)
	if def == nil {
		gwlog.Panicf("RegisterEntity: Entity type %s is not declared", typeName)
	}

	entityVal := reflect.ValueOf(entity)
	entityType := entityVal.Type()
	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}

	desc := &EntityTypeDesc{
		def:        def,
		entityType: entityType,
		rpcDescs:   rpcDescMap{},
	}
	entityPtrType := reflect.PtrTo(entityType)
	for _, md := range def.Methods(m.role) {
		desc.rpcDescs.visit(entityPtrType, md)
	}
	m.types[typeName] = desc
	gwlog.Infof(">>> RegisterEntity %s => %s (%d %s methods) <<<", typeName, entityType.Name(), len(desc.rpcDescs), m.role)
	return desc
}

// CreateEntity creates an entity of a registered type with a new id
func (m *Manager) CreateEntity(typeName string) *Entity {
	m.lastID++
	for m.entities[m.lastID] != nil || m.lastID <= 0 {
		m.lastID++
	}
	return m.CreateEntityWithID(typeName, m.lastID)
}

// CreateEntityWithID creates an entity of a registered type with the given id
func (m *Manager) CreateEntityWithID(typeName string, entityID common.EntityID) *Entity {
	desc := m.types[typeName]
	if desc == nil {
		gwlog.Panicf("unknown entity type: %s", typeName)
	}
	if m.entities[entityID] != nil {
		gwlog.Panicf("CreateEntityWithID: entity %d already exists", entityID)
	}

	entityInstance := reflect.New(desc.entityType)
	entity := reflect.Indirect(entityInstance).FieldByName("Entity").Addr().Interface().(*Entity)
	entity.typeDesc = desc
	entity.manager = m
	entity.init(typeName, entityID, entityInstance)
	m.put(entity)

	gwlog.Debugf("Entity %s created.", entity)
	gwutils.RunPanicless(entity.I.OnCreated)
	return entity
}

func (m *Manager) put(entity *Entity) {
	m.entities.Add(entity)
	if entities, ok := m.entitiesByType[entity.TypeName]; ok {
		entities.Add(entity)
	} else {
		m.entitiesByType[entity.TypeName] = EntityMap{entity.ID: entity}
	}
}

func (m *Manager) del(e *Entity) {
	m.entities.Del(e.ID)
	if entities, ok := m.entitiesByType[e.TypeName]; ok {
		entities.Del(e.ID)
	}
}

// Get returns the entity of id, or nil
func (m *Manager) Get(id common.EntityID) *Entity {
	return m.entities.Get(id)
}

// Len returns the number of entities
func (m *Manager) Len() int {
	return len(m.entities)
}

// Entities returns all entities
func (m *Manager) Entities() EntityMap {
	return m.entities
}

// TraverseByType calls cb for every entity of the type
func (m *Manager) TraverseByType(typeName string, cb func(e *Entity)) {
	for _, e := range m.entitiesByType[typeName] {
		cb(e)
	}
}

// FindWitness implements remotemethod.Entities
func (m *Manager) FindWitness(id common.EntityID) (string, remotemethod.Witness) {
	e := m.entities.Get(id)
	if e == nil || e.witness == nil {
		return "", nil
	}
	return e.TypeName, e.witness
}

func (m *Manager) findMethod(mb *mailbox.Mailbox, method string) (*entitydef.MethodDescription, error) {
	def := m.defs.FindByTypeID(mb.TypeID)
	if def == nil {
		return nil, errors.Errorf("%s.%s: unknown entity type %d", mb, method, mb.TypeID)
	}
	md := def.FindMethod(mb.Role, method)
	if md == nil {
		return nil, errors.Errorf("%s.%s: %s method not declared by %s", mb, method, mb.Role, def.Name)
	}
	return md, nil
}

// Call calls a method declared for the role of mb
func (m *Manager) Call(mb *mailbox.Mailbox, method string, args ...interface{}) error {
	md, err := m.findMethod(mb, method)
	if err != nil {
		return err
	}
	return m.dispatcher.Call(mb, md, args...)
}

// CallWithReply calls a method taking a callback id first, cb is run on the main loop with the reply
func (m *Manager) CallWithReply(mb *mailbox.Mailbox, method string, cb callbackmgr.Callback, timeout time.Duration, args ...interface{}) (callbackmgr.CallbackID, error) {
	md, err := m.findMethod(mb, method)
	if err != nil {
		return 0, err
	}
	return m.dispatcher.CallWithReply(mb, md, cb, timeout, args...)
}

// OnClientDisconnected detaches the client on ch from every entity it controls
func (m *Manager) OnClientDisconnected(ch *channel.Channel) {
	for _, e := range m.entities.Sorted() {
		if e.clientChannel == ch {
			e.DetachClient()
		}
	}
}

func (m *Manager) newWitness(relay witness.Relay) *witness.Witness {
	w := witness.NewWitness(m.router.Interfaces, relay, m.maxPacketSize)
	w.NoFloat = m.noFloat
	return w
}

// ClientChannel returns the channel of the client attached straight to entity id, or nil
func (m *Manager) ClientChannel(id common.EntityID) *channel.Channel {
	if e := m.entities.Get(id); e != nil {
		return e.clientChannel
	}
	return nil
}

// Inbound mail

func (m *Manager) invoke(e *Entity, md *entitydef.MethodDescription, pkt *netutil.Packet) {
	rd := e.typeDesc.rpcDescs[md.UType]
	if rd == nil {
		gwlog.Errorf("%s: method %s is not implemented", e, md.Name)
		return
	}
	args, err := md.CreateFromStream(pkt)
	if err != nil {
		gwlog.Errorf("%s.%s: bad arguments: %v", e, md.Name, err)
		return
	}
	gwutils.RunPanicless(func() {
		rd.call(e, args)
	})
}

// readMethod reads the method utype of the entity payload
func (m *Manager) readMethod(e *Entity, role common.EntityRole, pkt *netutil.Packet) *entitydef.MethodDescription {
	if pkt.Remaining() < 2 {
		gwlog.Errorf("%s: method payload is truncated", e)
		return nil
	}
	utype := pkt.ReadUint16()
	md := e.typeDesc.def.FindMethodByUType(role, utype)
	if md == nil {
		gwlog.Errorf("%s: %s method utype %d not found", e, role, utype)
	}
	return md
}

// HandleEntityMail handles onEntityMail: entity id, role, then the method payload
func (m *Manager) HandleEntityMail(ch msgcatalog.Channel, pkt *netutil.Packet) {
	if pkt.Remaining() < 6 {
		gwlog.Errorf("HandleEntityMail from %s: payload is truncated", ch.Addr())
		return
	}
	entityID := common.EntityID(pkt.ReadInt32())
	role := common.EntityRole(pkt.ReadUint16())
	if role != m.role {
		gwlog.Errorf("HandleEntityMail from %s: mail to %s of entity %d can not be handled on %s", ch.Addr(), role, entityID, m.role)
		return
	}
	e := m.entities.Get(entityID)
	if e == nil {
		gwlog.Warnf("HandleEntityMail from %s: entity %d not found", ch.Addr(), entityID)
		return
	}
	if md := m.readMethod(e, role, pkt); md != nil {
		m.invoke(e, md, pkt)
	}
}

// clientEntity returns the entity the client on ch controls
func (m *Manager) clientEntity(op string, ch msgcatalog.Channel, entityID common.EntityID) *Entity {
	e := m.entities.Get(entityID)
	if e == nil {
		gwlog.Warnf("%s from %s: entity %d not found", op, ch.Addr(), entityID)
		return nil
	}
	if e.clientChannel == nil || msgcatalog.Channel(e.clientChannel) != ch {
		gwlog.Errorf("%s from %s: client does not control %s", op, ch.Addr(), e)
		return nil
	}
	return e
}

// HandleRemoteMethodCall handles a client calling an exposed base method of its entity
func (m *Manager) HandleRemoteMethodCall(ch msgcatalog.Channel, pkt *netutil.Packet) {
	if pkt.Remaining() < 4 {
		gwlog.Errorf("HandleRemoteMethodCall from %s: payload is truncated", ch.Addr())
		return
	}
	e := m.clientEntity("HandleRemoteMethodCall", ch, common.EntityID(pkt.ReadInt32()))
	if e == nil {
		return
	}
	md := m.readMethod(e, common.ROLE_BASE, pkt)
	if md == nil {
		return
	}
	if !md.Exposed {
		gwlog.Errorf("HandleRemoteMethodCall: %s.%s is not exposed to clients", e, md.Name)
		return
	}
	m.invoke(e, md, pkt)
}

// HandleRemoteCallCellMethodFromClient forwards a client call of an exposed cell method to the cell
func (m *Manager) HandleRemoteCallCellMethodFromClient(ch msgcatalog.Channel, pkt *netutil.Packet) {
	if pkt.Remaining() < 4 {
		gwlog.Errorf("HandleRemoteCallCellMethodFromClient from %s: payload is truncated", ch.Addr())
		return
	}
	e := m.clientEntity("HandleRemoteCallCellMethodFromClient", ch, common.EntityID(pkt.ReadInt32()))
	if e == nil {
		return
	}
	if e.cell == nil {
		gwlog.Errorf("HandleRemoteCallCellMethodFromClient: %s has no cell", e)
		return
	}
	payload := pkt.UnreadData()
	md := m.readMethod(e, common.ROLE_CELL, pkt)
	if md == nil {
		return
	}
	if !md.Exposed {
		gwlog.Errorf("HandleRemoteCallCellMethodFromClient: %s.%s is not exposed to clients", e, md.Name)
		return
	}

	b := bundle.NewBundle(m.maxPacketSize)
	defer b.Release()
	if !e.cell.NewOutboundMessage(b) {
		return
	}
	b.AppendBytes(payload)
	b.Finish(true)
	e.cell.PostMail(b)
}

// HandleForwardToClient relays client messages a cellapp sent on behalf of an entity to its client
func (m *Manager) HandleForwardToClient(ch msgcatalog.Channel, pkt *netutil.Packet) {
	if pkt.Remaining() < 4 {
		gwlog.Errorf("HandleForwardToClient from %s: payload is truncated", ch.Addr())
		return
	}
	entityID := common.EntityID(pkt.ReadInt32())
	e := m.entities.Get(entityID)
	if e == nil || e.witness == nil {
		gwlog.Warnf("HandleForwardToClient from %s: entity %d has no client", ch.Addr(), entityID)
		return
	}
	e.witness.SendRawToClient(pkt.UnreadData())
}

// HandleUpdateDataFromClient moves the entity controlled by the client on ch to the reported position and direction
func (m *Manager) HandleUpdateDataFromClient(ch msgcatalog.Channel, pkt *netutil.Packet) {
	pos, dir := proto.ReadPosDir(pkt, m.noFloat)
	for _, e := range m.entities {
		if e.clientChannel == nil || msgcatalog.Channel(e.clientChannel) != ch {
			continue
		}
		e.SetPositionAndDirection(pos, dir)
		return
	}
	gwlog.Warnf("HandleUpdateDataFromClient from %s: client controls no entity", ch.Addr())
}

// BindHandlers binds the inbound entity messages of the manager role
func (m *Manager) BindHandlers() {
	ifs := m.router.Interfaces
	if m.role == common.ROLE_BASE {
		ifs.Baseapp.Bind(ifs.BaseappOnEntityMail.Name, m.HandleEntityMail)
		ifs.Baseapp.Bind(ifs.BaseappOnRemoteMethodCall.Name, m.HandleRemoteMethodCall)
		ifs.Baseapp.Bind(ifs.BaseappOnRemoteCallCellMethodFromClient.Name, m.HandleRemoteCallCellMethodFromClient)
		ifs.Baseapp.Bind(ifs.BaseappForwardMessageToClientFromCellapp.Name, m.HandleForwardToClient)
		ifs.Baseapp.Bind(ifs.BaseappOnUpdateDataFromClient.Name, m.HandleUpdateDataFromClient)
		ifs.Baseapp.Bind(ifs.BaseappCallbackReply.Name, m.handleCallbackReply)
	} else {
		ifs.Cellapp.Bind(ifs.CellappOnEntityMail.Name, m.HandleEntityMail)
		ifs.Cellapp.Bind(ifs.CellappCallbackReply.Name, m.handleCallbackReply)
	}
}

func (m *Manager) handleCallbackReply(ch msgcatalog.Channel, pkt *netutil.Packet) {
	if m.dispatcher.Callbacks == nil {
		gwlog.Errorf("callbackReply from %s: no callback registry", ch.Addr())
		return
	}
	m.dispatcher.HandleCallbackReply(pkt)
}
