package msgcatalog

import (
	"strings"

	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// FIRST_MESSAGE_ID is the id of the first registered message of every catalog
const FIRST_MESSAGE_ID MessageID = 1

// ExposedMessageInfo describes a message to a peer that does not define it
type ExposedMessageInfo struct {
	Name      string
	ID        MessageID
	MsgLen    int16
	ArgsType  int8
	ArgsTypes []uint8
}

// Catalog maps message names and ids of one component interface to handlers
//
// Catalogs are built at startup and frozen before the main loop starts, after that they
// are only read.
type Catalog struct {
	name     string
	nextID   MessageID
	handlers map[MessageID]*MessageHandler
	ordered  []*MessageHandler
	names    map[string]*MessageHandler
	frozen   bool
}

// NewCatalog creates an empty catalog of the named interface
func NewCatalog(name string) *Catalog {
	return &Catalog{
		name:     name,
		nextID:   FIRST_MESSAGE_ID,
		handlers: map[MessageID]*MessageHandler{},
		names:    map[string]*MessageHandler{},
	}
}

// Name returns the interface name
func (c *Catalog) Name() string {
	return c.name
}

func (c *Catalog) assureWritable(op string) {
	if c.frozen {
		gwlog.Panicf("%s: catalog %s is frozen", op, c.name)
	}
}

// Add registers a message with the next sequential id
func (c *Catalog) Add(name string, argsTypes []uint8, length int16, msgType MessageType, handler HandlerFunc) *MessageHandler {
	c.assureWritable("Add")
	if name == "" || strings.Contains(name, "::") {
		gwlog.Panicf("Add: invalid message name %q in catalog %s", name, c.name)
	}
	if length < MSG_LENGTH_VARIABLE {
		gwlog.Panicf("Add: invalid length %d of message %s::%s", length, c.name, name)
	}
	if c.FindByName(name) != nil {
		gwlog.Panicf("Add: message %s::%s is already registered", c.name, name)
	}

	h := &MessageHandler{
		Name:      name,
		ID:        c.nextID,
		Length:    length,
		ArgsTypes: argsTypes,
		Type:      msgType,
		Handler:   handler,
		catalog:   c,
	}
	c.nextID++
	c.handlers[h.ID] = h
	c.ordered = append(c.ordered, h)
	c.names[name] = h
	return h
}

// Expose marks a message as externally visible
func (c *Catalog) Expose(name string) *MessageHandler {
	c.assureWritable("Expose")
	h := c.FindByName(name)
	if h == nil {
		gwlog.Panicf("Expose: message %s::%s not found", c.name, name)
	}
	h.Exposed = true
	return h
}

// Bind sets the handler of a registered message
func (c *Catalog) Bind(name string, handler HandlerFunc) *MessageHandler {
	c.assureWritable("Bind")
	h := c.FindByName(name)
	if h == nil {
		gwlog.Panicf("Bind: message %s::%s not found", c.name, name)
	}
	h.Handler = handler
	return h
}

// Freeze forbids further registration
func (c *Catalog) Freeze() {
	c.frozen = true
}

// Find returns the message of id, or nil
func (c *Catalog) Find(id MessageID) *MessageHandler {
	return c.handlers[id]
}

// FindByName returns the message of name, or nil
//
// Both "name" and "Interface::name" are accepted.
func (c *Catalog) FindByName(name string) *MessageHandler {
	if i := strings.Index(name, "::"); i >= 0 {
		if name[:i] != c.name {
			return nil
		}
		name = name[i+2:]
	}
	return c.names[name]
}

// MustFind returns the message of name, or panics
func (c *Catalog) MustFind(name string) *MessageHandler {
	h := c.FindByName(name)
	if h == nil {
		gwlog.Panicf("message %s::%s not found", c.name, name)
	}
	return h
}

// LastMsgID returns the id of the last registered message
func (c *Catalog) LastMsgID() MessageID {
	return c.nextID - 1
}

// Handlers returns all messages in registration order
func (c *Catalog) Handlers() []*MessageHandler {
	return c.ordered
}

// ExportAll returns the full id table in registration order
func (c *Catalog) ExportAll() []ExposedMessageInfo {
	infos := make([]ExposedMessageInfo, 0, len(c.ordered))
	for _, h := range c.ordered {
		infos = append(infos, h.exposedInfo())
	}
	return infos
}

// ExportExposed returns the exposed messages in registration order
func (c *Catalog) ExportExposed() []ExposedMessageInfo {
	var infos []ExposedMessageInfo
	for _, h := range c.ordered {
		if h.Exposed {
			infos = append(infos, h.exposedInfo())
		}
	}
	return infos
}

// Stats returns counters of all messages
func (c *Catalog) Stats() []MessageStats {
	stats := make([]MessageStats, 0, len(c.ordered))
	for _, h := range c.ordered {
		stats = append(stats, h.Stats())
	}
	return stats
}

// ImportCatalog builds a catalog from infos exported by a peer
//
// Imported messages keep the peer's ids, handlers are bound by name afterwards.
func ImportCatalog(name string, infos []ExposedMessageInfo) *Catalog {
	c := NewCatalog(name)
	for _, info := range infos {
		msgName := info.Name
		if i := strings.Index(msgName, "::"); i >= 0 {
			if msgName[:i] != name {
				continue
			}
			msgName = msgName[i+2:]
		}
		if c.Find(info.ID) != nil || c.FindByName(msgName) != nil {
			gwlog.Panicf("ImportCatalog: duplicate message %s<%d>", info.Name, info.ID)
		}
		h := &MessageHandler{
			Name:      msgName,
			ID:        info.ID,
			Length:    info.MsgLen,
			ArgsTypes: info.ArgsTypes,
			Exposed:   true,
			catalog:   c,
		}
		c.handlers[h.ID] = h
		c.ordered = append(c.ordered, h)
		c.names[msgName] = h
		if h.ID >= c.nextID {
			c.nextID = h.ID + 1
		}
	}
	return c
}

// WriteExposedInfos writes message infos into pkt
func WriteExposedInfos(pkt *netutil.Packet, infos []ExposedMessageInfo) {
	pkt.AppendUint16(uint16(len(infos)))
	for _, info := range infos {
		pkt.AppendUint16(uint16(info.ID))
		pkt.AppendInt16(info.MsgLen)
		pkt.AppendString(info.Name)
		pkt.AppendInt8(info.ArgsType)
		pkt.AppendUint8(uint8(len(info.ArgsTypes)))
		pkt.AppendBytes(info.ArgsTypes)
	}
}

// ReadExposedInfos reads message infos written by WriteExposedInfos
func ReadExposedInfos(pkt *netutil.Packet) []ExposedMessageInfo {
	n := int(pkt.ReadUint16())
	infos := make([]ExposedMessageInfo, 0, n)
	for i := 0; i < n; i++ {
		var info ExposedMessageInfo
		info.ID = MessageID(pkt.ReadUint16())
		info.MsgLen = pkt.ReadInt16()
		info.Name = pkt.ReadString()
		info.ArgsType = pkt.ReadInt8()
		argc := int(pkt.ReadUint8())
		if argc > 0 {
			info.ArgsTypes = append([]uint8(nil), pkt.ReadBytes(argc)...)
		}
		infos = append(infos, info)
	}
	return infos
}
