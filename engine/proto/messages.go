package proto

import (
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// WriteImportClientMessages writes the messages a client needs to talk to this process
func (ifs *Interfaces) WriteImportClientMessages(b *bundle.Bundle) {
	client, baseapp := ifs.ExposedToClient()
	b.NewMessage(ifs.ClientOnImportClientMessages)
	msgcatalog.WriteExposedInfos(b.Payload(), client)
	msgcatalog.WriteExposedInfos(b.Payload(), baseapp)
	b.Finish(true)
}

// ReadImportClientMessages rebuilds the client and baseapp catalogs from an onImportClientMessages payload
func ReadImportClientMessages(pkt *netutil.Packet) (client *msgcatalog.Catalog, baseapp *msgcatalog.Catalog) {
	client = msgcatalog.ImportCatalog(CLIENT_INTERFACE, msgcatalog.ReadExposedInfos(pkt))
	baseapp = msgcatalog.ImportCatalog(BASEAPP_INTERFACE, msgcatalog.ReadExposedInfos(pkt))
	return
}

// WriteCallbackReply writes the reply of a call made with callbackID
func WriteCallbackReply(b *bundle.Bundle, h *msgcatalog.MessageHandler, callbackID uint32, data interface{}) {
	b.NewMessage(h)
	b.AppendUint32(callbackID)
	b.AppendData(data)
	b.Finish(true)
}

// ReadCallbackReply reads the callback id of a callbackReply payload and decodes its data into v
func ReadCallbackReply(pkt *netutil.Packet, v interface{}) (uint32, error) {
	callbackID := pkt.ReadUint32()
	return callbackID, pkt.ReadData(v)
}

// WriteUpdateBasePos writes the base position of the controlled entity
func (ifs *Interfaces) WriteUpdateBasePos(b *bundle.Bundle, pos Position, ignoreY bool) {
	if ignoreY {
		b.NewMessage(ifs.ClientOnUpdateBasePosXZ)
		b.AppendFloat32(pos.X)
		b.AppendFloat32(pos.Z)
	} else {
		b.NewMessage(ifs.ClientOnUpdateBasePos)
		b.AppendFloat32(pos.X)
		b.AppendFloat32(pos.Y)
		b.AppendFloat32(pos.Z)
	}
	b.Finish(true)
}

// ReadPosDir reads the position and direction reported by a client
//
// Coordinates are float32, or int32 when noFloat is set. Both layouts are POS_DIR_SIZE bytes.
func ReadPosDir(pkt *netutil.Packet, noFloat bool) (pos common.Vector3, dir common.Direction) {
	read := func() common.Coord {
		if noFloat {
			return common.Coord(pkt.ReadInt32())
		}
		return common.Coord(pkt.ReadFloat32())
	}
	pos.X, pos.Y, pos.Z = read(), read(), read()
	dir.Roll, dir.Pitch, dir.Yaw = read(), read(), read()
	return
}

// WriteEntityLeaveWorld tells a client that entityID left its view
func (ifs *Interfaces) WriteEntityLeaveWorld(b *bundle.Bundle, entityID common.EntityID) {
	b.NewMessage(ifs.ClientOnEntityLeaveWorld)
	b.AppendInt32(int32(entityID))
	b.Finish(true)
}

// WriteEntityEnterWorld tells a client that entityID of typeID entered its view, appendData writes the entity data after the header
func (ifs *Interfaces) WriteEntityEnterWorld(b *bundle.Bundle, entityID common.EntityID, typeID common.EntityTypeID, appendData func(pkt *netutil.Packet)) {
	b.NewMessage(ifs.ClientOnEntityEnterWorld)
	b.AppendInt32(int32(entityID))
	b.AppendUint16(uint16(typeID))
	if appendData != nil {
		appendData(b.Payload())
	}
	b.Finish(true)
}

// WriteAppActiveTick writes an active tick to a peer of the type, it returns false if the peer takes none
func (ifs *Interfaces) WriteAppActiveTick(b *bundle.Bundle, componentType common.ComponentType) bool {
	h := ifs.ActiveTickHandler(componentType)
	if h == nil {
		return false
	}
	b.NewMessage(h)
	b.Finish(true)
	return true
}
