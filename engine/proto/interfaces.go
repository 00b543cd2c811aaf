package proto

import (
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
)

const (
	variable = msgcatalog.MSG_LENGTH_VARIABLE
	compMsg  = msgcatalog.MESSAGE_TYPE_COMPONENT
	entMsg   = msgcatalog.MESSAGE_TYPE_ENTITY
)

// Interfaces holds the message catalogs of one process
//
// Handlers are bound by the owning process between NewInterfaces and Freeze.
type Interfaces struct {
	Client  *msgcatalog.Catalog
	Baseapp *msgcatalog.Catalog
	Cellapp *msgcatalog.Catalog

	ClientOnRemoteMethodCall     *msgcatalog.MessageHandler
	ClientOnUpdatePropertys      *msgcatalog.MessageHandler
	ClientOnUpdateBasePos        *msgcatalog.MessageHandler
	ClientOnUpdateBasePosXZ      *msgcatalog.MessageHandler
	ClientOnImportClientMessages *msgcatalog.MessageHandler
	ClientOnEntityEnterWorld     *msgcatalog.MessageHandler
	ClientOnEntityLeaveWorld     *msgcatalog.MessageHandler

	BaseappOnEntityMail                      *msgcatalog.MessageHandler
	BaseappOnRemoteMethodCall                *msgcatalog.MessageHandler
	BaseappOnRemoteCallCellMethodFromClient  *msgcatalog.MessageHandler
	BaseappForwardMessageToClientFromCellapp *msgcatalog.MessageHandler
	BaseappOnUpdateDataFromClient            *msgcatalog.MessageHandler
	BaseappCallbackReply                     *msgcatalog.MessageHandler
	BaseappOnAppActiveTick                   *msgcatalog.MessageHandler

	CellappOnEntityMail    *msgcatalog.MessageHandler
	CellappForwardMessage  *msgcatalog.MessageHandler
	CellappCallbackReply   *msgcatalog.MessageHandler
	CellappOnAppActiveTick *msgcatalog.MessageHandler
}

// NewInterfaces builds the client, baseapp and cellapp catalogs
func NewInterfaces() *Interfaces {
	ifs := &Interfaces{
		Client:  msgcatalog.NewCatalog(CLIENT_INTERFACE),
		Baseapp: msgcatalog.NewCatalog(BASEAPP_INTERFACE),
		Cellapp: msgcatalog.NewCatalog(CELLAPP_INTERFACE),
	}

	c := ifs.Client
	ifs.ClientOnImportClientMessages = c.Add(MSG_ON_IMPORT_CLIENT_MESSAGES, nil, variable, compMsg, nil)
	ifs.ClientOnRemoteMethodCall = c.Add(MSG_ON_REMOTE_METHOD_CALL, nil, variable, entMsg, nil)
	ifs.ClientOnUpdatePropertys = c.Add(MSG_ON_UPDATE_PROPERTYS, nil, variable, entMsg, nil)
	ifs.ClientOnUpdateBasePos = c.Add(MSG_ON_UPDATE_BASE_POS, nil, POSITION_SIZE, compMsg, nil)
	ifs.ClientOnUpdateBasePosXZ = c.Add(MSG_ON_UPDATE_BASE_POS_XZ, nil, POSITION_XZ_SIZE, compMsg, nil)
	ifs.ClientOnEntityEnterWorld = c.Add(MSG_ON_ENTITY_ENTER_WORLD, nil, variable, entMsg, nil)
	ifs.ClientOnEntityLeaveWorld = c.Add(MSG_ON_ENTITY_LEAVE_WORLD, nil, 4, entMsg, nil)
	for _, h := range c.Handlers() {
		c.Expose(h.Name)
	}

	b := ifs.Baseapp
	ifs.BaseappOnEntityMail = b.Add(MSG_ON_ENTITY_MAIL, nil, variable, entMsg, nil)
	ifs.BaseappOnRemoteMethodCall = b.Add(MSG_ON_REMOTE_METHOD_CALL, nil, variable, entMsg, nil)
	ifs.BaseappOnRemoteCallCellMethodFromClient = b.Add(MSG_ON_REMOTE_CALL_CELL_METHOD_FROM_CLIENT, nil, variable, entMsg, nil)
	ifs.BaseappForwardMessageToClientFromCellapp = b.Add(MSG_FORWARD_MESSAGE_TO_CLIENT_FROM_CELLAPP, nil, variable, compMsg, nil)
	ifs.BaseappOnUpdateDataFromClient = b.Add(MSG_ON_UPDATE_DATA_FROM_CLIENT, nil, POS_DIR_SIZE, entMsg, nil)
	ifs.BaseappCallbackReply = b.Add(MSG_CALLBACK_REPLY, nil, variable, compMsg, nil)
	ifs.BaseappOnAppActiveTick = b.Add(MSG_ON_APP_ACTIVE_TICK, nil, 0, compMsg, nil)
	b.Expose(MSG_ON_REMOTE_METHOD_CALL)
	b.Expose(MSG_ON_REMOTE_CALL_CELL_METHOD_FROM_CLIENT)
	b.Expose(MSG_ON_UPDATE_DATA_FROM_CLIENT)

	ce := ifs.Cellapp
	ifs.CellappOnEntityMail = ce.Add(MSG_ON_ENTITY_MAIL, nil, variable, entMsg, nil)
	ifs.CellappForwardMessage = ce.Add(MSG_FORWARD_MESSAGE, nil, variable, compMsg, nil)
	ifs.CellappCallbackReply = ce.Add(MSG_CALLBACK_REPLY, nil, variable, compMsg, nil)
	ifs.CellappOnAppActiveTick = ce.Add(MSG_ON_APP_ACTIVE_TICK, nil, 0, compMsg, nil)
	return ifs
}

// Freeze freezes all catalogs, it is called once handlers are bound
func (ifs *Interfaces) Freeze() {
	ifs.Client.Freeze()
	ifs.Baseapp.Freeze()
	ifs.Cellapp.Freeze()
}

// ForComponent returns the catalog served by components of the type
func (ifs *Interfaces) ForComponent(componentType common.ComponentType) *msgcatalog.Catalog {
	switch componentType {
	case common.BASEAPP_TYPE:
		return ifs.Baseapp
	case common.CELLAPP_TYPE:
		return ifs.Cellapp
	case common.CLIENT_TYPE:
		return ifs.Client
	}
	gwlog.Panicf("ForComponent: component type %s has no interface", componentType)
	return nil
}

// EntityMailHandler returns the onEntityMail message of the peer type, or nil if the peer does not take entity mail
func (ifs *Interfaces) EntityMailHandler(componentType common.ComponentType) *msgcatalog.MessageHandler {
	switch componentType {
	case common.BASEAPP_TYPE:
		return ifs.BaseappOnEntityMail
	case common.CELLAPP_TYPE:
		return ifs.CellappOnEntityMail
	}
	return nil
}

// ActiveTickHandler returns the onAppActiveTick message of the peer type, or nil
func (ifs *Interfaces) ActiveTickHandler(componentType common.ComponentType) *msgcatalog.MessageHandler {
	switch componentType {
	case common.BASEAPP_TYPE:
		return ifs.BaseappOnAppActiveTick
	case common.CELLAPP_TYPE:
		return ifs.CellappOnAppActiveTick
	}
	return nil
}

// CallbackReplyHandler returns the callbackReply message of the peer type
func (ifs *Interfaces) CallbackReplyHandler(componentType common.ComponentType) *msgcatalog.MessageHandler {
	switch componentType {
	case common.BASEAPP_TYPE:
		return ifs.BaseappCallbackReply
	case common.CELLAPP_TYPE:
		return ifs.CellappCallbackReply
	}
	return nil
}

// ExposedToClient returns the messages a client imports: its own interface and the exposed baseapp messages
func (ifs *Interfaces) ExposedToClient() (client []msgcatalog.ExposedMessageInfo, baseapp []msgcatalog.ExposedMessageInfo) {
	return ifs.Client.ExportExposed(), ifs.Baseapp.ExportExposed()
}
