package proto

import (
	"unsafe"

	"github.com/xiaonanln/gomercury/engine/gwlog"
)

// Interface names
const (
	CLIENT_INTERFACE  = "ClientInterface"
	BASEAPP_INTERFACE = "BaseappInterface"
	CELLAPP_INTERFACE = "CellappInterface"
)

// Message names shared by several interfaces
const (
	// MSG_ON_REMOTE_METHOD_CALL carries a method call to an entity on the receiver (or its client)
	MSG_ON_REMOTE_METHOD_CALL = "onRemoteMethodCall"
	// MSG_ON_REMOTE_CALL_CELL_METHOD_FROM_CLIENT asks a base to relay a client call to its cell
	MSG_ON_REMOTE_CALL_CELL_METHOD_FROM_CLIENT = "onRemoteCallCellMethodFromClient"
	// MSG_ON_ENTITY_MAIL carries mail addressed to an entity by id and role
	MSG_ON_ENTITY_MAIL = "onEntityMail"
	// MSG_FORWARD_MESSAGE relays a finished bundle to another component
	MSG_FORWARD_MESSAGE = "forwardMessage"
	// MSG_FORWARD_MESSAGE_TO_CLIENT_FROM_CELLAPP asks a base to relay a cell bundle to its client
	MSG_FORWARD_MESSAGE_TO_CLIENT_FROM_CELLAPP = "forwardMessageToClientFromCellapp"
	// MSG_CALLBACK_REPLY carries the result of a call made with a callback id
	MSG_CALLBACK_REPLY = "callbackReply"
	// MSG_ON_IMPORT_CLIENT_MESSAGES carries the exposed message table to a client
	MSG_ON_IMPORT_CLIENT_MESSAGES = "onImportClientMessages"
	// MSG_ON_UPDATE_PROPERTYS carries property updates of an entity to a client
	MSG_ON_UPDATE_PROPERTYS = "onUpdatePropertys"
	// MSG_ON_UPDATE_BASE_POS carries the base position of the controlled entity
	MSG_ON_UPDATE_BASE_POS = "onUpdateBasePos"
	// MSG_ON_UPDATE_BASE_POS_XZ carries the base position ignoring Y
	MSG_ON_UPDATE_BASE_POS_XZ = "onUpdateBasePosXZ"
	// MSG_ON_ENTITY_ENTER_WORLD tells a client an entity entered its view
	MSG_ON_ENTITY_ENTER_WORLD = "onEntityEnterWorld"
	// MSG_ON_ENTITY_LEAVE_WORLD tells a client an entity left its view
	MSG_ON_ENTITY_LEAVE_WORLD = "onEntityLeaveWorld"
	// MSG_ON_UPDATE_DATA_FROM_CLIENT carries the position and direction reported by a client
	MSG_ON_UPDATE_DATA_FROM_CLIENT = "onUpdateDataFromClient"
	// MSG_ON_APP_ACTIVE_TICK keeps an idle internal channel from timing out
	MSG_ON_APP_ACTIVE_TICK = "onAppActiveTick"
)

const (
	// POSITION_SIZE is the size of a float position on the wire
	POSITION_SIZE = 12
	// POSITION_XZ_SIZE is the size of a float XZ position on the wire
	POSITION_XZ_SIZE = 8
	// POS_DIR_SIZE is the size of position and direction (roll, pitch, yaw) on the wire
	POS_DIR_SIZE = 24
)

// Position is the wire layout of a float position
type Position struct {
	X, Y, Z float32
}

// PosDir is the wire layout of position and direction
type PosDir struct {
	X, Y, Z          float32
	Roll, Pitch, Yaw float32
}

func init() {
	if unsafe.Sizeof(Position{}) != POSITION_SIZE {
		gwlog.Fatalf("Wrong type definition for Position: size is %d, but should be %d", unsafe.Sizeof(Position{}), POSITION_SIZE)
	}
	if unsafe.Sizeof(PosDir{}) != POS_DIR_SIZE {
		gwlog.Fatalf("Wrong type definition for PosDir: size is %d, but should be %d", unsafe.Sizeof(PosDir{}), POS_DIR_SIZE)
	}
}
