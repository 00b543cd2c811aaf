package msgcatalog

import (
	"fmt"
	"sync/atomic"

	"github.com/xiaonanln/gomercury/engine/netutil"
)

// MessageID is the numeric id of messages on the wire
type MessageID uint16

// MessageType tells if a message addresses a component or an entity
type MessageType int8

const (
	// MESSAGE_TYPE_COMPONENT messages are handled by the component itself
	MESSAGE_TYPE_COMPONENT MessageType = 0
	// MESSAGE_TYPE_ENTITY messages are handled by an entity
	MESSAGE_TYPE_ENTITY MessageType = 1
)

const (
	// MSG_LENGTH_VARIABLE marks variable length messages
	MSG_LENGTH_VARIABLE int16 = -1

	// MESSAGE_ARGS_TYPE_VARIABLE is the exported args type of variable messages
	MESSAGE_ARGS_TYPE_VARIABLE int8 = -1
	// MESSAGE_ARGS_TYPE_FIXED is the exported args type of fixed messages
	MESSAGE_ARGS_TYPE_FIXED int8 = 0
)

// Channel is the source a message was received from
//
// It is implemented by *channel.Channel, handlers use it to reply.
type Channel interface {
	Addr() string
	IsExternal() bool
}

// HandlerFunc handles one message, pkt is positioned at the payload
type HandlerFunc func(ch Channel, pkt *netutil.Packet)

// MessageHandler describes one message of a catalog
type MessageHandler struct {
	Name      string
	ID        MessageID
	Length    int16
	ArgsTypes []uint8
	Type      MessageType
	Exposed   bool
	Handler   HandlerFunc

	catalog *Catalog

	sendCount uint64
	sendSize  uint64
	recvCount uint64
	recvSize  uint64
}

// MessageStats is a snapshot of message counters
type MessageStats struct {
	Name      string
	ID        MessageID
	SendCount uint64
	SendSize  uint64
	RecvCount uint64
	RecvSize  uint64
}

// SendAvgSize returns the average sent size
func (s MessageStats) SendAvgSize() uint64 {
	if s.SendCount == 0 {
		return 0
	}
	return s.SendSize / s.SendCount
}

// RecvAvgSize returns the average received size
func (s MessageStats) RecvAvgSize() uint64 {
	if s.RecvCount == 0 {
		return 0
	}
	return s.RecvSize / s.RecvCount
}

// IsFixed returns if the message has a fixed length
func (h *MessageHandler) IsFixed() bool {
	return h.Length != MSG_LENGTH_VARIABLE
}

// FullName returns Interface::name
func (h *MessageHandler) FullName() string {
	if h.catalog == nil {
		return h.Name
	}
	return h.catalog.name + "::" + h.Name
}

// Catalog returns the catalog the message is registered in
func (h *MessageHandler) Catalog() *Catalog {
	return h.catalog
}

func (h *MessageHandler) String() string {
	return fmt.Sprintf("%s<%d>", h.FullName(), h.ID)
}

// OnSend records one sent message of size bytes
func (h *MessageHandler) OnSend(size int) {
	atomic.AddUint64(&h.sendCount, 1)
	atomic.AddUint64(&h.sendSize, uint64(size))
}

// OnRecv records one received message of size bytes
func (h *MessageHandler) OnRecv(size int) {
	atomic.AddUint64(&h.recvCount, 1)
	atomic.AddUint64(&h.recvSize, uint64(size))
}

// Stats returns a snapshot of message counters
func (h *MessageHandler) Stats() MessageStats {
	return MessageStats{
		Name:      h.FullName(),
		ID:        h.ID,
		SendCount: atomic.LoadUint64(&h.sendCount),
		SendSize:  atomic.LoadUint64(&h.sendSize),
		RecvCount: atomic.LoadUint64(&h.recvCount),
		RecvSize:  atomic.LoadUint64(&h.recvSize),
	}
}

func (h *MessageHandler) exposedInfo() ExposedMessageInfo {
	argsType := MESSAGE_ARGS_TYPE_FIXED
	if !h.IsFixed() {
		argsType = MESSAGE_ARGS_TYPE_VARIABLE
	}
	return ExposedMessageInfo{
		Name:      h.FullName(),
		ID:        h.ID,
		MsgLen:    h.Length,
		ArgsType:  argsType,
		ArgsTypes: append([]uint8(nil), h.ArgsTypes...),
	}
}
