package bundle

import (
	"sync"

	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

var bundlePool = sync.Pool{
	New: func() interface{} {
		return &Bundle{}
	},
}

// Bundle accumulates messages into packets of at most maxPacketSize bytes
//
// A bundle is written by one goroutine and sent once. Messages are built in a scratch
// buffer and copied into packets when finished, so a message never straddles packets
// unless it is larger than one packet.
type Bundle struct {
	maxPacketSize int
	packets       []*netutil.Packet

	msg         *netutil.Packet
	msgHandler  *msgcatalog.MessageHandler
	lastMsgSize int
	numMessages int
	sent        bool
}

// NewBundle allocates a bundle splitting at maxPacketSize
func NewBundle(maxPacketSize int) *Bundle {
	if maxPacketSize <= consts.MESSAGE_ID_SIZE+consts.MESSAGE_LENGTH_SIZE+consts.MESSAGE_LENGTH_EXT_SIZE {
		gwlog.Panicf("NewBundle: max packet size %d is too small", maxPacketSize)
	}
	b := bundlePool.Get().(*Bundle)
	b.maxPacketSize = maxPacketSize
	return b
}

// Release returns the bundle to the pool, packets not sent are released
func (b *Bundle) Release() {
	for _, pkt := range b.packets {
		pkt.Release()
	}
	if b.msg != nil {
		b.msg.Release()
	}
	*b = Bundle{packets: b.packets[:0]}
	bundlePool.Put(b)
}

// MaxPacketSize returns the packet size limit
func (b *Bundle) MaxPacketSize() int {
	return b.maxPacketSize
}

// NewMessage opens a message, the previous message is finished first
func (b *Bundle) NewMessage(h *msgcatalog.MessageHandler) {
	b.assureNotSent("NewMessage")
	if h == nil {
		gwlog.Panicf("NewMessage: nil message handler")
	}
	if b.msg != nil {
		b.Finish(true)
	}
	b.msg = netutil.NewPacket()
	b.msgHandler = h
}

// CurrentMessage returns the open message, or nil
func (b *Bundle) CurrentMessage() *msgcatalog.MessageHandler {
	return b.msgHandler
}

// LastMessageSize returns the wire size of the last finished message
func (b *Bundle) LastMessageSize() int {
	return b.lastMsgSize
}

// NumMessages returns the number of finished messages
func (b *Bundle) NumMessages() int {
	return b.numMessages
}

// IsFinished returns if no message is open
func (b *Bundle) IsFinished() bool {
	return b.msg == nil
}

func (b *Bundle) assureNotSent(op string) {
	if b.sent {
		gwlog.Panicf("%s: bundle is already sent", op)
	}
}

func (b *Bundle) payload(op string) *netutil.Packet {
	b.assureNotSent(op)
	if b.msg == nil {
		gwlog.Panicf("%s: no open message, call NewMessage first", op)
	}
	return b.msg
}

// Finish closes the open message, writing its header in front of the payload
//
// isSend records the message in the send statistics of its handler, messages built to
// be forwarded inside another bundle are finished with isSend=false.
func (b *Bundle) Finish(isSend bool) {
	b.assureNotSent("Finish")
	if b.msg == nil {
		return
	}

	h, payload := b.msgHandler, b.msg
	b.msg, b.msgHandler = nil, nil

	header := netutil.NewPacket()
	header.AppendUint16(uint16(h.ID))
	if h.IsFixed() {
		if payload.Len() != int(h.Length) {
			gwlog.Panicf("Finish: fixed message %s expects %d bytes, but %d written", h, h.Length, payload.Len())
		}
	} else if payload.Len() < consts.MESSAGE_MAX_LENGTH {
		header.AppendUint16(uint16(payload.Len()))
	} else {
		header.AppendUint16(consts.MESSAGE_MAX_LENGTH)
		header.AppendUint32(uint32(payload.Len()))
	}

	size := header.Len() + payload.Len()
	if last := b.lastPacket(); last == nil || last.Len()+size > b.maxPacketSize && size <= b.maxPacketSize {
		b.newPacket()
	}
	b.write(header.Data())
	b.write(payload.Data())
	header.Release()
	payload.Release()

	b.lastMsgSize = size
	b.numMessages++
	if isSend {
		h.OnSend(size)
	}
}

func (b *Bundle) lastPacket() *netutil.Packet {
	if len(b.packets) == 0 {
		return nil
	}
	return b.packets[len(b.packets)-1]
}

func (b *Bundle) newPacket() *netutil.Packet {
	pkt := netutil.NewPacket()
	b.packets = append(b.packets, pkt)
	return pkt
}

// write spreads data over packets, each at most maxPacketSize bytes
func (b *Bundle) write(data []byte) {
	for len(data) > 0 {
		pkt := b.lastPacket()
		if pkt == nil || pkt.Len() >= b.maxPacketSize {
			pkt = b.newPacket()
		}
		n := b.maxPacketSize - pkt.Len()
		if n > len(data) {
			n = len(data)
		}
		pkt.AppendBytes(data[:n])
		data = data[n:]
	}
}

// Packets returns the finished packets
func (b *Bundle) Packets() []*netutil.Packet {
	return b.packets
}

// Len returns the number of bytes in finished packets
func (b *Bundle) Len() int {
	n := 0
	for _, pkt := range b.packets {
		n += pkt.Len()
	}
	return n
}

// Data returns a copy of all finished bytes
func (b *Bundle) Data() []byte {
	data := make([]byte, 0, b.Len())
	for _, pkt := range b.packets {
		data = append(data, pkt.Data()...)
	}
	return data
}

// Send hands the packets in order to ch, the bundle can not be used afterwards
//
// The first failure reason is returned.
func (b *Bundle) Send(ch *channel.Channel) netutil.Reason {
	b.assureNotSent("Send")
	if b.msg != nil {
		gwlog.Panicf("Send: message %s is not finished", b.msgHandler)
	}
	b.sent = true

	result := netutil.REASON_SUCCESS
	packets := b.packets
	b.packets = nil
	for _, pkt := range packets {
		reason := ch.Send(pkt)
		if reason != netutil.REASON_SUCCESS && result == netutil.REASON_SUCCESS {
			result = reason
		}
	}
	return result
}

// AppendUint8 appends one uint8 to the open message
func (b *Bundle) AppendUint8(v uint8) {
	b.payload("AppendUint8").AppendUint8(v)
}

// AppendInt8 appends one int8 to the open message
func (b *Bundle) AppendInt8(v int8) {
	b.payload("AppendInt8").AppendInt8(v)
}

// AppendBool appends one bool to the open message
func (b *Bundle) AppendBool(v bool) {
	b.payload("AppendBool").AppendBool(v)
}

// AppendUint16 appends one uint16 to the open message
func (b *Bundle) AppendUint16(v uint16) {
	b.payload("AppendUint16").AppendUint16(v)
}

// AppendInt16 appends one int16 to the open message
func (b *Bundle) AppendInt16(v int16) {
	b.payload("AppendInt16").AppendInt16(v)
}

// AppendUint32 appends one uint32 to the open message
func (b *Bundle) AppendUint32(v uint32) {
	b.payload("AppendUint32").AppendUint32(v)
}

// AppendInt32 appends one int32 to the open message
func (b *Bundle) AppendInt32(v int32) {
	b.payload("AppendInt32").AppendInt32(v)
}

// AppendUint64 appends one uint64 to the open message
func (b *Bundle) AppendUint64(v uint64) {
	b.payload("AppendUint64").AppendUint64(v)
}

// AppendInt64 appends one int64 to the open message
func (b *Bundle) AppendInt64(v int64) {
	b.payload("AppendInt64").AppendInt64(v)
}

// AppendFloat32 appends one float32 to the open message
func (b *Bundle) AppendFloat32(v float32) {
	b.payload("AppendFloat32").AppendFloat32(v)
}

// AppendFloat64 appends one float64 to the open message
func (b *Bundle) AppendFloat64(v float64) {
	b.payload("AppendFloat64").AppendFloat64(v)
}

// AppendString appends a zero terminated string to the open message
func (b *Bundle) AppendString(s string) {
	b.payload("AppendString").AppendString(s)
}

// AppendBlob appends length prefixed bytes to the open message
func (b *Bundle) AppendBlob(v []byte) {
	b.payload("AppendBlob").AppendBlob(v)
}

// AppendBytes appends raw bytes to the open message
func (b *Bundle) AppendBytes(v []byte) {
	b.payload("AppendBytes").AppendBytes(v)
}

// AppendData appends msgpack data to the open message
func (b *Bundle) AppendData(v interface{}) {
	b.payload("AppendData").AppendData(v)
}

// Payload gives direct access to the open message payload, for stream serializers
func (b *Bundle) Payload() *netutil.Packet {
	return b.payload("Payload")
}

// AppendBundle appends all finished bytes of other into the open message
func (b *Bundle) AppendBundle(other *Bundle) {
	if !other.IsFinished() {
		gwlog.Panicf("AppendBundle: forwarded bundle has open message %s", other.msgHandler)
	}
	p := b.payload("AppendBundle")
	for _, pkt := range other.packets {
		p.AppendBytes(pkt.Data())
	}
}
