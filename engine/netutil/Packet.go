package netutil

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
)

const (
	_MIN_PACKET_CAP = consts.PACKET_MAX_SIZE
)

var (
	// NETWORK_ENDIAN is the byte order of all integers on the wire
	NETWORK_ENDIAN = binary.LittleEndian

	// ErrPacketUnderflow is raised (as panic value) when reading past the end of a packet
	ErrPacketUnderflow = errors.New("packet underflow")

	packetPool = sync.Pool{
		New: func() interface{} {
			return &Packet{
				bytes: make([]byte, 0, _MIN_PACKET_CAP),
			}
		},
	}

	debugInfo struct {
		AllocCount   int64
		ReleaseCount int64
	}
)

// Packet is a byte buffer written at the end and read from the beginning
//
// Reading past the written data panics with ErrPacketUnderflow, readers of untrusted
// data recover it and treat the data as corrupted.
type Packet struct {
	bytes      []byte
	readCursor int
	refcount   int64
}

// NewPacket allocates a packet from the pool
func NewPacket() *Packet {
	p := packetPool.Get().(*Packet)
	p.refcount = 1
	if len(p.bytes) != 0 || p.readCursor != 0 {
		gwlog.Panicf("NewPacket: pooled packet is not empty: len=%d, cursor=%d", len(p.bytes), p.readCursor)
	}
	if consts.DEBUG_PACKETS {
		atomic.AddInt64(&debugInfo.AllocCount, 1)
	}
	return p
}

// NewPacketFromBytes allocates a packet containing a copy of data
func NewPacketFromBytes(data []byte) *Packet {
	p := NewPacket()
	p.AppendBytes(data)
	return p
}

// Release returns the packet to the pool when no one references it
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)
	if refcount == 0 {
		p.bytes = p.bytes[:0]
		p.readCursor = 0
		packetPool.Put(p)
		if consts.DEBUG_PACKETS {
			atomic.AddInt64(&debugInfo.ReleaseCount, 1)
		}
	} else if refcount < 0 {
		gwlog.Panicf("releasing packet with refcount=%d", refcount)
	}
}

// Len returns the number of written bytes
func (p *Packet) Len() int {
	return len(p.bytes)
}

// Data returns all written bytes
func (p *Packet) Data() []byte {
	return p.bytes
}

// UnreadData returns bytes not read yet
func (p *Packet) UnreadData() []byte {
	return p.bytes[p.readCursor:]
}

// Remaining returns the number of unread bytes
func (p *Packet) Remaining() int {
	return len(p.bytes) - p.readCursor
}

func (p *Packet) extend(n int) []byte {
	l := len(p.bytes)
	if l+n > cap(p.bytes) {
		newBytes := make([]byte, l, 2*cap(p.bytes)+n)
		copy(newBytes, p.bytes)
		p.bytes = newBytes
	}
	p.bytes = p.bytes[:l+n]
	return p.bytes[l : l+n]
}

func (p *Packet) next(n int) []byte {
	if n < 0 || p.readCursor+n > len(p.bytes) {
		panic(ErrPacketUnderflow)
	}
	b := p.bytes[p.readCursor : p.readCursor+n]
	p.readCursor += n
	return b
}

// AppendUint8 appends one byte
func (p *Packet) AppendUint8(v uint8) {
	p.extend(1)[0] = v
}

// AppendInt8 appends one int8
func (p *Packet) AppendInt8(v int8) {
	p.AppendUint8(uint8(v))
}

// AppendBool appends 1/0
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendUint8(1)
	} else {
		p.AppendUint8(0)
	}
}

// AppendUint16 appends one uint16
func (p *Packet) AppendUint16(v uint16) {
	NETWORK_ENDIAN.PutUint16(p.extend(2), v)
}

// AppendInt16 appends one int16
func (p *Packet) AppendInt16(v int16) {
	p.AppendUint16(uint16(v))
}

// AppendUint32 appends one uint32
func (p *Packet) AppendUint32(v uint32) {
	NETWORK_ENDIAN.PutUint32(p.extend(4), v)
}

// AppendInt32 appends one int32
func (p *Packet) AppendInt32(v int32) {
	p.AppendUint32(uint32(v))
}

// AppendUint64 appends one uint64
func (p *Packet) AppendUint64(v uint64) {
	NETWORK_ENDIAN.PutUint64(p.extend(8), v)
}

// AppendInt64 appends one int64
func (p *Packet) AppendInt64(v int64) {
	p.AppendUint64(uint64(v))
}

// AppendFloat32 appends one float32
func (p *Packet) AppendFloat32(f float32) {
	p.AppendUint32(math.Float32bits(f))
}

// AppendFloat64 appends one float64
func (p *Packet) AppendFloat64(f float64) {
	p.AppendUint64(math.Float64bits(f))
}

// AppendBytes appends raw bytes
func (p *Packet) AppendBytes(v []byte) {
	copy(p.extend(len(v)), v)
}

// AppendString appends a zero terminated string
func (p *Packet) AppendString(s string) {
	copy(p.extend(len(s)), s)
	p.AppendUint8(0)
}

// AppendBlob appends uint32 length followed by bytes
func (p *Packet) AppendBlob(v []byte) {
	p.AppendUint32(uint32(len(v)))
	p.AppendBytes(v)
}

// AppendData appends msgpack encoded data as a blob
func (p *Packet) AppendData(msg interface{}) {
	data, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		gwlog.Panicf("AppendData: pack %T failed: %v", msg, err)
	}
	p.AppendBlob(data)
}

// PutUint16At overwrites an uint16 at offset
func (p *Packet) PutUint16At(offset int, v uint16) {
	NETWORK_ENDIAN.PutUint16(p.bytes[offset:offset+2], v)
}

// ReadUint8 reads one byte
func (p *Packet) ReadUint8() uint8 {
	return p.next(1)[0]
}

// ReadInt8 reads one int8
func (p *Packet) ReadInt8() int8 {
	return int8(p.ReadUint8())
}

// ReadBool reads one byte 1/0
func (p *Packet) ReadBool() bool {
	return p.ReadUint8() != 0
}

// ReadUint16 reads one uint16
func (p *Packet) ReadUint16() uint16 {
	return NETWORK_ENDIAN.Uint16(p.next(2))
}

// ReadInt16 reads one int16
func (p *Packet) ReadInt16() int16 {
	return int16(p.ReadUint16())
}

// ReadUint32 reads one uint32
func (p *Packet) ReadUint32() uint32 {
	return NETWORK_ENDIAN.Uint32(p.next(4))
}

// ReadInt32 reads one int32
func (p *Packet) ReadInt32() int32 {
	return int32(p.ReadUint32())
}

// ReadUint64 reads one uint64
func (p *Packet) ReadUint64() uint64 {
	return NETWORK_ENDIAN.Uint64(p.next(8))
}

// ReadInt64 reads one int64
func (p *Packet) ReadInt64() int64 {
	return int64(p.ReadUint64())
}

// ReadFloat32 reads one float32
func (p *Packet) ReadFloat32() float32 {
	return math.Float32frombits(p.ReadUint32())
}

// ReadFloat64 reads one float64
func (p *Packet) ReadFloat64() float64 {
	return math.Float64frombits(p.ReadUint64())
}

// ReadBytes reads n bytes, the bytes are not copied
func (p *Packet) ReadBytes(n int) []byte {
	return p.next(n)
}

// ReadString reads a zero terminated string
func (p *Packet) ReadString() string {
	for i := p.readCursor; i < len(p.bytes); i++ {
		if p.bytes[i] == 0 {
			s := string(p.bytes[p.readCursor:i])
			p.readCursor = i + 1
			return s
		}
	}
	panic(ErrPacketUnderflow)
}

// ReadBlob reads uint32 length followed by bytes, the bytes are copied
func (p *Packet) ReadBlob() []byte {
	n := p.ReadUint32()
	if uint64(n) > uint64(p.Remaining()) {
		panic(ErrPacketUnderflow)
	}
	b := make([]byte, n)
	copy(b, p.next(int(n)))
	return b
}

// ReadData reads a blob and unpacks it into msg
func (p *Packet) ReadData(msg interface{}) error {
	return MSG_PACKER.UnpackMsg(p.ReadBlob(), msg)
}

// CatchUnderflow runs f and reports if it read past the end of a packet
func CatchUnderflow(f func()) (underflow bool) {
	defer func() {
		if err := recover(); err != nil {
			if err == ErrPacketUnderflow {
				underflow = true
				return
			}
			panic(err)
		}
	}()
	f()
	return
}
