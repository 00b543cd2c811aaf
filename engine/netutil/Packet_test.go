package netutil

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestPacketReadWrite(t *testing.T) {
	p := NewPacket()
	defer p.Release()

	p.AppendUint8(7)
	p.AppendInt16(-2)
	p.AppendUint32(0xdeadbeef)
	p.AppendInt64(-1 << 40)
	p.AppendFloat32(1.5)
	p.AppendFloat64(-2.25)
	p.AppendBool(true)
	p.AppendString("avatar")
	p.AppendBlob([]byte{1, 2, 3})

	assert.Equal(t, uint8(7), p.ReadUint8())
	assert.Equal(t, int16(-2), p.ReadInt16())
	assert.Equal(t, uint32(0xdeadbeef), p.ReadUint32())
	assert.Equal(t, int64(-1<<40), p.ReadInt64())
	assert.Equal(t, float32(1.5), p.ReadFloat32())
	assert.Equal(t, -2.25, p.ReadFloat64())
	assert.Equal(t, true, p.ReadBool())
	assert.Equal(t, "avatar", p.ReadString())
	assert.Equal(t, []byte{1, 2, 3}, p.ReadBlob())
	assert.Equal(t, 0, p.Remaining())
}

func TestPacketLittleEndian(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendUint16(0x0102)
	assert.Equal(t, []byte{0x02, 0x01}, p.Data())
	p.PutUint16At(0, 0x0304)
	assert.Equal(t, []byte{0x04, 0x03}, p.Data())
}

func TestPacketUnderflow(t *testing.T) {
	p := NewPacketFromBytes([]byte{1, 2})
	defer p.Release()

	assert.T(t, CatchUnderflow(func() {
		p.ReadUint32()
	}))
	assert.T(t, !CatchUnderflow(func() {
		p.ReadUint16()
	}))
	assert.T(t, CatchUnderflow(func() {
		p.ReadString()
	}))
}

func TestPacketBlobLengthLies(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendUint32(1000)
	p.AppendBytes([]byte{1})
	assert.T(t, CatchUnderflow(func() {
		p.ReadBlob()
	}))
}

func TestPacketGrowAndReuse(t *testing.T) {
	p := NewPacket()
	big := make([]byte, 10000)
	big[9999] = 9
	p.AppendBytes(big)
	assert.Equal(t, 10000, p.Len())
	assert.Equal(t, byte(9), p.Data()[9999])
	p.Release()

	p = NewPacket()
	assert.Equal(t, 0, p.Len())
	p.Release()
}

func TestPacketData(t *testing.T) {
	p := NewPacket()
	defer p.Release()
	p.AppendData(map[string]interface{}{"hp": 100})
	var m map[string]interface{}
	assert.Equal(t, nil, p.ReadData(&m))
	assert.Equal(t, int64(100), toInt64(m["hp"]))
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return -1
}
