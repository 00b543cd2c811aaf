package entitydef

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

func newAvatarDef() (*Registry, *EntityDef) {
	r := NewRegistry()
	r.NewEntityDef("Account")
	d := r.NewEntityDef("Avatar")
	d.AddProperty("name", UNICODE, ED_FLAG_ALL_CLIENTS, true)
	d.AddProperty("hp", INT32, ED_FLAG_OTHER_CLIENTS, false)
	d.AddProperty("gold", UINT32, ED_FLAG_BASE_AND_CLIENT, true)
	d.AddMethod(common.ROLE_CLIENT, "onChat", false, UNICODE, INT8)
	d.AddMethod(common.ROLE_CELL, "attack", true, INT32, VECTOR3)
	d.AddMethod(common.ROLE_BASE, "sendMail", true, MAILBOX, BLOB, PYTHON)
	return r, d
}

func TestRegistry(t *testing.T) {
	r, d := newAvatarDef()
	assert.Equal(t, common.EntityTypeID(2), d.TypeID)
	assert.Equal(t, d, r.FindByTypeID(2))
	assert.Equal(t, d, r.Find("Avatar"))
	assert.T(t, r.FindByTypeID(0) == nil)
	assert.T(t, r.FindByTypeID(3) == nil)

	hp := d.FindProperty("hp")
	assert.Equal(t, FIRST_PROPERTY_UTYPE+1, hp.UType)
	assert.Equal(t, hp, d.FindPropertyByUType(hp.UType))
	assert.Equal(t, int32(0), hp.Default)
	assert.Equal(t, 3, len(d.Properties()))

	attack := d.FindMethod(common.ROLE_CELL, "attack")
	assert.Equal(t, attack, d.FindMethodByUType(common.ROLE_CELL, attack.UType))
	assert.T(t, d.FindMethodByUType(common.ROLE_BASE, attack.UType) == nil)
	assert.T(t, d.HasRole(common.ROLE_BASE))
	assert.T(t, !r.Find("Account").HasRole(common.ROLE_CELL))

	assert.NotEqual(t, nil, gwutils.CatchPanic(func() {
		d.AddProperty("hp", INT8, ED_FLAG_CELL_PRIVATE, false)
	}))
	r.Freeze()
	assert.NotEqual(t, nil, gwutils.CatchPanic(func() {
		d.AddMethod(common.ROLE_CELL, "late", false)
	}))
}

func TestPropertyFlags(t *testing.T) {
	assert.T(t, ED_FLAG_ALL_CLIENTS.HasOwnClient())
	assert.T(t, ED_FLAG_ALL_CLIENTS.HasOtherClients())
	assert.T(t, !ED_FLAG_OTHER_CLIENTS.HasOwnClient())
	assert.T(t, ED_FLAG_BASE_AND_CLIENT.IsBase())
	assert.T(t, !ED_FLAG_CELL_PRIVATE.HasOwnClient())
	assert.T(t, ED_FLAG_CELL_PRIVATE.IsCell())
}

func TestConvertNumbers(t *testing.T) {
	v, err := INT8.Convert(100)
	assert.Equal(t, nil, err)
	assert.Equal(t, int8(100), v)

	_, err = INT8.Convert(200)
	assert.NotEqual(t, nil, err)
	_, err = UINT16.Convert(-1)
	assert.NotEqual(t, nil, err)
	_, err = INT32.Convert(1.5)
	assert.NotEqual(t, nil, err)
	_, err = INT64.Convert(uint64(1 << 63))
	assert.NotEqual(t, nil, err)
	_, err = INT32.Convert("1")
	assert.NotEqual(t, nil, err)

	v, err = UINT64.Convert(float64(3))
	assert.Equal(t, nil, err)
	assert.Equal(t, uint64(3), v)
	v, err = FLOAT.Convert(2)
	assert.Equal(t, nil, err)
	assert.Equal(t, float32(2), v)
}

func TestConvertOthers(t *testing.T) {
	v, err := VECTOR3.Convert([]interface{}{1, 2.5, int8(3)})
	assert.Equal(t, nil, err)
	assert.Equal(t, common.Vector3{X: 1, Y: 2.5, Z: 3}, v)
	_, err = VECTOR3.Convert([]interface{}{1, 2})
	assert.NotEqual(t, nil, err)

	v, err = BLOB.Convert("abc")
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte("abc"), v)

	_, err = MAILBOX.Convert(3)
	assert.NotEqual(t, nil, err)
	assert.Equal(t, UNICODE, ParseDataKind("unicode"))
	assert.Equal(t, UNKNOWN, ParseDataKind("ARRAY"))
}

func TestCheckArgsAndStream(t *testing.T) {
	_, d := newAvatarDef()
	md := d.FindMethod(common.ROLE_BASE, "sendMail")

	_, err := md.CheckArgs([]interface{}{nil, []byte("x")})
	assert.NotEqual(t, nil, err)
	_, err = md.CheckArgs([]interface{}{1, []byte("x"), nil})
	assert.NotEqual(t, nil, err)

	mb := &mailbox.Mailbox{EntityID: 9, ComponentID: 3001, TypeID: 2, Role: common.ROLE_BASE}
	args, err := md.CheckArgs([]interface{}{mb, "payload", map[string]interface{}{"k": "v"}})
	assert.Equal(t, nil, err)

	pkt := netutil.NewPacket()
	defer pkt.Release()
	md.AddToStream(pkt, args)
	assert.Equal(t, md.UType, pkt.ReadUint16())

	got, err := md.CreateFromStream(pkt)
	assert.Equal(t, nil, err)
	assert.T(t, mb.Equal(got[0].(*mailbox.Mailbox)))
	assert.Equal(t, []byte("payload"), got[1])
	assert.Equal(t, "v", got[2].(map[string]interface{})["k"])
	assert.Equal(t, 0, pkt.Remaining())
}

func TestCreateFromTruncatedStream(t *testing.T) {
	_, d := newAvatarDef()
	md := d.FindMethod(common.ROLE_CELL, "attack")
	pkt := netutil.NewPacketFromBytes([]byte{1, 0, 0, 0, 0})
	defer pkt.Release()
	_, err := md.CreateFromStream(pkt)
	assert.NotEqual(t, nil, err)
}

func TestPosDirStream(t *testing.T) {
	pos := common.Vector3{X: 1.5, Y: -2, Z: 300.25}
	dir := common.Direction{Roll: 0, Pitch: 0.5, Yaw: 3}

	pkt := netutil.NewPacket()
	AddPosDirToStream(pkt, pos, dir, false)
	assert.Equal(t, 2*(2+4+12), pkt.Len())
	gotPos, gotDir, err := ReadPosDirFromStream(pkt, false)
	pkt.Release()
	assert.Equal(t, nil, err)
	assert.Equal(t, pos, gotPos)
	assert.Equal(t, dir, gotDir)

	pkt = netutil.NewPacket()
	AddPosDirToStream(pkt, pos, dir, true)
	assert.Equal(t, PROPERTY_UTYPE_POSITION_XYZ, pkt.ReadUint16())
	assert.Equal(t, uint32(3), pkt.ReadUint32())
	assert.Equal(t, int32(1), pkt.ReadInt32())
	assert.Equal(t, int32(-2), pkt.ReadInt32())
	assert.Equal(t, int32(300), pkt.ReadInt32())
	pkt.Release()
}
