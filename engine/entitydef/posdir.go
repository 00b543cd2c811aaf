package entitydef

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// POS_DIR_ARRAY_SIZE is the element count written before position and direction
const POS_DIR_ARRAY_SIZE = 3

// AddPosDirToStream writes position and direction as two property entries
//
// Each entry is [utype u16][count u32][x][y][z], coordinates are float32, or int32 when noFloat is set.
func AddPosDirToStream(pkt *netutil.Packet, pos common.Vector3, dir common.Direction, noFloat bool) {
	addVector3Entry(pkt, PROPERTY_UTYPE_POSITION_XYZ, pos, noFloat)
	addVector3Entry(pkt, PROPERTY_UTYPE_DIRECTION_ROLL_PITCH_YAW, dir.AsVector3(), noFloat)
}

func addVector3Entry(pkt *netutil.Packet, utype uint16, v common.Vector3, noFloat bool) {
	pkt.AppendUint16(utype)
	pkt.AppendUint32(POS_DIR_ARRAY_SIZE)
	if noFloat {
		pkt.AppendInt32(int32(v.X))
		pkt.AppendInt32(int32(v.Y))
		pkt.AppendInt32(int32(v.Z))
	} else {
		pkt.AppendFloat32(float32(v.X))
		pkt.AppendFloat32(float32(v.Y))
		pkt.AppendFloat32(float32(v.Z))
	}
}

// ReadPosDirFromStream reads the entries written by AddPosDirToStream
func ReadPosDirFromStream(pkt *netutil.Packet, noFloat bool) (pos common.Vector3, dir common.Direction, err error) {
	if netutil.CatchUnderflow(func() {
		var v common.Vector3
		if v, err = readVector3Entry(pkt, PROPERTY_UTYPE_POSITION_XYZ, noFloat); err != nil {
			return
		}
		pos = v
		if v, err = readVector3Entry(pkt, PROPERTY_UTYPE_DIRECTION_ROLL_PITCH_YAW, noFloat); err != nil {
			return
		}
		dir = common.Direction{Roll: v.X, Pitch: v.Y, Yaw: v.Z}
	}) {
		err = errors.Wrap(netutil.ErrPacketUnderflow, "read position and direction")
	}
	return
}

func readVector3Entry(pkt *netutil.Packet, expectUType uint16, noFloat bool) (v common.Vector3, err error) {
	if utype := pkt.ReadUint16(); utype != expectUType {
		return v, errors.Errorf("expect property utype %d, but got %d", expectUType, utype)
	}
	if n := pkt.ReadUint32(); n != POS_DIR_ARRAY_SIZE {
		return v, errors.Errorf("expect %d coordinates, but got %d", POS_DIR_ARRAY_SIZE, n)
	}
	if noFloat {
		v.X, v.Y, v.Z = common.Coord(pkt.ReadInt32()), common.Coord(pkt.ReadInt32()), common.Coord(pkt.ReadInt32())
	} else {
		v.X, v.Y, v.Z = common.Coord(pkt.ReadFloat32()), common.Coord(pkt.ReadFloat32()), common.Coord(pkt.ReadFloat32())
	}
	return v, nil
}
