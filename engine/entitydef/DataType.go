package entitydef

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/typeconv"
)

// DataKind is the closed set of types of properties and method arguments
type DataKind uint8

const (
	UNKNOWN DataKind = iota
	INT8
	INT16
	INT32
	INT64
	UINT8
	UINT16
	UINT32
	UINT64
	FLOAT
	DOUBLE
	STRING
	UNICODE
	VECTOR3
	MAILBOX
	BLOB
	PYTHON
)

var dataKindNames = [...]string{
	"UNKNOWN", "INT8", "INT16", "INT32", "INT64", "UINT8", "UINT16", "UINT32", "UINT64",
	"FLOAT", "DOUBLE", "STRING", "UNICODE", "VECTOR3", "MAILBOX", "BLOB", "PYTHON",
}

var dataKindGoTypes = [...]reflect.Type{
	nil,
	reflect.TypeOf(int8(0)),
	reflect.TypeOf(int16(0)),
	reflect.TypeOf(int32(0)),
	reflect.TypeOf(int64(0)),
	reflect.TypeOf(uint8(0)),
	reflect.TypeOf(uint16(0)),
	reflect.TypeOf(uint32(0)),
	reflect.TypeOf(uint64(0)),
	reflect.TypeOf(float32(0)),
	reflect.TypeOf(float64(0)),
	reflect.TypeOf(""),
	reflect.TypeOf(""),
	reflect.TypeOf(common.Vector3{}),
	reflect.TypeOf((*mailbox.Mailbox)(nil)),
	reflect.TypeOf([]byte(nil)),
	reflect.TypeOf((*interface{})(nil)).Elem(),
}

func (k DataKind) String() string {
	if int(k) >= len(dataKindNames) {
		return fmt.Sprintf("DataKind<%d>", int(k))
	}
	return dataKindNames[k]
}

// ParseDataKind converts a type name to DataKind
func ParseDataKind(name string) DataKind {
	name = strings.ToUpper(name)
	for i, n := range dataKindNames {
		if n == name {
			return DataKind(i)
		}
	}
	return UNKNOWN
}

// IsValid returns if k is a known kind
func (k DataKind) IsValid() bool {
	return k > UNKNOWN && int(k) < len(dataKindNames)
}

// GoType returns the Go type of converted values
func (k DataKind) GoType() reflect.Type {
	if !k.IsValid() {
		return nil
	}
	return dataKindGoTypes[k]
}

func (k DataKind) isInteger() bool {
	return k >= INT8 && k <= UINT64
}

func (k DataKind) isNumber() bool {
	return k >= INT8 && k <= DOUBLE
}

// DefaultValue returns the value of unset properties
func (k DataKind) DefaultValue() interface{} {
	switch k {
	case MAILBOX, PYTHON:
		return nil
	case BLOB:
		return []byte{}
	}
	if t := k.GoType(); t != nil {
		return reflect.Zero(t).Interface()
	}
	return nil
}

// Convert checks v against k and returns it as the Go type of k
//
// Numbers are converted between Go number types as long as the value fits.
func (k DataKind) Convert(v interface{}) (interface{}, error) {
	switch {
	case k.isNumber():
		return k.convertNumber(v)
	case k == STRING || k == UNICODE:
		if s, ok := v.(string); ok {
			return s, nil
		}
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	case k == VECTOR3:
		return convertVector3(v)
	case k == MAILBOX:
		if v == nil {
			return (*mailbox.Mailbox)(nil), nil
		}
		if mb, ok := v.(*mailbox.Mailbox); ok {
			return mb, nil
		}
	case k == BLOB:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	case k == PYTHON:
		return v, nil
	}
	return nil, errors.Errorf("%s can not take %T", k, v)
}

func (k DataKind) convertNumber(v interface{}) (interface{}, error) {
	rv := reflect.ValueOf(v)
	var i int64
	var u uint64
	negative := false
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i = rv.Int()
		negative = i < 0
		u = uint64(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u = rv.Uint()
		i = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if k.isInteger() && f != float64(int64(f)) {
			return nil, errors.Errorf("%s can not take fractional %v", k, v)
		}
		i, u = int64(f), uint64(f)
		negative = f < 0
	default:
		return nil, errors.Errorf("%s can not take %T", k, v)
	}

	t := k.GoType()
	zero := reflect.Zero(t)
	switch {
	case k >= INT8 && k <= INT64:
		if (!negative && u > 1<<63-1) || zero.OverflowInt(i) {
			return nil, errors.Errorf("%v overflows %s", v, k)
		}
	case k >= UINT8 && k <= UINT64:
		if negative || zero.OverflowUint(u) {
			return nil, errors.Errorf("%v overflows %s", v, k)
		}
	}

	var res interface{}
	if err := gwutils.CatchPanic(func() {
		res = typeconv.Convert(v, t).Interface()
	}); err != nil {
		return nil, errors.Errorf("convert %T to %s: %v", v, k, err)
	}
	return res, nil
}

func convertVector3(v interface{}) (interface{}, error) {
	switch vv := v.(type) {
	case common.Vector3:
		return vv, nil
	case *common.Vector3:
		if vv != nil {
			return *vv, nil
		}
	case []interface{}:
		if len(vv) == 3 {
			var coords [3]common.Coord
			for i, c := range vv {
				f, err := FLOAT.convertNumber(c)
				if err != nil {
					return nil, errors.Wrap(err, "VECTOR3")
				}
				coords[i] = common.Coord(f.(float32))
			}
			return common.Vector3{X: coords[0], Y: coords[1], Z: coords[2]}, nil
		}
	}
	return nil, errors.Errorf("VECTOR3 can not take %T", v)
}

// AddToStream writes a value returned by Convert into pkt
func (k DataKind) AddToStream(pkt *netutil.Packet, v interface{}) {
	switch k {
	case INT8:
		pkt.AppendInt8(v.(int8))
	case INT16:
		pkt.AppendInt16(v.(int16))
	case INT32:
		pkt.AppendInt32(v.(int32))
	case INT64:
		pkt.AppendInt64(v.(int64))
	case UINT8:
		pkt.AppendUint8(v.(uint8))
	case UINT16:
		pkt.AppendUint16(v.(uint16))
	case UINT32:
		pkt.AppendUint32(v.(uint32))
	case UINT64:
		pkt.AppendUint64(v.(uint64))
	case FLOAT:
		pkt.AppendFloat32(v.(float32))
	case DOUBLE:
		pkt.AppendFloat64(v.(float64))
	case STRING:
		pkt.AppendString(v.(string))
	case UNICODE:
		pkt.AppendBlob([]byte(v.(string)))
	case VECTOR3:
		vec := v.(common.Vector3)
		pkt.AppendFloat32(float32(vec.X))
		pkt.AppendFloat32(float32(vec.Y))
		pkt.AppendFloat32(float32(vec.Z))
	case MAILBOX:
		mb, _ := v.(*mailbox.Mailbox)
		if mb == nil {
			pkt.AppendBool(false)
		} else {
			pkt.AppendBool(true)
			mb.PackTransfer(pkt)
		}
	case BLOB:
		pkt.AppendBlob(v.([]byte))
	case PYTHON:
		pkt.AppendData(v)
	default:
		panic(errors.Errorf("AddToStream: invalid data kind %s", k))
	}
}

// CreateFromStream reads a value written by AddToStream, mailboxes are not attached to a router
func (k DataKind) CreateFromStream(pkt *netutil.Packet) (v interface{}, err error) {
	if netutil.CatchUnderflow(func() {
		v, err = k.readFromStream(pkt)
	}) {
		return nil, errors.Wrapf(netutil.ErrPacketUnderflow, "read %s", k)
	}
	return
}

func (k DataKind) readFromStream(pkt *netutil.Packet) (interface{}, error) {
	switch k {
	case INT8:
		return pkt.ReadInt8(), nil
	case INT16:
		return pkt.ReadInt16(), nil
	case INT32:
		return pkt.ReadInt32(), nil
	case INT64:
		return pkt.ReadInt64(), nil
	case UINT8:
		return pkt.ReadUint8(), nil
	case UINT16:
		return pkt.ReadUint16(), nil
	case UINT32:
		return pkt.ReadUint32(), nil
	case UINT64:
		return pkt.ReadUint64(), nil
	case FLOAT:
		return pkt.ReadFloat32(), nil
	case DOUBLE:
		return pkt.ReadFloat64(), nil
	case STRING:
		return pkt.ReadString(), nil
	case UNICODE:
		return string(pkt.ReadBlob()), nil
	case VECTOR3:
		x, y, z := pkt.ReadFloat32(), pkt.ReadFloat32(), pkt.ReadFloat32()
		return common.Vector3{X: common.Coord(x), Y: common.Coord(y), Z: common.Coord(z)}, nil
	case MAILBOX:
		if !pkt.ReadBool() {
			return (*mailbox.Mailbox)(nil), nil
		}
		return mailbox.UnpackTransfer(pkt)
	case BLOB:
		return pkt.ReadBlob(), nil
	case PYTHON:
		var v interface{}
		if err := pkt.ReadData(&v); err != nil {
			return nil, errors.Wrap(err, "read PYTHON")
		}
		return v, nil
	}
	return nil, errors.Errorf("CreateFromStream: invalid data kind %s", k)
}
