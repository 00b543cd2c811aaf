package entitydef

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// PropertyFlags tells where a property lives and who receives its changes
type PropertyFlags uint32

const (
	ED_FLAG_CELL_PUBLIC PropertyFlags = 1 << iota
	ED_FLAG_CELL_PRIVATE
	ED_FLAG_ALL_CLIENTS
	ED_FLAG_CELL_PUBLIC_AND_OWN
	ED_FLAG_OWN_CLIENT
	ED_FLAG_BASE_AND_CLIENT
	ED_FLAG_BASE
	ED_FLAG_OTHER_CLIENTS
)

const (
	edFlagsCell        = ED_FLAG_CELL_PUBLIC | ED_FLAG_CELL_PRIVATE | ED_FLAG_ALL_CLIENTS | ED_FLAG_CELL_PUBLIC_AND_OWN | ED_FLAG_OWN_CLIENT | ED_FLAG_OTHER_CLIENTS
	edFlagsBase        = ED_FLAG_BASE | ED_FLAG_BASE_AND_CLIENT
	edFlagsOwnClient   = ED_FLAG_ALL_CLIENTS | ED_FLAG_CELL_PUBLIC_AND_OWN | ED_FLAG_OWN_CLIENT | ED_FLAG_BASE_AND_CLIENT
	edFlagsOtherClient = ED_FLAG_ALL_CLIENTS | ED_FLAG_OTHER_CLIENTS
)

// IsCell returns if the property lives on the cell
func (f PropertyFlags) IsCell() bool { return f&edFlagsCell != 0 }

// IsBase returns if the property lives on the base
func (f PropertyFlags) IsBase() bool { return f&edFlagsBase != 0 }

// HasOwnClient returns if changes are sent to the client of the entity itself
func (f PropertyFlags) HasOwnClient() bool { return f&edFlagsOwnClient != 0 }

// HasOtherClients returns if changes are sent to clients of entities that see this one
func (f PropertyFlags) HasOtherClients() bool { return f&edFlagsOtherClient != 0 }

// Reserved property utypes of position and direction
const (
	PROPERTY_UTYPE_POSITION_XYZ             uint16 = 1
	PROPERTY_UTYPE_DIRECTION_ROLL_PITCH_YAW uint16 = 2
	PROPERTY_UTYPE_SPACE_ID                 uint16 = 3
	FIRST_PROPERTY_UTYPE                    uint16 = 10
	FIRST_METHOD_UTYPE                      uint16 = 1
)

// PropertyDescription describes one property of an entity type
type PropertyDescription struct {
	Name       string
	UType      uint16
	Kind       DataKind
	Flags      PropertyFlags
	Persistent bool
	Default    interface{}
}

func (pd *PropertyDescription) String() string {
	return fmt.Sprintf("Property<%s:%s>", pd.Name, pd.Kind)
}

// MethodDescription describes one remotely callable method
type MethodDescription struct {
	Name    string
	UType   uint16
	Role    common.EntityRole
	Args    []DataKind
	Exposed bool

	entityDef *EntityDef
}

func (md *MethodDescription) String() string {
	return fmt.Sprintf("%s.%s", md.entityDef.Name, md.Name)
}

// EntityDef returns the entity type owning the method
func (md *MethodDescription) EntityDef() *EntityDef {
	return md.entityDef
}

// CheckArgs validates args and converts them to the Go types of the declared kinds
//
// Nothing is modified when an argument is rejected.
func (md *MethodDescription) CheckArgs(args []interface{}) ([]interface{}, error) {
	if len(args) != len(md.Args) {
		return nil, errors.Errorf("%s requires %d args, but %d given", md, len(md.Args), len(args))
	}
	converted := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := md.Args[i].Convert(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "%s arg %d", md, i)
		}
		converted[i] = v
	}
	return converted, nil
}

// AddToStream writes the method utype and converted args into pkt
func (md *MethodDescription) AddToStream(pkt *netutil.Packet, args []interface{}) {
	pkt.AppendUint16(md.UType)
	for i, arg := range args {
		md.Args[i].AddToStream(pkt, arg)
	}
}

// CreateFromStream reads the args written by AddToStream, after the method utype
func (md *MethodDescription) CreateFromStream(pkt *netutil.Packet) ([]interface{}, error) {
	args := make([]interface{}, len(md.Args))
	for i, kind := range md.Args {
		v, err := kind.CreateFromStream(pkt)
		if err != nil {
			return nil, errors.Wrapf(err, "%s arg %d", md, i)
		}
		args[i] = v
	}
	return args, nil
}

type methodTable struct {
	byName  map[string]*MethodDescription
	byUType map[uint16]*MethodDescription
}

func newMethodTable() methodTable {
	return methodTable{
		byName:  map[string]*MethodDescription{},
		byUType: map[uint16]*MethodDescription{},
	}
}

// EntityDef is the schema of an entity type
type EntityDef struct {
	Name   string
	TypeID common.EntityTypeID

	properties        map[string]*PropertyDescription
	propertiesByUType map[uint16]*PropertyDescription
	methods           [3]methodTable // indexed by role
	nextPropertyUType uint16
	nextMethodUType   uint16
	frozen            bool
}

func newEntityDef(name string, typeID common.EntityTypeID) *EntityDef {
	d := &EntityDef{
		Name:              name,
		TypeID:            typeID,
		properties:        map[string]*PropertyDescription{},
		propertiesByUType: map[uint16]*PropertyDescription{},
		nextPropertyUType: FIRST_PROPERTY_UTYPE,
		nextMethodUType:   FIRST_METHOD_UTYPE,
	}
	for i := range d.methods {
		d.methods[i] = newMethodTable()
	}
	return d
}

func (d *EntityDef) String() string {
	return fmt.Sprintf("EntityDef<%s:%d>", d.Name, d.TypeID)
}

func (d *EntityDef) assureWritable(op string) {
	if d.frozen {
		gwlog.Panicf("%s.%s: entity def is frozen", d, op)
	}
}

// AddProperty declares a property, duplicate names are fatal
func (d *EntityDef) AddProperty(name string, kind DataKind, flags PropertyFlags, persistent bool) *PropertyDescription {
	d.assureWritable("AddProperty")
	if !kind.IsValid() {
		gwlog.Panicf("%s.AddProperty: invalid kind of property %s", d, name)
	}
	if d.properties[name] != nil {
		gwlog.Panicf("%s.AddProperty: property %s is already declared", d, name)
	}
	pd := &PropertyDescription{
		Name:       name,
		UType:      d.nextPropertyUType,
		Kind:       kind,
		Flags:      flags,
		Persistent: persistent,
		Default:    kind.DefaultValue(),
	}
	d.nextPropertyUType++
	d.properties[name] = pd
	d.propertiesByUType[pd.UType] = pd
	return pd
}

// AddMethod declares a method of the role, duplicate names within a role are fatal
func (d *EntityDef) AddMethod(role common.EntityRole, name string, exposed bool, args ...DataKind) *MethodDescription {
	d.assureWritable("AddMethod")
	if !role.IsValid() {
		gwlog.Panicf("%s.AddMethod: invalid role %s of method %s", d, role, name)
	}
	table := d.methods[role]
	if table.byName[name] != nil {
		gwlog.Panicf("%s.AddMethod: %s method %s is already declared", d, role, name)
	}
	for _, kind := range args {
		if !kind.IsValid() {
			gwlog.Panicf("%s.AddMethod: invalid arg kind of method %s", d, name)
		}
	}
	md := &MethodDescription{
		Name:      name,
		UType:     d.nextMethodUType,
		Role:      role,
		Args:      args,
		Exposed:   exposed,
		entityDef: d,
	}
	d.nextMethodUType++
	table.byName[name] = md
	table.byUType[md.UType] = md
	return md
}

// FindProperty returns the property of the name, or nil
func (d *EntityDef) FindProperty(name string) *PropertyDescription {
	return d.properties[name]
}

// FindPropertyByUType returns the property of the utype, or nil
func (d *EntityDef) FindPropertyByUType(utype uint16) *PropertyDescription {
	return d.propertiesByUType[utype]
}

// Properties returns all properties ordered by utype
func (d *EntityDef) Properties() []*PropertyDescription {
	res := make([]*PropertyDescription, 0, len(d.properties))
	for _, pd := range d.properties {
		res = append(res, pd)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UType < res[j].UType
	})
	return res
}

// FindMethod returns the method of the role and name, or nil
func (d *EntityDef) FindMethod(role common.EntityRole, name string) *MethodDescription {
	if !role.IsValid() {
		return nil
	}
	return d.methods[role].byName[name]
}

// FindMethodByUType returns the method of the role and utype, or nil
func (d *EntityDef) FindMethodByUType(role common.EntityRole, utype uint16) *MethodDescription {
	if !role.IsValid() {
		return nil
	}
	return d.methods[role].byUType[utype]
}

// Methods returns the methods of the role ordered by utype
func (d *EntityDef) Methods(role common.EntityRole) []*MethodDescription {
	if !role.IsValid() {
		return nil
	}
	res := make([]*MethodDescription, 0, len(d.methods[role].byName))
	for _, md := range d.methods[role].byName {
		res = append(res, md)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UType < res[j].UType
	})
	return res
}

// HasRole returns if the entity type declares methods for the role
func (d *EntityDef) HasRole(role common.EntityRole) bool {
	return role.IsValid() && len(d.methods[role].byName) > 0
}

// Registry holds entity defs by name and type id
type Registry struct {
	defs   []*EntityDef
	byName map[string]*EntityDef
	frozen bool
}

// NewRegistry creates an empty entity def registry
func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]*EntityDef{},
	}
}

// NewEntityDef declares an entity type, type ids are assigned from 1
func (r *Registry) NewEntityDef(name string) *EntityDef {
	if r.frozen {
		gwlog.Panicf("NewEntityDef: registry is frozen, can not declare %s", name)
	}
	if r.byName[name] != nil {
		gwlog.Panicf("NewEntityDef: entity type %s is already declared", name)
	}
	d := newEntityDef(name, common.EntityTypeID(len(r.defs)+1))
	r.defs = append(r.defs, d)
	r.byName[name] = d
	return d
}

// Freeze forbids further declarations
func (r *Registry) Freeze() {
	r.frozen = true
	for _, d := range r.defs {
		d.frozen = true
	}
}

// Find returns the entity def of the name, or nil
func (r *Registry) Find(name string) *EntityDef {
	return r.byName[name]
}

// FindByTypeID returns the entity def of the type id, or nil
func (r *Registry) FindByTypeID(typeID common.EntityTypeID) *EntityDef {
	if typeID == 0 || int(typeID) > len(r.defs) {
		return nil
	}
	return r.defs[typeID-1]
}
