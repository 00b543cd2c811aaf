package common

import "fmt"

// EntityID is the process-local numeric id of entities
type EntityID int32

// ComponentID identifies a server process in the cluster, 0 means the client
type ComponentID uint64

// EntityTypeID is the id of an entity schema
type EntityTypeID uint16

// ComponentType is the type of a server process
type ComponentType int

const (
	UNKNOWN_COMPONENT_TYPE ComponentType = iota
	DBMGR_TYPE
	LOGINAPP_TYPE
	BASEAPPMGR_TYPE
	CELLAPPMGR_TYPE
	CELLAPP_TYPE
	BASEAPP_TYPE
	CLIENT_TYPE
	MACHINE_TYPE
	CONSOLE_TYPE
)

var componentTypeNames = [...]string{
	"unknown", "dbmgr", "loginapp", "baseappmgr", "cellappmgr",
	"cellapp", "baseapp", "client", "machine", "console",
}

func (ct ComponentType) String() string {
	if ct < 0 || int(ct) >= len(componentTypeNames) {
		return fmt.Sprintf("ComponentType<%d>", int(ct))
	}
	return componentTypeNames[ct]
}

// ParseComponentType converts a name to ComponentType
func ParseComponentType(name string) ComponentType {
	for i, n := range componentTypeNames {
		if n == name {
			return ComponentType(i)
		}
	}
	return UNKNOWN_COMPONENT_TYPE
}

// EntityRole tags which part of an entity a mailbox points to
type EntityRole int16

const (
	// ROLE_CELL addresses the cell (spatial) instance
	ROLE_CELL EntityRole = iota
	// ROLE_BASE addresses the base (persistent) instance
	ROLE_BASE
	// ROLE_CLIENT addresses the client mirror
	ROLE_CLIENT
)

func (r EntityRole) String() string {
	switch r {
	case ROLE_CELL:
		return "Cell"
	case ROLE_BASE:
		return "Base"
	case ROLE_CLIENT:
		return "Client"
	}
	return fmt.Sprintf("Role<%d>", int16(r))
}

// IsValid returns if the role is one of the known roles
func (r EntityRole) IsValid() bool {
	return r >= ROLE_CELL && r <= ROLE_CLIENT
}
