package mover

import (
	"fmt"
	"time"

	"github.com/xiaonanln/gomercury/engine/common"
)

// ControllerID identifies a controller of one entity
type ControllerID uint32

// Controller types on the stream
const (
	MOVE_TO_POINT_TYPE uint8 = 1
)

// Entity is moved by controllers
type Entity interface {
	Position() common.Vector3
	Direction() common.Direction
	SetPositionAndDirection(pos common.Vector3, dir common.Direction)
	// OnMove is called after every step with the position before the step
	OnMove(controllerID ControllerID, layer int32, oldPos common.Vector3, userArg interface{})
	// OnMoveOver is called once the destination is reached, the controller is gone afterwards
	OnMoveOver(controllerID ControllerID, layer int32, oldPos common.Vector3, userArg interface{})
}

// MoveToPoint moves an entity in a straight line to a destination
type MoveToPoint struct {
	ID             ControllerID
	Layer          int32
	Destination    common.Vector3
	Velocity       common.Coord // distance per second
	Range          common.Coord // stop this far away from the destination
	FaceMovement   bool
	MoveVertically bool
	UserArg        interface{}

	entity    Entity
	destroyed bool
}

func (c *MoveToPoint) String() string {
	return fmt.Sprintf("MoveToPoint<%d -> %s>", c.ID, c.Destination)
}

// IsDestroyed returns if the controller finished or was cancelled
func (c *MoveToPoint) IsDestroyed() bool {
	return c.destroyed
}

// update moves the entity one step of dt, returns false when the controller is over
func (c *MoveToPoint) update(dt time.Duration) bool {
	if c.destroyed {
		return false
	}

	step := c.Velocity * common.Coord(dt.Seconds())
	pos := c.entity.Position()
	oldPos := pos
	dir := c.entity.Direction()

	movement := c.Destination.Sub(pos)
	if !c.MoveVertically {
		movement.Y = 0
	}

	arrived := false
	if movement.Length() < step+c.Range {
		y := pos.Y
		pos = c.Destination
		if c.Range > 0 {
			movement = movement.Normalized().Mul(c.Range)
			pos = pos.Sub(movement)
		}
		if !c.MoveVertically {
			pos.Y = y
		}
		arrived = true
	} else {
		movement = movement.Normalized().Mul(step)
		pos = pos.Add(movement)
	}

	if c.FaceMovement && (movement.X != 0 || movement.Z != 0) {
		dir.Yaw = movement.Yaw()
	}

	c.entity.SetPositionAndDirection(pos, dir)
	c.entity.OnMove(c.ID, c.Layer, oldPos, c.UserArg)
	if c.destroyed {
		// cancelled in OnMove
		return false
	}

	if arrived {
		c.destroyed = true
		c.entity.OnMoveOver(c.ID, c.Layer, oldPos, c.UserArg)
		return false
	}
	return true
}
