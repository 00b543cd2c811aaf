package mover

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// Controllers holds the move controllers of one entity and ticks them on the main loop timer
type Controllers struct {
	entity      Entity
	interval    time.Duration
	lastID      ControllerID
	controllers map[ControllerID]*MoveToPoint
	timer       *timer.Timer
	manualTick  bool
}

// NewControllers creates the controller set of entity, interval <= 0 uses consts.MOVER_TICK_INTERVAL
func NewControllers(entity Entity, interval time.Duration) *Controllers {
	if interval <= 0 {
		interval = consts.MOVER_TICK_INTERVAL
	}
	return &Controllers{
		entity:      entity,
		interval:    interval,
		controllers: map[ControllerID]*MoveToPoint{},
	}
}

// SetManualTick stops the controllers from scheduling goTimer timers, Tick must be called instead
func (cs *Controllers) SetManualTick(manual bool) {
	cs.manualTick = manual
	if manual {
		cs.stopTimer()
	} else if len(cs.controllers) > 0 {
		cs.startTimer()
	}
}

// Len returns the number of running controllers
func (cs *Controllers) Len() int {
	return len(cs.controllers)
}

// Get returns the controller of id, or nil
func (cs *Controllers) Get(id ControllerID) *MoveToPoint {
	return cs.controllers[id]
}

// MoveToPoint starts moving the entity to dest at velocity per second
func (cs *Controllers) MoveToPoint(dest common.Vector3, velocity, distance common.Coord, userArg interface{}, faceMovement, moveVertically bool) ControllerID {
	if velocity <= 0 {
		gwlog.Panicf("MoveToPoint: invalid velocity %v", velocity)
	}
	cs.lastID++
	c := &MoveToPoint{
		ID:             cs.lastID,
		Destination:    dest,
		Velocity:       velocity,
		Range:          distance,
		FaceMovement:   faceMovement,
		MoveVertically: moveVertically,
		UserArg:        userArg,
	}
	cs.add(c)
	return c.ID
}

func (cs *Controllers) add(c *MoveToPoint) {
	c.entity = cs.entity
	cs.controllers[c.ID] = c
	if !cs.manualTick {
		cs.startTimer()
	}
}

// Cancel stops the controller of id without calling OnMoveOver
func (cs *Controllers) Cancel(id ControllerID) bool {
	c := cs.controllers[id]
	if c == nil {
		return false
	}
	c.destroyed = true
	delete(cs.controllers, id)
	if len(cs.controllers) == 0 {
		cs.stopTimer()
	}
	return true
}

// CancelAll stops every controller
func (cs *Controllers) CancelAll() {
	for id, c := range cs.controllers {
		c.destroyed = true
		delete(cs.controllers, id)
	}
	cs.stopTimer()
}

// Tick moves every controller one interval, in controller id order
func (cs *Controllers) Tick() {
	for _, c := range cs.sorted() {
		if cs.controllers[c.ID] != c {
			continue
		}
		running := true
		gwutils.RunPanicless(func() {
			running = c.update(cs.interval)
		})
		if !running {
			delete(cs.controllers, c.ID)
		}
	}
	if len(cs.controllers) == 0 {
		cs.stopTimer()
	}
}

func (cs *Controllers) sorted() []*MoveToPoint {
	res := make([]*MoveToPoint, 0, len(cs.controllers))
	for _, c := range cs.controllers {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (cs *Controllers) startTimer() {
	if cs.timer == nil {
		cs.timer = timer.AddTimer(cs.interval, cs.Tick)
	}
}

func (cs *Controllers) stopTimer() {
	if cs.timer != nil {
		cs.timer.Cancel()
		cs.timer = nil
	}
}

// AddToStream writes the running controllers to pkt
func (cs *Controllers) AddToStream(pkt *netutil.Packet) {
	controllers := cs.sorted()
	pkt.AppendUint32(uint32(cs.lastID))
	pkt.AppendUint32(uint32(len(controllers)))
	for _, c := range controllers {
		pkt.AppendUint32(uint32(c.ID))
		pkt.AppendUint8(MOVE_TO_POINT_TYPE)
		pkt.AppendFloat32(float32(c.Destination.X))
		pkt.AppendFloat32(float32(c.Destination.Y))
		pkt.AppendFloat32(float32(c.Destination.Z))
		pkt.AppendFloat32(float32(c.Velocity))
		pkt.AppendBool(c.FaceMovement)
		pkt.AppendBool(c.MoveVertically)
		pkt.AppendFloat32(float32(c.Range))
		pkt.AppendInt32(c.Layer)
		pkt.AppendData(c.UserArg)
	}
}

// CreateFromStream restores controllers written by AddToStream and starts them
func (cs *Controllers) CreateFromStream(pkt *netutil.Packet) (err error) {
	var restored []*MoveToPoint
	var lastID ControllerID
	if netutil.CatchUnderflow(func() {
		lastID = ControllerID(pkt.ReadUint32())
		n := int(pkt.ReadUint32())
		for i := 0; i < n && err == nil; i++ {
			id := ControllerID(pkt.ReadUint32())
			if utype := pkt.ReadUint8(); utype != MOVE_TO_POINT_TYPE {
				err = errors.Errorf("controller %d has unknown type %d", id, utype)
				return
			}
			c := &MoveToPoint{ID: id}
			c.Destination.X = common.Coord(pkt.ReadFloat32())
			c.Destination.Y = common.Coord(pkt.ReadFloat32())
			c.Destination.Z = common.Coord(pkt.ReadFloat32())
			c.Velocity = common.Coord(pkt.ReadFloat32())
			c.FaceMovement = pkt.ReadBool()
			c.MoveVertically = pkt.ReadBool()
			c.Range = common.Coord(pkt.ReadFloat32())
			c.Layer = pkt.ReadInt32()
			if e := pkt.ReadData(&c.UserArg); e != nil {
				err = errors.Wrapf(e, "controller %d user arg", id)
				return
			}
			restored = append(restored, c)
		}
	}) {
		return errors.New("controllers stream underflow")
	}
	if err != nil {
		return err
	}

	if lastID > cs.lastID {
		cs.lastID = lastID
	}
	for _, c := range restored {
		cs.add(c)
	}
	return nil
}
