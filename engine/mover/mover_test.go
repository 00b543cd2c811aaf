package mover

import (
	"math"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

type fakeEntity struct {
	pos      common.Vector3
	dir      common.Direction
	moves    []common.Vector3
	overs    []ControllerID
	onMove   func()
	userArgs []interface{}
}

func (e *fakeEntity) Position() common.Vector3    { return e.pos }
func (e *fakeEntity) Direction() common.Direction { return e.dir }
func (e *fakeEntity) SetPositionAndDirection(pos common.Vector3, dir common.Direction) {
	e.pos, e.dir = pos, dir
}
func (e *fakeEntity) OnMove(id ControllerID, layer int32, oldPos common.Vector3, userArg interface{}) {
	e.moves = append(e.moves, e.pos)
	e.userArgs = append(e.userArgs, userArg)
	if e.onMove != nil {
		e.onMove()
	}
}
func (e *fakeEntity) OnMoveOver(id ControllerID, layer int32, oldPos common.Vector3, userArg interface{}) {
	e.overs = append(e.overs, id)
}

func newTestControllers(e *fakeEntity) *Controllers {
	cs := NewControllers(e, time.Second)
	cs.SetManualTick(true)
	return cs
}

func TestMoveToPointArrives(t *testing.T) {
	e := &fakeEntity{}
	cs := newTestControllers(e)
	id := cs.MoveToPoint(common.Vector3{X: 10, Y: 5}, 2, 0, "arg", false, false)
	assert.Equal(t, 1, cs.Len())

	for i := 0; i < 10 && cs.Len() > 0; i++ {
		cs.Tick()
	}
	assert.Equal(t, 0, cs.Len())
	assert.Equal(t, 6, len(e.moves))
	assert.Equal(t, common.Vector3{X: 2}, e.moves[0])
	assert.Equal(t, common.Vector3{X: 10}, e.moves[4])
	assert.Equal(t, common.Vector3{X: 10}, e.pos)
	assert.Equal(t, []ControllerID{id}, e.overs)
	assert.Equal(t, "arg", e.userArgs[0])
	assert.Equal(t, common.Coord(0), e.dir.Yaw)
}

func TestMoveToPointStopsInRangeAndFacesMovement(t *testing.T) {
	e := &fakeEntity{}
	cs := newTestControllers(e)
	cs.MoveToPoint(common.Vector3{X: 10}, 4, 1, nil, true, false)
	for cs.Len() > 0 {
		cs.Tick()
	}
	assert.Equal(t, []common.Vector3{{X: 4}, {X: 8}, {X: 9}}, e.moves)
	assert.T(t, math.Abs(float64(e.dir.Yaw)-math.Pi/2) < 1e-6)
	assert.Equal(t, 1, len(e.overs))
}

func TestMoveVertically(t *testing.T) {
	e := &fakeEntity{}
	cs := newTestControllers(e)
	cs.MoveToPoint(common.Vector3{Y: 3}, 10, 0, nil, false, true)
	cs.Tick()
	assert.Equal(t, common.Vector3{Y: 3}, e.pos)
	assert.Equal(t, 1, len(e.overs))

	// without vertical movement the entity is already there
	e = &fakeEntity{}
	cs = newTestControllers(e)
	cs.MoveToPoint(common.Vector3{Y: 3}, 10, 0, nil, false, false)
	cs.Tick()
	assert.Equal(t, common.Vector3{}, e.pos)
	assert.Equal(t, 1, len(e.overs))
}

func TestCancelInOnMove(t *testing.T) {
	e := &fakeEntity{}
	cs := newTestControllers(e)
	id := cs.MoveToPoint(common.Vector3{X: 100}, 1, 0, nil, false, false)
	e.onMove = func() { cs.Cancel(id) }
	cs.Tick()
	assert.Equal(t, 0, cs.Len())
	assert.Equal(t, 1, len(e.moves))
	assert.Equal(t, 0, len(e.overs))
	assert.T(t, !cs.Cancel(id))
}

func TestControllersStream(t *testing.T) {
	e := &fakeEntity{}
	cs := newTestControllers(e)
	cs.MoveToPoint(common.Vector3{X: 1, Y: 2, Z: 3}, 5, 0.5, "first", true, false)
	cs.MoveToPoint(common.Vector3{X: -4}, 2, 0, "second", false, true)
	cs.Cancel(1)

	pkt := netutil.NewPacket()
	defer pkt.Release()
	cs.AddToStream(pkt)

	restored := newTestControllers(&fakeEntity{})
	assert.Equal(t, nil, restored.CreateFromStream(pkt))
	assert.Equal(t, 0, pkt.Remaining())
	assert.Equal(t, 1, restored.Len())
	c := restored.Get(2)
	assert.Equal(t, common.Vector3{X: -4}, c.Destination)
	assert.Equal(t, common.Coord(2), c.Velocity)
	assert.T(t, c.MoveVertically)
	assert.T(t, !c.FaceMovement)
	assert.Equal(t, "second", c.UserArg)

	// ids continue after the restored ones
	assert.Equal(t, ControllerID(3), restored.MoveToPoint(common.Vector3{}, 1, 0, nil, false, false))

	truncated := netutil.NewPacketFromBytes([]byte{1, 0})
	defer truncated.Release()
	assert.NotEqual(t, nil, restored.CreateFromStream(truncated))
}
