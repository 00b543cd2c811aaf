package witness

import (
	"fmt"
	"sort"

	"github.com/xiaonanln/go-aoi"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
)

// Space tracks the positions of entities and their AOI neighbors
type Space struct {
	ID     int
	aoiMgr aoi.AOIManager
	nodes  map[common.EntityID]*Node
	dist   common.Coord
}

// NewSpace creates a space whose entities see each other within aoiDistance on X and Z
func NewSpace(id int, aoiDistance common.Coord) *Space {
	return &Space{
		ID:     id,
		aoiMgr: aoi.NewXZListAOIManager(aoi.Coord(aoiDistance)),
		nodes:  map[common.EntityID]*Node{},
		dist:   aoiDistance,
	}
}

func (space *Space) String() string {
	return fmt.Sprintf("Space<%d>", space.ID)
}

// Node is an entity placed in a space
type Node struct {
	EntityID  common.EntityID
	TypeID    common.EntityTypeID
	Position  common.Vector3
	Direction common.Direction
	aoi       aoi.AOI
	space     *Space
	witness   *Witness
	neighbors map[*Node]struct{}
}

func (n *Node) String() string {
	return fmt.Sprintf("Node<%d@%s>", n.EntityID, n.space)
}

// Len returns the number of entities in the space
func (space *Space) Len() int {
	return len(space.nodes)
}

// Find returns the node of entity id, or nil
func (space *Space) Find(id common.EntityID) *Node {
	return space.nodes[id]
}

// Enter places an entity in the space, w may be nil for entities without a client
func (space *Space) Enter(id common.EntityID, typeID common.EntityTypeID, pos common.Vector3, w *Witness) *Node {
	if space.nodes[id] != nil {
		gwlog.Panicf("%s.Enter: entity %d is already in space", space, id)
	}
	n := &Node{
		EntityID:  id,
		TypeID:    typeID,
		Position:  pos,
		space:     space,
		witness:   w,
		neighbors: map[*Node]struct{}{},
	}
	if w != nil {
		w.node = n
	}
	aoi.InitAOI(&n.aoi, aoi.Coord(space.dist), n, n)
	space.nodes[id] = n
	space.aoiMgr.Enter(&n.aoi, aoi.Coord(pos.X), aoi.Coord(pos.Z))
	return n
}

// Move updates the position of the node and its AOI neighbors
func (space *Space) Move(n *Node, pos common.Vector3) {
	n.Position = pos
	space.aoiMgr.Moved(&n.aoi, aoi.Coord(pos.X), aoi.Coord(pos.Z))
}

// Leave removes the node from the space, its neighbors are told it left
func (space *Space) Leave(n *Node) {
	if space.nodes[n.EntityID] != n {
		gwlog.Errorf("%s.Leave: %s is not in space", space, n)
		return
	}
	space.aoiMgr.Leave(&n.aoi)
	delete(space.nodes, n.EntityID)
	if n.witness != nil {
		n.witness.node = nil
	}
}

// OnEnterAOI is called by the AOI manager when other becomes a neighbor of n
func (n *Node) OnEnterAOI(other *aoi.AOI) {
	o := other.Data.(*Node)
	n.neighbors[o] = struct{}{}
	if n.witness != nil {
		n.witness.onEnterWorld(o)
	}
}

// OnLeaveAOI is called by the AOI manager when other is no longer a neighbor of n
func (n *Node) OnLeaveAOI(other *aoi.AOI) {
	o := other.Data.(*Node)
	delete(n.neighbors, o)
	if n.witness != nil {
		n.witness.onLeaveWorld(o)
	}
}

// Witness returns the witness of the node, or nil
func (n *Node) Witness() *Witness {
	return n.witness
}

// AttachWitness gives the node a client view, the client learns all current neighbors
func (n *Node) AttachWitness(w *Witness) {
	if n.witness != nil {
		gwlog.Panicf("%s.AttachWitness: witness already attached", n)
	}
	n.witness = w
	w.node = n
	for _, o := range n.Neighbors() {
		w.onEnterWorld(o)
	}
}

// DetachWitness removes the client view of the node
func (n *Node) DetachWitness() *Witness {
	w := n.witness
	if w != nil {
		w.node = nil
		n.witness = nil
	}
	return w
}

// IsNeighbor returns if other is in the AOI of n
func (n *Node) IsNeighbor(other *Node) bool {
	_, ok := n.neighbors[other]
	return ok
}

// Neighbors returns the neighbors sorted by entity id
func (n *Node) Neighbors() []*Node {
	res := make([]*Node, 0, len(n.neighbors))
	for o := range n.neighbors {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].EntityID < res[j].EntityID
	})
	return res
}

// BroadcastToOthers sends message h, written by build, to every neighbor with a client
//
// Returns the number of clients the message was relayed to.
func (n *Node) BroadcastToOthers(h *msgcatalog.MessageHandler, build func(b *bundle.Bundle)) int {
	sent := 0
	for _, o := range n.Neighbors() {
		w := o.witness
		if w == nil {
			continue
		}
		b := w.newBundle()
		build(b)
		if w.SendToClient(h, b) {
			sent++
		}
		b.Release()
	}
	return sent
}
