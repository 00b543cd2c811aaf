package entity

import (
	"sort"

	"github.com/xiaonanln/gomercury/engine/common"
)

// EntityMap is the data structure for maintaining entity IDs to entities
type EntityMap map[common.EntityID]*Entity

// Add adds a new entity to EntityMap
func (em EntityMap) Add(entity *Entity) {
	em[entity.ID] = entity
}

// Del deletes an entity from EntityMap
func (em EntityMap) Del(id common.EntityID) {
	delete(em, id)
}

// Get returns the Entity of specified entity ID in EntityMap
func (em EntityMap) Get(id common.EntityID) *Entity {
	return em[id]
}

// Sorted returns the entities ordered by ID
func (em EntityMap) Sorted() []*Entity {
	res := make([]*Entity, 0, len(em))
	for _, e := range em {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
