package common

// EntityIDSet is a set of entity IDs
type EntityIDSet map[EntityID]struct{}

// Add adds an entity ID
func (es EntityIDSet) Add(id EntityID) {
	es[id] = struct{}{}
}

// Del removes an entity ID
func (es EntityIDSet) Del(id EntityID) {
	delete(es, id)
}

// Contains returns if the set contains the entity ID
func (es EntityIDSet) Contains(id EntityID) bool {
	_, ok := es[id]
	return ok
}

// StringSet is a set of strings
type StringSet map[string]struct{}

// Add adds a string
func (ss StringSet) Add(s string) {
	ss[s] = struct{}{}
}

// Contains returns if the set contains the string
func (ss StringSet) Contains(s string) bool {
	_, ok := ss[s]
	return ok
}

// ToList converts the set to a slice
func (ss StringSet) ToList() []string {
	list := make([]string, 0, len(ss))
	for s := range ss {
		list = append(list, s)
	}
	return list
}
