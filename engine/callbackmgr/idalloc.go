package callbackmgr

// idAllocator hands out ids from 1, reclaimed ids are reused first in reclaim order
type idAllocator struct {
	lastID    CallbackID
	reclaimed []CallbackID
}

func (a *idAllocator) alloc() CallbackID {
	if len(a.reclaimed) > 0 {
		id := a.reclaimed[0]
		a.reclaimed = a.reclaimed[1:]
		return id
	}
	a.lastID++
	return a.lastID
}

func (a *idAllocator) reclaim(id CallbackID) {
	a.reclaimed = append(a.reclaimed, id)
}

func (a *idAllocator) reset(lastID CallbackID) {
	a.lastID = lastID
	a.reclaimed = nil
}
