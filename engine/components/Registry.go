package components

import (
	"fmt"
	"sort"

	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// ComponentInfo describes a known peer process
type ComponentInfo struct {
	ID           common.ComponentID
	Type         common.ComponentType
	InternalAddr string
	ExternalAddr string
	Channel      *channel.Channel
}

func (info *ComponentInfo) String() string {
	return fmt.Sprintf("%s<%d@%s>", info.Type, info.ID, info.InternalAddr)
}

// IsAlive returns if the channel to the component is usable
func (info *ComponentInfo) IsAlive() bool {
	return info.Channel != nil && !info.Channel.IsDead()
}

// WatchFunc is called when a component is added or removed
type WatchFunc func(info *ComponentInfo, added bool)

// Registry maps component ids to peer processes, it is owned by the main loop
type Registry struct {
	components map[common.ComponentID]*ComponentInfo
	watchers   []WatchFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		components: map[common.ComponentID]*ComponentInfo{},
	}
}

// Add registers a component, replacing the previous one with the same id
func (r *Registry) Add(info *ComponentInfo) {
	if info.ID == 0 {
		gwlog.Panicf("components: component id 0 is reserved for clients: %s", info)
	}
	if old := r.components[info.ID]; old != nil {
		gwlog.Warnf("components: %s replaced by %s", old, info)
	}
	gwlog.Infof("components: add %s", info)
	r.components[info.ID] = info
	for _, w := range r.watchers {
		w(info, true)
	}
}

// Remove unregisters a component
func (r *Registry) Remove(id common.ComponentID) *ComponentInfo {
	info := r.components[id]
	if info == nil {
		return nil
	}
	gwlog.Infof("components: remove %s", info)
	delete(r.components, id)
	for _, w := range r.watchers {
		w(info, false)
	}
	return info
}

// FindComponent returns the component with id, or nil
func (r *Registry) FindComponent(id common.ComponentID) *ComponentInfo {
	return r.components[id]
}

// FindByChannel returns the component behind ch, or nil
func (r *Registry) FindByChannel(ch *channel.Channel) *ComponentInfo {
	for _, info := range r.components {
		if info.Channel == ch {
			return info
		}
	}
	return nil
}

// All returns every component ordered by id
func (r *Registry) All() []*ComponentInfo {
	res := make([]*ComponentInfo, 0, len(r.components))
	for _, info := range r.components {
		res = append(res, info)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}

// ByType returns components of the type ordered by id
func (r *Registry) ByType(componentType common.ComponentType) []*ComponentInfo {
	var res []*ComponentInfo
	for _, info := range r.components {
		if info.Type == componentType {
			res = append(res, info)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}

// Len returns the number of components
func (r *Registry) Len() int {
	return len(r.components)
}

// Watch adds a callback of component changes
func (r *Registry) Watch(w WatchFunc) {
	r.watchers = append(r.watchers, w)
}

// OnChannelDeregister clears the channel of the component behind ch
//
// The component stays registered, mail to it fails until a new channel is attached.
func (r *Registry) OnChannelDeregister(ch *channel.Channel, reason netutil.Reason) {
	if info := r.FindByChannel(ch); info != nil {
		gwlog.Warnf("components: channel of %s is lost: %s", info, reason)
		info.Channel = nil
	}
}
