package callbackmgr

import (
	"fmt"
	"time"

	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// CallbackID identifies a pending callback, 0 is never allocated
type CallbackID uint32

// Callback is a continuation receiving the reply of a remote call
type Callback func(data interface{})

// Releaser is implemented by callbacks holding resources that must be freed when dropped
type Releaser interface {
	Release()
}

// TimeoutPolicy handles an expired callback, returning false keeps it for the next sweep
type TimeoutPolicy func(id CallbackID, cb interface{}) bool

// DecodeFunc rebuilds a callback from its persisted msgpack data
type DecodeFunc func(data []byte) (interface{}, error)

type entry struct {
	cb       interface{}
	deadline int64 // unix nanoseconds
}

type deadlineItem struct {
	deadline int64
	id       CallbackID
}

func (it deadlineItem) Less(_other llrb.Item) bool {
	other := _other.(deadlineItem)
	return it.deadline < other.deadline || (it.deadline == other.deadline && it.id < other.id)
}

// Manager keeps pending callbacks until they are taken or time out
//
// Manager is owned by the main loop. Sweeps run on Save and on failed Take, at most once
// per default timeout.
type Manager struct {
	callbacks      map[CallbackID]*entry
	deadlines      *llrb.LLRB
	ids            idAllocator
	defaultTimeout time.Duration
	lastSweep      time.Time
	clock          func() time.Time
	policy         TimeoutPolicy
}

// Option customizes a new manager
type Option func(m *Manager)

// WithClock sets the time source
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithTimeoutPolicy replaces the default policy which logs and discards
func WithTimeoutPolicy(policy TimeoutPolicy) Option {
	return func(m *Manager) { m.policy = policy }
}

// NewManager creates a manager, defaultTimeout <= 0 uses consts.CALLBACK_DEFAULT_TIMEOUT
func NewManager(defaultTimeout time.Duration, opts ...Option) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = consts.CALLBACK_DEFAULT_TIMEOUT
	}
	m := &Manager{
		callbacks:      map[CallbackID]*entry{},
		deadlines:      llrb.New(),
		defaultTimeout: defaultTimeout,
		clock:          time.Now,
		policy:         DefaultTimeoutPolicy,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultTimeoutPolicy logs the timeout and discards the callback
func DefaultTimeoutPolicy(id CallbackID, cb interface{}) bool {
	gwlog.Infof("callbackmgr: callback %d (%T) timeout!", id, cb)
	return true
}

// Len returns the number of pending callbacks
func (m *Manager) Len() int {
	return len(m.callbacks)
}

// Save stores cb and returns its id, timeout <= 0 uses the default timeout
func (m *Manager) Save(cb interface{}, timeout time.Duration) CallbackID {
	if cb == nil {
		gwlog.Panicf("callbackmgr: saving nil callback")
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	id := m.ids.alloc()
	m.insert(id, cb, m.clock().Add(timeout).UnixNano())
	if consts.DEBUG_CALLBACKS {
		gwlog.Debugf("callbackmgr: save callback %d (%T), timeout %s", id, cb, timeout)
	}
	m.Tick()
	return id
}

func (m *Manager) insert(id CallbackID, cb interface{}, deadline int64) {
	m.callbacks[id] = &entry{cb: cb, deadline: deadline}
	m.deadlines.ReplaceOrInsert(deadlineItem{deadline, id})
}

func (m *Manager) remove(id CallbackID, e *entry) {
	delete(m.callbacks, id)
	m.deadlines.Delete(deadlineItem{e.deadline, id})
	m.ids.reclaim(id)
}

// Take removes and returns the callback of id, the caller owns it afterwards
func (m *Manager) Take(id CallbackID) (interface{}, bool) {
	e := m.callbacks[id]
	if e == nil {
		m.Tick()
		return nil, false
	}
	m.remove(id, e)
	return e.cb, true
}

// Tick sweeps expired callbacks if the last sweep is older than the default timeout
func (m *Manager) Tick() {
	now := m.clock()
	if now.Sub(m.lastSweep) < m.defaultTimeout {
		return
	}
	m.lastSweep = now
	m.sweep(now.UnixNano())
}

func (m *Manager) sweep(now int64) {
	var expired []deadlineItem
	m.deadlines.AscendLessThan(deadlineItem{now, 0}, func(_item llrb.Item) bool {
		expired = append(expired, _item.(deadlineItem))
		return true
	})

	for _, item := range expired {
		e := m.callbacks[item.id]
		if m.policy(item.id, e.cb) {
			m.remove(item.id, e)
			if r, ok := e.cb.(Releaser); ok {
				r.Release()
			}
		}
	}
}

// Finalise drops every pending callback, releasing the ones holding resources
func (m *Manager) Finalise() {
	for id, e := range m.callbacks {
		if r, ok := e.cb.(Releaser); ok {
			r.Release()
		}
		delete(m.callbacks, id)
	}
	m.deadlines = llrb.New()
}

// AddToStream writes the last id and every callback that can be encoded by msgpack
//
// Callbacks that can not be encoded, such as funcs, are skipped with an error log.
func (m *Manager) AddToStream(pkt *netutil.Packet) {
	type encoded struct {
		id       CallbackID
		data     []byte
		deadline int64
	}
	var entries []encoded
	m.deadlines.AscendGreaterOrEqual(deadlineItem{}, func(_item llrb.Item) bool {
		item := _item.(deadlineItem)
		cb := m.callbacks[item.id].cb
		data, err := msgpack.Marshal(cb)
		if err != nil {
			gwlog.Errorf("callbackmgr: callback %d (%T) can not be persisted: %v", item.id, cb, err)
			return true
		}
		entries = append(entries, encoded{item.id, data, item.deadline})
		return true
	})

	pkt.AppendUint32(uint32(m.ids.lastID))
	pkt.AppendUint32(uint32(len(entries)))
	for _, e := range entries {
		pkt.AppendUint32(uint32(e.id))
		pkt.AppendBlob(e.data)
		pkt.AppendInt64(e.deadline)
	}
}

// CreateFromStream restores callbacks written by AddToStream into an empty manager
//
// decode rebuilds each callback, nil decodes into plain msgpack values. Entries that fail
// to decode are dropped with an error log.
func (m *Manager) CreateFromStream(pkt *netutil.Packet, decode DecodeFunc) (err error) {
	if len(m.callbacks) > 0 {
		return errors.Errorf("callbackmgr: restoring into a manager with %d callbacks", len(m.callbacks))
	}
	if decode == nil {
		decode = decodePlain
	}

	if netutil.CatchUnderflow(func() {
		m.ids.reset(CallbackID(pkt.ReadUint32()))
		n := int(pkt.ReadUint32())
		for i := 0; i < n; i++ {
			id := CallbackID(pkt.ReadUint32())
			data := pkt.ReadBlob()
			deadline := pkt.ReadInt64()

			cb, decodeErr := decode(data)
			if decodeErr != nil || cb == nil || id == 0 || id > m.ids.lastID {
				gwlog.Errorf("callbackmgr: callback %d can not be restored: %v", id, decodeErr)
				continue
			}
			m.insert(id, cb, deadline)
		}
	}) {
		err = errors.Wrap(netutil.ErrPacketUnderflow, "callbackmgr: restore")
	}
	return
}

func decodePlain(data []byte) (interface{}, error) {
	var v interface{}
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

func (m *Manager) String() string {
	return fmt.Sprintf("callbackmgr<%d pending, last id %d>", len(m.callbacks), m.ids.lastID)
}
