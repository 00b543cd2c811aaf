package dbtask

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/callbackmgr"
	. "github.com/xiaonanln/gomercury/engine/dbtask/dbtask_common"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// SaveMailbox stores the transfer tuple of a mailbox under Key
type SaveMailbox struct {
	key  string
	data []byte
}

// NewSaveMailbox packs mb on the calling goroutine
func NewSaveMailbox(key string, mb *mailbox.Mailbox) *SaveMailbox {
	pkt := netutil.NewPacket()
	defer pkt.Release()
	mb.PackTransfer(pkt)
	return &SaveMailbox{
		key:  key,
		data: append([]byte(nil), pkt.Data()...),
	}
}

func (t *SaveMailbox) Name() string { return "saveMailbox" }
func (t *SaveMailbox) Key() string  { return t.key }

func (t *SaveMailbox) Run(engine Engine) (interface{}, error) {
	return nil, engine.Put(t.key, t.data)
}

// LoadMailbox loads a mailbox saved by SaveMailbox, the result is nil if key does not exist
//
// The loaded mailbox is attached to Router when it is not nil.
type LoadMailbox struct {
	key    string
	Router *mailbox.Router
}

// NewLoadMailbox creates a LoadMailbox task
func NewLoadMailbox(key string, router *mailbox.Router) *LoadMailbox {
	return &LoadMailbox{key: key, Router: router}
}

func (t *LoadMailbox) Name() string { return "loadMailbox" }
func (t *LoadMailbox) Key() string  { return t.key }

func (t *LoadMailbox) Run(engine Engine) (interface{}, error) {
	data, err := engine.Get(t.key)
	if err != nil || data == nil {
		return (*mailbox.Mailbox)(nil), err
	}
	pkt := netutil.NewPacketFromBytes(data)
	defer pkt.Release()
	mb, err := mailbox.UnpackTransfer(pkt)
	if err != nil {
		return (*mailbox.Mailbox)(nil), errors.Wrapf(err, "load mailbox %s", t.key)
	}
	if t.Router != nil {
		t.Router.Attach(mb)
	}
	return mb, nil
}

// SaveCallbacks stores the pending callbacks of a registry
type SaveCallbacks struct {
	key  string
	data []byte
}

// NewSaveCallbacks streams mgr on the calling goroutine, which must own mgr
func NewSaveCallbacks(key string, mgr *callbackmgr.Manager) *SaveCallbacks {
	pkt := netutil.NewPacket()
	defer pkt.Release()
	mgr.AddToStream(pkt)
	return &SaveCallbacks{
		key:  key,
		data: append([]byte(nil), pkt.Data()...),
	}
}

func (t *SaveCallbacks) Name() string { return "saveCallbacks" }
func (t *SaveCallbacks) Key() string  { return t.key }

func (t *SaveCallbacks) Run(engine Engine) (interface{}, error) {
	return nil, engine.Put(t.key, t.data)
}

// LoadCallbacks loads the bytes saved by SaveCallbacks, the result is nil if key does not exist
type LoadCallbacks struct {
	key string
}

// NewLoadCallbacks creates a LoadCallbacks task
func NewLoadCallbacks(key string) *LoadCallbacks {
	return &LoadCallbacks{key: key}
}

func (t *LoadCallbacks) Name() string { return "loadCallbacks" }
func (t *LoadCallbacks) Key() string  { return t.key }

func (t *LoadCallbacks) Run(engine Engine) (interface{}, error) {
	data, err := engine.Get(t.key)
	return data, err
}

// RestoreCallbacks loads the registry saved under key into mgr on the main loop
func (s *Service) RestoreCallbacks(key string, mgr *callbackmgr.Manager, decode callbackmgr.DecodeFunc, done func(err error)) {
	s.Submit(NewLoadCallbacks(key), func(res interface{}, err error) {
		data, _ := res.([]byte)
		if err == nil && data != nil {
			pkt := netutil.NewPacketFromBytes(data)
			err = mgr.CreateFromStream(pkt, decode)
			pkt.Release()
		}
		if done != nil {
			done(err)
		}
	})
}
