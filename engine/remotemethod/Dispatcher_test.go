package remotemethod

import (
	"net"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/callbackmgr"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/components"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/gomercury/engine/profile"
	"github.com/xiaonanln/gomercury/engine/proto"
)

type captureEndpoint struct {
	sent [][]byte
}

func (ep *captureEndpoint) Send(data []byte) error {
	ep.sent = append(ep.sent, append([]byte(nil), data...))
	return nil
}
func (ep *captureEndpoint) Recv() ([]byte, error) { return nil, net.ErrClosed }
func (ep *captureEndpoint) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20013}
}
func (ep *captureEndpoint) LocalAddr() net.Addr { return nil }
func (ep *captureEndpoint) Close() error        { return nil }
func (ep *captureEndpoint) IsExternal() bool    { return false }

type fakeWitness struct {
	handlers []*msgcatalog.MessageHandler
	data     [][]byte
}

func (w *fakeWitness) SendToClient(h *msgcatalog.MessageHandler, b *bundle.Bundle) bool {
	w.handlers = append(w.handlers, h)
	w.data = append(w.data, b.Data())
	return true
}

type fakeEntities map[common.EntityID]*fakeWitness

func (es fakeEntities) FindWitness(id common.EntityID) (string, Witness) {
	if w := es[id]; w != nil {
		return "Avatar", w
	}
	return "", nil
}

type testEnv struct {
	router     *mailbox.Router
	clientEp   *captureEndpoint
	baseappEp  *captureEndpoint
	def        *entitydef.EntityDef
	events     *profile.EventProfile
	entities   fakeEntities
	callbacks  *callbackmgr.Manager
	dispatcher *Dispatcher
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clientEp:  &captureEndpoint{},
		baseappEp: &captureEndpoint{},
		events:    profile.NewEventProfile(),
		entities:  fakeEntities{},
		callbacks: callbackmgr.NewManager(time.Minute),
	}
	clientCh := channel.NewChannel(env.clientEp, config.Default().ChannelExternal)
	env.router = &mailbox.Router{
		Interfaces: proto.NewInterfaces(),
		Components: components.NewRegistry(),
		DirectChannel: func(mb *mailbox.Mailbox) *channel.Channel {
			return clientCh
		},
	}
	env.router.Components.Add(&components.ComponentInfo{
		ID:      3001,
		Type:    common.BASEAPP_TYPE,
		Channel: channel.NewChannel(env.baseappEp, config.Default().ChannelInternal),
	})

	defs := entitydef.NewRegistry()
	env.def = defs.NewEntityDef("Avatar")
	env.def.AddMethod(common.ROLE_CLIENT, "onChat", false, entitydef.STRING, entitydef.INT32)
	env.def.AddMethod(common.ROLE_BASE, "say", true, entitydef.STRING)
	env.def.AddMethod(common.ROLE_BASE, "queryLevel", false, entitydef.UINT32, entitydef.STRING)
	defs.Freeze()

	env.dispatcher = NewDispatcher(env.entities, env.events, env.callbacks, consts.PACKET_MAX_SIZE_TCP)
	return env
}

func TestLocalWitnessBypassesMail(t *testing.T) {
	env := newTestEnv()
	w := &fakeWitness{}
	env.entities[1024] = w

	mb := env.router.NewMailbox(1024, 0, env.def.TypeID, common.ROLE_CLIENT)
	md := env.def.FindMethod(common.ROLE_CLIENT, "onChat")
	err := env.dispatcher.Call(mb, md, "hello", 7)
	assert.Equal(t, nil, err)

	assert.Equal(t, 0, len(env.clientEp.sent))
	assert.Equal(t, 1, len(w.handlers))
	assert.Equal(t, env.router.Interfaces.ClientOnRemoteMethodCall, w.handlers[0])

	// id + len + entity id + utype + "hello\x00" + int32
	size := 2 + 2 + 4 + 2 + 6 + 4
	assert.Equal(t, size, len(w.data[0]))
	stat := env.events.Get("Avatar", "onChat")
	assert.Equal(t, uint64(1), stat.Count)
	assert.Equal(t, uint64(size), stat.Size)

	pkt := netutil.NewPacketFromBytes(w.data[0])
	defer pkt.Release()
	assert.Equal(t, uint16(env.router.Interfaces.ClientOnRemoteMethodCall.ID), pkt.ReadUint16())
	assert.Equal(t, uint16(size-4), pkt.ReadUint16())
	assert.Equal(t, int32(1024), pkt.ReadInt32())
	assert.Equal(t, md.UType, pkt.ReadUint16())
	assert.Equal(t, "hello", pkt.ReadString())
	assert.Equal(t, int32(7), pkt.ReadInt32())
}

func TestClientWithoutWitnessUsesMail(t *testing.T) {
	env := newTestEnv()
	mb := env.router.NewMailbox(1024, 0, env.def.TypeID, common.ROLE_CLIENT)
	md := env.def.FindMethod(common.ROLE_CLIENT, "onChat")
	assert.Equal(t, nil, env.dispatcher.Call(mb, md, "hello", int64(7)))
	assert.Equal(t, 1, len(env.clientEp.sent))
	assert.Equal(t, 0, len(env.events.Snapshot(false)))
}

func TestServerMailboxUsesEntityMail(t *testing.T) {
	env := newTestEnv()
	env.entities[77] = &fakeWitness{}
	mb := env.router.NewMailbox(77, 3001, env.def.TypeID, common.ROLE_BASE)
	md := env.def.FindMethod(common.ROLE_BASE, "say")
	assert.Equal(t, nil, env.dispatcher.Call(mb, md, "hi"))

	assert.Equal(t, 1, len(env.baseappEp.sent))
	assert.Equal(t, 0, len(env.entities[77].handlers))
	pkt := netutil.NewPacketFromBytes(env.baseappEp.sent[0])
	defer pkt.Release()
	assert.Equal(t, uint16(env.router.Interfaces.BaseappOnEntityMail.ID), pkt.ReadUint16())
	pkt.ReadUint16()
	assert.Equal(t, int32(77), pkt.ReadInt32())
	assert.Equal(t, uint16(common.ROLE_BASE), pkt.ReadUint16())
	assert.Equal(t, md.UType, pkt.ReadUint16())
	assert.Equal(t, "hi", pkt.ReadString())
}

func TestInvalidArgsHaveNoSideEffects(t *testing.T) {
	env := newTestEnv()
	w := &fakeWitness{}
	env.entities[1024] = w
	mb := env.router.NewMailbox(1024, 0, env.def.TypeID, common.ROLE_CLIENT)
	md := env.def.FindMethod(common.ROLE_CLIENT, "onChat")

	assert.NotEqual(t, nil, env.dispatcher.Call(mb, md, "hello"))
	assert.NotEqual(t, nil, env.dispatcher.Call(mb, md, "hello", "seven"))
	assert.NotEqual(t, nil, env.dispatcher.Call(mb, env.def.FindMethod(common.ROLE_BASE, "say"), "hi"))
	assert.Equal(t, 0, len(w.handlers))
	assert.Equal(t, 0, len(env.clientEp.sent))
	assert.Equal(t, 0, len(env.events.Snapshot(false)))
	assert.Equal(t, uint64(0), env.router.Interfaces.ClientOnRemoteMethodCall.Stats().SendCount)
}

func TestUnroutableMailbox(t *testing.T) {
	env := newTestEnv()
	mb := env.router.NewMailbox(5, 9999, env.def.TypeID, common.ROLE_BASE)
	assert.NotEqual(t, nil, env.dispatcher.Call(mb, env.def.FindMethod(common.ROLE_BASE, "say"), "hi"))
}

func TestCallWithReply(t *testing.T) {
	env := newTestEnv()
	mb := env.router.NewMailbox(77, 3001, env.def.TypeID, common.ROLE_BASE)
	md := env.def.FindMethod(common.ROLE_BASE, "queryLevel")

	var replied interface{}
	id, err := env.dispatcher.CallWithReply(mb, md, func(data interface{}) {
		replied = data
	}, 0, "who")
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, env.callbacks.Len())

	sent := netutil.NewPacketFromBytes(env.baseappEp.sent[0])
	sent.ReadBytes(2 + 2 + 4 + 2 + 2)
	assert.Equal(t, uint32(id), sent.ReadUint32())
	sent.Release()

	reply := bundle.NewBundle(consts.PACKET_MAX_SIZE_TCP)
	proto.WriteCallbackReply(reply, env.router.Interfaces.BaseappCallbackReply, uint32(id), "level 3")
	pkt := netutil.NewPacketFromBytes(reply.Data())
	reply.Release()
	pkt.ReadBytes(4)
	env.dispatcher.HandleCallbackReply(pkt)
	pkt.Release()

	assert.Equal(t, "level 3", replied)
	assert.Equal(t, 0, env.callbacks.Len())
}

func TestCallWithReplyNotSentReleasesCallback(t *testing.T) {
	env := newTestEnv()
	mb := env.router.NewMailbox(77, 9999, env.def.TypeID, common.ROLE_BASE)
	md := env.def.FindMethod(common.ROLE_BASE, "queryLevel")
	_, err := env.dispatcher.CallWithReply(mb, md, func(interface{}) {}, 0, "who")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, env.callbacks.Len())

	_, err = env.dispatcher.CallWithReply(mb, env.def.FindMethod(common.ROLE_BASE, "say"), func(interface{}) {}, 0)
	assert.NotEqual(t, nil, err)
}

func TestReply(t *testing.T) {
	env := newTestEnv()
	caller := env.router.NewMailbox(77, 3001, env.def.TypeID, common.ROLE_BASE)
	assert.Equal(t, nil, env.dispatcher.Reply(caller, 42, "level 3"))
	assert.Equal(t, 1, len(env.baseappEp.sent))

	pkt := netutil.NewPacketFromBytes(env.baseappEp.sent[0])
	defer pkt.Release()
	assert.Equal(t, env.router.Interfaces.BaseappCallbackReply.ID, msgcatalog.MessageID(pkt.ReadUint16()))
	pkt.ReadUint16()
	var data interface{}
	id, err := proto.ReadCallbackReply(pkt, &data)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(42), id)
	assert.Equal(t, "level 3", data)
}

func TestReplyNeedsServerPart(t *testing.T) {
	env := newTestEnv()
	assert.NotEqual(t, nil, env.dispatcher.Reply(env.router.NewMailbox(77, 0, env.def.TypeID, common.ROLE_CLIENT), 1, nil))
	assert.NotEqual(t, nil, env.dispatcher.Reply(env.router.NewMailbox(77, 9999, env.def.TypeID, common.ROLE_BASE), 1, nil))
	assert.Equal(t, 0, len(env.baseappEp.sent))
}
