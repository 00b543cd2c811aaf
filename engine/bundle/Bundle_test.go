package bundle

import (
	"bytes"
	"net"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
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
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20015}
}
func (ep *captureEndpoint) LocalAddr() net.Addr { return nil }
func (ep *captureEndpoint) Close() error        { return nil }
func (ep *captureEndpoint) IsExternal() bool    { return false }

func testCatalog() *msgcatalog.Catalog {
	c := msgcatalog.NewCatalog("TestInterface")
	c.Add("echo", nil, msgcatalog.MSG_LENGTH_VARIABLE, msgcatalog.MESSAGE_TYPE_COMPONENT, nil)
	c.Add("position", nil, 12, msgcatalog.MESSAGE_TYPE_ENTITY, nil)
	c.Add("forward", nil, msgcatalog.MSG_LENGTH_VARIABLE, msgcatalog.MESSAGE_TYPE_COMPONENT, nil)
	return c
}

type readMessage struct {
	name    string
	payload []byte
}

func readAll(t *testing.T, c *msgcatalog.Catalog, packets [][]byte) []readMessage {
	var msgs []readMessage
	r := NewMessageReader(c)
	for _, data := range packets {
		err := r.Feed(data, func(h *msgcatalog.MessageHandler, payload *netutil.Packet) {
			msgs = append(msgs, readMessage{h.Name, append([]byte(nil), payload.UnreadData()...)})
		})
		assert.Equal(t, nil, err)
	}
	assert.Equal(t, 0, r.Pending())
	return msgs
}

func packetsData(b *Bundle) [][]byte {
	var res [][]byte
	for _, pkt := range b.Packets() {
		res = append(res, pkt.Data())
	}
	return res
}

func TestVariableAndFixedMessages(t *testing.T) {
	c := testCatalog()
	b := NewBundle(1472)
	defer b.Release()

	b.NewMessage(c.MustFind("echo"))
	b.AppendString("hello")
	b.NewMessage(c.MustFind("position"))
	b.AppendFloat32(1)
	b.AppendFloat32(2)
	b.AppendFloat32(3)
	b.Finish(true)

	assert.Equal(t, 2, b.NumMessages())
	assert.Equal(t, 1, len(b.Packets()))
	// id + length + "hello\0", then id + 12 bytes
	assert.Equal(t, 2+2+6+2+12, b.Len())
	assert.Equal(t, 14, b.LastMessageSize())

	msgs := readAll(t, c, packetsData(b))
	assert.Equal(t, 2, len(msgs))
	assert.Equal(t, "echo", msgs[0].name)
	assert.Equal(t, []byte("hello\x00"), msgs[0].payload)
	assert.Equal(t, "position", msgs[1].name)
	assert.Equal(t, 12, len(msgs[1].payload))
}

func TestSplitAtMaxPacketSize(t *testing.T) {
	c := testCatalog()
	const maxPacketSize = 64
	b := NewBundle(maxPacketSize)
	defer b.Release()

	var expected [][]byte
	for i := 0; i < 50; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, i*3)
		expected = append(expected, payload)
		b.NewMessage(c.MustFind("echo"))
		b.AppendBytes(payload)
	}
	b.Finish(true)

	assert.T(t, len(b.Packets()) > 1)
	for _, pkt := range b.Packets() {
		assert.T(t, pkt.Len() <= maxPacketSize)
	}

	msgs := readAll(t, c, packetsData(b))
	assert.Equal(t, len(expected), len(msgs))
	for i, msg := range msgs {
		assert.T(t, bytes.Equal(expected[i], msg.payload))
	}
}

func TestExtendedLength(t *testing.T) {
	c := testCatalog()
	b := NewBundle(1460)
	defer b.Release()

	big := bytes.Repeat([]byte{0xAB}, 70000)
	b.NewMessage(c.MustFind("echo"))
	b.AppendBytes(big)
	b.Finish(true)

	data := b.Data()
	assert.Equal(t, uint16(0xFFFF), netutil.NETWORK_ENDIAN.Uint16(data[2:]))
	assert.Equal(t, uint32(70000), netutil.NETWORK_ENDIAN.Uint32(data[4:]))
	assert.Equal(t, 2+2+4+70000, len(data))

	msgs := readAll(t, c, packetsData(b))
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, big, msgs[0].payload)
}

func TestLengthJustBelowExtended(t *testing.T) {
	c := testCatalog()
	b := NewBundle(1460)
	defer b.Release()

	b.NewMessage(c.MustFind("echo"))
	b.AppendBytes(make([]byte, 0xFFFE))
	b.Finish(true)
	assert.Equal(t, 2+2+0xFFFE, b.Len())
}

func TestMisuseIsFatal(t *testing.T) {
	c := testCatalog()

	b := NewBundle(1472)
	assert.NotEqual(t, nil, gwutils.CatchPanic(func() {
		b.AppendUint8(1)
	}))

	b.NewMessage(c.MustFind("position"))
	b.AppendUint32(1)
	assert.NotEqual(t, nil, gwutils.CatchPanic(func() {
		b.Finish(true)
	}))
	b.Release()

	b = NewBundle(1472)
	b.NewMessage(c.MustFind("echo"))
	ch := channel.NewChannel(&captureEndpoint{}, config.Default().ChannelInternal)
	assert.NotEqual(t, nil, gwutils.CatchPanic(func() {
		b.Send(ch)
	}))
	b.Finish(true)
	assert.Equal(t, netutil.REASON_SUCCESS, b.Send(ch))
	assert.NotEqual(t, nil, gwutils.CatchPanic(func() {
		b.NewMessage(c.MustFind("echo"))
	}))
	b.Release()
}

func TestSendHandsPacketsInOrder(t *testing.T) {
	c := testCatalog()
	ep := &captureEndpoint{}
	ch := channel.NewChannel(ep, config.Default().ChannelInternal)

	b := NewBundle(32)
	for i := 0; i < 10; i++ {
		b.NewMessage(c.MustFind("echo"))
		b.AppendUint32(uint32(i))
		b.AppendString("0123456789")
	}
	b.Finish(true)
	numPackets := len(b.Packets())
	assert.Equal(t, netutil.REASON_SUCCESS, b.Send(ch))
	b.Release()

	assert.Equal(t, numPackets, len(ep.sent))
	msgs := readAll(t, c, ep.sent)
	assert.Equal(t, 10, len(msgs))
	for i, msg := range msgs {
		assert.Equal(t, uint32(i), netutil.NETWORK_ENDIAN.Uint32(msg.payload))
	}
	assert.Equal(t, uint64(10), c.MustFind("echo").Stats().SendCount)
}

func TestForwardMessage(t *testing.T) {
	c := testCatalog()

	inner := NewBundle(1472)
	inner.NewMessage(c.MustFind("echo"))
	inner.AppendString("relay me")
	inner.Finish(false)

	outer := NewBundle(1472)
	outer.NewForwardMessage(c.MustFind("forward"), 1001, 2002, inner)
	inner.Release()

	msgs := readAll(t, c, packetsData(outer))
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, "forward", msgs[0].name)

	payload := netutil.NewPacketFromBytes(msgs[0].payload)
	assert.Equal(t, uint64(1001), payload.ReadUint64())
	assert.Equal(t, uint64(2002), payload.ReadUint64())
	relayed := readAll(t, c, [][]byte{payload.UnreadData()})
	payload.Release()
	outer.Release()

	assert.Equal(t, 1, len(relayed))
	assert.Equal(t, []byte("relay me\x00"), relayed[0].payload)
}

func TestUnknownMessageIsCorrupted(t *testing.T) {
	c := testCatalog()
	r := NewMessageReader(c)
	err := r.Feed([]byte{0x63, 0x00, 0x01}, func(h *msgcatalog.MessageHandler, payload *netutil.Packet) {
		t.Fatalf("unexpected message %s", h)
	})
	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, r.Pending())
}
