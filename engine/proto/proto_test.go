package proto

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

func decodeSingle(t *testing.T, c *msgcatalog.Catalog, b *bundle.Bundle) (*msgcatalog.MessageHandler, *netutil.Packet) {
	var h *msgcatalog.MessageHandler
	var payload *netutil.Packet
	r := bundle.NewMessageReader(c)
	err := r.Feed(b.Data(), func(mh *msgcatalog.MessageHandler, pkt *netutil.Packet) {
		h = mh
		payload = netutil.NewPacketFromBytes(pkt.UnreadData())
	})
	assert.Equal(t, nil, err)
	return h, payload
}

func TestCatalogsStartAtFirstID(t *testing.T) {
	ifs := NewInterfaces()
	assert.Equal(t, msgcatalog.FIRST_MESSAGE_ID, ifs.BaseappOnEntityMail.ID)
	assert.Equal(t, msgcatalog.FIRST_MESSAGE_ID, ifs.CellappOnEntityMail.ID)
	assert.Equal(t, ifs.Client.MustFind(MSG_ON_REMOTE_METHOD_CALL), ifs.ClientOnRemoteMethodCall)
	assert.Equal(t, msgcatalog.MessageID(len(ifs.Baseapp.Handlers())), ifs.Baseapp.LastMsgID())
	assert.Equal(t, ifs.Cellapp, ifs.ForComponent(common.CELLAPP_TYPE))
	assert.Equal(t, ifs.BaseappOnEntityMail, ifs.EntityMailHandler(common.BASEAPP_TYPE))
	assert.T(t, ifs.EntityMailHandler(common.DBMGR_TYPE) == nil)
}

func TestImportClientMessages(t *testing.T) {
	ifs := NewInterfaces()
	ifs.Freeze()

	b := bundle.NewBundle(consts.PACKET_MAX_SIZE_UDP)
	ifs.WriteImportClientMessages(b)
	h, payload := decodeSingle(t, ifs.Client, b)
	b.Release()
	assert.Equal(t, ifs.ClientOnImportClientMessages, h)

	client, baseapp := ReadImportClientMessages(payload)
	payload.Release()
	assert.Equal(t, len(ifs.Client.Handlers()), len(client.Handlers()))
	assert.Equal(t, ifs.ClientOnUpdateBasePos.ID, client.MustFind(MSG_ON_UPDATE_BASE_POS).ID)
	assert.Equal(t, int16(POSITION_SIZE), client.MustFind(MSG_ON_UPDATE_BASE_POS).Length)
	assert.Equal(t, 3, len(baseapp.Handlers()))
	assert.Equal(t, ifs.BaseappOnRemoteMethodCall.ID, baseapp.MustFind(MSG_ON_REMOTE_METHOD_CALL).ID)
	assert.T(t, baseapp.FindByName(MSG_ON_ENTITY_MAIL) == nil)
}

func TestCallbackReply(t *testing.T) {
	ifs := NewInterfaces()
	b := bundle.NewBundle(consts.PACKET_MAX_SIZE_UDP)
	WriteCallbackReply(b, ifs.CellappCallbackReply, 42, map[string]interface{}{"ok": true})
	h, payload := decodeSingle(t, ifs.Cellapp, b)
	b.Release()
	assert.Equal(t, ifs.CellappCallbackReply, h)

	var data map[string]interface{}
	id, err := ReadCallbackReply(payload, &data)
	payload.Release()
	assert.Equal(t, nil, err)
	assert.Equal(t, uint32(42), id)
	assert.Equal(t, true, data["ok"])
}

func TestUpdateBasePos(t *testing.T) {
	ifs := NewInterfaces()
	b := bundle.NewBundle(consts.PACKET_MAX_SIZE_UDP)
	ifs.WriteUpdateBasePos(b, Position{1, 2, 3}, true)
	h, payload := decodeSingle(t, ifs.Client, b)
	b.Release()
	assert.Equal(t, ifs.ClientOnUpdateBasePosXZ, h)
	assert.Equal(t, float32(1), payload.ReadFloat32())
	assert.Equal(t, float32(3), payload.ReadFloat32())
	assert.Equal(t, 0, payload.Remaining())
	payload.Release()
}
