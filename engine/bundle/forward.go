package bundle

import (
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
)

// NewForwardMessage writes a forward message relaying inner to forwardComponentID through a peer
//
// inner must be finished, it is built against the catalog of the final receiver.
func (b *Bundle) NewForwardMessage(h *msgcatalog.MessageHandler, myComponentID, forwardComponentID common.ComponentID, inner *Bundle) {
	b.NewMessage(h)
	b.AppendUint64(uint64(myComponentID))
	b.AppendUint64(uint64(forwardComponentID))
	b.AppendBundle(inner)
	b.Finish(true)
}

// NewForwardToClient writes a message asking the base of entityID to relay inner to its client
func (b *Bundle) NewForwardToClient(h *msgcatalog.MessageHandler, entityID common.EntityID, inner *Bundle) {
	b.NewMessage(h)
	b.AppendInt32(int32(entityID))
	b.AppendBundle(inner)
	b.Finish(true)
}
