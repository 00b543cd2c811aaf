package bundle

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
)

// MAX_MESSAGE_LENGTH bounds the extended length of inbound messages
const MAX_MESSAGE_LENGTH = 16 * 1024 * 1024

var (
	// ErrUnknownMessage is returned when the stream carries a message id missing from the catalog
	ErrUnknownMessage = errors.New("unknown message id")
	// ErrMessageTooLarge is returned when an inbound message length is out of bound
	ErrMessageTooLarge = errors.New("message too large")
)

// MessageReader splits an inbound byte stream into messages of one catalog
//
// Fragments of a message spread over several packets are kept until the message is complete.
type MessageReader struct {
	catalog *msgcatalog.Catalog
	buf     []byte
}

// NewMessageReader creates a reader resolving message ids in catalog
func NewMessageReader(catalog *msgcatalog.Catalog) *MessageReader {
	return &MessageReader{catalog: catalog}
}

// Catalog returns the catalog of the reader
func (r *MessageReader) Catalog() *msgcatalog.Catalog {
	return r.catalog
}

// Pending returns the number of buffered bytes of incomplete messages
func (r *MessageReader) Pending() int {
	return len(r.buf)
}

// Reset drops buffered fragments
func (r *MessageReader) Reset() {
	r.buf = r.buf[:0]
}

// Feed appends data to the stream and calls fn for every complete message
//
// The payload packet is released after fn returns. On error the buffered stream is dropped
// and the remaining messages of data are lost.
func (r *MessageReader) Feed(data []byte, fn func(h *msgcatalog.MessageHandler, payload *netutil.Packet)) error {
	r.buf = append(r.buf, data...)
	for {
		h, headerSize, msgLen, err := r.peekHeader()
		if err != nil {
			r.Reset()
			return err
		}
		if h == nil || len(r.buf) < headerSize+msgLen {
			return nil
		}

		payload := netutil.NewPacketFromBytes(r.buf[headerSize : headerSize+msgLen])
		r.buf = r.buf[:copy(r.buf, r.buf[headerSize+msgLen:])]
		h.OnRecv(headerSize + msgLen)
		func() {
			defer payload.Release()
			fn(h, payload)
		}()
	}
}

// peekHeader decodes the header of the next message, h is nil if the header is incomplete
func (r *MessageReader) peekHeader() (h *msgcatalog.MessageHandler, headerSize int, msgLen int, err error) {
	if len(r.buf) < consts.MESSAGE_ID_SIZE {
		return
	}
	msgid := msgcatalog.MessageID(netutil.NETWORK_ENDIAN.Uint16(r.buf))
	handler := r.catalog.Find(msgid)
	if handler == nil {
		err = errors.Wrapf(ErrUnknownMessage, "%s: message id %d", r.catalog.Name(), msgid)
		return
	}

	if handler.IsFixed() {
		return handler, consts.MESSAGE_ID_SIZE, int(handler.Length), nil
	}

	headerSize = consts.MESSAGE_ID_SIZE + consts.MESSAGE_LENGTH_SIZE
	if len(r.buf) < headerSize {
		return nil, 0, 0, nil
	}
	msgLen = int(netutil.NETWORK_ENDIAN.Uint16(r.buf[consts.MESSAGE_ID_SIZE:]))
	if msgLen == consts.MESSAGE_MAX_LENGTH {
		headerSize += consts.MESSAGE_LENGTH_EXT_SIZE
		if len(r.buf) < headerSize {
			return nil, 0, 0, nil
		}
		msgLen = int(netutil.NETWORK_ENDIAN.Uint32(r.buf[consts.MESSAGE_ID_SIZE+consts.MESSAGE_LENGTH_SIZE:]))
		if msgLen > MAX_MESSAGE_LENGTH {
			err = errors.Wrapf(ErrMessageTooLarge, "%s: %d bytes", handler, msgLen)
			return nil, 0, 0, err
		}
	}
	return handler, headerSize, msgLen, nil
}
