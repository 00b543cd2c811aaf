package netutil

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  consts.PACKET_MAX_SIZE * 4,
	WriteBufferSize: consts.PACKET_MAX_SIZE * 4,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketEndpoint sends packets as binary websocket messages to HTML5 clients
type WebSocketEndpoint struct {
	conn *websocket.Conn
}

// NewWebSocketEndpoint wraps an upgraded websocket connection
func NewWebSocketEndpoint(conn *websocket.Conn) *WebSocketEndpoint {
	return &WebSocketEndpoint{conn: conn}
}

// WebSocketHandler upgrades HTTP requests and calls onAccept for each connection
func WebSocketHandler(onAccept func(ep *WebSocketEndpoint)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			gwlog.Warnf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		onAccept(NewWebSocketEndpoint(conn))
	})
}

// Send writes one binary message
func (ep *WebSocketEndpoint) Send(data []byte) error {
	if err := ep.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return NewReasonError(REASON_HTML5_ERROR, wrapSendError(err, ep))
	}
	return nil
}

// Recv reads one binary message, text messages are rejected
func (ep *WebSocketEndpoint) Recv() ([]byte, error) {
	mt, data, err := ep.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "websocket recv")
	}
	if mt != websocket.BinaryMessage {
		return nil, NewReasonError(REASON_HTML5_ERROR, errors.Errorf("unexpected websocket message type %d", mt))
	}
	return data, nil
}

// RemoteAddr returns the peer address
func (ep *WebSocketEndpoint) RemoteAddr() net.Addr {
	return ep.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (ep *WebSocketEndpoint) LocalAddr() net.Addr {
	return ep.conn.LocalAddr()
}

// Close closes the websocket
func (ep *WebSocketEndpoint) Close() error {
	return ep.conn.Close()
}

// IsExternal returns true, websockets are only used by clients
func (ep *WebSocketEndpoint) IsExternal() bool {
	return true
}
