package netutil

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/consts"
)

var errPacketTooLarge = errors.Errorf("packet too large")

// UDPEndpoint sends packets as datagrams on a connected UDP socket
type UDPEndpoint struct {
	conn     *net.UDPConn
	external bool
	recvBuf  []byte
}

// DialUDP connects an UDP endpoint to addr
func DialUDP(addr string, external bool) (*UDPEndpoint, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve udp addr")
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrap(err, "dial udp")
	}
	return NewUDPEndpoint(conn, external), nil
}

// NewUDPEndpoint wraps a connected UDP connection
func NewUDPEndpoint(conn *net.UDPConn, external bool) *UDPEndpoint {
	return &UDPEndpoint{
		conn:     conn,
		external: external,
		recvBuf:  make([]byte, consts.PACKET_MAX_SIZE_UDP),
	}
}

// Send writes one datagram
func (ep *UDPEndpoint) Send(data []byte) error {
	if len(data) > consts.PACKET_MAX_SIZE_UDP {
		return NewReasonError(REASON_WINDOW_OVERFLOW, errPacketTooLarge)
	}
	_, err := ep.conn.Write(data)
	return wrapSendError(err, ep)
}

// Recv reads one datagram, the returned bytes are valid until the next Recv
func (ep *UDPEndpoint) Recv() ([]byte, error) {
	n, err := ep.conn.Read(ep.recvBuf)
	if err != nil {
		return nil, errors.Wrap(err, "udp recv")
	}
	return ep.recvBuf[:n], nil
}

// RemoteAddr returns the peer address
func (ep *UDPEndpoint) RemoteAddr() net.Addr {
	return ep.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (ep *UDPEndpoint) LocalAddr() net.Addr {
	return ep.conn.LocalAddr()
}

// Close closes the socket
func (ep *UDPEndpoint) Close() error {
	return ep.conn.Close()
}

// IsExternal returns if the peer is a client
func (ep *UDPEndpoint) IsExternal() bool {
	return ep.external
}
