package netutil

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/netconnutil"
	"github.com/xiaonanln/pktconn"
	"golang.org/x/net/context"
)

// TCPEndpoint frames packets over a buffered TCP stream, used by internal channels
type TCPEndpoint struct {
	pc       *pktconn.PacketConn
	external bool
	recvChan chan *pktconn.Packet
	recvErr  chan error
	cancel   context.CancelFunc
}

// DialTCP connects a TCP endpoint to addr
func DialTCP(addr string) (*TCPEndpoint, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial tcp")
	}
	return NewTCPEndpoint(conn, false), nil
}

// NewTCPEndpoint wraps an accepted or dialed TCP connection
func NewTCPEndpoint(conn net.Conn, external bool) *TCPEndpoint {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	conn = netconnutil.NewNoTempErrorConn(conn)
	conn = netconnutil.NewBufferedConn(conn, consts.PACKET_MAX_SIZE*16, consts.PACKET_MAX_SIZE*16)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := pktconn.DefaultConfig()
	ep := &TCPEndpoint{
		external: external,
		recvChan: make(chan *pktconn.Packet, consts.INBOUND_PACKET_QUEUE_SIZE),
		recvErr:  make(chan error, 1),
		cancel:   cancel,
	}
	cfg.Tag = ep
	ep.pc = pktconn.NewPacketConnWithConfig(ctx, conn, cfg)
	go func() {
		ep.recvErr <- ep.pc.RecvChan(ep.recvChan)
		close(ep.recvChan)
	}()
	return ep
}

// Send queues one framed packet on the connection
func (ep *TCPEndpoint) Send(data []byte) error {
	pkt := pktconn.NewPacket()
	pkt.WriteBytes(data)
	ep.pc.Send(pkt)
	pkt.Release()
	return nil
}

// Recv returns the payload of the next framed packet
func (ep *TCPEndpoint) Recv() ([]byte, error) {
	pkt, ok := <-ep.recvChan
	if !ok {
		err := <-ep.recvErr
		if err == nil {
			err = ep.pc.Err()
		}
		if err == nil {
			err = errors.Wrap(net.ErrClosed, "tcp recv")
		}
		ep.recvErr <- err
		return nil, err
	}
	data := append([]byte(nil), pkt.Payload()...)
	pkt.Release()
	return data, nil
}

// RemoteAddr returns the peer address
func (ep *TCPEndpoint) RemoteAddr() net.Addr {
	return ep.pc.RemoteAddr()
}

// LocalAddr returns the local address
func (ep *TCPEndpoint) LocalAddr() net.Addr {
	return ep.pc.LocalAddr()
}

// Close closes the connection
func (ep *TCPEndpoint) Close() error {
	ep.cancel()
	return ep.pc.Close()
}

// IsExternal returns if the peer is a client
func (ep *TCPEndpoint) IsExternal() bool {
	return ep.external
}
