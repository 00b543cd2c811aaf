package netutil

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xtaci/kcp-go"
)

const (
	_KCP_DATA_SHARDS   = 10
	_KCP_PARITY_SHARDS = 3
	_KCP_MIN_INTERVAL  = 10 // ms
)

// KCPEndpoint sends packets as KCP messages, used by external channels
type KCPEndpoint struct {
	sess    *kcp.UDPSession
	recvBuf []byte
}

// DialKCP connects a KCP endpoint to addr, resendInterval is the KCP internal update interval
func DialKCP(addr string, resendInterval time.Duration) (*KCPEndpoint, error) {
	sess, err := kcp.DialWithOptions(addr, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return nil, errors.Wrap(err, "dial kcp")
	}
	return NewKCPEndpoint(sess, resendInterval), nil
}

// NewKCPEndpoint wraps a KCP session in message mode
func NewKCPEndpoint(sess *kcp.UDPSession, resendInterval time.Duration) *KCPEndpoint {
	interval := int(resendInterval / time.Millisecond)
	if interval < _KCP_MIN_INTERVAL {
		interval = _KCP_MIN_INTERVAL
	}
	sess.SetStreamMode(false)
	sess.SetWriteDelay(false)
	// turbo mode
	sess.SetNoDelay(1, interval, 2, 1)
	return &KCPEndpoint{
		sess:    sess,
		recvBuf: make([]byte, consts.PACKET_MAX_SIZE*4),
	}
}

// ListenKCP listens for KCP clients and calls onAccept for each session
func ListenKCP(addr string, resendInterval time.Duration, onAccept func(ep *KCPEndpoint)) error {
	listener, err := kcp.ListenWithOptions(addr, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return errors.Wrap(err, "listen kcp")
	}
	for {
		sess, err := listener.AcceptKCP()
		if err != nil {
			return errors.Wrap(err, "accept kcp")
		}
		onAccept(NewKCPEndpoint(sess, resendInterval))
	}
}

// Send writes one KCP message
func (ep *KCPEndpoint) Send(data []byte) error {
	_, err := ep.sess.Write(data)
	return wrapSendError(err, ep)
}

// Recv reads one KCP message
func (ep *KCPEndpoint) Recv() ([]byte, error) {
	n, err := ep.sess.Read(ep.recvBuf)
	if err != nil {
		return nil, errors.Wrap(err, "kcp recv")
	}
	return ep.recvBuf[:n], nil
}

// RemoteAddr returns the peer address
func (ep *KCPEndpoint) RemoteAddr() net.Addr {
	return ep.sess.RemoteAddr()
}

// LocalAddr returns the local address
func (ep *KCPEndpoint) LocalAddr() net.Addr {
	return ep.sess.LocalAddr()
}

// Close closes the session
func (ep *KCPEndpoint) Close() error {
	return ep.sess.Close()
}

// IsExternal returns true, KCP is only used for clients
func (ep *KCPEndpoint) IsExternal() bool {
	return true
}
