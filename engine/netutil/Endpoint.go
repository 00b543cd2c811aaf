package netutil

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
)

// Endpoint is one side of a transport connection to a peer
//
// Send writes one packet without blocking on the peer, a failed Send returns an
// error classified by ReasonFromError.
type Endpoint interface {
	Send(data []byte) error
	Recv() ([]byte, error)
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	Close() error
	IsExternal() bool
}

// RecvHandler receives the packets and the final error of an endpoint
type RecvHandler interface {
	OnEndpointPacket(ep Endpoint, data []byte)
	OnEndpointError(ep Endpoint, err error)
}

// ServeEndpoint reads packets from ep until it fails, it should be run in its own goroutine
func ServeEndpoint(ep Endpoint, handler RecvHandler) {
	gwutils.RunPanicless(func() {
		for {
			data, err := ep.Recv()
			if err != nil {
				if !IsConnectionError(err) {
					gwlog.Errorf("endpoint %s recv failed: %v", ep.RemoteAddr(), err)
				}
				handler.OnEndpointError(ep, err)
				return
			}
			handler.OnEndpointPacket(ep, data)
		}
	})
}

func wrapSendError(err error, ep Endpoint) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "send to %s", ep.RemoteAddr())
}
