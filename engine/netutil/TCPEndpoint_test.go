package netutil

import (
	"net"
	"testing"

	"github.com/bmizerany/assert"
)

func TestTCPEndpointLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Equal(t, nil, err)
	defer ln.Close()

	client, err := DialTCP(ln.Addr().String())
	assert.Equal(t, nil, err)
	assert.T(t, !client.IsExternal())
	conn, err := ln.Accept()
	assert.Equal(t, nil, err)
	server := NewTCPEndpoint(conn, false)

	assert.Equal(t, nil, client.Send([]byte("hello")))
	assert.Equal(t, nil, client.Send([]byte("world")))
	data, err := server.Recv()
	assert.Equal(t, nil, err)
	assert.Equal(t, "hello", string(data))
	data, err = server.Recv()
	assert.Equal(t, nil, err)
	assert.Equal(t, "world", string(data))

	client.Close()
	_, err = server.Recv()
	assert.NotEqual(t, nil, err)
	server.Close()
}
