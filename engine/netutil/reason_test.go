package netutil

import (
	"io"
	"net"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestReasonString(t *testing.T) {
	assert.Equal(t, "REASON_SUCCESS", REASON_SUCCESS.String())
	assert.Equal(t, "REASON_RESOURCE_UNAVAILABLE", REASON_RESOURCE_UNAVAILABLE.String())
	assert.Equal(t, "REASON_CHANNEL_CONDEMN", REASON_CHANNEL_CONDEMN.String())
	assert.Equal(t, "REASON_UNKNOWN", Reason(-15).String())
	assert.Equal(t, "REASON_UNKNOWN", Reason(1).String())
}

func TestReasonRetryPolicy(t *testing.T) {
	assert.T(t, REASON_NO_SUCH_PORT.IsRetryable())
	assert.T(t, !REASON_NO_SUCH_PORT.NeedsBackoff())
	assert.T(t, REASON_RESOURCE_UNAVAILABLE.NeedsBackoff())
	assert.T(t, REASON_GENERAL_NETWORK.NeedsBackoff())
	assert.T(t, !REASON_CHANNEL_LOST.IsRetryable())
}

func TestReasonFromError(t *testing.T) {
	assert.Equal(t, REASON_SUCCESS, ReasonFromError(nil))
	assert.Equal(t, REASON_NO_SUCH_PORT, ReasonFromError(errors.Wrap(NewReasonError(REASON_NO_SUCH_PORT, nil), "send")))
	assert.Equal(t, REASON_CHANNEL_LOST, ReasonFromError(errors.Wrap(io.EOF, "recv")))
	assert.Equal(t, REASON_CHANNEL_LOST, ReasonFromError(net.ErrClosed))
	assert.Equal(t, REASON_GENERAL_NETWORK, ReasonFromError(errors.New("something else")))
	assert.T(t, IsConnectionError(io.EOF))
	assert.T(t, !IsConnectionError(errors.New("x")))
}
