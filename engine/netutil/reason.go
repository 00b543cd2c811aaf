package netutil

import (
	"io"
	"net"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Reason is the result code of network operations
type Reason int

// Reason codes
const (
	REASON_SUCCESS              Reason = 0
	REASON_TIMER_EXPIRED        Reason = -1
	REASON_NO_SUCH_PORT         Reason = -2
	REASON_GENERAL_NETWORK      Reason = -3
	REASON_CORRUPTED_PACKET     Reason = -4
	REASON_NONEXISTENT_ENTRY    Reason = -5
	REASON_WINDOW_OVERFLOW      Reason = -6
	REASON_INACTIVITY           Reason = -7
	REASON_RESOURCE_UNAVAILABLE Reason = -8
	REASON_CLIENT_DISCONNECTED  Reason = -9
	REASON_TRANSMIT_QUEUE_FULL  Reason = -10
	REASON_CHANNEL_LOST         Reason = -11
	REASON_SHUTTING_DOWN        Reason = -12
	REASON_HTML5_ERROR          Reason = -13
	REASON_CHANNEL_CONDEMN      Reason = -14
)

var reasonNames = [...]string{
	"REASON_SUCCESS",
	"REASON_TIMER_EXPIRED",
	"REASON_NO_SUCH_PORT",
	"REASON_GENERAL_NETWORK",
	"REASON_CORRUPTED_PACKET",
	"REASON_NONEXISTENT_ENTRY",
	"REASON_WINDOW_OVERFLOW",
	"REASON_INACTIVITY",
	"REASON_RESOURCE_UNAVAILABLE",
	"REASON_CLIENT_DISCONNECTED",
	"REASON_TRANSMIT_QUEUE_FULL",
	"REASON_CHANNEL_LOST",
	"REASON_SHUTTING_DOWN",
	"REASON_HTML5_ERROR",
	"REASON_CHANNEL_CONDEMN",
}

func (r Reason) String() string {
	idx := -int(r)
	if idx < 0 || idx >= len(reasonNames) {
		return "REASON_UNKNOWN"
	}
	return reasonNames[idx]
}

// IsRetryable returns if a failed send with this reason may be retried
func (r Reason) IsRetryable() bool {
	return r == REASON_NO_SUCH_PORT || r == REASON_RESOURCE_UNAVAILABLE || r == REASON_GENERAL_NETWORK
}

// NeedsBackoff returns if a retry should wait before sending again
func (r Reason) NeedsBackoff() bool {
	return r == REASON_RESOURCE_UNAVAILABLE || r == REASON_GENERAL_NETWORK
}

// ReasonError is an error carrying a Reason, transports return it when they know the reason
type ReasonError struct {
	Reason Reason
	Err    error
}

func (e *ReasonError) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return e.Reason.String() + ": " + e.Err.Error()
}

// NewReasonError wraps err with a reason
func NewReasonError(reason Reason, err error) error {
	return &ReasonError{Reason: reason, Err: err}
}

// ReasonFromError classifies transport errors
func ReasonFromError(err error) Reason {
	if err == nil {
		return REASON_SUCCESS
	}

	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}

	if reason, ok := reasonFromErrno(err); ok {
		return reason
	}

	cause := errors.Cause(err)
	if cause == io.EOF || cause == io.ErrClosedPipe || errors.Is(err, net.ErrClosed) {
		return REASON_CHANNEL_LOST
	}
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return REASON_CLIENT_DISCONNECTED
	}
	if _, ok := cause.(*websocket.CloseError); ok {
		return REASON_HTML5_ERROR
	}
	if neterr, ok := cause.(net.Error); ok && neterr.Timeout() {
		return REASON_GENERAL_NETWORK
	}
	return REASON_GENERAL_NETWORK
}

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(err error) bool {
	switch ReasonFromError(err) {
	case REASON_CHANNEL_LOST, REASON_CLIENT_DISCONNECTED, REASON_NO_SUCH_PORT, REASON_HTML5_ERROR:
		return true
	}
	return false
}

// IsTimeoutError checks if err is a deadline or timeout error
func IsTimeoutError(err error) bool {
	neterr, ok := errors.Cause(err).(net.Error)
	return ok && neterr.Timeout()
}
