//go:build !windows
// +build !windows

package netutil

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func reasonFromErrno(err error) (Reason, bool) {
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return REASON_NO_SUCH_PORT, true
	case errors.Is(err, unix.EAGAIN):
		return REASON_RESOURCE_UNAVAILABLE, true
	case errors.Is(err, unix.ENOBUFS):
		return REASON_TRANSMIT_QUEUE_FULL, true
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EPIPE):
		return REASON_CHANNEL_LOST, true
	case errors.Is(err, unix.EMSGSIZE):
		return REASON_WINDOW_OVERFLOW, true
	}
	return REASON_SUCCESS, false
}
