//go:build windows
// +build windows

package netutil

func reasonFromErrno(err error) (Reason, bool) {
	return REASON_SUCCESS, false
}
