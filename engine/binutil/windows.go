// +build windows

package binutil

import "github.com/xiaonanln/gomercury/engine/gwlog"

type nopRelease struct{}

func (nopRelease) Release() error { return nil }

// Daemonize does nothing on windows
func Daemonize() nopRelease {
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease{}
}
