// +build !windows

package binutil

import (
	"os"

	"github.com/sevlyar/go-daemon"
	"github.com/xiaonanln/gomercury/engine/gwlog"
)

// Daemonize reruns the process in background, the parent exits and the child gets the context to release
func Daemonize() *daemon.Context {
	context := new(daemon.Context)
	child, err := context.Reborn()
	if err != nil {
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("run in daemon mode, pid %d", child.Pid)
		os.Exit(0)
	}
	return context
}
