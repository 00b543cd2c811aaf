package binutil

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
)

// SetupHTTPServer starts the HTTP server for go tool pprof, an empty addr disables it
func SetupHTTPServer(addr string) {
	if addr == "" {
		gwlog.Infof("pprof server not enabled")
		return
	}

	gwlog.Infof("http server listening on %s", addr)
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", addr)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", addr)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", addr)

	go gwutils.RunPanicless(func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			gwlog.Errorf("http server@%s failed: %v", addr, err)
		}
	})
}

// SetupGWLog sets the source, level and outputs of gwlog
//
// logFile is rotated by size, logs go to stderr when neither output is enabled.
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	gwlog.SetSource(component)
	gwlog.Infof("Set log level to %s", logLevel)
	gwlog.SetLevel(gwlog.StringToLevel(logLevel))

	outputs := make([]string, 0, 2)
	if logFile != "" {
		outputs = append(outputs, gwlog.RotatingFile(logFile))
	}
	if logStderr || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}
	gwlog.SetOutput(outputs)
}
