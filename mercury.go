// Package gomercury runs a baseapp or cellapp process: parse the command line, load the config,
// register the entity types and serve until SIGINT or SIGTERM.
package gomercury

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaonanln/gomercury/engine/app"
	"github.com/xiaonanln/gomercury/engine/binutil"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
	}
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", config.DefaultConfigFile(), "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

// Run starts the process, register is called to register entity types and peers before serving
//
// Run never returns, the process exits after the main loop has terminated.
func Run(defs *entitydef.Registry, register func(a *app.App)) {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	cfg, err := config.LoadFile(args.configFile)
	if err != nil {
		gwlog.Fatalf("read config failed: %+v", err)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	binutil.SetupGWLog(cfg.Component.Type.String(), logLevel, cfg.Log.File, cfg.Log.Stderr)
	gwlog.Infof("Read config: \n%s", config.DumpPretty(cfg))
	binutil.SetupHTTPServer(cfg.Component.HTTPAddr)

	a, err := app.New(cfg, defs)
	if err != nil {
		gwlog.Fatalf("create %s failed: %+v", cfg.Component.Type, err)
	}
	register(a)
	setupSignals(a)
	a.Run()

	gwlog.Infof("%s terminated gracefully.", a)
	gwlog.Sync()
	os.Exit(0)
}

func setupSignals(a *app.App) {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				gwlog.Infof("Terminating %s ...", a)
				a.Terminate()
				return
			}
			gwlog.Errorf("unexpected signal: %s", sig)
		}
	}()
}
