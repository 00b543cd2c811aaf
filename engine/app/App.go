package app

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gomercury/engine/async"
	"github.com/xiaonanln/gomercury/engine/bundle"
	"github.com/xiaonanln/gomercury/engine/callbackmgr"
	"github.com/xiaonanln/gomercury/engine/channel"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/components"
	"github.com/xiaonanln/gomercury/engine/config"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/dbtask"
	"github.com/xiaonanln/gomercury/engine/entity"
	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
	"github.com/xiaonanln/gomercury/engine/gwvar"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/gomercury/engine/msgcatalog"
	"github.com/xiaonanln/gomercury/engine/netutil"
	"github.com/xiaonanln/gomercury/engine/network"
	"github.com/xiaonanln/gomercury/engine/opmon"
	"github.com/xiaonanln/gomercury/engine/post"
	"github.com/xiaonanln/gomercury/engine/profile"
	"github.com/xiaonanln/gomercury/engine/proto"
	"golang.org/x/net/context"
)

const (
	rsNotRunning = iota
	rsRunning
	rsTerminating
	rsTerminated
)

const _PROCESS_SNAPSHOT_GROUP = "process"

// App is a baseapp or cellapp process: the network interface, the entities and the main loop that drives them
//
// Everything except Terminate and WaitTerminated must be called on the main loop.
type App struct {
	Config     *config.Config
	Interfaces *proto.Interfaces
	Components *components.Registry
	Router     *mailbox.Router
	Network    *network.NetworkInterface
	Callbacks  *callbackmgr.Manager
	Entities   *entity.Manager
	Events     *profile.EventProfile
	Monitor    *opmon.Monitor
	DBTasks    *dbtask.Service // nil when db tasks are not configured

	// OnClientConnected is called on baseapps for every new client channel, after the client
	// got the message catalog. It usually creates the entity the client controls and attaches it.
	OnClientConnected func(ch *channel.Channel)

	queue           *post.Queue
	asyncJobs       *async.Pool
	activeTickTimer *timer.Timer
	sessions   map[string]*profile.Session
	runState   xnsyncutil.AtomicInt
	terminated *xnsyncutil.OneTimeCond
}

// New creates the process described by cfg, entity types of defs are registered afterwards on Entities
func New(cfg *config.Config, defs *entitydef.Registry) (*App, error) {
	var role common.EntityRole
	switch cfg.Component.Type {
	case common.BASEAPP_TYPE:
		role = common.ROLE_BASE
	case common.CELLAPP_TYPE:
		role = common.ROLE_CELL
	default:
		return nil, errors.Errorf("component type %s can not run entities", cfg.Component.Type)
	}

	app := &App{
		Config:     cfg,
		Interfaces: proto.NewInterfaces(),
		Components: components.NewRegistry(),
		Callbacks:  callbackmgr.NewManager(cfg.Callback.Timeout),
		Events:     profile.NewEventProfile(),
		Monitor:    opmon.NewMonitor(),
		queue:      post.NewQueue(),
		sessions:   map[string]*profile.Session{},
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	app.Router = &mailbox.Router{
		Interfaces:    app.Interfaces,
		Components:    app.Components,
		DirectChannel: app.clientChannel,
	}
	app.Entities = entity.NewManager(entity.ManagerConfig{
		Role:          role,
		ComponentID:   cfg.Component.ID,
		Defs:          defs,
		Router:        app.Router,
		Tracker:       app.Events,
		Callbacks:     app.Callbacks,
		MaxPacketSize: cfg.Network.MaxPacketSize,
		NoFloat:       cfg.Network.NoFloat,
	})
	app.Entities.BindHandlers()

	app.Network = network.NewNetworkInterface(app.Interfaces.ForComponent(cfg.Component.Type), cfg.ChannelInternal, cfg.ChannelExternal)
	app.Network.AddListener(app.Components)
	app.Network.AddListener(app)
	app.Network.OnRegister(app.onChannelRegistered)
	app.Interfaces.ForComponent(cfg.Component.Type).Bind(proto.MSG_ON_APP_ACTIVE_TICK, app.handleAppActiveTick)

	var err error
	if app.DBTasks, err = dbtask.Open(cfg.DBTask, app.queue, app.Monitor); err != nil {
		return nil, err
	}
	app.asyncJobs = async.NewPool(app.queue)
	return app, nil
}

func (app *App) String() string {
	return fmt.Sprintf("%s%d", app.Config.Component.Type, app.Config.Component.ID)
}

// Role returns the role of entity parts living in the process
func (app *App) Role() common.EntityRole {
	return app.Entities.Role()
}

// Post runs f on the main loop, it can be called from any goroutine
func (app *App) Post(f post.PostCallback) {
	app.queue.Post(f)
}

// AddPeer connects to the internal address of another component and registers it
func (app *App) AddPeer(id common.ComponentID, componentType common.ComponentType, addr string) error {
	ch, err := app.Network.ConnectTCP(addr)
	if err != nil {
		return errors.Wrapf(err, "connect %s%d", componentType, id)
	}
	app.Components.Add(&components.ComponentInfo{
		ID:           id,
		Type:         componentType,
		InternalAddr: addr,
		Channel:      ch,
	})
	return nil
}

func (app *App) onChannelRegistered(ch *channel.Channel) {
	if !ch.IsExternal() || app.Role() != common.ROLE_BASE {
		return
	}

	b := bundle.NewBundle(app.Config.Network.MaxPacketSize)
	app.Interfaces.WriteImportClientMessages(b)
	reason := b.Send(ch)
	b.Release()
	if reason != netutil.REASON_SUCCESS {
		gwlog.Warnf("%s: send client messages to %s failed: %s", app, ch, reason)
		return
	}

	if app.OnClientConnected != nil {
		gwutils.RunPanicless(func() {
			app.OnClientConnected(ch)
		})
	}
}

// clientChannel resolves client mailboxes to the channel of the client attached to the entity
func (app *App) clientChannel(mb *mailbox.Mailbox) *channel.Channel {
	if !mb.IsClient() {
		return nil
	}
	return app.Entities.ClientChannel(mb.EntityID)
}

// OnChannelDeregister implements channel.Listener
func (app *App) OnChannelDeregister(ch *channel.Channel, reason netutil.Reason) {
	if ch.IsExternal() {
		gwlog.Infof("%s: client %s disconnected: %s", app, ch.Addr(), reason)
		app.Entities.OnClientDisconnected(ch)
	}
}

// SendActiveTicks sends an active tick to every connected peer, so idle internal channels do not time out
func (app *App) SendActiveTicks() {
	for _, info := range app.Components.All() {
		if !info.IsAlive() {
			continue
		}
		b := bundle.NewBundle(app.Config.Network.MaxPacketSize)
		if app.Interfaces.WriteAppActiveTick(b, info.Type) {
			if reason := b.Send(info.Channel); reason != netutil.REASON_SUCCESS {
				gwlog.Warnf("%s: active tick to %s failed: %s", app, info, reason)
			}
		}
		b.Release()
	}
}

// the channel is refreshed by receiving the tick, nothing else to do
func (app *App) handleAppActiveTick(ch msgcatalog.Channel, pkt *netutil.Packet) {
	if consts.DEBUG_CHANNELS {
		gwlog.Debugf("%s: active tick from %s", app, ch.Addr())
	}
}

// Tick runs one round of the main loop: timers, inbound packets, callback timeouts and posted functions
func (app *App) Tick() {
	timer.Tick()
	app.Network.ProcessInbound()
	app.Callbacks.Tick()
	app.queue.Tick()

	gwvar.NumChannels.Set(int64(app.Network.NumChannels()))
	gwvar.NumEntities.Set(int64(app.Entities.Len()))
	gwvar.PendingCallbacks.Set(int64(app.Callbacks.Len()))
}

// Run serves the configured addresses and runs the main loop until the process terminates
func (app *App) Run() {
	app.Interfaces.Freeze()
	if app.runState.Load() == rsNotRunning {
		app.runState.Store(rsRunning)
	}

	cc := app.Config.Component
	if cc.InternalAddr != "" {
		go gwutils.RunPanicless(func() {
			app.Network.ServeTCPForever(cc.InternalAddr)
		})
	}
	if cc.ExternalAddr != "" && app.Role() == common.ROLE_BASE {
		go gwutils.RunPanicless(func() {
			if err := app.Network.ServeExternal(app.Config.Network.ExternalTransport, cc.ExternalAddr); err != nil {
				gwlog.Errorf("%s: serve clients failed: %v", app, err)
			}
		})
	}
	app.Network.StartInactivitySweep(consts.CHANNEL_INACTIVITY_CHECK_INTERVAL)
	if app.activeTickTimer == nil {
		app.activeTickTimer = timer.AddTimer(app.Config.ChannelInternal.Timeout/consts.APP_ACTIVE_TICKS_PER_TIMEOUT, app.SendActiveTicks)
	}
	gwvar.IsRunning.Set(true)
	gwlog.Infof("%s: running", app)

	ticker := time.NewTicker(consts.MAIN_LOOP_TICK_INTERVAL)
	defer ticker.Stop()
	for range ticker.C {
		if app.runState.Load() == rsTerminating {
			app.doTerminate()
			return
		}
		app.Tick()
	}
}

// IsRunning returns if the main loop is running, it can be called from any goroutine
func (app *App) IsRunning() bool {
	return app.runState.Load() == rsRunning
}

// Terminate asks the main loop to shut down, it can be called from any goroutine
func (app *App) Terminate() {
	app.runState.Store(rsTerminating)
}

// WaitTerminated blocks until the main loop has shut down
func (app *App) WaitTerminated() {
	app.terminated.Wait()
}

func (app *App) doTerminate() {
	gwlog.Infof("%s: terminating ...", app)
	if app.activeTickTimer != nil {
		app.activeTickTimer.Cancel()
		app.activeTickTimer = nil
	}
	for _, e := range app.Entities.Entities().Sorted() {
		e.Destroy()
	}
	app.Callbacks.Finalise()
	app.Network.Close()

	if app.DBTasks != nil {
		app.DBTasks.Close()
		app.DBTasks.WaitTerminated()
	}
	app.asyncJobs.Shutdown()
	// callbacks of the finished tasks and jobs
	app.queue.Tick()

	app.runState.Store(rsTerminated)
	gwvar.IsRunning.Set(false)
	gwlog.Infof("%s: terminated", app)
	app.terminated.Signal()
}

// SaveCallbacks persists the pending callbacks under key
func (app *App) SaveCallbacks(key string, done func(err error)) {
	if app.DBTasks == nil {
		done(errors.New("db tasks are not configured"))
		return
	}
	app.DBTasks.Submit(dbtask.NewSaveCallbacks(key, app.Callbacks), func(_ interface{}, err error) {
		done(err)
	})
}

// RestoreCallbacks loads the callbacks saved under key into the callback registry
func (app *App) RestoreCallbacks(key string, decode callbackmgr.DecodeFunc, done func(err error)) {
	if app.DBTasks == nil {
		done(errors.New("db tasks are not configured"))
		return
	}
	app.DBTasks.RestoreCallbacks(key, app.Callbacks, decode, done)
}

// StartProfile starts a profile session named name, the report is logged when it finishes
func (app *App) StartProfile(name string, kind profile.Kind, duration time.Duration) error {
	if s := app.sessions[name]; s != nil && !s.IsFinished() {
		return errors.Errorf("profile %s is running", name)
	}

	src := profile.Sources{
		Catalogs: []*msgcatalog.Catalog{app.Interfaces.Client, app.Interfaces.Baseapp, app.Interfaces.Cellapp},
		Events:   app.Events,
		Monitor:  app.Monitor,
	}
	app.sessions[name] = profile.StartSession(name, kind, duration, src, channel.TimerScheduler(), func(s *profile.Session, text string) {
		gwlog.Infof("%s", text)
	})
	return nil
}

// ReportProcessUsage collects the resource usage of the process off the main loop and calls cb on it
func (app *App) ReportProcessUsage(cb func(snapshot profile.ProcessSnapshot, err error)) {
	app.asyncJobs.AppendAsyncJob(_PROCESS_SNAPSHOT_GROUP, func(ctx context.Context) (interface{}, error) {
		return profile.TakeProcessSnapshot(ctx)
	}, func(res interface{}, err error) {
		snapshot, _ := res.(profile.ProcessSnapshot)
		cb(snapshot, err)
	})
}
