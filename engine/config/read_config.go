package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE = "mercury.ini"
	_DEFAULT_LOG_LEVEL   = "debug"
	_DEFAULT_DB_NAME     = "mercury"
)

// Config is the total config of a component process
type Config struct {
	Component       ComponentConfig
	Network         NetworkConfig
	ChannelInternal ChannelConfig
	ChannelExternal ChannelConfig
	Callback        CallbackConfig
	DBTask          DBTaskConfig
	Log             LogConfig
}

// ComponentConfig defines which component this process is
type ComponentConfig struct {
	Type         common.ComponentType
	ID           common.ComponentID
	InternalAddr string
	ExternalAddr string
	HTTPAddr     string // pprof, disabled when empty
}

// NetworkConfig defines fields of the packet layer
type NetworkConfig struct {
	MaxPacketSize     int
	NoFloat           bool
	TracePackets      bool
	ExternalTransport string // kcp, websocket
}

// ChannelConfig defines inactivity and resend parameters of a class of channels
type ChannelConfig struct {
	Timeout        time.Duration
	ResendInterval time.Duration
	SendRetries    int
	SendBackoff    time.Duration
}

// CallbackConfig defines fields of callback registries
type CallbackConfig struct {
	Timeout time.Duration
}

// DBTaskConfig defines fields of the db task backend
type DBTaskConfig struct {
	Type       string // redis, redis_cluster, mongodb, "" disables db tasks
	Url        string
	DB         string
	Collection string
	Workers    int
	StartNodes common.StringSet
}

// LogConfig defines fields of logging
type LogConfig struct {
	Level  string
	File   string
	Stderr bool
}

// DefaultConfigFile returns the default config file path
func DefaultConfigFile() string {
	return _DEFAULT_CONFIG_FILE
}

// Default returns the config with all default values
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFile reads config from the ini file
func LoadFile(path string) (*Config, error) {
	gwlog.Infof("Using config file: %s", path)
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s failed", path)
	}
	return readConfig(iniFile), nil
}

// LoadBytes reads config from ini content
func LoadBytes(data []byte) (*Config, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse config failed")
	}
	return readConfig(iniFile), nil
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func setDefaults(cfg *Config) {
	cfg.Network.MaxPacketSize = consts.PACKET_MAX_SIZE_TCP
	cfg.Network.ExternalTransport = "kcp"

	cfg.ChannelInternal = ChannelConfig{
		Timeout:        consts.CHANNEL_INTERNAL_TIMEOUT,
		ResendInterval: consts.CHANNEL_INTERNAL_RESEND_INTERVAL,
		SendRetries:    consts.SEND_MAX_RETRIES,
		SendBackoff:    consts.SEND_RETRY_BACKOFF,
	}
	cfg.ChannelExternal = ChannelConfig{
		Timeout:        consts.CHANNEL_EXTERNAL_TIMEOUT,
		ResendInterval: consts.CHANNEL_EXTERNAL_RESEND_INTERVAL,
		SendRetries:    consts.SEND_MAX_RETRIES,
		SendBackoff:    consts.SEND_RETRY_BACKOFF,
	}
	cfg.Callback.Timeout = consts.CALLBACK_DEFAULT_TIMEOUT
	cfg.DBTask.DB = _DEFAULT_DB_NAME
	cfg.DBTask.Collection = "entities"
	cfg.DBTask.Workers = 1
	cfg.DBTask.StartNodes = common.StringSet{}
	cfg.Log.Level = _DEFAULT_LOG_LEVEL
	cfg.Log.Stderr = true
}

func readConfig(iniFile *ini.File) *Config {
	cfg := &Config{}
	setDefaults(cfg)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if secName == "default" {
			continue
		}

		if secName == "component" {
			readComponentConfig(sec, &cfg.Component)
		} else if secName == "network" {
			readNetworkConfig(sec, &cfg.Network)
		} else if secName == "channel_internal" {
			readChannelConfig(sec, &cfg.ChannelInternal)
		} else if secName == "channel_external" {
			readChannelConfig(sec, &cfg.ChannelExternal)
		} else if secName == "callback" {
			readCallbackConfig(sec, &cfg.Callback)
		} else if secName == "dbtask" {
			readDBTaskConfig(sec, &cfg.DBTask)
		} else if secName == "log" {
			readLogConfig(sec, &cfg.Log)
		} else {
			gwlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(cfg)
	return cfg
}

func readComponentConfig(sec *ini.Section, cc *ComponentConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			cc.Type = common.ParseComponentType(strings.ToLower(key.MustString("")))
		} else if name == "id" {
			cc.ID = common.ComponentID(key.MustUint64(uint64(cc.ID)))
		} else if name == "internal_addr" {
			cc.InternalAddr = key.MustString(cc.InternalAddr)
		} else if name == "external_addr" {
			cc.ExternalAddr = key.MustString(cc.ExternalAddr)
		} else if name == "http_addr" {
			cc.HTTPAddr = key.MustString(cc.HTTPAddr)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readNetworkConfig(sec *ini.Section, nc *NetworkConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "max_packet_size" {
			nc.MaxPacketSize = key.MustInt(nc.MaxPacketSize)
		} else if name == "no_float" {
			nc.NoFloat = key.MustBool(nc.NoFloat)
		} else if name == "trace_packets" {
			nc.TracePackets = key.MustBool(nc.TracePackets)
		} else if name == "external_transport" {
			nc.ExternalTransport = strings.ToLower(key.MustString(nc.ExternalTransport))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

// durations are written in milliseconds
func readChannelConfig(sec *ini.Section, cc *ChannelConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "timeout" {
			cc.Timeout = time.Millisecond * time.Duration(key.MustInt64(int64(cc.Timeout/time.Millisecond)))
		} else if name == "resend_interval" {
			cc.ResendInterval = time.Millisecond * time.Duration(key.MustInt64(int64(cc.ResendInterval/time.Millisecond)))
		} else if name == "send_retries" {
			cc.SendRetries = key.MustInt(cc.SendRetries)
		} else if name == "send_backoff" {
			cc.SendBackoff = time.Millisecond * time.Duration(key.MustInt64(int64(cc.SendBackoff/time.Millisecond)))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readCallbackConfig(sec *ini.Section, cc *CallbackConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "timeout" {
			cc.Timeout = time.Second * time.Duration(key.MustInt64(int64(cc.Timeout/time.Second)))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readDBTaskConfig(sec *ini.Section, dc *DBTaskConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			dc.Type = key.MustString(dc.Type)
		} else if name == "url" {
			dc.Url = key.MustString(dc.Url)
		} else if name == "db" {
			dc.DB = key.MustString(dc.DB)
		} else if name == "collection" {
			dc.Collection = key.MustString(dc.Collection)
		} else if name == "workers" {
			dc.Workers = key.MustInt(dc.Workers)
		} else if strings.HasPrefix(name, "start_nodes_") {
			dc.StartNodes.Add(key.MustString(""))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if dc.Type == "redis" && dc.DB == _DEFAULT_DB_NAME {
		dc.DB = "0"
	}
}

func readLogConfig(sec *ini.Section, lc *LogConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "level" {
			lc.Level = key.MustString(lc.Level)
		} else if name == "file" {
			lc.File = key.MustString(lc.File)
		} else if name == "stderr" {
			lc.Stderr = key.MustBool(lc.Stderr)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func validateConfig(cfg *Config) {
	if cfg.Network.MaxPacketSize <= consts.MESSAGE_ID_SIZE+consts.MESSAGE_LENGTH_SIZE+consts.MESSAGE_LENGTH_EXT_SIZE {
		gwlog.Panicf("network.max_packet_size is too small: %d", cfg.Network.MaxPacketSize)
	}
	switch cfg.Network.ExternalTransport {
	case "kcp", "websocket":
	default:
		gwlog.Panicf("unknown network.external_transport: %s", cfg.Network.ExternalTransport)
	}

	validateChannelConfig("channel_internal", &cfg.ChannelInternal)
	validateChannelConfig("channel_external", &cfg.ChannelExternal)

	if cfg.Callback.Timeout <= 0 {
		gwlog.Panicf("callback.timeout must be positive")
	}
	validateDBTaskConfig(&cfg.DBTask)
}

func validateChannelConfig(name string, cc *ChannelConfig) {
	if cc.Timeout <= 0 {
		gwlog.Panicf("%s.timeout must be positive", name)
	}
	if cc.SendRetries < 0 {
		gwlog.Panicf("%s.send_retries must not be negative", name)
	}
}

func validateDBTaskConfig(dc *DBTaskConfig) {
	if dc.Workers <= 0 {
		gwlog.Panicf("dbtask.workers must be positive")
	}

	switch dc.Type {
	case "":
		// db tasks not enabled
	case "mongodb":
		if dc.Url == "" || dc.DB == "" || dc.Collection == "" {
			gwlog.Panicf("invalid mongodb dbtask config:\n%s", DumpPretty(dc))
		}
	case "redis":
		if dc.Url == "" {
			gwlog.Panicf("invalid redis dbtask config:\n%s", DumpPretty(dc))
		}
		if _, err := strconv.Atoi(dc.DB); err != nil {
			gwlog.Panic(errors.Wrap(err, "redis db must be integer"))
		}
	case "redis_cluster":
		if len(dc.StartNodes) == 0 {
			gwlog.Panicf("must have at least 1 start_nodes for [dbtask].redis_cluster")
		}
		for s := range dc.StartNodes {
			if s == "" {
				gwlog.Panicf("start_nodes must not be empty")
			}
		}
	default:
		gwlog.Panicf("unknown dbtask type: %s", dc.Type)
	}
}
