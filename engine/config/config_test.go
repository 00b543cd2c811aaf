package config

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gomercury/engine/common"
	"github.com/xiaonanln/gomercury/engine/consts"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/gwutils"
)

func TestLoadSample(t *testing.T) {
	cfg, err := LoadFile("../../mercury.ini.sample")
	assert.Equal(t, nil, err)
	gwlog.Debugf("config: \n%s", DumpPretty(cfg))

	assert.Equal(t, common.BASEAPP_TYPE, cfg.Component.Type)
	assert.Equal(t, common.ComponentID(3001), cfg.Component.ID)
	assert.Equal(t, "kcp", cfg.Network.ExternalTransport)
	assert.Equal(t, time.Second*30, cfg.ChannelExternal.Timeout)
	assert.Equal(t, consts.SEND_MAX_RETRIES, cfg.ChannelExternal.SendRetries)
	assert.Equal(t, time.Minute, cfg.ChannelInternal.Timeout)
	assert.Equal(t, time.Second*300, cfg.Callback.Timeout)
	assert.Equal(t, "redis", cfg.DBTask.Type)
	assert.Equal(t, 2, cfg.DBTask.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("not_exists.ini")
	assert.NotEqual(t, nil, err)
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(""))
	assert.Equal(t, nil, err)
	assert.Equal(t, consts.PACKET_MAX_SIZE_TCP, cfg.Network.MaxPacketSize)
	assert.Equal(t, "kcp", cfg.Network.ExternalTransport)
	assert.Equal(t, consts.CHANNEL_INTERNAL_TIMEOUT, cfg.ChannelInternal.Timeout)
	assert.Equal(t, consts.CHANNEL_EXTERNAL_RESEND_INTERVAL, cfg.ChannelExternal.ResendInterval)
	assert.Equal(t, consts.SEND_MAX_RETRIES, cfg.ChannelExternal.SendRetries)
	assert.Equal(t, "", cfg.DBTask.Type)
	assert.Equal(t, Default().Callback, cfg.Callback)
}

func TestRedisDefaultDB(t *testing.T) {
	cfg, err := LoadBytes([]byte("[dbtask]\ntype = redis\nurl = 127.0.0.1:6379\n"))
	assert.Equal(t, nil, err)
	assert.Equal(t, "0", cfg.DBTask.DB)
}

func TestRedisClusterStartNodes(t *testing.T) {
	cfg, err := LoadBytes([]byte("[dbtask]\ntype = redis_cluster\nstart_nodes_1 = 127.0.0.1:7000\nstart_nodes_2 = 127.0.0.1:7001\n"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(cfg.DBTask.StartNodes))
}

func TestInvalidConfigPanics(t *testing.T) {
	bad := []string{
		"[network]\nunknown_key = 1\n",
		"[network]\nmax_packet_size = 4\n",
		"[network]\nexternal_transport = carrier_pigeon\n",
		"[channel_internal]\ntimeout = 0\n",
		"[channel_internal]\nsend_retries = -1\n",
		"[channel_external]\nresend_retries = 3\n",
		"[dbtask]\ntype = mongodb\n",
		"[dbtask]\ntype = redis\nurl = x\ndb = abc\n",
		"[dbtask]\ntype = redis_cluster\n",
		"[dbtask]\ntype = sqlite\n",
	}
	for _, content := range bad {
		content := content
		err := gwutils.CatchPanic(func() {
			LoadBytes([]byte(content))
		})
		assert.NotEqual(t, nil, err, content)
	}
}
