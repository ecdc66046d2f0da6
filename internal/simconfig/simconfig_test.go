// SPDX-License-Identifier: GPL-3.0-or-later

package simconfig_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbmk-project/pktbuf/internal/simconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
hosts:
  - name: dns
    addresses: ["8.8.8.8"]
    domain_names: ["dns.google"]
    dns_server: true
  - name: server
    addresses: ["93.184.216.34"]
    domain_names: ["www.example.com"]
    echo_ports: [7]
    link:
      delay: 20ms
  - name: client
    addresses: ["193.206.158.22"]
    resolvers: ["8.8.8.8"]
    link:
      data_rate: 10Mbps
      error_rate: 0.01
      seed: 4
router:
  mtu: 1500
  censors:
    - type: dns_poison
      names: ["dns.google"]
      addresses: ["10.0.0.1"]
    - type: blackhole
      target: "93.184.216.34:7"
      pattern: forbidden
      duration: 1m
traffic:
  - from: client
    to: "www.example.com:7"
    count: 5
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "pktsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	config, err := simconfig.Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Len(t, config.Hosts, 3)
	assert.True(t, config.Hosts[0].DNSServer)
	assert.Equal(t, []uint16{7}, config.Hosts[1].EchoPorts)
	require.NotNil(t, config.Hosts[1].Link)
	assert.Equal(t, 20*time.Millisecond, config.Hosts[1].Link.Delay)
	assert.Nil(t, config.Hosts[0].Link)

	client, found := config.Host("client")
	require.True(t, found)
	assert.Equal(t, "10Mbps", client.Link.DataRate)
	assert.Equal(t, 0.01, client.Link.ErrorRate)
	assert.Equal(t, "packet", client.Link.ErrorUnit)
	assert.Equal(t, uint64(4), client.Link.Seed)
	_, found = config.Host("nonexistent")
	assert.False(t, found)

	assert.Equal(t, uint32(1500), config.Router.MTU)
	require.Len(t, config.Router.Censors, 2)
	assert.Equal(t, time.Minute, config.Router.Censors[1].Duration)

	require.Len(t, config.Traffic, 1)
	assert.Equal(t, 5, config.Traffic[0].Count)
	assert.Equal(t, simconfig.DefaultSize, config.Traffic[0].Size)
	assert.Equal(t, simconfig.DefaultInterval, config.Traffic[0].Interval)
	assert.Equal(t, simconfig.DefaultTimeout, config.Traffic[0].Timeout)

	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
	assert.Equal(t, 10, config.Log.MaxSizeMB)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("PKTSIM_ROUTER_MTU", "576")
	t.Setenv("PKTSIM_LOG_LEVEL", "debug")
	config, err := simconfig.Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, uint32(576), config.Router.MTU)
	assert.Equal(t, "debug", config.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errstr  string
	}{{
		name:    "no hosts",
		content: "traffic: []\n",
		errstr:  "at least one host is required",
	}, {
		name:    "host without name",
		content: "hosts:\n  - addresses: [\"10.0.0.1\"]\n",
		errstr:  "hosts[0]: name is required",
	}, {
		name:    "duplicate host",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"]}\n  - {name: a, addresses: [\"10.0.0.2\"]}\n",
		errstr:  "hosts[1]: duplicate name \"a\"",
	}, {
		name:    "invalid address",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0\"]}\n",
		errstr:  "hosts[0]",
	}, {
		name:    "invalid data rate",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"], link: {data_rate: fast}}\n",
		errstr:  "hosts[0].link",
	}, {
		name:    "invalid error rate",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"], link: {error_rate: 2}}\n",
		errstr:  "error_rate must be within [0, 1]",
	}, {
		name:    "unknown censor",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"]}\nrouter:\n  censors:\n    - type: nope\n",
		errstr:  "unknown censor type \"nope\"",
	}, {
		name:    "traffic from unknown host",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"]}\ntraffic:\n  - {from: b, to: \"10.0.0.1:7\"}\n",
		errstr:  "traffic[0]: unknown host \"b\"",
	}, {
		name:    "traffic without port",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"]}\ntraffic:\n  - {from: a, to: \"10.0.0.1\"}\n",
		errstr:  "traffic[0]",
	}, {
		name:    "invalid log level",
		content: "hosts:\n  - {name: a, addresses: [\"10.0.0.1\"]}\nlog:\n  level: loud\n",
		errstr:  "log.level: unknown level \"loud\"",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := simconfig.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errstr)
			assert.Nil(t, config)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := simconfig.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestParseLevel(t *testing.T) {
	level, err := simconfig.ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())
	_, err = simconfig.ParseLevel("verbose")
	assert.Error(t, err)
}
