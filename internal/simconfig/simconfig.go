// SPDX-License-Identifier: GPL-3.0-or-later

// Package simconfig loads the configuration of a simulation using viper.
package simconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rbmk-project/pktbuf/errormodel"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables overriding
// the configuration (e.g., PKTSIM_ROUTER_MTU).
const EnvPrefix = "PKTSIM"

// Config is the configuration of a simulation.
type Config struct {
	Hosts   []HostConfig    `mapstructure:"hosts"`
	Router  RouterConfig    `mapstructure:"router"`
	Traffic []TrafficConfig `mapstructure:"traffic"`
	Log     LogConfig       `mapstructure:"log"`
}

// HostConfig describes a host attached to the central router.
type HostConfig struct {
	Name        string      `mapstructure:"name"`
	Addresses   []string    `mapstructure:"addresses"`
	DomainNames []string    `mapstructure:"domain_names"`
	Resolvers   []string    `mapstructure:"resolvers"`
	DNSServer   bool        `mapstructure:"dns_server"` // serves the scenario DNS database on 53/udp
	EchoPorts   []uint16    `mapstructure:"echo_ports"`
	Link        *LinkConfig `mapstructure:"link"` // nil means a direct attachment
}

// LinkConfig describes the link between a host and the router.
type LinkConfig struct {
	DataRate  string        `mapstructure:"data_rate"` // e.g. "10Mbps"; empty means infinitely fast
	Delay     time.Duration `mapstructure:"delay"`
	ErrorRate float64       `mapstructure:"error_rate"`
	ErrorUnit string        `mapstructure:"error_unit"` // byte, bit or packet
	Seed      uint64        `mapstructure:"seed"`
	Capture   string        `mapstructure:"capture"` // OPTIONAL pcap file path
}

// RouterConfig configures the central router.
type RouterConfig struct {
	MTU     uint32         `mapstructure:"mtu"`
	Censors []CensorConfig `mapstructure:"censors"`
}

// Censor types.
const (
	CensorDNSPoison = "dns_poison"
	CensorBlackhole = "blackhole"
	CensorDNAT      = "dnat"
)

// CensorConfig configures a router filter. The fields in use
// depend on the Type.
type CensorConfig struct {
	Type string `mapstructure:"type"`

	// dns_poison
	Names     []string `mapstructure:"names"`
	Addresses []string `mapstructure:"addresses"`

	// blackhole and dnat
	Target string `mapstructure:"target"`

	// blackhole
	Pattern  string        `mapstructure:"pattern"`
	Duration time.Duration `mapstructure:"duration"`

	// dnat
	Source      string `mapstructure:"source"`
	Replacement string `mapstructure:"replacement"`
}

// TrafficConfig describes a flow of echo requests.
type TrafficConfig struct {
	From     string        `mapstructure:"from"` // host name
	To       string        `mapstructure:"to"`   // "address:port" or "domain:port"
	Count    int           `mapstructure:"count"`
	Size     int           `mapstructure:"size"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // empty means stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads the configuration at path, applies the environment
// overrides and the defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults registers the defaults of the scalar settings, which
// also enables their environment overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("router.mtu", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)
}

// Default values of the traffic settings.
const (
	DefaultCount    = 10
	DefaultSize     = 64
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = time.Second
)

// applyDefaults fills the zero values of the list elements.
func (c *Config) applyDefaults() {
	for idx := range c.Traffic {
		tc := &c.Traffic[idx]
		if tc.Count <= 0 {
			tc.Count = DefaultCount
		}
		if tc.Size <= 0 {
			tc.Size = DefaultSize
		}
		if tc.Interval <= 0 {
			tc.Interval = DefaultInterval
		}
		if tc.Timeout <= 0 {
			tc.Timeout = DefaultTimeout
		}
	}
	for idx := range c.Hosts {
		if lc := c.Hosts[idx].Link; lc != nil && lc.ErrorUnit == "" {
			lc.ErrorUnit = errormodel.UnitPacket.String()
		}
	}
}

// Host returns the host with the given name.
func (c *Config) Host(name string) (*HostConfig, bool) {
	idx := slices.IndexFunc(c.Hosts, func(hc HostConfig) bool {
		return hc.Name == name
	})
	if idx < 0 {
		return nil, false
	}
	return &c.Hosts[idx], true
}

// Validate returns an error if the configuration is not valid. The
// error joins all the problems we found.
func (c *Config) Validate() error {
	var errv []error
	if len(c.Hosts) <= 0 {
		errv = append(errv, errors.New("at least one host is required"))
	}
	names := make(map[string]bool)
	for idx := range c.Hosts {
		hc := &c.Hosts[idx]
		if hc.Name == "" {
			errv = append(errv, fmt.Errorf("hosts[%d]: name is required", idx))
		} else if names[hc.Name] {
			errv = append(errv, fmt.Errorf("hosts[%d]: duplicate name %q", idx, hc.Name))
		}
		names[hc.Name] = true
		errv = append(errv, hc.validate(idx)...)
	}
	for idx := range c.Router.Censors {
		if err := c.Router.Censors[idx].validate(); err != nil {
			errv = append(errv, fmt.Errorf("router.censors[%d]: %w", idx, err))
		}
	}
	for idx, tc := range c.Traffic {
		if !names[tc.From] {
			errv = append(errv, fmt.Errorf("traffic[%d]: unknown host %q", idx, tc.From))
		}
		if _, _, err := splitHostPort(tc.To); err != nil {
			errv = append(errv, fmt.Errorf("traffic[%d]: %w", idx, err))
		}
		if tc.Size > netdev.MaxPayloadSize {
			errv = append(errv, fmt.Errorf("traffic[%d]: size %d is too large", idx, tc.Size))
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errv = append(errv, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errv = append(errv, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errv...)
}

// validate validates the host at the given index.
func (hc *HostConfig) validate(idx int) (errv []error) {
	if len(hc.Addresses) <= 0 {
		errv = append(errv, fmt.Errorf("hosts[%d]: at least one address is required", idx))
	}
	for _, addr := range slices.Concat(hc.Addresses, hc.Resolvers) {
		if _, err := netip.ParseAddr(addr); err != nil {
			errv = append(errv, fmt.Errorf("hosts[%d]: %w", idx, err))
		}
	}
	if lc := hc.Link; lc != nil {
		if lc.DataRate != "" {
			if _, err := errormodel.ParseDataRate(lc.DataRate); err != nil {
				errv = append(errv, fmt.Errorf("hosts[%d].link: %w", idx, err))
			}
		}
		if lc.ErrorRate < 0 || lc.ErrorRate > 1 {
			errv = append(errv, fmt.Errorf("hosts[%d].link: error_rate must be within [0, 1]", idx))
		}
		if _, err := errormodel.ParseUnit(lc.ErrorUnit); err != nil {
			errv = append(errv, fmt.Errorf("hosts[%d].link: %w", idx, err))
		}
		if lc.Delay < 0 {
			errv = append(errv, fmt.Errorf("hosts[%d].link: negative delay", idx))
		}
	}
	return
}

// validate validates a censor configuration.
func (cc *CensorConfig) validate() error {
	switch cc.Type {
	case CensorDNSPoison:
		if len(cc.Names) <= 0 || len(cc.Addresses) <= 0 {
			return errors.New("dns_poison requires names and addresses")
		}
		for _, addr := range cc.Addresses {
			if _, err := netip.ParseAddr(addr); err != nil {
				return err
			}
		}
		return nil

	case CensorBlackhole:
		if cc.Target != "" {
			if _, err := netip.ParseAddrPort(cc.Target); err != nil {
				return err
			}
		}
		if cc.Duration <= 0 {
			return errors.New("blackhole requires a positive duration")
		}
		return nil

	case CensorDNAT:
		if _, err := netip.ParseAddr(cc.Source); err != nil {
			return err
		}
		for _, addr := range []string{cc.Target, cc.Replacement} {
			if _, err := netip.ParseAddrPort(addr); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown censor type %q", cc.Type)
	}
}

// ParseLevel parses a log level name.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", value)
	}
}

// splitHostPort splits an endpoint and parses its port.
func splitHostPort(endpoint string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, err
	}
	value, err := strconv.ParseUint(port, 10, 16)
	if err != nil || value == 0 {
		return "", 0, fmt.Errorf("invalid port in %q", endpoint)
	}
	return host, uint16(value), nil
}
