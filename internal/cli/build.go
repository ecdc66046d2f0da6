// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/pktbuf/closepool"
	"github.com/rbmk-project/pktbuf/errormodel"
	"github.com/rbmk-project/pktbuf/internal/simconfig"
	"github.com/rbmk-project/pktbuf/netsim"
	"github.com/rbmk-project/pktbuf/netsim/censor"
	"github.com/rbmk-project/pktbuf/netsim/dns"
	"github.com/rbmk-project/pktbuf/netsim/geolink"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/pcapwriter"
)

// simulation is a running simulation built from a [*simconfig.Config].
type simulation struct {
	// captures contains the pcap writers.
	captures *closepool.Pool

	// scenario is the running scenario.
	scenario *netsim.Scenario

	// stacks maps host names to their stacks.
	stacks map[string]*netsim.Stack
}

// Close stops the simulation and flushes the captures.
func (sim *simulation) Close() error {
	return errors.Join(sim.scenario.Close(), sim.captures.Close())
}

// buildSimulation creates the scenario described by config.
func buildSimulation(config *simconfig.Config, logger *slog.Logger) (*simulation, error) {
	sim := &simulation{
		captures: closepool.New(),
		scenario: netsim.NewScenario(logger),
		stacks:   make(map[string]*netsim.Stack),
	}

	sim.scenario.Router().MTU = config.Router.MTU
	for idx := range config.Router.Censors {
		filter, err := newCensor(&config.Router.Censors[idx])
		if err != nil {
			sim.Close()
			return nil, fmt.Errorf("router.censors[%d]: %w", idx, err)
		}
		sim.scenario.Router().AddFilter(filter)
	}

	for idx := range config.Hosts {
		if err := sim.addHost(&config.Hosts[idx], logger); err != nil {
			sim.Close()
			return nil, fmt.Errorf("hosts[%d]: %w", idx, err)
		}
	}
	return sim, nil
}

// addHost creates the stack of a host and attaches it to the router.
func (sim *simulation) addHost(hc *simconfig.HostConfig, logger *slog.Logger) error {
	config := &netsim.StackConfig{
		Addresses:       hc.Addresses,
		ClientResolvers: hc.Resolvers,
		DomainNames:     hc.DomainNames,
		UDPHandlers:     make(map[uint16]netsim.UDPHandler),
	}
	if hc.DNSServer {
		config.DNSOverUDPHandler = sim.scenario.DNSHandler()
	}
	for _, port := range hc.EchoPorts {
		config.UDPHandlers[port] = netsim.EchoHandler
	}
	stack := sim.scenario.MustNewStack(config)
	sim.stacks[hc.Name] = stack

	lc := hc.Link
	if lc == nil {
		sim.scenario.Attach(stack)
		return nil
	}

	var dev netsim.NetworkDevice = stack
	if lc.Delay > 0 {
		dev = geolink.Extend(dev, &geolink.Config{Delay: lc.Delay, Logger: logger})
	}
	if lc.DataRate == "" && lc.ErrorRate <= 0 && lc.Capture == "" {
		sim.scenario.Attach(dev)
		return nil
	}

	linkConfig, err := sim.newLinkConfig(lc)
	if err != nil {
		return err
	}
	sim.scenario.AttachLink(dev, linkConfig)
	return nil
}

// newLinkConfig creates the [*netsim.LinkConfig] of a host link.
func (sim *simulation) newLinkConfig(lc *simconfig.LinkConfig) (*netsim.LinkConfig, error) {
	config := &netsim.LinkConfig{}
	if lc.DataRate != "" {
		rate, err := errormodel.ParseDataRate(lc.DataRate)
		if err != nil {
			return nil, err
		}
		config.DataRate = rate
	}
	if lc.ErrorRate > 0 {
		unit, err := errormodel.ParseUnit(lc.ErrorUnit)
		if err != nil {
			return nil, err
		}
		config.ErrorModel = errormodel.NewRateErrorModel(unit, lc.ErrorRate, lc.Seed)
	}
	if lc.Capture != "" {
		capture, err := pcapwriter.Create(lc.Capture, pcapwriter.LinkTypeRaw)
		if err != nil {
			return nil, err
		}
		sim.captures.Add(capture)
		config.Capture = capture
	}
	return config, nil
}

// newCensor creates the router filter described by config.
func newCensor(config *simconfig.CensorConfig) (netdev.Filter, error) {
	switch config.Type {
	case simconfig.CensorDNSPoison:
		db := dns.NewDatabase()
		db.AddAddresses(config.Names, config.Addresses)
		return censor.NewDNSPoisoner(db), nil

	case simconfig.CensorBlackhole:
		var target netip.AddrPort
		if config.Target != "" {
			addr, err := netip.ParseAddrPort(config.Target)
			if err != nil {
				return nil, err
			}
			target = addr
		}
		var pattern []byte
		if config.Pattern != "" {
			pattern = []byte(config.Pattern)
		}
		return censor.NewBlackholer(config.Duration, target, pattern), nil

	case simconfig.CensorDNAT:
		source, err := netip.ParseAddr(config.Source)
		if err != nil {
			return nil, err
		}
		target, err := netip.ParseAddrPort(config.Target)
		if err != nil {
			return nil, err
		}
		repl, err := netip.ParseAddrPort(config.Replacement)
		if err != nil {
			return nil, err
		}
		return censor.NewDNatter(source, target, repl), nil

	default:
		return nil, fmt.Errorf("unknown censor type %q", config.Type)
	}
}
