// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"log/slog"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/closepool"
	"github.com/rbmk-project/pktbuf/netsim/geolink"
	"github.com/rbmk-project/pktbuf/netsim/link"
	"github.com/rbmk-project/pktbuf/netsim/router"
)

// Scenario manages network simulation components using a star topology,
// where all stacks are connected through a central router.
//
// This means:
//
// 1. Each stack is connected only to the central router;
//
// 2. The router forwards packets between stacks.
type Scenario struct {
	// dnsd is the [*DNSDatabase].
	dnsd *dnsDatabase

	// logger is the OPTIONAL logger.
	logger *slog.Logger

	// pool tracks all that which needs to be closed.
	pool *closepool.Pool

	// router is the star-topology router.
	router *router.Router
}

// NewScenario creates a new network simulation scenario.
//
// The logger is OPTIONAL and, when not nil, is used by the
// router and by the stacks created through the scenario.
func NewScenario(logger *slog.Logger) *Scenario {
	r := router.New()
	r.Logger = logger
	return &Scenario{
		dnsd:   newDNSDatabase(),
		logger: logger,
		pool:   closepool.New(),
		router: r,
	}
}

// DNSHandler returns the [DNSHandler] for the scenario. The returned
// handler will serve queries based on the scenario's DNS database.
func (s *Scenario) DNSHandler() DNSHandler {
	return s.dnsd
}

// Router returns the scenario's central router, which you can
// use to install filters modeling censorship.
func (s *Scenario) Router() *router.Router {
	return s.router
}

// MustNewStack creates a new network stack using the given configuration.
//
// This method panics on error.
//
// This method IS NOT goroutine safe.
func (s *Scenario) MustNewStack(config *StackConfig) *Stack {
	runtimex.Try0(config.validate())
	stack := runtimex.Try1(s.newBaseStack(config))
	s.pool.Add(stack)
	runtimex.Try0(config.setupClientResolvers(stack))
	if len(config.DomainNames) > 0 {
		s.dnsd.AddAddresses(config.DomainNames, config.Addresses)
	}
	if config.DNSOverUDPHandler != nil {
		s.mustSetupDNSOverUDP(stack, config)
	}
	for port, handler := range config.UDPHandlers {
		s.mustSetupUDPHandler(stack, port, handler)
	}
	return stack
}

// Close releases all resources associated with the scenario.
func (s *Scenario) Close() error {
	return s.pool.Close()
}

// Attach connects a device to the scenario's central router.
//
// The common case is to attach a [*Stack] but other cases are also
// possible. Suppose a [*Stack] is linked to a firewall through a link,
// then you can also attach the firewall to the router.
//
// All network traffic to/from this device will flow through the router.
func (s *Scenario) Attach(dev NetworkDevice) {
	s.router.Attach(dev)
	s.router.AddRoute(dev)
}

// AttachLink connects a device to the central router through a [*Link]
// configured using the given config. The scenario closes the link.
func (s *Scenario) AttachLink(dev NetworkDevice, config *LinkConfig) *Link {
	if config != nil && config.Logger == nil {
		config.Logger = s.logger
	}
	outer, lnk := link.Extend(dev, config)
	s.pool.Add(lnk)
	s.Attach(outer)
	return lnk
}

// AttachGeolink connects a device to the central router through a
// link adding the configured propagation delay.
func (s *Scenario) AttachGeolink(dev NetworkDevice, config *geolink.Config) {
	if config.Logger == nil {
		config.Logger = s.logger
	}
	s.Attach(geolink.Extend(dev, config))
}
