//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/netem/blob/main/linkfwdfull.go
//

// Package geolink models a geographic point-to-point link.
package geolink

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
)

// Config configures a geographic point-to-point link.
type Config struct {
	// Delay is the propagation delay.
	Delay time.Duration

	// Logger is the OPTIONAL logger for delivered packets.
	Logger *slog.Logger
}

// Extend creates a geographic link between the
// given device and the returned device.
//
// Internally, this creates the following link:
//
//	external <=> dev
//
// where:
//
// - dev is the device passed as argument
//
// - external is the device returned to the caller, which
// has the same addresses as dev
//
// Packets flowing through this chain experience
// the configured delay in both directions.
//
// We create two goroutines for forwarding packets,
// which are closed when dev is closed.
func Extend(dev netdev.NetworkDevice, config *Config) netdev.NetworkDevice {
	external, internal := netdev.Pair(dev.Addresses()...)
	go forward(dev, internal, config)
	go forward(internal, dev, config)
	return external
}

type sourceDevice interface {
	EOF() <-chan struct{}
	Output() <-chan *packet.Packet
}

type destDevice interface {
	EOF() <-chan struct{}
	Input() chan<- *packet.Packet
}

// inflight is a packet and the time when it reaches the destination.
type inflight struct {
	deadline time.Time
	pkt      *packet.Packet
}

// forward implements packet forwarding with propagation delay.
//
// Each packet reaches the destination Delay after it leaves the
// source, regardless of the other packets in flight, and packets
// are delivered in order. The timer is only armed when there are
// packets in flight.
func forward(src sourceDevice, dst destDevice, config *Config) {
	delay := max(time.Millisecond, config.Delay)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	var queue []inflight
	for {
		select {
		case pkt := <-src.Output():
			queue = append(queue, inflight{time.Now().Add(delay), pkt})
			if len(queue) == 1 {
				timer.Reset(delay)
			}

		case <-timer.C:
			head := queue[0]
			queue = queue[1:]
			if len(queue) > 0 {
				timer.Reset(max(0, time.Until(queue[0].deadline)))
			}

			if config.Logger != nil {
				config.Logger.Debug(
					"geolinkDeliver",
					slog.Uint64("uid", head.pkt.UID()),
					slog.Uint64("size", uint64(head.pkt.Size())),
					slog.Duration("delay", delay),
				)
			}

			select {
			case dst.Input() <- head.pkt:
				// delivered to destination
			case <-src.EOF():
				return
			case <-dst.EOF():
				return
			}

		case <-src.EOF():
			return
		case <-dst.EOF():
			return
		}
	}
}
