// SPDX-License-Identifier: GPL-3.0-or-later

// Package link models a point-to-point network link.
package link

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbmk-project/pktbuf/errormodel"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/rbmk-project/pktbuf/pcapwriter"
)

// Config configures a [*Link].
type Config struct {
	// Capture is the OPTIONAL writer receiving the packets that
	// enter the link, including the ones the error model drops.
	Capture *pcapwriter.Writer

	// DataRate is the OPTIONAL link data rate. Packets take the time to
	// transmit their bytes to cross the link. If zero, the link is
	// infinitely fast.
	DataRate errormodel.DataRate

	// ErrorModel is the OPTIONAL model deciding which packets are
	// corrupted and therefore dropped.
	ErrorModel errormodel.ErrorModel

	// Logger is the OPTIONAL logger.
	Logger *slog.Logger
}

// Link models a link between two [netdev.NetworkDevice].
//
// The zero value is not ready to use; construct using [New] or [Extend].
type Link struct {
	// config is the link configuration.
	config *Config

	// eof unblocks any blocking channel operation.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once
}

// New creates a new [*Link] between two devices and starts moving
// packets between them. Use Close to shut down background goroutines.
func New(left, right netdev.NetworkDevice, config *Config) *Link {
	lnk := newLink(config)
	go lnk.move(left, right)
	go lnk.move(right, left)
	return lnk
}

// Extend creates a link between the given device and the returned
// device, which has the same addresses. Attach the returned device
// to a router to make the traffic of dev cross the link.
func Extend(dev netdev.NetworkDevice, config *Config) (netdev.NetworkDevice, *Link) {
	outer, inner := netdev.Pair(dev.Addresses()...)
	return outer, New(dev, inner, config)
}

func newLink(config *Config) *Link {
	if config == nil {
		config = &Config{}
	}
	return &Link{
		config:  config,
		eof:     make(chan struct{}),
		eofOnce: sync.Once{},
	}
}

// Close stops background goroutines moving traffic.
func (lnk *Link) Close() error {
	lnk.eofOnce.Do(func() { close(lnk.eof) })
	return nil
}

type readableDevice interface {
	EOF() <-chan struct{}
	Output() <-chan *packet.Packet
}

type writableDevice interface {
	EOF() <-chan struct{}
	Input() chan<- *packet.Packet
}

// move moves packets from the left device to the right device.
func (lnk *Link) move(left readableDevice, right writableDevice) {
	for {
		// Read from left device.
		select {
		case <-lnk.eof:
			return
		case <-left.EOF():
			return
		case pkt := <-left.Output():
			if !lnk.transmit(pkt, left, right) {
				return
			}
		}
	}
}

// transmit waits for the transmission time of pkt and delivers it
// unless the error model corrupts it. It returns false on EOF.
func (lnk *Link) transmit(pkt *packet.Packet, left readableDevice, right writableDevice) bool {
	if lnk.config.Capture != nil {
		if err := lnk.config.Capture.WritePacket(time.Now(), pkt); err != nil {
			lnk.log(slog.LevelWarn, "captureFailed", pkt, slog.Any("err", err))
		}
	}

	if txTime := lnk.config.DataRate.CalculateTxTime(pkt.Size()); txTime > 0 {
		timer := time.NewTimer(txTime)
		select {
		case <-timer.C:
		case <-lnk.eof:
			timer.Stop()
			return false
		case <-left.EOF():
			timer.Stop()
			return false
		}
	}

	if em := lnk.config.ErrorModel; em != nil && em.IsCorrupt(pkt) {
		lnk.log(slog.LevelInfo, "dropCorrupted", pkt)
		return true
	}

	// Write to right device.
	lnk.log(slog.LevelDebug, "inflight", pkt)
	select {
	case <-lnk.eof:
		return false
	case <-right.EOF():
		return false
	case right.Input() <- pkt:
		return true
	}
}

// log emits a structured log about pkt when logging is enabled.
func (lnk *Link) log(level slog.Level, msg string, pkt *packet.Packet, attrs ...slog.Attr) {
	if lnk.config.Logger == nil {
		return
	}
	attrs = append(attrs,
		slog.Uint64("uid", pkt.UID()),
		slog.Uint64("size", uint64(pkt.Size())),
		slog.String("dataRate", lnk.config.DataRate.String()),
	)
	lnk.config.Logger.LogAttrs(context.Background(), level, msg, attrs...)
}
