//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UDP Conn/PacketConn.
//

package netstack

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/rbmk-project/common/errclass"
)

// UDPConn is a UDP connection.
//
// The zero value is invalid; construct using [NewUDPConn].
type UDPConn struct {
	ctx    context.Context // only used for logging
	laddr  string
	logger *slog.Logger // may be nil
	p      *Port
	raddr  string
}

// NewUDPConn creates a new UDP connection. The logger is OPTIONAL and,
// when set, receives the readDone and writeDone events.
func NewUDPConn(ctx context.Context, p *Port, logger *slog.Logger) *UDPConn {
	return &UDPConn{
		ctx:    ctx,
		laddr:  p.LocalAddr().String(),
		logger: logger,
		p:      p,
		raddr:  p.RemoteAddr().String(),
	}
}

// newUDPConn creates a [*UDPConn] using the stack logger.
func (ns *Stack) newUDPConn(ctx context.Context, p *Port) *UDPConn {
	return NewUDPConn(context.WithoutCancel(ctx), p, ns.logger.Load())
}

// Ensure [*UDPConn] implements [net.PacketConn].
var _ net.PacketConn = &UDPConn{}

// Close implements [net.PacketConn].
func (c *UDPConn) Close() error {
	return c.p.Close()
}

// LocalAddr implements [net.PacketConn].
func (c *UDPConn) LocalAddr() net.Addr {
	return c.p.LocalAddr()
}

// ReadFrom implements [net.PacketConn].
func (c *UDPConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	t0 := time.Now()
	count, addr, err := c.p.ReadFrom(buf)
	c.emit("readDone", t0, count, addr, err)
	return count, addr, err
}

// SetDeadline implements [net.PacketConn].
func (c *UDPConn) SetDeadline(t time.Time) error {
	return c.p.SetDeadline(t)
}

// SetReadDeadline implements [net.PacketConn].
func (c *UDPConn) SetReadDeadline(t time.Time) error {
	return c.p.SetReadDeadline(t)
}

// SetWriteDeadline implements net.PacketConn.
func (c *UDPConn) SetWriteDeadline(t time.Time) error {
	return c.p.SetWriteDeadline(t)
}

// WriteTo implements net.PacketConn.
func (c *UDPConn) WriteTo(pkt []byte, addr net.Addr) (int, error) {
	t0 := time.Now()
	count, err := c.p.WriteTo(pkt, addr)
	c.emit("writeDone", t0, count, addr, err)
	return count, err
}

// Ensure [*UDPConn] implements [net.Conn].
var _ net.Conn = &UDPConn{}

// Read implements [net.Conn].
func (c *UDPConn) Read(buf []byte) (int, error) {
	count, _, err := c.ReadFrom(buf)
	return count, err
}

// RemoteAddr implements [net.Conn].
func (c *UDPConn) RemoteAddr() net.Addr {
	return c.p.RemoteAddr()
}

// Write implements [net.Conn].
func (c *UDPConn) Write(data []byte) (int, error) {
	t0 := time.Now()
	count, err := c.p.Write(data)
	c.emit("writeDone", t0, count, nil, err)
	return count, err
}

// emit emits a structured I/O event if we have a logger.
func (c *UDPConn) emit(msg string, t0 time.Time, count int, peer net.Addr, err error) {
	if c.logger == nil {
		return
	}
	raddr := c.raddr
	if peer != nil {
		raddr = peer.String()
	}
	c.logger.InfoContext(
		c.ctx,
		msg,
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", "udp"),
		slog.String("remoteAddr", raddr),
		slog.Time("t0", t0),
		slog.Time("t", time.Now()),
	)
}
