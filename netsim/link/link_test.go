// SPDX-License-Identifier: GPL-3.0-or-later

package link_test

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/neilotoole/slogt"
	"github.com/rbmk-project/pktbuf/errormodel"
	"github.com/rbmk-project/pktbuf/netsim/link"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/rbmk-project/pktbuf/pcapwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	leftAddr  = netip.MustParseAddrPort("10.0.0.1:49152")
	rightAddr = netip.MustParseAddrPort("10.0.0.2:7")
)

func newPacket(size int) *packet.Packet {
	payload := packet.NewFromBytes(bytes.Repeat([]byte{0x33}, size))
	return netdev.NewDatagram(leftAddr, rightAddr, payload).Encapsulate()
}

// receive returns the next packet from dev or nil on timeout.
func receive(dev netdev.NetworkDevice, timeout time.Duration) *packet.Packet {
	select {
	case pkt := <-dev.Output():
		return pkt
	case <-time.After(timeout):
		return nil
	}
}

// newLink returns the outer sides of two devices connected by a link.
func newLink(t *testing.T, config *link.Config) (netdev.NetworkDevice, netdev.NetworkDevice) {
	leftOuter, leftInner := netdev.Pair(leftAddr.Addr())
	rightOuter, rightInner := netdev.Pair(rightAddr.Addr())
	lnk := link.New(leftInner, rightInner, config)
	t.Cleanup(func() { lnk.Close() })
	return leftOuter, rightOuter
}

func TestLinkForwardsBothWays(t *testing.T) {
	left, right := newLink(t, nil)

	pkt := newPacket(100)
	uid := pkt.UID()
	left.Input() <- pkt
	got := receive(right, time.Second)
	require.NotNil(t, got)
	assert.Equal(t, uid, got.UID())

	right.Input() <- newPacket(10)
	require.NotNil(t, receive(left, time.Second))
}

func TestLinkDataRate(t *testing.T) {
	rate := errormodel.DataRate(80_000) // 10 kB/s
	left, right := newLink(t, &link.Config{DataRate: rate, Logger: slogt.New(t)})

	// two 500-byte packets need about 100 ms to cross the link
	t0 := time.Now()
	left.Input() <- newPacket(472)
	left.Input() <- newPacket(472)
	require.NotNil(t, receive(right, time.Second))
	require.NotNil(t, receive(right, time.Second))
	assert.GreaterOrEqual(t, time.Since(t0), 2*rate.CalculateTxTime(500))
}

func TestLinkErrorModelAndCapture(t *testing.T) {
	capture := &bytes.Buffer{}
	writer, err := pcapwriter.New(capture, pcapwriter.LinkTypeRaw, 64)
	require.NoError(t, err)

	em := errormodel.NewReceiveListErrorModel(1)
	left, right := newLink(t, &link.Config{
		Capture:    writer,
		ErrorModel: em,
		Logger:     slogt.New(t),
	})

	first, second, third := newPacket(10), newPacket(20), newPacket(30)
	firstUID, thirdUID := first.UID(), third.UID()
	for _, pkt := range []*packet.Packet{first, second, third} {
		left.Input() <- pkt
	}
	got := receive(right, time.Second)
	require.NotNil(t, got)
	assert.Equal(t, firstUID, got.UID())
	got = receive(right, time.Second)
	require.NotNil(t, got)
	assert.Equal(t, thirdUID, got.UID())
	assert.Nil(t, receive(right, 50*time.Millisecond))

	// the capture contains the dropped packet as well
	reader, err := pcapgo.NewReader(bytes.NewReader(capture.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, pcapwriter.LinkTypeRaw, reader.LinkType())
	var sizes []int
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			break
		}
		assert.Len(t, data, ci.CaptureLength)
		sizes = append(sizes, ci.Length)
	}
	assert.Equal(t, []int{38, 48, 58}, sizes)
}

func TestExtend(t *testing.T) {
	stackSide, inner := netdev.Pair(leftAddr.Addr())
	outer, lnk := link.Extend(inner, nil)
	defer lnk.Close()
	assert.Equal(t, []netip.Addr{leftAddr.Addr()}, outer.Addresses())

	// from the device to the outside
	stackSide.Input() <- newPacket(1)
	require.NotNil(t, receive(outer, time.Second))

	// from the outside to the device
	outer.Input() <- newPacket(1)
	require.NotNil(t, receive(stackSide, time.Second))
}

func TestClose(t *testing.T) {
	leftOuter, leftInner := netdev.Pair(leftAddr.Addr())
	_, rightInner := netdev.Pair(rightAddr.Addr())
	lnk := link.New(leftInner, rightInner, &link.Config{DataRate: errormodel.DataRate(8)})

	// the packet takes seconds to cross the link, so Close interrupts it
	leftOuter.Input() <- newPacket(1)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, lnk.Close())
	require.NoError(t, lnk.Close())
}
