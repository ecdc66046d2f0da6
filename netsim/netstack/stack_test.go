// SPDX-License-Identifier: GPL-3.0-or-later

package netstack_test

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/rbmk-project/dnscore/dnscoretest"
	"github.com/rbmk-project/pktbuf/netsim/dns"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/netsim/netstack"
	"github.com/rbmk-project/pktbuf/netsim/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientAddr = netip.MustParseAddr("193.206.158.22")
	serverAddr = netip.MustParseAddr("93.184.216.34")
)

// newTopology returns a client and a server stack connected by a router.
func newTopology(t *testing.T, mtu uint32) (client, server *netstack.Stack) {
	client = netstack.New(clientAddr)
	server = netstack.New(serverAddr)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	r := router.New()
	r.MTU = mtu
	for _, stack := range []*netstack.Stack{client, server} {
		r.Attach(stack)
		r.AddRoute(stack)
	}
	return
}

// startEcho starts a UDP echo server on the given stack and port.
func startEcho(t *testing.T, stack *netstack.Stack, port uint16) {
	conn, err := stack.ListenPacket(context.Background(), "udp", netip.AddrPortFrom(
		netip.IPv4Unspecified(), port).String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	go func() {
		buf := make([]byte, 1<<16)
		for {
			count, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			conn.WriteTo(buf[:count], addr)
		}
	}()
}

func TestStackEcho(t *testing.T) {
	tests := []struct {
		name string
		mtu  uint32
		size int
	}{
		{"small datagram", 0, 16},
		{"large datagram without MTU", 0, 4000},
		{"large datagram with fragmentation", 576, 4000},
		{"maximum payload with fragmentation", 1500, netdev.MaxPayloadSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTopology(t, tt.mtu)
			startEcho(t, server, 7)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			conn, err := client.DialContext(ctx, "udp", "93.184.216.34:7")
			require.NoError(t, err)
			defer conn.Close()
			require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

			data := bytes.Repeat([]byte{0x5a}, tt.size)
			count, err := conn.Write(data)
			require.NoError(t, err)
			assert.Equal(t, tt.size, count)

			buf := make([]byte, 1<<16)
			count, err = conn.Read(buf)
			require.NoError(t, err)
			assert.Equal(t, data, buf[:count])

			assert.Equal(t, "udp", conn.LocalAddr().Network())
			assert.Equal(t, "93.184.216.34:7", conn.RemoteAddr().String())
			assert.Equal(t, "193.206.158.22:49152", conn.LocalAddr().String())
		})
	}
}

func TestStackReplySourceAddress(t *testing.T) {
	secondAddr := netip.MustParseAddr("93.184.216.35")
	client := netstack.New(clientAddr)
	server := netstack.New(serverAddr, secondAddr)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	r := router.New()
	for _, stack := range []*netstack.Stack{client, server} {
		r.Attach(stack)
		r.AddRoute(stack)
	}
	startEcho(t, server, 7)

	tests := []struct {
		name   string
		target netip.AddrPort
	}{
		{"first address", netip.AddrPortFrom(serverAddr, 7)},
		{"second address", netip.AddrPortFrom(secondAddr, 7)},
	}
	for idx, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			local := netip.AddrPortFrom(clientAddr, uint16(5000+idx))
			conn, err := client.ListenPacket(ctx, "udp", local.String())
			require.NoError(t, err)
			defer conn.Close()
			require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

			_, err = conn.WriteTo([]byte("hello"), &netstack.Addr{AddrPort: tt.target})
			require.NoError(t, err)

			buf := make([]byte, 128)
			count, addr, err := conn.ReadFrom(buf)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(buf[:count]))
			assert.Equal(t, tt.target.String(), addr.String())
		})
	}
}

func TestStackDialDomain(t *testing.T) {
	client, server := newTopology(t, 0)
	startEcho(t, server, 7)

	database := dns.NewDatabase()
	database.AddAddresses([]string{"www.example.com"}, []string{serverAddr.String()})
	dnsd := &dnscoretest.Server{
		ListenPacket: func(network, address string) (net.PacketConn, error) {
			return server.ListenPacket(context.Background(), "udp", "0.0.0.0:53")
		},
	}
	<-dnsd.StartUDP(database)
	t.Cleanup(func() { dnsd.Close() })

	tests := []struct {
		name    string
		address string
		expect  string
		err     error
	}{
		{"existing domain", "www.example.com:7", "93.184.216.34:7", nil},
		{"nonexistent domain", "nonexistent.example.com:7", "", netstack.ErrNoAddresses},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.SetResolvers(netip.AddrPortFrom(serverAddr, 53))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			conn, err := client.DialContext(ctx, "udp", tt.address)
			if tt.err != nil {
				assert.Error(t, err)
				assert.Nil(t, conn)
				return
			}
			require.NoError(t, err)
			defer conn.Close()
			assert.Equal(t, tt.expect, conn.RemoteAddr().String())
		})
	}
}

func TestStackErrors(t *testing.T) {
	stack := netstack.New(clientAddr, netip.MustParseAddr("2001:760:0:158::22"))
	defer stack.Close()
	ctx := context.Background()

	t.Run("listen", func(t *testing.T) {
		tests := []struct {
			name    string
			network string
			address string
			err     error
		}{
			{"unsupported network", "tcp", "193.206.158.22:53", netstack.EPROTONOSUPPORT},
			{"invalid address", "udp", "193.206.158.22", netstack.EINVAL},
			{"non-local address", "udp", "8.8.8.8:53", netstack.EADDRNOTAVAIL},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				conn, err := stack.ListenPacket(ctx, tt.network, tt.address)
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, conn)
			})
		}
	})

	t.Run("address in use", func(t *testing.T) {
		conn, err := stack.ListenPacket(ctx, "udp", "193.206.158.22:53")
		require.NoError(t, err)
		defer conn.Close()
		_, err = stack.ListenPacket(ctx, "udp", "193.206.158.22:53")
		assert.ErrorIs(t, err, netstack.EADDRINUSE)
	})

	t.Run("dial", func(t *testing.T) {
		tests := []struct {
			name    string
			network string
			address string
			err     error
		}{
			{"unsupported network", "tcp", "8.8.8.8:53", netstack.EPROTONOSUPPORT},
			{"unspecified address", "udp", "0.0.0.0:53", netstack.EHOSTUNREACH},
			{"zero port", "udp", "8.8.8.8:0", netstack.EHOSTUNREACH},
			{"IPv6 address", "udp", "[2001:4860:4860::8888]:53", netstack.EHOSTUNREACH},
			{"domain without resolvers", "udp", "dns.google:53", netstack.ErrNoConfiguredResolvers},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				conn, err := stack.DialContext(ctx, tt.network, tt.address)
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, conn)
			})
		}
	})

	t.Run("write errors", func(t *testing.T) {
		pconn, err := stack.ListenPacket(ctx, "udp", "0.0.0.0:0")
		require.NoError(t, err)
		defer pconn.Close()

		_, err = pconn.(net.Conn).Write([]byte("x"))
		assert.ErrorIs(t, err, netstack.ENOTCONN)

		_, err = pconn.WriteTo([]byte("x"), nil)
		assert.ErrorIs(t, err, netstack.EINVAL)

		big := make([]byte, netdev.MaxPayloadSize+1)
		_, err = pconn.WriteTo(big, &net.UDPAddr{IP: net.IPv4(8, 8, 8, 8), Port: 53})
		assert.ErrorIs(t, err, netstack.EMSGSIZE)

		_, err = pconn.WriteTo([]byte("x"), &net.UDPAddr{IP: net.ParseIP("2001:4860:4860::8888"), Port: 53})
		assert.ErrorIs(t, err, netstack.EHOSTUNREACH)
	})
}

func TestPortDeadlineAndClose(t *testing.T) {
	stack := netstack.New(clientAddr)
	defer stack.Close()

	conn, err := stack.ListenPacket(context.Background(), "udp", "0.0.0.0:5353")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	_, _, err = conn.ReadFrom(make([]byte, 8))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	_, _, err = conn.ReadFrom(make([]byte, 8))
	assert.ErrorIs(t, err, net.ErrClosed)

	// the port can be reused after close
	conn, err = stack.ListenPacket(context.Background(), "udp", "0.0.0.0:5353")
	require.NoError(t, err)
	conn.Close()
}

func TestStackDevice(t *testing.T) {
	stack := netstack.New(clientAddr)
	assert.Equal(t, []netip.Addr{clientAddr}, stack.Addresses())
	select {
	case <-stack.EOF():
		t.Fatal("stack should not be closed")
	default:
	}
	require.NoError(t, stack.Close())
	<-stack.EOF()
}
