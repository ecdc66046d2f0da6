// SPDX-License-Identifier: GPL-3.0-or-later

// Package pcapwriter writes simulated packets to libpcap files.
package pcapwriter

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rbmk-project/pktbuf/packet"
)

// LinkType is the link type of the packets in a capture.
type LinkType = layers.LinkType

const (
	// LinkTypeEthernet means packets start with an Ethernet header.
	LinkTypeEthernet = layers.LinkTypeEthernet

	// LinkTypeRaw means packets start with an IP header.
	LinkTypeRaw = layers.LinkTypeRaw
)

// DefaultSnapLen is the snapshot length used by [Create].
const DefaultSnapLen = 65535

// Writer writes [*packet.Packet] to a pcap stream. It is safe to
// use from multiple goroutines.
//
// Construct using [New] or [Create].
type Writer struct {
	closer  io.Closer
	mu      sync.Mutex
	pw      *pcapgo.Writer
	snapLen uint32
}

// New writes the pcap file header to w and returns a [*Writer]
// appending packets to w. Close does not close w.
func New(w io.Writer, linkType LinkType, snapLen uint32) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, linkType); err != nil {
		return nil, fmt.Errorf("pcapwriter: cannot write file header: %w", err)
	}
	return &Writer{pw: pw, snapLen: snapLen}, nil
}

// Create creates the file at path and writes a pcap header to it.
func Create(path string, linkType LinkType) (*Writer, error) {
	filep, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := New(filep, linkType, DefaultSnapLen)
	if err != nil {
		filep.Close()
		return nil, err
	}
	w.closer = filep
	return w, nil
}

// WritePacket writes the bytes of pkt captured at the given time. Bytes
// beyond the snapshot length are not written.
func (w *Writer) WritePacket(t time.Time, pkt *packet.Packet) error {
	data := pkt.Bytes()
	info := gopacket.CaptureInfo{
		Timestamp:     t,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if uint32(len(data)) > w.snapLen {
		data = data[:w.snapLen]
		info.CaptureLength = len(data)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pw.WritePacket(info, data)
}

// Close closes the file opened by [Create].
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
