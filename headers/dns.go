// SPDX-License-Identifier: GPL-3.0-or-later

package headers

import (
	"fmt"
	"io"

	"github.com/miekg/dns"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/rbmk-project/pktbuf/typeid"
)

// DNS is a header containing a DNS message. Because DNS messages do not
// carry their own length when sent over UDP, Deserialize consumes all
// the bytes until the end of the packet.
type DNS struct {
	// Msg is the DNS message.
	Msg *dns.Msg

	// Err is set by Deserialize when the bytes are not a DNS message.
	Err error

	// raw caches the packed message.
	raw []byte
}

var _ packet.Header = &DNS{}

// NewDNS returns a [*DNS] header containing msg.
func NewDNS(msg *dns.Msg) *DNS {
	return &DNS{Msg: msg}
}

// TypeID implements [packet.Header].
func (h *DNS) TypeID() typeid.TypeID {
	return DNSTypeID
}

// pack packs the message once, so that SerializedSize and Serialize agree.
func (h *DNS) pack() []byte {
	if h.raw == nil {
		runtimex.Assert(h.Msg != nil, "headers: DNS header without a message")
		h.raw = runtimex.Try1(h.Msg.Pack())
	}
	return h.raw
}

// SerializedSize implements [packet.Header].
func (h *DNS) SerializedSize() uint32 {
	return uint32(len(h.pack()))
}

// Serialize implements [packet.Header].
func (h *DNS) Serialize(start buffer.Iterator) {
	start.Write(h.pack())
}

// Deserialize implements [packet.Header].
func (h *DNS) Deserialize(start buffer.Iterator) uint32 {
	raw := make([]byte, start.Size())
	start.Read(raw)
	h.raw = nil
	h.Msg = &dns.Msg{}
	if h.Err = h.Msg.Unpack(raw); h.Err != nil {
		h.Msg = nil
	}
	return uint32(len(raw))
}

// Print implements [packet.Header].
func (h *DNS) Print(w io.Writer) {
	switch {
	case h.Msg == nil:
		fmt.Fprintf(w, "invalid: %v", h.Err)

	case len(h.Msg.Question) > 0:
		q := h.Msg.Question[0]
		fmt.Fprintf(w, "id %d %s %s %s answers %d", h.Msg.Id, opcodeOrResponse(h.Msg),
			q.Name, dns.TypeToString[q.Qtype], len(h.Msg.Answer))

	default:
		fmt.Fprintf(w, "id %d %s", h.Msg.Id, opcodeOrResponse(h.Msg))
	}
}

// opcodeOrResponse describes whether msg is a query or a response.
func opcodeOrResponse(msg *dns.Msg) string {
	if msg.Response {
		return "response " + dns.RcodeToString[msg.Rcode]
	}
	return "query"
}
