// SPDX-License-Identifier: GPL-3.0-or-later

package buffer

// CalculateIPChecksum returns the RFC 1071 internet checksum of the
// next size bytes, read as network-order 16-bit words. An odd trailing
// byte is padded with a zero low byte. The cursor does not move.
//
// Store the result using [*Iterator.WriteHtonU16].
func (i *Iterator) CalculateIPChecksum(size uint16) uint16 {
	return i.CalculateIPChecksumWithInitial(size, 0)
}

// CalculateIPChecksumWithInitial is like [*Iterator.CalculateIPChecksum]
// but starts from an initial partial sum, which allows including a
// pseudo-header computed separately.
func (i *Iterator) CalculateIPChecksumWithInitial(size uint16, initial uint32) uint16 {
	saved := i.current
	defer func() { i.current = saved }()

	sum := uint64(initial)
	remaining := size
	for remaining >= 2 {
		sum += uint64(i.ReadNtohU16())
		remaining -= 2
	}
	if remaining == 1 {
		sum += uint64(i.ReadU8()) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
