// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbmk-project/common/runtimex"
)

// Settings configures the packet subsystem.
type Settings struct {
	// Checking enables checking that removed headers and trailers
	// match the ones that were added. Checking implies Printing.
	Checking bool

	// Printing enables recording which headers, trailers and payload
	// a packet contains, which is required by [*Packet.Print].
	Printing bool

	// Logger is the OPTIONAL logger for packet operations.
	Logger *slog.Logger
}

// tooLateMessage explains why settings cannot change anymore.
const tooLateMessage = "packet: attempting to change the packet settings " +
	"after creating packets; configure the packet subsystem at startup, " +
	"before any packet is created"

// config holds the process-wide [Settings].
var config struct {
	mu      sync.Mutex
	current atomic.Pointer[Settings]
	frozen  atomic.Bool
}

func init() {
	config.current.Store(&Settings{})
}

// Configure replaces the packet [Settings]. It panics if called after
// the first packet has been created.
func Configure(settings *Settings) {
	runtimex.Assert(settings != nil, "packet: nil settings")
	config.mu.Lock()
	defer config.mu.Unlock()
	runtimex.Assert(!config.frozen.Load(), tooLateMessage)
	value := *settings
	value.Printing = value.Printing || value.Checking
	config.current.Store(&value)
}

// update applies fx to a copy of the current settings and stores it.
func update(fx func(s *Settings)) {
	config.mu.Lock()
	defer config.mu.Unlock()
	runtimex.Assert(!config.frozen.Load(), tooLateMessage)
	value := *config.current.Load()
	fx(&value)
	config.current.Store(&value)
}

// EnablePrinting enables recording packet metadata. It panics if
// called after the first packet has been created.
func EnablePrinting() {
	update(func(s *Settings) {
		s.Printing = true
	})
}

// EnableMetadata is an alias for [EnablePrinting].
//
// Deprecated: use [EnablePrinting].
func EnableMetadata() {
	EnablePrinting()
}

// EnableChecking enables recording packet metadata and checking that
// headers and trailers are removed in the order they were added. It
// panics if called after the first packet has been created.
func EnableChecking() {
	update(func(s *Settings) {
		s.Checking = true
		s.Printing = true
	})
}

// settings returns the current settings and prevents further changes.
func settings() *Settings {
	if !config.frozen.Load() {
		config.mu.Lock()
		config.frozen.Store(true)
		config.mu.Unlock()
	}
	return config.current.Load()
}
