// SPDX-License-Identifier: GPL-3.0-or-later

package netstack

import (
	"sync"
	"time"
)

// deadline is a resettable timeout signaled by closing a channel.
//
// The zero value is not ready to use; construct using [newDeadline].
type deadline struct {
	// mu protects the fields below.
	mu sync.Mutex

	// expired is closed when the deadline expires.
	expired chan struct{}

	// expire closes expired at most once.
	expire func()

	// timer is the pending timer, if any.
	timer *time.Timer
}

// newDeadline creates a [*deadline] that never expires.
func newDeadline() *deadline {
	d := &deadline{}
	d.renewLocked()
	return d
}

// renewLocked replaces the expired channel with a fresh one.
func (d *deadline) renewLocked() {
	ch := make(chan struct{})
	d.expired = ch
	d.expire = sync.OnceFunc(func() { close(ch) })
}

// Set changes the expiration time. The zero time disables the deadline
// and a time in the past expires it immediately. Setting a time in the
// future after the deadline expired rearms it.
func (d *deadline) Set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A timer we fail to stop is firing, so its channel is gone for good.
	stale := d.timer != nil && !d.timer.Stop()
	d.timer = nil
	if stale || isClosedChan(d.expired) {
		d.renewLocked()
	}

	if t.IsZero() {
		return
	}
	delay := time.Until(t)
	if delay <= 0 {
		d.expire()
		return
	}
	d.timer = time.AfterFunc(delay, d.expire)
}

// Wait returns a channel closed when the deadline expires.
func (d *deadline) Wait() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expired
}

func isClosedChan(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
