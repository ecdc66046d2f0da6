// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool allows pooling [io.Closer] instances
// and closing them in a single operation.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Pool allows pooling a set of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// New constructs a new [*Pool] instance.
func New() *Pool {
	return &Pool{}
}

// Add adds a given [io.Closer] to the pool.
func (p *Pool) Add(conn io.Closer) {
	p.mu.Lock()
	p.handles = append(p.handles, conn)
	p.mu.Unlock()
}

// CloserFunc adapts a func to [io.Closer].
type CloserFunc func() error

// Close implements [io.Closer].
func (fx CloserFunc) Close() error {
	return fx()
}

// AddFunc adds a given func to the pool, to be called on Close.
func (p *Pool) AddFunc(fx func() error) {
	p.Add(CloserFunc(fx))
}

// Len returns the number of [io.Closer] inside the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close closes all the [io.Closer] inside the pool iterating
// in backward order. Therefore, if one registers a network stack
// and then a server listening on the stack, the server is closed
// first. The returned error is the join of all the errors that
// occurred when closing.
func (p *Pool) Close() error {
	// Lock and copy the [io.Closer] to close.
	p.mu.Lock()
	conns := p.handles
	p.handles = nil
	p.mu.Unlock()

	// Close all the [io.Closer].
	var errv []error
	for _, conn := range slices.Backward(conns) {
		if err := conn.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
