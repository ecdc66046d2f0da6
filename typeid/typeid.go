// SPDX-License-Identifier: GPL-3.0-or-later

// Package typeid implements a registry of runtime type identifiers.
//
// Headers, trailers and tags register once under a unique name and
// use the returned [TypeID] to identify their dynamic type inside a
// packet. The registry also remembers how to construct a zero value
// of each type, which allows printing packets without knowing in
// advance which headers they contain.
package typeid

import (
	"fmt"
	"sync"

	"github.com/rbmk-project/common/runtimex"
)

// TypeID identifies a registered type. The zero value is invalid.
type TypeID uint32

// Constructor returns a new zero value of a registered type.
type Constructor func() any

// entry is a registered type.
type entry struct {
	name        string
	constructor Constructor
}

// registry is the process-wide type registry.
var registry = struct {
	mu      sync.RWMutex
	entries []entry
	byName  map[string]TypeID
}{
	byName: make(map[string]TypeID),
}

// Register registers a type with the given name and returns its [TypeID].
//
// Registering the same name again returns the same [TypeID]. In such a
// case, a non-nil constructor replaces a nil one; otherwise the first
// constructor wins. The constructor may be nil.
func Register(name string, constructor Constructor) TypeID {
	runtimex.Assert(name != "", "typeid: empty type name")
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if tid, found := registry.byName[name]; found {
		if e := &registry.entries[tid-1]; e.constructor == nil {
			e.constructor = constructor
		}
		return tid
	}
	registry.entries = append(registry.entries, entry{name: name, constructor: constructor})
	tid := TypeID(len(registry.entries))
	registry.byName[name] = tid
	return tid
}

// Lazy is like [Register] but returns a function that lazily
// registers the type on first use. This is convenient for package-level
// variables whose constructor refers back to the variable itself.
func Lazy(name string, constructor Constructor) func() TypeID {
	return sync.OnceValue(func() TypeID {
		return Register(name, constructor)
	})
}

// Lookup returns the [TypeID] registered with the given name.
func Lookup(name string) (TypeID, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	tid, found := registry.byName[name]
	return tid, found
}

// lookup returns the entry of a valid [TypeID].
func (tid TypeID) lookup() (entry, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	if tid == 0 || int(tid) > len(registry.entries) {
		return entry{}, false
	}
	return registry.entries[tid-1], true
}

// IsValid returns whether the [TypeID] has been registered.
func (tid TypeID) IsValid() bool {
	_, found := tid.lookup()
	return found
}

// Name returns the registered name or an empty string.
func (tid TypeID) Name() string {
	e, _ := tid.lookup()
	return e.name
}

// HasConstructor returns whether the type can be constructed with [TypeID.New].
func (tid TypeID) HasConstructor() bool {
	e, _ := tid.lookup()
	return e.constructor != nil
}

// New returns a new zero value of the registered type.
func (tid TypeID) New() (any, bool) {
	e, _ := tid.lookup()
	if e.constructor == nil {
		return nil, false
	}
	return e.constructor(), true
}

// String implements [fmt.Stringer].
func (tid TypeID) String() string {
	if name := tid.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("TypeID(%d)", uint32(tid))
}
