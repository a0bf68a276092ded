// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package registry keeps the process-wide list of live Objects that
// spec.md §4/§9 describes: every Object is linked in when opened and
// unlinked when closed, guarded by a single lock since the registry
// itself carries no per-Object synchronization.
package registry

import "github.com/kernmod/bpfloader/pkg/lock"

// Entry is the minimal surface the registry needs from an Object: a
// stable identity and an origin string for iteration/diagnostics.
type Entry interface {
	Origin() string
}

var (
	mu      lock.Mutex
	objects []Entry
)

// Register links obj into the process-wide list.
func Register(obj Entry) {
	mu.Lock()
	defer mu.Unlock()
	objects = append(objects, obj)
}

// Unregister removes obj from the process-wide list. It is a no-op if
// obj was never registered or was already removed.
func Unregister(obj Entry) {
	mu.Lock()
	defer mu.Unlock()
	for i, e := range objects {
		if e == obj {
			objects = append(objects[:i], objects[i+1:]...)
			return
		}
	}
}

// ForEach calls fn for every currently live Object. fn must not call
// back into Register/Unregister.
func ForEach(fn func(Entry)) {
	mu.Lock()
	snapshot := make([]Entry, len(objects))
	copy(snapshot, objects)
	mu.Unlock()

	for _, e := range snapshot {
		fn(e)
	}
}

// Len returns the number of currently live Objects.
func Len() int {
	mu.Lock()
	defer mu.Unlock()
	return len(objects)
}
