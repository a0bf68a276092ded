// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/kernmod/bpfloader/pkg/kernel"
	"github.com/kernmod/bpfloader/pkg/registry"
)

// Load runs the remaining pipeline stages (spec.md §2 steps 8-10) over
// an already-open Object: map creation, relocation, then program
// submission. Load is not idempotent; calling it twice on an already
// loaded Object is a programming error the caller must avoid.
func (o *Object) Load(k kernel.Bpf) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unloadK = k

	if err := o.createMaps(k); err != nil {
		return err
	}
	if err := o.relocateAll(); err != nil {
		return err
	}
	return o.loadAll(k)
}

// Unload closes every Map and Program-instance descriptor owned by
// the Object, setting each slot to -1. It is idempotent: repeated
// calls never double-close a descriptor (spec.md §5).
func (o *Object) Unload(k kernel.Bpf) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unloadLocked(k)
}

func (o *Object) unloadLocked(k kernel.Bpf) error {
	var errs error

	for _, m := range o.Maps {
		if m.fd < 0 {
			continue
		}
		if err := k.Close(int(m.fd)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close map %q: %w", m.Name, err))
		}
		m.fd = -1
	}

	for _, p := range o.Programs {
		if p.instances.NR <= 0 {
			continue
		}
		for i, fd := range p.instances.FDs {
			if fd < 0 {
				continue
			}
			if err := k.Close(int(fd)); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("close program %q instance %d: %w", p.name, i, err))
			}
			p.instances.FDs[i] = -1
		}
	}

	if o.btf != nil && o.btf.Descriptor() != 0 {
		if err := k.Close(o.btf.Descriptor()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close btf: %w", err))
		}
		o.btf.SetDescriptor(0)
	}

	o.loaded = false
	return errs
}

// Close performs unload, then releases the Object's remaining
// allocations and removes it from the process-wide registry. Close is
// idempotent.
func (o *Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs error
	if o.unloadK != nil {
		errs = multierr.Append(errs, o.unloadLocked(o.unloadK))
	}

	if o.releaseUserData != nil && o.userData != nil {
		o.releaseUserData(o.userData)
		o.releaseUserData = nil
		o.userData = nil
	}
	for _, m := range o.Maps {
		if m.releaseUserData != nil && m.UserData != nil {
			m.releaseUserData(m.UserData)
			m.releaseUserData = nil
			m.UserData = nil
		}
	}

	if o.closeFile != nil {
		errs = multierr.Append(errs, o.closeFile.Close())
		o.closeFile = nil
	}

	registry.Unregister(o)
	return errs
}

// SetUserData attaches an opaque user pointer with a release callback
// invoked from Close.
func (o *Object) SetUserData(data interface{}, release func(interface{})) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.userData = data
	o.releaseUserData = release
}
