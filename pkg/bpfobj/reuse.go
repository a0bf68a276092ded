// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

// ReuseDescriptor implements spec.md §4.9: queries the kernel for
// existingFD's info, duplicates it into a close-on-exec slot, closes
// the Map's current descriptor if any, and copies the queried info's
// name/type/sizes/flags/BTF ids onto the Map. Once reused, the Map's
// descriptor is already populated and createMaps will skip it.
func (o *Object) ReuseDescriptor(k kernel.Bpf, mapName string, existingFD int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var m *Map
	for _, cand := range o.Maps {
		if cand.Name == mapName {
			m = cand
			break
		}
	}
	if m == nil {
		return fmt.Errorf("reuse descriptor: no map named %q", mapName)
	}

	info, err := k.ObjectInfoByFD(existingFD)
	if err != nil {
		return fmt.Errorf("reuse descriptor: object_info_by_fd(%d): %w", existingFD, err)
	}

	dup, err := k.DupCloexec(existingFD)
	if err != nil {
		return fmt.Errorf("reuse descriptor: %w", err)
	}

	if m.fd >= 0 {
		if err := k.Close(int(m.fd)); err != nil {
			_ = k.Close(dup)
			return fmt.Errorf("reuse descriptor: closing previous descriptor: %w", err)
		}
	}

	m.fd = int32(dup)
	m.Name = info.Name
	m.Def.Type = info.Type
	m.Def.KeySize = info.KeySize
	m.Def.ValueSize = info.ValueSize
	m.Def.MaxEntries = info.MaxEntries
	m.Def.Flags = info.Flags
	m.BTFKeyTypeID = info.BTFKeyType
	m.BTFValueTypeID = info.BTFValType
	return nil
}
