// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"github.com/kernmod/bpfloader/pkg/kernel"
	"github.com/kernmod/bpfloader/pkg/pin"
)

// Pin implements spec.md §6's object-level pin: creates path/ (0700),
// then path/<map_name> for every map and path/<section_name>/<index>
// for every program instance. The parent of path must already sit on
// the bpf filesystem.
func (o *Object) Pin(k kernel.Bpf, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	layout, err := pin.EnsureRoot(path)
	if err != nil {
		return err
	}

	for _, m := range o.Maps {
		if m.fd < 0 {
			continue
		}
		if err := k.Pin(int(m.fd), layout.MapPath(m.Name)); err != nil {
			return fmt.Errorf("pin map %q: %w", m.Name, err)
		}
	}

	for _, p := range o.Programs {
		if p.instances.NR <= 0 {
			continue
		}
		if err := layout.EnsureProgramDir(p.sectionName); err != nil {
			return err
		}
		for i, fd := range p.instances.FDs {
			if fd < 0 {
				continue
			}
			if err := k.Pin(int(fd), layout.ProgramPath(p.sectionName, i)); err != nil {
				return fmt.Errorf("pin program %q instance %d: %w", p.name, i, err)
			}
		}
	}

	return nil
}
