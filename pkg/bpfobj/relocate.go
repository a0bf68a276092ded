// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"github.com/kernmod/bpfloader/pkg/bpferr"
)

// relocateAll implements spec.md §4.6 over every Program with pending
// RelocDesc entries, in Program order.
func (o *Object) relocateAll() error {
	for _, p := range o.Programs {
		if err := o.relocateProgram(p); err != nil {
			return err
		}
	}
	return nil
}

// relocateProgram patches LD64 and CALL fixups on p, inlining the
// shared .text pool at most once per caller.
func (o *Object) relocateProgram(p *Program) error {
	for _, r := range p.relocs {
		switch r.kind {
		case relocLD64:
			if r.insnIdx >= p.insns.Len() {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("LD64 relocation targets out-of-range instruction %d", r.insnIdx)).WithSection(p.sectionName)
			}
			if r.mapIdx < 0 || r.mapIdx >= len(o.Maps) {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("LD64 relocation references unknown map index %d", r.mapIdx)).WithSection(p.sectionName)
			}
			p.insns.PatchMapFD(r.insnIdx, o.Maps[r.mapIdx].fd)

		case relocCall:
			if p.isText() {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("call relocation inside .text itself")).WithSection(p.sectionName)
			}
			if p.mainProgCnt == 0 {
				text := o.textProgram()
				if text == nil {
					return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("call relocation but object has no .text section")).WithSection(p.sectionName)
				}
				old := p.insns.Len()
				p.insns.Append(text.insns)
				p.mainProgCnt = old
			}
			if r.insnIdx >= p.mainProgCnt {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("call relocation targets out-of-range instruction %d", r.insnIdx)).WithSection(p.sectionName)
			}
			p.insns.PatchCallOffset(r.insnIdx, int32(p.mainProgCnt-r.insnIdx))
		}
	}
	p.relocs = nil
	return nil
}
