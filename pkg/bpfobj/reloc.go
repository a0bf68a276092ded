// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	pkgelf "github.com/kernmod/bpfloader/pkg/elf"
	"github.com/kernmod/bpfloader/pkg/insn"
)

// relocEntry is one decoded relocation, regardless of whether the
// object is 32- or 64-bit ELF (bytecode objects are typically
// ELFCLASS64, but the wire layout of Elf32_Rel is honored too).
type relocEntry struct {
	Offset  uint64
	SymIdx  uint32
}

// decodeRelocs splits a SHT_REL section's raw bytes into relocEntry
// values, following the object's ELF class to pick Elf32_Rel (8-byte
// entries: offset, info) or Elf64_Rel (16-byte entries: offset, info
// with the symbol index in the high 32 bits).
func decodeRelocs(data []byte, byteOrder binary.ByteOrder, class elf.Class) []relocEntry {
	var out []relocEntry
	switch class {
	case elf.ELFCLASS64:
		const sz = 16
		for i := 0; i+sz <= len(data); i += sz {
			off := byteOrder.Uint64(data[i : i+8])
			info := byteOrder.Uint64(data[i+8 : i+16])
			out = append(out, relocEntry{Offset: off, SymIdx: uint32(info >> 32)})
		}
	default:
		const sz = 8
		for i := 0; i+sz <= len(data); i += sz {
			off := byteOrder.Uint32(data[i : i+4])
			info := byteOrder.Uint32(data[i+4 : i+8])
			out = append(out, relocEntry{Offset: uint64(off), SymIdx: info >> 8})
		}
	}
	return out
}

// collectRelocations implements spec.md §4.4: translates each
// relocation section's entries into tagged RelocDesc entries on the
// Program they target.
func (o *Object) collectRelocations(ef *pkgelf.File) error {
	for _, rs := range ef.Relocs {
		prog := o.programBySection(rs.Target)
		if prog == nil {
			return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation section %q targets unknown program section %d", rs.Name, rs.Target)).WithSection(rs.Name)
		}

		entries := decodeRelocs(rs.Data, ef.ByteOrder, ef.Handle.Class)

		for i, r := range entries {
			symIdx := int(r.SymIdx)
			if symIdx < 0 || symIdx >= len(ef.Symbols) {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation %d references unknown symbol index %d", i, symIdx)).WithSection(rs.Name).WithIndex(i)
			}
			sym := ef.Symbols[symIdx]

			if int(sym.Section) != ef.MapsShndx && int(sym.Section) != ef.TextShndx {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation %d references section %d, neither maps nor .text", i, sym.Section)).WithSection(rs.Name).WithIndex(i)
			}

			insnIdx := int(r.Offset) / insn.Size
			if insnIdx < 0 || insnIdx >= prog.insns.Len() {
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation %d targets out-of-range instruction %d", i, insnIdx)).WithSection(rs.Name).WithIndex(i)
			}

			switch {
			case prog.insns.IsCallOpcode(insnIdx):
				if !prog.insns.IsPseudoCall(insnIdx) {
					return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation %d: CALL without pseudo-call source tag", i)).WithSection(rs.Name).WithIndex(i)
				}
				prog.relocs = append(prog.relocs, relocDesc{kind: relocCall, insnIdx: insnIdx, textOff: sym.Value})
				o.hasPseudoCalls = true

			case prog.insns.IsWideLoad(insnIdx):
				m := o.mapByOffset(sym.Value)
				if m == nil {
					return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation %d: no map at offset %d", i, sym.Value)).WithSection(rs.Name).WithIndex(i)
				}
				mapIdx := o.mapIndexOf(m)
				prog.relocs = append(prog.relocs, relocDesc{kind: relocLD64, insnIdx: insnIdx, mapIdx: mapIdx})

			default:
				return bpferr.New(bpferr.Reloc, o.origin, fmt.Errorf("relocation %d: unsupported opcode at instruction %d", i, insnIdx)).WithSection(rs.Name).WithIndex(i)
			}
		}
	}
	return nil
}

func (o *Object) mapIndexOf(m *Map) int {
	for i, x := range o.Maps {
		if x == m {
			return i
		}
	}
	return -1
}
