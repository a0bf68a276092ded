// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"debug/elf"
	"fmt"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	pkgelf "github.com/kernmod/bpfloader/pkg/elf"
	"github.com/kernmod/bpfloader/pkg/kernel"
)

// buildPrograms implements spec.md §4.3's table builder: one Program
// per executable PROGBITS section discovered by the classifier.
func (o *Object) buildPrograms(ef *pkgelf.File) error {
	for _, sec := range ef.Programs {
		p, err := insnProgramFrom(sec.Data, ef.ByteOrder, o.origin, sec.Name)
		if err != nil {
			return err
		}
		o.Programs = append(o.Programs, &Program{
			sectionIndex: sec.Index,
			sectionName:  sec.Name,
			insns:        p,
			Type:         kernel.ProgTypeKprobe,
			instances:    uninitInstances(),
		})
	}
	return nil
}

// resolveNames implements spec.md §4.3's second pass: attach a
// canonical name to every Program, either the first global symbol
// pointing at its section or, for .text, the literal ".text".
func (o *Object) resolveNames(ef *pkgelf.File) error {
	for _, p := range o.Programs {
		name, err := findGlobalSymbolName(ef.Symbols, p.sectionIndex)
		if err == nil {
			p.name = name
			continue
		}
		if p.sectionName == ".text" {
			p.name = ".text"
			continue
		}
		return bpferr.New(bpferr.Format, o.origin, fmt.Errorf("no global symbol names section %q", p.sectionName)).WithSection(p.sectionName)
	}
	return nil
}

func findGlobalSymbolName(syms []elf.Symbol, sectionIndex int) (string, error) {
	for _, sym := range syms {
		if int(sym.Section) != sectionIndex {
			continue
		}
		if elf.ST_BIND(sym.Info) != elf.STB_GLOBAL {
			continue
		}
		return sym.Name, nil
	}
	return "", fmt.Errorf("no global symbol found")
}
