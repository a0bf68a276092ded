// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package elf parses a relocatable ELF object containing bytecode
// programs and map definitions, and classifies its sections into the
// categories the loader core needs: license, kernel-version,
// map-definitions, type-metadata, symbol-table, program-text, and
// relocation sections.
package elf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kernmod/bpfloader/pkg/bpferr"
)

// machineBPF is the e_machine value for the bytecode ISA (EM_BPF).
const machineBPF = 247

const maxLicenseLen = 63

// RelocSection is a pending relocation section discovered during
// classification, not yet matched to its owning Program.
type RelocSection struct {
	Name   string
	Index  int
	Target int // sh_info: section index the relocations apply to
	Data   []byte
	EntSz  uint64
}

// ProgSection is an executable PROGBITS section discovered during
// classification.
type ProgSection struct {
	Name  string
	Index int
	Data  []byte
}

// File holds the parsed ELF state the loader core consumes. It is
// borrowed, not owned: closing the underlying reader is the caller's
// responsibility.
type File struct {
	log *logrus.Entry

	Handle    *elf.File
	ByteOrder binary.ByteOrder

	License     string
	HasLicense  bool
	KernVersion uint32
	HasVersion  bool

	Symbols    []elf.Symbol
	StrtabIdx  int
	MapsShndx  int // -1 if absent
	TextShndx  int // -1 if absent
	MapsData   []byte
	BTFData    []byte
	HasBTF     bool

	Programs []ProgSection
	Relocs   []RelocSection
}

// Open parses the ELF object read from r, classifying its sections.
// object names the origin (a path or synthetic buffer name) purely for
// error messages and logging.
func Open(r io.ReaderAt, object string) (*File, error) {
	log := loggerFor(object)

	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, bpferr.New(bpferr.LibELF, object, err)
	}

	if ef.Type != elf.ET_REL {
		return nil, bpferr.New(bpferr.Format, object, fmt.Errorf("object type %s is not relocatable", ef.Type))
	}
	if ef.Machine != 0 && uint16(ef.Machine) != machineBPF {
		return nil, bpferr.New(bpferr.Format, object, fmt.Errorf("unsupported machine type %s", ef.Machine))
	}

	f := &File{
		log:       log,
		Handle:    ef,
		ByteOrder: ef.ByteOrder,
		MapsShndx: -1,
		TextShndx: -1,
	}

	if err := f.classify(object); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) classify(object string) error {
	ef := f.Handle

	symtabSeen := false
	sections := ef.Sections

	for idx, sec := range sections {
		switch {
		case sec.Name == "license":
			data, err := sec.Data()
			if err != nil {
				return bpferr.New(bpferr.Format, object, err).WithSection(sec.Name)
			}
			if len(data) > maxLicenseLen {
				data = data[:maxLicenseLen]
			}
			f.License = trimNUL(data)
			f.HasLicense = true

		case sec.Name == "version":
			data, err := sec.Data()
			if err != nil {
				return bpferr.New(bpferr.Format, object, err).WithSection(sec.Name)
			}
			if len(data) != 4 {
				return bpferr.New(bpferr.Format, object, fmt.Errorf("version section must be 4 bytes, got %d", len(data))).WithSection(sec.Name)
			}
			f.KernVersion = binary.LittleEndian.Uint32(data)
			f.HasVersion = true

		case sec.Name == "maps":
			data, err := sec.Data()
			if err != nil {
				return bpferr.New(bpferr.Format, object, err).WithSection(sec.Name)
			}
			f.MapsShndx = idx
			f.MapsData = data

		case sec.Name == ".BTF":
			data, err := sec.Data()
			if err != nil {
				f.log.WithError(err).Warning("failed to read .BTF section, continuing without type metadata")
				continue
			}
			f.BTFData = data
			f.HasBTF = true

		case sec.Type == elf.SHT_SYMTAB:
			if symtabSeen {
				return bpferr.New(bpferr.Format, object, fmt.Errorf("multiple symbol tables"))
			}
			symtabSeen = true
			syms, err := ef.Symbols()
			if err != nil {
				return bpferr.New(bpferr.Format, object, err).WithSection(sec.Name)
			}
			f.Symbols = syms
			f.StrtabIdx = int(sec.Link)

		case sec.Type == elf.SHT_PROGBITS && sec.Flags&elf.SHF_EXECINSTR != 0 && sec.Size > 0:
			data, err := sec.Data()
			if err != nil {
				return bpferr.New(bpferr.Format, object, err).WithSection(sec.Name)
			}
			if sec.Name == ".text" {
				f.TextShndx = idx
			}
			f.Programs = append(f.Programs, ProgSection{Name: sec.Name, Index: idx, Data: data})

		case sec.Type == elf.SHT_REL:
			target := int(sec.Info)
			if target < 0 || target >= len(sections) {
				continue
			}
			if sections[target].Flags&elf.SHF_EXECINSTR == 0 {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				return bpferr.New(bpferr.Format, object, err).WithSection(sec.Name)
			}
			f.Relocs = append(f.Relocs, RelocSection{
				Name:   sec.Name,
				Index:  idx,
				Target: target,
				Data:   data,
				EntSz:  sec.Entsize,
			})
		}
	}

	if f.StrtabIdx >= len(sections) {
		return bpferr.New(bpferr.Format, object, fmt.Errorf("string table index %d out of range", f.StrtabIdx))
	}

	return nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func loggerFor(object string) *logrus.Entry {
	return logrusSubsystem.WithField("object", object)
}
