// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package insn models the fixed 8-byte bytecode instruction word used
// by the in-kernel verifier's virtual machine, and the two patch
// operations the loader applies to an instruction stream: stamping a
// wide-immediate load with a map descriptor, and rewriting a call's
// relative offset after inlining a shared callee.
package insn

import "encoding/binary"

// Size is the width in bytes of one instruction word. A wide-immediate
// (LD64) load occupies two consecutive words.
const Size = 8

// Opcode classes and op values the loader needs to recognize. These
// mirror the classic bpf_insn encoding: a one-byte opcode, a
// register-pair byte, a signed 16-bit offset, and a signed 32-bit
// immediate.
const (
	classLD  = 0x00
	classJMP = 0x05

	modeIMM = 0x00
	sizeDW  = 0x18

	jmpCall = 0x80

	// srcPseudoCall marks a JMP|CALL instruction's source register as a
	// pseudo-call into another BPF program rather than a kernel helper.
	srcPseudoCall = 0x01

	// srcPseudoMapFD is the tag written into a wide-immediate load's
	// source-register nibble once it has been resolved to a map
	// descriptor.
	srcPseudoMapFD = 0x01
)

// Instruction is one 8-byte bytecode word, decomposed into its fields.
type Instruction struct {
	Code   uint8
	DstSrc uint8 // high nibble: src reg; low nibble: dst reg
	Offset int16
	Imm    int32
}

// Program is a contiguous, mutable sequence of instruction words.
type Program struct {
	order binary.ByteOrder
	words []Instruction
}

// NewProgram decodes raw into a Program using the given byte order.
// len(raw) must be a positive multiple of Size.
func NewProgram(raw []byte, order binary.ByteOrder) (*Program, error) {
	if len(raw) == 0 || len(raw)%Size != 0 {
		return nil, errInvalidLength(len(raw))
	}
	n := len(raw) / Size
	words := make([]Instruction, n)
	for i := 0; i < n; i++ {
		w := raw[i*Size : (i+1)*Size]
		words[i] = Instruction{
			Code:   w[0],
			DstSrc: w[1],
			Offset: int16(order.Uint16(w[2:4])),
			Imm:    int32(order.Uint32(w[4:8])),
		}
	}
	return &Program{order: order, words: words}, nil
}

type errInvalidLength int

func (e errInvalidLength) Error() string {
	return "instruction buffer length must be a positive multiple of 8 bytes"
}

// Len returns the instruction count.
func (p *Program) Len() int { return len(p.words) }

// At returns the instruction at idx.
func (p *Program) At(idx int) Instruction { return p.words[idx] }

// Append appends another Program's instructions in place and returns
// the index at which the appended region begins.
func (p *Program) Append(other *Program) (base int) {
	base = len(p.words)
	p.words = append(p.words, other.words...)
	return base
}

// IsPseudoCall reports whether the instruction at idx is a JMP|CALL
// with the pseudo-call source-register tag set.
func (p *Program) IsPseudoCall(idx int) bool {
	w := p.words[idx]
	return (w.Code&0x07) == classJMP && (w.Code&0xf0) == jmpCall && (w.DstSrc>>4) == srcPseudoCall
}

// IsCallOpcode reports whether the instruction at idx is any JMP|CALL,
// regardless of its source-register tag.
func (p *Program) IsCallOpcode(idx int) bool {
	w := p.words[idx]
	return (w.Code&0x07) == classJMP && (w.Code&0xf0) == jmpCall
}

// IsWideLoad reports whether the instruction at idx begins a two-word
// LD|IMM|DW wide-immediate load.
func (p *Program) IsWideLoad(idx int) bool {
	return p.words[idx].Code == classLD|modeIMM|sizeDW
}

// PatchMapFD stamps the wide-immediate load at idx so that its
// source-register nibble marks it as a resolved map descriptor and its
// immediate becomes fd. Only the first of the two instruction words
// that make up the load is touched; the second carries the high 32
// bits of the original symbol value and is left untouched.
func (p *Program) PatchMapFD(idx int, fd int32) {
	w := &p.words[idx]
	w.DstSrc = (w.DstSrc & 0x0f) | (srcPseudoMapFD << 4)
	w.Imm = fd
}

// PatchCallOffset adds delta to the call instruction's immediate,
// turning a pre-inlining relative offset into one relative to the
// combined, post-inlining instruction stream.
func (p *Program) PatchCallOffset(idx int, delta int32) {
	p.words[idx].Imm += delta
}

// Marshal re-encodes the Program back into a flat byte buffer using
// its original byte order.
func (p *Program) Marshal() []byte {
	out := make([]byte, len(p.words)*Size)
	for i, w := range p.words {
		b := out[i*Size : (i+1)*Size]
		b[0] = w.Code
		b[1] = w.DstSrc
		p.order.PutUint16(b[2:4], uint16(w.Offset))
		p.order.PutUint32(b[4:8], uint32(w.Imm))
	}
	return out
}

// MapFDTag is the source-register tag value a resolved LD64 map load
// carries, exported for tests that need to assert on it without
// reaching into package internals.
const MapFDTag = srcPseudoMapFD
