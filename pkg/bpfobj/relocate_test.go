// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/insn"
)

// ld64Word builds the raw 16-byte encoding of one wide-immediate
// (LD|IMM|DW) load: opcode 0x18, zero dst/src, zero offset/imm in both
// words (the relocator only touches word 0's src nibble and imm).
func ld64Word() []byte {
	return []byte{
		0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
}

// callWord builds one pseudo-call JMP|CALL instruction (opcode 0x85,
// src nibble 0x1) with the given signed 32-bit immediate.
func callWord(imm int32) []byte {
	b := make([]byte, 8)
	b[0] = 0x85
	b[1] = 0x10
	binary.LittleEndian.PutUint32(b[4:8], uint32(imm))
	return b
}

func mustProgram(t *testing.T, words ...[]byte) *insn.Program {
	t.Helper()
	var raw []byte
	for _, w := range words {
		raw = append(raw, w...)
	}
	p, err := insn.NewProgram(raw, binary.LittleEndian)
	require.NoError(t, err)
	return p
}

func TestRelocateLD64StampsMapFD(t *testing.T) {
	prog := &Program{
		sectionName: "kprobe/x",
		insns:       mustProgram(t, ld64Word()),
		relocs:      []relocDesc{{kind: relocLD64, insnIdx: 0, mapIdx: 0}},
	}
	m := newTestMap("counters")
	m.fd = 7
	o := &Object{origin: "test", Programs: []*Program{prog}, Maps: []*Map{m}}

	require.NoError(t, o.relocateProgram(prog))

	w := prog.insns.At(0)
	require.Equal(t, uint8(insn.MapFDTag<<4), w.DstSrc&0xf0)
	require.Equal(t, int32(7), w.Imm)
	require.Empty(t, prog.relocs)
}

func TestRelocateCallInlinesTextOnce(t *testing.T) {
	text := &Program{
		sectionName: ".text",
		insns:       mustProgram(t, callWord(0), callWord(0), callWord(0), callWord(0), callWord(0)),
	}
	caller := &Program{
		sectionName: "kprobe/x",
		insns:       mustProgram(t, callWord(0), callWord(0), callWord(0), callWord(10), callWord(0)),
		relocs:      []relocDesc{{kind: relocCall, insnIdx: 3, textOff: 0}},
	}
	o := &Object{origin: "test", Programs: []*Program{text, caller}}

	require.NoError(t, o.relocateProgram(caller))

	require.Equal(t, 10, caller.insns.Len())
	require.Equal(t, 5, caller.mainProgCnt)
	require.Equal(t, int32(10+(5-3)), caller.insns.At(3).Imm)
}

func TestRelocateCallInsideTextRefused(t *testing.T) {
	text := &Program{
		sectionName: ".text",
		insns:       mustProgram(t, callWord(0)),
		relocs:      []relocDesc{{kind: relocCall, insnIdx: 0, textOff: 0}},
	}
	o := &Object{origin: "test", Programs: []*Program{text}}

	err := o.relocateProgram(text)
	require.Error(t, err)
}
