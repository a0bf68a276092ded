// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	"github.com/kernmod/bpfloader/pkg/kernel"
)

func newTestProgram(t *testing.T, section string) *Program {
	return &Program{
		name:        section,
		sectionName: section,
		insns:       mustProgram(t, callWord(0)),
		Type:        kernel.ProgTypeSocketFilter,
		instances:   uninitInstances(),
	}
}

func TestLoadAllSkipsTextWhenInlined(t *testing.T) {
	o := &Object{
		origin:         "test",
		hasPseudoCalls: true,
		Programs: []*Program{
			newTestProgram(t, ".text"),
			newTestProgram(t, "kprobe/x"),
		},
	}
	k := newFakeKernel()

	require.NoError(t, o.loadAll(k))
	require.Len(t, k.loadedPrograms, 1)
	require.Equal(t, "kprobe/x", k.loadedPrograms[0].Name)
	require.True(t, o.loaded)
}

func TestLoadAllSingleInstanceNoPreProcessor(t *testing.T) {
	p := newTestProgram(t, "socket")
	o := &Object{origin: "test", Programs: []*Program{p}}
	k := newFakeKernel()

	require.NoError(t, o.loadAll(k))
	require.Equal(t, 1, p.instances.NR)
	require.GreaterOrEqual(t, p.instances.FDs[0], int32(0))
	require.Nil(t, p.insns)
}

func TestLoadAllWithPreProcessorSkipsInstance(t *testing.T) {
	p := newTestProgram(t, "socket")
	var seen []int
	p.SetPreProcessor(3, func(i int, orig []byte) ([]byte, bool) {
		seen = append(seen, i)
		if i == 1 {
			return nil, true
		}
		return orig, false
	})
	o := &Object{origin: "test", Programs: []*Program{p}}
	k := newFakeKernel()

	require.NoError(t, o.loadAll(k))
	require.Equal(t, 3, p.instances.NR)
	require.Equal(t, []int{0, 1, 2}, seen)
	require.Equal(t, int32(-1), p.instances.FDs[1])
	require.GreaterOrEqual(t, p.instances.FDs[0], int32(0))
	require.GreaterOrEqual(t, p.instances.FDs[2], int32(0))
}

func TestLoadVerifierLogReportsVerify(t *testing.T) {
	p := newTestProgram(t, "socket")
	o := &Object{origin: "test", Programs: []*Program{p}}
	k := newFakeKernel()
	k.verifierLogNames["socket"] = "R0 invalid mem access"

	err := o.loadAll(k)
	require.Error(t, err)
	require.True(t, bpferr.Is(err, bpferr.Verify))
}

func TestLoadKernelVersionRequiredFailsValidation(t *testing.T) {
	p := newTestProgram(t, "kprobe/x")
	p.Type = kernel.ProgTypeKprobe
	o := &Object{origin: "test", kernVersion: 0, Programs: []*Program{p}}
	k := newFakeKernel()

	err := o.loadAll(k)
	require.Error(t, err)
	require.True(t, bpferr.Is(err, bpferr.KVersion))
	require.Empty(t, k.loadedPrograms)
}
