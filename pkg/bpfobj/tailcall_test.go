// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTailCallsWritesSlots(t *testing.T) {
	arr := newTestMap("jump_table")
	arr.fd = 3

	p0 := &Program{sectionName: "tail_calls/0", instances: Instances{NR: 1, FDs: []int32{11}}}
	p1 := &Program{sectionName: "tail_calls/1", instances: Instances{NR: 1, FDs: []int32{12}}}
	other := &Program{sectionName: "kprobe/unrelated", instances: Instances{NR: 1, FDs: []int32{13}}}

	o := &Object{origin: "test", Maps: []*Map{arr}, Programs: []*Program{p0, p1, other}}
	k := newFakeKernel()

	require.NoError(t, o.ResolveTailCalls(k, "jump_table"))
	require.Len(t, k.updateCalls, 2)

	for _, call := range k.updateCalls {
		require.Equal(t, 3, call.mapFD)
		slot := binary.LittleEndian.Uint32(call.key)
		fd := binary.LittleEndian.Uint32(call.value)
		switch slot {
		case 0:
			require.Equal(t, uint32(11), fd)
		case 1:
			require.Equal(t, uint32(12), fd)
		default:
			t.Fatalf("unexpected slot %d", slot)
		}
	}
}

func TestResolveTailCallsMissingMapErrors(t *testing.T) {
	o := &Object{origin: "test"}
	k := newFakeKernel()
	require.Error(t, o.ResolveTailCalls(k, "nope"))
}
