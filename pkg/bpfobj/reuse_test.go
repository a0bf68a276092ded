// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

func TestReuseDescriptorCopiesInfoAndClosesOldFD(t *testing.T) {
	m := newTestMap("counters")
	m.fd = 9
	o := &Object{origin: "test", Maps: []*Map{m}}
	k := newFakeKernel()
	k.infoByFD[50] = kernel.ObjectInfo{
		Name: "counters", Type: kernel.MapTypeLRUHash,
		KeySize: 8, ValueSize: 16, MaxEntries: 2048, Flags: 1,
		BTFKeyType: 3, BTFValType: 4,
	}

	require.NoError(t, o.ReuseDescriptor(k, "counters", 50))

	require.NotEqual(t, int32(9), m.fd)
	require.Contains(t, k.closedFDs, 9)
	require.Equal(t, kernel.MapTypeLRUHash, m.Def.Type)
	require.Equal(t, uint32(8), m.Def.KeySize)
	require.Equal(t, uint32(16), m.Def.ValueSize)
	require.Equal(t, uint32(2048), m.Def.MaxEntries)
	require.Equal(t, uint32(3), m.BTFKeyTypeID)
	require.Equal(t, uint32(4), m.BTFValueTypeID)
}

func TestReuseDescriptorUnknownMapErrors(t *testing.T) {
	o := &Object{origin: "test"}
	k := newFakeKernel()
	require.Error(t, o.ReuseDescriptor(k, "ghost", 1))
}
