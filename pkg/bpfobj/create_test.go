// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

func newTestMap(name string) *Map {
	return &Map{Name: name, fd: -1, Def: kernel.MapDef{Type: kernel.MapTypeHash, KeySize: 4, ValueSize: 4, MaxEntries: 1024}}
}

func TestCreateMapsAssignsDescriptors(t *testing.T) {
	o := &Object{origin: "test", Maps: []*Map{newTestMap("a"), newTestMap("b")}}
	k := newFakeKernel()

	require.NoError(t, o.createMaps(k))
	require.GreaterOrEqual(t, o.Maps[0].fd, int32(0))
	require.GreaterOrEqual(t, o.Maps[1].fd, int32(0))
	require.NotEqual(t, o.Maps[0].fd, o.Maps[1].fd)
}

func TestCreateMapsSkipsReusedDescriptor(t *testing.T) {
	reused := newTestMap("reused")
	reused.fd = 42
	o := &Object{origin: "test", Maps: []*Map{reused}}
	k := newFakeKernel()

	require.NoError(t, o.createMaps(k))
	require.Equal(t, int32(42), o.Maps[0].fd)
	require.Empty(t, k.createdMaps)
}

func TestCreateMapsPartialFailureClosesEarlierDescriptors(t *testing.T) {
	m1, m2, m3 := newTestMap("one"), newTestMap("two"), newTestMap("three")
	o := &Object{origin: "test", Maps: []*Map{m1, m2, m3}}
	k := newFakeKernel()
	k.failCreateNames["three"] = 1

	err := o.createMaps(k)
	require.Error(t, err)

	require.Equal(t, int32(-1), m1.fd)
	require.Equal(t, int32(-1), m2.fd)
	require.Equal(t, int32(-1), m3.fd)
	require.Len(t, k.closedFDs, 2)
}

func TestCreateMapsRetriesWithoutBTFOnFailure(t *testing.T) {
	m := newTestMap("counters")
	o := &Object{origin: "test", Maps: []*Map{m}}

	info, err := btfInfoWithContainer(t, "counters", m.Def)
	require.NoError(t, err)
	o.btf = info

	k := newFakeKernel()
	k.failCreateWithBTF["counters"] = true

	require.NoError(t, o.createMaps(k))
	require.GreaterOrEqual(t, m.fd, int32(0))
	require.Equal(t, uint32(0), m.BTFKeyTypeID)
	require.Equal(t, uint32(0), m.BTFValueTypeID)

	req := k.createdMaps[int(m.fd)]
	require.Zero(t, req.BTFFd)
}
