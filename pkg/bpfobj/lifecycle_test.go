// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/registry"
)

func TestUnloadIsIdempotent(t *testing.T) {
	m := newTestMap("a")
	m.fd = 5
	p := &Program{name: "x", instances: Instances{NR: 1, FDs: []int32{6}}}
	o := &Object{origin: "test", Maps: []*Map{m}, Programs: []*Program{p}}
	k := newFakeKernel()

	require.NoError(t, o.Unload(k))
	require.Equal(t, int32(-1), m.fd)
	require.Equal(t, int32(-1), p.instances.FDs[0])
	require.ElementsMatch(t, []int{5, 6}, k.closedFDs)

	require.NoError(t, o.Unload(k))
	require.Len(t, k.closedFDs, 2, "second unload must not double-close")
}

func TestCloseReleasesUserDataAndUnregisters(t *testing.T) {
	o := &Object{origin: "test-close"}
	released := false
	o.SetUserData("payload", func(interface{}) { released = true })
	registry.Register(o)
	registered := registry.Len()

	require.NoError(t, o.Close())
	require.True(t, released)
	require.Nil(t, o.userData)
	require.Equal(t, registered-1, registry.Len())
}
