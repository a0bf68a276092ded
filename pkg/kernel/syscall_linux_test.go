// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build linux

package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/testutils"
)

// Exercises the real bpf(2) syscall path rather than the in-memory
// fakeKernel used everywhere else: create a hash map against the
// running kernel, duplicate its descriptor close-on-exec, then close
// both. Skipped unless BPFLOADER_PRIVILEGED_TESTS=1, since
// BPF_MAP_CREATE requires CAP_BPF/CAP_SYS_ADMIN.
func TestSyscallCreateMapAndDupCloexec(t *testing.T) {
	testutils.PrivilegedTest(t)

	k := NewSyscall()
	fd, err := k.CreateMap(CreateMapRequest{
		Name: "pt_smoke",
		Def: MapDef{
			Type:       MapTypeHash,
			KeySize:    4,
			ValueSize:  4,
			MaxEntries: 8,
		},
	})
	require.NoError(t, err)
	defer k.Close(fd)

	dup, err := k.DupCloexec(fd)
	require.NoError(t, err)
	require.NotEqual(t, fd, dup)
	defer k.Close(dup)

	key := []byte{1, 0, 0, 0}
	value := []byte{42, 0, 0, 0}
	require.NoError(t, k.UpdateMapElement(fd, key, value))

	info, err := k.ObjectInfoByFD(fd)
	require.NoError(t, err)
	require.Equal(t, "pt_smoke", info.Name)
}
