// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	"github.com/kernmod/bpfloader/pkg/kernel"
)

func TestValidateKernVersionRequiredTypeWithZeroVersionFails(t *testing.T) {
	o := &Object{origin: "test", kernVersion: 0}
	p := &Program{sectionName: "kprobe/x", Type: kernel.ProgTypeKprobe}

	err := o.validateKernVersion(p)
	require.Error(t, err)
	require.True(t, bpferr.Is(err, bpferr.KVersion))
}

func TestValidateKernVersionNotRequiredForOtherTypes(t *testing.T) {
	o := &Object{origin: "test", kernVersion: 0}
	p := &Program{sectionName: "socket", Type: kernel.ProgTypeSocketFilter}

	require.NoError(t, o.validateKernVersion(p))
}

func TestValidateKernVersionPresentSatisfiesRequirement(t *testing.T) {
	o := &Object{origin: "test", kernVersion: 0x00040f00}
	p := &Program{sectionName: "kprobe/x", Type: kernel.ProgTypeKprobe}

	require.NoError(t, o.validateKernVersion(p))
}
