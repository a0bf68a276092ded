// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	"github.com/kernmod/bpfloader/pkg/proginfer"
)

// validateKernVersion implements spec.md §4.10: a Program whose
// inferred type requires kernel-version tagging fails KVERSION if the
// object carries a zero kern_version.
func (o *Object) validateKernVersion(p *Program) error {
	if !proginfer.RequiresKernelVersion(p.Type) {
		return nil
	}
	if o.kernVersion != 0 {
		return nil
	}
	return bpferr.New(bpferr.KVersion, o.origin, fmt.Errorf("program %q requires a kernel version but the object declares none", p.name)).WithSection(p.sectionName)
}
