// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Tail-call slot assignment is supplemental to the core pipeline
// (spec.md does not require it): iproute2's bpf loader populates a
// BPF_MAP_TYPE_PROG_ARRAY by parsing "<prefix>/<slot>" section names
// once every program in the object has a descriptor. It is never run
// implicitly; callers opt in after Load succeeds.
package bpfobj

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

// tailCallPrefix is the conventional section-name prefix iproute2
// recognizes before a numeric slot index, e.g. "tail_calls/3".
const tailCallPrefix = "tail_calls/"

// ResolveTailCalls populates the prog-array map named progArrayMap
// with every Program whose section name matches "tail_calls/<slot>",
// writing each program's first-instance descriptor at the parsed slot
// index. It must run after Load.
func (o *Object) ResolveTailCalls(k kernel.Bpf, progArrayMap string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var arr *Map
	for _, m := range o.Maps {
		if m.Name == progArrayMap {
			arr = m
			break
		}
	}
	if arr == nil {
		return fmt.Errorf("tail call resolution: no map named %q", progArrayMap)
	}
	if arr.fd < 0 {
		return fmt.Errorf("tail call resolution: map %q has no descriptor", progArrayMap)
	}

	for _, p := range o.Programs {
		if !strings.HasPrefix(p.sectionName, tailCallPrefix) {
			continue
		}
		slot, err := strconv.Atoi(strings.TrimPrefix(p.sectionName, tailCallPrefix))
		if err != nil {
			return fmt.Errorf("tail call resolution: section %q has non-numeric slot: %w", p.sectionName, err)
		}
		if p.instances.NR <= 0 || len(p.instances.FDs) == 0 || p.instances.FDs[0] < 0 {
			continue
		}

		key := make([]byte, 4)
		val := make([]byte, 4)
		binary.LittleEndian.PutUint32(key, uint32(slot))
		binary.LittleEndian.PutUint32(val, uint32(p.instances.FDs[0]))

		if err := k.UpdateMapElement(int(arr.fd), key, val); err != nil {
			return fmt.Errorf("tail call resolution: slot %d (%s): %w", slot, p.sectionName, err)
		}
	}
	return nil
}
