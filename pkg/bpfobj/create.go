// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	"github.com/kernmod/bpfloader/pkg/btf"
	"github.com/kernmod/bpfloader/pkg/kernel"
	"github.com/kernmod/bpfloader/pkg/metrics"
)

// btfContainerPrefix is the naming convention spec.md §4.5 requires
// for a map's key/value type-annotation struct.
const btfContainerPrefix = "____btf_map_"

// createMaps implements spec.md §4.5: materializes each Map not
// already carrying a reused descriptor, in array order, optionally
// annotated with BTF key/value type ids, retrying once without type
// metadata on failure, and on a still-failing map closes every
// descriptor created earlier in this call.
func (o *Object) createMaps(k kernel.Bpf) error {
	for i, m := range o.Maps {
		if m.fd >= 0 {
			// Reused external descriptor (spec.md §4.9): already
			// populated by the caller, skip creation entirely.
			continue
		}

		req := kernel.CreateMapRequest{
			Name:    m.Name,
			Def:     m.Def,
			IfIndex: m.IfIndex,
		}

		btfKeyID, btfValID, hasBTF := o.resolveBTFContainer(m)
		if hasBTF {
			req.BTFFd = o.btf.Descriptor()
			req.BTFKeyType = btfKeyID
			req.BTFValType = btfValID
		}

		fd, err := k.CreateMap(req)
		if err != nil && hasBTF {
			// Fallback (spec.md §4.5): tolerate kernels older than the
			// type-metadata feature by retrying without it.
			req.BTFFd = 0
			req.BTFKeyType = 0
			req.BTFValType = 0
			fd, err = k.CreateMap(req)
			if err == nil {
				btfKeyID, btfValID, hasBTF = 0, 0, false
			}
		}

		if err != nil {
			metrics.MapCreateFailures.Inc()
			closeErr := o.closeMapsCreatedSoFar(k, i)
			return bpferr.New(bpferr.Load, o.origin, multierr.Append(fmt.Errorf("create map %q: %w", m.Name, err), closeErr)).WithSection("maps").WithIndex(i)
		}

		m.fd = int32(fd)
		if hasBTF {
			m.BTFKeyTypeID = btfKeyID
			m.BTFValueTypeID = btfValID
		}
		metrics.MapsCreated.Inc()
	}
	return nil
}

// resolveBTFContainer looks up "____btf_map_<name>" and validates it
// against spec.md §4.5's shape: a struct with at least two members,
// member[0] sized like the key and member[1] sized like the value.
func (o *Object) resolveBTFContainer(m *Map) (keyID, valID uint32, ok bool) {
	if o.btf == nil {
		return 0, 0, false
	}
	id := o.btf.FindByName(btfContainerPrefix + m.Name)
	if id == 0 {
		return 0, 0, false
	}
	t, err := o.btf.TypeByID(id)
	if err != nil || t.Kind != btf.KindStruct || len(t.Members) < 2 {
		return 0, 0, false
	}
	keyType := t.Members[0].TypeID
	valType := t.Members[1].TypeID
	keySz, err := o.btf.ResolveSize(keyType)
	if err != nil || keySz != m.Def.KeySize {
		return 0, 0, false
	}
	valSz, err := o.btf.ResolveSize(valType)
	if err != nil || valSz != m.Def.ValueSize {
		return 0, 0, false
	}
	return keyType, valType, true
}

// closeMapsCreatedSoFar closes descriptors [0..upTo) after a creation
// failure, aggregating every close error rather than stopping at the
// first.
func (o *Object) closeMapsCreatedSoFar(k kernel.Bpf, upTo int) error {
	var errs error
	for j := 0; j < upTo; j++ {
		m := o.Maps[j]
		if m.fd < 0 {
			continue
		}
		if err := k.Close(int(m.fd)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close map %q: %w", m.Name, err))
		}
		m.fd = -1
	}
	return errs
}
