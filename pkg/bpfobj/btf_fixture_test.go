// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"encoding/binary"
	"testing"

	"github.com/kernmod/bpfloader/pkg/btf"
	"github.com/kernmod/bpfloader/pkg/kernel"
)

// btfInfoWithContainer builds a minimal valid .BTF blob containing one
// INT type (used for both key and value, since this fixture only
// exercises same-sized key/value maps) and one
// "____btf_map_<mapName>" struct with two members pointing at it, then
// parses it through the real btf.Parse so tests exercise the
// production decoder rather than a hand-built *btf.Info.
func btfInfoWithContainer(t *testing.T, mapName string, def kernel.MapDef) (*btf.Info, error) {
	t.Helper()
	if def.KeySize != def.ValueSize {
		t.Fatalf("fixture only supports equal key/value sizes, got %d/%d", def.KeySize, def.ValueSize)
	}

	order := binary.LittleEndian

	// Type id 1: INT, size = def.KeySize, anonymous.
	intType := make([]byte, 16)
	order.PutUint32(intType[0:4], 0)                              // name_off
	order.PutUint32(intType[4:8], uint32(btf.KindInt)<<24)        // info: kind=INT, vlen=0
	order.PutUint32(intType[8:12], def.KeySize)                   // size
	order.PutUint32(intType[12:16], 0)                            // int-specific encoding word

	name := "____btf_map_" + mapName
	strs := append([]byte{0}, append([]byte(name), 0)...)

	// Type id 2: STRUCT with 2 members, both typed as id 1.
	structHdr := make([]byte, 12)
	order.PutUint32(structHdr[0:4], 1) // name_off = 1 (points at name in strs)
	order.PutUint32(structHdr[4:8], (uint32(btf.KindStruct)<<24)|2)
	order.PutUint32(structHdr[8:12], 0) // size unused by this loader's checks

	member := func(typeID uint32) []byte {
		m := make([]byte, 12)
		order.PutUint32(m[0:4], 0)
		order.PutUint32(m[4:8], typeID)
		order.PutUint32(m[8:12], 0)
		return m
	}

	types := append([]byte{}, intType...)
	types = append(types, structHdr...)
	types = append(types, member(1)...)
	types = append(types, member(1)...)

	const hdrLen = 24
	hdr := make([]byte, hdrLen)
	order.PutUint16(hdr[0:2], 0xeB9F)
	hdr[2] = 1 // version
	hdr[3] = 0 // flags
	order.PutUint32(hdr[4:8], hdrLen)
	order.PutUint32(hdr[8:12], 0)               // type_off
	order.PutUint32(hdr[12:16], uint32(len(types)))
	order.PutUint32(hdr[16:20], uint32(len(types))) // str_off, right after types
	order.PutUint32(hdr[20:24], uint32(len(strs)))

	data := append([]byte{}, hdr...)
	data = append(data, types...)
	data = append(data, strs...)

	return btf.Parse(data)
}
