// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	pkgelf "github.com/kernmod/bpfloader/pkg/elf"
	"github.com/kernmod/bpfloader/pkg/kernel"
)

// definitionSize is sizeof(MapDef) on the wire: type, key_size,
// value_size, max_entries, flags — five 32-bit fields.
const definitionSize = 5 * 4

// buildMaps implements spec.md §4.2: converts the maps-definitions
// section plus map symbols into an ordered, offset-sorted Map array.
func (o *Object) buildMaps(ef *pkgelf.File) error {
	if ef.MapsShndx < 0 {
		return nil
	}

	var mapSyms []elf.Symbol
	for _, sym := range ef.Symbols {
		if int(sym.Section) == ef.MapsShndx {
			mapSyms = append(mapSyms, sym)
		}
	}

	n := len(mapSyms)
	dataSize := len(ef.MapsData)
	if n == 0 || dataSize == 0 || dataSize%n != 0 {
		return bpferr.New(bpferr.Format, o.origin, fmt.Errorf("maps section size %d not evenly divisible by %d map symbols", dataSize, n)).WithSection("maps")
	}
	defSz := dataSize / n

	maps := make([]*Map, 0, n)
	for _, sym := range mapSyms {
		off := sym.Value
		if off+uint64(defSz) > uint64(dataSize) {
			return bpferr.New(bpferr.Format, o.origin, fmt.Errorf("map symbol %q offset %d out of range", sym.Name, off)).WithSection("maps")
		}
		raw := ef.MapsData[off : off+uint64(defSz)]

		def, err := decodeMapDef(raw, ef.ByteOrder)
		if err != nil {
			return bpferr.New(bpferr.Format, o.origin, fmt.Errorf("map %q: %w", sym.Name, err)).WithSection("maps")
		}

		maps = append(maps, &Map{
			Name:   sym.Name,
			Offset: off,
			fd:     -1,
			Def:    def,
		})
	}

	sort.Slice(maps, func(i, j int) bool { return maps[i].Offset < maps[j].Offset })
	o.Maps = maps
	return nil
}

// decodeMapDef copies a possibly-extended map definition, accepting a
// shorter-than-known prefix (missing fields default to zero) and, for
// a longer-than-known definition, requiring every trailing byte beyond
// the known shape to be zero (spec.md §4.2 step 4, the "unrecognized
// options" rule).
func decodeMapDef(raw []byte, order binary.ByteOrder) (kernel.MapDef, error) {
	var def kernel.MapDef
	known := raw
	if len(raw) > definitionSize {
		known = raw[:definitionSize]
		for _, b := range raw[definitionSize:] {
			if b != 0 {
				return kernel.MapDef{}, fmt.Errorf("definition has unrecognized options")
			}
		}
	}

	var buf [definitionSize]byte
	copy(buf[:], known)

	def.Type = kernel.MapType(order.Uint32(buf[0:4]))
	def.KeySize = order.Uint32(buf[4:8])
	def.ValueSize = order.Uint32(buf[8:12])
	def.MaxEntries = order.Uint32(buf[12:16])
	def.Flags = order.Uint32(buf[16:20])
	return def, nil
}
