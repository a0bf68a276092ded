// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package btf implements the TypeInfo capability: a minimal reader for
// the BPF type-metadata format carried in a .BTF ELF section, enough
// to resolve a named struct's member types and sizes for map
// key/value annotation (spec §4.5's "____btf_map_<name>" convention).
//
// Full BTF (enums, unions, function prototypes, line info, kind_flag
// bitfields) is out of this loader's scope: the core only ever needs
// find-by-name, type-by-id, and size resolution for INT and STRUCT
// kinds, which is what is implemented here. Anything else is reported
// as an unsupported-kind error rather than guessed at.
package btf

import (
	"encoding/binary"
	"fmt"
)

// Kind mirrors the handful of BTF_KIND_* values the loader cares about.
type Kind uint8

const (
	KindUnknown Kind = 0
	KindInt     Kind = 1
	KindPtr     Kind = 2
	KindArray   Kind = 3
	KindStruct  Kind = 4
	KindUnion   Kind = 5
)

const btfMagic = 0xeB9F

// Type is one decoded BTF type record.
type Type struct {
	ID      uint32
	Name    string
	Kind    Kind
	Size    uint32 // valid for INT/STRUCT/UNION
	Members []Member
}

// Member is one field of a STRUCT/UNION type.
type Member struct {
	Name      string
	TypeID    uint32
	OffsetBit uint32
}

// Info is the TypeInfo capability: a parsed BTF blob plus the ability
// to look types up by name or id and resolve their size.
type Info struct {
	raw      []byte
	types    []Type // index 0 is the synthetic "void" type; real types start at 1
	byName   map[string]uint32
	fd       int
}

type btfHeader struct {
	Magic      uint16
	Version    uint8
	Flags      uint8
	HdrLen     uint32
	TypeOff    uint32
	TypeLen    uint32
	StrOff     uint32
	StrLen     uint32
}

// Parse decodes a .BTF section's bytes into an Info.
func Parse(data []byte) (*Info, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("btf: data too short")
	}
	order := binary.LittleEndian
	var hdr btfHeader
	hdr.Magic = order.Uint16(data[0:2])
	if hdr.Magic != btfMagic {
		return nil, fmt.Errorf("btf: bad magic %#x", hdr.Magic)
	}
	hdr.Version = data[2]
	hdr.Flags = data[3]
	hdr.HdrLen = order.Uint32(data[4:8])
	if len(data) < int(hdr.HdrLen) || hdr.HdrLen < 24 {
		return nil, fmt.Errorf("btf: truncated header")
	}
	hdr.TypeOff = order.Uint32(data[8:12])
	hdr.TypeLen = order.Uint32(data[12:16])
	hdr.StrOff = order.Uint32(data[16:20])
	hdr.StrLen = order.Uint32(data[20:24])

	typeStart := int(hdr.HdrLen) + int(hdr.TypeOff)
	typeEnd := typeStart + int(hdr.TypeLen)
	strStart := int(hdr.HdrLen) + int(hdr.StrOff)
	strEnd := strStart + int(hdr.StrLen)
	if typeEnd > len(data) || strEnd > len(data) {
		return nil, fmt.Errorf("btf: section truncated")
	}
	strs := data[strStart:strEnd]

	info := &Info{
		raw:    data,
		types:  []Type{{ID: 0, Name: "void"}},
		byName: map[string]uint32{},
	}

	off := typeStart
	id := uint32(1)
	for off < typeEnd {
		if off+12 > typeEnd {
			return nil, fmt.Errorf("btf: truncated type record at id %d", id)
		}
		nameOff := order.Uint32(data[off : off+4])
		info1 := order.Uint32(data[off+4 : off+8])
		sizeOrType := order.Uint32(data[off+8 : off+12])
		off += 12

		kind := Kind((info1 >> 24) & 0x1f)
		vlen := int(info1 & 0xffff)
		kindFlag := (info1>>31)&1 == 1

		t := Type{ID: id, Name: lookupStr(strs, nameOff), Kind: kind}

		switch kind {
		case KindInt:
			t.Size = sizeOrType
			off += 4 // int-specific encoding word

		case KindStruct, KindUnion:
			t.Size = sizeOrType
			for i := 0; i < vlen; i++ {
				if off+12 > typeEnd {
					return nil, fmt.Errorf("btf: truncated member at id %d", id)
				}
				mNameOff := order.Uint32(data[off : off+4])
				mType := order.Uint32(data[off+4 : off+8])
				mOffset := order.Uint32(data[off+8 : off+12])
				off += 12
				offsetBit := mOffset
				if kindFlag {
					offsetBit = mOffset & 0xffffff
				}
				t.Members = append(t.Members, Member{
					Name:      lookupStr(strs, mNameOff),
					TypeID:    mType,
					OffsetBit: offsetBit,
				})
			}

		case KindPtr, KindArray:
			// no trailing variable-length data the loader needs to skip
			// past beyond the fixed 12-byte header for these kinds.

		default:
			// Unsupported kind for this loader's purposes: record it so
			// type-by-id still succeeds, but size resolution will fail.
		}

		info.types = append(info.types, t)
		if t.Name != "" {
			info.byName[t.Name] = id
		}
		id++
	}

	return info, nil
}

func lookupStr(strs []byte, off uint32) string {
	if int(off) >= len(strs) {
		return ""
	}
	end := off
	for end < uint32(len(strs)) && strs[end] != 0 {
		end++
	}
	return string(strs[off:end])
}

// FindByName returns the type id named name, or 0 if none exists.
func (i *Info) FindByName(name string) uint32 {
	return i.byName[name]
}

// TypeByID returns the type record for id.
func (i *Info) TypeByID(id uint32) (Type, error) {
	if int(id) >= len(i.types) {
		return Type{}, fmt.Errorf("btf: unknown type id %d", id)
	}
	return i.types[id], nil
}

// ResolveSize returns the byte size of type id, if known.
func (i *Info) ResolveSize(id uint32) (uint32, error) {
	t, err := i.TypeByID(id)
	if err != nil {
		return 0, err
	}
	switch t.Kind {
	case KindInt, KindStruct, KindUnion:
		return t.Size, nil
	default:
		return 0, fmt.Errorf("btf: type id %d (kind %d) has no resolvable size", id, t.Kind)
	}
}

// SetDescriptor records the kernel descriptor this BTF blob was loaded
// under, once the loader has submitted it via KernelBpf. A descriptor
// of 0 means none has been submitted.
func (i *Info) SetDescriptor(fd int) { i.fd = fd }

// Descriptor returns the kernel descriptor for this BTF blob, or 0 if
// it was never submitted to the kernel.
func (i *Info) Descriptor() int { return i.fd }
