// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package kernel implements the KernelBpf capability spec.md treats as
// an external collaborator: create_map, load_program, pin, and
// object_info_by_descriptor, backed by the real bpf(2) syscall.
package kernel

import (
	"fmt"

	"github.com/kernmod/bpfloader/pkg/logging"
)

var log = logging.Subsystem("kernel")

// MapType mirrors the kernel's BPF_MAP_TYPE_* enumeration values the
// loader needs to round-trip; it does not attempt to be exhaustive.
type MapType uint32

const (
	MapTypeUnspec MapType = iota
	MapTypeHash
	MapTypeArray
	MapTypeProgArray
	MapTypePerfEventArray
	MapTypeLRUHash
)

// ProgType mirrors the kernel's BPF_PROG_TYPE_* enumeration values.
type ProgType uint32

const (
	ProgTypeUnspec ProgType = iota
	ProgTypeSocketFilter
	ProgTypeKprobe
	ProgTypeSchedCLS
	ProgTypeSchedACT
	ProgTypeTracepoint
	ProgTypeXDP
	ProgTypePerfEvent
	ProgTypeCgroupSKB
	ProgTypeCgroupSockAddr
	ProgTypeRawTracepoint
)

// AttachType mirrors the kernel's BPF_*_ATTACH_TYPE values the loader
// needs for program-type inference.
type AttachType uint32

const (
	AttachNone AttachType = iota
	AttachCgroupInetConnect4
	AttachCgroupInetConnect6
)

// MapDef is the on-the-wire map definition copied out of the ELF maps
// section.
type MapDef struct {
	Type       MapType
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	Flags      uint32
}

// CreateMapRequest is the input to CreateMap.
type CreateMapRequest struct {
	Name        string
	Def         MapDef
	IfIndex     uint32
	BTFFd       int
	BTFKeyType  uint32
	BTFValType  uint32
}

// LoadProgramRequest is the input to LoadProgram.
type LoadProgramRequest struct {
	Type           ProgType
	ExpectedAttach AttachType
	Name           string
	Instructions   []byte
	License        string
	KernVersion    uint32
	IfIndex        uint32
	LogSize        uint32
}

// LoadResult is the outcome of a successful or failed LoadProgram call.
type LoadResult struct {
	FD        int
	Log       string
	LogFull   bool // true if the kernel truncated the verifier log
}

// ObjectInfo is the subset of struct bpf_map_info / bpf_prog_info the
// loader needs back from object_info_by_descriptor during descriptor
// reuse.
type ObjectInfo struct {
	Name       string
	Type       MapType
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	Flags      uint32
	BTFKeyType uint32
	BTFValType uint32
}

// Bpf is the KernelBpf capability.
type Bpf interface {
	CreateMap(req CreateMapRequest) (int, error)
	LoadProgram(req LoadProgramRequest) (LoadResult, error)
	Pin(fd int, path string) error
	ObjectInfoByFD(fd int) (ObjectInfo, error)
	LoadBTF(raw []byte) (int, error)
	// UpdateMapElement writes value at key in the map referenced by
	// mapFD, used by the supplemental tail-call slot assignment to
	// populate a BPF_MAP_TYPE_PROG_ARRAY.
	UpdateMapElement(mapFD int, key, value []byte) error
	// DupCloexec duplicates fd into a freshly-opened close-on-exec
	// slot, used by descriptor reuse (spec.md §4.9).
	DupCloexec(fd int) (int, error)
	Close(fd int) error
}

// ErrTooBig indicates the kernel rejected a program because it exceeds
// the instruction-count limit.
var ErrTooBig = fmt.Errorf("program exceeds the kernel's maximum instruction count")

// maxLogGrowthAttempts bounds the verifier-log growth retry the
// teacher's own LoadCollection performs when the kernel indicates the
// supplied log buffer was undersized.
const maxLogGrowthAttempts = 4
