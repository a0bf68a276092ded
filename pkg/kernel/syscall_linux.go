// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build linux

package kernel

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// bpf commands, matching the kernel's enum bpf_cmd.
const (
	cmdMapCreate        = 0
	cmdMapLookupElem    = 1
	cmdMapUpdateElem    = 2
	cmdMapDeleteElem    = 3
	cmdProgLoad         = 5
	cmdObjPin           = 6
	cmdObjGet           = 7
	cmdObjGetInfoByFD   = 15
	cmdBTFLoad          = 18
)

const objNameLen = 16

// attrMapCreate mirrors the BPF_MAP_CREATE branch of union bpf_attr.
type attrMapCreate struct {
	MapType       uint32
	KeySize       uint32
	ValueSize     uint32
	MaxEntries    uint32
	MapFlags      uint32
	InnerMapFD    uint32
	NumaNode      uint32
	MapName       [objNameLen]byte
	MapIfIndex    uint32
	BTFFd         uint32
	BTFKeyTypeID  uint32
	BTFValueTypeID uint32
}

// attrProgLoad mirrors the BPF_PROG_LOAD branch of union bpf_attr.
type attrProgLoad struct {
	ProgType           uint32
	InsnCnt            uint32
	Insns              uint64
	License            uint64
	LogLevel           uint32
	LogSize            uint32
	LogBuf             uint64
	KernVersion        uint32
	ProgFlags          uint32
	ProgName           [objNameLen]byte
	ProgIfIndex        uint32
	ExpectedAttachType uint32
}

// attrObjPin mirrors the BPF_OBJ_PIN branch of union bpf_attr.
type attrObjPin struct {
	PathName uint64
	BpfFd    uint32
	FileFlags uint32
}

// attrMapUpdateElem mirrors the BPF_MAP_UPDATE_ELEM branch.
type attrMapUpdateElem struct {
	MapFD uint32
	_pad  uint32
	Key   uint64
	Value uint64
	Flags uint64
}

// attrObjGetInfo mirrors the BPF_OBJ_GET_INFO_BY_FD branch.
type attrObjGetInfo struct {
	BpfFd   uint32
	InfoLen uint32
	Info    uint64
}

// attrBTFLoad mirrors the BPF_BTF_LOAD branch.
type attrBTFLoad struct {
	BTF       uint64
	BTFLogBuf uint64
	BTFSize   uint32
	BTFLogSize uint32
	BTFLogLevel uint32
}

// mapInfo mirrors the subset of struct bpf_map_info the loader reads
// back during descriptor reuse.
type mapInfo struct {
	Type          uint32
	ID            uint32
	KeySize       uint32
	ValueSize     uint32
	MaxEntries    uint32
	MapFlags      uint32
	Name          [objNameLen]byte
	IfIndex       uint32
	BTFVmlinuxID  uint32
	NetnsDev      uint64
	NetnsIno      uint64
	BTFID         uint32
	BTFKeyTypeID  uint32
	BTFValueTypeID uint32
}

func bpfSyscall(cmd int, attr unsafe.Pointer, size uintptr) (uintptr, error) {
	r1, _, errno := unix.Syscall(unix.SYS_BPF, uintptr(cmd), uintptr(attr), size)
	if errno != 0 {
		return 0, errno
	}
	return r1, nil
}

// Syscall is the real, kernel-backed implementation of the Bpf capability.
type Syscall struct{}

// NewSyscall returns the real bpf(2) syscall backed implementation.
func NewSyscall() Bpf { return Syscall{} }

func nameBytes(s string) (out [objNameLen]byte) {
	n := copy(out[:], s)
	_ = n
	return out
}

func (Syscall) CreateMap(req CreateMapRequest) (int, error) {
	attr := attrMapCreate{
		MapType:        uint32(req.Def.Type),
		KeySize:        req.Def.KeySize,
		ValueSize:      req.Def.ValueSize,
		MaxEntries:     req.Def.MaxEntries,
		MapFlags:       req.Def.Flags,
		MapName:        nameBytes(req.Name),
		MapIfIndex:     req.IfIndex,
		BTFFd:          uint32(req.BTFFd),
		BTFKeyTypeID:   req.BTFKeyType,
		BTFValueTypeID: req.BTFValType,
	}
	r, err := bpfSyscall(cmdMapCreate, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return -1, fmt.Errorf("create map %q: %w", req.Name, err)
	}
	return int(r), nil
}

func (Syscall) LoadProgram(req LoadProgramRequest) (LoadResult, error) {
	logSize := req.LogSize
	if logSize == 0 {
		logSize = 1 << 20 // 1MiB default, matching the teacher's LoadCollection
	}

	var lastErr error
	var lastLog string
	for attempt := 0; attempt < maxLogGrowthAttempts; attempt++ {
		logBuf := make([]byte, logSize)
		license := append([]byte(req.License), 0)

		attr := attrProgLoad{
			ProgType:           uint32(req.Type),
			InsnCnt:            uint32(len(req.Instructions) / 8),
			Insns:              uint64(uintptr(unsafe.Pointer(&req.Instructions[0]))),
			License:            uint64(uintptr(unsafe.Pointer(&license[0]))),
			LogLevel:           1,
			LogSize:            uint32(len(logBuf)),
			LogBuf:             uint64(uintptr(unsafe.Pointer(&logBuf[0]))),
			KernVersion:        req.KernVersion,
			ProgName:           nameBytes(req.Name),
			ProgIfIndex:        req.IfIndex,
			ExpectedAttachType: uint32(req.ExpectedAttach),
		}

		r, err := bpfSyscall(cmdProgLoad, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
		logStr := trimNUL(logBuf)
		if err == nil {
			return LoadResult{FD: int(r), Log: logStr}, nil
		}

		lastErr = err
		if errno, ok := err.(unix.Errno); ok && errno == unix.ENOSPC && logStr != "" {
			// Verifier log didn't fit; grow and retry, mirroring the
			// teacher's LoadCollection doubling behavior.
			lastLog = logStr
			logSize *= 2
			continue
		}
		return LoadResult{Log: logStr}, err
	}
	return LoadResult{Log: lastLog, LogFull: true}, lastErr
}

func (Syscall) Pin(fd int, path string) error {
	p := append([]byte(path), 0)
	attr := attrObjPin{
		PathName: uint64(uintptr(unsafe.Pointer(&p[0]))),
		BpfFd:    uint32(fd),
	}
	_, err := bpfSyscall(cmdObjPin, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return fmt.Errorf("pin fd %d at %s: %w", fd, path, err)
	}
	return nil
}

func (Syscall) ObjectInfoByFD(fd int) (ObjectInfo, error) {
	var mi mapInfo
	attr := attrObjGetInfo{
		BpfFd:   uint32(fd),
		InfoLen: uint32(unsafe.Sizeof(mi)),
		Info:    uint64(uintptr(unsafe.Pointer(&mi))),
	}
	_, err := bpfSyscall(cmdObjGetInfoByFD, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("object_info_by_fd(%d): %w", fd, err)
	}
	return ObjectInfo{
		Name:           trimNUL(mi.Name[:]),
		Type:           MapType(mi.Type),
		KeySize:        mi.KeySize,
		ValueSize:      mi.ValueSize,
		MaxEntries:     mi.MaxEntries,
		Flags:          mi.MapFlags,
		BTFKeyType:     mi.BTFKeyTypeID,
		BTFValType:     mi.BTFValueTypeID,
	}, nil
}

func (Syscall) LoadBTF(raw []byte) (int, error) {
	if len(raw) == 0 {
		return -1, fmt.Errorf("empty BTF blob")
	}
	logBuf := make([]byte, 64*1024)
	attr := attrBTFLoad{
		BTF:         uint64(uintptr(unsafe.Pointer(&raw[0]))),
		BTFLogBuf:   uint64(uintptr(unsafe.Pointer(&logBuf[0]))),
		BTFSize:     uint32(len(raw)),
		BTFLogSize:  uint32(len(logBuf)),
		BTFLogLevel: 1,
	}
	r, err := bpfSyscall(cmdBTFLoad, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return -1, fmt.Errorf("load BTF: %w: %s", err, trimNUL(logBuf))
	}
	return int(r), nil
}

func (Syscall) UpdateMapElement(mapFD int, key, value []byte) error {
	if len(key) == 0 || len(value) == 0 {
		return fmt.Errorf("update map %d: empty key or value", mapFD)
	}
	attr := attrMapUpdateElem{
		MapFD: uint32(mapFD),
		Key:   uint64(uintptr(unsafe.Pointer(&key[0]))),
		Value: uint64(uintptr(unsafe.Pointer(&value[0]))),
	}
	_, err := bpfSyscall(cmdMapUpdateElem, unsafe.Pointer(&attr), unsafe.Sizeof(attr))
	if err != nil {
		return fmt.Errorf("update map %d: %w", mapFD, err)
	}
	return nil
}

// DupCloexec implements spec.md §4.9's "duplicate the descriptor into
// a freshly-opened slot with close-on-exec set" via F_DUPFD_CLOEXEC,
// the standard replacement for the placeholder-open-of-"/" idiom older
// loaders used before that fcntl existed.
func (Syscall) DupCloexec(fd int) (int, error) {
	newFd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("dup fd %d: %w", fd, err)
	}
	return newFd, nil
}

func (Syscall) Close(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Statfs returns the filesystem magic of path, for comparison against
// BPFFSMagic (the dedicated kernel filesystem objects are pinned into).
func Statfs(path string) (magic int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Type), nil
}

// BPFFSMagic is the magic number of the BPF filesystem (from
// linux/magic.h: BPF_FS_MAGIC).
const BPFFSMagic = 0xcafe4a11
