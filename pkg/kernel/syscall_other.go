// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build !linux

package kernel

import "fmt"

type unsupported struct{}

// NewSyscall returns a Bpf implementation that rejects every call: the
// bpf(2) syscall only exists on Linux.
func NewSyscall() Bpf { return unsupported{} }

var errUnsupported = fmt.Errorf("bpf(2) syscall is only available on linux")

func (unsupported) CreateMap(CreateMapRequest) (int, error)          { return -1, errUnsupported }
func (unsupported) LoadProgram(LoadProgramRequest) (LoadResult, error) { return LoadResult{}, errUnsupported }
func (unsupported) Pin(int, string) error                            { return errUnsupported }
func (unsupported) ObjectInfoByFD(int) (ObjectInfo, error)            { return ObjectInfo{}, errUnsupported }
func (unsupported) LoadBTF([]byte) (int, error)                      { return -1, errUnsupported }
func (unsupported) UpdateMapElement(int, []byte, []byte) error       { return errUnsupported }
func (unsupported) DupCloexec(int) (int, error)                      { return -1, errUnsupported }
func (unsupported) Close(int) error                                  { return nil }

// Statfs is unavailable outside Linux.
func Statfs(path string) (int64, error) { return 0, errUnsupported }

// BPFFSMagic is the magic number of the BPF filesystem (from
// linux/magic.h: BPF_FS_MAGIC), kept here for cross-platform callers.
const BPFFSMagic = 0xcafe4a11
