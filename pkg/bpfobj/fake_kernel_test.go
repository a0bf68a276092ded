// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"fmt"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

// fakeKernel is an in-memory stand-in for the real bpf(2) syscall,
// used to exercise the pipeline's map-creation, relocation, and
// program-load stages without a Linux kernel.
type fakeKernel struct {
	nextFD int

	failCreateNames    map[string]int // remaining failures before success, keyed by map name
	failCreateWithBTF  map[string]bool
	closedFDs          []int
	createdMaps        map[int]kernel.CreateMapRequest
	loadedPrograms     []kernel.LoadProgramRequest
	failLoadNames      map[string]error
	verifierLogNames   map[string]string
	updateCalls        []updateCall
	infoByFD           map[int]kernel.ObjectInfo
}

type updateCall struct {
	mapFD      int
	key, value []byte
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		nextFD:         100,
		failCreateNames: map[string]int{},
		failCreateWithBTF: map[string]bool{},
		createdMaps:    map[int]kernel.CreateMapRequest{},
		failLoadNames:  map[string]error{},
		verifierLogNames: map[string]string{},
		infoByFD:       map[int]kernel.ObjectInfo{},
	}
}

func (f *fakeKernel) alloc() int {
	f.nextFD++
	return f.nextFD
}

func (f *fakeKernel) CreateMap(req kernel.CreateMapRequest) (int, error) {
	if f.failCreateWithBTF[req.Name] && req.BTFFd != 0 {
		return -1, fmt.Errorf("fake: kernel too old for BTF on map %q", req.Name)
	}
	if n, ok := f.failCreateNames[req.Name]; ok && n > 0 {
		f.failCreateNames[req.Name] = n - 1
		return -1, fmt.Errorf("fake: forced create failure for %q", req.Name)
	}
	fd := f.alloc()
	f.createdMaps[fd] = req
	return fd, nil
}

func (f *fakeKernel) LoadProgram(req kernel.LoadProgramRequest) (kernel.LoadResult, error) {
	f.loadedPrograms = append(f.loadedPrograms, req)
	if logMsg, ok := f.verifierLogNames[req.Name]; ok {
		return kernel.LoadResult{Log: logMsg}, fmt.Errorf("fake: verifier rejected %q", req.Name)
	}
	if err, ok := f.failLoadNames[req.Name]; ok {
		return kernel.LoadResult{}, err
	}
	return kernel.LoadResult{FD: f.alloc()}, nil
}

func (f *fakeKernel) Pin(fd int, path string) error { return nil }

func (f *fakeKernel) ObjectInfoByFD(fd int) (kernel.ObjectInfo, error) {
	info, ok := f.infoByFD[fd]
	if !ok {
		return kernel.ObjectInfo{}, fmt.Errorf("fake: no info for fd %d", fd)
	}
	return info, nil
}

func (f *fakeKernel) LoadBTF(raw []byte) (int, error) { return f.alloc(), nil }

func (f *fakeKernel) UpdateMapElement(mapFD int, key, value []byte) error {
	f.updateCalls = append(f.updateCalls, updateCall{mapFD: mapFD, key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (f *fakeKernel) DupCloexec(fd int) (int, error) { return f.alloc(), nil }

func (f *fakeKernel) Close(fd int) error {
	f.closedFDs = append(f.closedFDs, fd)
	return nil
}
