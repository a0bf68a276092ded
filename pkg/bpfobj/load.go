// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfobj

import (
	"errors"
	"fmt"

	"github.com/kernmod/bpfloader/pkg/bpferr"
	"github.com/kernmod/bpfloader/pkg/kernel"
	"github.com/kernmod/bpfloader/pkg/metrics"
)

// loadAll implements spec.md §4.7: submits every non-storage Program
// to the kernel, in order, skipping .text when it has been inlined
// into every caller.
func (o *Object) loadAll(k kernel.Bpf) error {
	for _, p := range o.Programs {
		if p.isText() && o.hasPseudoCalls {
			continue
		}
		if err := o.validateKernVersion(p); err != nil {
			return err
		}
		if err := o.loadProgram(k, p); err != nil {
			return err
		}
	}
	o.loaded = true
	return nil
}

func (o *Object) loadProgram(k kernel.Bpf, p *Program) error {
	if p.preProcessor == nil && p.instances.NR == -1 {
		p.instances = Instances{NR: 1, FDs: []int32{-1}}
	}

	if p.preProcessor == nil {
		fd, err := o.submitOne(k, p, p.insns.Marshal())
		if err != nil {
			return err
		}
		p.instances.FDs[0] = int32(fd)
		metrics.ProgramsLoaded.Inc()
		p.insns = nil
		return nil
	}

	p.instances = Instances{NR: p.instanceCount, FDs: make([]int32, p.instanceCount)}
	for i := 0; i < p.instanceCount; i++ {
		newInsns, skip := p.preProcessor(i, p.insns.Marshal())
		if skip || newInsns == nil {
			p.instances.FDs[i] = -1
			continue
		}
		fd, err := o.submitOne(k, p, newInsns)
		if err != nil {
			return err
		}
		p.instances.FDs[i] = int32(fd)
		metrics.ProgramsLoaded.Inc()
	}
	p.insns = nil
	return nil
}

// submitOne builds and submits one LoadProgramRequest, applying
// spec.md §4.7's error-recovery heuristic on failure.
func (o *Object) submitOne(k kernel.Bpf, p *Program, insns []byte) (int, error) {
	req := kernel.LoadProgramRequest{
		Type:           p.Type,
		ExpectedAttach: p.ExpectedAttach,
		Name:           p.name,
		Instructions:   insns,
		License:        o.license,
		KernVersion:    o.kernVersion,
		IfIndex:        p.IfIndex,
	}

	res, err := k.LoadProgram(req)
	if err == nil {
		return res.FD, nil
	}

	if res.Log != "" {
		metrics.VerifierLogBytes.Observe(float64(len(res.Log)))
		metrics.ProgramLoadFailures.WithLabelValues(bpferr.Verify.String()).Inc()
		return 0, bpferr.New(bpferr.Verify, o.origin, err).WithSection(p.sectionName).WithLog(res.Log)
	}
	if errors.Is(err, kernel.ErrTooBig) {
		metrics.ProgramLoadFailures.WithLabelValues(bpferr.Prog2Big.String()).Inc()
		return 0, bpferr.New(bpferr.Prog2Big, o.origin, err).WithSection(p.sectionName)
	}

	probeReq := req
	probeReq.Type = kernel.ProgTypeKprobe
	if probeRes, probeErr := k.LoadProgram(probeReq); probeErr == nil {
		if closeErr := k.Close(probeRes.FD); closeErr != nil {
			return 0, bpferr.New(bpferr.ProgType, o.origin, fmt.Errorf("program type %v rejected but KPROBE would have succeeded: %w (closing probe fd: %v)", p.Type, err, closeErr)).WithSection(p.sectionName)
		}
		metrics.ProgramLoadFailures.WithLabelValues(bpferr.ProgType.String()).Inc()
		return 0, bpferr.New(bpferr.ProgType, o.origin, fmt.Errorf("program type %v rejected but KPROBE would have succeeded: %w", p.Type, err)).WithSection(p.sectionName)
	}

	metrics.ProgramLoadFailures.WithLabelValues(bpferr.KVer.String()).Inc()
	return 0, bpferr.New(bpferr.KVer, o.origin, fmt.Errorf("likely kernel-version mismatch: %w", err)).WithSection(p.sectionName)
}
