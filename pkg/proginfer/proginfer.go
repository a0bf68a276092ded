// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package proginfer infers a program's kernel type and expected attach
// type from its ELF section name, the way the teacher's
// classifyProgramTypes infers a type from a recognized function name.
package proginfer

import (
	"strings"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

// Inferred is one (type, attach type) pair.
type Inferred struct {
	Type           kernel.ProgType
	ExpectedAttach kernel.AttachType
}

type entry struct {
	prefix string
	result Inferred
}

// table is ordered longest/most-specific prefix first so that
// "cgroup/connect6" is matched before a hypothetical bare "cgroup/".
var table = []entry{
	{"cgroup/connect4", Inferred{kernel.ProgTypeCgroupSockAddr, kernel.AttachCgroupInetConnect4}},
	{"cgroup/connect6", Inferred{kernel.ProgTypeCgroupSockAddr, kernel.AttachCgroupInetConnect6}},
	{"cgroup_skb/", Inferred{kernel.ProgTypeCgroupSKB, kernel.AttachNone}},
	{"kprobe/", Inferred{kernel.ProgTypeKprobe, kernel.AttachNone}},
	{"kretprobe/", Inferred{kernel.ProgTypeKprobe, kernel.AttachNone}},
	{"tracepoint/", Inferred{kernel.ProgTypeTracepoint, kernel.AttachNone}},
	{"raw_tracepoint/", Inferred{kernel.ProgTypeRawTracepoint, kernel.AttachNone}},
	{"xdp/", Inferred{kernel.ProgTypeXDP, kernel.AttachNone}},
	{"xdp", Inferred{kernel.ProgTypeXDP, kernel.AttachNone}},
	{"perf_event/", Inferred{kernel.ProgTypePerfEvent, kernel.AttachNone}},
	{"socket", Inferred{kernel.ProgTypeSocketFilter, kernel.AttachNone}},
	{"classifier", Inferred{kernel.ProgTypeSchedCLS, kernel.AttachNone}},
	{"action", Inferred{kernel.ProgTypeSchedACT, kernel.AttachNone}},
}

// Infer matches sectionName against the known table of prefixes. The
// second return value is false when nothing in the table matches.
func Infer(sectionName string) (Inferred, bool) {
	for _, e := range table {
		if strings.HasPrefix(sectionName, e.prefix) {
			return e.result, true
		}
	}
	return Inferred{}, false
}

// RequiresKernelVersion reports whether t requires a nonzero
// kern_version to be present on the object (spec.md §4.10).
func RequiresKernelVersion(t kernel.ProgType) bool {
	switch t {
	case kernel.ProgTypeKprobe, kernel.ProgTypeTracepoint, kernel.ProgTypeRawTracepoint,
		kernel.ProgTypePerfEvent, kernel.ProgTypeUnspec:
		return true
	default:
		return false
	}
}
