// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package testutils provides the skip-guards the test suites use to
// distinguish pure-logic tests (always run) from tests that require a
// real Linux kernel capable of bpf(2) (opt-in via an environment
// variable, matching the teacher's privileged-test convention).
package testutils

import (
	"os"
	"runtime"
	"testing"
)

// PrivilegedTest skips t unless both the host is Linux and
// BPFLOADER_PRIVILEGED_TESTS=1 is set in the environment, mirroring
// the teacher's testutils.PrivilegedTest gate for tests that touch
// real kernel resources.
func PrivilegedTest(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skipf("skipping privileged test on %s", runtime.GOOS)
	}
	if os.Getenv("BPFLOADER_PRIVILEGED_TESTS") != "1" {
		t.Skip("skipping privileged test; set BPFLOADER_PRIVILEGED_TESTS=1 to run")
	}
}
