// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Command bpfloadctl is a thin operator CLI around pkg/bpfobj: load an
// ELF bytecode object against the running kernel, or inspect one
// offline without touching the kernel at all.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
