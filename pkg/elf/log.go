// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package elf

import "github.com/kernmod/bpfloader/pkg/logging"

var logrusSubsystem = logging.Subsystem("elf")
