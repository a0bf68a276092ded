// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build lockdebug

package lock

import "github.com/sasha-s/go-deadlock"

// Mutex is a mutex that, under the lockdebug build tag, detects and
// reports potential deadlocks instead of hanging silently.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is the read/write counterpart of Mutex.
type RWMutex struct {
	deadlock.RWMutex
}
