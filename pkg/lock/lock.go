// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

//go:build !lockdebug

// Package lock provides the mutex types used across the loader. By
// default these are thin aliases over sync's primitives; building with
// the lockdebug tag swaps in github.com/sasha-s/go-deadlock so that
// deadlocks in the process-wide Object registry or on an Object's own
// lock are reported instead of hanging silently.
package lock

import "sync"

// Mutex is a plain mutual-exclusion lock.
type Mutex struct {
	sync.Mutex
}

// RWMutex is the read/write counterpart of Mutex.
type RWMutex struct {
	sync.RWMutex
}
