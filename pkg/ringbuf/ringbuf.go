// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package ringbuf is a standalone consumer for the kernel's
// BPF_MAP_TYPE_RINGBUF events (spec.md §1's "ring-buffer consumer for
// perf events... with no dependency on the loader"). It never imports
// pkg/bpfobj: callers pass it a map descriptor obtained however they
// like, including one surfaced by (*bpfobj.Map).FD after Load.
package ringbuf

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/kernmod/bpfloader/pkg/logging"
)

var log = logging.Subsystem("ringbuf")

// recordHeaderLen is sizeof(struct bpf_ringbuf_hdr): a 4-byte length
// word (whose top two bits are the busy/discard flags) followed by a
// 4-byte padding word reserved by the kernel.
const recordHeaderLen = 8

const (
	lenBusyBit    = uint32(1) << 31
	lenDiscardBit = uint32(1) << 30
	lenMask       = ^(lenBusyBit | lenDiscardBit)
)

// Reader consumes records from one kernel ring buffer map. It owns two
// mmap regions: the consumer/producer position page pair, and the
// data pages themselves.
type Reader struct {
	fd       int
	pageSize int
	dataSize int // always a power of two, per BPF_MAP_TYPE_RINGBUF's constraint

	consumerMeta []byte // mmap of the single read/write consumer-position page
	producerMeta []byte // mmap of the read-only producer-position + data pages

	epollFD int

	// sem bounds Read to one in-flight dequeue at a time: the consumer
	// position is shared, unsynchronized kernel state, and concurrent
	// readers would race advancing it.
	sem *semaphore.Weighted

	closed int32
}

// NewReader maps a BPF_MAP_TYPE_RINGBUF map's pages and prepares an
// epoll instance to wait for new data. dataSize must match the map's
// max_entries (the kernel requires it to be a power-of-two multiple of
// the page size).
func NewReader(mapFD, dataSize int) (*Reader, error) {
	pageSize := unix.Getpagesize()
	if dataSize <= 0 || dataSize%pageSize != 0 {
		return nil, fmt.Errorf("ringbuf: data size %d is not a positive multiple of the page size", dataSize)
	}

	consumerMeta, err := unix.Mmap(mapFD, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ringbuf: mmap consumer page: %w", err)
	}

	// The producer page, followed immediately by two virtual copies of
	// the data area so that a record never needs wraparound-aware
	// copying, is mapped read-only starting at offset pageSize.
	producerMeta, err := unix.Mmap(mapFD, int64(pageSize), pageSize+2*dataSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(consumerMeta)
		return nil, fmt.Errorf("ringbuf: mmap data pages: %w", err)
	}

	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		_ = unix.Munmap(consumerMeta)
		_ = unix.Munmap(producerMeta)
		return nil, fmt.Errorf("ringbuf: epoll_create1: %w", err)
	}
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(mapFD)}
	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, mapFD, &event); err != nil {
		_ = unix.Close(epollFD)
		_ = unix.Munmap(consumerMeta)
		_ = unix.Munmap(producerMeta)
		return nil, fmt.Errorf("ringbuf: epoll_ctl: %w", err)
	}

	return &Reader{
		fd:           mapFD,
		pageSize:     pageSize,
		dataSize:     dataSize,
		consumerMeta: consumerMeta,
		producerMeta: producerMeta,
		epollFD:      epollFD,
		sem:          semaphore.NewWeighted(1),
	}, nil
}

func (r *Reader) consumerPos() *uint64 {
	return (*uint64)(unsafe.Pointer(&r.consumerMeta[0]))
}

func (r *Reader) producerPos() *uint64 {
	return (*uint64)(unsafe.Pointer(&r.producerMeta[0]))
}

// Read blocks until one record is available, ctx is canceled, or the
// Reader is closed, and returns the record's payload (header stripped,
// padding excluded). Discarded records are skipped transparently.
func (r *Reader) Read(ctx context.Context) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	for {
		if atomic.LoadInt32(&r.closed) != 0 {
			return nil, fmt.Errorf("ringbuf: reader closed")
		}

		rec, ok, err := r.tryDequeue()
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}

		if err := r.waitForData(ctx); err != nil {
			return nil, err
		}
	}
}

// tryDequeue pops the next non-discarded record, or (nil, false, nil)
// if the buffer is caught up to the producer.
func (r *Reader) tryDequeue() ([]byte, bool, error) {
	cons := atomic.LoadUint64(r.consumerPos())
	prod := atomic.LoadUint64(r.producerPos())

	for cons < prod {
		off := cons % uint64(r.dataSize)
		hdr := binary.LittleEndian.Uint32(r.dataAt(off, recordHeaderLen))
		if hdr&lenBusyBit != 0 {
			// Producer has reserved but not yet committed this slot.
			return nil, false, nil
		}

		length := hdr & lenMask
		recordLen := recordHeaderLen + roundUp8(int(length))
		discard := hdr&lenDiscardBit != 0

		payload := r.dataAt(off+recordHeaderLen, int(length))
		cons += uint64(recordLen)
		atomic.StoreUint64(r.consumerPos(), cons)

		if discard {
			continue
		}
		out := make([]byte, length)
		copy(out, payload)
		return out, true, nil
	}
	return nil, false, nil
}

// dataAt returns a slice view into the doubled data mapping, so a
// record that straddles the physical wraparound point still reads
// contiguously.
func (r *Reader) dataAt(off uint64, n int) []byte {
	start := r.pageSize + int(off)
	return r.producerMeta[start : start+n]
}

func roundUp8(n int) int { return (n + 7) &^ 7 }

func (r *Reader) waitForData(ctx context.Context) error {
	timeoutMs := -1
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeoutMs = int(remaining.Milliseconds())
		} else {
			return context.DeadlineExceeded
		}
	}

	events := make([]unix.EpollEvent, 1)
	for {
		n, err := unix.EpollWait(r.epollFD, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("ringbuf: epoll_wait: %w", err)
		}
		if n == 0 {
			return context.DeadlineExceeded
		}
		return nil
	}
}

// Close releases the epoll instance and both mmap regions. It is safe
// to call concurrently with a blocked Read, which will return an error
// once woken.
func (r *Reader) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}
	var firstErr error
	if err := unix.Close(r.epollFD); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Munmap(r.consumerMeta); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Munmap(r.producerMeta); err != nil && firstErr == nil {
		firstErr = err
	}
	log.WithField("fd", r.fd).Debug("ring buffer reader closed")
	return firstErr
}
