// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pgalloc allocates the machine's physical page frames.
//
// Physical memory is a single anonymous host mapping. Frame i lives at
// physical address Base + i*PageSize; the kernel addresses a frame's bytes
// through Bytes, which plays the role of the kernel's direct map. Free frames
// form a singly-linked list threaded through their first eight bytes.
package pgalloc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/bitmap"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/metric"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
	"golang.org/x/sys/unix"
)

// Base is the physical address of frame 0, the kernel load address.
const Base = 0x80000

// junk is written over every freed frame so that use-after-free reads
// garbage instead of stale data.
const junk = 0x01

var (
	framesAllocated = metric.MustCreateNewUint64Metric("/pgalloc/frames_allocated", "Number of physical frames handed out.")
	framesFreed     = metric.MustCreateNewUint64Metric("/pgalloc/frames_freed", "Number of physical frames returned to the free list.")
	allocFailures   = metric.MustCreateNewUint64Metric("/pgalloc/alloc_failures", "Number of allocations that found the free list empty.")

	oomLog = log.BasicRateLimitedLogger(time.Second)
)

// Options configures New.
type Options struct {
	// Frames is the total number of physical frames.
	Frames int

	// Reserved is the number of frames at the bottom of memory occupied by
	// the kernel image. They are never handed out and may not be freed.
	Reserved int
}

// Allocator is the physical frame allocator.
type Allocator struct {
	// mem is the host mapping backing physical memory. It is immutable.
	mem []byte

	// kernEnd and top bound the allocatable physical range. They are
	// immutable.
	kernEnd uint64
	top     uint64

	// mu protects the fields below.
	mu sync.SpinLock

	// head is the physical address of the first free frame, or 0.
	head uint64

	// free tracks which frames are on the free list.
	free bitmap.Bitmap
}

// New maps physical memory and places every frame above the kernel image on
// the free list.
func New(opts Options) (*Allocator, error) {
	if opts.Frames <= 0 || opts.Reserved < 0 || opts.Reserved >= opts.Frames {
		return nil, fmt.Errorf("invalid frame layout: %d frames, %d reserved", opts.Frames, opts.Reserved)
	}
	mem, err := unix.Mmap(-1, 0, opts.Frames*hostarch.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mapping %d frames of physical memory: %w", opts.Frames, err)
	}
	a := &Allocator{
		mem:     mem,
		kernEnd: Base + uint64(opts.Reserved)*hostarch.PageSize,
		top:     Base + uint64(opts.Frames)*hostarch.PageSize,
		free:    bitmap.New(uint32(opts.Frames)),
	}
	a.mu.Init("kmem")
	a.freeRange(a.kernEnd, a.top)
	log.Infof("Physical memory: %d frames [%#x, %#x), %d reserved", opts.Frames, Base, a.top, opts.Reserved)
	return a, nil
}

// freeRange frees every whole frame in [start, end). Frames are pushed from
// the top down so that the lowest frame ends up at the head of the list.
func (a *Allocator) freeRange(start, end uint64) {
	start, _ = hostarch.PageRoundUp(start)
	for pa := hostarch.PageRoundDown(end); pa > start; {
		pa -= hostarch.PageSize
		a.Free(pa)
	}
}

// Release unmaps physical memory. The Allocator must not be used afterwards.
func (a *Allocator) Release() error {
	return unix.Munmap(a.mem)
}

func (a *Allocator) index(pa uint64) uint32 {
	return uint32((pa - Base) / hostarch.PageSize)
}

// Bytes returns the kernel's view of the frame at pa.
func (a *Allocator) Bytes(pa uint64) []byte {
	if pa%hostarch.PageSize != 0 || pa < Base || pa >= a.top {
		panic(fmt.Sprintf("Bytes: bad physical address %#x", pa))
	}
	off := pa - Base
	return a.mem[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// Allocate removes one frame from the free list, zeroes it and returns its
// physical address. It returns false if no frame is free.
func (a *Allocator) Allocate() (uint64, bool) {
	a.mu.Lock(nil)
	pa := a.head
	if pa == 0 {
		a.mu.Unlock(nil)
		allocFailures.Increment()
		oomLog.Warningf("Out of physical memory")
		return 0, false
	}
	b := a.Bytes(pa)
	a.head = binary.LittleEndian.Uint64(b)
	a.free.Remove(a.index(pa))
	a.mu.Unlock(nil)

	clear(b)
	framesAllocated.Increment()
	return pa, true
}

// Free returns the frame at pa to the free list.
//
// Freeing a misaligned address, an address inside the kernel image or past
// the top of memory, or a frame that is already free is a fatal error.
func (a *Allocator) Free(pa uint64) {
	if pa%hostarch.PageSize != 0 || pa < a.kernEnd || pa >= a.top {
		panic(fmt.Sprintf("kfree: bad physical address %#x (kernel end %#x, top %#x)", pa, a.kernEnd, a.top))
	}
	b := a.Bytes(pa)
	// Junk everything but the link word outside the lock; a double free
	// must not break the list it is detected against.
	for i := 8; i < len(b); i++ {
		b[i] = junk
	}

	a.mu.Lock(nil)
	if !a.free.Add(a.index(pa)) {
		a.mu.Unlock(nil)
		panic(fmt.Sprintf("kfree: frame %#x freed twice", pa))
	}
	binary.LittleEndian.PutUint64(b, a.head)
	a.head = pa
	a.mu.Unlock(nil)
	framesFreed.Increment()
}

// FreeCount returns the number of free frames.
func (a *Allocator) FreeCount() int {
	a.mu.Lock(nil)
	defer a.mu.Unlock(nil)
	return int(a.free.Count())
}

// TotalFrames returns the number of allocatable frames.
func (a *Allocator) TotalFrames() int {
	return int((a.top - a.kernEnd) / hostarch.PageSize)
}
