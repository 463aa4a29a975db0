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

// Package pagetables implements the four-level translation tables of a
// 48-bit virtual address space with 4KB pages.
//
// Table nodes are physical frames holding 512 descriptors. Descriptors use
// the AArch64 layout: a valid bit, a table/page bit, the access permission
// bits and the access flag, with the output address in bits 12..47.
package pagetables

import (
	"fmt"
	"unsafe"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
)

// Descriptor bits.
const (
	// Present marks a valid descriptor.
	Present PTE = 1 << 0

	// Table marks a table descriptor at levels 0-2 and a page descriptor
	// at level 3.
	Table PTE = 1 << 1

	// User grants access from user mode (AP[1]).
	User PTE = 1 << 6

	// ReadOnly forbids writes (AP[2]).
	ReadOnly PTE = 1 << 7

	// Accessed is the access flag. Leaves are installed with it set.
	Accessed PTE = 1 << 10

	// permMask covers the bits a caller may pass to MapRange.
	permMask = User | ReadOnly

	addressMask PTE = 0x0000_ffff_ffff_f000
)

// Level geometry.
const (
	// Levels is the depth of the tree.
	Levels = 4

	pteShift = 12
	pmdShift = 21
	pudShift = 30
	pgdShift = 39

	pteSize = 1 << pteShift
	pmdSize = 1 << pmdShift
	pudSize = 1 << pudShift
	pgdSize = 1 << pgdShift

	indexMask = hostarch.EntriesPerPage - 1
)

// shifts holds the index shift of each level, root first.
var shifts = [Levels]uint{pgdShift, pudShift, pmdShift, pteShift}

// PTE is a translation descriptor.
type PTE uint64

// PTEs is one table node.
type PTEs [hostarch.EntriesPerPage]PTE

// Allocator provides the frames that back table nodes and user pages.
type Allocator interface {
	// Allocate returns the physical address of a zeroed frame, or false
	// if memory is exhausted.
	Allocate() (uint64, bool)

	// Free releases the frame at pa.
	Free(pa uint64)

	// Bytes returns the kernel's view of the frame at pa.
	Bytes(pa uint64) []byte
}

// nodeAt returns the table node stored in the frame at pa.
func nodeAt(a Allocator, pa uint64) *PTEs {
	b := a.Bytes(pa)
	if len(b) != hostarch.PageSize {
		panic(fmt.Sprintf("frame %#x has %d bytes", pa, len(b)))
	}
	return (*PTEs)(unsafe.Pointer(&b[0]))
}

// Valid returns true iff the descriptor is present.
func (p *PTE) Valid() bool {
	return *p&Present != 0
}

// Address returns the output physical address.
func (p *PTE) Address() uint64 {
	return uint64(*p & addressMask)
}

// User returns true iff the descriptor permits user access.
func (p *PTE) User() bool {
	return *p&User != 0
}

// Writeable returns true iff the descriptor permits writes.
func (p *PTE) Writeable() bool {
	return *p&ReadOnly == 0
}

// Perms returns the permission bits of the descriptor.
func (p *PTE) Perms() PTE {
	return *p & permMask
}

// Set installs a page descriptor for pa with the given permissions.
func (p *PTE) Set(pa uint64, perm PTE) {
	*p = PTE(pa)&addressMask | perm&permMask | Present | Table | Accessed
}

// SetUser sets or clears the user bit, leaving the rest of the descriptor.
func (p *PTE) SetUser(user bool) {
	if user {
		*p |= User
	} else {
		*p &^= User
	}
}

// Clear zeroes the descriptor.
func (p *PTE) Clear() {
	*p = 0
}

// setTable installs a table descriptor pointing at the node at pa.
func (p *PTE) setTable(pa uint64) {
	*p = PTE(pa)&addressMask | Present | Table
}

// String implements fmt.Stringer.
func (p *PTE) String() string {
	if !p.Valid() {
		return "none"
	}
	perm := "rw"
	if !p.Writeable() {
		perm = "r-"
	}
	if p.User() {
		perm += "u"
	} else {
		perm += "-"
	}
	return fmt.Sprintf("%#x %s", p.Address(), perm)
}
