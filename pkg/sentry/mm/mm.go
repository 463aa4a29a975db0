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

// Package mm manages process address spaces.
//
// An AddressSpace is a page-table tree whose lower half maps a process's
// memory: [0, size) holds the program image, heap and stack, all with 4KB
// pages. Every present user leaf owns its frame exclusively.
package mm

import (
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/ring0/pagetables"
)

// MaxUserSize is the ceiling on the size of an address space.
const MaxUserSize = 1 << 30

// AddressSpace is one process's translation tree.
//
// AddressSpace is not synchronized; it is owned by a single process and
// mutated only by that process or by the kernel while the process cannot
// run.
type AddressSpace struct {
	alloc pagetables.Allocator

	// root is the physical address of the level 0 table.
	root uint64
}

// New returns an empty address space.
func New(alloc pagetables.Allocator) (*AddressSpace, error) {
	root, ok := alloc.Allocate()
	if !ok {
		return nil, linuxerr.ENOMEM
	}
	return &AddressSpace{alloc: alloc, root: root}, nil
}

// Root returns the physical address of the root table, the value installed
// in the translation base register.
func (as *AddressSpace) Root() uint64 {
	return as.root
}

// Init maps image at address 0 of an empty address space, user read-write,
// and returns the mapped size.
func (as *AddressSpace) Init(image []byte) (uint64, error) {
	size, ok := hostarch.PageRoundUp(uint64(len(image)))
	if !ok || size > MaxUserSize {
		return 0, linuxerr.ENOMEM
	}
	if size == 0 {
		size = hostarch.PageSize
	}
	if _, err := as.Grow(0, size); err != nil {
		return 0, err
	}
	if err := as.Load(0, image); err != nil {
		panic(fmt.Sprintf("uvm_init: loading freshly mapped image: %v", err))
	}
	return size, nil
}

// Release frees every frame of the address space, including its tables.
//
// Precondition: the address space is not installed on any core.
func (as *AddressSpace) Release() {
	pagetables.Free(as.alloc, as.root)
	as.root = 0
}

// Mapping describes one present user page.
type Mapping struct {
	Start     hostarch.Addr
	Writeable bool
}

// Mappings returns every present user page in ascending order.
func (as *AddressSpace) Mappings() []Mapping {
	var ms []Mapping
	pagetables.Visit(as.alloc, as.root, func(va hostarch.Addr, pte *pagetables.PTE) bool {
		if pte.User() {
			ms = append(ms, Mapping{Start: va, Writeable: pte.Writeable()})
		}
		return true
	})
	return ms
}
