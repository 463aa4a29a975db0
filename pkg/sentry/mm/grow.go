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

package mm

import (
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/cleanup"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/ring0/pagetables"
)

// Grow maps zeroed user read-write pages so that the address space covers
// [0, newSize) and returns newSize. If newSize <= oldSize, it returns oldSize
// unchanged.
//
// On failure every page mapped by this call is unmapped and freed again,
// along with the table nodes left empty, and the address space is as it was.
func (as *AddressSpace) Grow(oldSize, newSize uint64) (uint64, error) {
	if newSize > MaxUserSize {
		return 0, linuxerr.ENOMEM
	}
	if newSize <= oldSize {
		return oldSize, nil
	}

	start, _ := hostarch.PageRoundUp(oldSize)
	cur := start
	cu := cleanup.Make(func() {
		as.Shrink(cur, start)
		pagetables.Prune(as.alloc, as.root)
	})
	defer cu.Clean()

	for ; cur < newSize; cur += hostarch.PageSize {
		pa, ok := as.alloc.Allocate()
		if !ok {
			log.Debugf("Grow [%#x, %#x): out of memory at %#x", oldSize, newSize, cur)
			return 0, linuxerr.ENOMEM
		}
		if err := pagetables.MapRange(as.alloc, as.root, hostarch.Addr(cur), hostarch.PageSize, pa, pagetables.User); err != nil {
			as.alloc.Free(pa)
			return 0, linuxerr.ENOMEM
		}
	}
	cu.Release()
	return newSize, nil
}

// Shrink unmaps and frees the pages covering [newSize, oldSize) and returns
// newSize. If newSize >= oldSize, it returns oldSize unchanged.
func (as *AddressSpace) Shrink(oldSize, newSize uint64) uint64 {
	if newSize >= oldSize {
		return oldSize
	}
	start, _ := hostarch.PageRoundUp(newSize)
	for va := start; va < oldSize; va += hostarch.PageSize {
		pte, err := pagetables.Walk(as.alloc, as.root, hostarch.Addr(va), false)
		if err != nil || !pte.Valid() {
			continue
		}
		as.alloc.Free(pte.Address())
		pte.Clear()
	}
	return newSize
}

// Copy returns a new address space with a private copy of every page in
// [0, size), preserving permissions.
//
// On failure the partial copy is released in full.
func (as *AddressSpace) Copy(size uint64) (*AddressSpace, error) {
	child, err := New(as.alloc)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(child.Release)
	defer cu.Clean()

	for va := uint64(0); va < size; va += hostarch.PageSize {
		pte, err := pagetables.Walk(as.alloc, as.root, hostarch.Addr(va), false)
		if err != nil || !pte.Valid() {
			panic(fmt.Sprintf("copyuvm: page %#x of [0, %#x) not present", va, size))
		}
		pa, ok := as.alloc.Allocate()
		if !ok {
			return nil, linuxerr.ENOMEM
		}
		copy(as.alloc.Bytes(pa), as.alloc.Bytes(pte.Address()))
		if err := pagetables.MapRange(as.alloc, child.root, hostarch.Addr(va), hostarch.PageSize, pa, pte.Perms()); err != nil {
			as.alloc.Free(pa)
			return nil, linuxerr.ENOMEM
		}
	}
	cu.Release()
	return child, nil
}
