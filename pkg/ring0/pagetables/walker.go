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

package pagetables

import (
	"errors"
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
)

var (
	// ErrNonCanonical is returned for addresses outside both halves of the
	// 48-bit address space.
	ErrNonCanonical = errors.New("non-canonical address")

	// ErrNoMapping is returned by a non-allocating walk that reaches a
	// missing table node.
	ErrNoMapping = errors.New("no mapping")

	// ErrNoMemory is returned when a table node cannot be allocated.
	ErrNoMemory = errors.New("out of memory for page tables")
)

// index returns the index of va within a node at level l.
func index(va hostarch.Addr, l int) int {
	return int(uint64(va)>>shifts[l]) & indexMask
}

// Walk returns the leaf descriptor for va in the tree rooted at root.
//
// If alloc is true, missing table nodes are allocated (zeroed) along the way.
// Otherwise a missing node yields ErrNoMapping and the tree is not modified.
// The returned descriptor may be invalid.
func Walk(a Allocator, root uint64, va hostarch.Addr, alloc bool) (*PTE, error) {
	if !va.IsCanonical() {
		return nil, ErrNonCanonical
	}
	node := nodeAt(a, root)
	for l := 0; l < Levels-1; l++ {
		pte := &node[index(va, l)]
		if !pte.Valid() {
			if !alloc {
				return nil, ErrNoMapping
			}
			pa, ok := a.Allocate()
			if !ok {
				return nil, ErrNoMemory
			}
			pte.setTable(pa)
		}
		node = nodeAt(a, pte.Address())
	}
	return &node[index(va, Levels-1)], nil
}

// MapRange installs page descriptors mapping every page that overlaps
// [va, va+size) to consecutive frames starting at pa.
//
// Descriptors installed before a failure are left in place; the caller
// reclaims them with the address space. Mapping over a present descriptor is
// fatal.
func MapRange(a Allocator, root uint64, va hostarch.Addr, size uint64, pa uint64, perm PTE) error {
	if size == 0 {
		panic(fmt.Sprintf("map_range: zero size at %v", va))
	}
	last, ok := va.AddLength(size - 1)
	if !ok {
		return ErrNonCanonical
	}
	start := va.RoundDown()
	last = last.RoundDown()
	pa = hostarch.PageRoundDown(pa)
	for cur := start; ; cur += hostarch.PageSize {
		pte, err := Walk(a, root, cur, true)
		if err != nil {
			return err
		}
		if pte.Valid() {
			panic(fmt.Sprintf("map_range: remap of %v (currently %v)", cur, pte))
		}
		pte.Set(pa, perm)
		if cur == last {
			return nil
		}
		pa += hostarch.PageSize
	}
}

// Visit calls fn for every present leaf in ascending order of virtual
// address. Only the lower half of the address space is visited. Iteration
// stops if fn returns false.
func Visit(a Allocator, root uint64, fn func(va hostarch.Addr, pte *PTE) bool) {
	visit(a, root, 0, 0, fn)
}

func visit(a Allocator, pa uint64, l int, base hostarch.Addr, fn func(hostarch.Addr, *PTE) bool) bool {
	node := nodeAt(a, pa)
	n := len(node)
	if l == 0 {
		// The upper half starts at index 256 of the root.
		n /= 2
	}
	for i := 0; i < n; i++ {
		pte := &node[i]
		if !pte.Valid() {
			continue
		}
		va := base | hostarch.Addr(uint64(i)<<shifts[l])
		if l == Levels-1 {
			if !fn(va, pte) {
				return false
			}
			continue
		}
		if !visit(a, pte.Address(), l+1, va, fn) {
			return false
		}
	}
	return true
}

// Prune frees every table node below root that maps nothing, clearing the
// descriptor that pointed at it. Leaves and root are kept.
func Prune(a Allocator, root uint64) {
	prune(a, root, 0)
}

// prune reports whether the node at pa, at level l, is empty once its
// empty children have been freed.
func prune(a Allocator, pa uint64, l int) bool {
	node := nodeAt(a, pa)
	empty := true
	for i := range node {
		pte := &node[i]
		if !pte.Valid() {
			continue
		}
		if l < Levels-1 && prune(a, pte.Address(), l+1) {
			a.Free(pte.Address())
			pte.Clear()
			continue
		}
		empty = false
	}
	return empty
}

// Free releases every frame reachable from root: first the frames mapped by
// present leaves, then each table node bottom up, and finally root itself.
func Free(a Allocator, root uint64) {
	free(a, root, 0)
}

func free(a Allocator, pa uint64, l int) {
	node := nodeAt(a, pa)
	for i := range node {
		pte := &node[i]
		if !pte.Valid() {
			continue
		}
		if l == Levels-1 {
			a.Free(pte.Address())
		} else {
			free(a, pte.Address(), l+1)
		}
		pte.Clear()
	}
	a.Free(pa)
}
