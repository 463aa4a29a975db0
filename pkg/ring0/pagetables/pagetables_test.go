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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/pgalloc"
)

type mapping struct {
	Start hostarch.Addr
	PA    uint64
	Perm  PTE
}

func newTables(t *testing.T, frames int) (*pgalloc.Allocator, uint64) {
	t.Helper()
	a, err := pgalloc.New(pgalloc.Options{Frames: frames, Reserved: 1})
	if err != nil {
		t.Fatalf("pgalloc.New: %v", err)
	}
	t.Cleanup(func() { a.Release() })
	root, ok := a.Allocate()
	if !ok {
		t.Fatalf("allocating root")
	}
	return a, root
}

func checkMappings(t *testing.T, a Allocator, root uint64, want []mapping) {
	t.Helper()
	var got []mapping
	Visit(a, root, func(va hostarch.Addr, pte *PTE) bool {
		got = append(got, mapping{va, pte.Address(), pte.Perms()})
		return true
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: got no panic, want panic", name)
		}
	}()
	f()
}

func TestWalkNoAlloc(t *testing.T) {
	a, root := newTables(t, 16)
	before := a.FreeCount()
	for _, va := range []hostarch.Addr{0, 0x1000, pudSize, 0x7fff_ffff_f000} {
		if _, err := Walk(a, root, va, false); err != ErrNoMapping {
			t.Errorf("Walk(%v, false) = %v, want %v", va, err, ErrNoMapping)
		}
	}
	if got := a.FreeCount(); got != before {
		t.Errorf("FreeCount() = %d after non-allocating walks, want %d", got, before)
	}
}

func TestWalkNonCanonical(t *testing.T) {
	a, root := newTables(t, 16)
	before := a.FreeCount()
	for _, va := range []hostarch.Addr{1 << 48, 0x8000_0000_0000_0000, 0x0001_0000_0000_1000} {
		if _, err := Walk(a, root, va, true); err != ErrNonCanonical {
			t.Errorf("Walk(%v) = %v, want %v", va, err, ErrNonCanonical)
		}
	}
	if got := a.FreeCount(); got != before {
		t.Errorf("FreeCount() = %d, want %d", got, before)
	}
}

func TestWalkAlloc(t *testing.T) {
	a, root := newTables(t, 16)
	before := a.FreeCount()
	pte, err := Walk(a, root, 0x1234_5000, true)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if pte.Valid() {
		t.Errorf("fresh leaf is valid: %v", pte)
	}
	// One node each at levels 1, 2 and 3.
	if got := before - a.FreeCount(); got != 3 {
		t.Errorf("allocated %d nodes, want 3", got)
	}
	// A second walk in the same last-level node allocates nothing.
	again, err := Walk(a, root, 0x1234_6000, false)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if again == pte {
		t.Errorf("distinct pages share a descriptor")
	}
}

func TestWalkOutOfMemory(t *testing.T) {
	a, root := newTables(t, 3)
	// One free frame remains: enough for the level 1 node only.
	if _, err := Walk(a, root, 0, true); err != ErrNoMemory {
		t.Errorf("Walk = %v, want %v", err, ErrNoMemory)
	}
}

func TestMapRange(t *testing.T) {
	a, root := newTables(t, 32)
	if err := MapRange(a, root, 0x1000, 2*pteSize, 0x20_0000, User); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	// An unaligned range covers each page it overlaps.
	if err := MapRange(a, root, pmdSize+0x800, 0x1000, 0x30_0000, User|ReadOnly); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	checkMappings(t, a, root, []mapping{
		{0x1000, 0x20_0000, User},
		{0x2000, 0x20_1000, User},
		{pmdSize, 0x30_0000, User | ReadOnly},
		{pmdSize + pteSize, 0x30_1000, User | ReadOnly},
	})

	pte, err := Walk(a, root, pmdSize+pteSize, false)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if !pte.Valid() || !pte.User() || pte.Writeable() {
		t.Errorf("descriptor %v has the wrong permissions", pte)
	}
	if *pte&Accessed == 0 {
		t.Errorf("leaf installed without the access flag")
	}
}

func TestMapRangeOverlap(t *testing.T) {
	a, root := newTables(t, 32)
	if err := MapRange(a, root, 0x4000, 2*pteSize, 0x10_0000, User); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	mustPanic(t, "overlapping map", func() {
		MapRange(a, root, 0x5000, pteSize, 0x40_0000, User)
	})
	mustPanic(t, "zero size", func() {
		MapRange(a, root, 0x9000, 0, 0x40_0000, User)
	})
}

func TestFree(t *testing.T) {
	a, root := newTables(t, 32)
	free := a.FreeCount() + 1 // root
	for _, va := range []hostarch.Addr{0, pmdSize, pudSize} {
		pa, ok := a.Allocate()
		if !ok {
			t.Fatalf("Allocate failed")
		}
		if err := MapRange(a, root, va, pteSize, pa, User); err != nil {
			t.Fatalf("MapRange(%v): %v", va, err)
		}
	}
	Free(a, root)
	if got := a.FreeCount(); got != free {
		t.Errorf("FreeCount() after Free = %d, want %d", got, free)
	}
}

func TestPrune(t *testing.T) {
	a, root := newTables(t, 32)
	var pas []uint64
	for _, va := range []hostarch.Addr{0, pudSize} {
		pa, ok := a.Allocate()
		if !ok {
			t.Fatalf("Allocate failed")
		}
		if err := MapRange(a, root, va, pteSize, pa, User); err != nil {
			t.Fatalf("MapRange(%v): %v", va, err)
		}
		pas = append(pas, pa)
	}
	pte, err := Walk(a, root, pudSize, false)
	if err != nil {
		t.Fatalf("Walk(%v): %v", hostarch.Addr(pudSize), err)
	}
	a.Free(pte.Address())
	pte.Clear()

	// The pmd and pte nodes under pudSize are now empty; the shared pud node
	// still maps page 0.
	free := a.FreeCount()
	Prune(a, root)
	if got, want := a.FreeCount(), free+2; got != want {
		t.Errorf("FreeCount() after Prune = %d, want %d", got, want)
	}
	checkMappings(t, a, root, []mapping{{Start: 0, PA: pas[0], Perm: User}})
	if _, err := Walk(a, root, pudSize, false); err != ErrNoMapping {
		t.Errorf("Walk(%v) after Prune = %v, want %v", hostarch.Addr(pudSize), err, ErrNoMapping)
	}
}

func TestSetUser(t *testing.T) {
	var p PTE
	p.Set(0x5000, User)
	p.SetUser(false)
	if p.User() || !p.Valid() || p.Address() != 0x5000 {
		t.Errorf("SetUser(false) produced %v", &p)
	}
	p.SetUser(true)
	if !p.User() {
		t.Errorf("SetUser(true) produced %v", &p)
	}
}
