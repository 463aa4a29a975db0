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

package pgalloc

import (
	"sync"
	"testing"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
)

func newAllocator(t *testing.T, frames, reserved int) *Allocator {
	t.Helper()
	a, err := New(Options{Frames: frames, Reserved: reserved})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Release(); err != nil {
			t.Errorf("Release: %v", err)
		}
	})
	return a
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

func TestNewInvalid(t *testing.T) {
	for _, opts := range []Options{
		{Frames: 0},
		{Frames: 4, Reserved: 4},
		{Frames: 4, Reserved: -1},
	} {
		if _, err := New(opts); err == nil {
			t.Errorf("New(%+v) succeeded, want error", opts)
		}
	}
}

func TestAllocateAll(t *testing.T) {
	const frames, reserved = 16, 2
	a := newAllocator(t, frames, reserved)
	if got, want := a.FreeCount(), frames-reserved; got != want {
		t.Fatalf("FreeCount() = %d, want %d", got, want)
	}
	if got := a.TotalFrames(); got != frames-reserved {
		t.Errorf("TotalFrames() = %d, want %d", got, frames-reserved)
	}

	seen := make(map[uint64]bool)
	for i := 0; i < frames-reserved; i++ {
		pa, ok := a.Allocate()
		if !ok {
			t.Fatalf("Allocate %d failed with %d frames free", i, a.FreeCount())
		}
		if seen[pa] {
			t.Fatalf("frame %#x handed out twice", pa)
		}
		seen[pa] = true
		if pa < Base+reserved*hostarch.PageSize || pa%hostarch.PageSize != 0 {
			t.Errorf("Allocate returned bad address %#x", pa)
		}
		for j, b := range a.Bytes(pa) {
			if b != 0 {
				t.Fatalf("frame %#x byte %d = %#x, want 0", pa, j, b)
			}
		}
	}
	if _, ok := a.Allocate(); ok {
		t.Errorf("Allocate succeeded on an empty free list")
	}
	if got := a.FreeCount(); got != 0 {
		t.Errorf("FreeCount() = %d, want 0", got)
	}

	for pa := range seen {
		a.Free(pa)
	}
	if got := a.FreeCount(); got != frames-reserved {
		t.Errorf("FreeCount() after freeing everything = %d, want %d", got, frames-reserved)
	}
}

func TestLowestFrameFirst(t *testing.T) {
	a := newAllocator(t, 8, 1)
	pa, ok := a.Allocate()
	if !ok {
		t.Fatalf("Allocate failed")
	}
	if want := uint64(Base + hostarch.PageSize); pa != want {
		t.Errorf("first frame = %#x, want %#x", pa, want)
	}
}

func TestFreeJunk(t *testing.T) {
	a := newAllocator(t, 4, 1)
	pa, _ := a.Allocate()
	a.Free(pa)
	b := a.Bytes(pa)
	// The first word is the free-list link.
	for i := 8; i < len(b); i++ {
		if b[i] != junk {
			t.Fatalf("freed frame byte %d = %#x, want %#x", i, b[i], junk)
		}
	}
}

func TestDoubleFreeKeepsList(t *testing.T) {
	a := newAllocator(t, 4, 1)
	pa, _ := a.Allocate()
	a.Free(pa)
	mustPanic(t, "double free", func() { a.Free(pa) })

	seen := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		got, ok := a.Allocate()
		if !ok {
			t.Fatalf("Allocate %d failed after a rejected double free", i)
		}
		if seen[got] {
			t.Fatalf("frame %#x handed out twice", got)
		}
		seen[got] = true
	}
	if _, ok := a.Allocate(); ok {
		t.Errorf("Allocate succeeded with every frame in use")
	}
}

func TestFreeFatal(t *testing.T) {
	a := newAllocator(t, 4, 1)
	pa, _ := a.Allocate()
	mustPanic(t, "misaligned", func() { a.Free(pa + 8) })
	mustPanic(t, "kernel image", func() { a.Free(Base) })
	mustPanic(t, "past top", func() { a.Free(Base + 4*hostarch.PageSize) })
	a.Free(pa)
	mustPanic(t, "double free", func() { a.Free(pa) })
	if got := a.FreeCount(); got != 3 {
		t.Errorf("FreeCount() = %d, want 3", got)
	}
}

func TestConcurrentNoDoubleAllocation(t *testing.T) {
	const frames = 256
	a := newAllocator(t, frames, 0)

	const workers = 4
	results := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				pa, ok := a.Allocate()
				if !ok {
					return
				}
				results[w] = append(results[w], pa)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]int)
	for w, r := range results {
		for _, pa := range r {
			if prev, ok := seen[pa]; ok {
				t.Fatalf("frame %#x allocated by workers %d and %d", pa, prev, w)
			}
			seen[pa] = w
		}
	}
	if len(seen) != frames {
		t.Errorf("allocated %d distinct frames, want %d", len(seen), frames)
	}
}
