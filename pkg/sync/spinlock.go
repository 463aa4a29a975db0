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

package sync

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Owner identifies a core for the purpose of spin lock ownership. Each core
// has exactly one Owner; the Owner counts the spin locks its core currently
// holds so that a context switch inside a critical section can be detected.
//
// A nil *Owner denotes untracked kernel context (boot code and leaf
// structures such as the frame allocator) whose critical sections cannot
// switch.
type Owner struct {
	id   int
	held atomic.Int32
}

// NewOwner returns the Owner for core id.
func NewOwner(id int) *Owner {
	return &Owner{id: id}
}

// ID returns the core number.
func (o *Owner) ID() int {
	if o == nil {
		return -1
	}
	return o.id
}

// Held returns the number of spin locks held by o.
func (o *Owner) Held() int {
	if o == nil {
		return 0
	}
	return int(o.held.Load())
}

// SpinLock is a short-hold mutual exclusion lock. Critical sections must be
// O(1) and must never contain a context switch.
//
// A SpinLock may be released by a different goroutine than the one that
// acquired it, provided both act for the same Owner: the scheduler acquires
// the process table lock and the resumed process releases it.
type SpinLock struct {
	name   string
	mu     sync.Mutex
	locked atomic.Bool
	owner  atomic.Pointer[Owner]
}

// NewSpinLock returns an unlocked SpinLock.
func NewSpinLock(name string) *SpinLock {
	return &SpinLock{name: name}
}

// Init names a zero-value SpinLock.
func (l *SpinLock) Init(name string) {
	l.name = name
}

// Name returns the lock's name.
func (l *SpinLock) Name() string {
	return l.name
}

// Lock acquires l on behalf of o.
//
// Acquiring a lock that o already holds is fatal.
func (l *SpinLock) Lock(o *Owner) {
	if o != nil && l.Holding(o) {
		panic(fmt.Sprintf("acquire %s: already held by core %d", l.name, o.id))
	}
	l.mu.Lock()
	l.owner.Store(o)
	l.locked.Store(true)
	if o != nil {
		o.held.Add(1)
	}
}

// Unlock releases l on behalf of o.
//
// Releasing a lock that is not held by o is fatal.
func (l *SpinLock) Unlock(o *Owner) {
	if !l.locked.Load() {
		panic(fmt.Sprintf("release %s: not locked", l.name))
	}
	if cur := l.owner.Load(); cur != o {
		panic(fmt.Sprintf("release %s: held by core %d, released by core %d", l.name, cur.ID(), o.ID()))
	}
	if o != nil {
		o.held.Add(-1)
	}
	l.owner.Store(nil)
	l.locked.Store(false)
	l.mu.Unlock()
}

// Holding returns true iff l is currently held by o. o must not be nil.
func (l *SpinLock) Holding(o *Owner) bool {
	return o != nil && l.locked.Load() && l.owner.Load() == o
}
