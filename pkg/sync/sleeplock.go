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

// Sleeper is the process-side half of sleep/wakeup that a SleepLock blocks
// through.
type Sleeper interface {
	// Sleep atomically releases lk and blocks on ch; lk is held again on
	// return.
	Sleep(ch any, lk *SpinLock)

	// Wakeup makes every process sleeping on ch runnable.
	Wakeup(ch any)

	// Owner returns the core the caller is currently running on.
	Owner() *Owner

	// PID identifies the caller.
	PID() int
}

// SleepLock is a blocking lock for critical sections that may outlive a
// time slice. Acquiring it may deschedule the caller.
type SleepLock struct {
	// lk protects the fields below.
	lk SpinLock

	locked bool
	pid    int
}

// NewSleepLock returns an unlocked SleepLock.
func NewSleepLock(name string) *SleepLock {
	s := &SleepLock{}
	s.lk.Init(name)
	return s
}

// Lock acquires s, sleeping while another process holds it.
func (s *SleepLock) Lock(t Sleeper) {
	s.lk.Lock(t.Owner())
	for s.locked {
		s.Wait(t)
	}
	s.locked = true
	s.pid = t.PID()
	// t may have moved to another core while it slept.
	s.lk.Unlock(t.Owner())
}

// Wait sleeps on s. Precondition: s.lk is held by t.
func (s *SleepLock) Wait(t Sleeper) {
	t.Sleep(s, &s.lk)
}

// Unlock releases s and wakes its waiters.
func (s *SleepLock) Unlock(t Sleeper) {
	s.lk.Lock(t.Owner())
	if !s.locked || s.pid != t.PID() {
		s.lk.Unlock(t.Owner())
		panic("release " + s.lk.name + ": not held by caller")
	}
	s.locked = false
	s.pid = 0
	t.Wakeup(s)
	s.lk.Unlock(t.Owner())
}

// Holding reports whether t holds s.
func (s *SleepLock) Holding(t Sleeper) bool {
	s.lk.Lock(t.Owner())
	defer s.lk.Unlock(t.Owner())
	return s.locked && s.pid == t.PID()
}
