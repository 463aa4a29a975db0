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

package kernel

import (
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

// sched switches from p back to its core's scheduler. It returns when a
// scheduler next runs p, possibly on another core.
//
// Preconditions: p holds the table lock and no other spin lock; p has
// already left the Running state.
func (p *Proc) sched() {
	c := p.cpu
	if !p.k.mu.Holding(c.owner) {
		panic(fmt.Sprintf("sched: pid %d does not hold the process table lock", p.pid))
	}
	if n := c.owner.Held(); n != 1 {
		panic(fmt.Sprintf("sched: pid %d holds %d spin locks", p.pid, n))
	}
	if p.state == Running {
		panic(fmt.Sprintf("sched: pid %d is running", p.pid))
	}
	arch.Switch(p.context, c.scheduler)
}

// forkret is where a new process first runs, still holding the table lock
// taken by the scheduler that switched to it.
func (p *Proc) forkret() {
	p.k.mu.Unlock(p.Owner())
	p.run()
}

// Yield gives up the core for one scheduling round.
func (p *Proc) Yield() {
	p.k.mu.Lock(p.Owner())
	p.state = Runnable
	p.sched()
	p.k.mu.Unlock(p.Owner())
}

// Sleep implements sync.Sleeper.Sleep. It atomically releases lk and sleeps
// on ch, and reacquires lk when woken. lk may be the table lock. ch must be
// comparable.
func (p *Proc) Sleep(ch any, lk *sync.SpinLock) {
	if lk == nil {
		panic(fmt.Sprintf("sleep: pid %d passed no lock", p.pid))
	}
	k := p.k
	// Once the table lock is held no wakeup can run until p is asleep, so
	// lk can be dropped.
	if lk != &k.mu {
		k.mu.Lock(p.Owner())
		lk.Unlock(p.Owner())
	}

	p.waitChan = ch
	p.state = Sleeping
	sleepCount.Increment()
	log.Debugf("pid %d: sleeping on %T", p.pid, ch)
	p.sched()
	p.waitChan = nil

	if lk != &k.mu {
		k.mu.Unlock(p.Owner())
		lk.Lock(p.Owner())
	}
}

// Wakeup implements sync.Sleeper.Wakeup.
func (p *Proc) Wakeup(ch any) {
	p.k.Wakeup(p.Owner(), ch)
}

// Wakeup makes every process sleeping on ch runnable. o is the caller's core.
func (k *Kernel) Wakeup(o *sync.Owner, ch any) {
	k.mu.Lock(o)
	k.wakeupLocked(ch)
	k.mu.Unlock(o)
}

// Precondition: the table lock is held.
func (k *Kernel) wakeupLocked(ch any) {
	for i := range k.procs {
		if p := &k.procs[i]; p.state == Sleeping && p.waitChan == ch {
			p.state = Runnable
			wakeupCount.Increment()
		}
	}
}
