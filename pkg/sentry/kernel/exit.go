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

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

// Exit ends p with the given exit code. It does not return. p stays Zombie
// until its parent collects it with Wait.
//
// init may not exit.
func (p *Proc) Exit(code int32) {
	k := p.k
	if p == k.initProc {
		panic(fmt.Sprintf("init exiting with code %d", code))
	}

	for fd, f := range p.files {
		if f != nil {
			k.files.Close(f)
			p.files[fd] = nil
		}
	}
	if p.cwd != nil {
		k.storage.Put(p.cwd)
		p.cwd = nil
	}

	k.mu.Lock(p.Owner())

	// The parent might be sleeping in Wait.
	k.wakeupLocked(p.parent)

	// Pass any children to init.
	for i := range k.procs {
		c := &k.procs[i]
		if c.parent != p {
			continue
		}
		c.parent = k.initProc
		if c.state == Zombie {
			k.wakeupLocked(k.initProc)
		}
	}

	p.xstatus = code
	p.state = Zombie
	exitCount.Increment()
	log.Debugf("pid %d (%s): exited with code %d", p.pid, p.name, code)
	p.sched()
	panic(fmt.Sprintf("zombie pid %d resumed", p.pid))
}

// Wait waits for a child of p to exit, frees its slot and returns its pid and
// exit code. It fails with ECHILD if p has no children, and with EINTR if p
// is killed while waiting.
func (p *Proc) Wait() (int, int32, error) {
	k := p.k
	k.mu.Lock(p.Owner())
	for {
		haveKids := false
		for i := range k.procs {
			c := &k.procs[i]
			if c.parent != p {
				continue
			}
			haveKids = true
			if c.state == Zombie {
				pid, code := c.pid, c.xstatus
				k.freeProc(c)
				k.mu.Unlock(p.Owner())
				return pid, code, nil
			}
		}
		if !haveKids {
			k.mu.Unlock(p.Owner())
			return 0, 0, linuxerr.ECHILD
		}
		if p.Killed() {
			k.mu.Unlock(p.Owner())
			return 0, 0, linuxerr.EINTR
		}
		// Exit wakes the parent's own slot.
		p.Sleep(p, &k.mu)
	}
}

// Kill marks process pid killed. It exits the next time it crosses a system
// call boundary; a sleeping process is not woken early. init cannot be
// killed. o is the caller's core.
func (k *Kernel) Kill(o *sync.Owner, pid int) error {
	k.mu.Lock(o)
	defer k.mu.Unlock(o)
	for i := range k.procs {
		p := &k.procs[i]
		if p.pid == pid && p.state != Unused {
			if p == k.initProc {
				return linuxerr.EPERM
			}
			p.killed.Store(true)
			return nil
		}
	}
	return linuxerr.ESRCH
}
