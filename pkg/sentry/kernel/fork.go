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
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/mm"
)

// Fork creates a copy of p and returns the child's pid. The child resumes
// at the same user instruction as p, with 0 as its system call result.
func (p *Proc) Fork() (int, error) {
	k := p.k
	np, err := k.allocProc(p.Owner())
	if err != nil {
		return 0, err
	}
	if np.as, err = p.as.Copy(p.size); err != nil {
		k.mu.Lock(p.Owner())
		k.freeProc(np)
		k.mu.Unlock(p.Owner())
		return 0, err
	}
	np.size = p.size
	*np.tf = *p.tf
	np.tf.SetReturn(0)

	for fd, f := range p.files {
		if f != nil {
			np.files[fd] = k.files.Dup(f)
		}
	}
	if p.cwd != nil {
		np.cwd = k.storage.Dup(p.cwd)
	}
	np.name = p.name
	pid := np.pid

	k.mu.Lock(p.Owner())
	np.parent = p
	np.state = Runnable
	k.mu.Unlock(p.Owner())
	forkCount.Increment()
	log.Debugf("pid %d: forked pid %d", p.pid, pid)
	return pid, nil
}

// GrowProcess grows or shrinks p's memory by delta bytes. On failure the
// size and every existing mapping are unchanged.
func (p *Proc) GrowProcess(delta int64) error {
	newSize := int64(p.size) + delta
	if newSize < 0 || newSize > mm.MaxUserSize {
		return linuxerr.ENOMEM
	}
	switch {
	case delta > 0:
		sz, err := p.as.Grow(p.size, uint64(newSize))
		if err != nil {
			return err
		}
		p.size = sz
	case delta < 0:
		p.size = p.as.Shrink(p.size, uint64(newSize))
	}
	p.activate()
	return nil
}

// activate installs p's address space on its core, if it is running.
func (p *Proc) activate() {
	if p.cpu == nil {
		return
	}
	p.k.mu.Lock(p.Owner())
	p.cpu.root = p.as.Root()
	p.k.mu.Unlock(p.Owner())
}
