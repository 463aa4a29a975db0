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
	"sync/atomic"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/fs"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/mm"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

// ProcState is the scheduling state of a process table slot.
type ProcState int

// Process states.
const (
	Unused ProcState = iota
	Embryo
	Runnable
	Running
	Sleeping
	Zombie
)

var procStateNames = [...]string{
	Unused:   "unused",
	Embryo:   "embryo",
	Runnable: "runnable",
	Running:  "running",
	Sleeping: "sleep",
	Zombie:   "zombie",
}

// String implements fmt.Stringer.
func (s ProcState) String() string {
	if s < 0 || int(s) >= len(procStateNames) {
		return fmt.Sprintf("ProcState(%d)", int(s))
	}
	return procStateNames[s]
}

// Proc is one process table slot.
type Proc struct {
	k *Kernel

	// The fields below are protected by the table lock.
	state    ProcState
	parent   *Proc
	waitChan any

	// killed is set by Kill and checked when the process crosses a system
	// call boundary.
	killed atomic.Bool

	// The fields below are set while the slot is Embryo and are otherwise
	// only used by the process itself, or by the kernel while the process
	// cannot run.
	pid     int
	name    string
	kstack  uint64
	tf      *arch.TrapFrame
	context *arch.Context
	as      *mm.AddressSpace
	size    uint64
	files   [NOFILE]*fs.File
	cwd     *fs.Inode
	xstatus int32

	// cpu is the core the process last ran on. It is set by the scheduler
	// before every switch into the process.
	cpu *CPU
}

// PID returns the process ID.
func (p *Proc) PID() int {
	return p.pid
}

// Name returns the process name.
func (p *Proc) Name() string {
	return p.name
}

// Kernel returns the kernel p belongs to.
func (p *Proc) Kernel() *Kernel {
	return p.k
}

// Owner implements sync.Sleeper.Owner. It returns the lock identity of the
// core p is running on, which may change whenever p gives up its core.
func (p *Proc) Owner() *sync.Owner {
	if p.cpu == nil {
		return nil
	}
	return p.cpu.owner
}

// CPU returns the core p is running on.
func (p *Proc) CPU() *CPU {
	return p.cpu
}

// Size returns the mapped size of p's address space.
func (p *Proc) Size() uint64 {
	return p.size
}

// AddressSpace returns p's address space.
func (p *Proc) AddressSpace() *mm.AddressSpace {
	return p.as
}

// TrapFrame returns p's saved user registers.
func (p *Proc) TrapFrame() *arch.TrapFrame {
	return p.tf
}

// IsInit returns true if p is the first user process. initProc is set
// before any process runs and never changes.
func (p *Proc) IsInit() bool {
	return p == p.k.initProc
}

// Killed reports whether p has been killed.
func (p *Proc) Killed() bool {
	return p.killed.Load()
}

// PPID returns the ID of p's parent, or 0 for init.
func (p *Proc) PPID() int {
	p.k.mu.Lock(p.Owner())
	defer p.k.mu.Unlock(p.Owner())
	if p.parent == nil {
		return 0
	}
	return p.parent.pid
}

// allocProc finds an unused slot and prepares it to run in the kernel: a
// kernel stack frame holding a zeroed trap frame, and a context whose first
// resume enters forkret. The slot is returned Embryo. o is the caller's core.
func (k *Kernel) allocProc(o *sync.Owner) (*Proc, error) {
	k.mu.Lock(o)
	defer k.mu.Unlock(o)

	var p *Proc
	for i := range k.procs {
		if k.procs[i].state == Unused {
			p = &k.procs[i]
			break
		}
	}
	if p == nil {
		return nil, linuxerr.EAGAIN
	}

	kstack, ok := k.frames.Allocate()
	if !ok {
		log.Warningf("allocProc: no frame for a kernel stack")
		return nil, linuxerr.ENOMEM
	}
	p.kstack = kstack
	p.tf = arch.TrapFrameAt(k.frames.Bytes(kstack))
	*p.tf = arch.TrapFrame{}
	p.context = arch.NewContext(p.forkret)
	p.pid = k.allocPID(o)
	p.state = Embryo
	return p, nil
}

// freeProc returns p, which has no running goroutine, to Unused.
//
// Preconditions: the table lock is held; p is Embryo or Zombie.
func (k *Kernel) freeProc(p *Proc) {
	if p.state != Embryo && p.state != Zombie {
		panic(fmt.Sprintf("freeProc: pid %d is %v", p.pid, p.state))
	}
	if p.context != nil {
		p.context.Retire()
	}
	if p.as != nil {
		p.as.Release()
	}
	k.frames.Free(p.kstack)
	*p = Proc{k: k}
}

// UserInit creates the first process, init, from image: a flat program
// mapped at address 0 that starts at its first byte with the stack at the
// top of the mapping. init's file descriptors 0, 1 and 2 are the console and
// its working directory is the root.
func (k *Kernel) UserInit(image []byte) (*Proc, error) {
	k.mu.Lock(nil)
	exists := k.initProc != nil
	k.mu.Unlock(nil)
	if exists {
		return nil, fmt.Errorf("init already exists")
	}
	p, err := k.newUserProc("init", image)
	if err != nil {
		return nil, fmt.Errorf("creating init: %w", err)
	}
	k.mu.Lock(nil)
	k.initProc = p
	p.state = Runnable
	k.mu.Unlock(nil)
	log.Infof("Created init, pid %d, %d bytes", p.pid, p.size)
	return p, nil
}

// newUserProc returns an Embryo process with image mapped at address 0,
// the console on descriptors 0 to 2, and the root as working directory.
func (k *Kernel) newUserProc(name string, image []byte) (*Proc, error) {
	p, err := k.allocProc(nil)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Proc, error) {
		for fd, f := range p.files {
			if f != nil {
				k.files.Close(f)
				p.files[fd] = nil
			}
		}
		k.mu.Lock(nil)
		k.freeProc(p)
		k.mu.Unlock(nil)
		return nil, err
	}

	if p.as, err = mm.New(k.frames); err != nil {
		return fail(err)
	}
	if p.size, err = p.as.Init(image); err != nil {
		return fail(err)
	}
	console, err := k.files.OpenConsole(k.console)
	if err != nil {
		return fail(err)
	}
	p.files[0] = console
	p.files[1] = k.files.Dup(console)
	p.files[2] = k.files.Dup(console)
	p.cwd = k.storage.Root()
	p.name = name

	p.tf.SetIP(0)
	p.tf.SetStack(hostarch.Addr(p.size))
	p.tf.Pstate = arch.PstateEL0
	return p, nil
}

// FD returns the file at descriptor fd.
func (p *Proc) FD(fd int32) (*fs.File, error) {
	if fd < 0 || int(fd) >= len(p.files) || p.files[fd] == nil {
		return nil, linuxerr.EBADF
	}
	return p.files[fd], nil
}

// NewFD installs f at the lowest free descriptor.
func (p *Proc) NewFD(f *fs.File) (int32, error) {
	for fd := range p.files {
		if p.files[fd] == nil {
			p.files[fd] = f
			return int32(fd), nil
		}
	}
	return -1, linuxerr.EMFILE
}

// CloseFD closes descriptor fd.
func (p *Proc) CloseFD(fd int32) error {
	f, err := p.FD(fd)
	if err != nil {
		return err
	}
	p.files[fd] = nil
	p.k.files.Close(f)
	return nil
}

// Files returns p's open files, indexed by descriptor.
func (p *Proc) Files() []*fs.File {
	return p.files[:]
}
