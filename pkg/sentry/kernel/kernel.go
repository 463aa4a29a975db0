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

// Package kernel implements the process table and per-core scheduler.
//
// Each core runs Scheduler on its own goroutine. Each process is backed by a
// goroutine that only executes while it holds a core: the scheduler hands the
// core to a process with arch.Switch, and the process hands it back from
// sched. A single table lock serializes every process state transition.
//
// Lock order:
//
//	Kernel.mu
//	  Kernel.pidMu
//	  frame allocator lock
package kernel

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/metric"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/ring0/pagetables"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/fs"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/loader"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
	"golang.org/x/sync/errgroup"
)

const (
	// NOFILE is the number of open file descriptors per process.
	NOFILE = 16

	// DefaultMaxProcs is the default size of the process table.
	DefaultMaxProcs = 64

	// DefaultQuantum is the default number of user instructions a process
	// executes before the timer makes it yield.
	DefaultQuantum = 1000
)

var (
	forkCount   = metric.MustCreateNewUint64Metric("/kernel/forks", "Number of processes created by fork.")
	exitCount   = metric.MustCreateNewUint64Metric("/kernel/exits", "Number of processes that exited.")
	switchCount = metric.MustCreateNewUint64Metric("/kernel/context_switches", "Number of switches from a scheduler into a process.")
	sleepCount  = metric.MustCreateNewUint64Metric("/kernel/sleeps", "Number of times a process went to sleep.")
	wakeupCount = metric.MustCreateNewUint64Metric("/kernel/wakeups", "Number of sleeping processes made runnable by a wakeup.")
	faultCount  = metric.MustCreateNewUint64Metric("/kernel/user_faults", "Number of processes killed by a user-mode fault.")

	// activeKernel is the most recently initialized kernel, sampled by
	// gauge metrics.
	activeKernel atomic.Pointer[Kernel]
)

func init() {
	metric.MustRegisterCustomUint64Metric("/kernel/free_frames", false, "Number of free physical frames.", func(...string) uint64 {
		if k := activeKernel.Load(); k != nil {
			return uint64(k.frames.FreeCount())
		}
		return 0
	})
	metric.MustRegisterCustomUint64Metric("/kernel/processes", false, "Number of process table slots in use.", func(...string) uint64 {
		if k := activeKernel.Load(); k != nil {
			return uint64(k.liveProcs())
		}
		return 0
	})
}

// FrameAllocator provides physical frames for kernel stacks and address
// spaces.
type FrameAllocator interface {
	pagetables.Allocator

	// FreeCount returns the number of free frames.
	FreeCount() int
}

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// ApplicationCores is the number of cores.
	ApplicationCores uint

	// MaxProcs is the size of the process table. If zero, DefaultMaxProcs
	// is used.
	MaxProcs int

	// Quantum is the time slice in user instructions. If zero,
	// DefaultQuantum is used.
	Quantum int

	// Frames is the physical frame allocator.
	Frames FrameAllocator

	// Storage holds files.
	Storage fs.Storage

	// Loader resolves program images for exec.
	Loader loader.Loader

	// Console receives console output.
	Console io.Writer

	// Syscalls is the system call table.
	Syscalls *SyscallTable
}

// Kernel is the machine: its cores, process table and global tables.
type Kernel struct {
	// The fields below are immutable after Init.
	frames   FrameAllocator
	storage  fs.Storage
	files    *fs.FileTable
	console  *fs.Console
	loader   loader.Loader
	syscalls *SyscallTable
	quantum  int
	cpus     []*CPU

	// mu is the process table lock. It protects the state, parent and wait
	// channel of every process, and initProc.
	mu       sync.SpinLock
	procs    []Proc
	initProc *Proc

	// pidMu protects nextPID.
	pidMu   sync.SpinLock
	nextPID int

	// halted is closed by Halt.
	halted   chan struct{}
	haltOnce sync.Once
	exitCode atomic.Int32
}

// CPU is the per-core state.
type CPU struct {
	id int

	// owner identifies this core to the spin locks it holds.
	owner *sync.Owner

	// scheduler is the saved context of this core's scheduler loop.
	scheduler *arch.Context

	// The fields below are protected by the table lock.

	// proc is the process running on this core, or nil when the core is in
	// its scheduler.
	proc *Proc

	// root is the installed user translation table, or 0.
	root uint64
}

// ID returns the core number.
func (c *CPU) ID() int {
	return c.id
}

// Owner returns the lock owner identity of the core.
func (c *CPU) Owner() *sync.Owner {
	return c.owner
}

// Init initializes the kernel. It must be called exactly once, before
// UserInit.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.ApplicationCores == 0 {
		return fmt.Errorf("args.ApplicationCores is 0")
	}
	if args.Frames == nil || args.Storage == nil || args.Loader == nil || args.Syscalls == nil {
		return fmt.Errorf("missing frame allocator, storage, loader or syscall table")
	}
	if args.MaxProcs == 0 {
		args.MaxProcs = DefaultMaxProcs
	}
	if args.Quantum == 0 {
		args.Quantum = DefaultQuantum
	}
	if args.MaxProcs < 0 || args.Quantum < 0 {
		return fmt.Errorf("invalid process table size %d or quantum %d", args.MaxProcs, args.Quantum)
	}
	if args.Console == nil {
		args.Console = io.Discard
	}

	k.frames = args.Frames
	k.storage = args.Storage
	k.files = fs.NewFileTable(args.Storage)
	k.console = fs.NewConsole(args.Console)
	k.loader = args.Loader
	k.syscalls = args.Syscalls
	k.syscalls.Init()
	k.quantum = args.Quantum
	k.mu.Init("ptable")
	k.procs = make([]Proc, args.MaxProcs)
	for i := range k.procs {
		k.procs[i].k = k
	}
	k.pidMu.Init("nextpid")
	k.nextPID = 1
	k.halted = make(chan struct{})
	for i := 0; i < int(args.ApplicationCores); i++ {
		k.cpus = append(k.cpus, &CPU{id: i, owner: sync.NewOwner(i)})
	}
	activeKernel.Store(k)
	return nil
}

// CPUs returns the cores.
func (k *Kernel) CPUs() []*CPU {
	return k.cpus
}

// Frames returns the frame allocator.
func (k *Kernel) Frames() FrameAllocator {
	return k.frames
}

// Files returns the system-wide open file table.
func (k *Kernel) Files() *fs.FileTable {
	return k.files
}

// Storage returns the file storage.
func (k *Kernel) Storage() fs.Storage {
	return k.storage
}

// Loader returns the program loader.
func (k *Kernel) Loader() loader.Loader {
	return k.loader
}

// Halt stops the machine with the given exit code. Cores leave their
// scheduler loops as soon as their running process gives up the core. Only
// the first call has an effect.
func (k *Kernel) Halt(code int32) {
	k.haltOnce.Do(func() {
		log.Infof("Machine halting with exit code %d", code)
		k.exitCode.Store(code)
		close(k.halted)
	})
}

// Halted returns a channel that is closed when the machine halts.
func (k *Kernel) Halted() <-chan struct{} {
	return k.halted
}

// ExitCode returns the code passed to Halt and whether Halt has been called.
func (k *Kernel) ExitCode() (int32, bool) {
	select {
	case <-k.halted:
		return k.exitCode.Load(), true
	default:
		return 0, false
	}
}

func (k *Kernel) isHalted() bool {
	_, ok := k.ExitCode()
	return ok
}

// Run runs a scheduler on every core until the machine halts or ctx is done,
// and then parks every remaining process for good. It returns ctx's error if
// ctx ended the run.
func (k *Kernel) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range k.cpus {
		c := c
		g.Go(func() error {
			return k.Scheduler(gctx, c)
		})
	}
	err := g.Wait()
	k.shutdown()
	return err
}

// newIdleBackOff returns the pacing of a core that finds nothing to run.
func newIdleBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Microsecond
	b.MaxInterval = 2 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Scheduler is the scheduler loop of core c. It repeatedly scans the process
// table and runs every runnable process it finds. It returns nil when the
// machine halts, or ctx's error when ctx is done.
func (k *Kernel) Scheduler(ctx context.Context, c *CPU) error {
	c.scheduler = arch.NewRunningContext()
	idle := newIdleBackOff()
	log.Debugf("cpu %d: scheduler started", c.id)
	for {
		select {
		case <-k.halted:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if k.scan(c) > 0 {
			idle.Reset()
			continue
		}
		t := time.NewTimer(idle.NextBackOff())
		select {
		case <-t.C:
		case <-k.halted:
			t.Stop()
			return nil
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// scan makes one pass over the process table with the table lock held,
// running each runnable process in turn. It returns the number of processes
// run.
func (k *Kernel) scan(c *CPU) int {
	ran := 0
	k.mu.Lock(c.owner)
	for i := range k.procs {
		p := &k.procs[i]
		if p.state != Runnable {
			continue
		}
		if k.isHalted() {
			break
		}
		c.proc = p
		p.cpu = c
		c.root = p.as.Root()
		p.state = Running
		switchCount.Increment()
		arch.Switch(c.scheduler, p.context)

		// The process is back in sched, or exiting.
		c.proc = nil
		c.root = 0
		ran++
	}
	k.mu.Unlock(c.owner)
	return ran
}

// shutdown runs after every core has stopped. It releases the goroutines of
// every process still in the table.
func (k *Kernel) shutdown() {
	k.mu.Lock(nil)
	defer k.mu.Unlock(nil)
	for i := range k.procs {
		if p := &k.procs[i]; p.state != Unused && p.context != nil {
			p.context.Retire()
			p.context = nil
		}
	}
}

// liveProcs returns the number of process table slots in use.
func (k *Kernel) liveProcs() int {
	k.mu.Lock(nil)
	defer k.mu.Unlock(nil)
	n := 0
	for i := range k.procs {
		if k.procs[i].state != Unused {
			n++
		}
	}
	return n
}

// allocPID returns a fresh process ID.
func (k *Kernel) allocPID(o *sync.Owner) int {
	k.pidMu.Lock(o)
	defer k.pidMu.Unlock(o)
	pid := k.nextPID
	k.nextPID++
	return pid
}
