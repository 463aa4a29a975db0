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
	"time"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
)

// maxSyscallNum is the highest system call number a table may hold.
const maxSyscallNum = 2000

// SyscallFn is a system call implementation. The returned value is stored
// in X0 if err is nil; otherwise X0 holds the negated errno of err.
type SyscallFn func(p *Proc, args arch.SyscallArguments) (uintptr, error)

// MissingFn is called for system calls not in the table.
type MissingFn func(p *Proc, sysno uintptr, args arch.SyscallArguments) (uintptr, error)

// Syscall describes one system call.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation.
	Fn SyscallFn
}

// SyscallTable is a system call table.
type SyscallTable struct {
	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// Missing is the function to call when a syscall is not present in
	// Table. If nil, missing syscalls fail with ENOSYS.
	Missing MissingFn

	// lookup is a fixed-size array that holds the syscalls (indexed by
	// their numbers). It is used for fast lookup.
	lookup [maxSyscallNum + 1]SyscallFn
}

var missingLog = log.BasicRateLimitedLogger(time.Second)

// Init initializes the system call table from Table. It is called by
// Kernel.Init.
func (s *SyscallTable) Init() {
	for num, sc := range s.Table {
		if num > maxSyscallNum {
			panic("syscall number out of range")
		}
		s.lookup[num] = sc.Fn
	}
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	if sysno <= maxSyscallNum {
		return s.lookup[sysno]
	}
	return nil
}

// LookupName looks up a syscall name.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return "unknown"
}

// run is the body of p's goroutine. It executes user instructions, handling
// each trap in the kernel, until p exits.
func (p *Proc) run() {
	for {
		if p.Killed() {
			p.Exit(-1)
		}
		ev, err := arch.Run(p.as, p.tf, p.k.quantum)
		if err != nil {
			faultCount.Increment()
			log.Infof("pid %d (%s): %v; killed", p.pid, p.name, err)
			p.Exit(-1)
		}
		switch ev {
		case arch.EventSyscall:
			p.syscall()
		case arch.EventTimer:
			p.Yield()
		}
	}
}

// syscall executes the system call p trapped with and stores its result.
func (p *Proc) syscall() {
	sysno := p.tf.SyscallNo()
	args := p.tf.SyscallArgs()
	st := p.k.syscalls

	var (
		rv  uintptr
		err error
	)
	if fn := st.Lookup(sysno); fn != nil {
		rv, err = fn(p, args)
	} else if st.Missing != nil {
		rv, err = st.Missing(p, sysno, args)
	} else {
		missingLog.Warningf("pid %d (%s): unknown syscall %d", p.pid, p.name, sysno)
		err = linuxerr.ENOSYS
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("pid %d: %s(%#x, %#x, %#x) = %#x, %v", p.pid, st.LookupName(sysno), args[0].Value, args[1].Value, args[2].Value, rv, err)
	}
	if err != nil {
		p.tf.SetReturn(linuxerr.SyscallReturn(err))
		return
	}
	p.tf.SetReturn(rv)
}
