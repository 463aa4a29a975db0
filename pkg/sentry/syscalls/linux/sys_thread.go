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

package linux

import (
	"encoding/binary"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/abi/linux"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/kernel"
)

// Getpid implements Linux syscall getpid(2).
func Getpid(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	return uintptr(p.PID()), nil
}

// Getppid implements Linux syscall getppid(2).
func Getppid(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	return uintptr(p.PPID()), nil
}

// Exit implements Linux syscall exit(2).
func Exit(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	p.Exit(args[0].Int())
	panic("unreachable")
}

// ExitGroup implements Linux syscall exit_group(2). Processes have a single
// thread, so it is exit.
func ExitGroup(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	return Exit(p, args)
}

// Clone implements Linux syscall clone(2) for fork only: the child gets a
// copy of the parent's memory and starts with its own stack pointer.
func Clone(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	flags := args[0].Uint64()
	stack := args[1].Pointer()
	if flags&^linux.SIGCHLD != 0 || stack != 0 {
		return 0, linuxerr.EINVAL
	}
	pid, err := p.Fork()
	if err != nil {
		return 0, err
	}
	return uintptr(pid), nil
}

// Execve implements Linux syscall execve(2). envp is ignored.
func Execve(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	filenameAddr := args[0].Pointer()
	argvAddr := args[1].Pointer()

	filename, err := copyInPath(p, filenameAddr)
	if err != nil {
		return 0, err
	}
	var argv []string
	if argvAddr != 0 {
		if argv, err = copyInVector(p, argvAddr, kernel.MaxArgs); err != nil {
			return 0, err
		}
	}
	argc, err := p.Exec(filename, argv)
	if err != nil {
		return 0, err
	}
	// X0 is argc for the new program.
	return uintptr(argc), nil
}

// copyInVector copies a NULL-terminated array of string pointers.
func copyInVector(p *kernel.Proc, addr hostarch.Addr, max int) ([]string, error) {
	as := p.AddressSpace()
	var v []string
	for {
		var b [8]byte
		if err := as.CopyIn(b[:], addr); err != nil {
			return nil, err
		}
		ptr := hostarch.Addr(binary.LittleEndian.Uint64(b[:]))
		if ptr == 0 {
			return v, nil
		}
		if len(v) == max {
			return nil, linuxerr.E2BIG
		}
		s, err := as.CopyInString(ptr, hostarch.PageSize)
		if err != nil {
			return nil, err
		}
		v = append(v, s)
		addr += 8
	}
}

// Wait4 implements Linux syscall wait4(2). Only pid -1, any child, is
// supported, and options and rusage must be zero.
func Wait4(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	pid := args[0].Int()
	statusAddr := args[1].Pointer()
	options := args[2].Int()
	rusage := args[3].Pointer()
	if pid != -1 || options != 0 || rusage != 0 {
		return 0, linuxerr.EINVAL
	}

	child, code, err := p.Wait()
	if err != nil {
		return 0, err
	}
	if statusAddr != 0 {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(linux.WaitStatusExit(code)))
		if err := p.AddressSpace().CopyOut(statusAddr, b[:]); err != nil {
			return 0, err
		}
	}
	return uintptr(child), nil
}

// SchedYield implements Linux syscall sched_yield(2).
func SchedYield(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	p.Yield()
	return 0, nil
}

// Kill implements Linux syscall kill(2). Any signal terminates the target
// when it next returns to user mode; sig 0 only checks that pid exists.
func Kill(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	pid := args[0].Int()
	sig := args[1].Int()
	if pid <= 0 || sig < 0 {
		return 0, linuxerr.EINVAL
	}
	if sig == 0 {
		for _, info := range p.Kernel().Processes() {
			if info.PID == int(pid) {
				return 0, nil
			}
		}
		return 0, linuxerr.ESRCH
	}
	return 0, p.Kernel().Kill(p.Owner(), int(pid))
}

// Brk implements Linux syscall brk(2). The break is the end of the process's
// memory. On failure the current break is returned.
func Brk(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	if addr != 0 {
		// Errors are reported through the returned break.
		_ = p.GrowProcess(int64(addr) - int64(p.Size()))
	}
	return uintptr(p.Size()), nil
}

// Reboot implements Linux syscall reboot(2). Only init may call it. Halt and
// power off stop the machine with X3 as its exit code.
func Reboot(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	magic1 := args[0].Uint()
	magic2 := args[1].Uint()
	cmd := args[2].Uint()
	if !p.IsInit() {
		return 0, linuxerr.EPERM
	}
	if magic1 != linux.LINUX_REBOOT_MAGIC1 || magic2 != linux.LINUX_REBOOT_MAGIC2 {
		return 0, linuxerr.EINVAL
	}
	switch cmd {
	case linux.LINUX_REBOOT_CMD_HALT, linux.LINUX_REBOOT_CMD_POWER_OFF:
	default:
		return 0, linuxerr.EINVAL
	}
	p.Kernel().Halt(args[3].Int())

	// The scheduler stops once this core is free.
	p.Yield()
	return 0, nil
}
