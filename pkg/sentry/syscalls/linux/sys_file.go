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
	"path"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/abi/linux"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/kernel"
)

// maxRWCount is the most a single read or write transfers, like Linux's
// MAX_RW_COUNT.
const maxRWCount = 1 << 20

// copyInPath copies a path argument from user memory.
func copyInPath(p *kernel.Proc, addr hostarch.Addr) (string, error) {
	return p.AddressSpace().CopyInString(addr, linux.PATH_MAX-1)
}

// Openat implements Linux syscall openat(2). There are no directories
// besides the root, so dirfd must be AT_FDCWD for relative paths.
func Openat(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	dirfd := args[0].Int()
	addr := args[1].Pointer()
	flags := args[2].Uint()

	name, err := copyInPath(p, addr)
	if err != nil {
		return 0, err
	}
	if !path.IsAbs(name) {
		if dirfd != linux.AT_FDCWD {
			return 0, linuxerr.EBADF
		}
		name = path.Join("/", name)
	}

	var readable, writable bool
	switch flags & linux.O_ACCMODE {
	case linux.O_RDONLY:
		readable = true
	case linux.O_WRONLY:
		writable = true
	case linux.O_RDWR:
		readable, writable = true, true
	default:
		return 0, linuxerr.EINVAL
	}

	ft := p.Kernel().Files()
	f, err := ft.Open(name, readable, writable)
	if err != nil {
		return 0, err
	}
	fd, err := p.NewFD(f)
	if err != nil {
		ft.Close(f)
		return 0, err
	}
	return uintptr(fd), nil
}

// Close implements Linux syscall close(2).
func Close(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	return 0, p.CloseFD(args[0].Int())
}

// Dup implements Linux syscall dup(2).
func Dup(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	f, err := p.FD(args[0].Int())
	if err != nil {
		return 0, err
	}
	ft := p.Kernel().Files()
	nf := ft.Dup(f)
	fd, err := p.NewFD(nf)
	if err != nil {
		ft.Close(nf)
		return 0, err
	}
	return uintptr(fd), nil
}

// Read implements Linux syscall read(2).
func Read(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	f, err := p.FD(fd)
	if err != nil {
		return 0, err
	}

	// Check that the size is legitimate.
	si := int(size)
	if si < 0 {
		return 0, linuxerr.EINVAL
	}
	if si > maxRWCount {
		si = maxRWCount
	}

	buf := make([]byte, si)
	n, err := p.Kernel().Files().Read(p, f, buf)
	if err != nil {
		return 0, err
	}
	if err := p.AddressSpace().CopyOut(addr, buf[:n]); err != nil {
		return 0, err
	}
	return uintptr(n), nil
}

// Write implements Linux syscall write(2).
func Write(p *kernel.Proc, args arch.SyscallArguments) (uintptr, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	f, err := p.FD(fd)
	if err != nil {
		return 0, err
	}

	// Check that the size is legitimate.
	si := int(size)
	if si < 0 {
		return 0, linuxerr.EINVAL
	}
	if si > maxRWCount {
		si = maxRWCount
	}

	buf := make([]byte, si)
	if err := p.AddressSpace().CopyIn(buf, addr); err != nil {
		return 0, err
	}
	n, err := p.Kernel().Files().Write(p, f, buf)
	return uintptr(n), err
}
