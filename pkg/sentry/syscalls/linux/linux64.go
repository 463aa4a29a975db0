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

// Package linux provides the machine's system call table. Calls use the
// AArch64 Linux numbers whatever the host architecture is.
package linux

import (
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/kernel"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/syscalls"
)

// ARM64 is the table of supported system calls, keyed by AArch64 number.
var ARM64 = &kernel.SyscallTable{
	Table: map[uintptr]kernel.Syscall{
		23:  syscalls.Supported("dup", Dup),
		56:  syscalls.Supported("openat", Openat),
		57:  syscalls.Supported("close", Close),
		63:  syscalls.Supported("read", Read),
		64:  syscalls.Supported("write", Write),
		93:  syscalls.Supported("exit", Exit),
		94:  syscalls.Supported("exit_group", ExitGroup),
		124: syscalls.Supported("sched_yield", SchedYield),
		129: syscalls.Supported("kill", Kill),
		142: syscalls.Supported("reboot", Reboot),
		172: syscalls.Supported("getpid", Getpid),
		173: syscalls.Supported("getppid", Getppid),
		214: syscalls.Supported("brk", Brk),
		220: syscalls.Supported("clone", Clone),
		221: syscalls.Supported("execve", Execve),
		260: syscalls.Supported("wait4", Wait4),
	},
}
