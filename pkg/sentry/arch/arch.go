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

// Package arch describes machine register state: the trap frame saved on
// entry from user mode, the kernel scheduling context, and the user
// instruction set.
package arch

import (
	"fmt"
	"unsafe"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
)

const (
	// NumRegs is the number of general purpose registers, X0 through X30.
	NumRegs = 31

	// RegSP is the register number that addresses the stack pointer.
	RegSP = 31

	// RegSyscallNo holds the system call number on SVC.
	RegSyscallNo = 8

	// SyscallWidth is the size of the SVC instruction.
	SyscallWidth = InstructionSize

	// PstateEL0 is the saved processor state of a user-mode frame.
	PstateEL0 = 0
)

// TrapFrame is the register state saved on entry from user mode. It lives at
// the top of the process's kernel stack frame.
type TrapFrame struct {
	Regs [NumRegs]uint64

	// Sp is SP_EL0.
	Sp uint64

	// Pc is ELR_EL1, the address user mode resumes at.
	Pc uint64

	// Pstate is SPSR_EL1.
	Pstate uint64
}

// TrapFrameSize is the size of a TrapFrame in bytes.
const TrapFrameSize = int(unsafe.Sizeof(TrapFrame{}))

// TrapFrameAt returns the trap frame stored at the top of kernel stack frame
// kstack.
func TrapFrameAt(kstack []byte) *TrapFrame {
	if len(kstack) < TrapFrameSize {
		panic(fmt.Sprintf("kernel stack of %d bytes cannot hold a trap frame", len(kstack)))
	}
	off := len(kstack) - TrapFrameSize
	return (*TrapFrame)(unsafe.Pointer(&kstack[off]))
}

// Reg returns register n, where n == RegSP addresses the stack pointer.
func (tf *TrapFrame) Reg(n uint8) uint64 {
	if n == RegSP {
		return tf.Sp
	}
	return tf.Regs[n]
}

// SetReg sets register n, where n == RegSP addresses the stack pointer.
func (tf *TrapFrame) SetReg(n uint8, v uint64) {
	if n == RegSP {
		tf.Sp = v
		return
	}
	tf.Regs[n] = v
}

// IP returns the current instruction pointer.
func (tf *TrapFrame) IP() hostarch.Addr {
	return hostarch.Addr(tf.Pc)
}

// SetIP sets the current instruction pointer.
func (tf *TrapFrame) SetIP(va hostarch.Addr) {
	tf.Pc = uint64(va)
}

// Stack returns the current stack pointer.
func (tf *TrapFrame) Stack() hostarch.Addr {
	return hostarch.Addr(tf.Sp)
}

// SetStack sets the current stack pointer.
func (tf *TrapFrame) SetStack(va hostarch.Addr) {
	tf.Sp = uint64(va)
}

// SyscallNo returns the system call number.
func (tf *TrapFrame) SyscallNo() uintptr {
	return uintptr(tf.Regs[RegSyscallNo])
}

// SyscallArgs returns the system call arguments, X0 through X5.
func (tf *TrapFrame) SyscallArgs() SyscallArguments {
	var args SyscallArguments
	for i := range args {
		args[i].Value = uintptr(tf.Regs[i])
	}
	return args
}

// Return returns the system call return value.
func (tf *TrapFrame) Return() uintptr {
	return uintptr(tf.Regs[0])
}

// SetReturn sets the system call return value.
func (tf *TrapFrame) SetReturn(value uintptr) {
	tf.Regs[0] = uint64(value)
}

// SyscallArgument is an argument supplied to a syscall implementation. The
// methods used to access the arguments are named after the ***C type name***
// and they convert to the closest Go type available.
type SyscallArgument struct {
	Value uintptr
}

// SyscallArguments represents the set of arguments passed to a syscall.
type SyscallArguments [6]SyscallArgument

// Pointer returns the hostarch.Addr representation of a pointer argument.
func (a SyscallArgument) Pointer() hostarch.Addr {
	return hostarch.Addr(a.Value)
}

// Int returns the int32 representation of a 32-bit signed integer argument.
func (a SyscallArgument) Int() int32 {
	return int32(a.Value)
}

// Uint returns the uint32 representation of a 32-bit unsigned integer argument.
func (a SyscallArgument) Uint() uint32 {
	return uint32(a.Value)
}

// Int64 returns the int64 representation of a 64-bit signed integer argument.
func (a SyscallArgument) Int64() int64 {
	return int64(a.Value)
}

// Uint64 returns the uint64 representation of a 64-bit unsigned integer argument.
func (a SyscallArgument) Uint64() uint64 {
	return uint64(a.Value)
}

// SizeT returns the uint representation of a size_t argument.
func (a SyscallArgument) SizeT() uint {
	return uint(a.Value)
}
