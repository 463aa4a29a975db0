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

package arch

import (
	"encoding/binary"
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
)

// InstructionSize is the size of an encoded instruction.
const InstructionSize = 8

// Op is an instruction opcode.
type Op uint8

// Opcodes. Rd, Rn and Rm name registers; register 31 is the stack pointer.
// Branch and Adr offsets are relative to the address of the instruction.
const (
	OpNop  Op = iota // no operation
	OpMovi           // rd = imm
	OpMov            // rd = rn
	OpAdd            // rd = rn + rm
	OpAddi           // rd = rn + imm
	OpSub            // rd = rn - rm
	OpLdr            // rd = mem64[rn + imm]
	OpStr            // mem64[rn + imm] = rd
	OpLdrb           // rd = mem8[rn + imm]
	OpStrb           // mem8[rn + imm] = rd
	OpBeq            // if rd == rn: pc += imm
	OpBne            // if rd != rn: pc += imm
	OpBlt            // if int64(rd) < int64(rn): pc += imm
	OpB              // pc += imm
	OpSvc            // system call
	OpAdr            // rd = pc + imm
	numOps
)

var opNames = [numOps]string{
	OpNop:  "nop",
	OpMovi: "movi",
	OpMov:  "mov",
	OpAdd:  "add",
	OpAddi: "addi",
	OpSub:  "sub",
	OpLdr:  "ldr",
	OpStr:  "str",
	OpLdrb: "ldrb",
	OpStrb: "strb",
	OpBeq:  "beq",
	OpBne:  "bne",
	OpBlt:  "blt",
	OpB:    "b",
	OpSvc:  "svc",
	OpAdr:  "adr",
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if op < numOps {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is one decoded instruction. Its encoding is
// [op, rd, rn, rm, imm (little-endian int32)].
type Instruction struct {
	Op  Op
	Rd  uint8
	Rn  uint8
	Rm  uint8
	Imm int32
}

// Encode appends the encoding of in to b.
func (in Instruction) Encode(b []byte) []byte {
	b = append(b, byte(in.Op), in.Rd, in.Rn, in.Rm)
	return binary.LittleEndian.AppendUint32(b, uint32(in.Imm))
}

// Decode decodes one instruction from b.
func Decode(b []byte) (Instruction, error) {
	if len(b) < InstructionSize {
		return Instruction{}, fmt.Errorf("short instruction: %d bytes", len(b))
	}
	in := Instruction{
		Op:  Op(b[0]),
		Rd:  b[1],
		Rn:  b[2],
		Rm:  b[3],
		Imm: int32(binary.LittleEndian.Uint32(b[4:])),
	}
	if in.Op >= numOps || in.Rd > RegSP || in.Rn > RegSP || in.Rm > RegSP {
		return Instruction{}, fmt.Errorf("undefined instruction %x", b[:InstructionSize])
	}
	return in, nil
}

// String implements fmt.Stringer.
func (in Instruction) String() string {
	return fmt.Sprintf("%v x%d, x%d, x%d, #%d", in.Op, in.Rd, in.Rn, in.Rm, in.Imm)
}

// Memory is user memory as seen through the current address space.
type Memory interface {
	CopyIn(dst []byte, va hostarch.Addr) error
	CopyOut(va hostarch.Addr, src []byte) error
}

// FaultKind classifies a user-mode exception.
type FaultKind int

// Fault kinds.
const (
	// FetchFault is an instruction abort.
	FetchFault FaultKind = iota

	// DataFault is a data abort.
	DataFault

	// UndefinedInstruction is an undecodable instruction.
	UndefinedInstruction
)

// Fault is a user-mode exception that the process cannot continue from.
type Fault struct {
	Kind FaultKind
	PC   hostarch.Addr
	Addr hostarch.Addr
}

// Error implements error.
func (f *Fault) Error() string {
	switch f.Kind {
	case FetchFault:
		return fmt.Sprintf("instruction abort at pc %v", f.PC)
	case DataFault:
		return fmt.Sprintf("data abort at %v, pc %v", f.Addr, f.PC)
	default:
		return fmt.Sprintf("undefined instruction at pc %v", f.PC)
	}
}

// Event is the reason Run returned to the kernel.
type Event int

// Events.
const (
	// EventSyscall means the process executed SVC. Pc points past it.
	EventSyscall Event = iota

	// EventTimer means the process used up its quantum.
	EventTimer
)

// Step executes the instruction at tf.Pc. It returns true if the
// instruction was SVC.
func Step(mem Memory, tf *TrapFrame) (bool, error) {
	pc := tf.IP()
	var raw [InstructionSize]byte
	if err := mem.CopyIn(raw[:], pc); err != nil {
		return false, &Fault{Kind: FetchFault, PC: pc, Addr: pc}
	}
	in, err := Decode(raw[:])
	if err != nil {
		return false, &Fault{Kind: UndefinedInstruction, PC: pc}
	}
	next := pc + InstructionSize
	imm := uint64(int64(in.Imm))
	ea := hostarch.Addr(tf.Reg(in.Rn) + imm)

	switch in.Op {
	case OpNop:
	case OpMovi:
		tf.SetReg(in.Rd, imm)
	case OpMov:
		tf.SetReg(in.Rd, tf.Reg(in.Rn))
	case OpAdd:
		tf.SetReg(in.Rd, tf.Reg(in.Rn)+tf.Reg(in.Rm))
	case OpAddi:
		tf.SetReg(in.Rd, tf.Reg(in.Rn)+imm)
	case OpSub:
		tf.SetReg(in.Rd, tf.Reg(in.Rn)-tf.Reg(in.Rm))
	case OpLdr:
		var b [8]byte
		if err := mem.CopyIn(b[:], ea); err != nil {
			return false, &Fault{Kind: DataFault, PC: pc, Addr: ea}
		}
		tf.SetReg(in.Rd, binary.LittleEndian.Uint64(b[:]))
	case OpStr:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], tf.Reg(in.Rd))
		if err := mem.CopyOut(ea, b[:]); err != nil {
			return false, &Fault{Kind: DataFault, PC: pc, Addr: ea}
		}
	case OpLdrb:
		var b [1]byte
		if err := mem.CopyIn(b[:], ea); err != nil {
			return false, &Fault{Kind: DataFault, PC: pc, Addr: ea}
		}
		tf.SetReg(in.Rd, uint64(b[0]))
	case OpStrb:
		if err := mem.CopyOut(ea, []byte{byte(tf.Reg(in.Rd))}); err != nil {
			return false, &Fault{Kind: DataFault, PC: pc, Addr: ea}
		}
	case OpBeq:
		if tf.Reg(in.Rd) == tf.Reg(in.Rn) {
			next = pc + hostarch.Addr(imm)
		}
	case OpBne:
		if tf.Reg(in.Rd) != tf.Reg(in.Rn) {
			next = pc + hostarch.Addr(imm)
		}
	case OpBlt:
		if int64(tf.Reg(in.Rd)) < int64(tf.Reg(in.Rn)) {
			next = pc + hostarch.Addr(imm)
		}
	case OpB:
		next = pc + hostarch.Addr(imm)
	case OpSvc:
		tf.SetIP(next)
		return true, nil
	case OpAdr:
		tf.SetReg(in.Rd, uint64(pc)+imm)
	}
	tf.SetIP(next)
	return false, nil
}

// Run executes user instructions until the process makes a system call,
// faults, or has executed quantum instructions.
func Run(mem Memory, tf *TrapFrame, quantum int) (Event, error) {
	for i := 0; i < quantum; i++ {
		svc, err := Step(mem, tf)
		if err != nil {
			return 0, err
		}
		if svc {
			return EventSyscall, nil
		}
	}
	return EventTimer, nil
}
