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

package loader

import (
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/arch"
)

// Register names used by the built-in programs.
const (
	X0  uint8 = 0
	X1  uint8 = 1
	X2  uint8 = 2
	X3  uint8 = 3
	X4  uint8 = 4
	X5  uint8 = 5
	X8  uint8 = arch.RegSyscallNo
	X9  uint8 = 9
	X19 uint8 = 19
	X20 uint8 = 20
	X21 uint8 = 21
	X22 uint8 = 22
	X23 uint8 = 23
	SP  uint8 = arch.RegSP
)

// Builder assembles a program image. Text starts at address 0; data follows
// the text, and bss follows the data.
type Builder struct {
	text []arch.Instruction

	// refs maps an instruction index to the label whose address, relative
	// to the instruction, becomes its immediate.
	refs map[int]string

	// textLabels are instruction indices; dataLabels are data offsets.
	textLabels map[string]int
	dataLabels map[string]int
	data       []byte
	bss        uint64

	err error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		refs:       make(map[int]string),
		textLabels: make(map[string]int),
		dataLabels: make(map[string]int),
	}
}

func (b *Builder) defined(name string) bool {
	_, t := b.textLabels[name]
	_, d := b.dataLabels[name]
	return t || d
}

func (b *Builder) emit(in arch.Instruction) {
	b.text = append(b.text, in)
}

func (b *Builder) emitRef(in arch.Instruction, label string) {
	b.refs[len(b.text)] = label
	b.emit(in)
}

// Label defines name at the next instruction.
func (b *Builder) Label(name string) {
	if b.defined(name) {
		b.err = fmt.Errorf("label %q defined twice", name)
		return
	}
	b.textLabels[name] = len(b.text)
}

// Nop emits a no-op.
func (b *Builder) Nop() { b.emit(arch.Instruction{Op: arch.OpNop}) }

// Movi emits rd = imm.
func (b *Builder) Movi(rd uint8, imm int32) {
	b.emit(arch.Instruction{Op: arch.OpMovi, Rd: rd, Imm: imm})
}

// Mov emits rd = rn.
func (b *Builder) Mov(rd, rn uint8) {
	b.emit(arch.Instruction{Op: arch.OpMov, Rd: rd, Rn: rn})
}

// Add emits rd = rn + rm.
func (b *Builder) Add(rd, rn, rm uint8) {
	b.emit(arch.Instruction{Op: arch.OpAdd, Rd: rd, Rn: rn, Rm: rm})
}

// Addi emits rd = rn + imm.
func (b *Builder) Addi(rd, rn uint8, imm int32) {
	b.emit(arch.Instruction{Op: arch.OpAddi, Rd: rd, Rn: rn, Imm: imm})
}

// Sub emits rd = rn - rm.
func (b *Builder) Sub(rd, rn, rm uint8) {
	b.emit(arch.Instruction{Op: arch.OpSub, Rd: rd, Rn: rn, Rm: rm})
}

// Ldr emits a 64-bit load of rd from rn+off.
func (b *Builder) Ldr(rd, rn uint8, off int32) {
	b.emit(arch.Instruction{Op: arch.OpLdr, Rd: rd, Rn: rn, Imm: off})
}

// Str emits a 64-bit store of rd to rn+off.
func (b *Builder) Str(rd, rn uint8, off int32) {
	b.emit(arch.Instruction{Op: arch.OpStr, Rd: rd, Rn: rn, Imm: off})
}

// Ldrb emits a byte load of rd from rn+off.
func (b *Builder) Ldrb(rd, rn uint8, off int32) {
	b.emit(arch.Instruction{Op: arch.OpLdrb, Rd: rd, Rn: rn, Imm: off})
}

// Strb emits a byte store of rd to rn+off.
func (b *Builder) Strb(rd, rn uint8, off int32) {
	b.emit(arch.Instruction{Op: arch.OpStrb, Rd: rd, Rn: rn, Imm: off})
}

// Beq branches to label if rd == rn.
func (b *Builder) Beq(rd, rn uint8, label string) {
	b.emitRef(arch.Instruction{Op: arch.OpBeq, Rd: rd, Rn: rn}, label)
}

// Bne branches to label if rd != rn.
func (b *Builder) Bne(rd, rn uint8, label string) {
	b.emitRef(arch.Instruction{Op: arch.OpBne, Rd: rd, Rn: rn}, label)
}

// Blt branches to label if rd < rn, signed.
func (b *Builder) Blt(rd, rn uint8, label string) {
	b.emitRef(arch.Instruction{Op: arch.OpBlt, Rd: rd, Rn: rn}, label)
}

// B branches to label.
func (b *Builder) B(label string) {
	b.emitRef(arch.Instruction{Op: arch.OpB}, label)
}

// Adr loads the address of a text or data label into rd.
func (b *Builder) Adr(rd uint8, label string) {
	b.emitRef(arch.Instruction{Op: arch.OpAdr, Rd: rd}, label)
}

// Svc emits a system call.
func (b *Builder) Svc() { b.emit(arch.Instruction{Op: arch.OpSvc}) }

// Syscall loads nr into the syscall number register and emits SVC.
// Arguments must already be in X0-X5.
func (b *Builder) Syscall(nr int32) {
	b.Movi(X8, nr)
	b.Svc()
}

// Bytes defines label as the address of data in the data section, padded to
// an 8-byte boundary.
func (b *Builder) Bytes(label string, data []byte) {
	if b.defined(label) {
		b.err = fmt.Errorf("label %q defined twice", label)
		return
	}
	b.dataLabels[label] = len(b.data)
	b.data = append(b.data, data...)
	for len(b.data)%8 != 0 {
		b.data = append(b.data, 0)
	}
}

// String defines label as a NUL-terminated copy of s.
func (b *Builder) String(label, s string) {
	b.Bytes(label, append([]byte(s), 0))
}

// Reserve defines label as n zeroed bytes after the data section.
func (b *Builder) Reserve(label string, n uint64) {
	if b.defined(label) {
		b.err = fmt.Errorf("label %q defined twice", label)
		return
	}
	// bss offsets are stored negated past the data so they can share the
	// data label namespace.
	b.dataLabels[label] = -1 - int(b.bss)
	b.bss += (n + 7) &^ 7
}

func (b *Builder) address(label string, textEnd uint64) (uint64, bool) {
	if i, ok := b.textLabels[label]; ok {
		return uint64(i) * arch.InstructionSize, true
	}
	off, ok := b.dataLabels[label]
	if !ok {
		return 0, false
	}
	if off >= 0 {
		return textEnd + uint64(off), true
	}
	return textEnd + uint64(len(b.data)) + uint64(-1-off), true
}

// Image resolves labels and returns the assembled program as a single
// segment at address 0 with its entry at the first instruction.
func (b *Builder) Image() (*Image, error) {
	if b.err != nil {
		return nil, b.err
	}
	textEnd := uint64(len(b.text)) * arch.InstructionSize
	var code []byte
	for i, in := range b.text {
		if label, ok := b.refs[i]; ok {
			target, ok := b.address(label, textEnd)
			if !ok {
				return nil, fmt.Errorf("undefined label %q", label)
			}
			in.Imm = int32(int64(target) - int64(i)*arch.InstructionSize)
		}
		code = in.Encode(code)
	}
	code = append(code, b.data...)
	memSize := uint64(len(code)) + b.bss
	if memSize == 0 {
		return nil, fmt.Errorf("empty program")
	}
	img := &Image{
		Entry: 0,
		Segments: []Segment{{
			VA:      0,
			Data:    code,
			MemSize: memSize,
		}},
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// MustImage is Image, but panics on error. It is used for built-in programs.
func (b *Builder) MustImage() *Image {
	img, err := b.Image()
	if err != nil {
		panic(fmt.Sprintf("assembling built-in program: %v", err))
	}
	return img
}

// pageSize as an int32 immediate.
const pageSize = int32(hostarch.PageSize)
