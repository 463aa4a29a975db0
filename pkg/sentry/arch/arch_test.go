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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
)

// flatMemory is a single writable region starting at address 0, with an
// optional read-only page.
type flatMemory struct {
	b        []byte
	readOnly hostarch.Addr
}

var errFault = errors.New("fault")

func (m *flatMemory) CopyIn(dst []byte, va hostarch.Addr) error {
	if uint64(va)+uint64(len(dst)) > uint64(len(m.b)) {
		return errFault
	}
	copy(dst, m.b[va:])
	return nil
}

func (m *flatMemory) CopyOut(va hostarch.Addr, src []byte) error {
	end := va + hostarch.Addr(len(src))
	if uint64(end) > uint64(len(m.b)) || (m.readOnly != 0 && end > m.readOnly && va < m.readOnly+hostarch.PageSize) {
		return errFault
	}
	copy(m.b[va:], src)
	return nil
}

func assemble(prog ...Instruction) []byte {
	var b []byte
	for _, in := range prog {
		b = in.Encode(b)
	}
	return b
}

func TestEncodeDecode(t *testing.T) {
	in := Instruction{Op: OpBlt, Rd: 3, Rn: RegSP, Imm: -16}
	got, err := Decode(in.Encode(nil))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
	if _, err := Decode([]byte{byte(numOps), 0, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Errorf("Decode of an undefined opcode succeeded")
	}
	if _, err := Decode([]byte{byte(OpMov), 32, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Errorf("Decode of a bad register succeeded")
	}
}

func TestRunLoop(t *testing.T) {
	// Sum 1..5 into x0, store it at 0x800, then make system call 93.
	code := assemble(
		Instruction{Op: OpMovi, Rd: 0, Imm: 0},
		Instruction{Op: OpMovi, Rd: 1, Imm: 5},
		Instruction{Op: OpMovi, Rd: 2, Imm: 0},
		// loop: x0 += x1; x1--; bne loop
		Instruction{Op: OpAdd, Rd: 0, Rn: 0, Rm: 1},
		Instruction{Op: OpAddi, Rd: 1, Rn: 1, Imm: -1},
		Instruction{Op: OpBne, Rd: 1, Rn: 2, Imm: -16},
		Instruction{Op: OpMovi, Rd: 3, Imm: 0x800},
		Instruction{Op: OpStr, Rd: 0, Rn: 3},
		Instruction{Op: OpLdrb, Rd: 4, Rn: 3},
		Instruction{Op: OpMovi, Rd: RegSyscallNo, Imm: 93},
		Instruction{Op: OpSvc},
	)
	mem := &flatMemory{b: make([]byte, hostarch.PageSize)}
	copy(mem.b, code)
	var tf TrapFrame

	ev, err := Run(mem, &tf, 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ev != EventSyscall {
		t.Fatalf("Run = %v, want EventSyscall", ev)
	}
	if got := tf.Regs[0]; got != 15 {
		t.Errorf("x0 = %d, want 15", got)
	}
	if got := tf.Regs[4]; got != 15 {
		t.Errorf("x4 = %d, want 15", got)
	}
	if got := tf.SyscallNo(); got != 93 {
		t.Errorf("SyscallNo() = %d, want 93", got)
	}
	if got, want := tf.Pc, uint64(len(code)); got != want {
		t.Errorf("pc after svc = %#x, want %#x", got, want)
	}
}

func TestRunQuantum(t *testing.T) {
	// b . spins forever.
	mem := &flatMemory{b: make([]byte, hostarch.PageSize)}
	copy(mem.b, assemble(Instruction{Op: OpB, Imm: 0}))
	var tf TrapFrame
	ev, err := Run(mem, &tf, 10)
	if err != nil || ev != EventTimer {
		t.Errorf("Run = (%v, %v), want (EventTimer, nil)", ev, err)
	}
}

func TestRunFaults(t *testing.T) {
	for _, tc := range []struct {
		name string
		code []byte
		pc   uint64
		want FaultKind
	}{
		{
			name: "fetch",
			pc:   2 * hostarch.PageSize,
			want: FetchFault,
		},
		{
			name: "undefined",
			code: []byte{0xff, 0, 0, 0, 0, 0, 0, 0},
			want: UndefinedInstruction,
		},
		{
			name: "store to read-only page",
			code: assemble(
				Instruction{Op: OpMovi, Rd: 1, Imm: hostarch.PageSize},
				Instruction{Op: OpStrb, Rd: 0, Rn: 1},
			),
			want: DataFault,
		},
		{
			name: "load past end",
			code: assemble(
				Instruction{Op: OpMovi, Rd: 1, Imm: 4 * hostarch.PageSize},
				Instruction{Op: OpLdr, Rd: 0, Rn: 1},
			),
			want: DataFault,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mem := &flatMemory{b: make([]byte, 2*hostarch.PageSize), readOnly: hostarch.PageSize}
			copy(mem.b, tc.code)
			tf := TrapFrame{Pc: tc.pc}
			_, err := Run(mem, &tf, 10)
			var f *Fault
			if !errors.As(err, &f) {
				t.Fatalf("Run error = %v, want *Fault", err)
			}
			if f.Kind != tc.want {
				t.Errorf("fault kind = %v, want %v", f.Kind, tc.want)
			}
		})
	}
}

func TestAdrAndSP(t *testing.T) {
	mem := &flatMemory{b: make([]byte, hostarch.PageSize)}
	copy(mem.b, assemble(
		Instruction{Op: OpNop},
		Instruction{Op: OpAdr, Rd: 5, Imm: 24},
		Instruction{Op: OpAddi, Rd: RegSP, Rn: RegSP, Imm: -16},
		Instruction{Op: OpSvc},
	))
	tf := TrapFrame{Sp: 0x1000}
	if _, err := Run(mem, &tf, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tf.Regs[5] != 8+24 {
		t.Errorf("adr result = %#x, want %#x", tf.Regs[5], 8+24)
	}
	if tf.Sp != 0x1000-16 {
		t.Errorf("sp = %#x, want %#x", tf.Sp, 0x1000-16)
	}
}

func TestTrapFrameAt(t *testing.T) {
	kstack := make([]byte, hostarch.PageSize)
	tf := TrapFrameAt(kstack)
	tf.SetReturn(0x1122334455667788)
	tf.Pstate = 0xaa
	off := len(kstack) - TrapFrameSize
	if kstack[off] != 0x88 {
		t.Errorf("x0 not stored at the start of the frame")
	}
	if kstack[len(kstack)-8] != 0xaa {
		t.Errorf("pstate not stored at the top of the stack")
	}
	for i := range 6 {
		tf.Regs[i] = uint64(i + 1)
	}
	args := tf.SyscallArgs()
	if got := args[5].Int(); got != 6 {
		t.Errorf("args[5] = %d, want 6", got)
	}
}

func TestSwitch(t *testing.T) {
	// Two contexts hand control back and forth; only one runs at a time.
	sched := NewRunningContext()
	var trace []int
	var worker *Context
	worker = NewContext(func() {
		for i := 0; i < 3; i++ {
			trace = append(trace, 2*i+1)
			Switch(worker, sched)
		}
		trace = append(trace, -1)
		Switch(worker, sched)
	})
	for i := 0; i < 3; i++ {
		trace = append(trace, 2*i)
		Switch(sched, worker)
	}
	worker.Retire()
	want := []int{0, 1, 2, 3, 4, 5}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}
