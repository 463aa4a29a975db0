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
	"strings"

	"github.com/google/btree"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/abi/linux"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/fs"
)

// InitPath is the path of the first user program.
const InitPath = "/init"

// MotdPath is the file printed by cat when run without arguments.
const MotdPath = "/etc/motd"

// Program is a file installed at boot.
type Program struct {
	Path        string
	Description string
	Contents    []byte
}

// Registry is an ordered set of programs keyed by path.
type Registry struct {
	progs *btree.BTreeG[*Program]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		progs: btree.NewG(4, func(a, b *Program) bool { return a.Path < b.Path }),
	}
}

// Add registers contents at path.
func (r *Registry) Add(path, desc string, contents []byte) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("program path %q is not absolute: %w", path, linuxerr.EINVAL)
	}
	p := &Program{Path: path, Description: desc, Contents: contents}
	if _, ok := r.progs.Get(p); ok {
		return fmt.Errorf("program %q: %w", path, linuxerr.EEXIST)
	}
	r.progs.ReplaceOrInsert(p)
	return nil
}

// AddImage registers the marshalled image at path.
func (r *Registry) AddImage(path, desc string, img *Image) error {
	return r.Add(path, desc, img.Marshal())
}

// Get returns the program at path.
func (r *Registry) Get(path string) (*Program, bool) {
	return r.progs.Get(&Program{Path: path})
}

// Programs returns every program in path order.
func (r *Registry) Programs() []*Program {
	ps := make([]*Program, 0, r.progs.Len())
	r.progs.Ascend(func(p *Program) bool {
		ps = append(ps, p)
		return true
	})
	return ps
}

// Install creates a file in s for every program.
func (r *Registry) Install(s *fs.MemStorage) error {
	var err error
	r.progs.Ascend(func(p *Program) bool {
		if _, err = s.Create(p.Path, p.Contents); err != nil {
			err = fmt.Errorf("installing %q: %w", p.Path, err)
			return false
		}
		return true
	})
	return err
}

// Builtin returns the built-in programs with an init that runs each of
// initPaths in order. If initPaths is empty, init runs every built-in
// self-test.
func Builtin(initPaths []string) *Registry {
	r := NewRegistry()
	add := func(path, desc string, img *Image) {
		if err := r.AddImage(path, desc, img); err != nil {
			panic(err)
		}
	}
	add(InitPath, "runs each boot program in turn and powers off", InitImage(initPaths))
	add("/bin/hello", "prints a greeting", helloImage())
	add("/bin/echo", "prints its arguments", echoImage())
	add("/bin/cat", "copies a file to the console", catImage())
	add("/bin/forktest", "forks children and reaps them all", forktestImage())
	add("/bin/brktest", "grows and shrinks the heap", brktestImage())
	add("/bin/yield", "yields the processor a few times", yieldImage())
	add("/bin/fault", "stores to an unmapped address", faultImage())
	add("/bin/spin", "loops forever", spinImage())
	if err := r.Add("/bin/greet", "interpreter script run by echo", []byte("#!/bin/echo hello from a script\n")); err != nil {
		panic(err)
	}
	if err := r.Add(MotdPath, "message of the day", []byte("welcome to sunos\n")); err != nil {
		panic(err)
	}
	return r
}

// DefaultInitPaths are the programs run by init when none are configured.
var DefaultInitPaths = []string{
	"/bin/hello",
	"/bin/echo",
	"/bin/cat",
	"/bin/greet",
	"/bin/forktest",
	"/bin/brktest",
	"/bin/yield",
}

// imm reinterprets v as a sign-extended immediate.
func imm(v uint32) int32 {
	return int32(v)
}

// errno returns the negated error number a failing syscall leaves in X0.
func errno(err error) int32 {
	return -int32(linuxerr.ToErrno(err))
}

// exit emits exit(code).
func exit(b *Builder, code int32) {
	b.Movi(X0, code)
	b.Syscall(linux.SYS_EXIT)
}

// puts emits write(1, label, n).
func puts(b *Builder, label string, n int) {
	b.Movi(X0, 1)
	b.Adr(X1, label)
	b.Movi(X2, int32(n))
	b.Syscall(linux.SYS_WRITE)
}

// message defines label as s and returns its length.
func message(b *Builder, label, s string) int {
	b.Bytes(label, []byte(s))
	return len(s)
}

// InitImage returns an init program that forks and execs each of paths in
// order, waiting for each. It then reaps any remaining children and powers
// off with the number of programs that failed as the exit code. An empty
// paths runs DefaultInitPaths.
func InitImage(paths []string) *Image {
	if len(paths) == 0 {
		paths = DefaultInitPaths
	}
	b := NewBuilder()
	b.Movi(X9, 0)
	b.Movi(X23, 0)
	b.Adr(X19, "paths")

	b.Label("next")
	b.Ldrb(X20, X19, 0)
	b.Beq(X20, X9, "reap")
	b.Movi(X0, linux.SIGCHLD)
	b.Movi(X1, 0)
	b.Syscall(linux.SYS_CLONE)
	b.Blt(X0, X9, "forkfail")
	b.Beq(X0, X9, "child")

	b.Movi(X0, -1)
	b.Adr(X1, "status")
	b.Movi(X2, 0)
	b.Movi(X3, 0)
	b.Syscall(linux.SYS_WAIT4)
	b.Adr(X21, "status")
	b.Ldr(X22, X21, 0)
	b.Beq(X22, X9, "advance")
	b.Addi(X23, X23, 1)

	// Step past the NUL ending the current path.
	b.Label("advance")
	b.Ldrb(X20, X19, 0)
	b.Addi(X19, X19, 1)
	b.Bne(X20, X9, "advance")
	b.B("next")

	b.Label("child")
	b.Adr(X21, "argv")
	b.Str(X19, X21, 0)
	b.Str(X9, X21, 8)
	b.Mov(X0, X19)
	b.Mov(X1, X21)
	b.Movi(X2, 0)
	b.Syscall(linux.SYS_EXECVE)
	exit(b, 127)

	b.Label("forkfail")
	b.Addi(X23, X23, 1)

	b.Label("reap")
	b.Movi(X0, -1)
	b.Movi(X1, 0)
	b.Movi(X2, 0)
	b.Movi(X3, 0)
	b.Syscall(linux.SYS_WAIT4)
	b.Blt(X9, X0, "reap")

	b.Movi(X0, imm(linux.LINUX_REBOOT_MAGIC1))
	b.Movi(X1, linux.LINUX_REBOOT_MAGIC2)
	b.Movi(X2, linux.LINUX_REBOOT_CMD_POWER_OFF)
	b.Mov(X3, X23)
	b.Syscall(linux.SYS_REBOOT)
	b.Label("hang")
	b.B("hang")

	var list []byte
	for _, p := range paths {
		list = append(list, p...)
		list = append(list, 0)
	}
	b.Bytes("paths", append(list, 0))
	b.Reserve("status", 8)
	b.Reserve("argv", 16)
	return b.MustImage()
}

func helloImage() *Image {
	b := NewBuilder()
	n := message(b, "msg", "hello, world\n")
	puts(b, "msg", n)
	exit(b, 0)
	return b.MustImage()
}

// echoImage prints argv[1:] separated by spaces.
func echoImage() *Image {
	b := NewBuilder()
	b.Movi(X9, 0)
	b.Addi(X19, X1, 8)

	b.Label("loop")
	b.Ldr(X20, X19, 0)
	b.Beq(X20, X9, "done")
	b.Mov(X21, X20)
	b.Label("len")
	b.Ldrb(X22, X21, 0)
	b.Beq(X22, X9, "write")
	b.Addi(X21, X21, 1)
	b.B("len")
	b.Label("write")
	b.Movi(X0, 1)
	b.Mov(X1, X20)
	b.Sub(X2, X21, X20)
	b.Syscall(linux.SYS_WRITE)
	b.Addi(X19, X19, 8)
	b.Ldr(X20, X19, 0)
	b.Beq(X20, X9, "done")
	puts(b, "space", 1)
	b.B("loop")

	b.Label("done")
	puts(b, "newline", 1)
	exit(b, 0)
	b.Bytes("space", []byte(" "))
	b.Bytes("newline", []byte("\n"))
	return b.MustImage()
}

// catImage copies argv[1], or the message of the day, to the console.
func catImage() *Image {
	b := NewBuilder()
	b.Movi(X9, 0)
	b.Movi(X21, 2)
	b.Adr(X22, "motd")
	b.Blt(X0, X21, "open")
	b.Ldr(X22, X1, 8)

	b.Label("open")
	b.Movi(X0, linux.AT_FDCWD)
	b.Mov(X1, X22)
	b.Movi(X2, linux.O_RDONLY)
	b.Movi(X3, 0)
	b.Syscall(linux.SYS_OPENAT)
	b.Blt(X0, X9, "fail")
	b.Mov(X19, X0)

	b.Label("loop")
	b.Mov(X0, X19)
	b.Adr(X1, "buf")
	b.Movi(X2, 64)
	b.Syscall(linux.SYS_READ)
	b.Blt(X0, X9, "fail")
	b.Beq(X0, X9, "done")
	b.Mov(X2, X0)
	b.Movi(X0, 1)
	b.Adr(X1, "buf")
	b.Syscall(linux.SYS_WRITE)
	b.B("loop")

	b.Label("done")
	b.Mov(X0, X19)
	b.Syscall(linux.SYS_CLOSE)
	exit(b, 0)

	b.Label("fail")
	n := message(b, "err", "cat: cannot read file\n")
	puts(b, "err", n)
	exit(b, 1)

	b.String("motd", MotdPath)
	b.Reserve("buf", 64)
	return b.MustImage()
}

// forktestChildren is the number of children forktest creates.
const forktestChildren = 8

// forktestImage forks children that exit at once, reaps each of them, and
// checks that a further wait reports no children.
func forktestImage() *Image {
	b := NewBuilder()
	b.Movi(X9, 0)
	b.Movi(X19, 0)
	b.Movi(X20, forktestChildren)

	b.Label("fork")
	b.Beq(X19, X20, "wait")
	b.Movi(X0, linux.SIGCHLD)
	b.Movi(X1, 0)
	b.Syscall(linux.SYS_CLONE)
	b.Blt(X0, X9, "fail")
	b.Beq(X0, X9, "child")
	b.Addi(X19, X19, 1)
	b.B("fork")

	b.Label("child")
	exit(b, 0)

	b.Label("wait")
	b.Beq(X19, X9, "extra")
	b.Movi(X0, -1)
	b.Movi(X1, 0)
	b.Movi(X2, 0)
	b.Movi(X3, 0)
	b.Syscall(linux.SYS_WAIT4)
	b.Blt(X0, X9, "fail")
	b.Addi(X19, X19, -1)
	b.B("wait")

	b.Label("extra")
	b.Movi(X0, -1)
	b.Movi(X1, 0)
	b.Movi(X2, 0)
	b.Movi(X3, 0)
	b.Syscall(linux.SYS_WAIT4)
	b.Movi(X21, errno(linuxerr.ECHILD))
	b.Bne(X0, X21, "fail")
	n := message(b, "ok", "forktest ok\n")
	puts(b, "ok", n)
	exit(b, 0)

	b.Label("fail")
	n = message(b, "failed", "forktest failed\n")
	puts(b, "failed", n)
	exit(b, 1)
	return b.MustImage()
}

// brktestImage grows the heap by two pages, touches both, shrinks it back,
// and checks that a request past the user ceiling leaves the break alone.
func brktestImage() *Image {
	b := NewBuilder()
	b.Movi(X0, 0)
	b.Syscall(linux.SYS_BRK)
	b.Mov(X19, X0)

	b.Addi(X0, X19, 2*pageSize)
	b.Syscall(linux.SYS_BRK)
	b.Addi(X21, X19, 2*pageSize)
	b.Bne(X0, X21, "fail")
	b.Movi(X22, 0x5a)
	b.Strb(X22, X19, 0)
	b.Strb(X22, X19, pageSize+100)
	b.Ldrb(X23, X19, pageSize+100)
	b.Bne(X23, X22, "fail")

	b.Mov(X0, X19)
	b.Syscall(linux.SYS_BRK)
	b.Bne(X0, X19, "fail")

	b.Movi(X0, 0x7fffffff)
	b.Syscall(linux.SYS_BRK)
	b.Bne(X0, X19, "fail")
	n := message(b, "ok", "brktest ok\n")
	puts(b, "ok", n)
	exit(b, 0)

	b.Label("fail")
	n = message(b, "failed", "brktest failed\n")
	puts(b, "failed", n)
	exit(b, 1)
	return b.MustImage()
}

// yieldImage yields three times and exits.
func yieldImage() *Image {
	b := NewBuilder()
	b.Movi(X9, 0)
	b.Movi(X19, 3)
	b.Label("loop")
	b.Beq(X19, X9, "done")
	b.Syscall(linux.SYS_SCHED_YIELD)
	b.Addi(X19, X19, -1)
	b.B("loop")
	b.Label("done")
	exit(b, 0)
	return b.MustImage()
}

// faultImage is killed by its first store.
func faultImage() *Image {
	b := NewBuilder()
	b.Movi(X0, 0x40000000)
	b.Str(X0, X0, 0)
	exit(b, 0)
	return b.MustImage()
}

func spinImage() *Image {
	b := NewBuilder()
	b.Label("loop")
	b.Addi(X19, X19, 1)
	b.B("loop")
	return b.MustImage()
}
