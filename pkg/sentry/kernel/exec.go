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
	"encoding/binary"
	"path"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/abi/linux"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/cleanup"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/mm"
)

const (
	// MaxArgs is the maximum number of exec arguments.
	MaxArgs = 32

	// userStackPages is the size of a fresh user stack. The lower page is
	// a guard page inaccessible to user mode.
	userStackPages = 2
)

// Exec replaces p's memory with the program at filename and returns argc.
// On success p resumes at the program's entry point with X0 = argc, X1 =
// argv and the stack pointer at argc:
//
//	sp ->	argc
//		argv[0] ... argv[argc-1], NULL
//		NULL				(envp)
//		0, AT_PAGESZ, PageSize, AT_NULL	(auxv)
//		argument strings, each 16-byte aligned
//
// On failure p is unchanged.
func (p *Proc) Exec(filename string, argv []string) (int, error) {
	if len(argv) > MaxArgs {
		return 0, linuxerr.E2BIG
	}
	img, argv, err := p.k.loader.Load(p, filename, argv)
	if err != nil {
		return 0, err
	}
	if len(argv) > MaxArgs {
		return 0, linuxerr.E2BIG
	}

	as, err := mm.New(p.k.frames)
	if err != nil {
		return 0, err
	}
	cu := cleanup.Make(as.Release)
	defer cu.Clean()

	sz, err := img.MapInto(as)
	if err != nil {
		return 0, err
	}
	if sz, err = as.Grow(sz, sz+userStackPages*hostarch.PageSize); err != nil {
		return 0, err
	}
	as.ClearUser(hostarch.Addr(sz - userStackPages*hostarch.PageSize))

	sp := sz
	push := func(b []byte) error {
		sp -= uint64(len(b))
		return as.CopyOut(hostarch.Addr(sp), b)
	}
	words := func(vs ...uint64) []byte {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			binary.LittleEndian.PutUint64(b[8*i:], v)
		}
		return b
	}

	ustack := make([]uint64, len(argv)+1)
	for i, arg := range argv {
		sp -= uint64(len(arg) + 1)
		sp &^= 15
		if err := as.CopyOut(hostarch.Addr(sp), append([]byte(arg), 0)); err != nil {
			return 0, err
		}
		ustack[i] = sp
	}
	argc := uint64(len(argv))
	if argc%2 == 0 {
		sp -= 8
	}
	if err := push(words(0, linux.AT_PAGESZ, hostarch.PageSize, linux.AT_NULL)); err != nil {
		return 0, err
	}
	if err := push(words(0)); err != nil {
		return 0, err
	}
	if err := push(words(ustack...)); err != nil {
		return 0, err
	}
	argvAddr := sp
	if err := push(words(argc)); err != nil {
		return 0, err
	}

	// Commit to the new image.
	cu.Release()
	old := p.as
	p.as = as
	p.size = sz
	p.name = path.Base(filename)
	p.tf.SetIP(hostarch.Addr(img.Entry))
	p.tf.SetStack(hostarch.Addr(sp))
	p.tf.Regs[0] = argc
	p.tf.Regs[1] = argvAddr
	p.activate()
	old.Release()
	log.Debugf("pid %d: exec %q with %d args, %d bytes", p.pid, filename, argc, sz)
	return int(argc), nil
}
