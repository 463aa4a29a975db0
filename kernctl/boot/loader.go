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

// Package boot builds a machine from a Config and runs it until init powers
// it off.
package boot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/config"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/cleanup"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/fs"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/kernel"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/loader"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/pgalloc"
	slinux "github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/syscalls/linux"
)

// Loader keeps state needed to run a machine.
type Loader struct {
	// k is the kernel.
	k *kernel.Kernel

	conf *config.Config

	// frames is physical memory. It is unmapped by Destroy.
	frames *pgalloc.Allocator

	// programs are the files installed in storage.
	programs *loader.Registry
}

// New creates a machine configured by conf, with the built-in programs
// installed and init ready to run. Console output goes to console.
func New(conf *config.Config, console io.Writer) (*Loader, error) {
	frames, err := pgalloc.New(pgalloc.Options{
		Frames:   conf.Frames,
		Reserved: conf.ReservedFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating physical memory: %w", err)
	}
	cu := cleanup.Make(func() {
		if err := frames.Release(); err != nil {
			log.Warningf("Releasing physical memory: %v", err)
		}
	})
	defer cu.Clean()

	programs := loader.Builtin(conf.InitPrograms)
	storage := fs.NewMemStorage()
	if err := programs.Install(storage); err != nil {
		return nil, fmt.Errorf("error installing programs: %w", err)
	}

	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		ApplicationCores: conf.CPUs,
		MaxProcs:         conf.Procs,
		Quantum:          conf.Quantum,
		Frames:           frames,
		Storage:          storage,
		Loader:           &loader.FSLoader{Storage: storage},
		Console:          console,
		Syscalls:         slinux.ARM64,
	}); err != nil {
		return nil, fmt.Errorf("error initializing kernel: %w", err)
	}

	// init is installed like any other program, but its image is placed in
	// memory directly instead of being exec'd.
	prog, ok := programs.Get(loader.InitPath)
	if !ok {
		return nil, fmt.Errorf("no program at %q", loader.InitPath)
	}
	img, err := loader.Parse(prog.Contents)
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", loader.InitPath, err)
	}
	if _, err := k.UserInit(img.Flatten()); err != nil {
		return nil, fmt.Errorf("error creating init: %w", err)
	}

	cu.Release()
	return &Loader{
		k:        k,
		conf:     conf,
		frames:   frames,
		programs: programs,
	}, nil
}

// Kernel returns the machine's kernel.
func (l *Loader) Kernel() *kernel.Kernel {
	return l.k
}

// Programs returns the programs installed on the machine.
func (l *Loader) Programs() *loader.Registry {
	return l.programs
}

// Run runs the machine until init powers it off and returns init's exit
// code, which is the number of boot programs that failed. It fails if ctx is
// cancelled or the configured timeout elapses first.
func (l *Loader) Run(ctx context.Context) (int32, error) {
	if l.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.conf.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := l.k.Run(ctx); err != nil {
		return 0, fmt.Errorf("machine did not power off: %w", err)
	}
	code, ok := l.k.ExitCode()
	if !ok {
		return 0, fmt.Errorf("machine stopped without powering off")
	}
	log.Infof("Machine powered off after %v with code %d", time.Since(start), code)
	return code, nil
}

// Destroy releases the machine's memory. The machine must not be running.
func (l *Loader) Destroy() {
	if err := l.frames.Release(); err != nil {
		log.Warningf("Releasing physical memory: %v", err)
	}
}
