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

package cmd

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/cmd/util"
	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/config"
	"golang.org/x/term"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	// init overrides the init programs of the configuration.
	init config.ProgramList
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the machine and run init until it powers off"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [-init=<program>[,<program>...]] - boots the machine, printing the console to stdout.

The exit status is the number of init programs that failed.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.Var(&b.init, "init", "comma-separated programs init runs in order, overriding the global --init.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if len(b.init) > 0 {
		conf = conf.Clone()
		conf.InitPrograms = b.init
	}

	// Banners are only for people; piped output is the bare console.
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		io.WriteString(os.Stdout, bootBanner(conf))
	}
	l, code, err := runMachine(ctx, conf, os.Stdout)
	if err != nil {
		util.Fatalf("boot failed: %v", err)
	}
	defer l.Destroy()
	if interactive {
		io.WriteString(os.Stdout, powerOffBanner(code))
	}
	setExitStatus(args, code)
	return subcommands.ExitSuccess
}
