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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/cmd/util"
	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/config"
)

// PS implements subcommands.Command for the "ps" command.
type PS struct {
	format string
}

// Name implements subcommands.Command.Name.
func (*PS) Name() string {
	return "ps"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PS) Synopsis() string {
	return "boot the machine and print the process table once it powers off"
}

// Usage implements subcommands.Command.Usage.
func (*PS) Usage() string {
	return `ps [-format=table|dump] - lists the processes left when the machine stops.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (ps *PS) SetFlags(f *flag.FlagSet) {
	f.StringVar(&ps.format, "format", "table", "output format: table or dump (the kernel's procdump).")
}

// Execute implements subcommands.Command.Execute.
func (ps *PS) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if ps.format != "table" && ps.format != "dump" {
		util.Fatalf("Unsupported output format %q", ps.format)
	}

	l, code, err := runMachine(ctx, conf, io.Discard)
	if err != nil {
		util.Fatalf("boot failed: %v", err)
	}
	defer l.Destroy()

	k := l.Kernel()
	switch ps.format {
	case "dump":
		k.ProcDump(os.Stdout)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tPPID\tSTATE\tSIZE\tNAME")
		for _, p := range k.Processes() {
			fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n", p.PID, p.PPID, p.State, p.Size, p.Name)
		}
		if err := w.Flush(); err != nil {
			return subcommands.ExitFailure
		}
	}
	setExitStatus(args, code)
	return subcommands.ExitSuccess
}
