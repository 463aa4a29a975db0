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
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/metric"
)

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct {
	console bool
}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "boot the machine and print its metrics once it powers off"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics [-console] - prints kernel metric data in Prometheus text format
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Metrics) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.console, "console", false, "copy the console to stderr.")
}

// Execute implements subcommands.Command.Execute.
func (m *Metrics) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	console := io.Discard
	if m.console {
		console = os.Stderr
	}
	l, code, err := runMachine(ctx, conf, console)
	if err != nil {
		util.Fatalf("boot failed: %v", err)
	}
	defer l.Destroy()

	if err := metric.WriteText(os.Stdout); err != nil {
		util.Fatalf("Cannot write metrics to stdout: %v", err)
	}
	setExitStatus(args, code)
	return subcommands.ExitSuccess
}
