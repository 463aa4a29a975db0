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

// Package cmd holds implementations of the kernctl commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/boot"
	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/config"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/abi/linux"
	"golang.org/x/sys/unix"
)

// runMachine boots a machine configured by conf and runs it until it powers
// off. The caller must Destroy the returned loader.
func runMachine(ctx context.Context, conf *config.Config, console io.Writer) (*boot.Loader, int32, error) {
	l, err := boot.New(conf, console)
	if err != nil {
		return nil, 0, err
	}
	code, err := l.Run(ctx)
	if err != nil {
		l.Destroy()
		return nil, 0, err
	}
	return l, code, nil
}

// setExitStatus reports code as the exit status of kernctl.
func setExitStatus(args []any, code int32) {
	if len(args) > 1 {
		if ws, ok := args[1].(*unix.WaitStatus); ok {
			*ws = unix.WaitStatus(linux.WaitStatusExit(code))
		}
	}
}

// bootBanner is printed ahead of the console when it is a terminal.
func bootBanner(conf *config.Config) string {
	programs := "self-tests"
	if len(conf.InitPrograms) > 0 {
		programs = strings.Join(conf.InitPrograms, ",")
	}
	return fmt.Sprintf("[sunos: %d cores, %d frames, init runs %s]\n", conf.CPUs, conf.Frames, programs)
}

// powerOffBanner follows the console when it is a terminal.
func powerOffBanner(code int32) string {
	return fmt.Sprintf("[sunos: powered off, exit code %d]\n", code)
}
