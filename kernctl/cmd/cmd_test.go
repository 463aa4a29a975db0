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
	"bytes"
	"context"
	"flag"
	"testing"

	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/config"
	"golang.org/x/sys/unix"
)

func TestRunMachine(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse([]string{"--cpus=1", "--frames=256", "--init=/bin/hello,/bin/fault"}); err != nil {
		t.Fatal(err)
	}
	conf, err := config.NewFromFlags(fs)
	if err != nil {
		t.Fatal(err)
	}

	var console bytes.Buffer
	l, code, err := runMachine(context.Background(), conf, &console)
	if err != nil {
		t.Fatalf("runMachine: %v", err)
	}
	defer l.Destroy()
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if got, want := console.String(), "hello, world\n"; got != want {
		t.Errorf("console = %q, want %q", got, want)
	}

	var ws unix.WaitStatus
	setExitStatus([]any{conf, &ws}, code)
	if !ws.Exited() || ws.ExitStatus() != 1 {
		t.Errorf("wait status %#x, want exit status 1", uint32(ws))
	}
}

func TestBanners(t *testing.T) {
	conf := &config.Config{CPUs: 2, Frames: 512}
	if got, want := bootBanner(conf), "[sunos: 2 cores, 512 frames, init runs self-tests]\n"; got != want {
		t.Errorf("bootBanner() = %q, want %q", got, want)
	}
	conf.InitPrograms = config.ProgramList{"/bin/hello", "/bin/cat"}
	if got, want := bootBanner(conf), "[sunos: 2 cores, 512 frames, init runs /bin/hello,/bin/cat]\n"; got != want {
		t.Errorf("bootBanner() = %q, want %q", got, want)
	}
	if got, want := powerOffBanner(3), "[sunos: powered off, exit code 3]\n"; got != want {
		t.Errorf("powerOffBanner() = %q, want %q", got, want)
	}
}
