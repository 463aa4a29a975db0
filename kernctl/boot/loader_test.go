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

package boot

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/sun-23/sun-xv6-rspi3-os/kernctl/config"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	conf, err := config.NewFromFlags(fs)
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

func TestBoot(t *testing.T) {
	var console bytes.Buffer
	conf := testConfig(t, "--cpus=2", "--frames=512", "--init=/bin/hello,/bin/cat")
	l, err := New(conf, &console)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Destroy()

	code, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if got, want := console.String(), "hello, world\nwelcome to sunos\n"; got != want {
		t.Errorf("console = %q, want %q", got, want)
	}
	if _, ok := l.Programs().Get("/bin/hello"); !ok {
		t.Errorf("/bin/hello not installed")
	}
}

func TestBootTimeout(t *testing.T) {
	conf := testConfig(t, "--cpus=1", "--frames=512", "--init=/bin/spin", "--timeout=100ms")
	l, err := New(conf, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Destroy()

	start := time.Now()
	if _, err := l.Run(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want %v", err, context.DeadlineExceeded)
	}
	if d := time.Since(start); d > 10*time.Second {
		t.Errorf("Run took %v after a 100ms timeout", d)
	}
	if got := len(l.Kernel().Processes()); got != 2 {
		t.Errorf("%d processes, want init and spin", got)
	}
}

func TestNewErrors(t *testing.T) {
	conf := testConfig(t)
	conf.ReservedFrames = conf.Frames
	if _, err := New(conf, &bytes.Buffer{}); err == nil {
		t.Errorf("New with every frame reserved succeeded")
	}
}
