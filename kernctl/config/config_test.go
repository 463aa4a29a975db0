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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	return fs
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet())
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		CPUs:           4,
		Procs:          64,
		Frames:         4096,
		ReservedFrames: 16,
		Quantum:        1000,
		LogFormat:      "text",
		Timeout:        30 * time.Second,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	if err := testFlags.Parse([]string{"--cpus=2", "--debug", "--init=/bin/hello, /bin/cat", "--timeout=5s"}); err != nil {
		t.Fatal(err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint(2); c.CPUs != want {
		t.Errorf("CPUs=%v, want: %v", c.CPUs, want)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if diff := cmp.Diff(ProgramList{"/bin/hello", "/bin/cat"}, c.InitPrograms); diff != "" {
		t.Errorf("InitPrograms mismatch (-want +got):\n%s", diff)
	}
	if want := 5 * time.Second; c.Timeout != want {
		t.Errorf("Timeout=%v, want: %v", c.Timeout, want)
	}

	flags := c.ToFlags()
	want := []string{"--cpus=2", "--debug=true", "--init=/bin/hello,/bin/cat", "--timeout=5s"}
	if diff := cmp.Diff(want, flags); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "kernctl.toml")
	contents := strings.Join([]string{
		`cpus = 1`,
		`quantum = 50`,
		`init = ["/bin/yield"]`,
		`timeout = "1m"`,
	}, "\n")
	if err := os.WriteFile(name, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	testFlags := newFlagSet()
	if err := testFlags.Parse([]string{"--config=" + name, "--quantum=75"}); err != nil {
		t.Fatal(err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint(1); c.CPUs != want {
		t.Errorf("CPUs=%v, want: %v", c.CPUs, want)
	}
	// The command line wins over the file.
	if want := 75; c.Quantum != want {
		t.Errorf("Quantum=%v, want: %v", c.Quantum, want)
	}
	if diff := cmp.Diff(ProgramList{"/bin/yield"}, c.InitPrograms); diff != "" {
		t.Errorf("InitPrograms mismatch (-want +got):\n%s", diff)
	}
	if want := time.Minute; c.Timeout != want {
		t.Errorf("Timeout=%v, want: %v", c.Timeout, want)
	}
}

func TestConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("cpus = \"many\""), 0644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{bad, filepath.Join(dir, "missing.toml")} {
		testFlags := newFlagSet()
		if err := testFlags.Set(configFlag, name); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFromFlags(testFlags); err == nil {
			t.Errorf("NewFromFlags with config %q succeeded", name)
		}
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags []string
	}{
		{name: "no cpus", flags: []string{"--cpus=0"}},
		{name: "too many cpus", flags: []string{"--cpus=9"}},
		{name: "no procs", flags: []string{"--procs=0"}},
		{name: "too few frames", flags: []string{"--frames=70", "--reserved-frames=16"}},
		{name: "negative reserved", flags: []string{"--reserved-frames=-1"}},
		{name: "zero quantum", flags: []string{"--quantum=0"}},
		{name: "log format", flags: []string{"--log-format=xml"}},
		{name: "relative program", flags: []string{"--init=bin/hello"}},
		{name: "negative timeout", flags: []string{"--timeout=-1s"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlagSet()
			if err := testFlags.Parse(tc.flags); err != nil {
				t.Fatal(err)
			}
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags(%v) succeeded", tc.flags)
			}
		})
	}
}

func TestClone(t *testing.T) {
	c, err := NewFromFlags(newFlagSet())
	if err != nil {
		t.Fatal(err)
	}
	c.InitPrograms = ProgramList{"/bin/hello"}
	clone := c.Clone()
	if diff := cmp.Diff(c, clone); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}
	clone.InitPrograms[0] = "/bin/cat"
	clone.CPUs = 1
	if c.InitPrograms[0] != "/bin/hello" || c.CPUs != 4 {
		t.Errorf("modifying the clone changed the original: %+v", c)
	}
}
