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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/fs"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

type soloSleeper struct{}

func (soloSleeper) Sleep(ch any, lk *sync.SpinLock) { panic("soloSleeper cannot sleep") }
func (soloSleeper) Wakeup(ch any)                   {}
func (soloSleeper) Owner() *sync.Owner              { return nil }
func (soloSleeper) PID() int                        { return 1 }

func TestParseInterpreterScript(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
		argv     []string
		interp   string
		wantArgv []string
		wantErr  bool
	}{
		{
			name:     "no argument",
			contents: "#!/bin/echo\n",
			argv:     []string{"greet", "a"},
			interp:   "/bin/echo",
			wantArgv: []string{"/bin/echo", "/bin/greet", "a"},
		},
		{
			name:     "argument with spaces",
			contents: "#! /bin/echo hello  there\nignored",
			argv:     []string{"greet"},
			interp:   "/bin/echo",
			wantArgv: []string{"/bin/echo", "hello  there", "/bin/greet"},
		},
		{
			name:     "empty argv",
			contents: "#!/bin/echo",
			interp:   "/bin/echo",
			wantArgv: []string{"/bin/echo", "/bin/greet"},
		},
		{
			name:     "no interpreter",
			contents: "#!   \n/bin/echo",
			wantErr:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			interp, argv, err := parseInterpreterScript("/bin/greet", []byte(tc.contents), tc.argv)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseInterpreterScript got nil error, want one")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInterpreterScript: %v", err)
			}
			if interp != tc.interp {
				t.Errorf("interpreter = %q, want %q", interp, tc.interp)
			}
			if diff := cmp.Diff(tc.wantArgv, argv); diff != "" {
				t.Errorf("argv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInterpreterLineTruncated(t *testing.T) {
	long := "#!/bin/echo "
	for len(long) < 200 {
		long += "x"
	}
	_, argv, err := parseInterpreterScript("/s", []byte(long), nil)
	if err != nil {
		t.Fatalf("parseInterpreterScript: %v", err)
	}
	if got, want := len(argv[1]), interpMaxLineLength-len("#!/bin/echo "); got != want {
		t.Errorf("argument length = %d, want %d", got, want)
	}
}

func TestImageRoundTrip(t *testing.T) {
	img := &Image{
		Entry: 0x1008,
		Segments: []Segment{
			{VA: 0x1000, Data: []byte("text"), MemSize: 0x10},
			{VA: 0x3000, Data: nil, MemSize: 0x2000},
		},
	}
	got, err := Parse(img.Marshal())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(img, got, cmp.Transformer("bytes", func(b []byte) string { return string(b) })); diff != "" {
		t.Errorf("image mismatch (-want +got):\n%s", diff)
	}
	if got, want := img.Size(), uint64(0x5000); got != want {
		t.Errorf("Size = %#x, want %#x", got, want)
	}
	flat := img.Flatten()
	if got, want := len(flat), 0x5000; got != want {
		t.Fatalf("len(Flatten()) = %#x, want %#x", got, want)
	}
	if got := string(flat[0x1000:0x1004]); got != "text" {
		t.Errorf("Flatten()[0x1000:0x1004] = %q, want %q", got, "text")
	}
}

func TestParseRejects(t *testing.T) {
	good := helloImage().Marshal()
	for _, tc := range []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("\x7fELF"), good[4:]...)},
		{"truncated", good[:len(good)-1]},
		{"script", []byte("#!/bin/echo\n")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.b); !errors.Is(err, linuxerr.ENOEXEC) {
				t.Errorf("Parse = %v, want ENOEXEC", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		img  Image
	}{
		{"no segments", Image{}},
		{"data exceeds memory", Image{Segments: []Segment{{Data: []byte("abc"), MemSize: 2}}}},
		{"overlap", Image{Segments: []Segment{{MemSize: 0x2000}, {VA: 0x1000, MemSize: 0x1000}}}},
		{"past ceiling", Image{Segments: []Segment{{MemSize: 1<<30 + 1}}}},
		{"entry outside", Image{Entry: 0x5000, Segments: []Segment{{MemSize: 0x1000}}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.img.Validate(); !errors.Is(err, linuxerr.ENOEXEC) {
				t.Errorf("Validate = %v, want ENOEXEC", err)
			}
		})
	}
}

func TestBuilderLabels(t *testing.T) {
	b := NewBuilder()
	b.B("nowhere")
	if _, err := b.Image(); err == nil {
		t.Errorf("Image with an undefined label succeeded")
	}

	b = NewBuilder()
	b.Label("x")
	b.Nop()
	b.String("x", "dup")
	if _, err := b.Image(); err == nil {
		t.Errorf("Image with a duplicate label succeeded")
	}

	b = NewBuilder()
	b.Label("top")
	b.Nop()
	b.Adr(X0, "msg")
	b.B("top")
	b.String("msg", "hi")
	b.Reserve("buf", 3)
	img, err := b.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	// Three instructions, the padded string, and the rounded-up bss.
	if got, want := img.Segments[0].MemSize, uint64(3*8+8+8); got != want {
		t.Errorf("MemSize = %d, want %d", got, want)
	}
	if got, want := len(img.Segments[0].Data), 3*8+8; got != want {
		t.Errorf("len(Data) = %d, want %d", got, want)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Add("/b", "", []byte("b")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("/a", "", []byte("a")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("/a", "", nil); !errors.Is(err, linuxerr.EEXIST) {
		t.Errorf("Add of an existing path = %v, want EEXIST", err)
	}
	if err := r.Add("rel", "", nil); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("Add of a relative path = %v, want EINVAL", err)
	}
	var paths []string
	for _, p := range r.Programs() {
		paths = append(paths, p.Path)
	}
	if diff := cmp.Diff([]string{"/a", "/b"}, paths); diff != "" {
		t.Errorf("Programs mismatch (-want +got):\n%s", diff)
	}
	if _, ok := r.Get("/c"); ok {
		t.Errorf("Get(/c) found a program")
	}
}

func TestBuiltinInstall(t *testing.T) {
	r := Builtin(nil)
	s := fs.NewMemStorage()
	if err := r.Install(s); err != nil {
		t.Fatalf("Install: %v", err)
	}
	for _, p := range DefaultInitPaths {
		if _, ok := r.Get(p); !ok {
			t.Errorf("default init program %q is not built in", p)
		}
	}
	if err := r.Install(s); !errors.Is(err, linuxerr.EEXIST) {
		t.Errorf("second Install = %v, want EEXIST", err)
	}
}

func TestInitImageDefaults(t *testing.T) {
	want := InitImage(DefaultInitPaths).Marshal()
	if diff := cmp.Diff(want, InitImage(nil).Marshal()); diff != "" {
		t.Errorf("InitImage(nil) mismatch (-want +got):\n%s", diff)
	}
	prog, ok := Builtin(nil).Get(InitPath)
	if !ok {
		t.Fatalf("no program at %q", InitPath)
	}
	if diff := cmp.Diff(want, prog.Contents); diff != "" {
		t.Errorf("installed init mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, InitImage([]string{"/bin/hello"}).Marshal()); diff == "" {
		t.Errorf("InitImage(/bin/hello) equals the default init")
	}
}

func TestFSLoader(t *testing.T) {
	s := fs.NewMemStorage()
	if err := Builtin(nil).Install(s); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := s.Create("/bin/nested", []byte("#!/bin/greet\n")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	l := &FSLoader{Storage: s}

	img, argv, err := l.Load(soloSleeper{}, "/bin/hello", []string{"hello"})
	if err != nil {
		t.Fatalf("Load(/bin/hello): %v", err)
	}
	if diff := cmp.Diff(helloImage(), img, cmp.Transformer("bytes", func(b []byte) string { return string(b) })); diff != "" {
		t.Errorf("image mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"hello"}, argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}

	_, argv, err = l.Load(soloSleeper{}, "/bin/greet", []string{"greet", "x"})
	if err != nil {
		t.Fatalf("Load(/bin/greet): %v", err)
	}
	if diff := cmp.Diff([]string{"/bin/echo", "hello from a script", "/bin/greet", "x"}, argv); diff != "" {
		t.Errorf("script argv mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		path string
		want error
	}{
		{"/bin/missing", linuxerr.ENOENT},
		{"/", linuxerr.EACCES},
		{MotdPath, linuxerr.ENOEXEC},
		{"/bin/nested", linuxerr.ENOEXEC},
	} {
		if _, _, err := l.Load(soloSleeper{}, tc.path, nil); !errors.Is(err, tc.want) {
			t.Errorf("Load(%q) = %v, want %v", tc.path, err, tc.want)
		}
	}
	for _, name := range s.Names() {
		ip, err := s.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		// Lookup's own reference is the only one left.
		if got := s.Refs(ip.Ino); got != 1 {
			t.Errorf("%q has %d references after loading, want 1", name, got)
		}
		s.Put(ip)
	}
}
