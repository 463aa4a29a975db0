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
	"bytes"
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/fs"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

const (
	// interpreterScriptMagic identifies an interpreter script.
	interpreterScriptMagic = "#!"

	// interpMaxLineLength is the maximum length for the first line of an
	// interpreter script.
	//
	// From execve(2): "A maximum line length of 127 characters is allowed
	// for the first line in a #! executable shell script."
	interpMaxLineLength = 127

	// maxImageSize bounds the size of an image file.
	maxImageSize = fs.MaxFileSize
)

// Loader resolves a path to a program image.
type Loader interface {
	// Load returns the image to execute for path and the argument vector
	// to start it with, which differs from argv for interpreter scripts.
	// t is the calling process.
	Load(t sync.Sleeper, path string, argv []string) (*Image, []string, error)
}

// FSLoader loads images from storage.
type FSLoader struct {
	Storage fs.Storage
}

// readFile returns the contents of the file at path.
func (l *FSLoader) readFile(t sync.Sleeper, path string) ([]byte, error) {
	ip, err := l.Storage.Lookup(path)
	if err != nil {
		return nil, err
	}
	defer l.Storage.Put(ip)
	if ip.Type != fs.TypeFile {
		return nil, linuxerr.EACCES
	}

	l.Storage.Lock(t, ip)
	defer l.Storage.Unlock(t, ip)
	size := l.Storage.Size(ip)
	if size > maxImageSize {
		return nil, linuxerr.ENOEXEC
	}
	b := make([]byte, size)
	n, err := l.Storage.Read(ip, 0, b)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// Load implements Loader.Load.
func (l *FSLoader) Load(t sync.Sleeper, path string, argv []string) (*Image, []string, error) {
	b, err := l.readFile(t, path)
	if err != nil {
		return nil, nil, err
	}
	if bytes.HasPrefix(b, []byte(interpreterScriptMagic)) {
		interp, newArgv, err := parseInterpreterScript(path, b, argv)
		if err != nil {
			return nil, nil, err
		}
		// Only one level of interpretation.
		if b, err = l.readFile(t, interp); err != nil {
			return nil, nil, err
		}
		argv = newArgv
	}
	img, err := Parse(b)
	if err != nil {
		log.Debugf("Loading %q: %v", path, err)
		return nil, nil, linuxerr.ENOEXEC
	}
	return img, argv, nil
}

// parseInterpreterScript returns the interpreter path and argv.
func parseInterpreterScript(filename string, contents []byte, argv []string) (newpath string, newargv []string, err error) {
	line := contents
	if len(line) > interpMaxLineLength {
		line = line[:interpMaxLineLength]
	}
	// Ignore #!.
	line = line[2:]

	// Ignore everything after newline.
	// Linux silently truncates the remainder of the line if it exceeds
	// interpMaxLineLength.
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	// Skip any whitespace before the interpeter.
	line = bytes.TrimLeft(line, " \t")

	// Linux only looks for a space or tab delimiting the interpreter and
	// arg.
	//
	// execve(2): "On Linux, the entire string following the interpreter
	// name is passed as a single argument to the interpreter, and this
	// string can include white space."
	interp := line
	var arg []byte
	if i := bytes.IndexAny(line, " \t"); i >= 0 {
		interp = line[:i]
		if i+1 < len(line) {
			arg = line[i+1:]
		}
	}

	if len(interp) == 0 {
		log.Infof("Interpreter script contains no interpreter: %q", line)
		return "", nil, linuxerr.ENOEXEC
	}

	// Build the new argument list:
	//
	// 1. The interpreter.
	newargv = append(newargv, string(interp))

	// 2. The optional interpreter argument.
	if len(arg) > 0 {
		newargv = append(newargv, string(arg))
	}

	// 3. The original arguments. The original argv[0] is replaced with the
	// full script filename.
	if len(argv) > 0 {
		newargv = append(newargv, filename)
		newargv = append(newargv, argv[1:]...)
	} else {
		newargv = append(newargv, filename)
	}

	return string(interp), newargv, nil
}

// String implements fmt.Stringer.
func (l *FSLoader) String() string {
	return fmt.Sprintf("FSLoader(%T)", l.Storage)
}
