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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// FileOpts turns a log file pattern into a path.
type FileOpts interface {
	Build(logPattern string) string
}

// PatternOpts expands %COMMAND%, %TIMESTAMP% and %PID% in a log file
// pattern. PID defaults to the current process when zero.
type PatternOpts struct {
	Command string
	Start   time.Time
	PID     int
}

// Build implements FileOpts.Build.
func (p PatternOpts) Build(logPattern string) string {
	pid := p.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	return strings.NewReplacer(
		"%COMMAND%", p.Command,
		"%TIMESTAMP%", p.Start.Format("20060102-150405.000000"),
		"%PID%", strconv.Itoa(pid),
	).Replace(logPattern)
}

// OpenFile opens the log file named by logPattern, creating parent
// directories as needed. An empty pattern yields a nil file and no error.
func OpenFile(logPattern string, flags int, opts FileOpts) (*os.File, error) {
	if logPattern == "" {
		return nil, nil
	}
	logPath := opts.Build(logPattern)
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return nil, fmt.Errorf("creating log dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(logPath, flags, 0o664)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", logPath, err)
	}
	return f, nil
}

// LockFile takes an exclusive advisory lock on the file at path so that two
// processes never interleave lines in one log. It fails at once if the lock
// is held elsewhere. The returned function releases the lock.
func LockFile(path string) (func() error, error) {
	l := flock.NewFlock(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking log file %q: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("log file %q is locked by another process", path)
	}
	return l.Unlock, nil
}
