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
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// GoogleEmitter writes glog-style lines:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
//
// L is one of D, I or W. The pid is the host process, padded to seven
// columns as glog does.
type GoogleEmitter struct {
	*Writer
}

var levelLetter = [...]byte{Warning: 'W', Info: 'I', Debug: 'D'}

// hostPID is formatted once; it never changes for the life of the process.
var hostPID = padLeft(strconv.AppendInt(nil, int64(os.Getpid()), 10), 7)

func padLeft(b []byte, width int) []byte {
	for len(b) < width {
		b = append([]byte{' '}, b...)
	}
	return b
}

// header appends the glog prefix for a message emitted at depth+1.
func header(dst []byte, depth int, level Level, ts time.Time) []byte {
	if int(level) < len(levelLetter) {
		dst = append(dst, levelLetter[level])
	} else {
		dst = append(dst, '?')
	}
	dst = ts.AppendFormat(dst, "0102 15:04:05.000000")
	dst = append(dst, ' ')
	dst = append(dst, hostPID...)
	dst = append(dst, ' ')
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
			file = file[slash+1:]
		}
		dst = append(dst, file...)
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, int64(line), 10)
	} else {
		dst = append(dst, "???:0"...)
	}
	return append(dst, "] "...)
}

// Emit implements Emitter.Emit.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var local [256]byte
	b := header(local[:0], depth+1, level, timestamp)
	b = append(b, format...)
	b = append(b, '\n')
	g.Writer.Emit(depth+1, level, timestamp, string(b), args...)
}
