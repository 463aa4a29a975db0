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

// Package util groups a bunch of common helper functions used by commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the caller of kernctl, alongside the process exit code.
var ErrorLogger io.Writer

// Errorf logs error to kernctl log file and to stderr.
func Errorf(format string, args ...any) {
	// If kernctl is being invoked by a script, the error may be lost
	// unless it is written somewhere the script reads.
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf(format, args...)
}

type jsonError struct {
	Msg   string    `json:"msg"`
	Level string    `json:"level"`
	Time  time.Time `json:"time"`
}

// Fatalf logs the same way as Errorf, also writes a JSON line to
// ErrorLogger if one is set, and exits.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	if ErrorLogger != nil {
		_ = json.NewEncoder(ErrorLogger).Encode(jsonError{
			Level: "error",
			Time:  time.Now(),
			Msg:   fmt.Sprintf(format, args...),
		})
	}
	os.Exit(128)
}
