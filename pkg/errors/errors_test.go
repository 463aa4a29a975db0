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

package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestIsErrno(t *testing.T) {
	enomem := New(unix.ENOMEM, "out of memory")
	wrapped := fmt.Errorf("grow: %w", enomem)
	if !goerrors.Is(wrapped, unix.ENOMEM) {
		t.Errorf("errors.Is(%v, ENOMEM) = false", wrapped)
	}
	if goerrors.Is(wrapped, unix.EAGAIN) {
		t.Errorf("errors.Is(%v, EAGAIN) = true", wrapped)
	}
	if goerrors.Is(wrapped, New(unix.ENOMEM, "out of memory")) {
		t.Errorf("distinct *Error values compared equal")
	}
}

func TestSyscallReturn(t *testing.T) {
	e := New(unix.EBADF, "bad file number")
	if got, want := int64(e.SyscallReturn()), -int64(unix.EBADF); got != want {
		t.Errorf("SyscallReturn() = %d, want %d", got, want)
	}
}
