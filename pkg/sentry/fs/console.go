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

package fs

import (
	"io"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

// Console is the console device. Output goes to an io.Writer.
type Console struct {
	mu sync.SpinLock
	w  io.Writer
}

// NewConsole returns a console writing to w.
func NewConsole(w io.Writer) *Console {
	c := &Console{w: w}
	c.mu.Init("cons")
	return c
}

// Write implements io.Writer. Each call is written atomically.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock(nil)
	defer c.mu.Unlock(nil)
	return c.w.Write(p)
}
