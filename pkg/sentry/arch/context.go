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

package arch

import (
	"runtime"
)

// Context is a saved kernel scheduling context: the point at which a
// suspended kernel thread of control resumes.
//
// Each Context is backed by one goroutine. Exactly one goroutine per core
// runs at a time; all others are parked in Switch waiting to be resumed.
type Context struct {
	wake chan struct{}
	done chan struct{}

	// entry is the function the context runs on its first resume. It is
	// nil once the backing goroutine exists.
	entry func()
}

// NewContext returns a context whose first resume starts entry on a new
// goroutine. If entry returns, the goroutine exits; it must instead switch
// away for good.
func NewContext(entry func()) *Context {
	return &Context{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		entry: entry,
	}
}

// NewRunningContext returns a context for the calling goroutine, which is
// already running.
func NewRunningContext() *Context {
	return NewContext(nil)
}

// Switch saves the caller's context in save and resumes next. It returns
// when some thread switches back to save.
//
// If save is retired while suspended, the calling goroutine exits without
// returning.
func Switch(save, next *Context) {
	next.resume()
	save.suspend()
}

func (c *Context) resume() {
	if f := c.entry; f != nil {
		c.entry = nil
		go f()
		return
	}
	c.wake <- struct{}{}
}

func (c *Context) suspend() {
	select {
	case <-c.wake:
	case <-c.done:
		runtime.Goexit()
	}
}

// Retire releases a context that will never be resumed again. A goroutine
// suspended in it exits.
func (c *Context) Retire() {
	c.entry = nil
	close(c.done)
}
