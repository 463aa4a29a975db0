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

package kernel

import (
	"fmt"
	"io"
)

// ProcInfo describes one process table slot.
type ProcInfo struct {
	PID   int
	PPID  int
	State ProcState
	Name  string
	Size  uint64
}

// Processes returns every slot in use, in table order.
func (k *Kernel) Processes() []ProcInfo {
	k.mu.Lock(nil)
	defer k.mu.Unlock(nil)
	var ps []ProcInfo
	for i := range k.procs {
		p := &k.procs[i]
		if p.state == Unused {
			continue
		}
		info := ProcInfo{PID: p.pid, State: p.state, Name: p.name, Size: p.size}
		if p.parent != nil {
			info.PPID = p.parent.pid
		}
		ps = append(ps, info)
	}
	return ps
}

// ProcDump writes a listing of every slot in use to w. It takes no locks so
// that it works on a wedged machine; the listing may be inconsistent.
func (k *Kernel) ProcDump(w io.Writer) {
	for i := range k.procs {
		p := &k.procs[i]
		if p.state == Unused {
			continue
		}
		fmt.Fprintf(w, "%d %s %s\n", p.pid, p.state, p.name)
	}
}
