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

package linux

// Magic values and commands for reboot(2).
const (
	LINUX_REBOOT_MAGIC1 = 0xfee1dead
	LINUX_REBOOT_MAGIC2 = 672274793

	LINUX_REBOOT_CMD_HALT      = 0xcdef0123
	LINUX_REBOOT_CMD_POWER_OFF = 0x4321fedc
)

// SIGCHLD is the exit signal passed to clone by fork.
const SIGCHLD = 17

// WaitStatus is the status word filled in by wait4(2).
type WaitStatus uint32

// WaitStatusExit returns the status word of a process that exited with code.
func WaitStatusExit(code int32) WaitStatus {
	return WaitStatus(uint32(code)&0xff) << 8
}

// Exited reports whether the process exited normally.
func (ws WaitStatus) Exited() bool {
	return ws&0x7f == 0
}

// ExitStatus returns the exit code of a process that exited normally.
func (ws WaitStatus) ExitStatus() int {
	return int(ws>>8) & 0xff
}
