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

import "testing"

func TestWaitStatus(t *testing.T) {
	for _, code := range []int32{0, 1, 127, -1} {
		ws := WaitStatusExit(code)
		if !ws.Exited() {
			t.Errorf("WaitStatusExit(%d).Exited() = false", code)
		}
		if got, want := ws.ExitStatus(), int(uint8(code)); got != want {
			t.Errorf("WaitStatusExit(%d).ExitStatus() = %d, want %d", code, got, want)
		}
	}
}
