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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// frames records which resources were unwound, in order.
type frames struct {
	freed []string
}

func (f *frames) free(name string) func() {
	return func() { f.freed = append(f.freed, name) }
}

func TestClean(t *testing.T) {
	var f frames
	func() {
		cu := Make(f.free("kstack"))
		defer cu.Clean()
		cu.Add(f.free("pgdir"))
		cu.Add(f.free("image"))
	}()
	if diff := cmp.Diff([]string{"image", "pgdir", "kstack"}, f.freed); diff != "" {
		t.Errorf("freed mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanTwice(t *testing.T) {
	var f frames
	cu := Make(f.free("kstack"))
	cu.Clean()
	cu.Clean()
	if diff := cmp.Diff([]string{"kstack"}, f.freed); diff != "" {
		t.Errorf("freed mismatch (-want +got):\n%s", diff)
	}
}

func TestRelease(t *testing.T) {
	var f frames
	var later func()
	func() {
		cu := Make(f.free("kstack"))
		defer cu.Clean()
		cu.Add(f.free("pgdir"))
		later = cu.Release()
	}()
	if len(f.freed) != 0 {
		t.Fatalf("released cleanup still ran: %v", f.freed)
	}
	later()
	if diff := cmp.Diff([]string{"pgdir", "kstack"}, f.freed); diff != "" {
		t.Errorf("freed mismatch (-want +got):\n%s", diff)
	}
}
