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

// Constants for openat(2).
const (
	// AT_FDCWD is a special dirfd for the current working directory.
	AT_FDCWD = -100

	O_RDONLY  = 0000000
	O_WRONLY  = 0000001
	O_RDWR    = 0000002
	O_ACCMODE = 0000003
)

// PATH_MAX is the maximum length of a path, including the terminating NUL.
const PATH_MAX = 4096
