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

package mm

import (
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/ring0/pagetables"
)

// Translate returns the kernel's view of the page containing va, provided the
// page is present and user accessible, and writable if write is set.
// Otherwise it returns EFAULT.
func (as *AddressSpace) Translate(va hostarch.Addr, write bool) ([]byte, error) {
	pte, err := pagetables.Walk(as.alloc, as.root, va, false)
	if err != nil || !pte.Valid() || !pte.User() || (write && !pte.Writeable()) {
		return nil, linuxerr.EFAULT
	}
	return as.alloc.Bytes(pte.Address()), nil
}

// CopyOut copies src to user memory at va. It stops at the first page that
// is not writable by the user and returns EFAULT; bytes before that page have
// been copied.
func (as *AddressSpace) CopyOut(va hostarch.Addr, src []byte) error {
	for len(src) > 0 {
		page, err := as.Translate(va, true)
		if err != nil {
			return err
		}
		n := copy(page[va.PageOffset():], src)
		src = src[n:]
		va += hostarch.Addr(n)
	}
	return nil
}

// CopyIn copies user memory at va into dst, with the same fault behavior as
// CopyOut.
func (as *AddressSpace) CopyIn(dst []byte, va hostarch.Addr) error {
	for len(dst) > 0 {
		page, err := as.Translate(va, false)
		if err != nil {
			return err
		}
		n := copy(dst, page[va.PageOffset():])
		dst = dst[n:]
		va += hostarch.Addr(n)
	}
	return nil
}

// CopyInString copies a NUL-terminated string of at most maxLen bytes from va.
func (as *AddressSpace) CopyInString(va hostarch.Addr, maxLen int) (string, error) {
	var buf []byte
	for {
		page, err := as.Translate(va, false)
		if err != nil {
			return "", err
		}
		for _, c := range page[va.PageOffset():] {
			if c == 0 {
				return string(buf), nil
			}
			if len(buf) == maxLen {
				return "", linuxerr.ENAMETOOLONG
			}
			buf = append(buf, c)
			va++
		}
	}
}

// ClearUser revokes user access to the page containing va. It is used for
// the guard page below a user stack.
func (as *AddressSpace) ClearUser(va hostarch.Addr) {
	pte, err := pagetables.Walk(as.alloc, as.root, va, false)
	if err != nil || !pte.Valid() {
		panic(fmt.Sprintf("clearpteu: %v not mapped", va))
	}
	pte.SetUser(false)
}

// Load copies data into already mapped pages starting at va, regardless of
// their permissions. It is used by program loading to fill segments.
func (as *AddressSpace) Load(va hostarch.Addr, data []byte) error {
	for len(data) > 0 {
		pte, err := pagetables.Walk(as.alloc, as.root, va, false)
		if err != nil || !pte.Valid() {
			return linuxerr.EFAULT
		}
		n := copy(as.alloc.Bytes(pte.Address())[va.PageOffset():], data)
		data = data[n:]
		va += hostarch.Addr(n)
	}
	return nil
}
