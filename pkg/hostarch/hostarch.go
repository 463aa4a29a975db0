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

// Package hostarch describes the page geometry and address arithmetic of the
// machine's 64-bit address space.
package hostarch

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page and of a physical frame: 2^12 = 4096.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1

	// EntriesPerPage is the number of 8-byte translation entries that fit
	// in one page.
	EntriesPerPage = PageSize / 8
)

// PageRoundDown rounds x down to a page boundary.
func PageRoundDown(x uint64) uint64 {
	return x &^ PageMask
}

// PageRoundUp rounds x up to a page boundary. ok is false iff rounding up
// wraps around.
func PageRoundUp(x uint64) (uint64, bool) {
	r := PageRoundDown(x + PageMask)
	return r, r >= x
}
