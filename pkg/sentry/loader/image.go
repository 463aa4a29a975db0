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

// Package loader loads program images into address spaces.
//
// An image file starts with a fixed header naming the entry point and the
// number of segments, followed by one descriptor per segment and then the
// file contents of every segment in order. All fields are little-endian.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/hostarch"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sentry/mm"
)

// Magic identifies an image file.
const Magic = "\x7fSXE"

// maxSegments bounds the number of segments in an image.
const maxSegments = 16

type header struct {
	Magic    [4]byte
	Segments uint32
	Entry    uint64
}

type segmentHeader struct {
	VA       uint64
	FileSize uint64
	MemSize  uint64
}

// Segment is one loadable region of an image. Memory past the file contents
// up to MemSize is zero filled.
type Segment struct {
	VA      uint64
	Data    []byte
	MemSize uint64
}

// Image is a loadable program.
type Image struct {
	// Entry is the address execution starts at.
	Entry uint64

	// Segments are in ascending, non-overlapping address order.
	Segments []Segment
}

// Size returns the end of the highest segment.
func (img *Image) Size() uint64 {
	if len(img.Segments) == 0 {
		return 0
	}
	last := img.Segments[len(img.Segments)-1]
	return last.VA + last.MemSize
}

// Validate checks that img can be loaded: segments are ordered, sized
// consistently, fit below mm.MaxUserSize, and the entry point lies in a
// segment.
func (img *Image) Validate() error {
	if len(img.Segments) == 0 || len(img.Segments) > maxSegments {
		return fmt.Errorf("%d segments: %w", len(img.Segments), linuxerr.ENOEXEC)
	}
	var prevEnd uint64
	entryOK := false
	for i, s := range img.Segments {
		end := s.VA + s.MemSize
		switch {
		case uint64(len(s.Data)) > s.MemSize:
			return fmt.Errorf("segment %d: file size %#x exceeds memory size %#x: %w", i, len(s.Data), s.MemSize, linuxerr.ENOEXEC)
		case end < s.VA || end > mm.MaxUserSize:
			return fmt.Errorf("segment %d: [%#x, %#x) out of range: %w", i, s.VA, end, linuxerr.ENOEXEC)
		case i > 0 && s.VA < prevEnd:
			return fmt.Errorf("segment %d at %#x overlaps previous segment ending at %#x: %w", i, s.VA, prevEnd, linuxerr.ENOEXEC)
		}
		if img.Entry >= s.VA && img.Entry < end {
			entryOK = true
		}
		prevEnd = end
	}
	if !entryOK {
		return fmt.Errorf("entry %#x outside every segment: %w", img.Entry, linuxerr.ENOEXEC)
	}
	return nil
}

// Marshal returns the file encoding of img.
func (img *Image) Marshal() []byte {
	var buf bytes.Buffer
	h := header{Segments: uint32(len(img.Segments)), Entry: img.Entry}
	copy(h.Magic[:], Magic)
	binary.Write(&buf, binary.LittleEndian, &h)
	for _, s := range img.Segments {
		binary.Write(&buf, binary.LittleEndian, &segmentHeader{VA: s.VA, FileSize: uint64(len(s.Data)), MemSize: s.MemSize})
	}
	for _, s := range img.Segments {
		buf.Write(s.Data)
	}
	return buf.Bytes()
}

// Parse decodes and validates an image file. Malformed files yield an error
// wrapping ENOEXEC.
func Parse(b []byte) (*Image, error) {
	r := bytes.NewReader(b)
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil || string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("bad image header: %w", linuxerr.ENOEXEC)
	}
	if h.Segments == 0 || h.Segments > maxSegments {
		return nil, fmt.Errorf("%d segments: %w", h.Segments, linuxerr.ENOEXEC)
	}
	shs := make([]segmentHeader, h.Segments)
	if err := binary.Read(r, binary.LittleEndian, shs); err != nil {
		return nil, fmt.Errorf("truncated segment table: %w", linuxerr.ENOEXEC)
	}
	img := &Image{Entry: h.Entry}
	for i, sh := range shs {
		if sh.FileSize > uint64(r.Len()) {
			return nil, fmt.Errorf("segment %d: truncated contents: %w", i, linuxerr.ENOEXEC)
		}
		data := make([]byte, sh.FileSize)
		r.Read(data)
		img.Segments = append(img.Segments, Segment{VA: sh.VA, Data: data, MemSize: sh.MemSize})
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// MapInto grows as, which must be empty, to cover every segment of img and
// copies in the segment contents. It returns the new size of as.
func (img *Image) MapInto(as *mm.AddressSpace) (uint64, error) {
	var size uint64
	for _, s := range img.Segments {
		var err error
		if size, err = as.Grow(size, s.VA+s.MemSize); err != nil {
			return 0, err
		}
		if err := as.Load(hostarch.Addr(s.VA), s.Data); err != nil {
			return 0, err
		}
	}
	size, _ = hostarch.PageRoundUp(size)
	return size, nil
}

// Flatten returns the memory contents of img from address 0 to Size, with
// every byte outside the segments' file contents zero. It is the form the
// first process is booted from.
func (img *Image) Flatten() []byte {
	b := make([]byte, img.Size())
	for _, s := range img.Segments {
		copy(b[s.VA:], s.Data)
	}
	return b
}
