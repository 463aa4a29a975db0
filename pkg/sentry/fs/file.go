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
	"fmt"

	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

// NFILE is the system-wide limit on open files.
const NFILE = 100

// FileType is the kind of object an open file refers to.
type FileType int

// File types.
const (
	FileNone FileType = iota
	FileInode
	FileConsole
)

// File is an open file. Files are shared between processes by Dup.
type File struct {
	// refs is protected by the file table lock.
	refs int

	// The fields below are set when the file is opened and are immutable
	// until its last reference is closed.
	typ      FileType
	readable bool
	writable bool
	ip       *Inode
	console  *Console

	// off is protected by ip's lock.
	off uint64
}

// Type returns the file's type.
func (f *File) Type() FileType {
	return f.typ
}

// FileTable is the system-wide table of open files.
type FileTable struct {
	storage Storage

	// mu protects the refs of every file in files.
	mu    sync.SpinLock
	files [NFILE]File
}

// NewFileTable returns an empty file table whose inode files release their
// inodes to storage.
func NewFileTable(storage Storage) *FileTable {
	ft := &FileTable{storage: storage}
	ft.mu.Init("ftable")
	return ft
}

// Alloc returns an unused file with one reference, or ENFILE.
func (ft *FileTable) Alloc() (*File, error) {
	ft.mu.Lock(nil)
	defer ft.mu.Unlock(nil)
	for i := range ft.files {
		if f := &ft.files[i]; f.refs == 0 {
			f.refs = 1
			return f, nil
		}
	}
	return nil, linuxerr.ENFILE
}

// Dup adds a reference to f.
func (ft *FileTable) Dup(f *File) *File {
	ft.mu.Lock(nil)
	defer ft.mu.Unlock(nil)
	if f.refs < 1 {
		panic(fmt.Sprintf("filedup: file has %d references", f.refs))
	}
	f.refs++
	return f
}

// Close drops a reference to f. Closing the last reference releases the
// underlying object.
func (ft *FileTable) Close(f *File) {
	ft.mu.Lock(nil)
	if f.refs < 1 {
		ft.mu.Unlock(nil)
		panic(fmt.Sprintf("fileclose: file has %d references", f.refs))
	}
	f.refs--
	if f.refs > 0 {
		ft.mu.Unlock(nil)
		return
	}
	ip, typ := f.ip, f.typ
	f.typ, f.ip, f.console, f.off = FileNone, nil, nil, 0
	ft.mu.Unlock(nil)

	if typ == FileInode {
		ft.storage.Put(ip)
	}
}

// Open opens the file at path. ip is released again on failure.
func (ft *FileTable) Open(path string, readable, writable bool) (*File, error) {
	ip, err := ft.storage.Lookup(path)
	if err != nil {
		return nil, err
	}
	if ip.Type == TypeDir && writable {
		ft.storage.Put(ip)
		return nil, linuxerr.EISDIR
	}
	f, err := ft.Alloc()
	if err != nil {
		ft.storage.Put(ip)
		return nil, err
	}
	f.typ = FileInode
	f.ip = ip
	f.readable = readable
	f.writable = writable
	return f, nil
}

// OpenConsole returns a new read-write file on c.
func (ft *FileTable) OpenConsole(c *Console) (*File, error) {
	f, err := ft.Alloc()
	if err != nil {
		return nil, err
	}
	f.typ = FileConsole
	f.console = c
	f.readable = true
	f.writable = true
	return f, nil
}

// Read reads from f at its offset on behalf of t.
func (ft *FileTable) Read(t sync.Sleeper, f *File, dst []byte) (int, error) {
	if !f.readable {
		return 0, linuxerr.EBADF
	}
	switch f.typ {
	case FileInode:
		ft.storage.Lock(t, f.ip)
		defer ft.storage.Unlock(t, f.ip)
		n, err := ft.storage.Read(f.ip, f.off, dst)
		f.off += uint64(n)
		return n, err
	case FileConsole:
		// The console has no input.
		return 0, nil
	default:
		panic("fileread: bad file type")
	}
}

// Write writes to f at its offset on behalf of t.
func (ft *FileTable) Write(t sync.Sleeper, f *File, src []byte) (int, error) {
	if !f.writable {
		return 0, linuxerr.EBADF
	}
	switch f.typ {
	case FileInode:
		ft.storage.Lock(t, f.ip)
		defer ft.storage.Unlock(t, f.ip)
		n, err := ft.storage.Write(f.ip, f.off, src)
		f.off += uint64(n)
		return n, err
	case FileConsole:
		return f.console.Write(src)
	default:
		panic("filewrite: bad file type")
	}
}

// InUse returns the number of files with at least one reference.
func (ft *FileTable) InUse() int {
	ft.mu.Lock(nil)
	defer ft.mu.Unlock(nil)
	n := 0
	for i := range ft.files {
		if ft.files[i].refs > 0 {
			n++
		}
	}
	return n
}
