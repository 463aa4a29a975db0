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

// Package fs provides the kernel's view of storage: inodes reached by path,
// reference-counted open files, and the console device.
package fs

import (
	"fmt"
	"strings"

	"github.com/google/btree"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/errors/linuxerr"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/sync"
)

// RootIno is the inode number of the root directory.
const RootIno = 1

// InodeType is the type of an inode.
type InodeType int

// Inode types.
const (
	TypeDir InodeType = iota + 1
	TypeFile
)

// String implements fmt.Stringer.
func (t InodeType) String() string {
	switch t {
	case TypeDir:
		return "dir"
	case TypeFile:
		return "file"
	default:
		return fmt.Sprintf("InodeType(%d)", int(t))
	}
}

// Inode is an in-memory inode.
type Inode struct {
	// Ino and Type are immutable.
	Ino  uint64
	Type InodeType

	// lock serializes access to data. It may be held across a context
	// switch.
	lock *sync.SleepLock

	// refs is protected by the storage's cache lock.
	refs int

	// data is protected by lock.
	data []byte
}

// Storage is the storage collaborator used by the kernel.
type Storage interface {
	// Root returns a new reference to the root directory.
	Root() *Inode

	// Lookup resolves an absolute path and returns a new reference to the
	// inode, or ENOENT.
	Lookup(path string) (*Inode, error)

	// Dup returns a new reference to ip.
	Dup(ip *Inode) *Inode

	// Put releases a reference to ip.
	Put(ip *Inode)

	// Lock locks ip on behalf of t. It may sleep.
	Lock(t sync.Sleeper, ip *Inode)

	// Unlock unlocks ip.
	Unlock(t sync.Sleeper, ip *Inode)

	// Size returns the size of ip's contents. ip must be locked.
	Size(ip *Inode) uint64

	// Read reads from ip at off. ip must be locked.
	Read(ip *Inode, off uint64, dst []byte) (int, error)

	// Write writes to ip at off, extending it as needed. ip must be locked.
	Write(ip *Inode, off uint64, src []byte) (int, error)
}

// MaxFileSize bounds the size of a file.
const MaxFileSize = 1 << 24

// MemStorage is a Storage whose inodes live in memory. Paths form a flat
// namespace of absolute names below the root directory.
type MemStorage struct {
	// mu is the inode cache lock. It protects everything below.
	mu sync.SpinLock

	inodes  *btree.BTreeG[*Inode]
	names   map[string]uint64
	nextIno uint64
}

// NewMemStorage returns a storage holding only the root directory.
func NewMemStorage() *MemStorage {
	s := &MemStorage{
		inodes:  btree.NewG(8, func(a, b *Inode) bool { return a.Ino < b.Ino }),
		names:   make(map[string]uint64),
		nextIno: RootIno,
	}
	s.mu.Init("icache")
	s.newInode("/", TypeDir, nil)
	return s
}

func (s *MemStorage) newInode(path string, typ InodeType, data []byte) *Inode {
	ip := &Inode{
		Ino:  s.nextIno,
		Type: typ,
		lock: sync.NewSleepLock(path),
		data: data,
	}
	s.nextIno++
	s.inodes.ReplaceOrInsert(ip)
	s.names[path] = ip.Ino
	return ip
}

// Create adds a regular file at path with the given contents.
func (s *MemStorage) Create(path string, data []byte) (uint64, error) {
	if !strings.HasPrefix(path, "/") || path == "/" {
		return 0, linuxerr.EINVAL
	}
	if len(data) > MaxFileSize {
		return 0, linuxerr.E2BIG
	}
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	if _, ok := s.names[path]; ok {
		return 0, linuxerr.EEXIST
	}
	ip := s.newInode(path, TypeFile, append([]byte(nil), data...))
	return ip.Ino, nil
}

// Names returns every path in the namespace in inode order.
func (s *MemStorage) Names() []string {
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	byIno := make(map[uint64]string, len(s.names))
	for name, ino := range s.names {
		byIno[ino] = name
	}
	var names []string
	s.inodes.Ascend(func(ip *Inode) bool {
		names = append(names, byIno[ip.Ino])
		return true
	})
	return names
}

// Refs returns the number of references to inode ino.
func (s *MemStorage) Refs(ino uint64) int {
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	ip, ok := s.inodes.Get(&Inode{Ino: ino})
	if !ok {
		return 0
	}
	return ip.refs
}

// Root implements Storage.Root.
func (s *MemStorage) Root() *Inode {
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	ip, _ := s.inodes.Get(&Inode{Ino: RootIno})
	ip.refs++
	return ip
}

// Lookup implements Storage.Lookup.
func (s *MemStorage) Lookup(path string) (*Inode, error) {
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	ino, ok := s.names[path]
	if !ok {
		return nil, linuxerr.ENOENT
	}
	ip, _ := s.inodes.Get(&Inode{Ino: ino})
	ip.refs++
	return ip, nil
}

// Dup implements Storage.Dup.
func (s *MemStorage) Dup(ip *Inode) *Inode {
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	ip.refs++
	return ip
}

// Put implements Storage.Put.
func (s *MemStorage) Put(ip *Inode) {
	s.mu.Lock(nil)
	defer s.mu.Unlock(nil)
	if ip.refs < 1 {
		panic(fmt.Sprintf("iput: inode %d has %d references", ip.Ino, ip.refs))
	}
	ip.refs--
}

// Lock implements Storage.Lock.
func (s *MemStorage) Lock(t sync.Sleeper, ip *Inode) {
	ip.lock.Lock(t)
}

// Unlock implements Storage.Unlock.
func (s *MemStorage) Unlock(t sync.Sleeper, ip *Inode) {
	ip.lock.Unlock(t)
}

// Size implements Storage.Size.
func (s *MemStorage) Size(ip *Inode) uint64 {
	return uint64(len(ip.data))
}

// Read implements Storage.Read.
func (s *MemStorage) Read(ip *Inode, off uint64, dst []byte) (int, error) {
	if ip.Type == TypeDir {
		return 0, linuxerr.EISDIR
	}
	if off >= uint64(len(ip.data)) {
		return 0, nil
	}
	return copy(dst, ip.data[off:]), nil
}

// Write implements Storage.Write.
func (s *MemStorage) Write(ip *Inode, off uint64, src []byte) (int, error) {
	if ip.Type == TypeDir {
		return 0, linuxerr.EISDIR
	}
	end := off + uint64(len(src))
	if end < off || end > MaxFileSize {
		return 0, linuxerr.EFBIG
	}
	if end > uint64(len(ip.data)) {
		ip.data = append(ip.data, make([]byte, end-uint64(len(ip.data)))...)
	}
	return copy(ip.data[off:], src), nil
}
