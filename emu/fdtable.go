package emu

import (
	"os"
	"sync"
	"time"
)

// guestFD is the first file descriptor number the simulated program can
// allocate via openat/open; 0-2 are reserved for stdin/stdout/stderr,
// matching the RV32 syscall ABI's own convention (syscall.go).
const guestFD = 3

// FileDescriptor is one entry in a simulated program's file descriptor
// table: either a host-backed file opened on behalf of the guest, or one
// of the three standard streams, which have no HostFile and are routed
// directly to the handler's stdin/stdout/stderr instead (syscall.go).
type FileDescriptor struct {
	HostFile *os.File
	Path     string
	Flags    int
	IsOpen   bool
}

// FDTable is a guest program's open file descriptor table. A
// DefaultSyscallHandler owns one per emulated program and consults it for
// open/openat/close/lseek. Its read and write syscalls do not go through the
// table (they serve only stdin and stdout/stderr), and fstat/stat do not
// consult it.
type FDTable struct {
	fds    map[uint64]*FileDescriptor
	nextFD uint64
	mu     sync.Mutex
}

// NewFDTable creates a file descriptor table with fd 0/1/2 pre-opened as
// the standard streams.
func NewFDTable() *FDTable {
	t := &FDTable{
		fds:    make(map[uint64]*FileDescriptor),
		nextFD: guestFD,
	}

	t.fds[0] = &FileDescriptor{Path: "stdin", IsOpen: true}
	t.fds[1] = &FileDescriptor{Path: "stdout", IsOpen: true}
	t.fds[2] = &FileDescriptor{Path: "stderr", IsOpen: true}

	return t
}

// Open opens a host file on behalf of the guest program and returns the
// guest-visible file descriptor number for it.
func (t *FDTable) Open(path string, flags int, mode os.FileMode) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hostFile, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return 0, err
	}

	fd := t.nextFD
	t.nextFD++

	t.fds[fd] = &FileDescriptor{
		HostFile: hostFile,
		Path:     path,
		Flags:    flags,
		IsOpen:   true,
	}

	return fd, nil
}

// Close closes fd. Closing 0/1/2 only marks them unavailable to the guest;
// the handler's underlying stdin/stdout/stderr streams are left alone since
// other guest syscalls may still reference them directly.
func (t *FDTable) Close(fd uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return os.ErrInvalid
	}

	if fd < guestFD {
		entry.IsOpen = false
		return nil
	}

	if entry.HostFile != nil {
		if err := entry.HostFile.Close(); err != nil {
			return err
		}
	}

	entry.HostFile = nil
	entry.IsOpen = false

	return nil
}

// Get returns the entry for fd, if open.
func (t *FDTable) Get(fd uint64) (*FileDescriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return nil, false
	}

	return entry, true
}

// IsOpen reports whether fd is currently open.
func (t *FDTable) IsOpen(fd uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	return exists && entry.IsOpen
}

// Read reads into buf from fd's host file. fd 0 returns os.ErrInvalid since
// stdin reads go through the handler's io.Reader instead (syscall.go's
// handleRead), not through a host file here.
func (t *FDTable) Read(fd uint64, buf []byte) (int, error) {
	t.mu.Lock()
	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		t.mu.Unlock()
		return 0, os.ErrInvalid
	}

	hostFile := entry.HostFile
	t.mu.Unlock()

	if fd == 0 || hostFile == nil {
		return 0, os.ErrInvalid
	}

	return hostFile.Read(buf)
}

// Write writes buf to fd's host file. fd 1/2 return os.ErrInvalid since
// stdout/stderr writes go through the handler's io.Writer instead
// (syscall.go's handleWrite).
func (t *FDTable) Write(fd uint64, buf []byte) (int, error) {
	t.mu.Lock()
	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		t.mu.Unlock()
		return 0, os.ErrInvalid
	}

	hostFile := entry.HostFile
	t.mu.Unlock()

	if fd < guestFD || hostFile == nil {
		return 0, os.ErrInvalid
	}

	return hostFile.Write(buf)
}

// Stat returns file info for fd, synthesizing a character-device stub for
// the standard streams since they have no backing host file.
func (t *FDTable) Stat(fd uint64) (os.FileInfo, error) {
	t.mu.Lock()
	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		t.mu.Unlock()
		return nil, os.ErrInvalid
	}

	hostFile := entry.HostFile
	t.mu.Unlock()

	if fd < guestFD {
		return &stdioFileInfo{name: entry.Path, isCharDevice: true}, nil
	}

	if hostFile == nil {
		return nil, os.ErrInvalid
	}

	return hostFile.Stat()
}

// Seek repositions fd's host file. The standard streams aren't seekable.
func (t *FDTable) Seek(fd uint64, offset int64, whence int) (int64, error) {
	t.mu.Lock()
	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		t.mu.Unlock()
		return 0, os.ErrInvalid
	}

	hostFile := entry.HostFile
	t.mu.Unlock()

	if fd < guestFD || hostFile == nil {
		return 0, os.ErrInvalid
	}

	return hostFile.Seek(offset, whence)
}

// stdioFileInfo stubs os.FileInfo for the standard streams, which have no
// real host file to stat.
type stdioFileInfo struct {
	name         string
	isCharDevice bool
}

func (f *stdioFileInfo) Name() string       { return f.name }
func (f *stdioFileInfo) Size() int64        { return 0 }
func (f *stdioFileInfo) Mode() os.FileMode  { return os.ModeCharDevice | 0666 }
func (f *stdioFileInfo) ModTime() time.Time { return time.Time{} }
func (f *stdioFileInfo) IsDir() bool        { return false }
func (f *stdioFileInfo) Sys() interface{}   { return nil }
