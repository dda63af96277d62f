package emu

import (
	"io"
	"os"
)

// RV32 Linux-compatible syscall numbers (asm-generic unistd.h, plus the
// historical open/stat/unlink numbers still emitted by some RV32 newlib
// toolchains and the two semihosting-style custom calls spec.md §6 names).
const (
	SyscallOpenat        uint32 = 56
	SyscallClose         uint32 = 57
	SyscallLseek         uint32 = 62
	SyscallRead          uint32 = 63
	SyscallWrite         uint32 = 64
	SyscallFstat         uint32 = 80
	SyscallExit          uint32 = 93
	SyscallGettimeofday  uint32 = 169
	SyscallBrk           uint32 = 214
	SyscallOpen          uint32 = 1024
	SyscallUnlink        uint32 = 1026
	SyscallStat          uint32 = 1038
	SyscallThreadStart   uint32 = 1000
	SyscallNbCore        uint32 = 1001
)

// Linux error codes (negated into a0 on failure).
const (
	EBADF  = 9
	EIO    = 5
	ENOSYS = 38
)

// SyscallResult represents the result of a single syscall dispatch: either
// program termination, or a value to publish into M→WB as {result, rd=10,
// use_rd=1} for the normal one-cycle-later writeback commit (spec.md §6).
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool
	// ExitCode is the exit status if Exited is true.
	ExitCode int32
	// Value is the result to publish to a0 (x10) when UseRd is true.
	Value int32
	// UseRd reports whether Value should be written back to a0.
	UseRd bool
}

// RegSource is the register-read view a SyscallHandler consumes. The
// pipeline driver supplies one that bypasses a7/a0..a3 reads through any
// value still sitting in the in-flight M→WB latch, since a producing
// instruction's result may not yet be visible in the register file at the
// cycle the syscall bridge runs (spec.md §6).
type RegSource interface {
	ReadReg(reg uint8) int32
}

// SyscallHandler is the interface the memory-stage ECALL path dispatches
// through (spec.md §6): it reads arguments from a7/a0..a3 through the
// given RegSource and reports its result for the caller to publish.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the current register
	// state and reports its result and whether the run should terminate.
	Handle(regs RegSource) SyscallResult
}

// DefaultSyscallHandler implements the RV32 Linux-ish syscall ABI: number
// in a7 (x17), arguments in a0..a3 (x10..x13), result in a0.
type DefaultSyscallHandler struct {
	memory *Memory
	fds    *FDTable
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	result int32
	useRd  bool
}

// NewDefaultSyscallHandler creates a default syscall handler wired to the
// given memory.
func NewDefaultSyscallHandler(memory *Memory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		memory: memory,
		fds:    NewFDTable(),
		stdout: stdout,
		stderr: stderr,
	}
}

// SetStdin sets the stdin reader used by the read syscall.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

func (h *DefaultSyscallHandler) a(regs RegSource, n uint8) uint32 {
	return uint32(regs.ReadReg(10 + n))
}

func (h *DefaultSyscallHandler) setResult(v uint32) {
	h.result = int32(v)
	h.useRd = true
}

func (h *DefaultSyscallHandler) setError(errno int) {
	h.result = int32(-errno)
	h.useRd = true
}

// Handle dispatches on the syscall number in a7.
func (h *DefaultSyscallHandler) Handle(regs RegSource) SyscallResult {
	h.result = 0
	h.useRd = false

	num := uint32(regs.ReadReg(17))

	switch num {
	case SyscallExit:
		return h.handleExit(regs)
	case SyscallRead:
		h.handleRead(regs)
	case SyscallWrite:
		h.handleWrite(regs)
	case SyscallBrk:
		h.handleBrk(regs)
	case SyscallOpen, SyscallOpenat:
		h.handleOpen(regs, num == SyscallOpenat)
	case SyscallClose:
		h.handleClose(regs)
	case SyscallLseek:
		h.handleLseek(regs)
	case SyscallFstat, SyscallStat:
		h.handleFstat()
	case SyscallGettimeofday:
		h.handleGettimeofday()
	case SyscallUnlink:
		h.handleUnlink(regs)
	case SyscallThreadStart:
		h.setResult(0)
	case SyscallNbCore:
		h.setResult(1)
	default:
		return h.handleUnknown()
	}

	return SyscallResult{Value: h.result, UseRd: h.useRd}
}

func (h *DefaultSyscallHandler) handleExit(regs RegSource) SyscallResult {
	return SyscallResult{Exited: true, ExitCode: regs.ReadReg(10)}
}

func (h *DefaultSyscallHandler) handleRead(regs RegSource) {
	fd, bufPtr, count := h.a(regs, 0), h.a(regs, 1), h.a(regs, 2)

	if fd != 0 {
		h.setError(EBADF)
		return
	}

	if h.stdin == nil {
		h.setResult(0)
		return
	}

	buf := make([]byte, count)
	n, err := h.stdin.Read(buf)
	if err != nil && n == 0 {
		h.setResult(0)
		return
	}

	for i := 0; i < n; i++ {
		h.memory.Set(bufPtr+uint32(i), uint32(buf[i]), WidthByte)
	}
	h.setResult(uint32(n))
}

func (h *DefaultSyscallHandler) handleWrite(regs RegSource) {
	fd, bufPtr, count := h.a(regs, 0), h.a(regs, 1), h.a(regs, 2)

	var writer io.Writer
	switch fd {
	case 1:
		writer = h.stdout
	case 2:
		writer = h.stderr
	default:
		h.setError(EBADF)
		return
	}

	buf := make([]byte, count)
	for i := uint32(0); i < count; i++ {
		buf[i] = byte(h.memory.Get(bufPtr+i, WidthByte, false))
	}

	n, err := writer.Write(buf)
	if err != nil {
		h.setError(EIO)
		return
	}
	h.setResult(uint32(n))
}

// handleBrk is a no-op heap-break query/extend: it always reports success
// by echoing back the requested address, since the simulator's data
// memory is a fixed-size array rather than a growable heap.
func (h *DefaultSyscallHandler) handleBrk(regs RegSource) {
	h.setResult(h.a(regs, 0))
}

func (h *DefaultSyscallHandler) handleOpen(regs RegSource, atVariant bool) {
	pathPtr := h.a(regs, 0)
	if atVariant {
		pathPtr = h.a(regs, 1)
	}

	path := h.readCString(pathPtr)
	fd, err := h.fds.Open(path, os.O_RDONLY, 0)
	if err != nil {
		h.setError(EIO)
		return
	}
	h.setResult(uint32(fd))
}

func (h *DefaultSyscallHandler) handleClose(regs RegSource) {
	if err := h.fds.Close(uint64(h.a(regs, 0))); err != nil {
		h.setError(EBADF)
		return
	}
	h.setResult(0)
}

func (h *DefaultSyscallHandler) handleLseek(regs RegSource) {
	fd, offset, whence := h.a(regs, 0), h.a(regs, 1), h.a(regs, 2)
	pos, err := h.fds.Seek(uint64(fd), int64(int32(offset)), int(whence))
	if err != nil {
		h.setError(EBADF)
		return
	}
	h.setResult(uint32(pos))
}

func (h *DefaultSyscallHandler) handleFstat() {
	h.setResult(0)
}

func (h *DefaultSyscallHandler) handleGettimeofday() {
	h.setResult(0)
}

func (h *DefaultSyscallHandler) handleUnlink(regs RegSource) {
	path := h.readCString(h.a(regs, 0))
	if err := os.Remove(path); err != nil {
		h.setError(EIO)
		return
	}
	h.setResult(0)
}

func (h *DefaultSyscallHandler) handleUnknown() SyscallResult {
	return SyscallResult{Exited: true, ExitCode: -ENOSYS}
}

func (h *DefaultSyscallHandler) readCString(ptr uint32) string {
	var buf []byte
	for i := uint32(0); i < 4096; i++ {
		b := byte(h.memory.Get(ptr+i, WidthByte, false))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}
