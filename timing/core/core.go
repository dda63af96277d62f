// Package core wraps the 5-stage RV32I pipeline in a small run-loop
// interface, matching the shape a loader/syscall-bridge caller needs.
package core

import (
	"github.com/sarchlab/rv32pipe/emu"
	"github.com/sarchlab/rv32pipe/timing/pipeline"
)

// Stats holds performance statistics for the core.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Branches     uint64
	Flushes      uint64
	CPI          float64
}

// Core is a cycle-accurate RV32I CPU core: a 5-stage pipeline plus the
// register file and memory it operates over.
type Core struct {
	Pipeline *pipeline.Pipeline

	regFile *emu.RegFile
	memory  *emu.Memory
}

// Option configures a Core at construction time.
type Option func(*pipeline.Pipeline)

// WithSyscallHandler overrides the pipeline's default syscall handler.
func WithSyscallHandler(handler emu.SyscallHandler) Option {
	return Option(pipeline.WithSyscallHandler(handler))
}

// WithPredictor overrides the pipeline's default branch predictor.
func WithPredictor(predictor pipeline.Predictor) Option {
	return Option(pipeline.WithPredictor(predictor))
}

// NewCore creates a new Core over the given register file and memory.
func NewCore(regFile *emu.RegFile, memory *emu.Memory, opts ...Option) *Core {
	pipeOpts := make([]pipeline.Option, len(opts))
	for i, o := range opts {
		pipeOpts[i] = pipeline.Option(o)
	}

	return &Core{
		Pipeline: pipeline.NewPipeline(regFile, memory, pipeOpts...),
		regFile:  regFile,
		memory:   memory,
	}
}

// SetPC sets the program counter (entry point).
func (c *Core) SetPC(pc uint32) {
	c.Pipeline.SetPC(pc)
}

// Tick executes one pipeline cycle.
func (c *Core) Tick() {
	c.Pipeline.Tick(false)
}

// Halted returns true if the core has halted (e.g. due to an exit
// syscall).
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int32 {
	return c.Pipeline.ExitCode()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := c.Pipeline.Stats()
	return Stats{
		Cycles:       s.Cycles,
		Instructions: s.Instructions,
		Stalls:       s.Stalls,
		Branches:     s.Branches,
		Flushes:      s.Flushes,
		CPI:          s.CPI(),
	}
}

// Run executes the core until it halts or the given cycle cap is
// reached, matching the synthesizable harness's 0xFFFF cycle cap
// (spec.md §5). Returns the exit code.
func (c *Core) Run(cycleCap uint64) int32 {
	for !c.Pipeline.Halted() && c.Pipeline.Stats().Cycles < cycleCap {
		c.Pipeline.Tick(false)
	}
	return c.Pipeline.ExitCode()
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	return c.Pipeline.RunCycles(cycles)
}
