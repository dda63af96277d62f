// Package pipeline implements the 5-stage RV32I pipeline. See
// registers.go for the latch layout, stages.go for the per-stage
// transfer functions, hazard.go for forwarding/stall detection,
// branch_predictor.go for the predictor family, and branch_unit.go for
// squash/redirect resolution. pipeline.go ties them together into the
// per-cycle driver described in spec.md §4.9.
package pipeline

import (
	"github.com/sarchlab/rv32pipe/emu"
	"github.com/sarchlab/rv32pipe/insts"
)

// Stats holds running pipeline performance counters.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Branches     uint64
	Flushes      uint64
}

// CPI returns cycles per instruction, or 0 if no instructions retired.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Pipeline is a cycle-accurate 5-stage RV32I pipeline.
type Pipeline struct {
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	hazardUnit *HazardUnit
	branchUnit *BranchUnit
	predictor  Predictor

	regFile *emu.RegFile
	memory  *emu.Memory
	decoder *insts.Decoder

	pc uint32

	fd FDLatch
	de DELatch
	em EMLatch
	mw MWLatch
	wb WBOut

	stallSignals [5]bool
	stallIM      bool
	stallDM      bool

	cycle            uint64
	instructionCount uint64
	stallCount       uint64
	branchCount      uint64
	flushCount       uint64

	halted   bool
	exitCode int32

	syscallHandler emu.SyscallHandler
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithSyscallHandler overrides the default syscall handler.
func WithSyscallHandler(handler emu.SyscallHandler) Option {
	return func(p *Pipeline) { p.syscallHandler = handler }
}

// WithPredictor overrides the default branch predictor.
func WithPredictor(predictor Predictor) Option {
	return func(p *Pipeline) { p.predictor = predictor }
}

// NewPipeline creates a new 5-stage pipeline over the given register file
// and memory. The pipeline registers start pre-seeded per spec.md §3: the
// fetch latch holds a NOP with we=1.
func NewPipeline(regFile *emu.RegFile, memory *emu.Memory, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetchStage:     NewFetchStage(memory),
		decodeStage:    NewDecodeStage(regFile),
		executeStage:   NewExecuteStage(),
		memoryStage:    NewMemoryStage(),
		writebackStage: NewWritebackStage(),
		hazardUnit:     NewHazardUnit(),
		branchUnit:     NewBranchUnit(),
		regFile:        regFile,
		memory:         memory,
		decoder:        insts.NewDecoder(),
		fd:             seedFDLatch(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.predictor == nil {
		p.predictor = NewInstrumentedPredictor(NewBimodal(DefaultBimodalConfig()))
	}

	if p.syscallHandler == nil {
		p.syscallHandler = emu.NewDefaultSyscallHandler(memory, nil, nil)
	}

	return p
}

// SetPC sets the initial fetch address.
func (p *Pipeline) SetPC(pc uint32) {
	p.pc = pc
}

// PC returns the current fetch address.
func (p *Pipeline) PC() uint32 {
	return p.pc
}

// Halted reports whether the program has exited.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// ExitCode returns the exit code once Halted is true.
func (p *Pipeline) ExitCode() int32 {
	return p.exitCode
}

// Stats returns the current pipeline performance counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Cycles:       p.cycle,
		Instructions: p.instructionCount,
		Stalls:       p.stallCount,
		Branches:     p.branchCount,
		Flushes:      p.flushCount,
	}
}

// Predictor returns the pipeline's branch predictor, for inspecting
// miss-rate instrumentation.
func (p *Pipeline) Predictor() Predictor {
	return p.predictor
}

// Tick advances the pipeline by one cycle, per the driver algorithm of
// spec.md §4.9.
func (p *Pipeline) Tick(globalStall bool) {
	if p.halted {
		return
	}

	p.stallSignals = [5]bool{}
	p.stallIM = false
	p.stallDM = false

	// Step 2: evaluate all five stages over the current snapshot.
	nextFD := p.fetchStage.Fetch(p.pc)
	nextDE := p.decodeStage.Decode(p.fd)
	nextEM := p.executeStage.Execute(p.de, p.de.Lhs, p.de.Rhs, p.de.Datac)

	// The syscall bridge is invoked off the E→M latch, not D→E: ECALL
	// carries no in-pipeline result (stages.go), so its effect belongs at
	// the point it would otherwise enter Memory (spec.md §6).
	isSyscall := p.em.We && !p.stallSignals[2] && !globalStall &&
		p.decoder.Decode(p.em.Instruction).Op == insts.OpECALL

	var nextMW MWLatch
	if isSyscall {
		result := p.syscallHandler.Handle(syscallRegs{regFile: p.regFile, mw: p.mw})
		if result.Exited {
			p.halted = true
			p.exitCode = result.ExitCode
		}
		nextMW = MWLatch{
			Result: uint32(result.Value),
			Rd:     10,
			UseRd:  result.UseRd,
			We:     true,
		}
	} else {
		nextMW = p.memoryStage.Access(p.em)
	}

	nextWB := p.writebackStage.Writeback(p.mw)

	// Step 3: forwarding/stall analysis over the tentative next snapshot
	// (EX/MEM/WB producers are this cycle's execute/memory/writeback
	// outputs — the youngest in-flight results).
	forwarding, loadUseStall := p.hazardUnit.Analyze(nextDE, nextEM, nextMW, nextWB)
	if loadUseStall {
		p.stallSignals[0] = true
		p.stallSignals[1] = true
	}

	lhs := p.hazardUnit.Select(forwarding.Rs1, nextDE.Lhs, nextEM, nextMW, nextWB)
	rhs := p.hazardUnit.Select(forwarding.Rs2, nextDE.Rhs, nextEM, nextMW, nextWB)
	datac := p.hazardUnit.Select(forwarding.Rs3, nextDE.Datac, nextEM, nextMW, nextWB)

	// Step 4: perform the data-memory transaction.
	memOp := p.classifyMemOp(nextMW)
	if memOp != memOpNone && !p.stallSignals[3] && !globalStall && nextMW.We && !p.stallIM {
		width, sign := p.widthForMW()
		switch memOp {
		case memOpStore:
			p.memory.Set(uint32(nextMW.Address), nextMW.ValueToWrite, width)
		case memOpLoad:
			nextMW.Result = p.memory.Get(uint32(nextMW.Address), width, sign)
		}
	}

	// Forward values are selected again after the memory transaction so
	// that a MEM-stage load forwards the loaded value, not its address.
	lhs = p.hazardUnit.Select(forwarding.Rs1, nextDE.Lhs, nextEM, nextMW, nextWB)
	rhs = p.hazardUnit.Select(forwarding.Rs2, nextDE.Rhs, nextEM, nextMW, nextWB)
	datac = p.hazardUnit.Select(forwarding.Rs3, nextDE.Datac, nextEM, nextMW, nextWB)

	// Step 5: commit temporaries, each gated by its own stall.
	if !p.stallSignals[0] && !globalStall && !p.stallIM && !p.stallDM {
		p.fd = nextFD
	}

	if !p.stallSignals[1] {
		if nextDE.We && isBranchOpcode(nextDE.OpCode) {
			nextDE.PredBranch = p.predictor.Process(nextDE.PC)
		}

		if forwarding.Rs1 != ForwardNone {
			nextDE.Lhs = lhs
		}
		if forwarding.Rs2 != ForwardNone {
			nextDE.Rhs = rhs
		}
		if forwarding.Rs3 != ForwardNone {
			nextDE.Datac = datac
		}

		p.de = nextDE
	} else if !p.stallSignals[2] {
		p.de = DELatch{}
	}

	if !p.stallSignals[2] {
		if nextEM.We && isBranchOpcode(nextEM.OpCode) {
			p.predictor.Update(nextEM.PC, nextEM.IsBranch)
		}
		p.em = nextEM
	}

	retiring := p.mw.We

	if !p.stallSignals[3] {
		p.mw = nextMW
	}

	p.wb = nextWB
	if p.wb.We && p.wb.UseRd {
		p.regFile.WriteReg(p.wb.Rd, p.wb.Value)
	}
	if retiring {
		p.instructionCount++
	}

	if p.stallSignals[0] || p.stallSignals[1] {
		p.stallCount++
	}

	redirect := p.branchUnit.Resolve(p.fd, p.de, p.em, p.stallSignals[0], p.predictor)
	if redirect.Mispredict {
		p.branchCount++
	}
	if redirect.SquashFD {
		p.fd.Clear()
		p.flushCount++
	}
	if redirect.SquashDE {
		p.de.Clear()
	}
	p.pc = redirect.NextPC

	p.cycle++
}

// syscallRegs is the emu.RegSource the syscall bridge reads through. It
// bypasses a7/a0..a3 reads through the in-flight M→WB latch, since a
// producing instruction's result may not yet be visible in the register
// file at the cycle the syscall bridge runs (spec.md §6).
type syscallRegs struct {
	regFile *emu.RegFile
	mw      MWLatch
}

func (r syscallRegs) ReadReg(reg uint8) int32 {
	if r.mw.We && r.mw.UseRd && r.mw.Rd == reg {
		return int32(r.mw.Result)
	}
	return r.regFile.ReadReg(reg)
}

type memOpKind uint8

const (
	memOpNone memOpKind = iota
	memOpLoad
	memOpStore
)

func (p *Pipeline) classifyMemOp(mw MWLatch) memOpKind {
	switch {
	case mw.IsLoad:
		return memOpLoad
	case mw.IsStore:
		return memOpStore
	default:
		return memOpNone
	}
}

// widthForMW recovers the width/sign pair for the in-flight E→M
// instruction, matching spec.md §4.4's table.
func (p *Pipeline) widthForMW() (emu.Width, bool) {
	inst := p.decoder.Decode(p.em.Instruction)
	return widthFor(inst.Op)
}

func isBranchOpcode(opcode uint8) bool {
	return opcode == branchOpcode
}

// Run executes the pipeline until the program halts. Returns the exit
// code.
func (p *Pipeline) Run() int32 {
	for !p.halted {
		p.Tick(false)
	}
	return p.exitCode
}

// RunCycles executes the pipeline for up to n cycles. Returns false if
// the program halted during the run.
func (p *Pipeline) RunCycles(n uint64) bool {
	for i := uint64(0); i < n && !p.halted; i++ {
		p.Tick(false)
	}
	return !p.halted
}

// FD returns the current F→D latch, for inspection and testing.
func (p *Pipeline) FD() FDLatch { return p.fd }

// DE returns the current D→E latch, for inspection and testing.
func (p *Pipeline) DE() DELatch { return p.de }

// EM returns the current E→M latch, for inspection and testing.
func (p *Pipeline) EM() EMLatch { return p.em }

// MW returns the current M→WB latch, for inspection and testing.
func (p *Pipeline) MW() MWLatch { return p.mw }

// StallSignals returns the stall signal vector for the most recent cycle.
func (p *Pipeline) StallSignals() [5]bool { return p.stallSignals }
