package pipeline

import (
	"github.com/sarchlab/rv32pipe/emu"
	"github.com/sarchlab/rv32pipe/insts"
)

// FetchStage reads the instruction word at the current PC.
type FetchStage struct {
	memory *emu.Memory
}

// NewFetchStage creates a new fetch stage over the given instruction memory.
func NewFetchStage(memory *emu.Memory) *FetchStage {
	return &FetchStage{memory: memory}
}

// Fetch produces the F→D latch for the given PC, per spec.md §4.1. Fetch
// never fails and never advances the PC itself.
func (s *FetchStage) Fetch(pc uint32) FDLatch {
	return FDLatch{
		PC:          pc,
		Instruction: s.memory.FetchInstruction(pc),
		NextPCFetch: pc + 4,
		We:          true,
	}
}

// DecodeStage extracts instruction fields, forms immediates, reads the
// register file, and wires per-opcode control signals.
type DecodeStage struct {
	regFile *emu.RegFile
	decoder *insts.Decoder
}

// NewDecodeStage creates a new decode stage over the given register file.
func NewDecodeStage(regFile *emu.RegFile) *DecodeStage {
	return &DecodeStage{
		regFile: regFile,
		decoder: insts.NewDecoder(),
	}
}

// Decode produces the D→E latch from an F→D latch, per spec.md §4.2.
func (s *DecodeStage) Decode(fd FDLatch) DELatch {
	inst := s.decoder.Decode(fd.Instruction)

	out := DELatch{
		PC:          fd.PC,
		Instruction: fd.Instruction,
		OpCode:      inst.Opcode,
		Funct7:      inst.Funct7,
		Funct3:      inst.Funct3,
		Rs1:         inst.Rs1,
		Rs2:         inst.Rs2,
		Rs3:         inst.Rs2,
		Rd:          inst.Rd,
		We:          fd.We,
	}

	rs1Val := s.regFile.ReadReg(inst.Rs1)
	rs2Val := s.regFile.ReadReg(inst.Rs2)

	switch inst.Format {
	case insts.FormatU:
		out.Lhs = inst.Imm
		if inst.Op == insts.OpAUIPC {
			out.Lhs = int32(fd.PC)
			out.Rhs = inst.Imm
		}
		out.UseRd = true

	case insts.FormatJ:
		out.Lhs = int32(fd.PC + 4)
		out.UseRd = true
		out.IsBranch = true
		out.NextPCDC = uint32(int32(fd.PC) + inst.Imm)

	case insts.FormatI:
		// JALR, LOAD, and OP-IMM all wire reg[rs1] and the I-immediate
		// the same way at decode (spec.md §4.2).
		out.Lhs = rs1Val
		out.Rhs = inst.Imm
		out.UseRs1 = true
		out.UseRd = true

	case insts.FormatB:
		out.Lhs = rs1Val
		out.Rhs = rs2Val
		out.UseRs1 = true
		out.UseRs2 = true
		out.NextPCDC = uint32(int32(fd.PC) + inst.Imm)

	case insts.FormatS:
		out.Lhs = rs1Val
		out.Rhs = inst.Imm
		out.Datac = rs2Val
		out.UseRs1 = true
		out.UseRs3 = true

	case insts.FormatR:
		out.Lhs = rs1Val
		out.Rhs = rs2Val
		out.UseRs1 = true
		out.UseRs2 = true
		// The reserved M-extension encoding executes as a no-op and
		// writes no register.
		out.UseRd = inst.Op != insts.OpMExtReserved

	case insts.FormatSystem:
		out.Lhs = rs1Val
		out.Rhs = inst.Imm
		out.UseRs1 = true
		out.UseRd = true
	}

	if out.Rd == 0 {
		out.UseRd = false
	}

	if !fd.We {
		out.UseRs1, out.UseRs2, out.UseRs3, out.UseRd = false, false, false, false
		out.IsBranch = false
	}

	return out
}

// ExecuteStage computes the ALU result, branch resolution, effective
// address, or CSR mutation for the instruction in the D→E latch.
type ExecuteStage struct {
	decoder *insts.Decoder
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{decoder: insts.NewDecoder()}
}

// Execute produces the E→M latch from a D→E latch, per spec.md §4.3. lhs
// and rhs have already had any forwarding applied by the caller.
func (s *ExecuteStage) Execute(de DELatch, lhs, rhs, datac int32) EMLatch {
	inst := s.decoder.Decode(de.Instruction)

	out := EMLatch{
		PC:          de.PC,
		Instruction: de.Instruction,
		Rd:          de.Rd,
		UseRd:       de.UseRd,
		OpCode:      de.OpCode,
		Funct3:      de.Funct3,
		Datac:       datac,
		We:          de.We,
		PredBranch:  de.PredBranch,
	}

	switch inst.Op {
	case insts.OpLUI:
		out.Result = lhs

	case insts.OpAUIPC:
		out.Result = lhs + rhs

	case insts.OpJAL:
		out.Result = lhs

	case insts.OpJALR:
		out.NextPC = uint32(lhs + rhs)
		out.IsBranch = true
		out.Result = int32(de.PC + 4)

	case insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU:
		taken := evalBranchCond(inst.Op, lhs, rhs)
		if taken {
			out.NextPC = de.NextPCDC
		} else {
			out.NextPC = de.PC + 4
		}
		out.IsBranch = taken

	case insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLBU, insts.OpLHU:
		out.Result = lhs + rhs
		out.IsLongInstruction = true

	case insts.OpSB, insts.OpSH, insts.OpSW:
		out.Result = lhs + rhs

	case insts.OpADDI:
		out.Result = lhs + rhs
	case insts.OpSLTI:
		out.Result = boolToInt32(lhs < rhs)
	case insts.OpSLTIU:
		out.Result = boolToInt32(uint32(lhs) < uint32(rhs))
	case insts.OpXORI:
		out.Result = lhs ^ rhs
	case insts.OpORI:
		out.Result = lhs | rhs
	case insts.OpANDI:
		out.Result = lhs & rhs
	case insts.OpSLLI:
		out.Result = lhs << (uint32(rhs) & 0x1F)
	case insts.OpSRLI:
		out.Result = int32(uint32(lhs) >> (uint32(rhs) & 0x1F))
	case insts.OpSRAI:
		out.Result = lhs >> (uint32(rhs) & 0x1F)

	case insts.OpADD:
		out.Result = lhs + rhs
	case insts.OpSUB:
		out.Result = lhs - rhs
	case insts.OpSLL:
		out.Result = lhs << (uint32(rhs) & 0x1F)
	case insts.OpSLT:
		out.Result = boolToInt32(lhs < rhs)
	case insts.OpSLTU:
		out.Result = boolToInt32(uint32(lhs) < uint32(rhs))
	case insts.OpXOR:
		out.Result = lhs ^ rhs
	case insts.OpSRL:
		out.Result = int32(uint32(lhs) >> (uint32(rhs) & 0x1F))
	case insts.OpSRA:
		out.Result = lhs >> (uint32(rhs) & 0x1F)
	case insts.OpOR:
		out.Result = lhs | rhs
	case insts.OpAND:
		out.Result = lhs & rhs
	case insts.OpMExtReserved:
		// Reserved encoding space: no-op, per spec.md §9.

	case insts.OpCSRRW:
		out.Result = lhs
		out.Datac = rhs
	case insts.OpCSRRS:
		out.Result = lhs
		out.Datac = lhs | rhs
	case insts.OpCSRRC:
		out.Result = lhs
		out.Datac = lhs &^ rhs
	case insts.OpCSRRWI:
		out.Result = lhs
		out.Datac = rhs
	case insts.OpCSRRSI:
		out.Result = lhs
		out.Datac = lhs | rhs
	case insts.OpCSRRCI:
		out.Result = lhs
		out.Datac = lhs &^ rhs

	case insts.OpECALL, insts.OpEBREAK:
		// ECALL produces no in-pipeline result; the syscall bridge
		// observes this instruction at execute and writes M→WB directly.
	}

	if !de.We {
		out.IsBranch = false
		out.PredBranch = false
		out.UseRd = false
	}

	return out
}

func evalBranchCond(op insts.Op, lhs, rhs int32) bool {
	switch op {
	case insts.OpBEQ:
		return lhs == rhs
	case insts.OpBNE:
		return lhs != rhs
	case insts.OpBLT:
		return lhs < rhs
	case insts.OpBGE:
		return lhs >= rhs
	case insts.OpBLTU:
		return uint32(lhs) < uint32(rhs)
	case insts.OpBGEU:
		return uint32(lhs) >= uint32(rhs)
	default:
		return false
	}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// widthFor returns the memory width code and sign-extension flag for a
// load/store opcode, per spec.md §4.4's width/sign table, including the
// documented LBU quirk (see DESIGN.md).
func widthFor(op insts.Op) (emu.Width, bool) {
	switch op {
	case insts.OpLW:
		return emu.WidthWord, true
	case insts.OpLH:
		return emu.WidthHalf, true
	case insts.OpLHU:
		return emu.WidthHalf, false
	case insts.OpLB:
		return emu.WidthByte, true
	case insts.OpLBU:
		return emu.WidthHalf, false
	case insts.OpSW:
		return emu.WidthWord, false
	case insts.OpSH:
		return emu.WidthHalf, false
	case insts.OpSB:
		return emu.WidthByte, false
	default:
		return emu.WidthWord, false
	}
}

// MemoryStage prepares the M→WB latch. The data-memory transaction itself
// is performed by the driver, which owns the memory and the stall signals
// (spec.md §4.4).
type MemoryStage struct {
	decoder *insts.Decoder
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage() *MemoryStage {
	return &MemoryStage{decoder: insts.NewDecoder()}
}

// Access produces the M→WB latch from an E→M latch.
func (s *MemoryStage) Access(em EMLatch) MWLatch {
	out := MWLatch{
		Result: uint32(em.Result),
		Rd:     em.Rd,
		UseRd:  em.UseRd,
		We:     em.We,
	}

	inst := s.decoder.Decode(em.Instruction)

	switch inst.Op {
	case insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLBU, insts.OpLHU:
		out.IsLoad = true
		out.Address = em.Result
	case insts.OpSB, insts.OpSH, insts.OpSW:
		out.IsStore = true
		out.Address = em.Result
		out.ValueToWrite = uint32(em.Datac)
		out.ByteEnable = 0xF
	}

	return out
}

// WritebackStage publishes the final register-file write from an M→WB
// latch, per spec.md §4.5.
type WritebackStage struct{}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage() *WritebackStage {
	return &WritebackStage{}
}

// Writeback produces the WB-out publication.
func (s *WritebackStage) Writeback(mw MWLatch) WBOut {
	if !(mw.We && mw.UseRd && mw.Rd != 0) {
		return WBOut{}
	}

	return WBOut{
		Value: int32(mw.Result),
		Rd:    mw.Rd,
		UseRd: true,
		We:    true,
	}
}
