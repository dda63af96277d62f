// Package pipeline implements the 5-stage RV32I pipeline: fetch, decode,
// execute, memory, and writeback, connected by pipeline-register snapshots
// and governed by a forwarding/stall unit and a branch-redirect unit.
package pipeline

// FDLatch holds the state passed from Fetch to Decode.
type FDLatch struct {
	// PC of the fetched instruction.
	PC uint32
	// Instruction is the raw fetched word.
	Instruction uint32
	// NextPCFetch is the sequential next PC (PC + 4).
	NextPCFetch uint32
	// We is the write-enable bit; 0 marks this latch a bubble.
	We bool
}

// Clear resets the latch to the all-zero bubble state.
func (l *FDLatch) Clear() {
	*l = FDLatch{}
}

// DELatch holds the state passed from Decode to Execute.
type DELatch struct {
	PC          uint32
	Instruction uint32

	OpCode uint8
	Funct7 uint8
	Funct3 uint8

	Lhs   int32
	Rhs   int32
	Datac int32

	NextPCDC uint32

	IsBranch   bool
	PredBranch bool

	UseRs1 bool
	UseRs2 bool
	UseRs3 bool
	UseRd  bool

	Rs1 uint8
	Rs2 uint8
	Rs3 uint8
	Rd  uint8

	We bool
}

// Clear resets the latch to the all-zero bubble state.
func (l *DELatch) Clear() {
	*l = DELatch{}
}

// EMLatch holds the state passed from Execute to Memory.
type EMLatch struct {
	PC          uint32
	Instruction uint32

	Result int32
	Rd     uint8
	UseRd  bool

	IsLongInstruction bool

	OpCode uint8
	Funct3 uint8
	Datac  int32

	NextPC uint32

	IsBranch   bool
	PredBranch bool

	We bool
}

// Clear resets the latch to the all-zero bubble state.
func (l *EMLatch) Clear() {
	*l = EMLatch{}
}

// MWLatch holds the state passed from Memory to Writeback.
type MWLatch struct {
	Result uint32
	Rd     uint8
	UseRd  bool

	Address      int32
	ValueToWrite uint32
	ByteEnable   uint8

	IsStore bool
	IsLoad  bool

	We bool
}

// Clear resets the latch to the all-zero bubble state.
func (l *MWLatch) Clear() {
	*l = MWLatch{}
}

// WBOut holds the final writeback publication: the value and destination
// register committed to the register file this cycle.
type WBOut struct {
	Value int32
	Rd    uint8
	UseRd bool
	We    bool
}

// Clear resets the struct to the all-zero bubble state.
func (w *WBOut) Clear() {
	*w = WBOut{}
}

// nopWord is the canonical RV32I NOP: ADDI x0, x0, 0.
const nopWord uint32 = 0x00000013

// seedFDLatch returns the pre-seeded F→D latch the machine starts with: a
// NOP with we=1, so the pipeline executes bubbles until the first real
// fetch reaches decode.
func seedFDLatch() FDLatch {
	return FDLatch{
		Instruction: nopWord,
		We:          true,
	}
}
