package pipeline

// BranchUnit resolves the next fetch PC and any squash signals, per
// spec.md §4.8. Priority (highest first): execute misprediction,
// decode-stage known target, sequential fetch.
type BranchUnit struct{}

// NewBranchUnit creates a new branch-redirect unit.
func NewBranchUnit() *BranchUnit {
	return &BranchUnit{}
}

// RedirectResult holds the branch unit's decision for this cycle.
type RedirectResult struct {
	NextPC      uint32
	SquashFD    bool
	SquashDE    bool
	Mispredict  bool
}

// Resolve computes the next PC and squash signals. em is the E→M latch
// as committed this cycle (carries the resolved branch and pred_branch),
// de is the committed D→E latch (carries the decode-known target), fd is
// the committed F→D latch (carries the sequential next PC). fetchStalled
// holds the PC when set: the held F→D instruction's sequential next PC is
// the address the stalled fetch was reading.
func (b *BranchUnit) Resolve(fd FDLatch, de DELatch, em EMLatch, fetchStalled bool, predictor Predictor) RedirectResult {
	result := RedirectResult{NextPC: fd.NextPCFetch}

	if fetchStalled {
		return result
	}

	mispredict := em.We && em.IsBranch != em.PredBranch

	switch {
	case mispredict:
		predictor.Undo()
		result.SquashFD = true
		result.SquashDE = true
		result.Mispredict = true
		result.NextPC = em.NextPC

	case de.We && knownAtDecode(de):
		result.SquashFD = true
		result.NextPC = de.NextPCDC

	default:
		result.NextPC = fd.NextPCFetch
	}

	return result
}

// knownAtDecode reports whether de's target is already resolved at
// decode: either an unconditional jump (JAL) or a branch the predictor
// called taken (PredBranch, filled in by the driver on D→E commit).
func knownAtDecode(de DELatch) bool {
	if de.OpCode == jalOpcode {
		return true
	}
	return de.OpCode == branchOpcode && de.PredBranch
}

const (
	jalOpcode    = 0b1101111
	branchOpcode = 0b1100011
)
