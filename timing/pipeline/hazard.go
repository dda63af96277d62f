package pipeline

// ForwardSource identifies which pipeline stage a forwarded operand comes
// from, in search-priority order (spec.md §4.6).
type ForwardSource uint8

const (
	// ForwardNone means no forwarding is needed; use the decoded value.
	ForwardNone ForwardSource = iota
	// ForwardFromEX forwards the tentative E→M result (youngest producer).
	ForwardFromEX
	// ForwardFromMEM forwards the tentative M→WB result.
	ForwardFromMEM
	// ForwardFromWB forwards the tentative WB-out value.
	ForwardFromWB
)

// ForwardingResult holds the forwarding decision for each of the three
// decode source operands.
type ForwardingResult struct {
	Rs1 ForwardSource
	Rs2 ForwardSource
	Rs3 ForwardSource
}

// HazardUnit detects RAW hazards over the tentative next-cycle snapshot
// and determines stalls and forward sources, per spec.md §4.6.
type HazardUnit struct{}

// NewHazardUnit creates a new forwarding/stall unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// producer describes a candidate forwarding source: its destination
// register, whether it writes a register, whether it's a load (which
// cannot be forwarded from EX), and whether the latch is live (we).
type producer struct {
	rd    uint8
	useRd bool
	isLoad bool
	we    bool
}

// Analyze searches EX → MEM → WB in priority order for each decode source
// register that is in use, and reports forwarding selections plus the
// load-use stall signal. de is the tentative next D→E snapshot; em, mw,
// and wb are the tentative next E→M, M→WB, and WB-out snapshots.
func (h *HazardUnit) Analyze(de DELatch, em EMLatch, mw MWLatch, wb WBOut) (ForwardingResult, bool) {
	var result ForwardingResult
	stall := false

	exProducer := producer{rd: em.Rd, useRd: em.UseRd, isLoad: em.IsLongInstruction, we: em.We}
	memProducer := producer{rd: mw.Rd, useRd: mw.UseRd, we: mw.We}
	wbProducer := producer{rd: wb.Rd, useRd: wb.UseRd, we: wb.We}

	resolve := func(use bool, rs uint8) ForwardSource {
		if !use || rs == 0 {
			return ForwardNone
		}

		if exProducer.useRd && exProducer.rd == rs {
			if exProducer.isLoad {
				stall = true
				return ForwardNone
			}
			return ForwardFromEX
		}

		if memProducer.useRd && memProducer.rd == rs {
			return ForwardFromMEM
		}

		if wbProducer.useRd && wbProducer.rd == rs {
			return ForwardFromWB
		}

		return ForwardNone
	}

	result.Rs1 = resolve(de.UseRs1, de.Rs1)
	result.Rs2 = resolve(de.UseRs2, de.Rs2)
	result.Rs3 = resolve(de.UseRs3, de.Rs3)

	return result, stall
}

// Select returns the value to use for a single operand given its
// forwarding source, original decoded value, and the candidate producer
// snapshots.
func (h *HazardUnit) Select(src ForwardSource, original int32, em EMLatch, mw MWLatch, wb WBOut) int32 {
	switch src {
	case ForwardFromEX:
		return em.Result
	case ForwardFromMEM:
		return int32(mw.Result)
	case ForwardFromWB:
		return wb.Value
	default:
		return original
	}
}
