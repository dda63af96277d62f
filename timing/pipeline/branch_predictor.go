package pipeline

// Predictor is the capability interface every branch predictor
// implements, per spec.md §4.7: direction prediction, training, and
// rewind of an in-flight, not-yet-resolved prediction.
type Predictor interface {
	// Process predicts the branch direction for pc and records the
	// prediction as in-flight, awaiting a matching Update or Undo.
	Process(pc uint32) bool
	// Update trains the predictor with the resolved outcome for the
	// oldest in-flight prediction at pc.
	Update(pc uint32, actualTaken bool)
	// Undo rewinds the oldest in-flight prediction without training,
	// used when a squash makes the in-pipeline resolution moot.
	Undo()
}

// BimodalConfig configures a Bimodal predictor.
type BimodalConfig struct {
	// Bits is the saturating counter width.
	Bits uint
	// Entries is the table size; must be a power of two.
	Entries uint32
}

// DefaultBimodalConfig returns the reference 2-bit/4-entry configuration
// spec.md §6 names as the default.
func DefaultBimodalConfig() BimodalConfig {
	return BimodalConfig{Bits: 2, Entries: 4}
}

// Bimodal implements the direct-mapped saturating-counter predictor of
// spec.md §4.7. Counter states run T_START=0 (strongly taken) through
// NT_START=(1<<Bits)-1 (strongly not-taken).
type Bimodal struct {
	counters []uint8
	entries  uint32
	tStart   uint8
	ntStart  uint8
	tFinal   uint8

	pending []uint32
}

// NewBimodal creates a Bimodal predictor with the given configuration.
func NewBimodal(cfg BimodalConfig) *Bimodal {
	ntStart := uint8((uint32(1) << cfg.Bits) - 1)
	counters := make([]uint8, cfg.Entries)
	for i := range counters {
		counters[i] = 0 // T_START
	}

	return &Bimodal{
		counters: counters,
		entries:  cfg.Entries,
		tStart:   0,
		ntStart:  ntStart,
		tFinal:   uint8((uint32(1)<<cfg.Bits)/2 - 1),
	}
}

func (b *Bimodal) index(pc uint32) uint32 {
	return (pc >> 2) & (b.entries - 1)
}

// Process predicts taken iff the indexed counter is at or below T_FINAL.
func (b *Bimodal) Process(pc uint32) bool {
	idx := b.index(pc)
	predicted := b.counters[idx] <= b.tFinal
	b.pending = append(b.pending, pc)
	return predicted
}

// Update decrements the counter toward T_START on taken, increments
// toward NT_START on not-taken, saturating at each end.
func (b *Bimodal) Update(pc uint32, actualTaken bool) {
	b.popPending()
	idx := b.index(pc)

	if actualTaken {
		if b.counters[idx] > b.tStart {
			b.counters[idx]--
		}
	} else {
		if b.counters[idx] < b.ntStart {
			b.counters[idx]++
		}
	}
}

// Undo discards the oldest in-flight prediction without training.
func (b *Bimodal) Undo() {
	b.popPending()
}

func (b *Bimodal) popPending() {
	if len(b.pending) == 0 {
		return
	}
	b.pending = b.pending[1:]
}

// PerceptronConfig configures a Perceptron predictor.
type PerceptronConfig struct {
	// HistorySize is the length of the global branch-history register.
	HistorySize uint
	// Bits is the saturating weight width.
	Bits uint
	// Entries is the table size; must be a power of two.
	Entries uint32
	// Threshold (theta) skips training when the prediction was correct
	// and the output magnitude exceeds it.
	Threshold int32
	// LearningRate is the per-update weight step.
	LearningRate int32
}

// DefaultPerceptronConfig returns a reasonable default configuration.
func DefaultPerceptronConfig() PerceptronConfig {
	return PerceptronConfig{
		HistorySize:  8,
		Bits:         8,
		Entries:      256,
		Threshold:    stdPerceptronThreshold(8),
		LearningRate: 1,
	}
}

func stdPerceptronThreshold(historySize uint) int32 {
	return int32(1.93*float64(historySize) + 14)
}

// Perceptron implements the linear-predictor family of spec.md §4.7: a
// per-PC weight vector trained against a global branch-history register.
type Perceptron struct {
	weights     [][]int32
	history     []bool
	entries     uint32
	historySize uint
	maxWeight   int32
	threshold   int32
	lr          int32

	pending []perceptronPrediction
}

type perceptronPrediction struct {
	pc      uint32
	y       int32
	history []bool
}

// NewPerceptron creates a Perceptron predictor with the given
// configuration.
func NewPerceptron(cfg PerceptronConfig) *Perceptron {
	weights := make([][]int32, cfg.Entries)
	for i := range weights {
		weights[i] = make([]int32, cfg.HistorySize+1)
	}

	return &Perceptron{
		weights:     weights,
		history:     make([]bool, cfg.HistorySize),
		entries:     cfg.Entries,
		historySize: cfg.HistorySize,
		maxWeight:   int32(1) << (cfg.Bits - 1),
		threshold:   cfg.Threshold,
		lr:          cfg.LearningRate,
	}
}

func (p *Perceptron) index(pc uint32) uint32 {
	return (pc >> 2) & (p.entries - 1)
}

// Process computes y = w0 + sum(wi * (history bit ? +1 : -1)) and predicts
// taken iff y >= 0.
func (p *Perceptron) Process(pc uint32) bool {
	idx := p.index(pc)
	w := p.weights[idx]

	y := w[0]
	for i, bit := range p.history {
		if bit {
			y += w[i+1]
		} else {
			y -= w[i+1]
		}
	}

	historySnapshot := make([]bool, len(p.history))
	copy(historySnapshot, p.history)
	p.pending = append(p.pending, perceptronPrediction{pc: pc, y: y, history: historySnapshot})

	return y >= 0
}

// Update trains the weights for the oldest in-flight prediction against
// the resolved outcome, then shifts the outcome into global history.
func (p *Perceptron) Update(pc uint32, actualTaken bool) {
	if len(p.pending) == 0 {
		p.shiftHistory(actualTaken)
		return
	}

	pred := p.pending[0]
	p.pending = p.pending[1:]

	predictedTaken := pred.y >= 0
	correct := predictedTaken == actualTaken
	magnitude := pred.y
	if magnitude < 0 {
		magnitude = -magnitude
	}

	if !(correct && magnitude > p.threshold) {
		idx := p.index(pc)
		w := p.weights[idx]

		target := int32(-1)
		if actualTaken {
			target = 1
		}

		w[0] = saturate(w[0]+p.lr*target, p.maxWeight)
		for i, bit := range pred.history {
			bitVal := int32(-1)
			if bit {
				bitVal = 1
			}
			w[i+1] = saturate(w[i+1]+p.lr*target*bitVal, p.maxWeight)
		}
	}

	p.shiftHistory(actualTaken)
}

// Undo discards the oldest in-flight prediction without training or
// shifting history.
func (p *Perceptron) Undo() {
	if len(p.pending) == 0 {
		return
	}
	p.pending = p.pending[1:]
}

func (p *Perceptron) shiftHistory(taken bool) {
	copy(p.history, p.history[1:])
	p.history[len(p.history)-1] = taken
}

func saturate(v, max int32) int32 {
	if v > max-1 {
		return max - 1
	}
	if v < -max {
		return -max
	}
	return v
}

// MissRateStats holds running miss-rate counters for an instrumented
// predictor, per spec.md's §1 "debug instrumentation" collaborator.
type MissRateStats struct {
	Predictions uint64
	Misses      uint64
}

// MissRate returns the fraction of predictions that were wrong, or 0 if
// no predictions have been made.
func (s MissRateStats) MissRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Misses) / float64(s.Predictions)
}

// InstrumentedPredictor decorates any Predictor with miss-rate counters,
// matching a predicted direction against its resolved outcome at Update
// time (spec.md §9's "debug wrapper").
type InstrumentedPredictor struct {
	inner Predictor
	stats MissRateStats

	pendingPredictions []bool
}

// NewInstrumentedPredictor wraps inner with miss-rate instrumentation.
func NewInstrumentedPredictor(inner Predictor) *InstrumentedPredictor {
	return &InstrumentedPredictor{inner: inner}
}

// Process forwards to the wrapped predictor and remembers the predicted
// direction for the matching Update call.
func (p *InstrumentedPredictor) Process(pc uint32) bool {
	predicted := p.inner.Process(pc)
	p.pendingPredictions = append(p.pendingPredictions, predicted)
	p.stats.Predictions++
	return predicted
}

// Update forwards to the wrapped predictor and scores the oldest pending
// prediction against the resolved outcome.
func (p *InstrumentedPredictor) Update(pc uint32, actualTaken bool) {
	if len(p.pendingPredictions) > 0 {
		predicted := p.pendingPredictions[0]
		p.pendingPredictions = p.pendingPredictions[1:]
		if predicted != actualTaken {
			p.stats.Misses++
		}
	}

	p.inner.Update(pc, actualTaken)
}

// Undo forwards to the wrapped predictor and discards the matching
// pending prediction without scoring it.
func (p *InstrumentedPredictor) Undo() {
	if len(p.pendingPredictions) > 0 {
		p.pendingPredictions = p.pendingPredictions[1:]
		p.stats.Predictions--
	}

	p.inner.Undo()
}

// Stats returns the current miss-rate statistics.
func (p *InstrumentedPredictor) Stats() MissRateStats {
	return p.stats
}
