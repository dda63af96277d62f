package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/timing/pipeline"
)

var _ = Describe("Bimodal", func() {
	var predictor *pipeline.Bimodal

	BeforeEach(func() {
		predictor = pipeline.NewBimodal(pipeline.DefaultBimodalConfig())
	})

	It("starts strongly taken", func() {
		Expect(predictor.Process(0x100)).To(BeTrue())
	})

	It("saturates after enough consecutive taken updates", func() {
		for i := 0; i < 4; i++ {
			predictor.Process(0x100)
			predictor.Update(0x100, true)
		}

		Expect(predictor.Process(0x100)).To(BeTrue())
	})

	It("flips to not-taken after enough consecutive not-taken updates", func() {
		for i := 0; i < 4; i++ {
			predictor.Process(0x100)
			predictor.Update(0x100, false)
		}

		Expect(predictor.Process(0x100)).To(BeFalse())
	})

	It("undoes an in-flight prediction without training", func() {
		predictor.Process(0x100)
		predictor.Undo()

		for i := 0; i < 4; i++ {
			predictor.Process(0x100)
			predictor.Update(0x100, false)
		}

		Expect(predictor.Process(0x100)).To(BeFalse())
	})

	It("trains distinct PCs independently", func() {
		for i := 0; i < 4; i++ {
			predictor.Process(0x100)
			predictor.Update(0x100, false)
		}

		Expect(predictor.Process(0x104)).To(BeTrue())
	})
})

var _ = Describe("Perceptron", func() {
	var predictor *pipeline.Perceptron

	BeforeEach(func() {
		predictor = pipeline.NewPerceptron(pipeline.DefaultPerceptronConfig())
	})

	It("learns a consistently-taken branch", func() {
		for i := 0; i < 50; i++ {
			taken := predictor.Process(0x400)
			predictor.Update(0x400, true)
			if i > 30 {
				Expect(taken).To(BeTrue())
			}
		}
	})

	It("learns a consistently-not-taken branch", func() {
		for i := 0; i < 50; i++ {
			taken := predictor.Process(0x400)
			predictor.Update(0x400, false)
			if i > 30 {
				Expect(taken).To(BeFalse())
			}
		}
	})

	It("undoes an in-flight prediction without panicking", func() {
		predictor.Process(0x400)
		predictor.Undo()
	})
})

var _ = Describe("InstrumentedPredictor", func() {
	var predictor *pipeline.InstrumentedPredictor

	BeforeEach(func() {
		predictor = pipeline.NewInstrumentedPredictor(pipeline.NewBimodal(pipeline.DefaultBimodalConfig()))
	})

	It("reports zero miss rate before any predictions", func() {
		Expect(predictor.Stats().MissRate()).To(Equal(0.0))
	})

	It("counts a misprediction when the resolved outcome disagrees", func() {
		predicted := predictor.Process(0x100)
		predictor.Update(0x100, !predicted)

		Expect(predictor.Stats().Misses).To(Equal(uint64(1)))
		Expect(predictor.Stats().Predictions).To(Equal(uint64(1)))
	})

	It("does not count a correct prediction as a miss", func() {
		predicted := predictor.Process(0x100)
		predictor.Update(0x100, predicted)

		Expect(predictor.Stats().Misses).To(Equal(uint64(0)))
	})

	It("achieves a low miss rate training on 16 taken then 16 not-taken outcomes", func() {
		for i := 0; i < 16; i++ {
			predictor.Process(0x100)
			predictor.Update(0x100, true)
		}
		for i := 0; i < 16; i++ {
			predictor.Process(0x100)
			predictor.Update(0x100, false)
		}

		Expect(predictor.Stats().MissRate()).To(BeNumerically("<=", 2.0/32.0))
	})

	It("discards a squashed prediction via Undo without scoring it", func() {
		predictor.Process(0x100)
		predictor.Undo()

		Expect(predictor.Stats().Predictions).To(Equal(uint64(0)))
	})
})
