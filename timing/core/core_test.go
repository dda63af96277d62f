package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/emu"
	"github.com/sarchlab/rv32pipe/timing/core"
)

const opcodeOpImm = 0b0010011
const opcodeSystem = 0b1110011

func addi(rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | (rs1 << 15) | (0b000 << 12) | (rd << 7) | opcodeOpImm
}

const nop = uint32(0x00000013)
const ecallWord uint32 = 0x00000073

var _ = Describe("Core", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
		c       *core.Core
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory()
		c = core.NewCore(regFile, memory)
	})

	It("creates a core with a pipeline", func() {
		Expect(c).NotTo(BeNil())
		Expect(c.Pipeline).NotTo(BeNil())
	})

	It("sets and reports the program counter", func() {
		c.SetPC(0x1000)
		Expect(c.Pipeline.PC()).To(Equal(uint32(0x1000)))
	})

	It("is not halted initially", func() {
		Expect(c.Halted()).To(BeFalse())
	})

	It("executes instructions through Tick", func() {
		Expect(memory.LoadInstructionsAt(0, []uint32{
			addi(1, 0, 42),
			nop, nop, nop, nop,
		})).To(Succeed())

		c.SetPC(0)
		for i := 0; i < 10; i++ {
			c.Tick()
		}

		Expect(regFile.ReadReg(1)).To(Equal(int32(42)))
	})

	It("reports cycle-accurate stats after ticking", func() {
		Expect(memory.LoadInstructionsAt(0, []uint32{addi(1, 0, 1), nop})).To(Succeed())

		c.SetPC(0)
		c.Tick()
		c.Tick()

		Expect(c.Stats().Cycles).To(Equal(uint64(2)))
	})

	It("runs until halt and returns the exit code", func() {
		Expect(memory.LoadInstructionsAt(0, []uint32{
			addi(17, 0, 93), // a7 = exit syscall number
			addi(10, 0, 10), // a0 = exit code 10
			ecallWord,
		})).To(Succeed())

		c.SetPC(0)
		exitCode := c.Run(0xFFFF)

		Expect(c.Halted()).To(BeTrue())
		Expect(exitCode).To(Equal(int32(10)))
		Expect(c.ExitCode()).To(Equal(int32(10)))
	})

	It("stops at the cycle cap when the program never halts", func() {
		Expect(memory.LoadInstructionsAt(0, []uint32{
			addi(1, 1, 1),
			nop, nop, nop, nop,
		})).To(Succeed())

		c.SetPC(0)
		c.Run(5)

		Expect(c.Halted()).To(BeFalse())
		Expect(c.Stats().Cycles).To(Equal(uint64(5)))
	})

	It("runs for a fixed number of cycles and reports whether it is still running", func() {
		Expect(memory.LoadInstructionsAt(0, []uint32{
			addi(1, 1, 1),
			nop, nop, nop, nop, nop, nop, nop, nop, nop,
		})).To(Succeed())

		c.SetPC(0)
		running := c.RunCycles(5)

		Expect(running).To(BeTrue())
		Expect(c.Halted()).To(BeFalse())
		Expect(c.Stats().Cycles).To(Equal(uint64(5)))
	})

	It("stops running cycles once the program halts", func() {
		Expect(memory.LoadInstructionsAt(0, []uint32{
			addi(17, 0, 93),
			addi(10, 0, 0),
			ecallWord,
		})).To(Succeed())

		c.SetPC(0)
		running := c.RunCycles(100)

		Expect(running).To(BeFalse())
		Expect(c.Halted()).To(BeTrue())
	})
})
