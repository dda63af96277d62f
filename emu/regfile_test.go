package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/emu"
)

var _ = Describe("RegFile", func() {
	var regFile *emu.RegFile

	BeforeEach(func() {
		regFile = &emu.RegFile{}
	})

	It("reads back a written register", func() {
		regFile.WriteReg(5, 123)
		Expect(regFile.ReadReg(5)).To(Equal(int32(123)))
	})

	It("hardwires x0 to zero even after a write", func() {
		regFile.WriteReg(0, 999)
		Expect(regFile.ReadReg(0)).To(Equal(int32(0)))
	})

	It("ignores writes to an out-of-range register index", func() {
		regFile.WriteReg(32, 42)
		Expect(regFile.ReadReg(32)).To(Equal(int32(0)))
	})

	It("reads zero for an out-of-range register index", func() {
		Expect(regFile.ReadReg(255)).To(Equal(int32(0)))
	})

	It("preserves negative values", func() {
		regFile.WriteReg(1, -1)
		Expect(regFile.ReadReg(1)).To(Equal(int32(-1)))
	})
})
