package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/emu"
	"github.com/sarchlab/rv32pipe/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RV32I ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createMinimalRV32ELF(elfPath, 0x1000, 0x1008, []byte{
					0x13, 0x00, 0x50, 0x00, // ADDI x0, x0, 5
					0x67, 0x80, 0x00, 0x00, // JALR x0, 0(x1)
				})
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint32(0x1008)))
			})

			It("should extract at least one loadable segment", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(prog.Segments)).To(BeNumerically(">", 0))
			})

			It("should set up an initial stack pointer", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.InitialSP).To(BeNumerically(">", 0))
			})
		})

		Context("with segment data", func() {
			It("should correctly load segment contents", func() {
				elfPath := filepath.Join(tempDir, "code.elf")
				codeData := []byte{0x13, 0x00, 0x50, 0x00, 0x67, 0x80, 0x00, 0x00}
				createMinimalRV32ELF(elfPath, 0x1000, 0x1000, codeData)

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				var foundSegment *loader.Segment
				for i := range prog.Segments {
					if prog.Segments[i].VirtAddr == 0x1000 {
						foundSegment = &prog.Segments[i]
						break
					}
				}
				Expect(foundSegment).NotTo(BeNil())
				Expect(foundSegment.Data).To(HaveLen(len(codeData)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a non-RISC-V ELF", func() {
			It("should return error for an x86-64 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				createMinimalx86ELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a"))
			})
		})

		Context("with a 64-bit ELF", func() {
			It("should return error for a 64-bit ELF", func() {
				elfPath := filepath.Join(tempDir, "elf64.elf")
				createMinimal64BitELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 32-bit"))
			})
		})
	})

	Describe("InstallInto", func() {
		It("installs executable segments as instruction words", func() {
			elfPath := filepath.Join(tempDir, "install.elf")
			code := []byte{0x13, 0x00, 0x50, 0x00}
			createMinimalRV32ELF(elfPath, 0x0, 0x0, code)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			mem := emu.NewMemory()
			Expect(prog.InstallInto(mem)).To(Succeed())
			Expect(mem.FetchInstruction(0)).To(Equal(binary.LittleEndian.Uint32(code)))
		})
	})

	Describe("Multi-segment ELFs", func() {
		It("should load multiple PT_LOAD segments", func() {
			elfPath := filepath.Join(tempDir, "multi-segment.elf")
			codeData := []byte{0x13, 0x00, 0x50, 0x00, 0x67, 0x80, 0x00, 0x00}
			dataData := []byte{0x01, 0x02, 0x03, 0x04}
			createMultiSegmentRV32ELF(elfPath, 0x1000, 0x1000, codeData, 0x3000, dataData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))

			var codeSeg, dataSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x1000 {
					codeSeg = &prog.Segments[i]
				}
				if prog.Segments[i].VirtAddr == 0x3000 {
					dataSeg = &prog.Segments[i]
				}
			}

			Expect(codeSeg).NotTo(BeNil())
			Expect(codeSeg.Data).To(Equal(codeData))
			Expect(codeSeg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())

			Expect(dataSeg).NotTo(BeNil())
			Expect(dataSeg.Data).To(Equal(dataData))
			Expect(dataSeg.Flags & loader.SegmentFlagWrite).NotTo(BeZero())
		})
	})

	Describe("ELFs with no loadable segments", func() {
		It("should return an empty segments list for an ELF with no PT_LOAD", func() {
			elfPath := filepath.Join(tempDir, "no-load.elf")
			createNoLoadableSegmentsELF(elfPath, 0x1000)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.EntryPoint).To(Equal(uint32(0x1000)))
		})
	})
})

// rv32ELFHeader builds a minimal ELF32-layout header (52 bytes) for machine
// `machine`, declaring phnum 32-byte program header entries placed right
// after it; callers append those entries themselves.
func rv32ELFHeader(class byte, machine uint16, entryPoint uint32, phnum uint16) []byte {
	h := make([]byte, 52)
	copy(h[0:4], []byte{0x7f, 'E', 'L', 'F'})
	h[4] = class // 1 = ELFCLASS32, 2 = ELFCLASS64
	h[5] = 1     // little endian
	h[6] = 1     // version
	binary.LittleEndian.PutUint16(h[16:18], 2) // ET_EXEC
	binary.LittleEndian.PutUint16(h[18:20], machine)
	binary.LittleEndian.PutUint32(h[20:24], 1) // version
	binary.LittleEndian.PutUint32(h[24:28], entryPoint)
	binary.LittleEndian.PutUint32(h[28:32], 52) // phoff
	binary.LittleEndian.PutUint16(h[40:42], 52) // ehsize
	binary.LittleEndian.PutUint16(h[42:44], 32) // phentsize
	binary.LittleEndian.PutUint16(h[44:46], phnum)
	return h
}

func rv32ProgHeader(pType, flags, offset, vaddr, filesz, memsz uint32) []byte {
	p := make([]byte, 32)
	binary.LittleEndian.PutUint32(p[0:4], pType)
	binary.LittleEndian.PutUint32(p[4:8], offset)
	binary.LittleEndian.PutUint32(p[8:12], vaddr)
	binary.LittleEndian.PutUint32(p[12:16], vaddr)
	binary.LittleEndian.PutUint32(p[16:20], filesz)
	binary.LittleEndian.PutUint32(p[20:24], memsz)
	binary.LittleEndian.PutUint32(p[24:28], flags)
	binary.LittleEndian.PutUint32(p[28:32], 0x1000)
	return p
}

// createMinimalRV32ELF creates a minimal valid RV32I ELF32 binary with a
// single RX PT_LOAD segment.
func createMinimalRV32ELF(path string, loadAddr, entryPoint uint32, code []byte) {
	header := rv32ELFHeader(1, 243 /* EM_RISCV */, entryPoint, 1)
	phdr := rv32ProgHeader(1 /* PT_LOAD */, 0x5 /* PF_X|PF_R */, 84, loadAddr, uint32(len(code)), uint32(len(code)))

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(phdr)
	_, _ = file.Write(code)
}

// createMultiSegmentRV32ELF creates an RV32I ELF with an RX code segment
// and an RW data segment.
func createMultiSegmentRV32ELF(path string, codeAddr, entryPoint uint32, code []byte, dataAddr uint32, data []byte) {
	header := rv32ELFHeader(1, 243, entryPoint, 2)
	codeOff := uint32(52 + 2*32)
	dataOff := codeOff + uint32(len(code))
	codePhdr := rv32ProgHeader(1, 0x5, codeOff, codeAddr, uint32(len(code)), uint32(len(code)))
	dataPhdr := rv32ProgHeader(1, 0x6 /* PF_W|PF_R */, dataOff, dataAddr, uint32(len(data)), uint32(len(data)))

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(codePhdr)
	_, _ = file.Write(dataPhdr)
	_, _ = file.Write(code)
	_, _ = file.Write(data)
}

// createNoLoadableSegmentsELF creates a valid RV32I ELF with zero program
// headers.
func createNoLoadableSegmentsELF(path string, entryPoint uint32) {
	header := rv32ELFHeader(1, 243, entryPoint, 0)
	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

// createMinimalx86ELF creates a minimal 32-bit x86 ELF to test machine
// rejection.
func createMinimalx86ELF(path string) {
	header := rv32ELFHeader(1, 3 /* EM_386 */, 0, 0)
	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

// createMinimal64BitELF creates a minimal 64-bit ELF to test class
// rejection.
func createMinimal64BitELF(path string) {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], 243)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint16(header[52:54], 64)
	binary.LittleEndian.PutUint16(header[54:56], 56)
	binary.LittleEndian.PutUint16(header[56:58], 0)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}
