// Command rv32sim runs an RV32I ELF binary through the cycle-accurate
// 5-stage pipeline simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rv32pipe/emu"
	"github.com/sarchlab/rv32pipe/loader"
	"github.com/sarchlab/rv32pipe/timing/core"
	"github.com/sarchlab/rv32pipe/timing/pipeline"
)

const maxCycles = 0xFFFF

var (
	perceptron = flag.Bool("perceptron", false, "use the perceptron branch predictor instead of the default bimodal")
	verbose    = flag.Bool("v", false, "verbose output")
	cycleCap   = flag.Uint64("max-cycles", maxCycles, "cycle cap before the run is aborted")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rv32sim [options] <program.elf>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	memory := emu.NewMemory()
	if err := prog.InstallInto(memory); err != nil {
		fmt.Fprintf(os.Stderr, "Error installing program image: %v\n", err)
		os.Exit(1)
	}

	regFile := &emu.RegFile{}
	regFile.WriteReg(2, int32(prog.InitialSP))

	syscallHandler := emu.NewDefaultSyscallHandler(memory, os.Stdout, os.Stderr)

	var predictor pipeline.Predictor
	if *perceptron {
		predictor = pipeline.NewInstrumentedPredictor(pipeline.NewPerceptron(pipeline.DefaultPerceptronConfig()))
	} else {
		predictor = pipeline.NewInstrumentedPredictor(pipeline.NewBimodal(pipeline.DefaultBimodalConfig()))
	}

	c := core.NewCore(regFile, memory,
		core.WithSyscallHandler(syscallHandler),
		core.WithPredictor(predictor),
	)
	c.SetPC(prog.EntryPoint)

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	exitCode := c.Run(*cycleCap)
	stats := c.Stats()

	if *verbose {
		fmt.Printf("\nExit code: %d\n", exitCode)
		fmt.Printf("Cycles: %d\n", stats.Cycles)
		fmt.Printf("Instructions: %d\n", stats.Instructions)
		fmt.Printf("CPI: %.2f\n", stats.CPI)
		fmt.Printf("Stalls: %d\n", stats.Stalls)
		fmt.Printf("Branches: %d\n", stats.Branches)
		fmt.Printf("Flushes: %d\n", stats.Flushes)

		if ip, ok := predictor.(*pipeline.InstrumentedPredictor); ok {
			fmt.Printf("Branch miss rate: %.2f%%\n", ip.Stats().MissRate()*100)
		}
	}

	os.Exit(int(exitCode))
}
