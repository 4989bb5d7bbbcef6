// PohLang CLI - runs and inspects compiled .pbc programs
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/AlhaqGH/PohLang-sub001/bytecode"
	"github.com/AlhaqGH/PohLang-sub001/manifest"
)

func main() {
	disasm := flag.Bool("d", false, "Disassemble the program instead of running it")
	trace := flag.Bool("trace", false, "Log every executed instruction")
	verbosity := flag.Int("v", 0, "Log verbosity (0=errors only)")
	maxFrames := flag.Int("max-frames", 0, "Call depth limit (overrides pohlang.toml)")
	maxStack := flag.Int("max-stack", 0, "Operand stack limit (overrides pohlang.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: poh [options] <file.pbc>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled PohLang program.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  poh hello.pbc          # Run a compiled program\n")
		fmt.Fprintf(os.Stderr, "  poh -d hello.pbc       # Show its disassembly\n")
		fmt.Fprintf(os.Stderr, "  poh -trace hello.pbc   # Run with an instruction trace\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	commonlog.Configure(*verbosity, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", path, err)
		os.Exit(1)
	}

	prog, err := bytecode.Deserialize(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		fmt.Print(bytecode.Disassemble(prog))
		return
	}

	opts := bytecode.Options{
		MaxFrames: m.VM.MaxFrames,
		MaxStack:  m.VM.MaxStack,
		Trace:     m.VM.Trace || *trace,
	}
	if *maxFrames > 0 {
		opts.MaxFrames = *maxFrames
	}
	if *maxStack > 0 {
		opts.MaxStack = *maxStack
	}

	if _, err := bytecode.Execute(prog, opts); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
