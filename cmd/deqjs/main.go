package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "decompile":
		err = cmdDecompile(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "dump":
		err = cmdDump(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `deqjs — QuickJS bytecode decompiler

Usage:
  deqjs decompile --in <file> [--output <path>]    Decompile to pseudo-JavaScript
  deqjs disasm    --in <file> [--output <path>]    Per-instruction listing
  deqjs dump      --in <file>                      Dump the decoded module tree
  deqjs graph     --in <file> --out <dir>          Per-function CFG DOT files

Flags:
  --in <file>           Path to a .jsc bytecode file
  --output <path>       Write output to a file instead of stdout
  --out <dir>           Output directory (graph)
  --mode <m>            Output mode: pseudo (default) or disasm
  --version <v>         Container format: auto (default), current, legacy
  --deobfuscate         Enable deobfuscation passes
  --optimize            Enable optimization passes
  --config <yaml>       Read default options from a YAML file
  --strict              Fail on first structural error
  --max-steps <n>       Global loop cap
`)
}

// readInput loads the bytecode file named by --in.
func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--in is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// writeOutput sends text to --output or stdout.
func writeOutput(path, text string) error {
	if path == "" {
		_, err := os.Stdout.WriteString(text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
