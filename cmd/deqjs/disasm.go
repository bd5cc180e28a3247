package main

import (
	"flag"
	"fmt"

	"deqjs/internal/pipeline"
	"deqjs/internal/qjs"
)

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	in := fs.String("in", "", "path to .jsc file")
	output := fs.String("output", "", "output file (default stdout)")
	version := fs.String("version", "", "container format: auto, current or legacy")
	strict := fs.Bool("strict", false, "fail on first structural error")

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := qjs.DefaultOptions()
	opts.Emit = qjs.EmitDisasm
	if *version != "" {
		var err error
		if opts.Version, err = parseVersion(*version); err != nil {
			return err
		}
	}
	if *strict {
		opts.Mode = qjs.Strict
	}

	data, err := readInput(*in)
	if err != nil {
		return err
	}
	out, err := pipeline.Decompile(data, opts)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}

	reportWarnings(out)
	return writeOutput(*output, out.Text())
}
