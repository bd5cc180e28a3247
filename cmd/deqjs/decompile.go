package main

import (
	"flag"
	"fmt"
	"os"

	"deqjs/internal/pipeline"
	"deqjs/internal/qjs"
)

func cmdDecompile(args []string) error {
	fs := flag.NewFlagSet("decompile", flag.ExitOnError)
	in := fs.String("in", "", "path to .jsc file")
	output := fs.String("output", "", "output file (default stdout)")
	mode := fs.String("mode", "", "output mode: pseudo or disasm")
	version := fs.String("version", "", "container format: auto, current or legacy")
	deobfuscate := fs.Bool("deobfuscate", false, "enable deobfuscation passes")
	optimize := fs.Bool("optimize", false, "enable optimization passes")
	config := fs.String("config", "", "YAML config file")
	strict := fs.Bool("strict", false, "fail on first structural error")
	maxSteps := fs.Int("max-steps", 0, "global loop cap")

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := loadConfig(*config)
	if err != nil {
		return err
	}
	if *mode != "" {
		if opts.Emit, err = parseEmitMode(*mode); err != nil {
			return err
		}
	}
	if *version != "" {
		if opts.Version, err = parseVersion(*version); err != nil {
			return err
		}
	}
	if *strict {
		opts.Mode = qjs.Strict
	}
	if *deobfuscate {
		opts.Deobfuscate = true
	}
	if *optimize {
		opts.Optimize = true
	}
	if *maxSteps > 0 {
		opts.MaxSteps = *maxSteps
	}

	data, err := readInput(*in)
	if err != nil {
		return err
	}
	out, err := pipeline.Decompile(data, opts)
	if err != nil {
		return fmt.Errorf("decompile: %w", err)
	}

	reportWarnings(out)
	return writeOutput(*output, out.Text())
}

// reportWarnings prints diagnostics to stderr grouped by function.
func reportWarnings(out *pipeline.Output) {
	for _, d := range out.Diags {
		fmt.Fprintf(os.Stderr, "warning: offset %d: %s\n", d.Offset, d.Msg)
	}
	for _, f := range out.Funcs {
		if len(f.Diags) == 0 {
			continue
		}
		fmt.Fprintf(os.Stderr, "%s:\n", f.Name)
		for _, d := range f.Diags {
			fmt.Fprintf(os.Stderr, "  warning: %s: %s\n", d.Kind, d.Msg)
		}
	}
}
