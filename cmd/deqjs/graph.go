package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"deqjs/internal/pipeline"
	"deqjs/internal/qjs"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	in := fs.String("in", "", "path to .jsc file")
	outDir := fs.String("out", "", "output directory for DOT files")
	version := fs.String("version", "", "container format: auto, current or legacy")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return fmt.Errorf("--out is required")
	}

	opts := qjs.DefaultOptions()
	if *version != "" {
		var err error
		if opts.Version, err = parseVersion(*version); err != nil {
			return err
		}
	}

	data, err := readInput(*in)
	if err != nil {
		return err
	}
	out, err := pipeline.Decompile(data, opts)
	if err != nil {
		return fmt.Errorf("decompile: %w", err)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	count := 0
	for i, f := range out.Funcs {
		if f.CFG == nil {
			continue
		}
		g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{f.CFG}}
		dot := render.DOTCFG(g, f.Name)
		name := fmt.Sprintf("%03d_%s.dot", i, sanitizeFilename(f.Name))
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		count++
	}
	fmt.Fprintf(os.Stderr, "wrote %d CFG files to %s\n", count, *outDir)
	return nil
}

func sanitizeFilename(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := c == '_' || c == '-' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if ok {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
