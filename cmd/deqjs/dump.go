package main

import (
	"flag"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"deqjs/internal/container"
	"deqjs/internal/qjs"
)

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	in := fs.String("in", "", "path to .jsc file")
	version := fs.String("version", "", "container format: auto, current or legacy")

	if err := fs.Parse(args); err != nil {
		return err
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
	res, err := container.DecodeOpt(data, opts)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	mod := res.Value

	fmt.Printf("version: %s\n", mod.Version)
	fmt.Printf("atoms: %d (first %d)\n", len(mod.Atoms.Atoms), mod.Atoms.FirstAtom)
	fmt.Printf("functions: %d\n\n", len(mod.Functions()))
	spew.Dump(mod.Root)
	return nil
}
