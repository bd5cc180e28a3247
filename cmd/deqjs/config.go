package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"deqjs/internal/qjs"
)

// fileConfig is the YAML shape accepted by --config. Every field maps to
// a flag; flags set on the command line win.
type fileConfig struct {
	Mode        string `yaml:"mode"`        // pseudo | disasm
	Version     string `yaml:"version"`     // auto | current | legacy
	Strict      bool   `yaml:"strict"`
	Deobfuscate bool   `yaml:"deobfuscate"`
	Optimize    bool   `yaml:"optimize"`
	MaxSteps    int    `yaml:"max_steps"`
}

// loadConfig merges a YAML config file into default options.
func loadConfig(path string) (qjs.Options, error) {
	opts := qjs.DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return opts, fmt.Errorf("parse config: %w", err)
	}

	if fc.Mode != "" {
		m, err := parseEmitMode(fc.Mode)
		if err != nil {
			return opts, err
		}
		opts.Emit = m
	}
	if fc.Version != "" {
		v, err := parseVersion(fc.Version)
		if err != nil {
			return opts, err
		}
		opts.Version = v
	}
	if fc.Strict {
		opts.Mode = qjs.Strict
	}
	opts.Deobfuscate = fc.Deobfuscate
	opts.Optimize = fc.Optimize
	opts.MaxSteps = fc.MaxSteps
	return opts, nil
}

func parseEmitMode(s string) (qjs.EmitMode, error) {
	switch s {
	case "pseudo":
		return qjs.EmitPseudo, nil
	case "disasm":
		return qjs.EmitDisasm, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want pseudo or disasm)", s)
}

func parseVersion(s string) (qjs.Version, error) {
	switch s {
	case "auto":
		return qjs.VersionAuto, nil
	case "current":
		return qjs.VersionCurrent, nil
	case "legacy":
		return qjs.VersionLegacy, nil
	}
	return 0, fmt.Errorf("unknown version %q (want auto, current or legacy)", s)
}
