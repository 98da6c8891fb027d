package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

// config is the resolved set of run options: whatever a TOML file (-config)
// supplies, with any flag the user actually passed on the command line
// taking precedence.
type config struct {
	ProgramPath string
	FactsDir    string
	CSVDir      string
	Delimiter   string
	Workers     int
	OptLevel    int
	FatMode     bool
	NoSharing   bool
}

// tomlConfig mirrors config's fields loosely typed, the way a hand-edited
// TOML file's values naturally come in (a delimiter written as a bare
// char, a worker count written as either a string or a number) — cast
// coerces each into config's strict field types.
type tomlConfig struct {
	Program   interface{} `toml:"program"`
	Facts     interface{} `toml:"facts"`
	Output    interface{} `toml:"output"`
	Delimiter interface{} `toml:"delimiter"`
	Workers   interface{} `toml:"workers"`
	Optimize  interface{} `toml:"optimize"`
	FatMode   interface{} `toml:"fat_mode"`
	NoSharing interface{} `toml:"no_sharing"`
}

// resolveConfig loads --config (when given) and layers the flags the user
// actually set on top of it, so a config file can supply defaults a flag
// selectively overrides (spec §6: "optional per-rule annotations" and CLI
// flags coexist the same way here — file first, flag wins).
func resolveConfig(cmd *cobra.Command) (config, error) {
	cfg := config{
		ProgramPath: flags.programPath,
		FactsDir:    flags.factsDir,
		CSVDir:      flags.csvDir,
		Delimiter:   flags.delimiter,
		Workers:     flags.workers,
		OptLevel:    flags.optLevel,
		FatMode:     flags.fatMode,
		NoSharing:   flags.noSharing,
	}

	if flags.configPath == "" {
		return cfg, nil
	}

	var tc tomlConfig
	if _, err := toml.DecodeFile(flags.configPath, &tc); err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", flags.configPath, err)
	}

	applyTOMLString(&cfg.ProgramPath, tc.Program, cmd, "program")
	applyTOMLString(&cfg.FactsDir, tc.Facts, cmd, "facts")
	applyTOMLString(&cfg.CSVDir, tc.Output, cmd, "output")
	applyTOMLString(&cfg.Delimiter, tc.Delimiter, cmd, "delimiter")
	applyTOMLInt(&cfg.Workers, tc.Workers, cmd, "workers")
	applyTOMLInt(&cfg.OptLevel, tc.Optimize, cmd, "optimize")
	applyTOMLBool(&cfg.FatMode, tc.FatMode, cmd, "fat-mode")
	applyTOMLBool(&cfg.NoSharing, tc.NoSharing, cmd, "no-sharing")

	return cfg, nil
}

// applyTOMLString sets *dst from raw when raw is present and the user did
// not explicitly pass flagName on the command line.
func applyTOMLString(dst *string, raw interface{}, cmd *cobra.Command, flagName string) {
	if raw == nil || cmd.Flags().Changed(flagName) {
		return
	}
	*dst = cast.ToString(raw)
}

func applyTOMLInt(dst *int, raw interface{}, cmd *cobra.Command, flagName string) {
	if raw == nil || cmd.Flags().Changed(flagName) {
		return
	}
	*dst = cast.ToInt(raw)
}

func applyTOMLBool(dst *bool, raw interface{}, cmd *cobra.Command, flagName string) {
	if raw == nil || cmd.Flags().Changed(flagName) {
		return
	}
	*dst = cast.ToBool(raw)
}
