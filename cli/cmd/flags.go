// Package cmd provides CLI commands for the buildout binary.
package cmd

import "github.com/urfave/cli/v2"

// Global flags, available to every command.
var (
	// ConfigFlag points at the buildout.yaml to load.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./buildout.yaml if present)",
		EnvVars: []string{"BUILDOUT_CONFIG"},
	}

	// ScopeFlag overrides the configured scope.
	ScopeFlag = &cli.StringFlag{
		Name:    "scope",
		Usage:   "Scope identifier, e.g. a build variant name",
		EnvVars: []string{"BUILDOUT_SCOPE"},
	}

	// VerboseFlag enables structured logging to stderr.
	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Write structured logs to stderr",
	}
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// GlobalFlags returns the flags registered on the app itself.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		ScopeFlag,
		VerboseFlag,
	}
}

// ReadOnlyFlags returns the shared flags for all rendering commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// withReadOnly appends the shared rendering flags to flags.
func withReadOnly(flags ...cli.Flag) []cli.Flag {
	return append(flags, ReadOnlyFlags()...)
}
