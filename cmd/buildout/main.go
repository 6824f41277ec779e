// Package main provides the buildout CLI entrypoint.
//
// Usage:
//
//	buildout [global options] <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: a work unit, manifest or notification failed
//   - 2: invalid configuration or producer graph
//   - 3: manifest store failure
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/cli/cmd"
	"github.com/pithecene-io/buildout/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "buildout",
		Usage:          "Build output producer graph, manifests and transforms",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands:       cmd.Commands(commit),
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for every non-nil error.
		os.Exit(1)
	}
}

// exitErrHandler prints err and exits with the code it carries.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps an error to a process exit code and the message to print.
// cli.Exit("", N) carries no message worth printing.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
