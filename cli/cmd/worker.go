package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/worker"
)

// WorkerCommand returns the hidden worker command. A process pool runs it
// as a child and talks to it over stdin and stdout; it is not meant to be
// invoked by hand.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Serve work units over stdin/stdout",
		Hidden: true,
		Action: workerAction,
	}
}

func workerAction(c *cli.Context) error {
	env, err := newBuildEnv(c)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	logger := env.logger.With("role", "worker")
	if err := worker.Serve(ctx, os.Stdin, os.Stdout, worker.NewBuiltinRegistry(), logger); err != nil {
		logger.Error("worker stopped", map[string]any{"error": err.Error()})
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}
