package cmd

import "github.com/urfave/cli/v2"

// Commands returns every command of the buildout binary.
func Commands(commit string) []*cli.Command {
	return []*cli.Command{
		PlanCommand(),
		TransformCommand(),
		InspectCommand(),
		PublishCommand(),
		FetchCommand(),
		RevisionsCommand(),
		WorkerCommand(),
		VersionCommand(commit),
	}
}
