package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/cli/render"
	"github.com/pithecene-io/buildout/lode"
)

// FetchCommand returns the fetch command. It downloads a published
// manifest into a local directory, rebasing its paths there.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a published manifest into a directory",
		ArgsUsage: "<dir>",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Artifact type to fetch",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "revision",
				Usage: "Revision to fetch (default: latest)",
			},
		),
		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("target directory required", exitConfigError)
	}

	env, err := newBuildEnv(c)
	if err != nil {
		return err
	}
	defer env.close()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := lookupType(c.String("type"))
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	store, err := env.store(ctx)
	if err != nil {
		return err
	}
	pub, err := store.Fetch(ctx, env.meta.Scope, t, c.String("revision"), dir)
	if errors.Is(err, lode.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("nothing published for %s/%s", env.meta.Scope, t.Name), exitFailure)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("fetch failed: %v", err), exitStorageFailed)
	}

	r.Heading("Fetched " + pub.Key())
	return r.Render(pub)
}

// RevisionsCommand returns the revisions command.
func RevisionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "revisions",
		Usage: "List published revisions of an artifact type, oldest first",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Artifact type",
				Required: true,
			},
		),
		Action: revisionsAction,
	}
}

func revisionsAction(c *cli.Context) error {
	env, err := newBuildEnv(c)
	if err != nil {
		return err
	}
	defer env.close()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := lookupType(c.String("type"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	store, err := env.store(ctx)
	if err != nil {
		return err
	}
	revisions, err := store.Revisions(ctx, env.meta.Scope, t)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list revisions failed: %v", err), exitStorageFailed)
	}
	return r.Render(revisions)
}
