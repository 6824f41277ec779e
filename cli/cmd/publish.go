package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/cli/render"
	"github.com/pithecene-io/buildout/iox"
)

// PublishCommand returns the publish command. It stores a manifest and
// the files it references as a new revision, then notifies the
// configured adapter.
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish a manifest directory to the manifest store",
		ArgsUsage: "<dir>",
		Flags: withReadOnly(append([]cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Artifact type to publish",
				Required: true,
			},
		}, adapterFlags()...)...),
		Action: publishAction,
	}
}

func publishAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("manifest directory required", exitConfigError)
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

	// Resolve the adapter before storing anything so a bad adapter config
	// never leaves an unannounced revision behind.
	choice, err := parseAdapterConfig(c, env.cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	store, err := env.store(ctx)
	if err != nil {
		return err
	}
	pub, err := store.Publish(ctx, env.meta.Scope, t, dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("publish failed: %v", err), exitStorageFailed)
	}

	if choice != nil {
		a, err := buildAdapter(choice)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		defer iox.DiscardClose(a)

		if err := a.Publish(ctx, publishedEvent(pub, storageBackend(env.cfg))); err != nil {
			// The revision is stored; only the notification failed.
			env.logger.Error("adapter notification failed", map[string]any{
				"adapter":  choice.adapterType,
				"revision": pub.Revision,
				"error":    err.Error(),
			})
			return cli.Exit(fmt.Sprintf("published %s but notification failed: %v", pub.Revision, err), exitFailure)
		}
	}

	r.Heading("Published " + pub.Key())
	return r.Render(pub)
}
