package cmd

import (
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/artifact"
	"github.com/pithecene-io/buildout/cli/render"
	"github.com/pithecene-io/buildout/types"
)

// ProductRow is the final product of one artifact type.
type ProductRow struct {
	ArtifactType string   `json:"artifact_type"`
	Tasks        []string `json:"tasks"`
	Paths        []string `json:"paths"`
}

// PlanResponse is the response for the plan command.
type PlanResponse struct {
	Scope    string       `json:"scope"`
	BuildDir string       `json:"build_dir"`
	Products []ProductRow `json:"products"`
}

// PlanCommand returns the plan command. It applies a registration plan to
// a fresh holder, seals it and shows where every final product lives.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Resolve producer locations for a registration plan",
		ArgsUsage: "<plan.yaml>",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:  "build-dir",
				Usage: "Build directory (overrides build_dir from config)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the producer report to this path",
			},
		),
		Action: planAction,
	}
}

func planAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("plan path required", exitConfigError)
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

	buildDir := firstNonEmpty(c.String("build-dir"), env.cfg.BuildDir)
	if buildDir == "" {
		return cli.Exit("build directory required (--build-dir or build_dir in config)", exitConfigError)
	}

	plan, err := artifact.LoadPlan(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	holder := artifact.NewHolder(buildDir, env.meta.Scope,
		artifact.WithLogger(env.logger),
		artifact.WithMetrics(env.metrics),
	)
	if _, err := plan.Apply(holder); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if err := holder.Seal(); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	report := holder.CreateReport()
	if path := c.String("report"); path != "" {
		if err := report.Save(path); err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	}

	resp := PlanResponse{Scope: env.meta.Scope, BuildDir: buildDir}
	for _, name := range report.ArtifactTypes() {
		row, err := productRow(holder, name)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		resp.Products = append(resp.Products, row)
	}

	if r.Format() != render.FormatTable {
		return r.Render(resp)
	}
	r.Heading("Final products (" + resp.Scope + ")")
	return r.Render(tableProducts(resp.Products))
}

func productRow(h *artifact.Holder, name string) (ProductRow, error) {
	t, err := types.LookupArtifactTypeName(name)
	if err != nil {
		return ProductRow{}, err
	}
	products := h.FinalProducts(t)
	paths, err := products.Get()
	if err != nil && !errors.Is(err, artifact.ErrNoProducer) {
		return ProductRow{}, err
	}
	return ProductRow{ArtifactType: name, Tasks: products.Tasks(), Paths: paths}, nil
}

type productTableRow struct {
	ArtifactType string `json:"artifact_type"`
	Tasks        string `json:"tasks"`
	Paths        string `json:"paths"`
}

func tableProducts(rows []ProductRow) []productTableRow {
	out := make([]productTableRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, productTableRow{
			ArtifactType: row.ArtifactType,
			Tasks:        strings.Join(row.Tasks, ","),
			Paths:        strings.Join(row.Paths, ","),
		})
	}
	return out
}
