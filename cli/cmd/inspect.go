package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/artifact"
	"github.com/pithecene-io/buildout/cli/render"
	"github.com/pithecene-io/buildout/manifest"
	"github.com/pithecene-io/buildout/types"
)

// OutputRow is one manifest output as shown by inspect manifest.
type OutputRow struct {
	ArtifactType string `json:"artifact_type"`
	OutputType   string `json:"output_type"`
	FullName     string `json:"full_name"`
	Filters      string `json:"filters"`
	VersionCode  int    `json:"version_code"`
	Path         string `json:"path"`
}

// ReportRow is one producer as shown by inspect report.
type ReportRow struct {
	ArtifactType string `json:"artifact_type"`
	Task         string `json:"task"`
	Operation    string `json:"operation"`
	Retired      bool   `json:"retired"`
	Path         string `json:"path"`
}

// InspectCommand returns the inspect command with subcommands.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a manifest or a producer report",
		Subcommands: []*cli.Command{
			inspectManifestCommand(),
			inspectReportCommand(),
		},
	}
}

func inspectManifestCommand() *cli.Command {
	return &cli.Command{
		Name:      "manifest",
		Usage:     "List the outputs recorded in output.json files",
		ArgsUsage: "<dir|output.json>...",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:  "type",
				Usage: "Only list outputs of this artifact type",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail on unreadable manifests instead of skipping them",
			},
		),
		Action: inspectManifestAction,
	}
}

func inspectManifestAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one manifest directory or file is required", exitConfigError)
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

	loader, err := env.loader(c.Bool("strict"))
	if err != nil {
		return err
	}

	src := manifest.Files(c.Args().Slice()...)
	var elements manifest.BuildElements
	if name := c.String("type"); name != "" {
		t, err := lookupType(name)
		if err != nil {
			return err
		}
		elements, err = loader.From(t, src)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	} else {
		elements, err = loader.FromAll(src)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	}

	r.Heading(fmt.Sprintf("%d outputs", elements.Len()))
	return r.Render(outputRows(elements))
}

func outputRows(elements manifest.BuildElements) []OutputRow {
	rows := make([]OutputRow, 0, elements.Len())
	for _, o := range elements.All() {
		rows = append(rows, OutputRow{
			ArtifactType: o.Type.Name,
			OutputType:   string(o.ApkData.Type),
			FullName:     o.ApkData.FullName,
			Filters:      formatFilters(o.ApkData.Filters),
			VersionCode:  o.ApkData.VersionCode,
			Path:         o.Path,
		})
	}
	return rows
}

func formatFilters(filters []types.FilterData) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, string(f.FilterType)+"="+f.Identifier)
	}
	return strings.Join(parts, ",")
}

func inspectReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Show the producer history recorded in a report file",
		ArgsUsage: "<report.json>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectReportAction,
	}
}

func inspectReportAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("report path required", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := artifact.LoadReport(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if r.Format() != render.FormatTable {
		return r.Render(report)
	}
	return r.Render(reportRows(report))
}

func reportRows(report artifact.Report) []ReportRow {
	var rows []ReportRow
	for _, name := range report.ArtifactTypes() {
		for _, entry := range report[name] {
			rows = append(rows, ReportRow{
				ArtifactType: name,
				Task:         entry.BuiltBy,
				Operation:    entry.Operation,
				Retired:      entry.Retired,
				Path:         strings.Join(entry.Files, ","),
			})
		}
	}
	return rows
}
