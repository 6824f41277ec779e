package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/cli/config"
	"github.com/pithecene-io/buildout/cli/render"
	"github.com/pithecene-io/buildout/manifest"
	"github.com/pithecene-io/buildout/runtime"
	"github.com/pithecene-io/buildout/types"
	"github.com/pithecene-io/buildout/worker"
)

// digestSuffix is appended to the input name by the digest unit.
const digestSuffix = ".sha256"

// TransformCommand returns the transform command.
// It runs one built-in unit over every output of the input manifests and
// writes the resulting manifest to the output directory.
func TransformCommand() *cli.Command {
	return &cli.Command{
		Name:      "transform",
		Usage:     "Run a work unit over every output of a manifest",
		ArgsUsage: "<input-dir>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Directory receiving the transformed outputs and output.json",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "unit",
				Usage: "Work unit: copy or digest",
				Value: worker.UnitCopy,
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Only transform outputs of this artifact type",
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Artifact type of the produced outputs",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Maximum concurrent units (overrides workers.parallel)",
			},
			&cli.StringFlag{
				Name:  "worker-mode",
				Usage: "Worker isolation: in_process or process (overrides workers.mode)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the summary",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Print the metrics snapshot after the summary",
			},
		},
		Action: transformAction,
	}
}

func transformAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one input directory is required", exitConfigError)
	}

	env, err := newBuildEnv(c)
	if err != nil {
		return err
	}
	defer env.close()

	unit := c.String("unit")
	if unit != worker.UnitCopy && unit != worker.UnitDigest {
		return cli.Exit(fmt.Sprintf("unknown unit %q (must be copy or digest)", unit), exitConfigError)
	}
	to, err := lookupType(c.String("to"))
	if err != nil {
		return err
	}
	outDir, err := filepath.Abs(c.String("output"))
	if err != nil {
		return err
	}

	inputs, err := loadInputs(c, env)
	if err != nil {
		return err
	}

	if err := checkOutputPaths(inputs, unit, outDir); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	pool, closePool, err := newPool(ctx, c, env)
	if err != nil {
		return err
	}
	result, err := runtime.Run(ctx, pool, inputs, unit, to, fileParamsFactory(unit, outDir),
		runtime.WithLogger(env.logger),
		runtime.WithMetrics(env.metrics),
	)
	if cerr := closePool(); cerr != nil {
		env.logger.Warn("worker pool shutdown failed", map[string]any{"error": cerr.Error()})
	}
	if err != nil {
		var ue *worker.UnitError
		if errors.As(err, &ue) {
			return cli.Exit(fmt.Sprintf("transform failed: %v", err), exitFailure)
		}
		return cli.Exit(fmt.Sprintf("transform aborted: %v", err), exitFailure)
	}

	if err := result.Elements.Save(outDir); err != nil {
		return cli.Exit(fmt.Sprintf("failed to write manifest: %v", err), exitFailure)
	}
	env.metrics.IncManifestSaved()

	if !c.Bool("quiet") {
		runtime.PrintTransformSummary(os.Stderr, result)
	}
	if c.Bool("metrics") {
		r := render.NewRendererWithWriter(render.FormatJSON, true, os.Stdout)
		return r.Render(env.metrics.Snapshot())
	}
	return nil
}

// loadInputs reads the input manifests, keeping only --from outputs if set.
func loadInputs(c *cli.Context, env *buildEnv) (manifest.BuildElements, error) {
	loader, err := env.loader(false)
	if err != nil {
		return manifest.BuildElements{}, err
	}
	src := manifest.Files(c.Args().Slice()...)

	var elements manifest.BuildElements
	if name := c.String("from"); name != "" {
		from, err := lookupType(name)
		if err != nil {
			return manifest.BuildElements{}, err
		}
		elements, err = loader.From(from, src)
		if err != nil {
			return manifest.BuildElements{}, cli.Exit(err.Error(), exitFailure)
		}
		return elements, nil
	}
	elements, err = loader.FromAll(src)
	if err != nil {
		return manifest.BuildElements{}, cli.Exit(err.Error(), exitFailure)
	}
	return elements, nil
}

// newPool builds the worker pool selected by flags and config. The
// returned close function releases worker processes, if any.
func newPool(ctx context.Context, c *cli.Context, env *buildEnv) (worker.Pool, func() error, error) {
	parallel := c.Int("parallel")
	if parallel == 0 {
		parallel = env.cfg.Workers.Parallel
	}
	opts := []worker.PoolOption{
		worker.WithLogger(env.logger),
		worker.WithMetrics(env.metrics),
	}

	mode := firstNonEmpty(c.String("worker-mode"), workerMode(env.cfg))
	switch mode {
	case config.WorkerModeInProcess:
		pool := worker.NewInProcessPool(ctx, worker.NewBuiltinRegistry(), parallel, opts...)
		return pool, func() error { return nil }, nil
	case config.WorkerModeProcess:
		launcher := &worker.ExecLauncher{
			Executable: env.cfg.Workers.Executable,
			Args:       workerArgs(c, env),
		}
		pool := worker.NewProcessPool(ctx, launcher, parallel, opts...)
		return pool, pool.Close, nil
	default:
		return nil, nil, cli.Exit(fmt.Sprintf("unknown worker mode %q", mode), exitConfigError)
	}
}

// workerArgs forwards the global flags a worker child needs.
func workerArgs(c *cli.Context, env *buildEnv) []string {
	args := []string{"--scope", env.meta.Scope}
	if path := c.String("config"); path != "" {
		args = append(args, "--config", path)
	}
	if c.Bool("verbose") {
		args = append(args, "--verbose")
	}
	return args
}

// fileParamsFactory places each output under outDir/{fullName}/, keeping
// the input's base name. Digest outputs get a .sha256 suffix.
func fileParamsFactory(unit, outDir string) runtime.ParamsFactory {
	return func(apk types.ApkData, inputPath string) (worker.Params, error) {
		output, err := outputPath(unit, outDir, apk, inputPath)
		if err != nil {
			return nil, err
		}
		return worker.FileParams{Input: inputPath, Output: output}, nil
	}
}

func outputPath(unit, outDir string, apk types.ApkData, inputPath string) (string, error) {
	name := filepath.Base(inputPath)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("input path %q has no file name", inputPath)
	}
	if unit == worker.UnitDigest {
		name += digestSuffix
	}
	return filepath.Join(outDir, outputDirName(apk), name), nil
}

// checkOutputPaths rejects inputs that would be written to the same output
// path. Nothing has been submitted when it fails.
func checkOutputPaths(inputs manifest.BuildElements, unit, outDir string) error {
	seen := make(map[string]string, inputs.Len())
	for _, o := range inputs.Outputs() {
		output, err := outputPath(unit, outDir, o.ApkData, o.Path)
		if err != nil {
			return err
		}
		if prev, ok := seen[output]; ok {
			return fmt.Errorf("inputs %s and %s both map to %s", prev, o.Path, output)
		}
		seen[output] = o.Path
	}
	return nil
}

func outputDirName(apk types.ApkData) string {
	if apk.FullName != "" {
		return apk.FullName
	}
	return "main"
}
