// Package runtime schedules transforms: one unit of work per manifest
// entry, fanned out over a worker pool and joined before any result is
// assembled.
package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/buildout/log"
	"github.com/pithecene-io/buildout/manifest"
	"github.com/pithecene-io/buildout/metrics"
	"github.com/pithecene-io/buildout/types"
	"github.com/pithecene-io/buildout/worker"
)

// ParamsFactory builds the parameters of the unit for one input output.
type ParamsFactory func(apk types.ApkData, inputPath string) (worker.Params, error)

// TransformError is the failure of a transform. Err is the first unit
// failure, or the factory or context error that stopped submission.
type TransformError struct {
	Unit string
	To   types.ArtifactType
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s to %s: %v", e.Unit, e.To, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// TransformResult summarizes a successful transform.
type TransformResult struct {
	Unit     string
	To       types.ArtifactType
	Inputs   int
	Elements manifest.BuildElements
	Duration time.Duration
}

// Option configures a transform.
type Option func(*options)

type options struct {
	logger  *log.Logger
	metrics *metrics.Collector
}

// WithLogger sets the transform logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// Transform runs unit over every output in in and returns the outputs of
// type to, in input order. Outputs whose parameters declare no output path
// contribute nothing. If any unit fails no result is returned.
func Transform(ctx context.Context, pool worker.Pool, in manifest.BuildElements, unit string, to types.ArtifactType, factory ParamsFactory, opts ...Option) (manifest.BuildElements, error) {
	result, err := Run(ctx, pool, in, unit, to, factory, opts...)
	if err != nil {
		return manifest.BuildElements{}, err
	}
	return result.Elements, nil
}

// Run is Transform returning a summary.
func Run(ctx context.Context, pool worker.Pool, in manifest.BuildElements, unit string, to types.ArtifactType, factory ParamsFactory, opts ...Option) (*TransformResult, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	o.metrics.IncTransformStarted()
	o.logger.Info("transform started", map[string]any{
		"unit":   unit,
		"to":     to.Name,
		"inputs": in.Len(),
	})

	fail := func(err error) (*TransformResult, error) {
		o.metrics.IncTransformFailed()
		o.logger.Error("transform failed", map[string]any{
			"unit":  unit,
			"to":    to.Name,
			"error": err.Error(),
		})
		return nil, &TransformError{Unit: unit, To: to, Err: err}
	}

	inputs := in.Outputs()
	params := make([]worker.Params, 0, len(inputs))
	var submitErr error
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			submitErr = err
			break
		}
		p, err := factory(input.ApkData, input.Path)
		if err != nil {
			submitErr = fmt.Errorf("parameters for %s: %w", input.ApkData.FullName, err)
			break
		}
		pool.Submit(unit, p)
		params = append(params, p)
	}

	// Always join what was submitted, so no unit outlives the call.
	awaitErr := pool.AwaitAll()
	if awaitErr != nil {
		return fail(awaitErr)
	}
	if submitErr != nil {
		return fail(submitErr)
	}

	// Assemble only after the join, from input order.
	var outputs []manifest.BuildOutput
	for i, p := range params {
		path := p.OutputPath()
		if path == "" {
			continue
		}
		outputs = append(outputs, manifest.NewBuildOutput(to, inputs[i].ApkData, path, nil))
	}

	result := &TransformResult{
		Unit:     unit,
		To:       to,
		Inputs:   len(inputs),
		Elements: manifest.NewBuildElements(outputs...),
		Duration: time.Since(start),
	}
	o.logger.Info("transform completed", map[string]any{
		"unit":        unit,
		"to":          to.Name,
		"outputs":     result.Elements.Len(),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// PrintTransformSummary prints a human-readable transform summary.
func PrintTransformSummary(w io.Writer, result *TransformResult) {
	_, _ = fmt.Fprintf(w, "\n=== Transform Summary ===\n")
	_, _ = fmt.Fprintf(w, "Unit:       %s -> %s\n", result.Unit, result.To)
	_, _ = fmt.Fprintf(w, "Outputs:    %d from %d inputs\n", result.Elements.Len(), result.Inputs)
	_, _ = fmt.Fprintf(w, "Duration:   %s\n", result.Duration.Round(time.Millisecond))

	if result.Elements.Len() > 0 {
		_, _ = fmt.Fprintf(w, "\n--- Outputs ---\n")
		for _, o := range result.Elements.Outputs() {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", o.ApkData.FullName, o.Path)
		}
	}
}
