// Package manifest records which files a task produced for an artifact
// type, independent of the live producer graph.
//
// A BuildElements collection is saved as output.json in a task's output
// directory with every path relative to that directory, so the build
// directory can be moved or copied without invalidating it. A later
// process reloads it with From or FromAll; an absent manifest is a normal
// state (first or clean build) and loads as an empty collection.
package manifest

import (
	"maps"
	"slices"

	"github.com/pithecene-io/buildout/types"
)

// BuildOutput is one produced file or directory. Path is absolute once
// loaded. Values are never mutated after construction.
type BuildOutput struct {
	Type       types.ArtifactType
	ApkData    types.ApkData
	Path       string
	Properties map[string]string
}

// NewBuildOutput creates an output, copying properties.
func NewBuildOutput(t types.ArtifactType, apk types.ApkData, path string, properties map[string]string) BuildOutput {
	return BuildOutput{
		Type:       t,
		ApkData:    apk,
		Path:       path,
		Properties: maps.Clone(properties),
	}
}

// clone returns a copy sharing no maps or slices with o.
func (o BuildOutput) clone() BuildOutput {
	o.Properties = maps.Clone(o.Properties)
	o.ApkData.Filters = slices.Clone(o.ApkData.Filters)
	return o
}

// Property returns a property value.
func (o BuildOutput) Property(key string) (string, bool) {
	v, ok := o.Properties[key]
	return v, ok
}

// Equal reports whether o and other carry the same data.
// Nil and empty property maps are equal.
func (o BuildOutput) Equal(other BuildOutput) bool {
	return o.Type == other.Type &&
		o.Path == other.Path &&
		apkDataEqual(o.ApkData, other.ApkData) &&
		maps.Equal(o.Properties, other.Properties)
}

func apkDataEqual(a, b types.ApkData) bool {
	return a.Type == b.Type &&
		slices.Equal(a.Filters, b.Filters) &&
		a.VersionCode == b.VersionCode &&
		a.VersionName == b.VersionName &&
		a.Enabled == b.Enabled &&
		a.FilterName == b.FilterName &&
		a.OutputFileName == b.OutputFileName &&
		a.FullName == b.FullName &&
		a.BaseName == b.BaseName
}

// BuildElements is an ordered collection of outputs. It is value-like:
// every operation returns a new collection and never mutates the receiver.
type BuildElements struct {
	outputs []BuildOutput
}

// NewBuildElements creates a collection from outputs, in order.
func NewBuildElements(outputs ...BuildOutput) BuildElements {
	return BuildElements{outputs: slices.Clone(outputs)}
}

// Len returns the number of outputs.
func (e BuildElements) Len() int { return len(e.outputs) }

// IsEmpty reports whether the collection has no outputs.
func (e BuildElements) IsEmpty() bool { return len(e.outputs) == 0 }

// Outputs returns a copy of the outputs, in order. Mutating the result
// does not affect the collection.
func (e BuildElements) Outputs() []BuildOutput {
	out := make([]BuildOutput, len(e.outputs))
	for i, o := range e.outputs {
		out[i] = o.clone()
	}
	return out
}

// clone returns a deep copy of the collection.
func (e BuildElements) clone() BuildElements {
	return BuildElements{outputs: e.Outputs()}
}

// All iterates the outputs in order.
func (e BuildElements) All() func(yield func(int, BuildOutput) bool) {
	return func(yield func(int, BuildOutput) bool) {
		for i, o := range e.outputs {
			if !yield(i, o.clone()) {
				return
			}
		}
	}
}

// OfType returns the outputs of artifact type t.
func (e BuildElements) OfType(t types.ArtifactType) BuildElements {
	var out []BuildOutput
	for _, o := range e.outputs {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return BuildElements{outputs: out}
}

// ByIdentity returns the first output whose discriminator has the same
// identity as apk.
func (e BuildElements) ByIdentity(apk types.ApkData) (BuildOutput, bool) {
	for _, o := range e.outputs {
		if o.ApkData.SameIdentity(apk) {
			return o.clone(), true
		}
	}
	return BuildOutput{}, false
}

// Append returns a new collection with more appended.
func (e BuildElements) Append(more ...BuildOutput) BuildElements {
	out := make([]BuildOutput, 0, len(e.outputs)+len(more))
	out = append(out, e.outputs...)
	out = append(out, more...)
	return BuildElements{outputs: out}
}

// Equal reports whether both collections hold equal outputs in the same order.
func (e BuildElements) Equal(other BuildElements) bool {
	return slices.EqualFunc(e.outputs, other.outputs, BuildOutput.Equal)
}
