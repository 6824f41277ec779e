//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Kind says whether an artifact type is a single file or a directory.
type Kind string

// Artifact kinds.
const (
	KindFile      Kind = "FILE"
	KindDirectory Kind = "DIRECTORY"
)

// Category is the base output directory fragment for an artifact type.
type Category string

// Output categories.
const (
	CategoryIntermediates Category = "intermediates"
	CategoryOutputs       Category = "outputs"
)

// Family tags the closed union of artifact type sets.
// It is the "kind" discriminator of the manifest wire format.
type Family string

// Artifact type families.
const (
	// FamilyInternal holds build-internal intermediate artifact types.
	FamilyInternal Family = "internal"
	// FamilyAnchor holds aggregate artifact types published to consumers.
	FamilyAnchor Family = "anchor"
)

// ArtifactType is a named, typed slot for one category of build output.
// Values are defined once in this package and never mutated.
type ArtifactType struct {
	Name     string
	Kind     Kind
	Category Category
	Family   Family
}

// String returns the artifact type name.
func (t ArtifactType) String() string { return t.Name }

// IsZero reports whether t is the zero artifact type.
func (t ArtifactType) IsZero() bool { return t.Name == "" }

// DirName returns the path fragment used for this type under its category.
func (t ArtifactType) DirName() string { return strings.ToLower(t.Name) }

func internal(name string, kind Kind, category Category) ArtifactType {
	return ArtifactType{Name: name, Kind: kind, Category: category, Family: FamilyInternal}
}

func anchor(name string, kind Kind) ArtifactType {
	return ArtifactType{Name: name, Kind: kind, Category: CategoryIntermediates, Family: FamilyAnchor}
}

// Internal artifact types.
var (
	MergedManifests        = internal("MERGED_MANIFESTS", KindDirectory, CategoryIntermediates)
	ProcessedRes           = internal("PROCESSED_RES", KindDirectory, CategoryIntermediates)
	MergedRes              = internal("MERGED_RES", KindDirectory, CategoryIntermediates)
	MergedAssets           = internal("MERGED_ASSETS", KindDirectory, CategoryIntermediates)
	CompiledClasses        = internal("JAVAC", KindDirectory, CategoryIntermediates)
	LinkedResources        = internal("LINKED_RES_FOR_BUNDLE", KindFile, CategoryIntermediates)
	NativeLibs             = internal("MERGED_NATIVE_LIBS", KindDirectory, CategoryIntermediates)
	Dex                    = internal("DEX", KindDirectory, CategoryIntermediates)
	RJar                   = internal("COMPILE_ONLY_NOT_NAMESPACED_R_CLASS_JAR", KindFile, CategoryIntermediates)
	SymbolList             = internal("SYMBOL_LIST", KindFile, CategoryIntermediates)
	ManifestMergeReport    = internal("MANIFEST_MERGE_REPORT", KindFile, CategoryOutputs)
	Apk                    = internal("APK", KindDirectory, CategoryOutputs)
	Bundle                 = internal("BUNDLE", KindFile, CategoryOutputs)
	ApkListing             = internal("APK_LIST", KindFile, CategoryOutputs)
	MetadataFeatureDeclare = internal("METADATA_FEATURE_DECLARATION", KindDirectory, CategoryIntermediates)
	Digests                = internal("DIGESTS", KindDirectory, CategoryIntermediates)
)

// Anchor artifact types.
var (
	AllClasses   = anchor("ALL_CLASSES", KindDirectory)
	AllDex       = anchor("ALL_DEX", KindDirectory)
	ExternalLibs = anchor("EXTERNAL_LIBS", KindDirectory)
)

var registry = func() map[Family]map[string]ArtifactType {
	all := []ArtifactType{
		MergedManifests, ProcessedRes, MergedRes, MergedAssets, CompiledClasses,
		LinkedResources, NativeLibs, Dex, RJar, SymbolList, ManifestMergeReport,
		Apk, Bundle, ApkListing, MetadataFeatureDeclare, Digests,
		AllClasses, AllDex, ExternalLibs,
	}
	m := map[Family]map[string]ArtifactType{
		FamilyInternal: {},
		FamilyAnchor:   {},
	}
	for _, t := range all {
		m[t.Family][t.Name] = t
	}
	return m
}()

// LookupArtifactType resolves an artifact type by family and name.
// Unknown families and names are rejected.
func LookupArtifactType(family Family, name string) (ArtifactType, error) {
	names, ok := registry[family]
	if !ok {
		return ArtifactType{}, fmt.Errorf("unknown artifact type family %q", family)
	}
	t, ok := names[name]
	if !ok {
		return ArtifactType{}, fmt.Errorf("unknown %s artifact type %q", family, name)
	}
	return t, nil
}

// LookupArtifactTypeName resolves an artifact type by name across all families.
func LookupArtifactTypeName(name string) (ArtifactType, error) {
	for _, family := range []Family{FamilyInternal, FamilyAnchor} {
		if t, ok := registry[family][name]; ok {
			return t, nil
		}
	}
	return ArtifactType{}, fmt.Errorf("unknown artifact type %q", name)
}
