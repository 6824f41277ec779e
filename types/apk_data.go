//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"slices"
	"strings"
)

// OutputType is the packaging type of one variant output.
type OutputType string

// Output types.
const (
	OutputMain      OutputType = "MAIN"
	OutputFullSplit OutputType = "FULL_SPLIT"
	OutputSplit     OutputType = "SPLIT"
)

// ParseOutputType validates an output type name.
func ParseOutputType(s string) (OutputType, error) {
	switch t := OutputType(s); t {
	case OutputMain, OutputFullSplit, OutputSplit:
		return t, nil
	default:
		return "", fmt.Errorf("unknown output type %q", s)
	}
}

// FilterType is the dimension a split filters on.
type FilterType string

// Filter types.
const (
	FilterDensity  FilterType = "DENSITY"
	FilterABI      FilterType = "ABI"
	FilterLanguage FilterType = "LANGUAGE"
)

// ParseFilterType validates a filter type name.
func ParseFilterType(s string) (FilterType, error) {
	switch t := FilterType(s); t {
	case FilterDensity, FilterABI, FilterLanguage:
		return t, nil
	default:
		return "", fmt.Errorf("unknown filter type %q", s)
	}
}

// FilterData is one split filter, e.g. ABI=x86_64.
type FilterData struct {
	FilterType FilterType
	Identifier string
}

// ApkData identifies one produced variant output. It correlates an output
// across successive transforms of the same logical unit.
type ApkData struct {
	Type           OutputType
	Filters        []FilterData
	VersionCode    int
	VersionName    string
	Enabled        bool
	FilterName     string
	OutputFileName string
	FullName       string
	BaseName       string
}

// MainApkData returns the discriminator of an unsplit output.
func MainApkData(fullName, baseName string) ApkData {
	return ApkData{
		Type:     OutputMain,
		Enabled:  true,
		FullName: fullName,
		BaseName: baseName,
	}
}

// SameIdentity reports whether a and b describe the same logical output.
// Identity is (Type, Filters, FullName); other fields are informational.
func (a ApkData) SameIdentity(b ApkData) bool {
	return a.Type == b.Type &&
		a.FullName == b.FullName &&
		slices.Equal(a.Filters, b.Filters)
}

// IdentityKey returns a deterministic key consistent with SameIdentity.
func (a ApkData) IdentityKey() string {
	var sb strings.Builder
	sb.WriteString(string(a.Type))
	sb.WriteByte('|')
	sb.WriteString(a.FullName)
	for _, f := range a.Filters {
		sb.WriteByte('|')
		sb.WriteString(string(f.FilterType))
		sb.WriteByte('=')
		sb.WriteString(f.Identifier)
	}
	return sb.String()
}

// Filter returns the identifier for the given filter type, if present.
func (a ApkData) Filter(ft FilterType) (string, bool) {
	for _, f := range a.Filters {
		if f.FilterType == ft {
			return f.Identifier, true
		}
	}
	return "", false
}
